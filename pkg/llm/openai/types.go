// Package openai holds the wire types of the OpenAI compatible chat
// completions stream consumed from the upstream.
package openai

import (
	"encoding/json"
	"fmt"
)

// ChatCompletionChunk is one streamed chat completion payload, i.e. the JSON
// carried by a single "data: " line.
type ChatCompletionChunk struct {
	ID      string        `json:"id,omitempty"`
	Object  string        `json:"object,omitempty"`
	Created int64         `json:"created,omitempty"`
	Model   string        `json:"model,omitempty"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice is a single entry of ChatCompletionChunk.Choices.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        *Delta  `json:"delta,omitempty"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Delta is the incremental message fragment of a choice. Content is a
// pointer so an absent or null field can be told apart from "".
type Delta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// ParseChunk decodes a chunk payload.
func ParseChunk(data []byte) (*ChatCompletionChunk, error) {
	chunk := &ChatCompletionChunk{}
	if err := json.Unmarshal(data, chunk); err != nil {
		return nil, fmt.Errorf("decoding chat completion chunk: %w", err)
	}
	return chunk, nil
}

// Content returns the text fragment of the first choice. Missing choices,
// a missing delta or a missing content field all yield "". Choices beyond
// the first are ignored.
func (c *ChatCompletionChunk) Content() string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}

	delta := c.Choices[0].Delta
	if delta == nil || delta.Content == nil {
		return ""
	}

	return *delta.Content
}
