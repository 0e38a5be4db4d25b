// Package ollama holds the Ollama shaped wire types served to downstream
// clients.
package ollama

import (
	"encoding/json"
	"strings"
	"time"
)

// RoleAssistant is the role of every emitted message fragment.
const RoleAssistant = "assistant"

// Message is a chat message fragment.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is one line of a streamed /api/chat response.
//
// Timings is nil for content records, which keeps the duration and count
// fields off the wire. The terminal record carries a zero Timings so those
// fields are present as 0.
type ChatResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   Message   `json:"message"`
	Done      bool      `json:"done"`
	*Timings
}

// Timings are the generation statistics a local Ollama server reports on
// the final record. The proxy has no such numbers and always sends zeros.
type Timings struct {
	TotalDuration      int64 `json:"total_duration"`
	LoadDuration       int64 `json:"load_duration"`
	PromptEvalCount    int   `json:"prompt_eval_count"`
	PromptEvalDuration int64 `json:"prompt_eval_duration"`
	EvalCount          int   `json:"eval_count"`
	EvalDuration       int64 `json:"eval_duration"`
}

// NewContentResponse builds a non-terminal record carrying content.
func NewContentResponse(model, content string, at time.Time) *ChatResponse {
	return &ChatResponse{
		Model:     model,
		CreatedAt: at.UTC(),
		Message:   Message{Role: RoleAssistant, Content: content},
	}
}

// NewDoneResponse builds the terminal record: empty content, done set and
// zeroed timings.
func NewDoneResponse(model string, at time.Time) *ChatResponse {
	return &ChatResponse{
		Model:     model,
		CreatedAt: at.UTC(),
		Message:   Message{Role: RoleAssistant, Content: ""},
		Done:      true,
		Timings:   &Timings{},
	}
}

// ChatRequest holds the fields of an inbound /api/chat body the proxy looks
// at. Everything else is forwarded untouched.
type ChatRequest struct {
	Model string `json:"model"`

	// Stream is nil when the client omitted it, which Ollama treats as true.
	Stream *bool `json:"stream,omitempty"`
}

// PeekChatRequest extracts model and stream from a raw request body. A body
// that is not a JSON object yields the zero ChatRequest.
func PeekChatRequest(body []byte) ChatRequest {
	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ChatRequest{}
	}
	req.Model = strings.TrimSpace(req.Model)
	return req
}

// Streaming reports whether the client asked for a streamed response.
func (r ChatRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}
