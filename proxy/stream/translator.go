package stream

import (
	"errors"
	"fmt"
	"time"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/llm/ollama"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/llm/openai"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/sse"
)

// ErrMalformedRecord is returned by Translate for a data line whose payload
// is not a valid chunk. The line is dropped and the stream continues.
var ErrMalformedRecord = errors.New("malformed upstream record")

// Translator maps upstream lines to downstream records for one session.
// It holds no per-line state: translating the same line twice with the same
// clock yields equal records.
type Translator struct {
	model string
	now   func() time.Time
}

// NewTranslator returns a Translator that names records after model. now
// defaults to time.Now.
func NewTranslator(model string, now func() time.Time) *Translator {
	if now == nil {
		now = time.Now
	}
	return &Translator{model: model, now: now}
}

// Model returns the model name stamped on every record.
func (t *Translator) Model() string {
	return t.model
}

// Translate maps one complete upstream line.
//
// It returns a record when the line carries non-empty content, done=true when
// the line is the terminal sentinel, and nil otherwise. A payload that fails
// to decode yields an error wrapping ErrMalformedRecord.
func (t *Translator) Translate(line string) (rec *ollama.ChatResponse, done bool, err error) {
	parsed := sse.ParseLine(line)
	switch parsed.Kind {
	case sse.KindDone:
		return nil, true, nil
	case sse.KindIgnore:
		return nil, false, nil
	}

	chunk, err := openai.ParseChunk([]byte(parsed.Data))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}

	content := chunk.Content()
	if content == "" {
		return nil, false, nil
	}

	return ollama.NewContentResponse(t.model, content, t.now()), false, nil
}

// Done builds the terminal record.
func (t *Translator) Done() *ollama.ChatResponse {
	return ollama.NewDoneResponse(t.model, t.now())
}
