package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/llm/ollama"
)

// ErrClosed is returned when writing to an Emitter that has already finished,
// aborted, or lost its downstream.
var ErrClosed = errors.New("downstream closed")

// Downstream is the write side of a client response body. *io.PipeWriter
// satisfies it: CloseWithError(nil) ends the body cleanly and a non-nil error
// makes the reader fail, which drops the client connection.
type Downstream interface {
	io.Writer
	CloseWithError(err error) error
}

// Emitter writes downstream records as JSON lines, one Write per record.
//
// Once the Emitter is closed every further write is a no-op returning
// ErrClosed, so at most one terminal record is ever written and nothing
// follows it.
type Emitter struct {
	mu      sync.Mutex
	w       Downstream
	buf     bytes.Buffer
	enc     *json.Encoder
	closed  bool
	shut    bool
	written int
}

// NewEmitter returns an Emitter writing to w.
func NewEmitter(w Downstream) *Emitter {
	e := &Emitter{w: w}
	e.enc = json.NewEncoder(&e.buf)
	e.enc.SetEscapeHTML(false)
	return e
}

// Emit writes one non-terminal record.
func (e *Emitter) Emit(rec *ollama.ChatResponse) error {
	if rec.Done {
		return errors.New("terminal records must be written with Finish")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	return e.write(rec)
}

// Finish writes the terminal record and ends the body cleanly. Only the first
// call has any effect.
func (e *Emitter) Finish(rec *ollama.ChatResponse) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	rec.Done = true
	err := e.write(rec)
	e.closed = true
	return errors.Join(err, e.shutdown(nil))
}

// Abort stops all further writes and closes the downstream. A nil cause ends
// the body cleanly, a non-nil cause drops the connection.
func (e *Emitter) Abort(cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	_ = e.shutdown(cause)
}

// Written returns the number of records successfully written, including the
// terminal record.
func (e *Emitter) Written() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.written
}

func (e *Emitter) write(rec *ollama.ChatResponse) error {
	e.buf.Reset()
	if err := e.enc.Encode(rec); err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	if _, err := e.w.Write(e.buf.Bytes()); err != nil {
		e.closed = true
		return fmt.Errorf("writing record: %w", err)
	}

	e.written++
	return nil
}

func (e *Emitter) shutdown(cause error) error {
	if e.shut {
		return nil
	}
	e.shut = true
	return e.w.CloseWithError(cause)
}
