// Package sse provides a minimal, purpose-built reader for the line framed
// event stream returned by OpenAI compatible chat completion endpoints.
//
// Upstream bytes arrive in arbitrary chunks: a single chunk may carry several
// records, or only part of one. The Reassembler turns those chunks back into
// complete lines and ParseLine classifies each line.
package sse

import (
	"bytes"
)

// Reassembler accumulates upstream byte chunks and yields only complete,
// newline terminated lines. Whatever follows the last newline is retained as
// pending until a later chunk completes it.
//
// A Reassembler is owned by a single stream session and is not safe for
// concurrent use.
type Reassembler struct {
	pending []byte
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed appends chunk to the pending buffer and returns every line completed
// by it, in arrival order, without the trailing newline. The final segment
// after the last newline (possibly empty) is never returned by Feed.
func (r *Reassembler) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	r.pending = append(r.pending, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(r.pending, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(r.pending[:i]))
		r.pending = r.pending[i+1:]
	}

	// Compact so the backing array does not grow with every consumed line.
	if len(r.pending) == 0 {
		r.pending = nil
	} else if len(lines) > 0 {
		r.pending = append([]byte(nil), r.pending...)
	}

	return lines
}

// Pending returns the incomplete trailing segment currently buffered.
func (r *Reassembler) Pending() string {
	return string(r.pending)
}

// Discard drops the pending segment and reports how many bytes were dropped.
// It is called when the upstream stream ends: an unterminated final line is
// never emitted.
func (r *Reassembler) Discard() int {
	n := len(r.pending)
	r.pending = nil
	return n
}
