// Package stream translates an upstream chat completions event stream into
// Ollama's line delimited chat records while the response is still arriving.
//
// One Session serves one request. It owns the upstream body, a
// sse.Reassembler, a Translator and an Emitter, and moves through an explicit
// State machine driven by three terminal events: upstream end, upstream
// error and client disconnect.
//
// A Session is used in two phases. The request handler calls Open and Prime
// synchronously, so that failures before any record exists can still be
// answered with a JSON error. After committing the response, the handler
// hands the write side of the body to Stream on its own goroutine.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/llm/ollama"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/logger"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/sse"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/utils"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/upstream"
)

const readBufferSize = 32 << 10

// errEnd marks a natural end of the upstream stream: the sentinel or EOF.
var errEnd = errors.New("upstream stream ended")

// ErrClientGone is returned by Open when the client disconnected before the
// session was opened.
var ErrClientGone = errors.New("client disconnected before the upstream was contacted")

// Upstream opens the upstream event stream. *upstream.Client satisfies it.
type Upstream interface {
	Stream(ctx context.Context, body []byte) (io.ReadCloser, error)
}

// Summary describes a closed Session.
type Summary struct {
	ID        string
	Model     string
	Outcome   Outcome
	Records   int
	Malformed int
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Options configures a Session.
type Options struct {
	// ID identifies the session in logs and events.
	ID string

	// Model is stamped on every emitted record.
	Model string

	Logger *slog.Logger

	// Now is the clock used for record timestamps and durations.
	Now func() time.Time

	// OnClose, if set, is called exactly once when the session reaches
	// StateClosed.
	OnClose func(Summary)
}

// Session is the per-request lifecycle coordinator.
type Session struct {
	id          string
	logger      *slog.Logger
	now         func() time.Time
	onClose     func(Summary)
	translator  *Translator
	reassembler *sse.Reassembler

	mu      sync.Mutex
	state   State
	gone    bool
	outcome Outcome
	cause   error
	cancel  context.CancelFunc

	// Owned by whichever goroutine is currently driving the session: the
	// handler until Prime returns, then the Stream goroutine.
	body      io.ReadCloser
	buf       []byte
	queue     []*ollama.ChatResponse
	pending   error
	emitter   *Emitter
	malformed int
	startedAt time.Time
}

// NewSession returns an idle Session.
func NewSession(opts Options) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	l := opts.Logger
	if l == nil {
		l = logger.Nop()
	}

	return &Session{
		id:          opts.ID,
		logger:      l.With("session_id", opts.ID, "model", opts.Model),
		now:         now,
		onClose:     opts.OnClose,
		translator:  NewTranslator(opts.Model, now),
		reassembler: sse.NewReassembler(),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open moves the session from Idle to Forwarding and establishes the
// upstream stream. On failure the session is closed and the error returned;
// nothing has been written downstream yet.
func (s *Session) Open(up Upstream, body []byte) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot open session in state %s", state)
	}

	// Not derived from the request context: fasthttp recycles it once the
	// handler returns, while the stream keeps going.
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = StateForwarding
	s.startedAt = s.now()
	gone := s.gone
	s.mu.Unlock()

	if gone {
		s.trigger(StateAborting, OutcomeDisconnected, nil)
		s.close()
		return ErrClientGone
	}

	s.logger.Debug("session started")

	rc, err := up.Stream(ctx, body)
	if err != nil {
		s.trigger(StateAborting, openOutcome(err), err)
		s.close()
		return err
	}

	s.body = rc
	s.buf = make([]byte, readBufferSize)
	return nil
}

// Prime reads the upstream until at least one record is queued or the
// stream reached a terminal event. If the upstream failed before producing
// any record, the session is closed and the error returned so the caller can
// still answer with a JSON error.
func (s *Session) Prime() error {
	if s.body == nil {
		return errors.New("session is not open")
	}

	for len(s.queue) == 0 && s.pending == nil {
		s.pending = s.pump()
	}

	if len(s.queue) == 0 && !errors.Is(s.pending, errEnd) {
		err := s.pending
		s.trigger(StateAborting, OutcomeUpstreamError, err)
		s.close()
		return err
	}

	return nil
}

// Stream writes every queued and subsequent record to w until a terminal
// event, then closes w and the session. It is meant to run on its own
// goroutine after Prime succeeded.
func (s *Session) Stream(w Downstream) {
	em := NewEmitter(w)
	s.emitter = em

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("stream session panic: %v", r)
			s.logger.Error("recovered from panic in stream session",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			s.trigger(StateAborting, OutcomeInternalError, err)
			em.Abort(err)
			s.close()
		}
	}()

	for {
		for len(s.queue) > 0 {
			if s.State() != StateForwarding {
				break
			}

			rec := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]

			if err := em.Emit(rec); err != nil {
				// The client stopped reading.
				s.trigger(StateAborting, OutcomeDisconnected, nil)
				em.Abort(nil)
				s.close()
				return
			}
		}

		if s.pending != nil || s.State() != StateForwarding {
			break
		}
		s.pending = s.pump()
	}

	s.finish(em)
}

// Disconnect reports that the client went away. If the session is still
// forwarding it moves to Aborting and the upstream stream is canceled at
// once; no further records are written. A disconnect before Open makes Open
// fail with ErrClientGone. Later calls are no-ops.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.gone = true
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if !s.trigger(StateAborting, OutcomeDisconnected, nil) {
		return
	}
	s.logger.Debug("client disconnected, canceling upstream")
	s.cancel()
}

// BodyStream wraps the read side of the downstream pipe. fasthttp closes a
// response body stream whenever it stops sending it, and the wrapper turns
// that close into Disconnect. After a normal completion the session is
// already past Forwarding and the call has no effect.
//
// release, if not nil, runs once after the close, before the server moves on
// to the next request on the connection.
func (s *Session) BodyStream(pr *io.PipeReader, release func()) io.ReadCloser {
	return &bodyStream{PipeReader: pr, session: s, release: release}
}

type bodyStream struct {
	*io.PipeReader
	session *Session
	release func()
	once    sync.Once
}

func (b *bodyStream) Close() error {
	return b.CloseWithError(nil)
}

func (b *bodyStream) CloseWithError(err error) error {
	b.session.Disconnect()
	b.once.Do(func() {
		if b.release != nil {
			b.release()
		}
	})
	return b.PipeReader.CloseWithError(err)
}

// pump performs a single upstream read and translates every line it
// completes. It returns errEnd at the sentinel or EOF, the read error if the
// upstream failed, and nil otherwise.
func (s *Session) pump() error {
	n, err := s.body.Read(s.buf)
	if n > 0 {
		for _, line := range s.reassembler.Feed(s.buf[:n]) {
			rec, done, terr := s.translator.Translate(line)
			switch {
			case terr != nil:
				s.malformed++
				s.logger.Warn("dropping malformed upstream record",
					"error", terr,
					"line", utils.Truncate(line, 256),
				)
			case done:
				return errEnd
			case rec != nil:
				s.queue = append(s.queue, rec)
			}
		}
	}

	switch {
	case errors.Is(err, io.EOF):
		return errEnd
	case err != nil:
		return fmt.Errorf("reading upstream stream: %w", err)
	default:
		return nil
	}
}

func (s *Session) finish(em *Emitter) {
	if errors.Is(s.pending, errEnd) {
		if s.trigger(StateCompleting, OutcomeCompleted, nil) {
			if err := em.Finish(s.translator.Done()); err != nil {
				s.logger.Warn("terminal record not delivered", "error", err)
			}
		} else {
			em.Abort(nil)
		}
		s.close()
		return
	}

	if s.trigger(StateAborting, OutcomeUpstreamError, s.pending) {
		// Records were already sent, so the status line is committed: drop
		// the connection instead of ending the body cleanly.
		em.Abort(s.pending)
	} else {
		em.Abort(nil)
	}
	s.close()
}

// trigger applies a terminal event. Only the first event leaving Forwarding
// takes effect.
func (s *Session) trigger(next State, outcome Outcome, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateForwarding {
		return false
	}
	s.state = next
	s.outcome = outcome
	s.cause = cause
	return true
}

func (s *Session) close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	summary := Summary{
		ID:        s.id,
		Model:     s.translator.Model(),
		Outcome:   s.outcome,
		Malformed: s.malformed,
		StartedAt: s.startedAt,
		Duration:  s.now().Sub(s.startedAt),
		Err:       s.cause,
	}
	cancel := s.cancel
	s.mu.Unlock()

	if s.emitter != nil {
		summary.Records = s.emitter.Written()
	}

	if cancel != nil {
		cancel()
	}
	if s.body != nil {
		_ = s.body.Close()
	}
	if tail := s.reassembler.Pending(); tail != "" {
		s.logger.Debug("discarded unterminated upstream line",
			"bytes", s.reassembler.Discard(),
			"line", utils.Truncate(tail, 256),
		)
	}
	s.queue = nil

	s.logSummary(summary)

	if s.onClose != nil {
		s.onClose(summary)
	}
}

func (s *Session) logSummary(sum Summary) {
	attrs := []any{
		"outcome", string(sum.Outcome),
		"records", sum.Records,
		"malformed", sum.Malformed,
		"duration", sum.Duration,
	}

	switch sum.Outcome {
	case OutcomeCompleted:
		s.logger.Info("stream session completed", attrs...)
	case OutcomeDisconnected:
		s.logger.Info("stream session ended by client", attrs...)
	case OutcomeInternalError:
		s.logger.Error("stream session failed", append(attrs, "error", sum.Err)...)
	default:
		s.logger.Warn("stream session aborted", append(attrs, "error", sum.Err)...)
	}
}

func openOutcome(err error) Outcome {
	if errors.Is(err, upstream.ErrUnreachable) || errors.Is(err, upstream.ErrNotConfigured) {
		return OutcomeUnreachable
	}
	return OutcomeUpstreamError
}
