// Package hangup notices when the client side of a server connection goes
// away while the server has nothing to write.
//
// fasthttp only learns about a vanished client when a write to the socket
// fails. A stream that is waiting on a slow upstream writes nothing, so the
// Watcher waits for the socket to become readable instead and peeks at it:
// end of file or a reset means the client is gone. Peeking consumes no bytes,
// so the connection stays usable for the next keep-alive request once the
// Watcher is stopped.
package hangup

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Watcher watches one connection until Stop is called or the peer hangs up.
type Watcher struct {
	conn    net.Conn
	done    chan struct{}
	stopped atomic.Bool
	once    sync.Once
}

// Watch starts watching conn and calls onHangup, at most once and on its own
// goroutine, when the peer closes or resets the connection.
//
// Watching stops without calling onHangup when the peer sends more data,
// since a pipelined request cannot be told apart from a live client. On
// platforms or connections that cannot be peeked at, such as TLS or
// in-memory connections, Watch returns a Watcher that never fires.
func Watch(conn net.Conn, onHangup func()) *Watcher {
	w := &Watcher{conn: conn, done: make(chan struct{})}

	peek, ok := peeker(conn)
	if !ok {
		w.conn = nil
		close(w.done)
		return w
	}

	// fasthttp may have left a read deadline from reading the request.
	_ = conn.SetReadDeadline(time.Time{})

	go func() {
		defer close(w.done)
		if peek() == peerGone && !w.stopped.Load() && onHangup != nil {
			onHangup()
		}
	}()

	return w
}

// Stop ends the watch and waits for the watching goroutine to exit. When it
// returns the connection is back to having no read deadline, ready for the
// server to read the next request. Stop is safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		if w.conn == nil {
			return
		}
		w.stopped.Store(true)
		_ = w.conn.SetReadDeadline(time.Unix(1, 0))
		<-w.done
		_ = w.conn.SetReadDeadline(time.Time{})
	})
}

type peekResult int

const (
	// peerGone means end of file or a connection error.
	peerGone peekResult = iota
	// peerData means bytes are waiting to be read.
	peerData
	// peerUnknown means the wait was interrupted, e.g. by Stop.
	peerUnknown
)
