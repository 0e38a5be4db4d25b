//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package hangup

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func peeker(conn net.Conn) (func() peekResult, bool) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, false
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return nil, false
	}

	return func() peekResult {
		result := peerUnknown
		var buf [1]byte

		// rc.Read parks on the runtime poller until the socket is readable
		// or the read deadline passes.
		err := rc.Read(func(fd uintptr) bool {
			for {
				n, _, rerr := unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK)
				switch {
				case rerr == unix.EINTR:
					continue
				case rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK:
					return false
				case rerr != nil, n == 0:
					result = peerGone
				default:
					result = peerData
				}
				return true
			}
		})
		if err != nil {
			return peerUnknown
		}
		return result
	}, true
}
