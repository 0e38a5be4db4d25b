//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package hangup

import "net"

func peeker(net.Conn) (func() peekResult, bool) {
	return nil, false
}
