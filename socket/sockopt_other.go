//go:build !(linux || darwin || freebsd)

package socket

import (
	"errors"
	"net"
	"syscall"
)

// ReusePortSupported reports whether SO_REUSEPORT can be set on this platform.
const ReusePortSupported = false

var errUnsupported = errors.New("socket: option not supported on this platform")

// listenControl keeps the platform defaults; address and port reuse are only
// configurable on unix systems.
func listenControl(_, _ bool) func(network, address string, c syscall.RawConn) error {
	return nil
}

func getReceiveBuffer(*net.TCPConn) (int, error) { return 0, errUnsupported }

func getSendBuffer(*net.TCPConn) (int, error) { return 0, errUnsupported }
