//go:build linux || darwin || freebsd

package socket

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ReusePortSupported reports whether SO_REUSEPORT can be set on this platform.
const ReusePortSupported = true

func listenControl(reuseAddress, reusePort bool) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(reuseAddress))
			if sockErr != nil || !reusePort {
				return
			}

			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		})
		if err != nil {
			return err
		}

		return sockErr
	}
}

func getReceiveBuffer(conn *net.TCPConn) (int, error) {
	return getsockoptInt(conn, unix.SO_RCVBUF)
}

func getSendBuffer(conn *net.TCPConn) (int, error) {
	return getsockoptInt(conn, unix.SO_SNDBUF)
}

func getsockoptInt(conn *net.TCPConn, opt int) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}

	var (
		n      int
		optErr error
	)
	err = raw.Control(func(fd uintptr) {
		n, optErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, opt)
	})
	if err != nil {
		return 0, err
	}

	return n, optErr
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
