package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// Error categories reported in Error.Category.
const (
	CategorySystem = "system"
	CategoryNetdb  = "netdb"
	CategoryMisc   = "misc"
)

// Error is the code, category and message triple delivered to OnError
// callbacks. It wraps the underlying error.
type Error struct {
	Code     int
	Category string
	Message  string
	Err      error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError classifies err. Errno values keep their numeric code in the system
// category; resolver failures are placed in the netdb category; everything
// else is system with code -1. A nil err yields nil.
//
// Parameters:
//   - err: The error to classify
//
// Returns:
//   - The classified *Error, or nil
func NewError(err error) *Error {
	if err == nil {
		return nil
	}

	var se *Error
	if errors.As(err, &se) {
		return se
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return &Error{Code: int(errno), Category: CategorySystem, Message: errno.Error(), Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		code := 0
		if dnsErr.IsNotFound {
			code = 1
		}

		return &Error{Code: code, Category: CategoryNetdb, Message: dnsErr.Error(), Err: err}
	}

	if errors.Is(err, io.EOF) {
		return &Error{Code: 2, Category: CategoryMisc, Message: "end of file", Err: err}
	}

	return &Error{Code: -1, Category: CategorySystem, Message: err.Error(), Err: err}
}

// IsDisconnect reports whether err is an ordinary end of a connection (peer
// close, reset, abort, broken pipe or local close). Such errors close the
// connection without an OnError notification.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ENOTCONN) ||
		errors.Is(err, syscall.ESHUTDOWN)
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
