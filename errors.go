package frameserv

import (
	"errors"
	"io"
	"strings"
)

var (
	// ErrInvalidArgument reports a programmer error such as pushing a nil
	// IoContext back into the pool.
	ErrInvalidArgument = errors.New("frameserv: invalid argument")

	// ErrTooLong reports that a frame's body_len is negative or exceeds
	// Server.MaxBodyLen.
	ErrTooLong = errors.New("frameserv: body length exceeds configured limit")

	// ErrServerClosed is returned by Start when called on a server that is
	// shutting down or already stopped.
	ErrServerClosed = errors.New("frameserv: server closed")

	// ErrConcurrencyLimit is the cause named in the accept loop's log line
	// when the worker pool cannot accept any more connections because
	// Server.MaxWorkers concurrent connections are already being served. It
	// is not returned to any caller.
	ErrConcurrencyLimit = errors.New("frameserv: too many concurrent connections")
)

// isExpectedCloseError reports whether err is one of the ordinary ways a
// peer goes away (reset, abrupt EOF, already-closed descriptor) rather than
// a genuine server-side fault. workerFunc uses this to decide whether an
// error from WorkerFunc is worth a log line under normal verbosity.
func isExpectedCloseError(err error) bool {
	if err == nil || err == io.EOF {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "reset by peer") ||
		strings.Contains(s, "unexpected EOF") ||
		strings.Contains(s, "i/o timeout") ||
		strings.Contains(s, "use of closed network connection")
}
