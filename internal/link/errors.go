package link

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBroken is returned once a timeout, stream fault or unframed reply
	// has left the exchange in an unknown position on the stream.
	ErrBroken = errors.New("renderer link broken")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("renderer link closed")
)

// ConnectionError reports a failed connection setup.
type ConnectionError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: gave up after %d attempt(s): %v", e.Addr, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a reply that could not be decoded or lacks
// required fields. It is never retried. An undecodable reply also breaks
// the exchange; a complete reply with bad fields leaves it usable.
type ProtocolError struct {
	Request string
	Reason  string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: invalid reply: %s: %v", e.Request, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: invalid reply: %s", e.Request, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TimeoutError reports a reply that did not arrive in time.
type TimeoutError struct {
	Request string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no reply within %s", e.Request, e.After)
}

func (e *TimeoutError) Timeout() bool { return true }

// StreamError reports a read or write failure on the underlying stream.
type StreamError struct {
	Request string
	Err     error
}

func (e *StreamError) Error() string { return fmt.Sprintf("%s: stream: %v", e.Request, e.Err) }

func (e *StreamError) Unwrap() error { return e.Err }

// IsTransient reports whether err came from the transport rather than the
// renderer's reply. A reconnect may cure a transient error; a ProtocolError
// never is.
func IsTransient(err error) bool {
	var te *TimeoutError
	var se *StreamError
	return errors.As(err, &te) || errors.As(err, &se) || errors.Is(err, ErrBroken)
}
