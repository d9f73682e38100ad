package client

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// ErrNotConnected is returned by every operation other than Connect while
// the session is not connected. No I/O is attempted.
var ErrNotConnected = errors.New("session not connected")

// ConnectErrorKind classifies a failed Connect.
type ConnectErrorKind uint8

const (
	ConnectOther ConnectErrorKind = iota
	ConnectTimeout
	ConnectRefused
	ConnectAlreadyConnected
)

// String returns the kind name.
func (k ConnectErrorKind) String() string {
	switch k {
	case ConnectTimeout:
		return "timeout"
	case ConnectRefused:
		return "refused"
	case ConnectAlreadyConnected:
		return "already connected"
	default:
		return "other"
	}
}

// ConnectError is returned by Session.Connect.
type ConnectError struct {
	Kind     ConnectErrorKind
	Endpoint Endpoint
	Err      error
}

func (e *ConnectError) Error() string {
	msg := "connect " + e.Endpoint.String() + ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// classifyDialError maps a dial failure to a ConnectErrorKind.
func classifyDialError(err error) ConnectErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ConnectTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ConnectRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ConnectTimeout
	}
	return ConnectOther
}
