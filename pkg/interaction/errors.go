package interaction

import (
	"errors"

	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// Status errors without a model counterpart.
var (
	ErrBusy           = errors.New("device busy")
	ErrRejected       = errors.New("request rejected by device")
	ErrTypeMismatch   = errors.New("value type mismatch")
	ErrUnsupported    = errors.New("service not supported")
	ErrInvalidPayload = errors.New("invalid request payload")
)

// StatusError represents an error response from the device. It unwraps to
// the sentinel matching its status, so errors.Is(err,
// model.ErrObjectNotFound) works on a StatusError.
type StatusError struct {
	Service wire.Service
	Status  wire.Status
	Message string
}

func (e *StatusError) Error() string {
	s := e.Service.String() + ": " + e.Status.String()
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

// Unwrap returns the sentinel error for the status.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case wire.StatusObjectNotFound:
		return model.ErrObjectNotFound
	case wire.StatusAccessDenied:
		return model.ErrAccessDenied
	case wire.StatusInvalidReference:
		return model.ErrInvalidReference
	case wire.StatusAlreadyExists:
		return model.ErrAlreadyExists
	case wire.StatusNotDeletable:
		return model.ErrNotDeletable
	case wire.StatusBusy:
		return ErrBusy
	case wire.StatusRejected:
		return ErrRejected
	case wire.StatusTypeMismatch:
		return ErrTypeMismatch
	case wire.StatusUnsupported:
		return ErrUnsupported
	case wire.StatusInvalidPayload:
		return ErrInvalidPayload
	default:
		return nil
	}
}

// checkStatus turns an error response into a *StatusError.
func checkStatus(service wire.Service, resp *wire.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	return &StatusError{
		Service: service,
		Status:  resp.Status,
		Message: resp.ErrorMessage(),
	}
}
