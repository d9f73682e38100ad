package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the service completed successfully.
	StatusSuccess Status = 0

	// StatusObjectNotFound indicates the referenced object does not exist.
	StatusObjectNotFound Status = 1

	// StatusAccessDenied indicates the client may not access the object.
	StatusAccessDenied Status = 2

	// StatusInvalidReference indicates a malformed object reference.
	StatusInvalidReference Status = 3

	// StatusAlreadyExists indicates the object to create already exists.
	StatusAlreadyExists Status = 4

	// StatusNotDeletable indicates the object is fixed by configuration.
	StatusNotDeletable Status = 5

	// StatusBusy indicates the device cannot serve the request now.
	StatusBusy Status = 6

	// StatusRejected indicates the device refused a write, e.g. an RCB
	// field that cannot change in the current state.
	StatusRejected Status = 7

	// StatusTypeMismatch indicates a written value has the wrong type.
	StatusTypeMismatch Status = 8

	// StatusUnsupported indicates the service is not supported.
	StatusUnsupported Status = 9

	// StatusInvalidPayload indicates the request payload could not be decoded.
	StatusInvalidPayload Status = 10
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusObjectNotFound:
		return "OBJECT_NOT_FOUND"
	case StatusAccessDenied:
		return "ACCESS_DENIED"
	case StatusInvalidReference:
		return "INVALID_REFERENCE"
	case StatusAlreadyExists:
		return "ALREADY_EXISTS"
	case StatusNotDeletable:
		return "NOT_DELETABLE"
	case StatusBusy:
		return "BUSY"
	case StatusRejected:
		return "REJECTED"
	case StatusTypeMismatch:
		return "TYPE_MISMATCH"
	case StatusUnsupported:
		return "UNSUPPORTED"
	case StatusInvalidPayload:
		return "INVALID_PAYLOAD"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}
