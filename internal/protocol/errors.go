package protocol

import (
	"errors"
	"fmt"
)

// Sentinel causes carried inside a ProtocolError.
var (
	// ErrTimeout is returned when no response arrives within the request timeout.
	ErrTimeout = errors.New("protocol: timeout")

	// ErrNonSuccess is returned when the device answers with a non-2.xx code.
	ErrNonSuccess = errors.New("protocol: non-success response")

	// ErrDecode is returned when a payload is not a valid record.
	ErrDecode = errors.New("protocol: malformed payload")

	// ErrMissingField is returned when a required field is absent from a response.
	ErrMissingField = errors.New("protocol: missing required field")
)

// ProtocolError is a failed exchange with one device. Callers treat the
// device as unreachable for that operation.
type ProtocolError struct {
	Address string
	Op      string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol %s %s: %v", e.Op, e.Address, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
