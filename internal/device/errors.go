package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when a record fails validation.
	ErrInvalidDevice = errors.New("device: invalid")
)

// StorageError reports a failed registry read or write. It is fatal to the
// calling operation and always propagated.
type StorageError struct {
	Op  string
	ID  string
	Err error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("device storage %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("device storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op, id string, err error) error {
	return &StorageError{Op: op, ID: id, Err: err}
}
