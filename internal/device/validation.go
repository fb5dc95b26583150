package device

import (
	"fmt"
	"strings"
)

const (
	maxIDLength    = 64
	maxLabelLength = 64
)

// ValidateDevice checks a record before it is written.
// The angle must already be clamped; callers clamp values from the wire.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidDevice)
	}
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidDevice, maxIDLength)
	}
	if d.Angle < MinAngle || d.Angle > MaxAngle {
		return fmt.Errorf("%w: angle %d outside [%d,%d]", ErrInvalidDevice, d.Angle, MinAngle, MaxAngle)
	}
	if _, ok := stateCodes[d.State]; !ok {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidDevice, d.State)
	}
	return ValidateLabels(d.Room, d.Floor, d.Name)
}

// ValidateLabels checks user-assigned room, floor and name labels.
func ValidateLabels(labels ...string) error {
	for _, l := range labels {
		if len(l) > maxLabelLength {
			return fmt.Errorf("%w: label %q exceeds %d characters", ErrInvalidDevice, l, maxLabelLength)
		}
	}
	return nil
}
