package device

import (
	"math"
	"strings"
	"time"
)

// Angle limits in degrees. 90 is fully closed, 180 fully open.
const (
	MinAngle = 90
	MaxAngle = 180
)

// State is the physical state of a vent. It is derived from the angle, except
// for StateMoving which marks a commanded move that a poll has not yet confirmed.
type State string

// Vent states.
const (
	StateOpen    State = "open"
	StateClosed  State = "closed"
	StatePartial State = "partial"
	StateMoving  State = "moving"
)

// Wire codes for State.
var stateCodes = map[State]int{
	StateOpen:    0,
	StateClosed:  1,
	StatePartial: 2,
	StateMoving:  3,
}

// Code returns the wire code of s.
func (s State) Code() int {
	if c, ok := stateCodes[s]; ok {
		return c
	}
	return stateCodes[StateClosed]
}

// ParseState converts a stored or user-supplied state name. Unknown values map to closed.
func ParseState(s string) State {
	st := State(strings.ToLower(s))
	if _, ok := stateCodes[st]; ok {
		return st
	}
	return StateClosed
}

// ParseStateCode converts a wire code. Unknown codes map to closed.
func ParseStateCode(code int) State {
	for s, c := range stateCodes {
		if c == code {
			return s
		}
	}
	return StateClosed
}

// PowerSource identifies how a vent is powered.
type PowerSource string

// Power sources.
const (
	PowerUSB     PowerSource = "usb"
	PowerBattery PowerSource = "battery"
)

// Code returns the wire code of p.
func (p PowerSource) Code() int {
	if p == PowerBattery {
		return 1
	}
	return 0
}

// ParsePowerSource converts a stored power source name. Unknown values map to usb.
func ParsePowerSource(s string) PowerSource {
	if PowerSource(strings.ToLower(s)) == PowerBattery {
		return PowerBattery
	}
	return PowerUSB
}

// ParsePowerCode converts a wire code. Unknown codes map to usb.
func ParsePowerCode(code int) PowerSource {
	if code == 1 {
		return PowerBattery
	}
	return PowerUSB
}

// Device is one physical vent as recorded in the registry.
type Device struct {
	// ID is the hardware EUI. It never changes once the record exists.
	ID string `json:"id"`

	// Address is the current mesh address. Empty means known but unreachable.
	Address string `json:"address"`

	Room  string `json:"room"`
	Floor string `json:"floor"`
	Name  string `json:"name"`

	Angle int   `json:"angle"`
	State State `json:"state"`

	FirmwareVersion string      `json:"firmware_version"`
	RSSI            int         `json:"rssi"`
	PowerSource     PowerSource `json:"power_source"`
	PollPeriodMs    int         `json:"poll_period_ms"`
	FreeHeap        int         `json:"free_heap"`
	BatteryMv       *int        `json:"battery_mv,omitempty"`

	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Reachable reports whether network operations may target the device.
func (d *Device) Reachable() bool {
	return d.Address != ""
}

// PositionPercent returns the opening as 0..100.
func (d *Device) PositionPercent() int {
	return int(math.Round(float64(ClampAngle(d.Angle)-MinAngle) / float64(MaxAngle-MinAngle) * 100))
}

// ClampAngle limits angle to [MinAngle, MaxAngle].
func ClampAngle(angle int) int {
	return min(max(angle, MinAngle), MaxAngle)
}

// AngleFromPercent converts a 0..100 opening into degrees.
func AngleFromPercent(percent int) int {
	percent = min(max(percent, 0), 100)
	return MinAngle + int(math.Round(float64(percent)*float64(MaxAngle-MinAngle)/100))
}

// StateFromAngle derives the resting state for an angle.
func StateFromAngle(angle int) State {
	switch ClampAngle(angle) {
	case MinAngle:
		return StateClosed
	case MaxAngle:
		return StateOpen
	default:
		return StatePartial
	}
}

// NormalizeState keeps StateMoving and otherwise derives the state from angle,
// so that closed holds iff the angle is 90 unless a move is in flight.
func NormalizeState(angle int, state State) State {
	if state == StateMoving {
		return StateMoving
	}
	return StateFromAngle(angle)
}
