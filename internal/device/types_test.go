package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampAngle(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{999, 180},
		{-50, 90},
		{0, 90},
		{90, 90},
		{135, 135},
		{180, 180},
		{181, 180},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampAngle(tt.in), "ClampAngle(%d)", tt.in)
	}
}

func TestStateFromAngle(t *testing.T) {
	assert.Equal(t, StateClosed, StateFromAngle(90))
	assert.Equal(t, StateClosed, StateFromAngle(10))
	assert.Equal(t, StateOpen, StateFromAngle(180))
	assert.Equal(t, StatePartial, StateFromAngle(135))
}

func TestNormalizeState(t *testing.T) {
	assert.Equal(t, StateMoving, NormalizeState(90, StateMoving))
	assert.Equal(t, StateClosed, NormalizeState(90, StateOpen))
	assert.Equal(t, StatePartial, NormalizeState(120, StateClosed))
	assert.Equal(t, StateOpen, NormalizeState(180, ""))
}

func TestPositionPercent(t *testing.T) {
	tests := []struct {
		angle, want int
	}{
		{90, 0},
		{135, 50},
		{180, 100},
		{100, 11},
		{999, 100},
	}
	for _, tt := range tests {
		d := Device{Angle: tt.angle}
		assert.Equal(t, tt.want, d.PositionPercent(), "angle %d", tt.angle)
	}

	assert.Equal(t, 90, AngleFromPercent(0))
	assert.Equal(t, 135, AngleFromPercent(50))
	assert.Equal(t, 180, AngleFromPercent(150))
}

func TestWireCodes(t *testing.T) {
	for _, s := range []State{StateOpen, StateClosed, StatePartial, StateMoving} {
		assert.Equal(t, s, ParseStateCode(s.Code()))
	}
	assert.Equal(t, 0, StateOpen.Code())
	assert.Equal(t, 3, StateMoving.Code())
	assert.Equal(t, StateClosed, ParseStateCode(42))
	assert.Equal(t, StateClosed, ParseState("bogus"))

	assert.Equal(t, PowerBattery, ParsePowerCode(1))
	assert.Equal(t, PowerUSB, ParsePowerCode(7))
	assert.Equal(t, 1, PowerBattery.Code())
	assert.Equal(t, PowerUSB, ParsePowerSource(""))
}

func TestValidateDevice(t *testing.T) {
	valid := Device{ID: "00124b0001abcdef", Angle: 90, State: StateClosed}
	assert.NoError(t, ValidateDevice(&valid))

	noID := valid
	noID.ID = " "
	assert.ErrorIs(t, ValidateDevice(&noID), ErrInvalidDevice)

	badAngle := valid
	badAngle.Angle = 200
	assert.ErrorIs(t, ValidateDevice(&badAngle), ErrInvalidDevice)

	badState := valid
	badState.State = "ajar"
	assert.ErrorIs(t, ValidateDevice(&badState), ErrInvalidDevice)

	assert.ErrorIs(t, ValidateDevice(nil), ErrInvalidDevice)
}
