package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/venthub/internal/device"
)

// Resource paths served by every vent.
const (
	PathPosition = "/vent/position"
	PathTarget   = "/vent/target"
	PathIdentity = "/device/identity"
	PathConfig   = "/device/config"
	PathHealth   = "/device/health"
)

// DefaultRequestTimeout bounds one exchange when none is configured.
const DefaultRequestTimeout = 10 * time.Second

// Position is a vent's reported position.
type Position struct {
	Angle int
	State device.State
}

// TargetAck is the device's answer to a set-target request.
type TargetAck struct {
	Angle         int
	State         device.State
	PreviousAngle int
}

// Identity describes the hardware and firmware of a vent.
type Identity struct {
	ID              string
	FirmwareVersion string
	UptimeS         int
}

// Config holds the labels stored on the vent itself.
type Config struct {
	Room  string
	Floor string
	Name  string
}

// ConfigUpdate carries the labels to change; nil fields are not sent.
type ConfigUpdate struct {
	Room  *string
	Floor *string
	Name  *string
}

// Health is a vent's radio and power telemetry.
type Health struct {
	RSSI         int
	PollPeriodMs int
	PowerSource  device.PowerSource
	FreeHeap     int
	BatteryMv    *int
}

// Client speaks the vent wire protocol. It holds no per-device state and is
// safe for concurrent use; a failed exchange is reported immediately without
// retrying.
type Client struct {
	transport Transport
	timeout   time.Duration
	logger    device.Logger
}

// NewClient creates a protocol client. timeout bounds each exchange;
// 0 selects DefaultRequestTimeout.
func NewClient(transport Transport, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{transport: transport, timeout: timeout, logger: device.NoopLogger{}}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger device.Logger) {
	c.logger = logger
}

// GetPosition reads the current angle and state.
func (c *Client) GetPosition(ctx context.Context, address string) (Position, error) {
	r, err := c.get(ctx, address, "getPosition", PathPosition)
	if err != nil {
		return Position{}, err
	}
	pos, err := decodePosition(r)
	if err != nil {
		return Position{}, &ProtocolError{Address: address, Op: "getPosition", Err: err}
	}
	return pos, nil
}

// SetTarget commands a new angle. The angle is clamped into [90,180] before
// it is sent.
func (c *Client) SetTarget(ctx context.Context, address string, angle int) (TargetAck, error) {
	const op = "setTarget"
	angle = device.ClampAngle(angle)

	payload, err := encodeRecord(map[uint64]any{0: angle})
	if err != nil {
		return TargetAck{}, &ProtocolError{Address: address, Op: op, Err: err}
	}
	r, err := c.put(ctx, address, op, PathTarget, payload)
	if err != nil {
		return TargetAck{}, err
	}

	pos, err := decodePosition(r)
	if err != nil {
		return TargetAck{}, &ProtocolError{Address: address, Op: op, Err: err}
	}
	prev, err := r.intOr(2, device.MinAngle)
	if err != nil {
		return TargetAck{}, &ProtocolError{Address: address, Op: op, Err: err}
	}
	return TargetAck{Angle: pos.Angle, State: pos.State, PreviousAngle: device.ClampAngle(prev)}, nil
}

// GetIdentity reads the EUI, firmware version and uptime.
func (c *Client) GetIdentity(ctx context.Context, address string) (Identity, error) {
	const op = "getIdentity"
	r, err := c.get(ctx, address, op, PathIdentity)
	if err != nil {
		return Identity{}, err
	}

	id, err := r.textField(0)
	if err == nil && (id == nil || *id == "") {
		err = fmt.Errorf("%w: id", ErrMissingField)
	}
	if err != nil {
		return Identity{}, &ProtocolError{Address: address, Op: op, Err: err}
	}
	fw, err1 := r.stringOr(1, "")
	uptime, err2 := r.intOr(2, 0)
	if err := errors.Join(err1, err2); err != nil {
		return Identity{}, &ProtocolError{Address: address, Op: op, Err: err}
	}
	return Identity{ID: *id, FirmwareVersion: fw, UptimeS: uptime}, nil
}

// GetConfig reads the labels stored on the vent.
func (c *Client) GetConfig(ctx context.Context, address string) (Config, error) {
	const op = "getConfig"
	r, err := c.get(ctx, address, op, PathConfig)
	if err != nil {
		return Config{}, err
	}
	cfg, err := decodeConfig(r)
	if err != nil {
		return Config{}, &ProtocolError{Address: address, Op: op, Err: err}
	}
	return cfg, nil
}

// SetConfig writes the non-nil labels and returns the vent's resulting config.
func (c *Client) SetConfig(ctx context.Context, address string, update ConfigUpdate) (Config, error) {
	const op = "setConfig"
	fields := make(map[uint64]any, 3)
	if update.Room != nil {
		fields[0] = *update.Room
	}
	if update.Floor != nil {
		fields[1] = *update.Floor
	}
	if update.Name != nil {
		fields[2] = *update.Name
	}

	payload, err := encodeRecord(fields)
	if err != nil {
		return Config{}, &ProtocolError{Address: address, Op: op, Err: err}
	}
	r, err := c.put(ctx, address, op, PathConfig, payload)
	if err != nil {
		return Config{}, err
	}
	cfg, err := decodeConfig(r)
	if err != nil {
		return Config{}, &ProtocolError{Address: address, Op: op, Err: err}
	}
	return cfg, nil
}

// GetHealth reads radio and power telemetry.
func (c *Client) GetHealth(ctx context.Context, address string) (Health, error) {
	const op = "getHealth"
	r, err := c.get(ctx, address, op, PathHealth)
	if err != nil {
		return Health{}, err
	}

	rssi, err1 := r.intOr(0, 0)
	period, err2 := r.intOr(1, 0)
	power, err3 := r.intOr(2, device.PowerUSB.Code())
	heap, err4 := r.intOr(3, 0)
	battery, err5 := r.intField(4)
	if err := errors.Join(err1, err2, err3, err4, err5); err != nil {
		return Health{}, &ProtocolError{Address: address, Op: op, Err: err}
	}
	return Health{
		RSSI:         rssi,
		PollPeriodMs: period,
		PowerSource:  device.ParsePowerCode(power),
		FreeHeap:     heap,
		BatteryMv:    battery,
	}, nil
}

// Probe reads identity, position, config and health and assembles one
// record. Any failed exchange fails the whole probe: a device is either
// fully read or unreachable. Absent optional fields take their defaults.
func (c *Client) Probe(ctx context.Context, address string) (*device.Device, error) {
	ident, err := c.GetIdentity(ctx, address)
	if err != nil {
		return nil, err
	}
	pos, err := c.GetPosition(ctx, address)
	if err != nil {
		return nil, err
	}
	cfg, err := c.GetConfig(ctx, address)
	if err != nil {
		return nil, err
	}
	health, err := c.GetHealth(ctx, address)
	if err != nil {
		return nil, err
	}

	return &device.Device{
		ID:              ident.ID,
		Address:         address,
		Room:            cfg.Room,
		Floor:           cfg.Floor,
		Name:            cfg.Name,
		Angle:           pos.Angle,
		State:           pos.State,
		FirmwareVersion: ident.FirmwareVersion,
		RSSI:            health.RSSI,
		PowerSource:     health.PowerSource,
		PollPeriodMs:    health.PollPeriodMs,
		FreeHeap:        health.FreeHeap,
		BatteryMv:       health.BatteryMv,
	}, nil
}

func (c *Client) get(ctx context.Context, address, op, path string) (record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := c.transport.Get(ctx, address, path)
	return c.finish(ctx, address, op, payload, err)
}

func (c *Client) put(ctx context.Context, address, op, path string, body []byte) (record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := c.transport.Put(ctx, address, path, body)
	return c.finish(ctx, address, op, payload, err)
}

func (c *Client) finish(ctx context.Context, address, op string, payload []byte, err error) (record, error) {
	if err != nil {
		if !errors.Is(err, ErrTimeout) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		c.logger.Debug("device exchange failed", "address", address, "op", op, "error", err)
		return nil, &ProtocolError{Address: address, Op: op, Err: err}
	}
	r, err := decodeRecord(payload)
	if err != nil {
		return nil, &ProtocolError{Address: address, Op: op, Err: err}
	}
	return r, nil
}

func decodePosition(r record) (Position, error) {
	angle, err1 := r.intOr(0, device.MinAngle)
	code, err2 := r.intOr(1, device.StateClosed.Code())
	if err := errors.Join(err1, err2); err != nil {
		return Position{}, err
	}
	angle = device.ClampAngle(angle)
	return Position{Angle: angle, State: device.NormalizeState(angle, device.ParseStateCode(code))}, nil
}

func decodeConfig(r record) (Config, error) {
	room, err1 := r.stringOr(0, "")
	floor, err2 := r.stringOr(1, "")
	name, err3 := r.stringOr(2, "")
	if err := errors.Join(err1, err2, err3); err != nil {
		return Config{}, err
	}
	return Config{Room: room, Floor: floor, Name: name}, nil
}
