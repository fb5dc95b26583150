package group

import (
	"context"
	"errors"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/venthub/internal/device"
	"github.com/nerrad567/venthub/internal/infrastructure/metrics"
	"github.com/nerrad567/venthub/internal/protocol"
)

// Target types accepted by Set.
const (
	TargetAll   = "all"
	TargetRoom  = "room"
	TargetFloor = "floor"
)

// ErrUnknownTarget is returned by Set for an unrecognised target type.
var ErrUnknownTarget = errors.New("group: unknown target type")

// Store is the subset of the registry the manager reads and writes.
type Store interface {
	ListAll(ctx context.Context) ([]device.Device, error)
	ListByRoom(ctx context.Context, room string) ([]device.Device, error)
	ListByFloor(ctx context.Context, floor string) ([]device.Device, error)
	UpdatePosition(ctx context.Context, id string, angle int, state device.State) (bool, error)
}

// Commander sends a target angle to one device.
type Commander interface {
	SetTarget(ctx context.Context, address string, angle int) (protocol.TargetAck, error)
}

// Manager applies one angle to every device in a room, floor or the whole site.
type Manager struct {
	store    Store
	cmd      Commander
	limit    int
	logger   device.Logger
	onUpdate func(ctx context.Context, d device.Device)
}

// NewManager creates a group manager. A limit of zero or less lets every
// device in the selection be commanded at once.
func NewManager(store Store, cmd Commander, limit int) *Manager {
	return &Manager{store: store, cmd: cmd, limit: limit, logger: device.NoopLogger{}}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger device.Logger) {
	m.logger = logger
}

// SetOnDeviceUpdated registers a callback invoked for each device that
// accepted a command.
func (m *Manager) SetOnDeviceUpdated(fn func(ctx context.Context, d device.Device)) {
	m.onUpdate = fn
}

// Result is the outcome of one group command. Requested counts the devices
// the selector resolved to; Updated lists those that acknowledged.
type Result struct {
	TargetType string          `json:"target_type"`
	Target     string          `json:"target,omitempty"`
	Angle      int             `json:"angle"`
	Requested  int             `json:"requested"`
	Updated    []device.Device `json:"updated"`
}

// Partial reports whether some selected devices did not acknowledge.
func (r Result) Partial() bool {
	return len(r.Updated) < r.Requested
}

// SetRoomAngle commands every device in room.
func (m *Manager) SetRoomAngle(ctx context.Context, room string, angle int) ([]device.Device, error) {
	res, err := m.Command(ctx, TargetRoom, room, angle)
	return res.Updated, err
}

// SetFloorAngle commands every device on floor.
func (m *Manager) SetFloorAngle(ctx context.Context, floor string, angle int) ([]device.Device, error) {
	res, err := m.Command(ctx, TargetFloor, floor, angle)
	return res.Updated, err
}

// SetAllAngle commands every registered device.
func (m *Manager) SetAllAngle(ctx context.Context, angle int) ([]device.Device, error) {
	res, err := m.Command(ctx, TargetAll, "", angle)
	return res.Updated, err
}

// Set dispatches on targetType; target is ignored for TargetAll.
func (m *Manager) Set(ctx context.Context, targetType, target string, angle int) ([]device.Device, error) {
	res, err := m.Command(ctx, targetType, target, angle)
	return res.Updated, err
}

// Command resolves the selector and applies angle to it, reporting how many
// devices were selected alongside those that were updated.
func (m *Manager) Command(ctx context.Context, targetType, target string, angle int) (Result, error) {
	var (
		devices []device.Device
		err     error
	)
	switch targetType {
	case TargetAll:
		target = ""
		devices, err = m.store.ListAll(ctx)
	case TargetRoom:
		devices, err = m.store.ListByRoom(ctx, target)
	case TargetFloor:
		devices, err = m.store.ListByFloor(ctx, target)
	default:
		return Result{TargetType: targetType, Target: target, Updated: []device.Device{}}, ErrUnknownTarget
	}
	res := Result{
		TargetType: targetType,
		Target:     target,
		Angle:      device.ClampAngle(angle),
		Requested:  len(devices),
		Updated:    []device.Device{},
	}
	if err != nil {
		return res, err
	}

	res.Updated, err = m.apply(ctx, targetType+" "+target, devices, res.Angle)
	return res, err
}

// apply fans the already clamped angle out and waits for every device. Only devices that
// acknowledged appear in the result, in selection order; a result shorter
// than the selection means partial failure. Storage errors from the
// position update are joined and returned alongside the result.
func (m *Manager) apply(ctx context.Context, selector string, devices []device.Device, angle int) ([]device.Device, error) {
	if len(devices) == 0 {
		m.logger.Info("group selector matched no devices", "selector", selector)
		return []device.Device{}, nil
	}

	// Per-device failures are recorded here, never returned to the group,
	// so one failure does not cancel the others.
	results := make([]*device.Device, len(devices))
	storeErrs := make([]error, len(devices))

	var g errgroup.Group
	if m.limit > 0 {
		g.SetLimit(m.limit)
	}
	for i := range devices {
		d := devices[i]
		if !d.Reachable() {
			m.logger.Warn("skipping device without address", "device_id", d.ID, "selector", selector)
			metrics.IncGroupCommand(metrics.ResultSkipped)
			continue
		}
		g.Go(func() error {
			if _, err := m.cmd.SetTarget(ctx, d.Address, angle); err != nil {
				m.logger.Warn("set target failed", "device_id", d.ID, "address", d.Address, "error", err)
				metrics.IncGroupCommand(metrics.ResultFailed)
				return nil
			}
			metrics.IncGroupCommand(metrics.ResultSuccess)

			if _, err := m.store.UpdatePosition(ctx, d.ID, angle, device.StateMoving); err != nil {
				storeErrs[i] = err
			}
			d.Angle = angle
			d.State = device.StateMoving
			results[i] = &d
			return nil
		})
	}
	_ = g.Wait()

	updated := make([]device.Device, 0, len(devices))
	for _, d := range results {
		if d == nil {
			continue
		}
		updated = append(updated, *d)
		if m.onUpdate != nil {
			m.onUpdate(ctx, *d)
		}
	}

	m.logger.Info("group command complete",
		"selector", selector, "angle", angle, "requested", len(devices), "updated", len(updated))
	return updated, errors.Join(storeErrs...)
}

// Summary aggregates the devices of one room or floor.
type Summary struct {
	Name        string          `json:"name"`
	DeviceCount int             `json:"device_count"`
	MeanAngle   int             `json:"mean_angle"`
	Rooms       []string        `json:"rooms,omitempty"`
	Devices     []device.Device `json:"devices"`
}

// GetRoomSummary reads the room's devices from the registry only.
func (m *Manager) GetRoomSummary(ctx context.Context, room string) (Summary, error) {
	devices, err := m.store.ListByRoom(ctx, room)
	if err != nil {
		return Summary{}, err
	}
	return summarise(room, devices), nil
}

// GetFloorSummary reads the floor's devices and lists its non-empty rooms.
func (m *Manager) GetFloorSummary(ctx context.Context, floor string) (Summary, error) {
	devices, err := m.store.ListByFloor(ctx, floor)
	if err != nil {
		return Summary{}, err
	}
	s := summarise(floor, devices)

	seen := make(map[string]bool)
	s.Rooms = make([]string, 0)
	for _, d := range devices {
		if d.Room != "" && !seen[d.Room] {
			seen[d.Room] = true
			s.Rooms = append(s.Rooms, d.Room)
		}
	}
	sort.Strings(s.Rooms)
	return s, nil
}

// MeanAngle returns the mean angle rounded half to even, or
// device.MinAngle for none.
func MeanAngle(devices []device.Device) int {
	if len(devices) == 0 {
		return device.MinAngle
	}
	sum := 0
	for _, d := range devices {
		sum += d.Angle
	}
	return int(math.RoundToEven(float64(sum) / float64(len(devices))))
}

func summarise(name string, devices []device.Device) Summary {
	if devices == nil {
		devices = []device.Device{}
	}
	return Summary{
		Name:        name,
		DeviceCount: len(devices),
		MeanAngle:   MeanAngle(devices),
		Devices:     devices,
	}
}
