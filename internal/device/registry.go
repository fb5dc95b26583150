package device

import (
	"context"
	"sync"
	"time"
)

// Logger defines the logging interface used across the hub's core packages.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}

// Registry is the authoritative device inventory. It owns the durable
// records; everything else holds copies and routes mutations back here.
//
// Writes to the same id are serialised; writes to different ids do not wait
// on each other at this layer. Reads go straight to the repository.
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	locks  keyedMutex
	logger Logger
	now    func() time.Time
}

// NewRegistry creates a device registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		locks:  keyedMutex{locks: make(map[string]*keyedLock)},
		logger: NoopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetClock overrides the time source used for last_seen.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Upsert inserts d or merges it into the existing record. The angle is
// clamped, the state normalised and LastSeen set to the time of the call.
// Empty room/floor/name never overwrite stored labels.
func (r *Registry) Upsert(ctx context.Context, d Device) error {
	d.Angle = ClampAngle(d.Angle)
	d.State = NormalizeState(d.Angle, d.State)
	if d.PowerSource == "" {
		d.PowerSource = PowerUSB
	}
	seen := r.now()
	d.LastSeen = &seen

	if err := ValidateDevice(&d); err != nil {
		return err
	}

	unlock := r.locks.lock(d.ID)
	defer unlock()

	if err := r.repo.Upsert(ctx, &d); err != nil {
		r.logger.Error("device upsert failed", "device_id", d.ID, "error", err)
		return err
	}
	r.logger.Debug("device upserted", "device_id", d.ID, "address", d.Address, "angle", d.Angle)
	return nil
}

// Get returns a device by id, or ErrDeviceNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	return r.repo.GetByID(ctx, id)
}

// Exists reports whether id is registered.
func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	return r.repo.Exists(ctx, id)
}

// ListAll returns every device ordered by floor, room, name.
func (r *Registry) ListAll(ctx context.Context) ([]Device, error) {
	return r.repo.List(ctx)
}

// ListByRoom returns devices assigned to room.
func (r *Registry) ListByRoom(ctx context.Context, room string) ([]Device, error) {
	return r.repo.ListByRoom(ctx, room)
}

// ListByFloor returns devices assigned to floor.
func (r *Registry) ListByFloor(ctx context.Context, floor string) ([]Device, error) {
	return r.repo.ListByFloor(ctx, floor)
}

// UpdateAssignment relabels a device. Angle and state are untouched.
func (r *Registry) UpdateAssignment(ctx context.Context, id, room, floor string) (bool, error) {
	if err := ValidateLabels(room, floor); err != nil {
		return false, err
	}

	unlock := r.locks.lock(id)
	defer unlock()

	ok, err := r.repo.UpdateAssignment(ctx, id, room, floor)
	if err != nil {
		return false, err
	}
	if ok {
		r.logger.Info("device assigned", "device_id", id, "room", room, "floor", floor)
	}
	return ok, nil
}

// UpdatePosition records a commanded or observed position ahead of the next poll.
func (r *Registry) UpdatePosition(ctx context.Context, id string, angle int, state State) (bool, error) {
	angle = ClampAngle(angle)
	state = NormalizeState(angle, state)

	unlock := r.locks.lock(id)
	defer unlock()

	return r.repo.UpdatePosition(ctx, id, angle, state, r.now())
}

// Delete removes a device. It reports false if id was unknown.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	ok, err := r.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		r.logger.Info("device deleted", "device_id", id)
	}
	return ok, nil
}

// ListRooms returns the distinct non-empty room labels, sorted.
func (r *Registry) ListRooms(ctx context.Context) ([]string, error) {
	return r.repo.DistinctRooms(ctx)
}

// ListFloors returns the distinct non-empty floor labels, sorted.
func (r *Registry) ListFloors(ctx context.Context) ([]string, error) {
	return r.repo.DistinctFloors(ctx)
}

// Count returns the number of registered devices.
func (r *Registry) Count(ctx context.Context) (int, error) {
	return r.repo.Count(ctx)
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
