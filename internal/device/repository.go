package device

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository defines device persistence. SQLiteRepository is the production
// implementation; tests substitute go-sqlmock or an in-memory database.
type Repository interface {
	// Upsert inserts d, or replaces an existing record while keeping stored
	// room/floor/name wherever the incoming label is empty.
	Upsert(ctx context.Context, d *Device) error

	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	Exists(ctx context.Context, id string) (bool, error)

	// List returns all devices ordered by floor, room, name.
	List(ctx context.Context) ([]Device, error)
	ListByRoom(ctx context.Context, room string) ([]Device, error)
	ListByFloor(ctx context.Context, floor string) ([]Device, error)

	// UpdateAssignment changes room and floor only. It reports false for an unknown id.
	UpdateAssignment(ctx context.Context, id, room, floor string) (bool, error)

	// UpdatePosition changes angle, state and last_seen. It reports false for an unknown id.
	UpdatePosition(ctx context.Context, id string, angle int, state State, seen time.Time) (bool, error)

	Delete(ctx context.Context, id string) (bool, error)

	// DistinctRooms and DistinctFloors return sorted non-empty labels.
	DistinctRooms(ctx context.Context) ([]string, error)
	DistinctFloors(ctx context.Context) ([]string, error)

	Count(ctx context.Context) (int, error)
}

// SQLiteRepository implements Repository on the devices table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, address, room, floor, name, angle, state, firmware_version,
	rssi, power_source, poll_period_ms, free_heap, battery_mv, last_seen`

const listOrder = ` ORDER BY floor, room, name, id`

const upsertQuery = `
	INSERT INTO devices (` + deviceColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		address          = excluded.address,
		room             = CASE WHEN excluded.room  = '' THEN devices.room  ELSE excluded.room  END,
		floor            = CASE WHEN excluded.floor = '' THEN devices.floor ELSE excluded.floor END,
		name             = CASE WHEN excluded.name  = '' THEN devices.name  ELSE excluded.name  END,
		angle            = excluded.angle,
		state            = excluded.state,
		firmware_version = excluded.firmware_version,
		rssi             = excluded.rssi,
		power_source     = excluded.power_source,
		poll_period_ms   = excluded.poll_period_ms,
		free_heap        = excluded.free_heap,
		battery_mv       = excluded.battery_mv,
		last_seen        = excluded.last_seen`

// Upsert inserts or merges a device record in a single statement.
func (r *SQLiteRepository) Upsert(ctx context.Context, d *Device) error {
	_, err := r.db.ExecContext(ctx, upsertQuery,
		d.ID,
		d.Address,
		d.Room,
		d.Floor,
		d.Name,
		d.Angle,
		string(d.State),
		d.FirmwareVersion,
		d.RSSI,
		string(d.PowerSource),
		d.PollPeriodMs,
		d.FreeHeap,
		nullableInt(d.BatteryMv),
		nullableTime(d.LastSeen),
	)
	if err != nil {
		return storageErr("upsert", d.ID, err)
	}
	return nil
}

// GetByID retrieves a device by its EUI.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, storageErr("get", id, err)
	}
	return d, nil
}

// Exists reports whether a record with id is stored.
func (r *SQLiteRepository) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM devices WHERE id = ?`, id).Scan(&n); err != nil {
		return false, storageErr("exists", id, err)
	}
	return n > 0, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, "list", `SELECT `+deviceColumns+` FROM devices`+listOrder)
}

// ListByRoom retrieves devices whose room equals room exactly.
func (r *SQLiteRepository) ListByRoom(ctx context.Context, room string) ([]Device, error) {
	return r.queryDevices(ctx, "list by room", `SELECT `+deviceColumns+` FROM devices WHERE room = ?`+listOrder, room)
}

// ListByFloor retrieves devices whose floor equals floor exactly.
func (r *SQLiteRepository) ListByFloor(ctx context.Context, floor string) ([]Device, error) {
	return r.queryDevices(ctx, "list by floor", `SELECT `+deviceColumns+` FROM devices WHERE floor = ?`+listOrder, floor)
}

// UpdateAssignment sets room and floor.
func (r *SQLiteRepository) UpdateAssignment(ctx context.Context, id, room, floor string) (bool, error) {
	return r.execAffecting(ctx, "update assignment", id,
		`UPDATE devices SET room = ?, floor = ? WHERE id = ?`, room, floor, id)
}

// UpdatePosition sets angle, state and last_seen.
func (r *SQLiteRepository) UpdatePosition(ctx context.Context, id string, angle int, state State, seen time.Time) (bool, error) {
	return r.execAffecting(ctx, "update position", id,
		`UPDATE devices SET angle = ?, state = ?, last_seen = ? WHERE id = ?`,
		angle, string(state), seen.UTC().Format(time.RFC3339Nano), id)
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) (bool, error) {
	return r.execAffecting(ctx, "delete", id, `DELETE FROM devices WHERE id = ?`, id)
}

// DistinctRooms returns sorted non-empty room labels.
func (r *SQLiteRepository) DistinctRooms(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, "list rooms", `SELECT DISTINCT room FROM devices WHERE room != '' ORDER BY room`)
}

// DistinctFloors returns sorted non-empty floor labels.
func (r *SQLiteRepository) DistinctFloors(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, "list floors", `SELECT DISTINCT floor FROM devices WHERE floor != '' ORDER BY floor`)
}

// Count returns the number of stored devices.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&n); err != nil {
		return 0, storageErr("count", "", err)
	}
	return n, nil
}

func (r *SQLiteRepository) execAffecting(ctx context.Context, op, id, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, storageErr(op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr(op, id, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, op, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, "", err)
	}
	defer rows.Close()

	devices := make([]Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, storageErr(op, "", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, "", err)
	}
	return devices, nil
}

func (r *SQLiteRepository) queryStrings(ctx context.Context, op, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr(op, "", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, storageErr(op, "", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, "", err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*Device, error) {
	var (
		d        Device
		state    string
		power    string
		battery  sql.NullInt64
		lastSeen sql.NullString
	)
	err := s.Scan(
		&d.ID, &d.Address, &d.Room, &d.Floor, &d.Name, &d.Angle, &state,
		&d.FirmwareVersion, &d.RSSI, &power, &d.PollPeriodMs, &d.FreeHeap,
		&battery, &lastSeen,
	)
	if err != nil {
		return nil, err
	}

	d.State = ParseState(state)
	d.PowerSource = ParsePowerSource(power)
	if battery.Valid {
		mv := int(battery.Int64)
		d.BatteryMv = &mv
	}
	if lastSeen.Valid && lastSeen.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, lastSeen.String); err == nil {
			d.LastSeen = &t
		}
	}
	return &d, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
