package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	masterdata "parking-monitor/internal/masterdata/domain"
)

const defaultDevicesTable = "devices"

// DeviceRepository is a Postgres implementation for devices.
type DeviceRepository struct {
	db    DBTX
	table string
}

// NewDeviceRepository constructs a repository.
func NewDeviceRepository(db DBTX, opts ...DeviceOption) *DeviceRepository {
	repo := &DeviceRepository{db: db, table: defaultDevicesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// DeviceOption configures the repository.
type DeviceOption func(*DeviceRepository)

// WithDeviceTable overrides the default table name.
func WithDeviceTable(table string) DeviceOption {
	return func(repo *DeviceRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a device by code.
func (r *DeviceRepository) Get(ctx context.Context, code string) (*masterdata.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	if code == "" {
		return nil, errors.New("device repo: empty code")
	}

	query := fmt.Sprintf(`
SELECT device_code, zone_code, slot_number, is_active, last_seen
FROM %s
WHERE device_code = $1
LIMIT 1`, r.table)

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return device, nil
}

// List loads all devices ordered by zone and slot.
func (r *DeviceRepository) List(ctx context.Context) ([]masterdata.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT device_code, zone_code, slot_number, is_active, last_seen
FROM %s
ORDER BY zone_code ASC, slot_number ASC`, r.table)
	return r.queryDevices(ctx, query)
}

// ListByZone loads devices for a zone.
func (r *DeviceRepository) ListByZone(ctx context.Context, zoneCode string) ([]masterdata.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	if zoneCode == "" {
		return nil, errors.New("device repo: empty zone code")
	}
	query := fmt.Sprintf(`
SELECT device_code, zone_code, slot_number, is_active, last_seen
FROM %s
WHERE zone_code = $1
ORDER BY slot_number ASC`, r.table)
	return r.queryDevices(ctx, query, zoneCode)
}

// ListSilentActive loads active devices never seen or last seen before cutoff.
func (r *DeviceRepository) ListSilentActive(ctx context.Context, cutoff time.Time) ([]masterdata.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT device_code, zone_code, slot_number, is_active, last_seen
FROM %s
WHERE is_active AND (last_seen IS NULL OR last_seen < $1)
ORDER BY device_code ASC`, r.table)
	return r.queryDevices(ctx, query, cutoff.UTC())
}

// Save upserts a device.
func (r *DeviceRepository) Save(ctx context.Context, device *masterdata.Device) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	if device == nil {
		return errors.New("device repo: nil device")
	}
	if err := device.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	device_code,
	zone_code,
	slot_number,
	is_active,
	last_seen
) VALUES (
	$1, $2, $3, $4, $5
)
ON CONFLICT (device_code)
DO UPDATE SET
	zone_code = EXCLUDED.zone_code,
	slot_number = EXCLUDED.slot_number,
	is_active = EXCLUDED.is_active`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		device.Code,
		device.ZoneCode,
		device.SlotNumber,
		device.Active,
		nullableTime(device.LastSeen),
	)
	return err
}

// TouchLastSeen advances last_seen monotonically.
func (r *DeviceRepository) TouchLastSeen(ctx context.Context, code string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET last_seen = GREATEST(COALESCE(last_seen, $2), $2)
WHERE device_code = $1`, r.table)

	res, err := r.db.ExecContext(ctx, query, code, at.UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return masterdata.ErrDeviceNotFound
	}
	return nil
}

func (r *DeviceRepository) queryDevices(ctx context.Context, query string, args ...any) ([]masterdata.Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type deviceScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row deviceScanner) (*masterdata.Device, error) {
	var device masterdata.Device
	var lastSeen sql.NullTime
	if err := row.Scan(
		&device.Code,
		&device.ZoneCode,
		&device.SlotNumber,
		&device.Active,
		&lastSeen,
	); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		seen := lastSeen.Time.UTC()
		device.LastSeen = &seen
	}
	return &device, nil
}

func nullableTime(value *time.Time) sql.NullTime {
	if value == nil || value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
