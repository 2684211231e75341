package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	masterdata "parking-monitor/internal/masterdata/domain"
)

const defaultZonesTable = "zones"

// ZoneRepository is a Postgres implementation for zones.
type ZoneRepository struct {
	db    DBTX
	table string
}

// NewZoneRepository constructs a repository.
func NewZoneRepository(db DBTX, opts ...ZoneOption) *ZoneRepository {
	repo := &ZoneRepository{db: db, table: defaultZonesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ZoneOption configures the repository.
type ZoneOption func(*ZoneRepository)

// WithZoneTable overrides the default table name.
func WithZoneTable(table string) ZoneOption {
	return func(repo *ZoneRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a zone by code.
func (r *ZoneRepository) Get(ctx context.Context, code string) (*masterdata.Zone, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("zone repo: nil db")
	}
	if code == "" {
		return nil, errors.New("zone repo: empty code")
	}

	query := fmt.Sprintf(`
SELECT code, name, total_slots, daily_target, created_at
FROM %s
WHERE code = $1
LIMIT 1`, r.table)

	var zone masterdata.Zone
	if err := r.db.QueryRowContext(ctx, query, code).Scan(
		&zone.Code,
		&zone.Name,
		&zone.TotalSlots,
		&zone.DailyTarget,
		&zone.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	zone.CreatedAt = zone.CreatedAt.UTC()
	return &zone, nil
}

// List loads all zones ordered by name.
func (r *ZoneRepository) List(ctx context.Context) ([]masterdata.Zone, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("zone repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT code, name, total_slots, daily_target, created_at
FROM %s
ORDER BY name ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Zone
	for rows.Next() {
		var zone masterdata.Zone
		if err := rows.Scan(
			&zone.Code,
			&zone.Name,
			&zone.TotalSlots,
			&zone.DailyTarget,
			&zone.CreatedAt,
		); err != nil {
			return nil, err
		}
		zone.CreatedAt = zone.CreatedAt.UTC()
		result = append(result, zone)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a zone.
func (r *ZoneRepository) Save(ctx context.Context, zone *masterdata.Zone) error {
	if r == nil || r.db == nil {
		return errors.New("zone repo: nil db")
	}
	if zone == nil {
		return errors.New("zone repo: nil zone")
	}
	if err := zone.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	code,
	name,
	total_slots,
	daily_target
) VALUES (
	$1, $2, $3, $4
)
ON CONFLICT (code)
DO UPDATE SET
	name = EXCLUDED.name,
	total_slots = EXCLUDED.total_slots,
	daily_target = EXCLUDED.daily_target`, r.table)

	if _, err := r.db.ExecContext(ctx, query, zone.Code, zone.Name, zone.TotalSlots, zone.DailyTarget); err != nil {
		return err
	}
	if zone.CreatedAt.IsZero() {
		zone.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Delete removes a zone. Devices, samples, parking logs and alerts go with it
// through ON DELETE CASCADE foreign keys.
func (r *ZoneRepository) Delete(ctx context.Context, code string) error {
	if r == nil || r.db == nil {
		return errors.New("zone repo: nil db")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE code = $1`, r.table)
	res, err := r.db.ExecContext(ctx, query, code)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return masterdata.ErrZoneNotFound
	}
	return nil
}
