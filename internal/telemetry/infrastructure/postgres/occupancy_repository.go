package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	telemetry "parking-monitor/internal/telemetry/domain"
)

const defaultParkingLogsTable = "parking_logs"

// OccupancyRepository is a Postgres implementation of the occupancy log.
type OccupancyRepository struct {
	db    *sql.DB
	table string
}

// NewOccupancyRepository constructs a repository.
func NewOccupancyRepository(db *sql.DB) *OccupancyRepository {
	return &OccupancyRepository{db: db, table: defaultParkingLogsTable}
}

// Append inserts an occupancy event. There is no uniqueness constraint.
func (r *OccupancyRepository) Append(ctx context.Context, event *telemetry.OccupancyEvent) error {
	if r == nil || r.db == nil {
		return errors.New("occupancy repo: nil db")
	}
	if event == nil || event.DeviceCode == "" || event.Timestamp.IsZero() {
		return errors.New("occupancy repo: invalid event")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (device_code, is_occupied, ts, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id`, r.table)
	return r.db.QueryRowContext(ctx, query, event.DeviceCode, event.Occupied, event.Timestamp.UTC(), event.CreatedAt.UTC()).Scan(&event.ID)
}

// ListByDevice returns events of a device within [from, to), newest first.
func (r *OccupancyRepository) ListByDevice(ctx context.Context, deviceCode string, from, to time.Time) ([]telemetry.OccupancyEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("occupancy repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, device_code, is_occupied, ts, created_at
FROM %s
WHERE device_code = $1 AND ts >= $2 AND ts < $3
ORDER BY ts DESC, id DESC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, deviceCode, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []telemetry.OccupancyEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LatestFor returns the newest event of a device. Uses the (device_code, ts DESC) index.
func (r *OccupancyRepository) LatestFor(ctx context.Context, deviceCode string) (*telemetry.OccupancyEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("occupancy repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, device_code, is_occupied, ts, created_at
FROM %s
WHERE device_code = $1
ORDER BY ts DESC, id DESC
LIMIT 1`, r.table)

	event, err := scanEvent(r.db.QueryRowContext(ctx, query, deviceCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return event, nil
}

// LatestAll returns the newest event per device in a single DISTINCT ON scan.
func (r *OccupancyRepository) LatestAll(ctx context.Context) (map[string]telemetry.OccupancyEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("occupancy repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT DISTINCT ON (device_code) id, device_code, is_occupied, ts, created_at
FROM %s
ORDER BY device_code, ts DESC, id DESC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]telemetry.OccupancyEvent)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result[event.DeviceCode] = *event
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountByDevice counts events per device in [from, to).
func (r *OccupancyRepository) CountByDevice(ctx context.Context, from, to time.Time) (map[string]int, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("occupancy repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT device_code, COUNT(*)
FROM %s
WHERE ts >= $1 AND ts < $2
GROUP BY device_code`, r.table)

	rows, err := r.db.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var code string
		var count int
		if err := rows.Scan(&code, &count); err != nil {
			return nil, err
		}
		result[code] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type eventScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row eventScanner) (*telemetry.OccupancyEvent, error) {
	var event telemetry.OccupancyEvent
	if err := row.Scan(&event.ID, &event.DeviceCode, &event.Occupied, &event.Timestamp, &event.CreatedAt); err != nil {
		return nil, err
	}
	event.Timestamp = event.Timestamp.UTC()
	event.CreatedAt = event.CreatedAt.UTC()
	return &event, nil
}
