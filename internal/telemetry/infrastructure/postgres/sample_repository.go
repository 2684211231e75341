package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	telemetry "parking-monitor/internal/telemetry/domain"
)

const (
	defaultSamplesTable = "telemetry_samples"

	uniqueViolationCode = "23505"
)

// SampleRepository is a Postgres implementation of the telemetry store.
type SampleRepository struct {
	db    *sql.DB
	table string
}

// NewSampleRepository constructs a repository with default table name.
func NewSampleRepository(db *sql.DB, opts ...RepositoryOption) *SampleRepository {
	repo := &SampleRepository{db: db, table: defaultSamplesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*SampleRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *SampleRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Append inserts a sample. The UNIQUE (device_code, ts) constraint decides
// duplicates, so concurrent submissions for the same instant cannot both land.
func (r *SampleRepository) Append(ctx context.Context, sample *telemetry.Sample) error {
	if r == nil || r.db == nil {
		return errors.New("telemetry repo: nil db")
	}
	if sample == nil || sample.DeviceCode == "" || sample.Timestamp.IsZero() {
		return errors.New("telemetry repo: invalid sample")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	device_code,
	voltage,
	current,
	power_factor,
	ts,
	received_at
) VALUES (
	$1, $2, $3, $4, $5, $6
)
RETURNING id`, r.table)

	if sample.ReceivedAt.IsZero() {
		sample.ReceivedAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(
		ctx,
		query,
		sample.DeviceCode,
		sample.Voltage,
		sample.Current,
		sample.PowerFactor,
		sample.Timestamp.UTC(),
		sample.ReceivedAt.UTC(),
	).Scan(&sample.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return telemetry.ErrDuplicate
		}
		return err
	}
	return nil
}

// ListByDevice returns samples of a device within [from, to), newest first.
func (r *SampleRepository) ListByDevice(ctx context.Context, deviceCode string, from, to time.Time) ([]telemetry.Sample, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("telemetry repo: nil db")
	}
	if deviceCode == "" || from.IsZero() || to.IsZero() {
		return nil, errors.New("telemetry repo: invalid arguments")
	}

	query := fmt.Sprintf(`
SELECT id, device_code, voltage, current, power_factor, ts, received_at
FROM %s
WHERE device_code = $1
	AND ts >= $2
	AND ts < $3
ORDER BY ts DESC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, deviceCode, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []telemetry.Sample
	for rows.Next() {
		var sample telemetry.Sample
		if err := rows.Scan(
			&sample.ID,
			&sample.DeviceCode,
			&sample.Voltage,
			&sample.Current,
			&sample.PowerFactor,
			&sample.Timestamp,
			&sample.ReceivedAt,
		); err != nil {
			return nil, err
		}
		sample.Timestamp = sample.Timestamp.UTC()
		sample.ReceivedAt = sample.ReceivedAt.UTC()
		result = append(result, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
