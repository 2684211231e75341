package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	alerts "parking-monitor/internal/alerts/domain"
)

const defaultAlertsTable = "alerts"

// AlertRepository is a Postgres repository for alerts.
type AlertRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*AlertRepository)

// WithAlertsTable overrides the default table name.
func WithAlertsTable(table string) RepositoryOption {
	return func(repo *AlertRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB, opts ...RepositoryOption) *AlertRepository {
	repo := &AlertRepository{db: db, table: defaultAlertsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// CreateIfNoneOpen inserts an alert unless an unacknowledged one exists for
// the same device and type. The partial unique index on open alerts makes the
// insert race-free across processes.
func (r *AlertRepository) CreateIfNoneOpen(ctx context.Context, alert *alerts.Alert) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("alert repo: nil db")
	}
	if alert == nil {
		return false, errors.New("alert repo: nil alert")
	}
	if alert.ID == "" || alert.DeviceCode == "" || alert.Type == "" {
		return false, errors.New("alert repo: missing fields")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, device_code, severity, alert_type, message, is_acknowledged, created_at, acknowledged_at
) VALUES (
	$1, $2, $3, $4, $5, FALSE, $6, NULL
)
ON CONFLICT (device_code, alert_type) WHERE NOT is_acknowledged DO NOTHING
RETURNING id`, r.table)

	var id string
	err := r.db.QueryRowContext(ctx, query,
		alert.ID,
		alert.DeviceCode,
		string(alert.Severity),
		alert.Type,
		alert.Message,
		alert.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	alert.Acknowledged = false
	alert.AcknowledgedAt = nil
	return true, nil
}

// GetByID fetches an alert by id. Ids that are not UUIDs match nothing.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if !validID(id) {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT id, device_code, severity, alert_type, message, is_acknowledged, created_at, acknowledged_at
FROM %s
WHERE id = $1`, r.table)
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return alert, nil
}

// MarkAcknowledged flags an alert and overwrites its acknowledgment time.
func (r *AlertRepository) MarkAcknowledged(ctx context.Context, id string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if !validID(id) {
		return alerts.ErrNotFound
	}
	query := fmt.Sprintf(`
UPDATE %s
SET is_acknowledged = TRUE, acknowledged_at = $1
WHERE id = $2`, r.table)
	res, err := r.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alerts.ErrNotFound
	}
	return nil
}

// List returns alerts newest first, narrowed by filter.
func (r *AlertRepository) List(ctx context.Context, filter alerts.Filter) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	var (
		clauses []string
		args    []any
	)
	if filter.Severity != nil {
		args = append(args, string(*filter.Severity))
		clauses = append(clauses, fmt.Sprintf("severity = $%d", len(args)))
	}
	if filter.Acknowledged != nil {
		args = append(args, *filter.Acknowledged)
		clauses = append(clauses, fmt.Sprintf("is_acknowledged = $%d", len(args)))
	}
	query := fmt.Sprintf(`
SELECT id, device_code, severity, alert_type, message, is_acknowledged, created_at, acknowledged_at
FROM %s`, r.table)
	if len(clauses) > 0 {
		query += "\nWHERE " + strings.Join(clauses, " AND ")
	}
	query += "\nORDER BY created_at DESC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountSince counts alerts created in [since, until) by severity.
func (r *AlertRepository) CountSince(ctx context.Context, since, until time.Time) (map[alerts.Severity]int, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT severity, COUNT(*)
FROM %s
WHERE created_at >= $1 AND created_at < $2
GROUP BY severity`, r.table)
	rows, err := r.db.QueryContext(ctx, query, since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[alerts.Severity]int)
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		result[alerts.Severity(severity)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountOpen returns the number of unacknowledged alerts.
func (r *AlertRepository) CountOpen(ctx context.Context) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("alert repo: nil db")
	}
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE NOT is_acknowledged`, r.table)
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

type alertScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row alertScanner) (*alerts.Alert, error) {
	var alert alerts.Alert
	var severity string
	var ackedAt sql.NullTime
	if err := row.Scan(
		&alert.ID,
		&alert.DeviceCode,
		&severity,
		&alert.Type,
		&alert.Message,
		&alert.Acknowledged,
		&alert.CreatedAt,
		&ackedAt,
	); err != nil {
		return nil, err
	}
	alert.Severity = alerts.Severity(severity)
	alert.CreatedAt = alert.CreatedAt.UTC()
	if ackedAt.Valid {
		at := ackedAt.Time.UTC()
		alert.AcknowledgedAt = &at
	}
	return &alert, nil
}

// validID reports whether id can be compared against the UUID column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
