package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	alerts "parking-monitor/internal/alerts/domain"
)

func TestMalformedIDIsNotFound(t *testing.T) {
	// sql.Open does not dial; malformed ids must never reach the server.
	db, err := sql.Open("pgx", "postgres://parking@127.0.0.1:1/parking?connect_timeout=1")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	repo := NewAlertRepository(db)
	ctx := context.Background()

	for _, id := range []string{"42", "not-a-uuid", ""} {
		alert, err := repo.GetByID(ctx, id)
		if err != nil || alert != nil {
			t.Fatalf("GetByID(%q) = %v, %v; want nil, nil", id, alert, err)
		}
		if err := repo.MarkAcknowledged(ctx, id, time.Now()); !errors.Is(err, alerts.ErrNotFound) {
			t.Fatalf("MarkAcknowledged(%q) = %v; want not found", id, err)
		}
	}
}
