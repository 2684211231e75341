package masterdata

import (
	"context"
	"errors"
	"time"
)

// Zone represents a physical parking area grouping slots.
type Zone struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	TotalSlots  int       `json:"total_slots"`
	DailyTarget int       `json:"daily_target"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks zone invariants.
func (z Zone) Validate() error {
	if z.Code == "" {
		return errors.New("zone: empty code")
	}
	if z.Name == "" {
		return errors.New("zone: empty name")
	}
	if z.TotalSlots < 1 {
		return errors.New("zone: total slots must be >= 1")
	}
	if z.DailyTarget < 0 {
		return errors.New("zone: daily target must be >= 0")
	}
	return nil
}

// ZoneRepository manages zone persistence.
type ZoneRepository interface {
	Get(ctx context.Context, code string) (*Zone, error)
	List(ctx context.Context) ([]Zone, error)
	Save(ctx context.Context, zone *Zone) error
	// Delete removes the zone together with its devices and everything they own.
	Delete(ctx context.Context, code string) error
}
