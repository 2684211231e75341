package masterdata

import (
	"context"
	"errors"
	"time"
)

// OfflineAfter is the silence threshold after which a device counts as offline.
const OfflineAfter = 2 * time.Minute

var (
	// ErrDeviceNotFound indicates an unknown device code.
	ErrDeviceNotFound = errors.New("device: not found")
	// ErrDeviceInactive indicates a deactivated device.
	ErrDeviceInactive = errors.New("device: inactive")
	// ErrZoneNotFound indicates an unknown zone code.
	ErrZoneNotFound = errors.New("zone: not found")
)

// Device is the sensor unit attached to one parking slot.
type Device struct {
	Code       string     `json:"device_code"`
	ZoneCode   string     `json:"zone_code"`
	SlotNumber string     `json:"slot_number"`
	Active     bool       `json:"is_active"`
	LastSeen   *time.Time `json:"last_seen"`
}

// Validate checks device invariants.
func (d Device) Validate() error {
	if d.Code == "" {
		return errors.New("device: empty code")
	}
	if d.ZoneCode == "" {
		return errors.New("device: empty zone code")
	}
	if d.SlotNumber == "" {
		return errors.New("device: empty slot number")
	}
	return nil
}

// IsOffline reports whether the device has been silent for longer than OfflineAfter.
// A device that never made contact is offline.
func (d Device) IsOffline(now time.Time) bool {
	if d.LastSeen == nil {
		return true
	}
	return now.Sub(*d.LastSeen) > OfflineAfter
}

// DeviceRepository manages device persistence.
type DeviceRepository interface {
	Get(ctx context.Context, code string) (*Device, error)
	List(ctx context.Context) ([]Device, error)
	ListByZone(ctx context.Context, zoneCode string) ([]Device, error)
	Save(ctx context.Context, device *Device) error
	// TouchLastSeen advances last-seen to at unless the stored value is already newer.
	// It returns ErrDeviceNotFound when the code is unknown.
	TouchLastSeen(ctx context.Context, code string, at time.Time) error
	// ListSilentActive returns active devices never seen or last seen before cutoff.
	ListSilentActive(ctx context.Context, cutoff time.Time) ([]Device, error)
}
