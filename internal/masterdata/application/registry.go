package application

import (
	"context"
	"errors"
	"time"

	masterdata "parking-monitor/internal/masterdata/domain"
)

// Registry tracks known devices, their status and last contact.
type Registry struct {
	zones   masterdata.ZoneRepository
	devices masterdata.DeviceRepository
}

// NewRegistry constructs a device registry.
func NewRegistry(zones masterdata.ZoneRepository, devices masterdata.DeviceRepository) (*Registry, error) {
	if zones == nil || devices == nil {
		return nil, errors.New("registry: nil repository")
	}
	return &Registry{zones: zones, devices: devices}, nil
}

// Lookup resolves a device by code.
func (r *Registry) Lookup(ctx context.Context, code string) (*masterdata.Device, error) {
	if code == "" {
		return nil, masterdata.ErrDeviceNotFound
	}
	device, err := r.devices.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, masterdata.ErrDeviceNotFound
	}
	return device, nil
}

// RefreshLastSeen moves the device's last contact forward to at.
// Older timestamps never regress the stored value.
func (r *Registry) RefreshLastSeen(ctx context.Context, code string, at time.Time) error {
	device, err := r.Lookup(ctx, code)
	if err != nil {
		return err
	}
	if !device.Active {
		return masterdata.ErrDeviceInactive
	}
	return r.devices.TouchLastSeen(ctx, code, at.UTC())
}

// IsOffline reports whether device is offline at now.
func (r *Registry) IsOffline(device masterdata.Device, now time.Time) bool {
	return device.IsOffline(now)
}

// ListOffline returns every active device that is offline at now.
func (r *Registry) ListOffline(ctx context.Context, now time.Time) ([]masterdata.Device, error) {
	candidates, err := r.devices.ListSilentActive(ctx, now.Add(-masterdata.OfflineAfter))
	if err != nil {
		return nil, err
	}
	result := make([]masterdata.Device, 0, len(candidates))
	for _, device := range candidates {
		if device.Active && device.IsOffline(now) {
			result = append(result, device)
		}
	}
	return result, nil
}

// ListDevices returns all devices.
func (r *Registry) ListDevices(ctx context.Context) ([]masterdata.Device, error) {
	return r.devices.List(ctx)
}

// ListZones returns all zones.
func (r *Registry) ListZones(ctx context.Context) ([]masterdata.Zone, error) {
	return r.zones.List(ctx)
}

// SaveZone validates and stores a zone.
func (r *Registry) SaveZone(ctx context.Context, zone *masterdata.Zone) error {
	if zone == nil {
		return errors.New("registry: nil zone")
	}
	if err := zone.Validate(); err != nil {
		return err
	}
	return r.zones.Save(ctx, zone)
}

// SaveDevice validates and stores a device. The owning zone must exist.
func (r *Registry) SaveDevice(ctx context.Context, device *masterdata.Device) error {
	if device == nil {
		return errors.New("registry: nil device")
	}
	if err := device.Validate(); err != nil {
		return err
	}
	zone, err := r.zones.Get(ctx, device.ZoneCode)
	if err != nil {
		return err
	}
	if zone == nil {
		return masterdata.ErrZoneNotFound
	}
	return r.devices.Save(ctx, device)
}

// DeleteZone removes a zone and cascades to its devices and their records.
func (r *Registry) DeleteZone(ctx context.Context, code string) error {
	if code == "" {
		return masterdata.ErrZoneNotFound
	}
	return r.zones.Delete(ctx, code)
}
