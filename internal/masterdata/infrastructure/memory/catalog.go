package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	masterdata "parking-monitor/internal/masterdata/domain"
)

// DevicePurger drops records owned by deleted devices.
type DevicePurger interface {
	PurgeDevices(ctx context.Context, codes []string) error
}

// Catalog is an in-memory zone and device repository for demo/testing.
// It implements both masterdata.ZoneRepository and masterdata.DeviceRepository.
type Catalog struct {
	mu      sync.RWMutex
	zones   map[string]masterdata.Zone
	devices map[string]masterdata.Device
	purgers []DevicePurger
}

// NewCatalog constructs an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		zones:   make(map[string]masterdata.Zone),
		devices: make(map[string]masterdata.Device),
	}
}

// RegisterPurger adds a store that must follow zone deletions.
func (c *Catalog) RegisterPurger(purger DevicePurger) {
	if purger == nil {
		return
	}
	c.mu.Lock()
	c.purgers = append(c.purgers, purger)
	c.mu.Unlock()
}

// Zones exposes the catalog as a zone repository.
func (c *Catalog) Zones() masterdata.ZoneRepository { return zoneView{c} }

// Devices exposes the catalog as a device repository.
func (c *Catalog) Devices() masterdata.DeviceRepository { return deviceView{c} }

type zoneView struct{ c *Catalog }

func (v zoneView) Get(ctx context.Context, code string) (*masterdata.Zone, error) {
	_ = ctx
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	zone, ok := v.c.zones[code]
	if !ok {
		return nil, nil
	}
	return &zone, nil
}

func (v zoneView) List(ctx context.Context) ([]masterdata.Zone, error) {
	_ = ctx
	v.c.mu.RLock()
	result := make([]masterdata.Zone, 0, len(v.c.zones))
	for _, zone := range v.c.zones {
		result = append(result, zone)
	}
	v.c.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (v zoneView) Save(ctx context.Context, zone *masterdata.Zone) error {
	_ = ctx
	if zone == nil {
		return errors.New("zone repo: nil zone")
	}
	if err := zone.Validate(); err != nil {
		return err
	}
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	for code, existing := range v.c.zones {
		if code != zone.Code && existing.Name == zone.Name {
			return errors.New("zone repo: duplicate name")
		}
	}
	if existing, ok := v.c.zones[zone.Code]; ok {
		zone.CreatedAt = existing.CreatedAt
	}
	if zone.CreatedAt.IsZero() {
		zone.CreatedAt = time.Now().UTC()
	}
	v.c.zones[zone.Code] = *zone
	return nil
}

// Delete removes the zone, its devices, and asks purgers to drop device records.
func (v zoneView) Delete(ctx context.Context, code string) error {
	v.c.mu.Lock()
	if _, ok := v.c.zones[code]; !ok {
		v.c.mu.Unlock()
		return masterdata.ErrZoneNotFound
	}
	delete(v.c.zones, code)
	var removed []string
	for deviceCode, device := range v.c.devices {
		if device.ZoneCode == code {
			removed = append(removed, deviceCode)
			delete(v.c.devices, deviceCode)
		}
	}
	purgers := append([]DevicePurger(nil), v.c.purgers...)
	v.c.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	for _, purger := range purgers {
		if err := purger.PurgeDevices(ctx, removed); err != nil {
			return err
		}
	}
	return nil
}

type deviceView struct{ c *Catalog }

func (v deviceView) Get(ctx context.Context, code string) (*masterdata.Device, error) {
	_ = ctx
	v.c.mu.RLock()
	defer v.c.mu.RUnlock()
	device, ok := v.c.devices[code]
	if !ok {
		return nil, nil
	}
	return copyDevice(device), nil
}

func (v deviceView) List(ctx context.Context) ([]masterdata.Device, error) {
	return v.filter(ctx, func(masterdata.Device) bool { return true })
}

func (v deviceView) ListByZone(ctx context.Context, zoneCode string) ([]masterdata.Device, error) {
	return v.filter(ctx, func(d masterdata.Device) bool { return d.ZoneCode == zoneCode })
}

func (v deviceView) ListSilentActive(ctx context.Context, cutoff time.Time) ([]masterdata.Device, error) {
	return v.filter(ctx, func(d masterdata.Device) bool {
		return d.Active && (d.LastSeen == nil || d.LastSeen.Before(cutoff))
	})
}

func (v deviceView) Save(ctx context.Context, device *masterdata.Device) error {
	_ = ctx
	if device == nil {
		return errors.New("device repo: nil device")
	}
	if err := device.Validate(); err != nil {
		return err
	}
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	if _, ok := v.c.zones[device.ZoneCode]; !ok {
		return masterdata.ErrZoneNotFound
	}
	for code, existing := range v.c.devices {
		if code != device.Code && existing.ZoneCode == device.ZoneCode && existing.SlotNumber == device.SlotNumber {
			return errors.New("device repo: slot already taken in zone")
		}
	}
	stored := *copyDevice(*device)
	if existing, ok := v.c.devices[device.Code]; ok {
		stored.LastSeen = existing.LastSeen
	}
	v.c.devices[device.Code] = stored
	return nil
}

func (v deviceView) TouchLastSeen(ctx context.Context, code string, at time.Time) error {
	_ = ctx
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	device, ok := v.c.devices[code]
	if !ok {
		return masterdata.ErrDeviceNotFound
	}
	at = at.UTC()
	if device.LastSeen == nil || at.After(*device.LastSeen) {
		device.LastSeen = &at
		v.c.devices[code] = device
	}
	return nil
}

func (v deviceView) filter(ctx context.Context, keep func(masterdata.Device) bool) ([]masterdata.Device, error) {
	_ = ctx
	v.c.mu.RLock()
	result := make([]masterdata.Device, 0, len(v.c.devices))
	for _, device := range v.c.devices {
		if keep(device) {
			result = append(result, *copyDevice(device))
		}
	}
	v.c.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func copyDevice(device masterdata.Device) *masterdata.Device {
	out := device
	if device.LastSeen != nil {
		seen := *device.LastSeen
		out.LastSeen = &seen
	}
	return &out
}
