package alerts

import (
	"fmt"
	"strconv"
	"time"

	telemetry "parking-monitor/internal/telemetry/domain"
)

// Default rule thresholds.
const (
	DefaultPowerThreshold = 1500.0
	DefaultLowVoltageMin  = 215.0
	DefaultLowVoltageMax  = 225.0
)

// Rule inspects one stored sample. It must be pure: no I/O, no clock.
type Rule interface {
	Name() string
	Evaluate(sample telemetry.Sample) (Finding, bool)
}

// HighPowerRule fires when V*I*PF strictly exceeds Threshold watts.
type HighPowerRule struct {
	Threshold float64
}

func (r HighPowerRule) Name() string { return TypeHighPower }

func (r HighPowerRule) Evaluate(sample telemetry.Sample) (Finding, bool) {
	power := sample.Power()
	if power <= r.Threshold {
		return Finding{}, false
	}
	return Finding{
		DeviceCode: sample.DeviceCode,
		Type:       TypeHighPower,
		Severity:   SeverityWarning,
		Message:    fmt.Sprintf("Abnormal power usage: %.2fW (threshold: %sW)", power, formatNumber(r.Threshold)),
	}, true
}

// LowVoltageRule fires when voltage falls strictly below Min volts.
// Max is only reported in the message as the upper edge of the normal band.
type LowVoltageRule struct {
	Min float64
	Max float64
}

func (r LowVoltageRule) Name() string { return TypeLowVoltage }

func (r LowVoltageRule) Evaluate(sample telemetry.Sample) (Finding, bool) {
	if sample.Voltage >= r.Min {
		return Finding{}, false
	}
	upper := r.Max
	if upper < r.Min {
		upper = r.Min
	}
	return Finding{
		DeviceCode: sample.DeviceCode,
		Type:       TypeLowVoltage,
		Severity:   SeverityWarning,
		Message: fmt.Sprintf("Voltage below normal: %.2fV (expected: %s-%sV)",
			sample.Voltage, formatNumber(r.Min), formatNumber(upper)),
	}, true
}

// Detector runs a fixed rule set against samples.
type Detector struct {
	rules []Rule
}

// NewDetector builds a detector. Rules run in the given order.
func NewDetector(rules ...Rule) *Detector {
	filtered := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule != nil {
			filtered = append(filtered, rule)
		}
	}
	return &Detector{rules: filtered}
}

// DefaultDetector returns the detector with the stock HIGH_POWER rule.
func DefaultDetector() *Detector {
	return NewDetector(HighPowerRule{Threshold: DefaultPowerThreshold})
}

// Evaluate returns all findings raised by sample.
func (d *Detector) Evaluate(sample telemetry.Sample) []Finding {
	if d == nil {
		return nil
	}
	var findings []Finding
	for _, rule := range d.rules {
		if finding, ok := rule.Evaluate(sample); ok {
			findings = append(findings, finding)
		}
	}
	return findings
}

// Rules lists rule names in evaluation order.
func (d *Detector) Rules() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.rules))
	for _, rule := range d.rules {
		names = append(names, rule.Name())
	}
	return names
}

// OfflineFinding builds the DEVICE_OFFLINE finding for a silent device.
// lastSeen is nil when the device never reported.
func OfflineFinding(deviceCode string, lastSeen *time.Time, after time.Duration) Finding {
	seen := "never"
	if lastSeen != nil {
		seen = lastSeen.UTC().Format(time.RFC3339)
	}
	return Finding{
		DeviceCode: deviceCode,
		Type:       TypeDeviceOffline,
		Severity:   SeverityCritical,
		Message: fmt.Sprintf("Device %s has been offline for more than %s. Last seen: %s",
			deviceCode, humanDuration(after), seen),
	}
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func humanDuration(d time.Duration) string {
	switch {
	case d%time.Minute == 0:
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	default:
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
}
