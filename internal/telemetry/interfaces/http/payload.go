package http

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	telemetry "parking-monitor/internal/telemetry/domain"
)

// flexNumber accepts JSON numbers and numeric strings ("220.00").
type flexNumber struct {
	value float64
	set   bool
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
		data = []byte(raw)
	}
	parsed, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", data)
	}
	n.value = parsed
	n.set = true
	return nil
}

// flexTime accepts RFC3339 strings, naive ISO timestamps (read as UTC) and
// epoch seconds or milliseconds.
type flexTime struct {
	value time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] != '"' {
		epoch, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s", data)
		}
		parsed, err := parseEpoch(epoch)
		if err != nil {
			return err
		}
		t.value = parsed
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.value = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}

func parseEpoch(value int64) (time.Time, error) {
	if value <= 0 {
		return time.Time{}, errors.New("invalid timestamp")
	}
	// Accept milliseconds or seconds.
	if value > 1_000_000_000_000 {
		return time.UnixMilli(value).UTC(), nil
	}
	return time.Unix(value, 0).UTC(), nil
}

type telemetryRequest struct {
	DeviceCode  string     `json:"device_code"`
	Voltage     flexNumber `json:"voltage"`
	Current     flexNumber `json:"current"`
	PowerFactor flexNumber `json:"power_factor"`
	Timestamp   flexTime   `json:"timestamp"`
}

// fieldErrors lists missing required fields.
func (r telemetryRequest) fieldErrors() map[string]string {
	missing := make(map[string]string)
	if strings.TrimSpace(r.DeviceCode) == "" {
		missing["device_code"] = "This field is required."
	}
	if !r.Voltage.set {
		missing["voltage"] = "This field is required."
	}
	if !r.Current.set {
		missing["current"] = "This field is required."
	}
	if !r.PowerFactor.set {
		missing["power_factor"] = "This field is required."
	}
	if r.Timestamp.value.IsZero() {
		missing["timestamp"] = "This field is required."
	}
	return missing
}

func (r telemetryRequest) toInput() telemetry.TelemetryInput {
	return telemetry.TelemetryInput{
		DeviceCode:  strings.TrimSpace(r.DeviceCode),
		Voltage:     r.Voltage.value,
		Current:     r.Current.value,
		PowerFactor: r.PowerFactor.value,
		Timestamp:   r.Timestamp.value,
	}
}

type bulkRequest struct {
	Data []json.RawMessage `json:"data"`
}

type occupancyRequest struct {
	DeviceCode string   `json:"device_code"`
	Occupied   *bool    `json:"is_occupied"`
	Timestamp  flexTime `json:"timestamp"`
}

func (r occupancyRequest) fieldErrors() map[string]string {
	missing := make(map[string]string)
	if strings.TrimSpace(r.DeviceCode) == "" {
		missing["device_code"] = "This field is required."
	}
	if r.Occupied == nil {
		missing["is_occupied"] = "This field is required."
	}
	if r.Timestamp.value.IsZero() {
		missing["timestamp"] = "This field is required."
	}
	return missing
}

func (r occupancyRequest) toInput() telemetry.OccupancyInput {
	in := telemetry.OccupancyInput{
		DeviceCode: strings.TrimSpace(r.DeviceCode),
		Timestamp:  r.Timestamp.value,
	}
	if r.Occupied != nil {
		in.Occupied = *r.Occupied
	}
	return in
}
