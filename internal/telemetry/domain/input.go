package telemetry

import "time"

// TelemetryInput is an unvalidated telemetry submission from a field device.
type TelemetryInput struct {
	DeviceCode  string    `json:"device_code"`
	Voltage     float64   `json:"voltage"`
	Current     float64   `json:"current"`
	PowerFactor float64   `json:"power_factor"`
	Timestamp   time.Time `json:"timestamp"`
}

// OccupancyInput is an unvalidated occupancy submission.
type OccupancyInput struct {
	DeviceCode string    `json:"device_code"`
	Occupied   bool      `json:"is_occupied"`
	Timestamp  time.Time `json:"timestamp"`
}

// BatchItemError describes one failed item of a batch submission.
type BatchItemError struct {
	Index      int       `json:"index"`
	DeviceCode string    `json:"device_code"`
	Kind       ErrorKind `json:"error_kind"`
	Detail     string    `json:"detail"`
}

// BatchResult summarizes a batch submission. Partial success is normal.
type BatchResult struct {
	Created int              `json:"created"`
	Errors  []BatchItemError `json:"errors"`
}
