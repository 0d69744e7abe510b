// Package telemetry forwards smoothed monitor readings to an HTTP backend.
//
// Sends are fire-and-forget: Send dispatches the POST on its own goroutine
// and hands back a channel the caller may ignore. Failures are logged and
// dropped; there is no retry, queue or backoff.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is one telemetry reading. It marshals to a flat JSON object:
// {"<metric>": value, ...context, "timestamp": ..., "frame": n, "device": ...}.
type Payload struct {
	Metric    string
	Value     float64
	Context   map[string]any
	Timestamp time.Time
	Frame     int
	Device    string
}

// reserved keys are written last so context cannot override them.
var reserved = []string{"timestamp", "frame", "device"}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Metric == "" {
		return nil, fmt.Errorf("%w: empty metric name", ErrInvalidPayload)
	}
	m := make(map[string]any, len(p.Context)+4)
	for k, v := range p.Context {
		m[k] = v
	}
	m[p.Metric] = p.Value

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	m[reserved[0]] = ts.UTC().Format(time.RFC3339Nano)
	m[reserved[1]] = p.Frame
	m[reserved[2]] = p.Device
	return json.Marshal(m)
}

// Result is the outcome of one send.
type Result struct {
	Payload    Payload
	StatusCode int
	Latency    time.Duration
	Err        error
}

// OK reports whether the backend accepted the reading.
func (r Result) OK() bool {
	return r.Err == nil
}
