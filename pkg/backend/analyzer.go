// Package backend is the HTTP service that receives monitor telemetry,
// keeps a bounded per-metric history and serves statistics about it.
package backend

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-lensmon/pkg/sampling"
	"github.com/teslashibe/go-lensmon/pkg/store"
)

// DefaultMaxHistory bounds each metric's in-memory history.
const DefaultMaxHistory = 10000

// Metric describes an accepted metric: its valid range and how a value is
// labelled.
type Metric struct {
	Name       string
	Min, Max   float64
	Categorize func(v float64) string
	AlertKey   string // context key the monitor sets while its trigger is active
}

// Contains reports whether v is inside the metric's range.
func (m Metric) Contains(v float64) bool {
	return v >= m.Min && v <= m.Max
}

var metrics = map[string]Metric{
	"brightness": {Name: "brightness", Min: 0, Max: 1, Categorize: sampling.BrightnessCategory, AlertKey: "brightness_alert"},
	"pitch":      {Name: "pitch", Min: -90, Max: 90, Categorize: PitchCategory, AlertKey: "posture_alert"},
}

// LookupMetric returns the metric registered under name.
func LookupMetric(name string) (Metric, bool) {
	m, ok := metrics[name]
	return m, ok
}

// MetricNames returns the accepted metric names, sorted.
func MetricNames() []string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PitchCategory labels head pitch in degrees.
func PitchCategory(deg float64) string {
	switch {
	case deg < -20:
		return "down"
	case deg > 20:
		return "up"
	default:
		return "level"
	}
}

// Stats summarises a metric's history. Std is the population standard
// deviation.
type Stats struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Std     float64 `json:"std"`
	Samples int     `json:"samples"`
}

// Analysis is returned for every accepted reading.
type Analysis struct {
	Metric        string         `json:"metric"`
	Value         float64        `json:"value"`
	Category      string         `json:"category"`
	Timestamp     time.Time      `json:"timestamp"`
	Statistics    *Stats         `json:"statistics"`
	MLPredictions map[string]any `json:"ml_predictions"`
}

// Analyzer keeps a bounded history per metric.
type Analyzer struct {
	max int

	mu      sync.RWMutex
	history map[string][]store.Reading
}

// NewAnalyzer creates an analyzer keeping at most max readings per metric.
func NewAnalyzer(max int) *Analyzer {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &Analyzer{max: max, history: make(map[string][]store.Reading)}
}

// Add appends r to its metric's history, evicting the oldest reading when
// full, and returns the analysis including r.
func (a *Analyzer) Add(r store.Reading) Analysis {
	a.mu.Lock()
	h := append(a.history[r.Metric], r)
	if len(h) > a.max {
		h = h[len(h)-a.max:]
	}
	a.history[r.Metric] = h
	a.mu.Unlock()

	return a.Analyze(r)
}

// Load appends readings in order, used to warm the analyzer from storage.
func (a *Analyzer) Load(readings []store.Reading) {
	for _, r := range readings {
		a.Add(r)
	}
}

// Analyze categorises r against the current history without storing it.
func (a *Analyzer) Analyze(r store.Reading) Analysis {
	an := Analysis{
		Metric:    r.Metric,
		Value:     r.Value,
		Timestamp: r.Timestamp,
	}
	if m, ok := LookupMetric(r.Metric); ok {
		an.Category = m.Categorize(r.Value)
	}
	if st, ok := a.Stats(r.Metric); ok {
		an.Statistics = &st
	}
	return an
}

// Stats returns statistics for metric, or false when there is no history.
func (a *Analyzer) Stats(metric string) (Stats, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	h := a.history[metric]
	if len(h) == 0 {
		return Stats{}, false
	}

	st := Stats{Min: math.Inf(1), Max: math.Inf(-1), Samples: len(h)}
	var sum float64
	for _, r := range h {
		sum += r.Value
		st.Min = math.Min(st.Min, r.Value)
		st.Max = math.Max(st.Max, r.Value)
	}
	st.Average = sum / float64(len(h))

	var sq float64
	for _, r := range h {
		d := r.Value - st.Average
		sq += d * d
	}
	st.Std = math.Sqrt(sq / float64(len(h)))
	return st, true
}

// Latest returns the newest reading for metric.
func (a *Analyzer) Latest(metric string) (store.Reading, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h := a.history[metric]
	if len(h) == 0 {
		return store.Reading{}, false
	}
	return h[len(h)-1], true
}

// History returns up to limit of the newest readings, oldest first.
func (a *Analyzer) History(metric string, limit int) []store.Reading {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h := a.history[metric]
	if limit >= 0 && limit < len(h) {
		h = h[len(h)-limit:]
	}
	out := make([]store.Reading, len(h))
	copy(out, h)
	return out
}

// Len returns the history size for metric.
func (a *Analyzer) Len(metric string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.history[metric])
}

// Total returns the history size across all metrics.
func (a *Analyzer) Total() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := 0
	for _, h := range a.history {
		n += len(h)
	}
	return n
}

// Values returns the newest n values for metric, oldest first.
func (a *Analyzer) Values(metric string, n int) []float64 {
	h := a.History(metric, n)
	out := make([]float64, len(h))
	for i, r := range h {
		out[i] = r.Value
	}
	return out
}
