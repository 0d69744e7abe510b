// Package threshold watches a scalar against a bound and fires a one-shot
// trigger once the bound has been crossed for long enough.
package threshold

import (
	"fmt"
	"time"
)

// Compare selects which side of the threshold counts as exceeding.
type Compare int

const (
	// LessThan exceeds when value < threshold.
	LessThan Compare = iota
	// GreaterThan exceeds when value > threshold.
	GreaterThan
)

// String returns "lt" or "gt".
func (c Compare) String() string {
	switch c {
	case LessThan:
		return "lt"
	case GreaterThan:
		return "gt"
	default:
		return fmt.Sprintf("Compare(%d)", int(c))
	}
}

// ParseCompare accepts "lt", "<", "gt" and ">".
func ParseCompare(s string) (Compare, error) {
	switch s {
	case "lt", "<", "less_than":
		return LessThan, nil
	case "gt", ">", "greater_than":
		return GreaterThan, nil
	}
	return 0, fmt.Errorf("threshold: unknown compare %q", s)
}

// Exceeds applies the comparison.
func (c Compare) Exceeds(value, threshold float64) bool {
	if c == GreaterThan {
		return value > threshold
	}
	return value < threshold
}

// Condition is the bound a Timer watches.
type Condition struct {
	Threshold       float64
	Compare         Compare
	TriggerDuration float64 // seconds the bound must be exceeded
}

// EventType identifies a timer event.
type EventType int

const (
	// TriggerStart fires once per exceed episode.
	TriggerStart EventType = iota + 1
)

// Event is emitted by Tick on the rising edge of the trigger.
type Event struct {
	Type      EventType
	Value     float64
	Threshold float64
	Duration  float64 // exceed duration in seconds when the event fired
	Elapsed   float64 // total ticked time since the timer was created
}

// Timer accumulates how long a value has continuously exceeded a bound.
// It is not safe for concurrent use.
type Timer struct {
	exceeding        bool
	exceedDuration   float64
	triggerActive    bool
	firedThisEpisode bool
	elapsed          float64
}

// NewTimer returns an armed timer.
func NewTimer() *Timer {
	return &Timer{}
}

// Tick advances the timer by dt seconds with the current value.
// It returns a TriggerStart event at most once per exceed episode.
func (t *Timer) Tick(value, dt float64, cond Condition) *Event {
	if dt < 0 {
		dt = 0
	}
	t.elapsed += dt

	t.exceeding = cond.Compare.Exceeds(value, cond.Threshold)
	if t.exceeding {
		t.exceedDuration += dt
	} else {
		t.exceedDuration = 0
		t.triggerActive = false
		t.firedThisEpisode = false
	}

	wasActive := t.triggerActive
	t.triggerActive = t.exceeding && t.exceedDuration > cond.TriggerDuration

	if t.triggerActive && !wasActive && !t.firedThisEpisode {
		t.firedThisEpisode = true
		return &Event{
			Type:      TriggerStart,
			Value:     value,
			Threshold: cond.Threshold,
			Duration:  t.exceedDuration,
			Elapsed:   t.elapsed,
		}
	}
	return nil
}

// Exceeding reports whether the last value was beyond the bound.
func (t *Timer) Exceeding() bool { return t.exceeding }

// ExceedDuration returns the current continuous exceed time in seconds.
func (t *Timer) ExceedDuration() float64 { return t.exceedDuration }

// Active reports whether the trigger is currently active.
func (t *Timer) Active() bool { return t.triggerActive }

// Fired reports whether TriggerStart has fired in the current episode.
func (t *Timer) Fired() bool { return t.firedThisEpisode }

// Reset re-arms the timer and clears all accumulated time.
func (t *Timer) Reset() {
	*t = Timer{}
}

// FrameDT approximates dt from a frame rate when no clock is available.
// Prefer wall-clock dt: this drifts whenever the real frame rate does.
func FrameDT(fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return 1 / fps
}

// Since returns the seconds elapsed from prev to now, never negative.
func Since(prev, now time.Time) float64 {
	if prev.IsZero() || now.Before(prev) {
		return 0
	}
	return now.Sub(prev).Seconds()
}

// MarshalText implements encoding.TextMarshaler.
func (c Compare) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Compare) UnmarshalText(b []byte) error {
	v, err := ParseCompare(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
