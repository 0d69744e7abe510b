// Package monitor ties a signal sampler, a threshold timer and a telemetry
// throttle into a per-tick state machine.
//
// A Monitor is driven by Tick, once per frame, with the elapsed time since
// the previous frame. Posture and brightness monitors differ only in where
// their raw signal comes from and how they describe it.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-lensmon/internal/log"
	"github.com/teslashibe/go-lensmon/pkg/alert"
	"github.com/teslashibe/go-lensmon/pkg/debug"
	"github.com/teslashibe/go-lensmon/pkg/sampling"
	"github.com/teslashibe/go-lensmon/pkg/telemetry"
	"github.com/teslashibe/go-lensmon/pkg/threshold"
)

var (
	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("monitor: invalid config")

	// ErrNoSource is returned when a monitor is built without a source.
	ErrNoSource = errors.New("monitor: source required")
)

// Initializer is implemented by sources that must be opened before use and
// may need reopening after they become unavailable.
type Initializer interface {
	Init() error
}

// signal is the per-kind half of a monitor.
type signal interface {
	// Sample reads the source and returns the smoothed value. Errors for
	// which Unavailable reports true mean the source itself is not ready.
	Sample() (float64, error)
	Value() float64
	Raw() float64
	Initialized() bool
	Unavailable(err error) bool

	Metric() string
	Status(value float64, active bool) string
	Context(value float64, active bool, exceed float64) map[string]any
}

// TriggerHandler reacts to a trigger firing. It runs on the tick goroutine
// after the monitor's lock is released, so it may call monitor accessors.
type TriggerHandler interface {
	OnTrigger(ctx context.Context, ev alert.Event)
}

// TriggerFunc adapts a function to TriggerHandler.
type TriggerFunc func(ctx context.Context, ev alert.Event)

// OnTrigger implements TriggerHandler.
func (f TriggerFunc) OnTrigger(ctx context.Context, ev alert.Event) { f(ctx, ev) }

// BusHandler publishes triggers on an alert bus.
type BusHandler struct {
	Bus *alert.Bus
}

// OnTrigger implements TriggerHandler.
func (h BusHandler) OnTrigger(_ context.Context, ev alert.Event) {
	if h.Bus != nil {
		h.Bus.Publish(ev)
	}
}

// State is a snapshot of a monitor.
type State struct {
	Name           string  `json:"name"`
	Metric         string  `json:"metric"`
	Value          float64 `json:"value"`
	Raw            float64 `json:"raw"`
	Ready          bool    `json:"ready"`
	Initialized    bool    `json:"initialized"`
	Exceeding      bool    `json:"exceeding"`
	TriggerActive  bool    `json:"trigger_active"`
	ExceedDuration float64 `json:"exceed_duration_seconds"`
	Frame          int     `json:"frame"`
	Triggers       int     `json:"triggers"`
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithBus publishes triggers on bus through the default handler.
func WithBus(bus *alert.Bus) Option {
	return func(m *Monitor) { m.bus = bus }
}

// WithDisplay sets the status text sink.
func WithDisplay(d Display) Option {
	return func(m *Monitor) { m.display = d }
}

// WithSender overrides the telemetry sender built from the config.
func WithSender(s *telemetry.Sender) Option {
	return func(m *Monitor) { m.sender = s }
}

// WithTriggerHandler replaces the default trigger strategy.
func WithTriggerHandler(h TriggerHandler) Option {
	return func(m *Monitor) { m.handler = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// Monitor is the per-tick state machine shared by every monitor kind.
// All state is mutated under mu, so accessors are safe from any goroutine.
type Monitor struct {
	name   string
	cfg    Config
	cond   threshold.Condition
	signal signal
	source any

	timer    *threshold.Timer
	throttle *telemetry.Throttle
	sender   *telemetry.Sender
	bus      *alert.Bus
	handler  TriggerHandler
	display  Display
	logger   *slog.Logger

	mu          sync.Mutex
	frame       int
	ready       bool
	lastInit    int
	initTried   bool
	wasActive   bool
	lastStatus  string
	triggers    int
	sampleFails int
	dropped     int
}

func newMonitor(name string, cfg Config, sig signal, source any, opts ...Option) (*Monitor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		name:     name,
		cfg:      cfg,
		cond:     cfg.Condition(),
		signal:   sig,
		source:   source,
		timer:    threshold.NewTimer(),
		throttle: telemetry.NewThrottle(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = log.With("monitor", name)
	}
	if m.display == nil {
		m.display = nopDisplay{}
	}
	if m.handler == nil {
		m.handler = BusHandler{Bus: m.bus}
	}
	if m.sender == nil && cfg.TelemetryEnabled {
		s, err := telemetry.NewSender(
			telemetry.WithURL(cfg.TelemetryURL),
			telemetry.WithDevice(cfg.Device),
			telemetry.WithVerbose(cfg.Verbose || debug.Enabled),
			telemetry.WithLogger(m.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		m.sender = s
	}

	_, needsInit := source.(Initializer)
	m.ready = !needsInit
	return m, nil
}

// Name returns the monitor name.
func (m *Monitor) Name() string { return m.name }

// Config returns the configuration the monitor was built with.
func (m *Monitor) Config() Config { return m.cfg }

// SetTriggerHandler swaps the trigger strategy. A nil handler restores the
// default bus publisher.
func (m *Monitor) SetTriggerHandler(h TriggerHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil {
		h = BusHandler{Bus: m.bus}
	}
	m.handler = h
}

// tickResult carries side effects out of the locked section.
type tickResult struct {
	event   *alert.Event
	handler TriggerHandler
	status  *string
	payload *telemetry.Payload
}

// Tick advances the monitor by dt seconds. It never blocks on I/O:
// telemetry is dispatched asynchronously and source failures skip the
// frame.
func (m *Monitor) Tick(ctx context.Context, dt float64) {
	res := m.step(dt)

	if res.status != nil {
		m.display.Show(*res.status)
	}
	if res.event != nil {
		m.logger.Info("trigger fired",
			"metric", res.event.Metric,
			"value", res.event.Value,
			"threshold", res.event.Threshold,
			"duration", res.event.Duration)
		res.handler.OnTrigger(ctx, *res.event)
	}
	if res.payload != nil && m.sender != nil {
		// fire and forget; the sender logs the outcome
		m.sender.Send(ctx, *res.payload)
	}
}

func (m *Monitor) step(dt float64) tickResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res tickResult
	m.frame++

	if !m.ensureReady() {
		return res
	}

	if m.frame%m.cfg.CalculationInterval == 0 || !m.signal.Initialized() {
		_, err := m.signal.Sample()
		switch {
		case err == nil:
			m.dropped = 0
		case m.signal.Unavailable(err):
			m.sampleFails++
			if errors.Is(err, sampling.ErrFrameDropped) && m.dropped < m.cfg.MaxDroppedFrames {
				m.dropped++
				m.verbose("frame dropped, skipping", "dropped", m.dropped, "error", err)
				return res
			}
			m.markUnavailable(err)
			return res
		default:
			m.sampleFails++
			m.dropped = 0
			m.verbose("sample failed, holding last value", "error", err)
		}
	}

	if !m.signal.Initialized() {
		return res
	}

	value := m.signal.Value()
	if ev := m.timer.Tick(value, dt, m.cond); ev != nil {
		m.triggers++
		e := alert.NewEvent(m.name, m.signal.Metric(), ev.Value, ev.Threshold, ev.Duration)
		e.Message = m.signal.Status(value, true)
		res.event = &e
		res.handler = m.handler
	}

	active := m.timer.Active()
	if m.wasActive && !active {
		m.logger.Info("trigger cleared", "metric", m.signal.Metric(), "value", value)
	}
	m.wasActive = active

	if status := m.signal.Status(value, active); status != m.lastStatus {
		m.lastStatus = status
		res.status = &status
	}

	if m.sender != nil {
		if v, ok := m.throttle.MaybeEmit(value, m.frame, m.cfg.TelemetryInterval); ok {
			res.payload = &telemetry.Payload{
				Metric:  m.signal.Metric(),
				Value:   v,
				Context: m.signal.Context(v, active, m.timer.ExceedDuration()),
				Frame:   m.frame,
				Device:  m.cfg.Device,
			}
		}
	}

	m.verbose("tick",
		"frame", m.frame,
		"raw", m.signal.Raw(),
		"value", value,
		"exceed", m.timer.ExceedDuration(),
		"active", active)
	return res
}

// ensureReady opens the source if needed, retrying every RetryInterval
// ticks. Caller holds mu.
func (m *Monitor) ensureReady() bool {
	if m.ready {
		return true
	}
	initer, ok := m.source.(Initializer)
	if !ok {
		m.ready = true
		return true
	}
	if m.initTried && m.frame-m.lastInit < m.cfg.RetryInterval {
		return false
	}

	m.initTried = true
	m.lastInit = m.frame
	if err := initer.Init(); err != nil {
		m.verbose("source init failed, will retry", "error", err, "retry_ticks", m.cfg.RetryInterval)
		return false
	}
	m.logger.Info("source ready", "frame", m.frame)
	m.ready = true
	return true
}

func (m *Monitor) markUnavailable(err error) {
	m.verbose("source unavailable, skipping frame", "error", err)
	m.dropped = 0
	if _, ok := m.source.(Initializer); ok && m.ready {
		m.ready = false
		m.lastInit = m.frame
		m.initTried = true
	}
}

func (m *Monitor) verbose(msg string, args ...any) {
	if m.cfg.Verbose || debug.Enabled {
		m.logger.Debug(msg, args...)
	}
}

// CurrentValue returns the smoothed signal value.
func (m *Monitor) CurrentValue() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signal.Value()
}

// RawValue returns the last raw reading fed to the smoother.
func (m *Monitor) RawValue() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signal.Raw()
}

// IsTriggerActive reports whether the bound has been exceeded for longer
// than the trigger duration.
func (m *Monitor) IsTriggerActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer.Active()
}

// ExceedDuration returns the current continuous exceed time in seconds.
func (m *Monitor) ExceedDuration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer.ExceedDuration()
}

// Frame returns the number of ticks processed.
func (m *Monitor) Frame() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

// Snapshot returns the full monitor state.
func (m *Monitor) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Name:           m.name,
		Metric:         m.signal.Metric(),
		Value:          m.signal.Value(),
		Raw:            m.signal.Raw(),
		Ready:          m.ready,
		Initialized:    m.signal.Initialized(),
		Exceeding:      m.timer.Exceeding(),
		TriggerActive:  m.timer.Active(),
		ExceedDuration: m.timer.ExceedDuration(),
		Frame:          m.frame,
		Triggers:       m.triggers,
	}
}

// TelemetryStats returns the sender's counters, or false when telemetry
// is off.
func (m *Monitor) TelemetryStats() (telemetry.Stats, bool) {
	if m.sender == nil {
		return telemetry.Stats{}, false
	}
	return m.sender.Stats(), true
}

// Close waits for in-flight telemetry and releases the source if it
// implements io.Closer.
func (m *Monitor) Close() error {
	if m.sender != nil {
		m.sender.Wait()
	}
	if c, ok := m.source.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
