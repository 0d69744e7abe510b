package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-lensmon/pkg/alert"
	"github.com/teslashibe/go-lensmon/pkg/orientation"
	"github.com/teslashibe/go-lensmon/pkg/sampling"
)

const frameDT = 1.0 / 30

// flakySource fails Init a fixed number of times before succeeding.
type flakySource struct {
	failures  int
	initCalls int
	closed    bool
	q         orientation.Quaternion
}

func (s *flakySource) Init() error {
	s.initCalls++
	if s.initCalls <= s.failures {
		return errors.New("sensor busy")
	}
	return nil
}

func (s *flakySource) Orientation() (orientation.Quaternion, error) {
	return s.q, nil
}

func (s *flakySource) Close() error {
	s.closed = true
	return nil
}

func solidImage(c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func tickFor(m *Monitor, seconds float64) {
	for elapsed := 0.0; elapsed < seconds; elapsed += frameDT {
		m.Tick(context.Background(), frameDT)
	}
}

func TestPosture_LookingDownScenario(t *testing.T) {
	bus := alert.NewBus()
	events, cancel := bus.Subscribe(8)
	defer cancel()

	src := orientation.NewStatic(orientation.FromAxisAngle(1, 0, 0, 10))
	m, err := NewPosture(DefaultPostureConfig(), src, WithBus(bus))
	if err != nil {
		t.Fatalf("NewPosture: %v", err)
	}

	var firedAt float64
	elapsed := 0.0
	for elapsed < 5.1 {
		elapsed += frameDT
		m.Tick(context.Background(), frameDT)
		if firedAt == 0 && bus.Raised() {
			firedAt = elapsed
		}
	}

	if len(events) != 1 {
		t.Fatalf("got %d alert events, want 1", len(events))
	}
	ev := <-events
	if ev.Monitor != "posture" || ev.Metric != MetricPitch {
		t.Errorf("event = %+v", ev)
	}
	if math.Abs(firedAt-5.0) > 0.05 {
		t.Errorf("fired at %.3fs, want ≈5.0s", firedAt)
	}
	if math.Abs(m.CurrentValue()-10) > 1e-6 {
		t.Errorf("CurrentValue = %v, want 10", m.CurrentValue())
	}
	if !m.IsTriggerActive() {
		t.Error("trigger should be active")
	}
	if s := m.Snapshot(); s.Triggers != 1 || !s.Exceeding {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestPosture_RearmsAfterRecovery(t *testing.T) {
	src := orientation.NewStatic(orientation.FromAxisAngle(1, 0, 0, 5))
	cfg := DefaultPostureConfig()
	cfg.SmoothingFactor = 1
	cfg.TriggerDuration = 1

	var mu sync.Mutex
	var got []alert.Event
	m, err := NewPosture(cfg, src, WithTriggerHandler(TriggerFunc(func(_ context.Context, ev alert.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})))
	if err != nil {
		t.Fatalf("NewPosture: %v", err)
	}

	tickFor(m, 3)
	src.Set(orientation.FromAxisAngle(1, 0, 0, 35))
	tickFor(m, 1)
	if m.IsTriggerActive() || m.ExceedDuration() != 0 {
		t.Fatalf("expected reset after sitting up, state %+v", m.Snapshot())
	}
	src.Set(orientation.FromAxisAngle(1, 0, 0, 5))
	tickFor(m, 3)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Errorf("got %d triggers, want 2 (one per episode)", len(got))
	}
}

func TestPosture_UnavailableSourceSkipsFrames(t *testing.T) {
	var available bool
	src := orientation.SourceFunc(func() (orientation.Quaternion, error) {
		if !available {
			return orientation.Quaternion{}, orientation.ErrUnavailable
		}
		return orientation.FromAxisAngle(1, 0, 0, 0), nil
	})

	bus := alert.NewBus()
	m, err := NewPosture(DefaultPostureConfig(), src, WithBus(bus))
	if err != nil {
		t.Fatalf("NewPosture: %v", err)
	}

	tickFor(m, 10)
	if s := m.Snapshot(); s.Initialized || s.ExceedDuration != 0 {
		t.Fatalf("unavailable source must not feed the timer: %+v", s)
	}
	if bus.Raised() {
		t.Fatal("no alert expected without readings")
	}

	available = true
	m.Tick(context.Background(), frameDT)
	if !m.Snapshot().Initialized {
		t.Error("expected reading once source is available")
	}
}

func TestMonitor_RetriesInit(t *testing.T) {
	src := &flakySource{failures: 2, q: orientation.Identity}
	cfg := DefaultPostureConfig()
	cfg.RetryInterval = 3

	m, err := NewPosture(cfg, src)
	if err != nil {
		t.Fatalf("NewPosture: %v", err)
	}

	for i := 0; i < 6; i++ {
		m.Tick(context.Background(), frameDT)
	}
	if src.initCalls != 2 || m.Snapshot().Ready {
		t.Fatalf("after 6 ticks: %d init calls, ready=%v", src.initCalls, m.Snapshot().Ready)
	}

	m.Tick(context.Background(), frameDT)
	if src.initCalls != 3 || !m.Snapshot().Ready {
		t.Errorf("tick 7 should succeed: %d init calls, ready=%v", src.initCalls, m.Snapshot().Ready)
	}

	if err := m.Close(); err != nil || !src.closed {
		t.Errorf("Close: %v closed=%v", err, src.closed)
	}
}

func TestMonitor_TelemetryThrottled(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(b, &body)
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
	}))
	defer srv.Close()

	cfg := DefaultPostureConfig()
	cfg.TelemetryEnabled = true
	cfg.TelemetryURL = srv.URL
	cfg.TelemetryInterval = 10
	cfg.Device = "bench"

	m, err := NewPosture(cfg, orientation.NewStatic(orientation.FromAxisAngle(1, 0, 0, 30)))
	if err != nil {
		t.Fatalf("NewPosture: %v", err)
	}
	for i := 0; i < 30; i++ {
		m.Tick(context.Background(), frameDT)
	}
	m.Close()

	if st, ok := m.TelemetryStats(); !ok || st.Sent != 3 || st.Failed != 0 {
		t.Errorf("telemetry stats = %+v, %v", st, ok)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 3 {
		t.Fatalf("got %d sends, want 3", len(bodies))
	}
	for _, b := range bodies {
		if math.Abs(b["pitch"].(float64)-30) > 1e-6 {
			t.Errorf("pitch = %v", b["pitch"])
		}
		if b["device"] != "bench" || b["posture_alert"] != false {
			t.Errorf("body = %v", b)
		}
	}
}

func TestMonitor_DisplayShowsChanges(t *testing.T) {
	disp := &Latest{}
	cfg := DefaultPostureConfig()
	cfg.TriggerDuration = 0.5
	m, err := NewPosture(cfg, orientation.NewStatic(orientation.FromAxisAngle(1, 0, 0, 10)), WithDisplay(disp))
	if err != nil {
		t.Fatalf("NewPosture: %v", err)
	}

	tickFor(m, 0.3)
	if disp.Text() != "Pitch: 10.0°" || disp.Updates() != 1 {
		t.Errorf("display = %q after %d updates", disp.Text(), disp.Updates())
	}

	tickFor(m, 0.5)
	if !strings.Contains(disp.Text(), "Posture alert") {
		t.Errorf("display = %q, want alert", disp.Text())
	}
	if disp.Updates() != 2 {
		t.Errorf("updates = %d, want 2", disp.Updates())
	}
}

func TestMonitor_SetTriggerHandler(t *testing.T) {
	bus := alert.NewBus()
	cfg := DefaultPostureConfig()
	cfg.TriggerDuration = 0.1
	m, _ := NewPosture(cfg, orientation.NewStatic(orientation.Identity), WithBus(bus))

	var custom int
	m.SetTriggerHandler(TriggerFunc(func(ctx context.Context, ev alert.Event) {
		custom++
		if v := m.CurrentValue(); math.Abs(v) > 1e-9 {
			t.Errorf("accessor inside handler = %v", v)
		}
	}))
	tickFor(m, 0.5)

	if custom != 1 {
		t.Errorf("custom handler called %d times", custom)
	}
	if bus.Raised() {
		t.Error("custom handler replaces the bus publisher")
	}
}

func TestBrightness_DarkRoomTriggers(t *testing.T) {
	bus := alert.NewBus()
	field := sampling.ImageField{Img: solidImage(color.RGBA{20, 20, 20, 255})}
	cfg := DefaultBrightnessConfig()

	m, err := NewBrightness(cfg, field, rand.New(rand.NewPCG(1, 1)), WithBus(bus))
	if err != nil {
		t.Fatalf("NewBrightness: %v", err)
	}

	tickFor(m, 5.5)
	if !bus.Raised() {
		t.Fatal("expected darkness alert")
	}
	ev, _ := bus.Last()
	if ev.Metric != MetricBrightness {
		t.Errorf("metric = %s", ev.Metric)
	}
	want := 20.0 / 255
	if math.Abs(m.CurrentValue()-want) > 1e-3 {
		t.Errorf("CurrentValue = %v, want %v", m.CurrentValue(), want)
	}
}

func TestBrightness_BrightRoomStaysQuiet(t *testing.T) {
	bus := alert.NewBus()
	field := sampling.ImageField{Img: solidImage(color.White)}
	m, err := NewBrightness(DefaultBrightnessConfig(), field, nil, WithBus(bus))
	if err != nil {
		t.Fatalf("NewBrightness: %v", err)
	}
	tickFor(m, 10)
	if bus.Raised() || m.IsTriggerActive() {
		t.Error("bright room must not alert")
	}
}

// switchField starts unready, then serves a colour.
type switchField struct {
	ready bool
	img   sampling.ImageField
}

func (f *switchField) Width() int {
	if !f.ready {
		return 0
	}
	return f.img.Width()
}

func (f *switchField) Height() int {
	if !f.ready {
		return 0
	}
	return f.img.Height()
}

func (f *switchField) Sample(u, v float64) (sampling.RGB, error) {
	return f.img.Sample(u, v)
}

func TestBrightness_WaitsForField(t *testing.T) {
	f := &switchField{img: sampling.ImageField{Img: solidImage(color.White)}}
	cfg := DefaultBrightnessConfig()
	cfg.CalculationInterval = 1
	m, err := NewBrightness(cfg, f, nil)
	if err != nil {
		t.Fatalf("NewBrightness: %v", err)
	}

	tickFor(m, 1)
	if m.Snapshot().Initialized {
		t.Fatal("no reading expected before the field is ready")
	}

	f.ready = true
	m.Tick(context.Background(), frameDT)
	if math.Abs(m.CurrentValue()-1) > 1e-9 {
		t.Errorf("CurrentValue = %v, want 1", m.CurrentValue())
	}
}

func TestNewMonitor_Errors(t *testing.T) {
	if _, err := NewPosture(DefaultPostureConfig(), nil); !errors.Is(err, ErrNoSource) {
		t.Errorf("nil source err = %v", err)
	}

	bad := DefaultPostureConfig()
	bad.SmoothingFactor = 0
	if _, err := NewPosture(bad, orientation.NewStatic(orientation.Identity)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad config err = %v", err)
	}

	noSamples := DefaultBrightnessConfig()
	noSamples.MaxSamples = 0
	field := sampling.ImageField{Img: solidImage(color.White)}
	if _, err := NewBrightness(noSamples, field, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero samples err = %v", err)
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	m, _ := NewPosture(DefaultPostureConfig(), orientation.NewStatic(orientation.Identity))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		Run(ctx, 100, m)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if m.Frame() == 0 {
		t.Error("expected at least one tick")
	}
}

// droppyField is an openable field whose Refresh result is scripted.
type droppyField struct {
	sampling.ImageField
	initCalls  int
	refreshErr error
}

func (f *droppyField) Init() error {
	f.initCalls++
	return nil
}

func (f *droppyField) Refresh() error { return f.refreshErr }

func TestBrightness_DroppedFramesTolerated(t *testing.T) {
	errDropped := fmt.Errorf("grab: %w", sampling.ErrFrameDropped)

	tests := []struct {
		name      string
		script    []error
		wantInits int
		wantReady bool
	}{
		{"a few drops", []error{errDropped, errDropped, errDropped}, 1, true},
		{"drops reset by a good frame", []error{errDropped, errDropped, errDropped, nil, errDropped, errDropped, errDropped}, 1, true},
		{"too many drops", []error{errDropped, errDropped, errDropped, errDropped}, 1, false},
		{"too many drops then retry", []error{errDropped, errDropped, errDropped, errDropped, nil}, 2, true},
		{"device gone", []error{errors.New("device closed")}, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &droppyField{ImageField: sampling.ImageField{Img: solidImage(color.White)}}
			cfg := DefaultBrightnessConfig()
			cfg.CalculationInterval = 1
			cfg.RetryInterval = 1
			cfg.MaxDroppedFrames = 3
			m, err := NewBrightness(cfg, f, nil)
			if err != nil {
				t.Fatalf("NewBrightness: %v", err)
			}

			m.Tick(context.Background(), frameDT)
			if f.initCalls != 1 || !m.Snapshot().Ready {
				t.Fatalf("first tick: inits = %d, ready = %v", f.initCalls, m.Snapshot().Ready)
			}

			for _, err := range tt.script {
				f.refreshErr = err
				m.Tick(context.Background(), frameDT)
			}

			if f.initCalls != tt.wantInits {
				t.Errorf("inits = %d, want %d", f.initCalls, tt.wantInits)
			}
			if got := m.Snapshot().Ready; got != tt.wantReady {
				t.Errorf("ready = %v, want %v", got, tt.wantReady)
			}
			if math.Abs(m.CurrentValue()-1) > 1e-9 {
				t.Errorf("CurrentValue = %v, want the held value 1", m.CurrentValue())
			}
		})
	}
}
