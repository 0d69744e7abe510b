package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-lensmon/internal/httpc"
)

// Config holds sender configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	Enabled bool
	URL     string
	Device  string
	Timeout time.Duration
	Verbose bool
	Client  *http.Client
	Logger  *slog.Logger
}

// Option is a functional option for configuring a Sender.
type Option func(*Config)

// WithEnabled turns sending on or off.
func WithEnabled(enabled bool) Option {
	return func(c *Config) { c.Enabled = enabled }
}

// WithURL sets the backend endpoint readings are POSTed to.
func WithURL(url string) Option {
	return func(c *Config) { c.URL = url }
}

// WithDevice sets the device name stamped on every payload.
func WithDevice(device string) Option {
	return func(c *Config) { c.Device = device }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithVerbose logs every send outcome, not only failures.
func WithVerbose(v bool) Option {
	return func(c *Config) { c.Verbose = v }
}

// WithHTTPClient overrides the shared client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.Client = client }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns the defaults used by NewSender.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Device:  "lensmon",
		Timeout: httpc.DefaultTimeout,
		Client:  httpc.Client,
		Logger:  slog.Default(),
	}
}

// Stats counts send outcomes.
type Stats struct {
	Sent     uint64 `json:"sent"`
	Failed   uint64 `json:"failed"`
	InFlight int64  `json:"in_flight"`
}

// Sender POSTs payloads without blocking the caller.
type Sender struct {
	cfg Config

	sent     atomic.Uint64
	failed   atomic.Uint64
	inFlight atomic.Int64
	wg       sync.WaitGroup
}

// NewSender creates a sender. It returns ErrNoURL when enabled without an
// endpoint.
func NewSender(opts ...Option) (*Sender, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Enabled && cfg.URL == "" {
		return nil, ErrNoURL
	}
	if cfg.Client == nil {
		cfg.Client = httpc.Client
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sender{cfg: *cfg}, nil
}

// Enabled reports whether sends go out.
func (s *Sender) Enabled() bool {
	return s.cfg.Enabled
}

// Device returns the configured device name.
func (s *Sender) Device() string {
	return s.cfg.Device
}

// Send dispatches p and returns immediately. The returned channel receives
// exactly one Result and is buffered, so callers that never read it do not
// leak the goroutine. Concurrent sends are not coalesced.
func (s *Sender) Send(ctx context.Context, p Payload) <-chan Result {
	out := make(chan Result, 1)
	if p.Device == "" {
		p.Device = s.cfg.Device
	}
	if !s.cfg.Enabled {
		out <- Result{Payload: p, Err: ErrDisabled}
		return out
	}

	s.wg.Add(1)
	s.inFlight.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Add(-1)
		res := s.post(ctx, p)
		s.record(res)
		out <- res
	}()
	return out
}

// Wait blocks until every in-flight send has finished. It is meant for
// shutdown and tests; the tick loop never calls it.
func (s *Sender) Wait() {
	s.wg.Wait()
}

// Stats returns a snapshot of send counters.
func (s *Sender) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Failed: s.failed.Load(), InFlight: s.inFlight.Load()}
}

func (s *Sender) post(ctx context.Context, p Payload) Result {
	start := time.Now()
	res := Result{Payload: p}

	body, err := json.Marshal(p)
	if err != nil {
		res.Err = fmt.Errorf("encode payload: %w", err)
		return res
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	resp, err := httpc.PostJSON(ctx, s.cfg.Client, s.cfg.URL, body)
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("post %s: %w", s.cfg.URL, err)
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		res.Err = &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
		return res
	}
	io.Copy(io.Discard, resp.Body)
	return res
}

func (s *Sender) record(res Result) {
	if res.Err != nil {
		s.failed.Add(1)
		if s.cfg.Verbose {
			s.cfg.Logger.Warn("telemetry send failed",
				"metric", res.Payload.Metric,
				"frame", res.Payload.Frame,
				"error", res.Err)
		}
		return
	}
	s.sent.Add(1)
	if s.cfg.Verbose {
		s.cfg.Logger.Debug("telemetry sent",
			"metric", res.Payload.Metric,
			"value", res.Payload.Value,
			"status", res.StatusCode,
			"latency", res.Latency)
	}
}
