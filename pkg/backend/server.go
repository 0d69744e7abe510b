package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-lensmon/internal/log"
	"github.com/teslashibe/go-lensmon/pkg/hub"
	"github.com/teslashibe/go-lensmon/pkg/store"
)

// Config holds backend settings.
type Config struct {
	AppName string `yaml:"app_name" json:"app_name"`
	Version string `yaml:"version" json:"version"`

	MaxHistory   int `yaml:"max_history" json:"max_history"`     // per metric
	HistoryLimit int `yaml:"history_limit" json:"history_limit"` // default ?limit=
	HistoryCap   int `yaml:"history_cap" json:"history_cap"`     // largest ?limit= honoured

	// PruneInterval is how often the store is trimmed to MaxHistory per
	// metric. Zero disables pruning.
	PruneInterval time.Duration `yaml:"prune_interval" json:"prune_interval"`

	// Debug enables request logging.
	Debug bool `yaml:"debug" json:"debug"`
}

// DefaultConfig returns the stock backend settings.
func DefaultConfig() Config {
	return Config{
		AppName:      "lensmon-backend",
		Version:      "1.0.0",
		MaxHistory:   DefaultMaxHistory,
		HistoryLimit: 100,
		HistoryCap:   1000,

		PruneInterval: time.Minute,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string
	if c.MaxHistory < 1 {
		errors = append(errors, "max_history must be >= 1")
	}
	if c.HistoryLimit < 1 {
		errors = append(errors, "history_limit must be >= 1")
	}
	if c.HistoryCap < c.HistoryLimit {
		errors = append(errors, "history_cap must be >= history_limit")
	}
	if c.PruneInterval < 0 {
		errors = append(errors, "prune_interval must be >= 0")
	}
	return errors
}

// Option configures a Server.
type Option func(*Server)

// WithStore persists every accepted reading.
func WithStore(st *store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithPredictor enables the ML endpoints and per-reading predictions.
func WithPredictor(p Predictor) Option {
	return func(s *Server) { s.predictor = p }
}

// WithAnalyzer shares an analyzer, e.g. with a TrendPredictor.
func WithAnalyzer(a *Analyzer) Option {
	return func(s *Server) { s.analyzer = a }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is the telemetry backend.
type Server struct {
	cfg       Config
	app       *fiber.App
	analyzer  *Analyzer
	store     *store.Store
	predictor Predictor
	live      *hub.Hub
	registry  *prometheus.Registry
	metrics   *serverMetrics
	logger    *slog.Logger
	started   time.Time
}

// New builds the fiber app and registers every route.
func New(cfg Config, opts ...Option) (*Server, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("backend: invalid config: %v", errs)
	}

	s := &Server{
		cfg:      cfg,
		live:     hub.New("live"),
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.analyzer == nil {
		s.analyzer = NewAnalyzer(cfg.MaxHistory)
	}
	if s.logger == nil {
		s.logger = log.With("component", "backend")
	}
	s.metrics = newServerMetrics(s.registry, s)

	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if cfg.Debug {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := app.Group("/api")
	api.Post("/ml/predict", s.handlePredict)
	api.Post("/ml/model/load", s.handleLoadModel)
	api.Post("/:metric", s.handleReceive)
	api.Get("/:metric/latest", s.handleLatest)
	api.Get("/:metric/history", s.handleHistory)
	api.Get("/:metric/stats", s.handleStats)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/live", websocket.New(s.handleLiveWS))
	s.registerIngestWS(app)

	s.app = app
	return s, nil
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App { return s.app }

// Analyzer returns the in-memory history.
func (s *Server) Analyzer() *Analyzer { return s.analyzer }

// Live returns the hub that streams accepted readings.
func (s *Server) Live() *hub.Hub { return s.live }

// Start runs the live hub until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	go s.live.Run(ctx)
	if s.store != nil && s.cfg.PruneInterval > 0 {
		go s.pruneLoop(ctx)
	}
}

func (s *Server) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Prune(ctx); err != nil && ctx.Err() == nil {
				s.metrics.storeErrors.Inc()
				s.logger.Warn("store prune failed", "error", err)
			}
		}
	}
}

// Prune trims the store to the newest MaxHistory readings of every metric
// and returns how many rows were removed.
func (s *Server) Prune(ctx context.Context) (int64, error) {
	if s.store == nil {
		return 0, nil
	}
	var total int64
	for _, name := range MetricNames() {
		n, err := s.store.Prune(ctx, name, s.cfg.MaxHistory)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", name, err)
		}
		total += n
	}
	if total > 0 {
		s.logger.Debug("store pruned", "removed", total)
	}
	return total, nil
}

// Stored returns the number of persisted readings per metric.
func (s *Server) Stored(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	if s.store == nil {
		return out, nil
	}
	for _, name := range MetricNames() {
		n, err := s.store.Count(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		out[name] = n
	}
	return out, nil
}

// Warm loads the newest stored readings of every metric into the
// analyzer and returns how many were loaded.
func (s *Server) Warm(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	total := 0
	for _, name := range MetricNames() {
		readings, err := s.store.Recent(ctx, name, s.cfg.MaxHistory)
		if err != nil {
			return total, fmt.Errorf("warm %s: %w", name, err)
		}
		s.analyzer.Load(readings)
		total += len(readings)
	}
	s.logger.Info("history warmed from store", "readings", total)
	return total, nil
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
