// lensmon-backend: telemetry backend for lensmon devices
// Receives brightness and pitch readings, keeps history and statistics,
// and streams accepted readings to websocket clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-lensmon/internal/config"
	"github.com/teslashibe/go-lensmon/internal/log"
	"github.com/teslashibe/go-lensmon/pkg/backend"
	"github.com/teslashibe/go-lensmon/pkg/store"
)

var (
	port       = flag.Int("port", config.DefaultPort, "HTTP server port")
	configPath = flag.String("config", "", "YAML config file (backend section)")
	dbPath     = flag.String("db", "", "SQLite file for readings (empty = memory only)")
	enableML   = flag.Bool("ml", false, "Enable the trend predictor")
	mlWindow   = flag.Int("ml-window", 32, "Readings used by the trend predictor")
	debugMode  = flag.Bool("debug", false, "Enable debug logging")
	pruneEvery = flag.Duration("prune", 0, "Store prune interval (0 = use config, default 1m)")
)

func main() {
	flag.Parse()

	// Override from environment
	*port = config.Port(*port)
	*dbPath = config.StorePath(*dbPath)

	level := config.LogLevel("info")
	if *debugMode {
		level = "debug"
	}
	log.Init(level)

	file, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	cfg := file.Backend
	cfg.Debug = cfg.Debug || *debugMode
	if *pruneEvery > 0 {
		cfg.PruneInterval = *pruneEvery
	}

	fmt.Println()
	fmt.Println("📊 lensmon backend v" + cfg.Version)
	fmt.Println("   brightness and posture telemetry")
	fmt.Println()

	analyzer := backend.NewAnalyzer(cfg.MaxHistory)
	opts := []backend.Option{backend.WithAnalyzer(analyzer)}

	var st *store.Store
	if *dbPath != "" {
		st, err = store.Open(*dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		defer st.Close()
		opts = append(opts, backend.WithStore(st))
		fmt.Printf("💾 Store: %s (keeping %d per metric, pruned every %v)\n", *dbPath, cfg.MaxHistory, cfg.PruneInterval)
	}
	if *enableML {
		opts = append(opts, backend.WithPredictor(backend.NewTrendPredictor(analyzer, *mlWindow)))
		fmt.Printf("🧠 ML: trend predictor over %d readings\n", *mlWindow)
	}

	srv, err := backend.New(cfg, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if n, err := srv.Warm(ctx); err != nil {
		log.Warn("could not warm history", "error", err)
	} else if n > 0 {
		fmt.Printf("♻️  Loaded %d stored readings\n", n)
	}
	srv.Start(ctx)

	go func() {
		addr := fmt.Sprintf(":%d", *port)
		fmt.Printf("🚀 Starting server on %s\n", addr)
		for _, name := range backend.MetricNames() {
			fmt.Printf("   POST   http://localhost:%d/api/%s\n", *port, name)
		}
		fmt.Printf("   Stats: http://localhost:%d/api/<metric>/stats\n", *port)
		fmt.Printf("   Live:  ws://localhost:%d/ws/live\n", *port)
		fmt.Printf("   Health: http://localhost:%d/health\n", *port)
		fmt.Println()

		if err := srv.Listen(addr); err != nil {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	fmt.Println("\n👋 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	fmt.Println("✅ Goodbye!")
}
