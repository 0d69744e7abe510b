// lensmon: posture and ambient-light monitor
//
// Watches head pitch (from a simulated or fixed orientation) and scene
// brightness (from a webcam or video file) and alerts when either stays
// past its threshold for too long. Readings can be streamed to
// lensmon-backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-lensmon/internal/config"
	"github.com/teslashibe/go-lensmon/internal/log"
	"github.com/teslashibe/go-lensmon/pkg/alert"
	"github.com/teslashibe/go-lensmon/pkg/camera"
	"github.com/teslashibe/go-lensmon/pkg/debug"
	"github.com/teslashibe/go-lensmon/pkg/monitor"
	"github.com/teslashibe/go-lensmon/pkg/orientation"
	"github.com/teslashibe/go-lensmon/pkg/threshold"
)

var (
	configPath  = flag.String("config", "", "YAML config file")
	printConfig = flag.Bool("print-config", false, "Print the effective config and exit")

	enablePosture    = flag.Bool("posture", true, "Run the posture monitor")
	enableBrightness = flag.Bool("brightness", false, "Run the brightness monitor (needs a camera or -video)")
	fps              = flag.Int("fps", 30, "Tick rate")

	head       = flag.String("head", "nod", "Orientation source: nod (simulated) or fixed")
	headPitch  = flag.Float64("head-pitch", 10, "Pitch in degrees for -head=fixed, centre for -head=nod")
	nodPeriod  = flag.Duration("nod-period", 20*time.Second, "Simulated nod cycle")
	nodSwing   = flag.Float64("nod-swing", 20, "Simulated nod amplitude in degrees")
	pitchMode  = flag.String("pitch-mode", "atan2", "Pitch formula: atan2 or asin")
	pThreshold = flag.Float64("posture-threshold", 20, "Pitch threshold in degrees")
	pCompare   = flag.String("posture-compare", "lt", "Posture comparison: lt or gt")
	pDuration  = flag.Float64("posture-duration", 5, "Seconds past threshold before alerting")
	pSmoothing = flag.Float64("posture-smoothing", 0.2, "Posture smoothing factor (0-1]")

	cameraPreset = flag.String("camera-preset", "default", "Camera preset: "+fmt.Sprint(camera.PresetNames()))
	cameraDevice = flag.Int("camera", 0, "Camera device index")
	videoFile    = flag.String("video", "", "Read frames from a video file instead of a camera")
	loopVideo    = flag.Bool("loop", false, "Rewind -video at end of file")
	bThreshold   = flag.Float64("brightness-threshold", 0.3, "Brightness threshold (0-1)")
	bCompare     = flag.String("brightness-compare", "lt", "Brightness comparison: lt or gt")
	bDuration    = flag.Float64("brightness-duration", 5, "Seconds past threshold before alerting")
	bSmoothing   = flag.Float64("brightness-smoothing", 0.1, "Brightness smoothing factor (0-1]")
	bSamples     = flag.Int("samples", 100, "Sample points per frame")
	bInterval    = flag.Int("interval", 5, "Ticks between brightness samples")
	bFovea       = flag.Float64("fovea", 0.3, "Fovea size as a fraction of the frame")
	seed         = flag.Uint64("seed", 0, "Seed for sample positions (0 = random)")

	telemetryOn = flag.Bool("telemetry", false, "Send readings to the backend")
	backendURL  = flag.String("backend", config.DefaultBackendURL, "Backend base URL")
	sendEvery   = flag.Int("send-interval", 30, "Ticks between telemetry sends")
	device      = flag.String("device", "", "Device name reported with readings")
	retryEvery  = flag.Int("retry-interval", 30, "Ticks between source re-init attempts")
	maxDropped  = flag.Int("max-dropped", 30, "Consecutive dropped camera frames before reopening")

	verbose      = flag.Bool("verbose", false, "Verbose per-tick logs")
	debugMode    = flag.Bool("debug", false, "Enable debug logging")
	debugSamples = flag.Bool("debug-samples", false, "Print per-frame sample counts")
	logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	if err := applyFlags(&cfg, set); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(2)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "❌ invalid config: %v\n", errs)
		os.Exit(2)
	}

	if *printConfig {
		out, _ := cfg.Marshal()
		os.Stdout.Write(out)
		return
	}

	debug.Enabled = *debugMode
	debug.Samples = *debugSamples
	if *debugMode || *verbose {
		cfg.LogLevel = "debug"
	}
	log.Init(config.LogLevel(cfg.LogLevel))
	debug.Log("🐛 config: fps=%d posture=%v brightness=%v\n", cfg.FPS, *enablePosture, *enableBrightness)

	fmt.Println()
	fmt.Println("👓 lensmon")
	fmt.Println("   posture and ambient light monitor")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := alert.NewBus()
	alerts, cancelAlerts := bus.Subscribe(16)
	defer cancelAlerts()
	go printAlerts(alerts)

	display := &monitor.WriterDisplay{W: os.Stdout}
	var monitors []*monitor.Monitor

	if *enablePosture {
		m, err := monitor.NewPosture(cfg.Posture, orientationSource(),
			monitor.WithBus(bus), monitor.WithDisplay(display))
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ posture: %v\n", err)
			os.Exit(1)
		}
		monitors = append(monitors, m)
		fmt.Printf("🧍 Posture: alert when pitch %s %.1f° for %.1fs\n",
			cfg.Posture.Compare, cfg.Posture.Threshold, cfg.Posture.TriggerDuration)
	}

	if *enableBrightness {
		capture, err := camera.New(cameraConfig(cfg.Camera))
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ camera: %v\n", err)
			os.Exit(1)
		}
		m, err := monitor.NewBrightness(cfg.Brightness, capture, sampleRNG(),
			monitor.WithBus(bus), monitor.WithDisplay(display))
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ brightness: %v\n", err)
			os.Exit(1)
		}
		monitors = append(monitors, m)
		fmt.Printf("💡 Brightness: alert when level %s %.2f for %.1fs (%s)\n",
			cfg.Brightness.Compare, cfg.Brightness.Threshold, cfg.Brightness.TriggerDuration,
			capture.Config().Source())
	}

	if len(monitors) == 0 {
		fmt.Println("⚠️  Nothing to monitor: enable -posture or -brightness")
		os.Exit(2)
	}
	for _, m := range monitors {
		if c := m.Config(); c.TelemetryEnabled {
			fmt.Printf("📡 Telemetry: %s every %d ticks as %q\n", c.TelemetryURL, c.TelemetryInterval, c.Device)
		}
	}

	fmt.Println("🔄 Monitoring (Ctrl+C to stop)")
	fmt.Println()
	monitor.Run(ctx, cfg.FPS, monitors...)

	fmt.Println("\n👋 Shutting down...")
	for _, m := range monitors {
		if st, ok := m.TelemetryStats(); ok {
			fmt.Printf("   %s telemetry: %d sent, %d failed\n", m.Name(), st.Sent, st.Failed)
		}
		if err := m.Close(); err != nil {
			log.Warn("close failed", "monitor", m.Name(), "error", err)
		}
	}
	fmt.Println("✅ Goodbye!")
}

// applyFlags copies explicitly set flags over the loaded config, then the
// environment over both.
func applyFlags(cfg *config.File, set map[string]bool) error {
	if set["fps"] {
		cfg.FPS = *fps
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}

	p := &cfg.Posture
	if set["posture-threshold"] {
		p.Threshold = *pThreshold
	}
	if set["posture-compare"] {
		c, err := threshold.ParseCompare(*pCompare)
		if err != nil {
			return err
		}
		p.Compare = c
	}
	if set["posture-duration"] {
		p.TriggerDuration = *pDuration
	}
	if set["posture-smoothing"] {
		p.SmoothingFactor = *pSmoothing
	}
	if set["pitch-mode"] {
		m, err := orientation.ParseMode(*pitchMode)
		if err != nil {
			return err
		}
		p.PitchMode = m
	}

	b := &cfg.Brightness
	if set["brightness-threshold"] {
		b.Threshold = *bThreshold
	}
	if set["brightness-compare"] {
		c, err := threshold.ParseCompare(*bCompare)
		if err != nil {
			return err
		}
		b.Compare = c
	}
	if set["brightness-duration"] {
		b.TriggerDuration = *bDuration
	}
	if set["brightness-smoothing"] {
		b.SmoothingFactor = *bSmoothing
	}
	if set["samples"] {
		b.MaxSamples = *bSamples
	}
	if set["interval"] {
		b.CalculationInterval = *bInterval
	}
	if set["fovea"] {
		b.FoveaSize = *bFovea
	}

	if set["camera-preset"] {
		cfg.Camera.Preset = *cameraPreset
	}
	if set["camera"] {
		cfg.Camera.Device = *cameraDevice
	}
	if set["video"] {
		cfg.Camera.File = *videoFile
	}
	if set["loop"] {
		cfg.Camera.Loop = *loopVideo
	}

	base := config.BackendURL(*backendURL)
	dev := *device
	if dev == "" {
		dev = config.Device(config.DefaultDevice)
	}
	for _, mc := range []*monitor.Config{p, b} {
		if set["telemetry"] {
			mc.TelemetryEnabled = *telemetryOn
		}
		if set["send-interval"] {
			mc.TelemetryInterval = *sendEvery
		}
		if set["retry-interval"] {
			mc.RetryInterval = *retryEvery
		}
		if set["max-dropped"] {
			mc.MaxDroppedFrames = *maxDropped
		}
		if set["verbose"] {
			mc.Verbose = *verbose
		}
		if set["device"] || mc.Device == config.DefaultDevice {
			mc.Device = dev
		}
	}
	if set["backend"] || os.Getenv("LENSMON_BACKEND_URL") != "" {
		p.TelemetryURL = config.MetricURL(base, "pitch")
		b.TelemetryURL = config.MetricURL(base, "brightness")
	}
	return nil
}

func orientationSource() orientation.Source {
	if *head == "fixed" {
		return orientation.NewStatic(orientation.FromAxisAngle(1, 0, 0, *headPitch))
	}
	return orientation.NewNodding(*nodPeriod, *headPitch+*nodSwing, *nodSwing)
}

func cameraConfig(c config.Camera) camera.Config {
	cfg := camera.DefaultConfig()
	if p := camera.GetPreset(c.Preset); p != nil {
		cfg = *p
	} else if c.Preset != "" {
		log.Warn("unknown camera preset, using default", "preset", c.Preset)
	}
	cfg.Device = c.Device
	cfg.File = c.File
	cfg.Loop = c.Loop
	return cfg
}

func sampleRNG() *rand.Rand {
	if *seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(*seed, *seed))
}

func printAlerts(alerts <-chan alert.Event) {
	for ev := range alerts {
		fmt.Printf("🚨 [%s] %s %.2f past %.2f for %.1fs\n",
			ev.At.Format("15:04:05"), ev.Metric, ev.Value, ev.Threshold, ev.Duration)
	}
}
