// lensmon-analyze: full-frame brightness of a video file
//
// Reads every frame of a video, prints its mean WCAG relative luminance
// and finishes with a summary of the run.
//
// Usage:
//
//	lensmon-analyze [-p] [-realtime] video.mp4
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/teslashibe/go-lensmon/internal/config"
	"github.com/teslashibe/go-lensmon/internal/log"
	"github.com/teslashibe/go-lensmon/pkg/camera"
)

var (
	percentage bool
	realtime   = flag.Bool("realtime", false, "Pace frames at the video's own frame rate")
	quiet      = flag.Bool("quiet", false, "Only print the summary")
	logLevel   = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
)

func init() {
	flag.BoolVar(&percentage, "p", false, "Show brightness as a percentage instead of 0-1")
	flag.BoolVar(&percentage, "percentage", false, "Show brightness as a percentage instead of 0-1")
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] video\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	log.Init(config.LogLevel(*logLevel))

	path := flag.Arg(0)
	cfg := camera.DefaultConfig()
	cfg.File = path
	cfg.Width, cfg.Height, cfg.Framerate = 0, 0, 0

	capture, err := camera.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	defer capture.Close()
	if err := capture.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Could not open video file %q: %v\n", path, err)
		os.Exit(1)
	}

	info, err := capture.Info()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	total := "?"
	if info.FrameCount > 0 {
		total = fmt.Sprint(info.FrameCount)
	}

	fmt.Printf("🎞️  Processing video: %s\n", filepath.Base(path))
	fmt.Printf("   Resolution: %dx%d, FPS: %.2f, Frames: %s\n", info.Width, info.Height, info.FPS, total)
	fmt.Println(strings.Repeat("-", 50))

	var pace time.Duration
	if *realtime && info.FPS > 0 {
		pace = time.Duration(float64(time.Second) / info.FPS)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum, err := camera.Analyze(ctx, capture, pace, func(frame int, lum float64) {
		if !*quiet {
			fmt.Printf("\rFrame %d/%s: Brightness = %s", frame, total, camera.FormatLuminance(lum, percentage))
		}
	})

	fmt.Printf("\n%s\n", strings.Repeat("=", 50))
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Println("⏹️  Stopped early")
	case err != nil:
		fmt.Fprintf(os.Stderr, "❌ Error processing %q: %v\n", path, err)
	default:
		fmt.Println("✅ Processing complete!")
	}
	fmt.Printf("   Total frames processed: %d\n", sum.Frames)
	fmt.Printf("   Time elapsed: %.2f seconds\n", sum.Elapsed.Seconds())
	if sum.Frames > 0 {
		fmt.Printf("   Average processing speed: %.2f FPS\n", sum.FPS())
		fmt.Printf("   Brightness: avg %s, min %s, max %s\n",
			camera.FormatLuminance(sum.Average, percentage),
			camera.FormatLuminance(sum.Min, percentage),
			camera.FormatLuminance(sum.Max, percentage))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}
