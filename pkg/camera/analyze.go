package camera

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// FrameSource yields whole frames for Analyze. *Capture implements it.
type FrameSource interface {
	Refresh() error
	FrameLuminance() (float64, error)
}

// Summary describes a finished Analyze run.
type Summary struct {
	Frames  int           `json:"frames"`
	Elapsed time.Duration `json:"elapsed"`
	Average float64       `json:"average"`
	Min     float64       `json:"min"`
	Max     float64       `json:"max"`
}

// FPS returns the processing speed of the run.
func (s Summary) FPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Elapsed.Seconds()
}

// FrameFunc receives the 1-based frame number and its mean luminance.
type FrameFunc func(frame int, luminance float64)

// Analyze reads src until it runs out of frames, computing the full-frame
// luminance of each one. A read failure is taken as the end of the video.
// With pace > 0 frames are spaced at least pace apart, for real-time
// playback. The summary is valid even when an error is returned.
func Analyze(ctx context.Context, src FrameSource, pace time.Duration, fn FrameFunc) (Summary, error) {
	start := time.Now()
	sum := Summary{Min: math.Inf(1), Max: math.Inf(-1)}
	total := 0.0

	finish := func(err error) (Summary, error) {
		sum.Elapsed = time.Since(start)
		if sum.Frames > 0 {
			sum.Average = total / float64(sum.Frames)
		} else {
			sum.Min, sum.Max = 0, 0
		}
		return sum, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		if err := src.Refresh(); err != nil {
			if errors.Is(err, ErrReadFailed) {
				return finish(nil)
			}
			return finish(fmt.Errorf("frame %d: %w", sum.Frames+1, err))
		}
		lum, err := src.FrameLuminance()
		if err != nil {
			return finish(fmt.Errorf("frame %d: %w", sum.Frames+1, err))
		}

		sum.Frames++
		total += lum
		sum.Min = math.Min(sum.Min, lum)
		sum.Max = math.Max(sum.Max, lum)
		if fn != nil {
			fn(sum.Frames, lum)
		}

		if pace > 0 {
			select {
			case <-ctx.Done():
				return finish(ctx.Err())
			case <-time.After(pace):
			}
		}
	}
}

// FormatLuminance renders v as a 0-1 decimal or, with percent set, as a
// percentage.
func FormatLuminance(v float64, percent bool) string {
	if percent {
		return fmt.Sprintf("%.2f%%", v*100)
	}
	return fmt.Sprintf("%.4f", v)
}
