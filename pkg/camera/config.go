// Package camera reads frames from a webcam or video file through OpenCV
// and exposes the latest frame as a sampling.Field.
package camera

import "fmt"

// Config holds capture settings.
type Config struct {
	// === Source ===
	Device int    `json:"device" yaml:"device"` // V4L2 / AVFoundation index
	File   string `json:"file" yaml:"file"`     // video file or stream URL, overrides Device

	// === Resolution ===
	Width     int `json:"width" yaml:"width"`         // requested frame width, 0 = driver default
	Height    int `json:"height" yaml:"height"`       // requested frame height, 0 = driver default
	Framerate int `json:"framerate" yaml:"framerate"` // requested FPS, 0 = driver default

	// === Exposure ===
	// AutoExposure leaves exposure to the driver. Disable it when measuring
	// ambient light so the camera does not compensate for a dark room.
	AutoExposure bool    `json:"auto_exposure" yaml:"auto_exposure"`
	Exposure     float64 `json:"exposure" yaml:"exposure"` // driver units, used when AutoExposure is false

	// Loop rewinds a file source when it reaches the end.
	Loop bool `json:"loop" yaml:"loop"`
}

const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig opens the first camera at 640x480. Sampling only needs a
// few hundred pixels, so there is no benefit in higher resolutions.
func DefaultConfig() Config {
	return Config{
		Device:       0,
		Width:        640,
		Height:       480,
		Framerate:    30,
		AutoExposure: true,
	}
}

// Source describes where frames come from, for logs.
func (c *Config) Source() string {
	if c.File != "" {
		return c.File
	}
	return fmt.Sprintf("device %d", c.Device)
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.File == "" && c.Device < 0 {
		errors = append(errors, "device must be >= 0")
	}
	if c.Width != 0 && (c.Width < 16 || c.Width > MaxWidth) {
		errors = append(errors, "width must be 0 (default) or between 16 and 3840")
	}
	if c.Height != 0 && (c.Height < 16 || c.Height > MaxHeight) {
		errors = append(errors, "height must be 0 (default) or between 16 and 2160")
	}
	if c.Framerate < 0 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 0 and 120")
	}
	if c.Loop && c.File == "" {
		errors = append(errors, "loop requires a file source")
	}

	return errors
}
