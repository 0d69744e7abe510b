package monitor

import (
	"fmt"

	"github.com/teslashibe/go-lensmon/pkg/orientation"
	"github.com/teslashibe/go-lensmon/pkg/threshold"
)

// Config holds every tunable parameter of a monitor.
// It can be loaded from YAML and overridden by command-line flags.
type Config struct {
	// === Trigger ===
	Threshold       float64           `yaml:"threshold" json:"threshold"`
	Compare         threshold.Compare `yaml:"compare" json:"compare"`
	TriggerDuration float64           `yaml:"trigger_duration_seconds" json:"trigger_duration_seconds"`

	// === Sampling ===
	SmoothingFactor     float64          `yaml:"smoothing_factor" json:"smoothing_factor"`         // 0-1, higher = more weight on new reading
	CalculationInterval int              `yaml:"calculation_interval" json:"calculation_interval"` // ticks between samples
	MaxSamples          int              `yaml:"max_samples" json:"max_samples"`                   // field points per frame
	FoveaSize           float64          `yaml:"fovea_size" json:"fovea_size"`                     // fraction of the field, 0-1
	PitchMode           orientation.Mode `yaml:"pitch_mode" json:"pitch_mode"`

	// === Source recovery ===
	RetryInterval    int `yaml:"retry_interval" json:"retry_interval"`         // ticks between re-init attempts
	MaxDroppedFrames int `yaml:"max_dropped_frames" json:"max_dropped_frames"` // consecutive dropped frames before re-init

	// === Telemetry ===
	TelemetryEnabled  bool   `yaml:"telemetry_enabled" json:"telemetry_enabled"`
	TelemetryURL      string `yaml:"telemetry_url" json:"telemetry_url"`
	TelemetryInterval int    `yaml:"telemetry_interval" json:"telemetry_interval"` // ticks between sends
	Device            string `yaml:"device" json:"device"`

	// === Logging ===
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// DefaultPostureConfig watches for the head held below 20° pitch for 5s.
func DefaultPostureConfig() Config {
	return Config{
		Threshold:       20,
		Compare:         threshold.LessThan,
		TriggerDuration: 5,

		SmoothingFactor:     0.2,
		CalculationInterval: 1,
		PitchMode:           orientation.ModeATan2,

		RetryInterval:    30,
		MaxDroppedFrames: 30,

		TelemetryEnabled:  false,
		TelemetryURL:      "http://localhost:5000/api/pitch",
		TelemetryInterval: 30, // once a second at 30 fps
		Device:            "lensmon",
	}
}

// DefaultBrightnessConfig watches for the scene staying darker than 0.3
// relative luminance for 5s.
func DefaultBrightnessConfig() Config {
	return Config{
		Threshold:       0.3,
		Compare:         threshold.LessThan,
		TriggerDuration: 5,

		SmoothingFactor:     0.1,
		CalculationInterval: 5,
		MaxSamples:          100,
		FoveaSize:           0.3,

		RetryInterval:    30,
		MaxDroppedFrames: 30,

		TelemetryEnabled:  false,
		TelemetryURL:      "http://localhost:5000/api/brightness",
		TelemetryInterval: 30,
		Device:            "lensmon",
	}
}

// Condition returns the threshold condition for the timer.
func (c *Config) Condition() threshold.Condition {
	return threshold.Condition{
		Threshold:       c.Threshold,
		Compare:         c.Compare,
		TriggerDuration: c.TriggerDuration,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.TriggerDuration < 0 {
		errors = append(errors, "trigger_duration_seconds must be >= 0")
	}
	if c.Compare != threshold.LessThan && c.Compare != threshold.GreaterThan {
		errors = append(errors, "compare must be lt or gt")
	}
	if c.SmoothingFactor <= 0 || c.SmoothingFactor > 1 {
		errors = append(errors, "smoothing_factor must be in (0, 1]")
	}
	if c.CalculationInterval < 1 {
		errors = append(errors, "calculation_interval must be >= 1")
	}
	if c.MaxSamples < 0 {
		errors = append(errors, "max_samples must be >= 0")
	}
	if c.FoveaSize < 0 || c.FoveaSize > 1 {
		errors = append(errors, "fovea_size must be between 0 and 1")
	}
	if c.RetryInterval < 1 {
		errors = append(errors, "retry_interval must be >= 1")
	}
	if c.MaxDroppedFrames < 0 {
		errors = append(errors, "max_dropped_frames must be >= 0")
	}
	if c.TelemetryEnabled {
		if c.TelemetryURL == "" {
			errors = append(errors, "telemetry_url is required when telemetry is enabled")
		}
		if c.TelemetryInterval < 1 {
			errors = append(errors, "telemetry_interval must be >= 1")
		}
	}

	return errors
}

func (c *Config) validate() error {
	if errs := c.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, errs)
	}
	return nil
}
