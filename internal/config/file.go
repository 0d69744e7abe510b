package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-lensmon/pkg/backend"
	"github.com/teslashibe/go-lensmon/pkg/monitor"
)

// ErrInvalid is returned when a loaded file fails validation.
var ErrInvalid = errors.New("config: invalid")

// Camera selects the frame source for the brightness monitor. Preset
// names a camera preset; Device and File override it.
type Camera struct {
	Preset string `yaml:"preset"`
	Device int    `yaml:"device"`
	File   string `yaml:"file"`
	Loop   bool   `yaml:"loop"`
}

// File is the on-disk configuration shared by the lensmon commands.
type File struct {
	FPS      int    `yaml:"fps"`
	LogLevel string `yaml:"log_level"`

	Posture    monitor.Config `yaml:"posture"`
	Brightness monitor.Config `yaml:"brightness"`
	Camera     Camera         `yaml:"camera"`
	Backend    backend.Config `yaml:"backend"`
}

// Default returns the configuration used when no file is given.
func Default() File {
	return File{
		FPS:        30,
		LogLevel:   "info",
		Posture:    monitor.DefaultPostureConfig(),
		Brightness: monitor.DefaultBrightnessConfig(),
		Camera:     Camera{Preset: "default"},
		Backend:    backend.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults, so a file only needs the keys
// it changes. An empty path returns the defaults.
func Load(path string) (File, error) {
	f := Default()
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse %s: %w", path, err)
	}
	if errs := f.Validate(); len(errs) > 0 {
		return f, fmt.Errorf("%w: %s: %v", ErrInvalid, path, errs)
	}
	return f, nil
}

// Validate checks every section, prefixing errors with the section name.
func (f *File) Validate() []string {
	var errs []string
	if f.FPS < 1 || f.FPS > 240 {
		errs = append(errs, "fps must be between 1 and 240")
	}
	for _, e := range f.Posture.Validate() {
		errs = append(errs, "posture: "+e)
	}
	for _, e := range f.Brightness.Validate() {
		errs = append(errs, "brightness: "+e)
	}
	if f.Brightness.MaxSamples < 1 {
		errs = append(errs, "brightness: max_samples must be >= 1")
	}
	for _, e := range f.Backend.Validate() {
		errs = append(errs, "backend: "+e)
	}
	return errs
}

// Marshal renders f as YAML, e.g. to print the effective configuration.
func (f File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}
