package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLowRes  = "lowres"
	Preset720p    = "720p"
	PresetAmbient = "ambient"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLowRes:  LowResConfig(),
		Preset720p:    HD720Config(),
		PresetAmbient: AmbientConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLowRes,
		Preset720p,
		PresetAmbient,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// LowResConfig returns 320x240 at 15 FPS for slow boards.
func LowResConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	cfg.Framerate = 15
	return cfg
}

// HD720Config returns 720p HD configuration.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// AmbientConfig pins exposure so frame luminance tracks room light.
func AmbientConfig() Config {
	cfg := LowResConfig()
	cfg.AutoExposure = false
	cfg.Exposure = -6
	return cfg
}
