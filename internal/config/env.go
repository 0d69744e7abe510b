// Package config provides configuration helpers for lensmon commands.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Defaults used when neither flags nor environment set a value.
const (
	DefaultBackendURL = "http://localhost:5000"
	DefaultPort       = 5000
	DefaultDevice     = "lensmon"
)

// BackendURL returns the telemetry backend base URL from LENSMON_BACKEND_URL.
// Falls back to the provided default if not set.
func BackendURL(defaultURL string) string {
	if u := os.Getenv("LENSMON_BACKEND_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return defaultURL
}

// MetricURL joins a backend base URL and the ingest path for metric.
func MetricURL(base, metric string) string {
	return strings.TrimRight(base, "/") + "/api/" + metric
}

// Device returns the device name from LENSMON_DEVICE, then the hostname,
// then the provided default.
func Device(defaultName string) string {
	if d := os.Getenv("LENSMON_DEVICE"); d != "" {
		return d
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return defaultName
}

// Port returns the listen port from PORT, or def when unset or invalid.
func Port(def int) int {
	if p, err := strconv.Atoi(os.Getenv("PORT")); err == nil && p > 0 && p < 65536 {
		return p
	}
	return def
}

// LogLevel returns LOG_LEVEL or def.
func LogLevel(def string) string {
	if l := os.Getenv("LOG_LEVEL"); l != "" {
		return l
	}
	return def
}

// StorePath returns the SQLite path from LENSMON_DB, or def.
func StorePath(def string) string {
	if p := os.Getenv("LENSMON_DB"); p != "" {
		return p
	}
	return def
}
