// Package debug holds process-wide debug switches set from command-line flags.
package debug

import "fmt"

// Enabled turns on per-tick monitor logs.
var Enabled bool

// Samples turns on per-frame field sampling counts (very verbose).
// Use --debug-samples to enable.
var Samples bool

// Log prints only when Enabled is set.
func Log(format string, args ...any) {
	if Enabled {
		fmt.Printf(format, args...)
	}
}

// SampleLog prints only when Samples is set.
func SampleLog(format string, args ...any) {
	if Samples {
		fmt.Printf(format, args...)
	}
}
