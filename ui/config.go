package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	// PollInterval is how often the dashboard ticks the bridge.
	PollInterval time.Duration
	EnableMouse  bool

	// Shown in the header.
	ConfigFile string
}
