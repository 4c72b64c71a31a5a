package config

import "sync/atomic"

var cfg atomic.Value

// Init installs the default config as the process-wide fallback. Most
// callers don't need this — build a Config from flags and pass it directly.
func Init() {
	c := defaultConfig()
	cfg.Store(&c)
}

// Load returns the current process-wide config (treat as read-only). Panics
// if Init was never called.
func Load() *Config {
	return cfg.Load().(*Config)
}

// Update applies a mutation on a copy of the process-wide config and swaps
// it in atomically.
func Update(mut func(*Config)) *Config {
	curr := Load()
	next := *curr
	mut(&next)
	cfg.Store(&next)
	return &next
}
