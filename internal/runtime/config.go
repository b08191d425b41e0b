package runtime

import "time"

// GCConfig controls the optional background cycle collector.
type GCConfig struct {
	// Interval is how often CollectGarbage runs automatically. Zero
	// (the default) disables the background loop entirely — the host
	// must call Runtime.CollectGarbage itself, matching spec.md §4.2's
	// baseline "collection is explicit" contract.
	Interval time.Duration
}

// Config configures a Runtime.
type Config struct {
	GC GCConfig
}

// DefaultConfig returns a Config with the background GC loop disabled.
func DefaultConfig() Config {
	return Config{GC: GCConfig{Interval: 0}}
}
