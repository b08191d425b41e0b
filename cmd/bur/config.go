package main

import "github.com/oriys/bur/internal/config"

// loadConfig reads cfgFile if set, applies BUR_* environment
// overrides, and falls back to config.DefaultConfig() when no file
// was given.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}
