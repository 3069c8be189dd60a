package app

import "github.com/tradepost/tradepost/pkg/logger"

// ConfigureLogging initialises the global logger from configuration.
func ConfigureLogging(cfg LogConfig) error {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	return logger.Init(level)
}
