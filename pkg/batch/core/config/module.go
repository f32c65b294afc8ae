package config

import "go.uber.org/fx"

// NewLoggingConfigProvider exposes the logging section on its own.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.System.Logging
}

// Module provides *Config (from the embedded YAML, .env and environment) and its sub-sections.
var Module = fx.Module("config",
	fx.Provide(
		NewConfigProvider,
		NewLoggingConfigProvider,
		fx.Annotate(NewOsEnvironmentExpander, fx.As(new(EnvironmentExpander))),
	),
)
