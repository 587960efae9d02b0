package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Coating defaults: four-chemical shop with a quarter-hour changeover
	v.SetDefault("coating.chemicals", []string{"C1", "C2", "C3", "C4"})
	v.SetDefault("coating.default_changeover_minutes", 15)

	// Solver defaults
	v.SetDefault("solver.strategy", "local-search")
	v.SetDefault("solver.max_iterations", 0)
	v.SetDefault("solver.workers", 1)
	v.SetDefault("solver.deadline_ms", 10000)
	v.SetDefault("solver.fallback_changeover", -1) // strict: undefined pairs are errors

	// Async run system defaults
	v.SetDefault("async.workers", 1)
	v.SetDefault("async.queue_size", 64)

	// Database defaults
	v.SetDefault("database.path", "smartcoat.db")

	// Server configuration defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
	v.SetDefault("server.log_theme", "everforest")
	v.SetDefault("server.rate_limit_per_minute", 120)
	v.SetDefault("server.rate_burst", 30)

	// Logging defaults
	v.SetDefault("logging.json", false)
}

// BindSensitiveEnvVars explicitly binds deployment-specific configuration to
// environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "SMARTCOAT_DATABASE_PATH")
	v.BindEnv("server.port", "SMARTCOAT_SERVER_PORT")
	v.BindEnv("solver.workers", "SMARTCOAT_SOLVER_WORKERS")
}

// GetServerPort returns the configured server port, falling back to the
// default when unconfigured
func GetServerPort() int {
	cfg, err := Load()
	if err != nil || cfg.Server.Port == 0 {
		return DefaultServerPort
	}
	return cfg.Server.Port
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "smartcoat.db" // Fallback default
	}
	return c.Database.Path
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1",
			"https://127.0.0.1",
		}
	}
	return c.Server.AllowedOrigins
}

// GetServerLogTheme returns the log theme (default: everforest)
func (c *Config) GetServerLogTheme() string {
	if c.Server.LogTheme == "" {
		return "everforest"
	}
	return c.Server.LogTheme
}

// GetAsyncConfig returns the async configuration with defaults applied for
// zero values
func (c *Config) GetAsyncConfig() AsyncConfig {
	cfg := c.Async
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 64
	}
	return cfg
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Solver: {Strategy: %s, Workers: %d}, Chemicals: %d}",
		c.Database.Path, c.Solver.Strategy, c.Solver.Workers, len(c.Coating.Chemicals))
}
