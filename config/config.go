package config

// Config represents the core smartcoat configuration
type Config struct {
	Coating  CoatingConfig  `mapstructure:"coating"`
	Solver   SolverConfig   `mapstructure:"solver"`
	Async    AsyncConfig    `mapstructure:"async"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CoatingConfig configures the chemical label set and the seed changeover
// used when no explicit table has been loaded
type CoatingConfig struct {
	Chemicals                []string `mapstructure:"chemicals"`                  // configured label set, 2..10 entries
	DefaultChangeoverMinutes int      `mapstructure:"default_changeover_minutes"` // uniform off-diagonal seed for new tables
}

// SolverConfig configures the sequencing engine
type SolverConfig struct {
	Strategy           string `mapstructure:"strategy"`            // "construction" or "local-search"
	MaxIterations      int    `mapstructure:"max_iterations"`      // local-search round cap, 0 = proportional to job count
	Workers            int    `mapstructure:"workers"`             // parallel candidate evaluation, <2 = serial
	DeadlineMS         int    `mapstructure:"deadline_ms"`         // per-solve wall clock budget, 0 = none
	FallbackChangeover int    `mapstructure:"fallback_changeover"` // minutes for undefined pairs, -1 = strict
}

// AsyncConfig configures the background solve-run system
type AsyncConfig struct {
	Workers   int `mapstructure:"workers"`    // concurrent run workers (default: 1)
	QueueSize int `mapstructure:"queue_size"` // pending run buffer (default: 64)
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the smartcoat web server
type ServerConfig struct {
	Port               int      `mapstructure:"port"` // 0 = default 8077
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	LogTheme           string   `mapstructure:"log_theme"`              // Color theme: gruvbox, everforest
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`  // per-client API budget, 0 = unlimited
	RateBurst          int      `mapstructure:"rate_burst"`             // per-client burst allowance
}

// LoggingConfig configures log output
type LoggingConfig struct {
	JSON bool `mapstructure:"json"` // structured JSON instead of the console encoder
}

// Server port constants
const (
	DefaultServerPort  = 8077
	FallbackServerPort = 8078
)

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
