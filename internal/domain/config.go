package domain

// ServerConfig holds server-related settings
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// PostgresConfig holds PostgreSQL-specific settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"username"`
	Pass     string `mapstructure:"password"`
	SslMode  string `mapstructure:"ssl_mode"`
}

// DatabaseConfig holds general database settings and nested specific configs
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Path           string `mapstructure:"path"`
	Level          string `mapstructure:"level"`
	MaxFileSize    int    `mapstructure:"max_file_size"`
	MaxBackupCount int    `mapstructure:"max_backup_count"`
}

// FetchConfig holds settings for the contest fetch/sync cycle.
type FetchConfig struct {
	// Interval between scheduled cycles, e.g. "6h".
	Interval string `mapstructure:"interval"`
	// Per-attempt timeout for outbound source requests, e.g. "5s".
	Timeout string `mapstructure:"timeout"`
	// Attempts per source before it is treated as failed for the cycle.
	Attempts int `mapstructure:"attempts"`
	// RunOnStartup triggers one cycle shortly after boot.
	RunOnStartup bool `mapstructure:"run_on_startup"`
}

// GoogleConfig holds the OAuth client used to mint token sources for
// stored user refresh tokens. The consent flow itself lives outside
// this service.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	// CalendarID defaults to "primary".
	CalendarID string `mapstructure:"calendar_id"`
}

// ClistConfig holds credentials for the clist.by fallback feed used by
// adapters whose primary source is unstable.
type ClistConfig struct {
	Username string `mapstructure:"username"`
	APIKey   string `mapstructure:"api_key"`
}

// ValkeyConfig holds Valkey-specific settings
type ValkeyConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimitConfig holds rate limiting settings for the subscription
// and manual-trigger endpoints.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	WindowSeconds     int  `mapstructure:"window_seconds"`
}

// Config holds the application's configuration, mapped from config.toml
type Config struct {
	Version    string // No tag needed, not from config file
	ConfigPath string // No tag needed, internal use

	SessionSecret string `mapstructure:"session_secret"`
	// AdminTokenHash is a bcrypt hash; the manual trigger endpoint
	// compares the presented token against it.
	AdminTokenHash string `mapstructure:"admin_token_hash"`

	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Google    GoogleConfig    `mapstructure:"google"`
	Clist     ClistConfig     `mapstructure:"clist"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ConfigUpdate describes the subset of settings changeable at runtime
// via the config API. Changes apply in-memory only.
type ConfigUpdate struct {
	LogLevel *string `json:"log_level,omitempty"`
	LogPath  *string `json:"log_path,omitempty"`
}
