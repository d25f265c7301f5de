package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/pkg/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var configTemplate = `# config.toml

# Session secret
# This is a randomly generated secret key for session management.
# It will be generated automatically on the first run if not set.
session_secret = "{{ .sessionSecret }}"

# Bcrypt hash of the admin token accepted by the manual update trigger.
# Leave empty to disable the trigger endpoint.
# Optional.
# Default: ""
#admin_token_hash = ""

[server]
  # Hostname or IP address for the server to listen on.
  # Default: "{{ .host }}" ("0.0.0.0" for all interfaces, e.g. in Docker)
  host = "{{ .host }}"

  # Port for the server to listen on.
  # Default: 8282
  port = 8282

  # Base URL for serving the application under a subdirectory.
  # Optional.
  # Default: ""
  #base_url = ""

[database]
  # Database type to use.
  # Supported: "sqlite", "postgres"
  # Optional.
  # Default: "sqlite"
  type = "sqlite"

  # --- PostgreSQL Settings ---
  # These settings are only used if database.type is set to "postgres".
  [database.postgres]
    host = "localhost"
    port = 5432
    database = "postgres"
    user = "postgres"
    pass = "postgres"
    ssl_mode = "disable"

[logging]
  # Log file path.
  # If empty or not set, logs will be written to standard output (stdout).
  # Optional.
  # Default: ""
  path = "log/"

  # Log level.
  # Options: "ERROR", "WARN", "INFO", "DEBUG", "TRACE"
  # Default: "DEBUG"
  level = "DEBUG"

  # Maximum size of a log file in megabytes (MB) before it is rotated.
  # Default: 50
  max_file_size = 50

  # Maximum number of old log files to keep.
  # Default: 3
  max_backup_count = 3

[fetch]
  # Interval between scheduled contest fetch/sync cycles.
  # Default: "6h"
  interval = "6h"

  # Per-attempt timeout for outbound requests to contest sources.
  # Default: "5s"
  timeout = "5s"

  # Attempts per source before it counts as failed for the cycle.
  # Default: 2
  attempts = 2

  # Run one fetch/sync cycle shortly after startup.
  # Default: false
  run_on_startup = false

[google]
  # OAuth client used to refresh stored user credentials.
  # The consent flow itself happens outside this service.
  client_id = ""
  client_secret = ""
  redirect_url = ""

  # Calendar to place contest events on.
  # Default: "primary"
  calendar_id = "primary"

[clist]
  # clist.by credentials for fallback contest feeds.
  # Optional.
  username = ""
  api_key = ""

[valkey]
  # Valkey server address used for rate-limit counters.
  # Optional.
  # Default: "localhost:6379"
  address = "localhost:6379"
  password = ""
  db = 0

[rate_limit]
  # Enable rate limiting for subscription and trigger endpoints.
  # Default: true
  enabled = true

  # Maximum number of requests allowed per time window.
  # Default: 20
  requests_per_minute = 20

  # Time window in seconds.
  # Default: 60
  window_seconds = 60
`

var generateRandomString = func(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func writeConfig(configPath string, configFile string) error {
	cfgPath := filepath.Join(configPath, configFile)

	// check if configPath exists, if not create it
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		err := os.MkdirAll(configPath, os.ModePerm)
		if err != nil {
			log.Println(err)
			return err
		}
	}

	// check if config exists, if not create it
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		// set default host
		host := "127.0.0.1"

		if _, dockerErr := os.Stat("/.dockerenv"); dockerErr == nil {
			host = "0.0.0.0"
		} else if pd, cgroupErr := os.Open("/proc/1/cgroup"); cgroupErr == nil {
			defer func(pd *os.File) {
				errClose := pd.Close()
				if errClose != nil {
					log.Printf("error closing proc/cgroup: %q", errClose)
				}
			}(pd)
			b := make([]byte, 4096)
			_, readErr := pd.Read(b)
			if readErr != nil {
				log.Printf("error reading /proc/1/cgroup: %v", readErr)
			} else {
				if strings.Contains(string(b), "/docker") || strings.Contains(string(b), "/lxc") {
					host = "0.0.0.0"
				}
			}
		}

		f, createErr := os.Create(cfgPath)
		if createErr != nil {
			log.Printf("error creating file: %q", createErr)
			return createErr
		}
		defer func(f *os.File) {
			errClose := f.Close()
			if errClose != nil {
				log.Printf("error closing file: %q", errClose)
			}
		}(f)

		sessionSecretVal, secretErr := generateRandomString(16)
		if secretErr != nil {
			log.Printf("Failed to generate session secret: %v. Using a default placeholder.", secretErr)
			sessionSecretVal = "fallback-please-replace-this-secret-immediately"
		}

		tmpl, tmplErr := template.New("config").Parse(configTemplate)
		if tmplErr != nil {
			return errors.Wrap(tmplErr, "could not create config template")
		}

		tmplVars := map[string]string{
			"host":          host,
			"sessionSecret": sessionSecretVal,
		}

		var buffer bytes.Buffer
		if execErr := tmpl.Execute(&buffer, &tmplVars); execErr != nil {
			return errors.Wrap(execErr, "could not write config template output")
		}

		if _, writeErr := f.WriteString(buffer.String()); writeErr != nil {
			log.Printf("error writing contents to file: %v %q", configPath, writeErr)
			return writeErr
		}

		return f.Sync()
	}

	return nil
}

type Config interface {
	DynamicReload(log logger.Logger)
}

type AppConfig struct {
	Config *domain.Config
	m      sync.Mutex
}

func New(configPath string, version string) *AppConfig {
	c := &AppConfig{}
	c.defaults()
	c.Config.Version = version
	c.Config.ConfigPath = configPath

	c.load(configPath)

	return c
}

func (c *AppConfig) defaults() {
	c.Config = &domain.Config{
		Version:        "dev",
		ConfigPath:     "",
		SessionSecret:  "secret-session-key", // Will be overwritten by generated if not in file
		AdminTokenHash: "",
		Server: domain.ServerConfig{
			Host:    "127.0.0.1",
			Port:    8282,
			BaseURL: "",
		},
		Database: domain.DatabaseConfig{
			Type: "sqlite",
			Postgres: domain.PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "postgres",
				User:     "postgres",
				Pass:     "postgres",
				SslMode:  "disable",
			},
		},
		Logging: domain.LoggingConfig{
			Path:           "",
			Level:          "DEBUG",
			MaxFileSize:    50,
			MaxBackupCount: 3,
		},
		Fetch: domain.FetchConfig{
			Interval:     "6h",
			Timeout:      "5s",
			Attempts:     2,
			RunOnStartup: false,
		},
		Google: domain.GoogleConfig{
			CalendarID: "primary",
		},
		Clist: domain.ClistConfig{},
		Valkey: domain.ValkeyConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		RateLimit: domain.RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 20,
			WindowSeconds:     60,
		},
	}
}

func (c *AppConfig) load(configPath string) {
	viper.SetConfigType("toml")
	configPath = path.Clean(configPath)

	if configPath != "" {
		if err := writeConfig(configPath, "config.toml"); err != nil {
			log.Printf("writeConfig error during load: %q", err)
			// Continue to attempt reading, defaults might be used or file might exist partially
		}
		viper.SetConfigFile(path.Join(configPath, "config.toml"))
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/contestcal")
		viper.AddConfigPath("$HOME/.contestcal")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Config file not found, using defaults: %s", viper.ConfigFileUsed())
		} else {
			log.Printf("Config read error: %q. Using defaults.", err)
		}
	}

	// Unmarshal the entire config structure
	if err := viper.Unmarshal(&c.Config); err != nil {
		log.Fatalf("Could not unmarshal config file into struct: %v. Config file used: %s", err, viper.ConfigFileUsed())
	}
}

func (c *AppConfig) DynamicReload(log logger.Logger) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		c.m.Lock()
		defer c.m.Unlock()

		log.Info().Msgf("Config file changed: %s. Reloading configuration.", e.Name)

		// Re-read and unmarshal the entire config to capture all changes accurately
		if err := viper.ReadInConfig(); err != nil {
			log.Error().Err(err).Msg("Error reading config file during dynamic reload")
			return
		}

		var newConfig domain.Config
		// Preserve version and configPath as they are not from the file
		newConfig.Version = c.Config.Version
		newConfig.ConfigPath = c.Config.ConfigPath

		if err := viper.Unmarshal(&newConfig); err != nil {
			log.Error().Err(err).Msg("Error unmarshalling config during dynamic reload")
			return
		}

		// Atomically update the config
		c.Config = &newConfig

		// Update logger level if it changed
		log.SetLogLevel(c.Config.Logging.Level)

		log.Debug().Msg("Configuration reloaded successfully!")
	})
	viper.WatchConfig()
}
