package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "APOLLO"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabaseDriver      = DriverSQLite
	defaultDatabaseDSN         = "apollo.db"
	defaultLogLevel            = "info"
	defaultLogFormat           = "json"
	defaultCookieName          = "app_session"
	defaultSessionIssuer       = "tauth"
	defaultClassroomTimeout    = 30
	defaultGeminiModel         = "gemini-1.5-flash"
	defaultStatusTTLMinutes    = 60
	defaultDistributionWorkers = 4

	// DriverSQLite selects the embedded pure-Go SQLite driver.
	DriverSQLite = "sqlite"
	// DriverPostgres selects the PostgreSQL driver.
	DriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress             string
	DatabaseDriver          string
	DatabaseDSN             string
	LogLevel                string
	LogFormat               string
	TAuthSigningKey         string
	TAuthCookieName         string
	TAuthIssuer             string
	ClassroomEndpoint       string
	ClassroomTimeout        time.Duration
	GeminiAPIKey            string
	GeminiModel             string
	RedisAddress            string
	SyncStatusTTL           time.Duration
	DistributionParallelism int
	CORSAllowedOrigins      []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultSessionIssuer)
	configViper.SetDefault("classroom.endpoint", "")
	configViper.SetDefault("classroom.timeout_seconds", defaultClassroomTimeout)
	configViper.SetDefault("gemini.api_key", "")
	configViper.SetDefault("gemini.model", defaultGeminiModel)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("redis.status_ttl_minutes", defaultStatusTTLMinutes)
	configViper.SetDefault("distribution.parallelism", defaultDistributionWorkers)
	configViper.SetDefault("cors.allowed_origins", []string{})
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:             configViper.GetString("http.address"),
		DatabaseDriver:          strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:             configViper.GetString("database.dsn"),
		LogLevel:                configViper.GetString("log.level"),
		LogFormat:               configViper.GetString("log.format"),
		TAuthSigningKey:         configViper.GetString("tauth.signing_secret"),
		TAuthCookieName:         configViper.GetString("tauth.cookie_name"),
		TAuthIssuer:             configViper.GetString("tauth.issuer"),
		ClassroomEndpoint:       configViper.GetString("classroom.endpoint"),
		ClassroomTimeout:        time.Duration(configViper.GetInt("classroom.timeout_seconds")) * time.Second,
		GeminiAPIKey:            configViper.GetString("gemini.api_key"),
		GeminiModel:             configViper.GetString("gemini.model"),
		RedisAddress:            configViper.GetString("redis.address"),
		SyncStatusTTL:           time.Duration(configViper.GetInt("redis.status_ttl_minutes")) * time.Minute,
		DistributionParallelism: configViper.GetInt("distribution.parallelism"),
		CORSAllowedOrigins:      normalizeOrigins(configViper.GetStringSlice("cors.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("tauth.signing_secret is required")
	}
	if strings.TrimSpace(c.TAuthCookieName) == "" {
		return fmt.Errorf("tauth.cookie_name is required")
	}
	if c.DatabaseDriver != DriverSQLite && c.DatabaseDriver != DriverPostgres {
		return fmt.Errorf("database.driver must be %q or %q", DriverSQLite, DriverPostgres)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.ClassroomTimeout <= 0 {
		return fmt.Errorf("classroom.timeout_seconds must be positive")
	}
	if c.DistributionParallelism <= 0 {
		return fmt.Errorf("distribution.parallelism must be positive")
	}
	for _, origin := range c.CORSAllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("cors.allowed_origins must list explicit origins")
		}
	}
	return nil
}

// normalizeOrigins accepts a list or a single comma-separated value (env form).
func normalizeOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, origin := range strings.Split(entry, ",") {
			trimmed := strings.TrimRight(strings.TrimSpace(origin), "/")
			if trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
