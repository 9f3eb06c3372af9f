package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("tauth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabaseDriver != DriverSQLite || cfg.DatabaseDSN != defaultDatabaseDSN {
		t.Fatalf("unexpected database defaults: %s %s", cfg.DatabaseDriver, cfg.DatabaseDSN)
	}
	if cfg.ClassroomTimeout != 30*time.Second {
		t.Fatalf("unexpected classroom timeout %s", cfg.ClassroomTimeout)
	}
	if cfg.SyncStatusTTL != time.Hour {
		t.Fatalf("unexpected status ttl %s", cfg.SyncStatusTTL)
	}
	if cfg.TAuthIssuer != "tauth" || cfg.TAuthCookieName != "app_session" {
		t.Fatalf("unexpected session defaults: %s %s", cfg.TAuthIssuer, cfg.TAuthCookieName)
	}
	if cfg.DistributionParallelism != 4 {
		t.Fatalf("unexpected parallelism %d", cfg.DistributionParallelism)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APOLLO_TAUTH_SIGNING_SECRET", "from-env")
	t.Setenv("APOLLO_DATABASE_DRIVER", "POSTGRES")
	t.Setenv("APOLLO_DATABASE_DSN", "host=localhost user=apollo dbname=apollo")
	t.Setenv("APOLLO_REDIS_ADDRESS", "localhost:6379")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TAuthSigningKey != "from-env" {
		t.Fatalf("expected signing secret from env, got %q", cfg.TAuthSigningKey)
	}
	if cfg.DatabaseDriver != DriverPostgres {
		t.Fatalf("expected postgres driver, got %q", cfg.DatabaseDriver)
	}
	if cfg.RedisAddress != "localhost:6379" {
		t.Fatalf("unexpected redis address %q", cfg.RedisAddress)
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(values map[string]any)
	}{
		{name: "missing-secret", setup: func(values map[string]any) { delete(values, "tauth.signing_secret") }},
		{name: "unknown-driver", setup: func(values map[string]any) { values["database.driver"] = "mysql" }},
		{name: "empty-dsn", setup: func(values map[string]any) { values["database.dsn"] = " " }},
		{name: "zero-timeout", setup: func(values map[string]any) { values["classroom.timeout_seconds"] = 0 }},
		{name: "zero-parallelism", setup: func(values map[string]any) { values["distribution.parallelism"] = 0 }},
		{name: "wildcard-origin", setup: func(values map[string]any) { values["cors.allowed_origins"] = []string{"*"} }},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			values := map[string]any{"tauth.signing_secret": "secret"}
			testCase.setup(values)
			configViper := NewViper()
			for key, value := range values {
				configViper.Set(key, value)
			}
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadParsesAllowedOrigins(t *testing.T) {
	t.Setenv("APOLLO_TAUTH_SIGNING_SECRET", "secret")
	t.Setenv("APOLLO_CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com/")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.CORSAllowedOrigins[0] != "https://app.example.com" || cfg.CORSAllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}

	defaults := NewViper()
	defaults.Set("tauth.signing_secret", "secret")
	t.Setenv("APOLLO_CORS_ALLOWED_ORIGINS", "")
	cfg, err = Load(defaults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("expected no allowed origins by default, got %v", cfg.CORSAllowedOrigins)
	}
}
