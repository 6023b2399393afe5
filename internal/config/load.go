package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies SPECETL_SECTION_FIELD variables. Environment
// variables always take precedence over the file.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	var errs []FieldError
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("invalid boolean %q", v)})
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(name); ok && v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("invalid integer %q", v)})
				return
			}
			*dst = i
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("invalid duration %q", v)})
				return
			}
			*dst = d
		}
	}

	str("SPECETL_LOG_LEVEL", &cfg.Log.Level)
	str("SPECETL_LOG_FORMAT", &cfg.Log.Format)
	boolean("SPECETL_LOG_OTEL", &cfg.Log.OTEL)
	str("SPECETL_LOG_SERVICE_NAME", &cfg.Log.ServiceName)
	integer("SPECETL_LOG_SAMPLE_RATE", &cfg.Log.SampleRate)

	str("SPECETL_DATABASE_URL", &cfg.Database.URL)
	str("SPECETL_DATABASE_MIGRATIONS_PATH", &cfg.Database.MigrationsPath)
	duration("SPECETL_DATABASE_CACHE_TTL", &cfg.Database.CacheTTL)

	str("SPECETL_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	duration("SPECETL_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	duration("SPECETL_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	duration("SPECETL_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	integer("SPECETL_ENGINE_COST_LIMIT", &cfg.Engine.CostLimit)
	str("SPECETL_ENGINE_DOMAIN_COLUMN", &cfg.Engine.DomainColumn)
	boolean("SPECETL_ENGINE_DISABLE_DOMAIN_SUMMARY", &cfg.Engine.DisableDomainSummary)

	boolean("SPECETL_METRICS_DISABLED", &cfg.Metrics.Disabled)
	str("SPECETL_METRICS_NAMESPACE", &cfg.Metrics.Namespace)

	str("SPECETL_OUTPUT_SQLITE_PATH", &cfg.Output.SQLitePath)
	str("SPECETL_OUTPUT_SQLITE_TABLE", &cfg.Output.SQLiteTable)

	// DATABASE_URL is honoured for compatibility with the migrate tooling.
	if cfg.Database.URL == "" {
		str("DATABASE_URL", &cfg.Database.URL)
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
