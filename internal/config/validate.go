package config

import (
	"fmt"
	"strings"

	"github.com/liamcoop/specetl/internal/logger"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate collects every invalid field of cfg into a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		add("log.level", "%v", err)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		add("log.format", "must be json or text, got %q", cfg.Log.Format)
	}
	if cfg.Log.SampleRate < 0 {
		add("log.sample_rate", "must not be negative")
	}

	if cfg.Database.CacheTTL < 0 {
		add("database.cache_ttl", "must not be negative")
	}

	if cfg.Server.ListenAddress == "" {
		add("server.listen_address", "cannot be empty")
	}
	if cfg.Server.ReadTimeout <= 0 {
		add("server.read_timeout", "must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		add("server.write_timeout", "must be positive")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		add("server.shutdown_timeout", "must be positive")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		add("server.max_body_bytes", "must be positive")
	}

	if cfg.Engine.CostLimit <= 0 {
		add("engine.cost_limit", "must be positive")
	}
	if cfg.Engine.ExpressionCostLimit == 0 {
		add("engine.expression_cost_limit", "must be positive")
	}

	if !cfg.Metrics.Disabled && cfg.Metrics.Namespace == "" {
		add("metrics.namespace", "cannot be empty when metrics are enabled")
	}

	if cfg.Output.SQLitePath != "" && cfg.Output.SQLiteTable == "" {
		add("output.sqlite_table", "cannot be empty when sqlite_path is set")
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
