// Package config loads specetl settings from YAML with SPECETL_* environment
// overrides.
package config

import (
	"time"

	"github.com/liamcoop/specetl/formula"
	"github.com/liamcoop/specetl/report"
	"github.com/liamcoop/specetl/rules"
	"github.com/liamcoop/specetl/storage/sqlite"
)

// Config is the complete configuration of the CLI and the server.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Output   OutputConfig   `yaml:"output"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	OTEL        bool   `yaml:"otel"`
	ServiceName string `yaml:"service_name"`
	SampleRate  int    `yaml:"sample_rate"`
}

// DatabaseConfig locates the specification catalog. An empty URL keeps the
// catalog in memory.
type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MigrationsPath string        `yaml:"migrations_path"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

// ServerConfig configures cmd/server.
type ServerConfig struct {
	ListenAddress   string        `yaml:"listen_address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// EngineConfig bounds evaluation and picks the summarised column.
type EngineConfig struct {
	CostLimit           int    `yaml:"cost_limit"`
	ExpressionCostLimit uint64 `yaml:"expression_cost_limit"`
	// DomainColumn is summarised in the report's domain_summary.
	DomainColumn string `yaml:"domain_column"`
	// DisableDomainSummary omits domain_summary regardless of DomainColumn.
	DisableDomainSummary bool `yaml:"disable_domain_summary"`
}

// MetricsConfig configures the Prometheus recorder.
type MetricsConfig struct {
	Disabled  bool   `yaml:"disabled"`
	Namespace string `yaml:"namespace"`
}

// OutputConfig configures the optional SQLite sink. An empty SQLitePath
// disables it.
type OutputConfig struct {
	SQLitePath  string `yaml:"sqlite_path"`
	SQLiteTable string `yaml:"sqlite_table"`
}

// Default values for configuration fields.
const (
	DefaultLogLevel        = "INFO"
	DefaultLogFormat       = "json"
	DefaultServiceName     = "specetl"
	DefaultMigrationsPath  = "migrations"
	DefaultCacheTTL        = 5 * time.Minute
	DefaultListenAddress   = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxBodyBytes    = 32 << 20 // 32MB
	DefaultMetricsNS       = "specetl"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:       DefaultLogLevel,
			Format:      DefaultLogFormat,
			ServiceName: DefaultServiceName,
			SampleRate:  1,
		},
		Database: DatabaseConfig{
			MigrationsPath: DefaultMigrationsPath,
			CacheTTL:       DefaultCacheTTL,
		},
		Server: ServerConfig{
			ListenAddress:   DefaultListenAddress,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			MaxBodyBytes:    DefaultMaxBodyBytes,
		},
		Engine: EngineConfig{
			CostLimit:           formula.DefaultCostLimit,
			ExpressionCostLimit: rules.DefaultExpressionCostLimit,
			DomainColumn:        report.DefaultDomainColumn,
		},
		Metrics: MetricsConfig{
			Namespace: DefaultMetricsNS,
		},
		Output: OutputConfig{
			SQLiteTable: sqlite.DefaultTable,
		},
	}
}

// ReportColumn returns the column the report generator should summarise,
// or "" when the domain summary is disabled.
func (c *Config) ReportColumn() string {
	if c.Engine.DisableDomainSummary {
		return ""
	}
	return c.Engine.DomainColumn
}
