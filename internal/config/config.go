// Package config provides configuration types for the policy decision
// service.
//
// Configuration follows a layered model: defaults, then an optional YAML
// file, then environment variables prefixed POLICYGATE_, then CLI flags
// applied by the caller. Struct tags drive both Viper unmarshalling
// (mapstructure/yaml) and validation (validate), following the same
// pattern the teacher used for its OSS config.
package config

// Config is the top-level configuration for the policy decision service.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Decision configures the recognized options named in spec §6:
	// payload and history limits, credential-gate sizing, and the
	// per-request deadline.
	Decision DecisionConfig `yaml:"decision" mapstructure:"decision"`

	// Store configures the relational store backing C3/C4/C5/C6.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Observability configures metrics and tracing export.
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`

	// Audit selects the C6 backend.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// DevMode enables permissive defaults for local development (an
	// in-process sqlite DSN, verbose logging, tracing to stdout).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g. "0.0.0.0:8080").
	// Defaults to "0.0.0.0:8080" if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum slog level. Defaults to "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ReadHeaderTimeout bounds how long the server waits to read request
	// headers, independent of the per-request decision deadline.
	ReadHeaderTimeout string `yaml:"read_header_timeout" mapstructure:"read_header_timeout" validate:"omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty"`
}

// DecisionConfig holds the recognized options from spec §6 that shape the
// decision endpoint's fail-closed behavior.
type DecisionConfig struct {
	// MaxPayloadBytes is the request size ceiling (MAX_PAYLOAD_BYTES).
	MaxPayloadBytes int64 `yaml:"max_payload_bytes" mapstructure:"max_payload_bytes" validate:"omitempty,min=1"`

	// RateLimitRequestsPerMinute is the per-key-per-minute ceiling
	// (RATE_LIMIT_REQUESTS_PER_MINUTE).
	RateLimitRequestsPerMinute int64 `yaml:"rate_limit_requests_per_minute" mapstructure:"rate_limit_requests_per_minute" validate:"omitempty,min=1"`

	// MaxHistoryLength bounds toolCallsHistory (MAX_HISTORY_LENGTH);
	// overflow drops the oldest entries, tail-preserving.
	MaxHistoryLength int `yaml:"max_history_length" mapstructure:"max_history_length" validate:"omitempty,min=1"`

	// APIKeyPrefixLength is the length of the printable prefix used for
	// indexed lookup (API_KEY_PREFIX_LENGTH).
	APIKeyPrefixLength int `yaml:"api_key_prefix_length" mapstructure:"api_key_prefix_length" validate:"omitempty,min=1"`

	// APIKeyMinLength is the minimum total presented-key length
	// (API_KEY_MIN_LENGTH).
	APIKeyMinLength int `yaml:"api_key_min_length" mapstructure:"api_key_min_length" validate:"omitempty,min=1"`

	// APIKeyMaxCandidates bounds the per-request prefix-lookup fan-out
	// (K in spec §4.5). Not independently named in §6 but required to
	// bound work; defaults conservatively.
	APIKeyMaxCandidates int `yaml:"api_key_max_candidates" mapstructure:"api_key_max_candidates" validate:"omitempty,min=1"`

	// RequestDeadlineMs bounds the total handler duration
	// (REQUEST_DEADLINE_MS).
	RequestDeadlineMs int64 `yaml:"request_deadline_ms" mapstructure:"request_deadline_ms" validate:"omitempty,min=1"`
}

// StoreConfig configures the relational store (DB_DSN).
type StoreConfig struct {
	// DSN is the database/sql data source name for modernc.org/sqlite —
	// a file path, or "file::memory:?cache=shared" for an in-process
	// store shared across connections in the pool.
	DSN string `yaml:"dsn" mapstructure:"dsn" validate:"omitempty"`

	// MaxOpenConns bounds the connection pool. sqlite's single-writer
	// model makes a small pool the safe default.
	MaxOpenConns int `yaml:"max_open_conns" mapstructure:"max_open_conns" validate:"omitempty,min=1"`
}

// AuditConfig selects and configures the C6 backend.
type AuditConfig struct {
	// Backend selects the audit store implementation: "sql" (default,
	// shares Store.DSN), "file" (JSON Lines fallback), or "memory"
	// (dev/test only, not durable across restarts).
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=sql file memory"`

	// FileDir is the directory for the "file" backend.
	FileDir string `yaml:"file_dir" mapstructure:"file_dir" validate:"omitempty"`

	// RetentionDays bounds how long file-backend audit logs are kept.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`
}

// ObservabilityConfig toggles metrics and tracing export.
type ObservabilityConfig struct {
	// MetricsEnabled is set by SetDevDefaults; the HTTP transport serves
	// /metrics whether or not it is set.
	MetricsEnabled bool `yaml:"metrics_enabled" mapstructure:"metrics_enabled"`

	// TracingEnabled is set by SetDevDefaults; whether spans are exported
	// is decided by TraceExporter alone, not by this field.
	TracingEnabled bool `yaml:"tracing_enabled" mapstructure:"tracing_enabled"`

	// TraceExporter selects the OTel exporter. Only "stdout" and "none"
	// are wired; any other value is rejected by Validate.
	TraceExporter string `yaml:"trace_exporter" mapstructure:"trace_exporter" validate:"omitempty,oneof=stdout none"`
}

// SetDefaults applies sensible default values to the configuration. Called
// before Validate so required fields are satisfied even with a minimal
// file.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "0.0.0.0:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ReadHeaderTimeout == "" {
		c.Server.ReadHeaderTimeout = "5s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}

	if c.Decision.MaxPayloadBytes == 0 {
		c.Decision.MaxPayloadBytes = 1 << 20 // 1 MiB
	}
	if c.Decision.RateLimitRequestsPerMinute == 0 {
		c.Decision.RateLimitRequestsPerMinute = 600
	}
	if c.Decision.MaxHistoryLength == 0 {
		c.Decision.MaxHistoryLength = 500
	}
	if c.Decision.APIKeyPrefixLength == 0 {
		c.Decision.APIKeyPrefixLength = 8
	}
	if c.Decision.APIKeyMinLength == 0 {
		c.Decision.APIKeyMinLength = 32
	}
	if c.Decision.APIKeyMaxCandidates == 0 {
		c.Decision.APIKeyMaxCandidates = 8
	}
	if c.Decision.RequestDeadlineMs == 0 {
		c.Decision.RequestDeadlineMs = 5000
	}

	if c.Store.DSN == "" {
		if c.DevMode {
			c.Store.DSN = "file::memory:?cache=shared"
		} else {
			c.Store.DSN = "policygate.db"
		}
	}
	if c.Store.MaxOpenConns == 0 {
		c.Store.MaxOpenConns = 8
	}

	if c.Observability.TraceExporter == "" {
		c.Observability.TraceExporter = "none"
	}

	if c.Audit.Backend == "" {
		if c.DevMode {
			c.Audit.Backend = "memory"
		} else {
			c.Audit.Backend = "sql"
		}
	}
	if c.Audit.FileDir == "" {
		c.Audit.FileDir = "./audit"
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 90
	}
}

// SetDevDefaults applies additional permissive defaults for local
// development. Applied before validation so CLI flags can still override
// DevMode first.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Server.LogLevel == "info" {
		c.Server.LogLevel = "debug"
	}
	c.Observability.MetricsEnabled = true
	if c.Observability.TraceExporter == "none" {
		c.Observability.TraceExporter = "stdout"
	}
	c.Observability.TracingEnabled = true
}
