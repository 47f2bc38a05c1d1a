// Package config provides configuration loading for the policy decision
// service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for policygate.yaml/.yml
// in standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("policygate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: POLICYGATE_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("POLICYGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a policygate config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper from
// matching the binary "policy-gate" (no extension) in the current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".policygate"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "policygate"))
		}
	} else {
		paths = append(paths, "/etc/policygate")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for policygate.yaml
// or .yml. Returns the full path of the first match, or empty string if
// none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "policygate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all config keys for environment variable support.
// Example: POLICYGATE_SERVER_HTTP_ADDR overrides server.http_addr.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.read_header_timeout")
	_ = viper.BindEnv("server.shutdown_timeout")

	_ = viper.BindEnv("decision.max_payload_bytes")
	_ = viper.BindEnv("decision.rate_limit_requests_per_minute")
	_ = viper.BindEnv("decision.max_history_length")
	_ = viper.BindEnv("decision.api_key_prefix_length")
	_ = viper.BindEnv("decision.api_key_min_length")
	_ = viper.BindEnv("decision.api_key_max_candidates")
	_ = viper.BindEnv("decision.request_deadline_ms")

	_ = viper.BindEnv("store.dsn")
	_ = viper.BindEnv("store.max_open_conns")

	_ = viper.BindEnv("observability.metrics_enabled")
	_ = viper.BindEnv("observability.tracing_enabled")
	_ = viper.BindEnv("observability.trace_exporter")

	_ = viper.BindEnv("audit.backend")
	_ = viper.BindEnv("audit.file_dir")
	_ = viper.BindEnv("audit.retention_days")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the Config. Note: callers should apply any CLI
// flag overrides (e.g. --dev), then call cfg.SetDevDefaults() and
// cfg.Validate() to complete initialization.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// NOT apply dev defaults or validate. Use this when CLI flags may override
// DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded. Returns an empty string if no config file was found (env vars
// only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
