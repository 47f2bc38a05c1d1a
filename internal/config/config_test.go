package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.Decision.RateLimitRequestsPerMinute != 600 {
		t.Errorf("RateLimitRequestsPerMinute = %d, want 600", cfg.Decision.RateLimitRequestsPerMinute)
	}
	if cfg.Decision.MaxPayloadBytes != 1<<20 {
		t.Errorf("MaxPayloadBytes = %d, want %d", cfg.Decision.MaxPayloadBytes, 1<<20)
	}
	if cfg.Store.DSN != "policygate.db" {
		t.Errorf("DSN = %q, want %q", cfg.Store.DSN, "policygate.db")
	}
	if cfg.Observability.TraceExporter != "none" {
		t.Errorf("TraceExporter = %q, want %q", cfg.Observability.TraceExporter, "none")
	}
}

func TestConfig_SetDefaults_DevModeDSN(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDefaults()

	if cfg.Store.DSN != "file::memory:?cache=shared" {
		t.Errorf("DSN = %q, want in-memory DSN", cfg.Store.DSN)
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{HTTPAddr: ":9090"},
		Store:  StoreConfig{DSN: "custom.db"},
		Decision: DecisionConfig{
			MaxPayloadBytes: 2048,
		},
	}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr was overwritten: got %q", cfg.Server.HTTPAddr)
	}
	if cfg.Store.DSN != "custom.db" {
		t.Errorf("DSN was overwritten: got %q", cfg.Store.DSN)
	}
	if cfg.Decision.MaxPayloadBytes != 2048 {
		t.Errorf("MaxPayloadBytes was overwritten: got %d", cfg.Decision.MaxPayloadBytes)
	}
}

func TestConfig_SetDevDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "debug")
	}
	if !cfg.Observability.MetricsEnabled {
		t.Error("MetricsEnabled should be true in dev mode")
	}
	if cfg.Observability.TraceExporter != "stdout" {
		t.Errorf("TraceExporter = %q, want %q", cfg.Observability.TraceExporter, "stdout")
	}
	if !cfg.Observability.TracingEnabled {
		t.Error("TracingEnabled should be true in dev mode")
	}
}

func TestConfig_SetDevDefaults_NoOpWhenDisabled(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q (dev defaults should not apply)", cfg.Server.LogLevel, "info")
	}
	if cfg.Observability.MetricsEnabled {
		t.Error("MetricsEnabled should remain false outside dev mode")
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "policygate.yaml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_MatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "policygate.yml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Simulate the binary: a file named "policygate" with no extension.
	_ = os.WriteFile(filepath.Join(dir, "policygate"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "policygate.yaml")
	ymlPath := filepath.Join(dir, "policygate.yml")
	_ = os.WriteFile(yamlPath, []byte("server:\n  http_addr: :8080\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}
