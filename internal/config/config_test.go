package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("BASE_URL", "")

	// We pass nil for cmd to skip flags
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Expected default port %d, got %d", DefaultServerPort, cfg.Server.Port)
	}
	if cfg.Session.Timeout != DefaultSessionTimeout {
		t.Errorf("Expected default session timeout %s, got %s", DefaultSessionTimeout, cfg.Session.Timeout)
	}
	if cfg.Archive.TranscriptLimit != 0 {
		t.Errorf("Expected archived transcripts to be uncapped by default, got %d", cfg.Archive.TranscriptLimit)
	}
	if cfg.Policy.Backend != DefaultPolicyBackend {
		t.Errorf("Expected default policy backend %s, got %s", DefaultPolicyBackend, cfg.Policy.Backend)
	}
	if cfg.Policy.Semantic.Threshold != DefaultSemanticThreshold {
		t.Errorf("Expected default semantic threshold %v, got %v", DefaultSemanticThreshold, cfg.Policy.Semantic.Threshold)
	}
	if cfg.Transactions.Cancellation.Mode != DefaultCancellationMode {
		t.Errorf("Expected default cancellation mode %s, got %s", DefaultCancellationMode, cfg.Transactions.Cancellation.Mode)
	}
	if cfg.Gateway.Voice != DefaultGatewayVoice {
		t.Errorf("Expected default voice %s, got %s", DefaultGatewayVoice, cfg.Gateway.Voice)
	}
	if cfg.Gateway.Language != DefaultGatewayLanguage {
		t.Errorf("Expected default language %s, got %s", DefaultGatewayLanguage, cfg.Gateway.Language)
	}
	if cfg.Gateway.AgentNumber != DefaultGatewayAgentNumber {
		t.Errorf("Expected default agent number %s, got %s", DefaultGatewayAgentNumber, cfg.Gateway.AgentNumber)
	}
	if cfg.Gateway.BaseURL != DefaultGatewayBaseURL {
		t.Errorf("Expected default base url %s, got %s", DefaultGatewayBaseURL, cfg.Gateway.BaseURL)
	}
	if cfg.Archive.Enabled != DefaultArchiveEnabled {
		t.Errorf("Expected archive enabled=%v, got %v", DefaultArchiveEnabled, cfg.Archive.Enabled)
	}
	if cfg.Archive.LockMaxRetry != DefaultArchiveLockMaxRetry {
		t.Errorf("Expected default archive lock max retry %d, got %d", DefaultArchiveLockMaxRetry, cfg.Archive.LockMaxRetry)
	}
	if cfg.Sweeper.Schedule != DefaultSweeperSchedule {
		t.Errorf("Expected default sweeper schedule %s, got %s", DefaultSweeperSchedule, cfg.Sweeper.Schedule)
	}
	if cfg.Daemon.ShutdownTimeout != DefaultDaemonShutdownTimeout {
		t.Errorf("Expected default daemon shutdown timeout %s, got %s", DefaultDaemonShutdownTimeout, cfg.Daemon.ShutdownTimeout)
	}
	if _, ok := cfg.FindModel(DefaultPolicyModel); !ok {
		t.Errorf("Expected default policy model %s in registry", DefaultPolicyModel)
	}
}

func TestLoadWithConfigFlag(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
server:
  port: 9090
policy:
  backend: llm
transactions:
  cancellation:
    mode: ledger
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("failed to load config with --config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Policy.Backend != "llm" {
		t.Fatalf("expected backend llm, got %s", cfg.Policy.Backend)
	}
	if cfg.Transactions.Cancellation.Mode != "ledger" {
		t.Fatalf("expected cancellation mode ledger, got %s", cfg.Transactions.Cancellation.Mode)
	}
	if cfg.Session.Timeout != DefaultSessionTimeout {
		t.Fatalf("expected untouched session timeout %s, got %s", DefaultSessionTimeout, cfg.Session.Timeout)
	}
}

func TestLoadWithMissingConfigFlagReturnsError(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	if _, err := Load(cmd); err == nil {
		t.Fatal("expected error when --config points to missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("IVRBRIDGE_SESSION_TIMEOUT", "5m")
	t.Setenv("IVRBRIDGE_POLICY_BACKEND", "semantic")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("BASE_URL", "https://ivr.example.com")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Session.Timeout != "5m" {
		t.Errorf("session timeout = %q, want 5m", cfg.Session.Timeout)
	}
	if cfg.Policy.Backend != "semantic" {
		t.Errorf("policy backend = %q, want semantic", cfg.Policy.Backend)
	}
	if cfg.Gateway.TwilioAuthToken != "secret" {
		t.Errorf("twilio auth token = %q, want secret", cfg.Gateway.TwilioAuthToken)
	}
	if cfg.Gateway.BaseURL != "https://ivr.example.com" {
		t.Errorf("base url = %q, want https://ivr.example.com", cfg.Gateway.BaseURL)
	}
	m, ok := cfg.FindModel(DefaultPolicyModel)
	if !ok {
		t.Fatalf("expected model %s in registry", DefaultPolicyModel)
	}
	if m.APIKey != "sk-test" {
		t.Errorf("openai api key = %q, want sk-test", m.APIKey)
	}
}

func TestLoad_ExpandsConfiguredPaths(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
archive:
  path: ~/.ivrbridge/archive
transactions:
  flight_registry_path: ~/.ivrbridge/flights.toml
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	wantArchive := filepath.Join(tmpDir, ".ivrbridge", "archive")
	if cfg.Archive.Path != wantArchive {
		t.Fatalf("archive path = %q, want %q", cfg.Archive.Path, wantArchive)
	}
	wantRegistry := filepath.Join(tmpDir, ".ivrbridge", "flights.toml")
	if cfg.Transactions.FlightRegistryPath != wantRegistry {
		t.Fatalf("flight registry path = %q, want %q", cfg.Transactions.FlightRegistryPath, wantRegistry)
	}
}
