package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/harunnryd/ivrbridge/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Session      SessionConfig      `koanf:"session"`
	Policy       PolicyConfig       `koanf:"policy"`
	Models       ModelsConfig       `koanf:"models"`
	Transactions TransactionsConfig `koanf:"transactions"`
	Gateway      GatewayConfig      `koanf:"gateway"`
	Archive      ArchiveConfig      `koanf:"archive"`
	Notify       NotifyConfig       `koanf:"notify"`
	Sweeper      SweeperConfig      `koanf:"sweeper"`
	Daemon       DaemonConfig       `koanf:"daemon"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type SessionConfig struct {
	Timeout string `koanf:"timeout"`
}

type PolicyConfig struct {
	Backend        string         `koanf:"backend"` // keyword, llm, semantic
	Model          string         `koanf:"model"`
	HistoryTurns   int            `koanf:"history_turns"`
	RequestTimeout string         `koanf:"request_timeout"`
	Semantic       SemanticConfig `koanf:"semantic"`
}

type SemanticConfig struct {
	EmbeddingModel string  `koanf:"embedding_model"`
	Threshold      float64 `koanf:"threshold"`
}

type ModelsConfig struct {
	Fallback string          `koanf:"fallback"`
	Registry []ModelRegistry `koanf:"registry"`
}

type ModelRegistry struct {
	Name     string `koanf:"name"`
	Provider string `koanf:"provider"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

type TransactionsConfig struct {
	FlightRegistryPath string             `koanf:"flight_registry_path"`
	Cancellation       CancellationConfig `koanf:"cancellation"`
}

type CancellationConfig struct {
	Mode string `koanf:"mode"` // accept, ledger
}

type GatewayConfig struct {
	BaseURL           string `koanf:"base_url"`
	Voice             string `koanf:"voice"`
	Language          string `koanf:"language"`
	AgentNumber       string `koanf:"agent_number"`
	TwilioAuthToken   string `koanf:"twilio_auth_token"`
	ValidateSignature bool   `koanf:"validate_signature"`
	IdempotencyTTL    string `koanf:"idempotency_ttl"`
	IdempotencyPath   string `koanf:"idempotency_path"`
}

type ArchiveConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Path         string `koanf:"path"`
	LockTimeout  string `koanf:"lock_timeout"`
	LockRetry    string `koanf:"lock_retry"`
	LockMaxRetry int    `koanf:"lock_max_retry"`
	// TranscriptLimit keeps only the last N interactions in archived records. Zero keeps all.
	TranscriptLimit int `koanf:"transcript_limit"`
}

type NotifyConfig struct {
	Slack    SlackConfig    `koanf:"slack"`
	Telegram TelegramConfig `koanf:"telegram"`
}

type SlackConfig struct {
	Enabled  bool   `koanf:"enabled"`
	BotToken string `koanf:"bot_token"`
	Channel  string `koanf:"channel"`
}

type TelegramConfig struct {
	Enabled  bool   `koanf:"enabled"`
	BotToken string `koanf:"bot_token"`
	ChatID   int64  `koanf:"chat_id"`
}

type SweeperConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Schedule string `koanf:"schedule"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout"`
}

const (
	DefaultServerPort                   = 8000
	DefaultServerLogLevel               = "info"
	DefaultServerReadTimeout            = "10s"
	DefaultServerWriteTimeout           = "30s"
	DefaultServerIdleTimeout            = "60s"
	DefaultServerShutdownTimeout        = "5s"
	DefaultSessionTimeout               = "30m"
	DefaultPolicyBackend                = "keyword"
	DefaultPolicyModel                  = "gpt-4o-mini"
	DefaultPolicyHistoryTurns           = 5
	DefaultPolicyRequestTimeout         = "30s"
	DefaultSemanticEmbeddingModel       = "text-embedding-3-small"
	DefaultSemanticThreshold            = 0.8
	DefaultOpenAIBaseURL                = "https://api.openai.com/v1"
	DefaultCancellationMode             = "accept"
	DefaultGatewayBaseURL               = "http://localhost:8000"
	DefaultGatewayVoice                 = "Polly.Aditi"
	DefaultGatewayLanguage              = "en-IN"
	DefaultGatewayAgentNumber           = "+18005551234"
	DefaultGatewayIdempotencyTTL        = "10m"
	DefaultArchiveEnabled               = false
	DefaultArchiveLockTimeout           = "30s"
	DefaultArchiveLockRetry             = "100ms"
	DefaultArchiveLockMaxRetry          = 300
	DefaultSweeperEnabled               = true
	DefaultSweeperSchedule              = "@every 1m"
	DefaultDaemonShutdownTimeout        = "30s"
	DefaultDaemonHealthCheckInterval    = "30s"
	DefaultDaemonStartupShutdownTimeout = "10s"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.port":                     DefaultServerPort,
		"server.log_level":                DefaultServerLogLevel,
		"server.read_timeout":             DefaultServerReadTimeout,
		"server.write_timeout":            DefaultServerWriteTimeout,
		"server.idle_timeout":             DefaultServerIdleTimeout,
		"server.shutdown_timeout":         DefaultServerShutdownTimeout,
		"session.timeout":                 DefaultSessionTimeout,
		"policy.backend":                  DefaultPolicyBackend,
		"policy.model":                    DefaultPolicyModel,
		"policy.history_turns":            DefaultPolicyHistoryTurns,
		"policy.request_timeout":          DefaultPolicyRequestTimeout,
		"policy.semantic.embedding_model": DefaultSemanticEmbeddingModel,
		"policy.semantic.threshold":       DefaultSemanticThreshold,
		"models.registry":                 []ModelRegistry{
			{Name: DefaultPolicyModel, Provider: "openai", BaseURL: DefaultOpenAIBaseURL},
			{Name: DefaultSemanticEmbeddingModel, Provider: "openai", BaseURL: DefaultOpenAIBaseURL},
			{Name: "claude-3-5-haiku-latest", Provider: "anthropic"},
			{Name: "gemini-2.0-flash", Provider: "gemini"},
		},
		"transactions.cancellation.mode":  DefaultCancellationMode,
		"gateway.base_url":                DefaultGatewayBaseURL,
		"gateway.voice":                   DefaultGatewayVoice,
		"gateway.language":                DefaultGatewayLanguage,
		"gateway.agent_number":            DefaultGatewayAgentNumber,
		"gateway.idempotency_ttl":         DefaultGatewayIdempotencyTTL,
		"archive.enabled":                 DefaultArchiveEnabled,
		"archive.path":                    pathutil.DataPath("archive"),
		"archive.lock_timeout":            DefaultArchiveLockTimeout,
		"archive.lock_retry":              DefaultArchiveLockRetry,
		"archive.lock_max_retry":          DefaultArchiveLockMaxRetry,
		"sweeper.enabled":                 DefaultSweeperEnabled,
		"sweeper.schedule":                DefaultSweeperSchedule,
		"daemon.shutdown_timeout":         DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":    DefaultDaemonHealthCheckInterval,
		"daemon.startup_shutdown_timeout": DefaultDaemonStartupShutdownTimeout,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		globalPath := pathutil.DataPath("config.yaml")
		if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
			slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
		}
	}

	// Environment Variables
	k.Load(env.Provider("IVRBRIDGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "IVRBRIDGE_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i, m := range cfg.Models.Registry {
		if m.Provider == "" {
			cfg.Models.Registry[i].Provider = "openai"
		}
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	// Post-Process: Inject standard Env Vars if missing
	providerKeys := map[string]string{
		"openai":    os.Getenv("OPENAI_API_KEY"),
		"anthropic": os.Getenv("ANTHROPIC_API_KEY"),
		"gemini":    os.Getenv("GEMINI_API_KEY"),
	}
	for i, m := range cfg.Models.Registry {
		if key := providerKeys[m.Provider]; key != "" && m.APIKey == "" {
			cfg.Models.Registry[i].APIKey = key
		}
	}
	if cfg.Gateway.TwilioAuthToken == "" {
		cfg.Gateway.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if base := strings.TrimSpace(os.Getenv("BASE_URL")); base != "" && cfg.Gateway.BaseURL == DefaultGatewayBaseURL {
		cfg.Gateway.BaseURL = base
	}
	if cfg.Notify.Slack.BotToken == "" {
		cfg.Notify.Slack.BotToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	if cfg.Notify.Telegram.BotToken == "" {
		cfg.Notify.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}

	return &cfg, nil
}

// FindModel returns the registry entry named name.
func (c *Config) FindModel(name string) (ModelRegistry, bool) {
	for _, m := range c.Models.Registry {
		if m.Name == name {
			return m, true
		}
	}
	return ModelRegistry{}, false
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	fields := []*string{
		&cfg.Archive.Path,
		&cfg.Gateway.IdempotencyPath,
		&cfg.Transactions.FlightRegistryPath,
	}
	for _, field := range fields {
		expanded, err := expandConfiguredPath(*field)
		if err != nil {
			return err
		}
		if expanded != "" {
			*field = expanded
		}
	}

	return nil
}

func expandConfiguredPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	expanded, err := pathutil.Expand(trimmed)
	if err != nil {
		return "", err
	}
	return expanded, nil
}
