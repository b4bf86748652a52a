package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port               int      `mapstructure:"port"`
	DatabasePath       string   `mapstructure:"database_path"`
	DatabaseDriver     string   `mapstructure:"database_driver"` // "sqlite" or "postgres"
	LogLevel           string   `mapstructure:"log_level"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	RequestTimeoutSec  int      `mapstructure:"request_timeout_sec"` // HTTP read/write; 0 = use server default
	ShutdownTimeoutSec int      `mapstructure:"shutdown_timeout_sec"`

	RulesDir            string `mapstructure:"rules_dir"`              // directory of rule files (subdirectories are not read)
	RulesWatch          bool   `mapstructure:"rules_watch"`            // fsnotify hot reload
	WorkerPoolSize      int    `mapstructure:"worker_pool_size"`       // W, default 3
	StaleTaskMinutes    int    `mapstructure:"stale_task_minutes"`     // recovery sweep threshold
	WorkspaceRoot       string `mapstructure:"workspace_root"`         // scratch dir for extracted logs
	WorkspaceRetainHrs  int    `mapstructure:"workspace_retain_hours"` // post-mortem tar retention
	QueueCapacity       int    `mapstructure:"queue_capacity"`         // buffered task channel size

	ArtifactFetchBaseURL string `mapstructure:"artifact_fetch_base_url"` // base for resolving opaque log tokens

	MaterializeTimeoutSec int `mapstructure:"materialize_timeout_sec"`
	PreExtractTimeoutSec  int `mapstructure:"preextract_timeout_sec"`
	PreExtractMaxLines    int `mapstructure:"preextract_max_lines"`
	AgentTimeoutSec       int `mapstructure:"agent_timeout_sec"`
	AgentKillGraceSec     int `mapstructure:"agent_kill_grace_sec"`
	AgentMaxOutputBytes   int `mapstructure:"agent_max_output_bytes"`

	AgentProviders  []string `mapstructure:"agent_providers"` // ordered fallback list, e.g. ["claude_code","codex"]
	ClaudeCodeBin   string   `mapstructure:"claude_code_bin"`
	CodexBin        string   `mapstructure:"codex_bin"`

	BearerAuthSecret string `mapstructure:"bearer_auth_secret"` // empty = auth disabled
	AuthRequired     bool   `mapstructure:"auth_required"`

	WebhookSharedSecret string `mapstructure:"webhook_shared_secret"`
	NotifyTimeoutSec    int    `mapstructure:"notify_timeout_sec"`

	TracingEndpoint   string  `mapstructure:"tracing_endpoint"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/triage/")
	viper.AddConfigPath("$HOME/.triage")
	viper.AddConfigPath(".")

	viper.SetDefault("port", 8080)
	viper.SetDefault("database_path", "./triage.db")
	viper.SetDefault("database_driver", "sqlite")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("allowed_origins", []string{"*"})
	viper.SetDefault("request_timeout_sec", 30)
	viper.SetDefault("shutdown_timeout_sec", 15)

	viper.SetDefault("rules_dir", "./rules")
	viper.SetDefault("rules_watch", true)
	viper.SetDefault("worker_pool_size", 3)
	viper.SetDefault("stale_task_minutes", 10)
	viper.SetDefault("workspace_root", "./workspaces")
	viper.SetDefault("workspace_retain_hours", 168)
	viper.SetDefault("queue_capacity", 256)
	viper.SetDefault("artifact_fetch_base_url", "")

	viper.SetDefault("materialize_timeout_sec", 60)
	viper.SetDefault("preextract_timeout_sec", 30)
	viper.SetDefault("preextract_max_lines", 5000)
	viper.SetDefault("agent_timeout_sec", 180)
	viper.SetDefault("agent_kill_grace_sec", 5)
	viper.SetDefault("agent_max_output_bytes", 2*1024*1024)

	viper.SetDefault("agent_providers", []string{"claude_code", "codex"})
	viper.SetDefault("claude_code_bin", "")
	viper.SetDefault("codex_bin", "")

	viper.SetDefault("bearer_auth_secret", "")
	viper.SetDefault("auth_required", false)

	viper.SetDefault("webhook_shared_secret", "")
	viper.SetDefault("notify_timeout_sec", 10)

	viper.SetDefault("tracing_endpoint", "")
	viper.SetDefault("tracing_sample_rate", 0.0)

	viper.SetEnvPrefix("TRIAGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return &cfg, nil
}
