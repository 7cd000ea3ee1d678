package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port          int    `env:"ANYCLAW_PORT" envDefault:"3000"`
	BindAddress   string `env:"ANYCLAW_BIND" envDefault:"127.0.0.1"`
	DataDir       string `env:"ANYCLAW_DATA_DIR"`
	LogLevel      string `env:"ANYCLAW_LOG_LEVEL" envDefault:"info"`
	DevMode       bool   `env:"ANYCLAW_DEV" envDefault:"false"`
	JWTSecret     string `env:"ANYCLAW_JWT_SECRET"`
	EncryptionKey string `env:"ANYCLAW_ENCRYPTION_KEY"`
	AccessHash    string `env:"ANYCLAW_ACCESS_HASH"`
	// Origins allowed for CORS and the WebSocket upgrade.
	Origins []string `env:"ANYCLAW_ORIGINS" envSeparator:","`

	OpenClaw OpenClaw
	Gateway  Gateway

	RedisURL string        `env:"REDIS_URL"`
	OTPTTL   time.Duration `env:"ANYCLAW_OTP_TTL" envDefault:"5m"`

	OTelExporter string `env:"ANYCLAW_OTEL_EXPORTER" envDefault:"none"`
	OTelEndpoint string `env:"ANYCLAW_OTEL_ENDPOINT"`

	UsageRetentionDays int `env:"ANYCLAW_USAGE_RETENTION_DAYS" envDefault:"90"`
}

// OpenClaw locates the external runtime and its shared master configuration.
type OpenClaw struct {
	Bin          string `env:"OPENCLAW_BIN" envDefault:"openclaw"`
	MasterConfig string `env:"OPENCLAW_CONFIG" envDefault:"/root/.openclaw/openclaw.json"`
	Model        string `env:"OPENCLAW_MODEL" envDefault:"anthropic/claude-sonnet-4-20250514"`
	StateRoot    string `env:"OPENCLAW_STATE_ROOT" envDefault:"/root"`
	AgentsDir    string `env:"AGENTS_BASE_DIR" envDefault:"/root/agents/anyclaw"`
	APIKey       string `env:"ANTHROPIC_API_KEY"`
}

// Gateway holds per-tenant runtime provisioning knobs.
type Gateway struct {
	BasePort      int           `env:"ANYCLAW_BASE_PORT" envDefault:"19100"`
	UnitDir       string        `env:"ANYCLAW_UNIT_DIR" envDefault:"/etc/systemd/system"`
	Systemctl     string        `env:"ANYCLAW_SYSTEMCTL" envDefault:"systemctl"`
	Settle        time.Duration `env:"ANYCLAW_SETTLE" envDefault:"3s"`
	CLITimeout    time.Duration `env:"ANYCLAW_CLI_TIMEOUT" envDefault:"15s"`
	StatusTimeout time.Duration `env:"ANYCLAW_STATUS_TIMEOUT" envDefault:"10s"`
	ChromePath    string        `env:"ANYCLAW_CHROME_PATH" envDefault:"/snap/bin/chromium"`
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = resolveDataDir()
	}
	if cfg.Gateway.BasePort <= 0 || cfg.Gateway.BasePort > 65535 {
		return nil, fmt.Errorf("ANYCLAW_BASE_PORT out of range: %d", cfg.Gateway.BasePort)
	}
	switch cfg.OTelExporter {
	case "none", "stdout", "otlp":
	default:
		return nil, fmt.Errorf("ANYCLAW_OTEL_EXPORTER must be none, stdout or otlp, got %q", cfg.OTelExporter)
	}
	return cfg, nil
}

func resolveDataDir() string {
	// Resolve data dir relative to the executable, not the CWD
	exe, err := os.Executable()
	if err != nil {
		return "./data"
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "./data"
	}
	return filepath.Join(filepath.Dir(exe), "data")
}
