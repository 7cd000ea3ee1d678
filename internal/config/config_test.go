package config

import (
	"os"
	"testing"
	"time"
)

var allKeys = []string{
	"ANYCLAW_PORT", "ANYCLAW_BIND", "ANYCLAW_DATA_DIR", "ANYCLAW_LOG_LEVEL", "ANYCLAW_DEV",
	"ANYCLAW_JWT_SECRET", "ANYCLAW_ENCRYPTION_KEY", "ANYCLAW_ACCESS_HASH", "ANYCLAW_ORIGINS",
	"OPENCLAW_BIN", "OPENCLAW_CONFIG", "OPENCLAW_MODEL", "OPENCLAW_STATE_ROOT", "AGENTS_BASE_DIR",
	"ANTHROPIC_API_KEY", "ANYCLAW_BASE_PORT", "ANYCLAW_UNIT_DIR", "ANYCLAW_SYSTEMCTL",
	"ANYCLAW_SETTLE", "ANYCLAW_CLI_TIMEOUT", "ANYCLAW_STATUS_TIMEOUT", "ANYCLAW_CHROME_PATH",
	"REDIS_URL", "ANYCLAW_OTP_TTL", "ANYCLAW_OTEL_EXPORTER", "ANYCLAW_OTEL_ENDPOINT",
	"ANYCLAW_USAGE_RETENTION_DAYS",
}

// clearEnv unsets every variable Load reads. t.Setenv registers the
// restore; os.Unsetenv then makes the key absent so envDefault applies.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Chdir(t.TempDir()) // keep a developer's .env out of the test
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("expected default port 3000, got %d", cfg.Port)
	}
	if cfg.BindAddress != "127.0.0.1" {
		t.Errorf("expected default bind address 127.0.0.1, got %s", cfg.BindAddress)
	}
	if cfg.DataDir == "" {
		t.Error("expected DataDir to be non-empty")
	}
	if cfg.OpenClaw.Bin != "openclaw" {
		t.Errorf("OpenClaw.Bin = %q, want openclaw", cfg.OpenClaw.Bin)
	}
	if cfg.Gateway.BasePort != 19100 {
		t.Errorf("Gateway.BasePort = %d, want 19100", cfg.Gateway.BasePort)
	}
	if cfg.Gateway.Settle != 3*time.Second {
		t.Errorf("Gateway.Settle = %v, want 3s", cfg.Gateway.Settle)
	}
	if cfg.Gateway.CLITimeout != 15*time.Second || cfg.Gateway.StatusTimeout != 10*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.Gateway.CLITimeout, cfg.Gateway.StatusTimeout)
	}
	if cfg.OTPTTL != 5*time.Minute {
		t.Errorf("OTPTTL = %v, want 5m", cfg.OTPTTL)
	}
	if cfg.OTelExporter != "none" {
		t.Errorf("OTelExporter = %q, want none", cfg.OTelExporter)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANYCLAW_PORT", "8080")
	t.Setenv("ANYCLAW_DEV", "true")
	t.Setenv("ANYCLAW_BASE_PORT", "20000")
	t.Setenv("ANYCLAW_SETTLE", "500ms")
	t.Setenv("OPENCLAW_STATE_ROOT", "/srv/openclaw")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("ANYCLAW_DATA_DIR", "/tmp/anyclaw-test-data")
	t.Setenv("ANYCLAW_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != 8080 || !cfg.DevMode {
		t.Errorf("port/dev = %d/%v", cfg.Port, cfg.DevMode)
	}
	if cfg.Gateway.BasePort != 20000 {
		t.Errorf("BasePort = %d, want 20000", cfg.Gateway.BasePort)
	}
	if cfg.Gateway.Settle != 500*time.Millisecond {
		t.Errorf("Settle = %v, want 500ms", cfg.Gateway.Settle)
	}
	if cfg.OpenClaw.StateRoot != "/srv/openclaw" || cfg.OpenClaw.APIKey != "sk-test" {
		t.Errorf("OpenClaw = %+v", cfg.OpenClaw)
	}
	if cfg.DataDir != "/tmp/anyclaw-test-data" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if len(cfg.Origins) != 2 || cfg.Origins[1] != "https://b.example" {
		t.Errorf("Origins = %v", cfg.Origins)
	}
}

func TestLoadInvalidPortIsAnError(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANYCLAW_PORT", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestLoadRejectsBasePortOutOfRange(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANYCLAW_BASE_PORT", "70000")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for base port above 65535")
	}
}

func TestLoadRejectsUnknownExporter(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANYCLAW_OTEL_EXPORTER", "zipkin")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}
