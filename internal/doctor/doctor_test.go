package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/anyclaw/anyclaw/internal/config"
)

type fakeDB struct{ err error }

func (f fakeDB) PingContext(context.Context) error { return f.err }

type fixedKey string

func (k fixedKey) ResolveKey(context.Context) string { return string(k) }

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.OpenClaw.Bin = "openclaw"
	cfg.OpenClaw.StateRoot = t.TempDir()
	cfg.Gateway.Systemctl = "systemctl"
	cfg.Gateway.UnitDir = t.TempDir()
	cfg.Gateway.ChromePath = filepath.Join(t.TempDir(), "chromium")
	if err := os.WriteFile(cfg.Gateway.ChromePath, nil, 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func noBrowser() (string, bool) { return "", false }

func found(file string) (string, error) { return "/usr/bin/" + file, nil }

func statusOf(d Diagnosis, name string) string {
	for _, r := range d.Results {
		if r.Name == name {
			return r.Status
		}
	}
	return ""
}

func TestRunAllPass(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://localhost:6379/0"
	d := Run(context.Background(), cfg, Deps{
		DB:       fakeDB{},
		Keys:     fixedKey("sk-ant-test"),
		Redis:    func(context.Context) error { return nil },
		LookPath: found,
	}, "1.0.0")

	if d.Failed() {
		t.Fatalf("diagnosis failed: %+v", d.Results)
	}
	for _, r := range d.Results {
		if r.Status != StatusPass {
			t.Errorf("%s = %s (%s)", r.Name, r.Status, r.Message)
		}
	}
	if d.System.Version != "1.0.0" {
		t.Errorf("version = %q", d.System.Version)
	}
}

func TestRunReportsProblems(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenClaw.StateRoot = filepath.Join(t.TempDir(), "missing")
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.Gateway.UnitDir = file
	cfg.Gateway.ChromePath = filepath.Join(t.TempDir(), "no-chromium")

	d := Run(context.Background(), cfg, Deps{
		DB:          fakeDB{err: errors.New("database is locked")},
		Keys:        fixedKey(""),
		LookPath:    func(string) (string, error) { return "", errors.New("not found") },
		FindBrowser: noBrowser,
	}, "dev")

	want := map[string]string{
		"Runtime":    StatusFail,
		"Systemd":    StatusFail,
		"Chromium":   StatusWarn,
		"State Root": StatusFail,
		"Unit Dir":   StatusFail,
		"API Key":    StatusWarn,
		"Database":   StatusFail,
		"Redis":      StatusSkip,
	}
	for name, status := range want {
		if got := statusOf(d, name); got != status {
			t.Errorf("%s = %q, want %q", name, got, status)
		}
	}
	if !d.Failed() {
		t.Error("Failed() = false")
	}
}

func TestRunSkipsMissingDeps(t *testing.T) {
	d := Run(context.Background(), testConfig(t), Deps{LookPath: found}, "dev")
	for _, name := range []string{"API Key", "Database", "Redis"} {
		if got := statusOf(d, name); got != StatusSkip {
			t.Errorf("%s = %q, want SKIP", name, got)
		}
	}
}

func TestBrowserFallbackSuggestsPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gateway.ChromePath = filepath.Join(t.TempDir(), "missing")

	r := checkBrowser(context.Background(), cfg, Deps{
		FindBrowser: func() (string, bool) { return "/usr/bin/google-chrome", true },
	})
	if r.Status != StatusWarn || r.Detail != "Set ANYCLAW_CHROME_PATH=/usr/bin/google-chrome" {
		t.Errorf("result = %+v", r)
	}
}
