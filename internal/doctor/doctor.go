// Package doctor checks that a host can run tenant gateways.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/anyclaw/anyclaw/internal/config"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusWarn = "WARN"
	StatusSkip = "SKIP"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Failed reports whether any check failed.
func (d Diagnosis) Failed() bool {
	for _, r := range d.Results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type KeyResolver interface {
	ResolveKey(ctx context.Context) string
}

// Deps are the live handles the checks probe. Nil fields skip their check.
type Deps struct {
	DB    Pinger
	Keys  KeyResolver
	Redis func(ctx context.Context) error
	// LookPath defaults to exec.LookPath.
	LookPath func(file string) (string, error)
	// FindBrowser defaults to the rod launcher's search of the usual
	// Chrome and Chromium install locations.
	FindBrowser func() (string, bool)
}

// Run executes every check in order.
func Run(ctx context.Context, cfg *config.Config, deps Deps, version string) Diagnosis {
	if deps.LookPath == nil {
		deps.LookPath = exec.LookPath
	}
	if deps.FindBrowser == nil {
		deps.FindBrowser = launcher.LookPath
	}
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config, Deps) CheckResult{
		checkRuntimeBinary,
		checkSystemctl,
		checkBrowser,
		checkStateRoot,
		checkUnitDir,
		checkAPIKey,
		checkDatabase,
		checkRedis,
	}
	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg, deps))
	}
	return d
}

func checkRuntimeBinary(_ context.Context, cfg *config.Config, deps Deps) CheckResult {
	path, err := deps.LookPath(cfg.OpenClaw.Bin)
	if err != nil {
		return CheckResult{
			Name:    "Runtime",
			Status:  StatusFail,
			Message: fmt.Sprintf("%s not found", cfg.OpenClaw.Bin),
			Detail:  "Install openclaw or set OPENCLAW_BIN",
		}
	}
	return CheckResult{Name: "Runtime", Status: StatusPass, Message: path}
}

func checkSystemctl(_ context.Context, cfg *config.Config, deps Deps) CheckResult {
	path, err := deps.LookPath(cfg.Gateway.Systemctl)
	if err != nil {
		return CheckResult{
			Name:    "Systemd",
			Status:  StatusFail,
			Message: fmt.Sprintf("%s not found", cfg.Gateway.Systemctl),
			Detail:  "Gateways run as systemd units",
		}
	}
	return CheckResult{Name: "Systemd", Status: StatusPass, Message: path}
}

// checkBrowser only warns: a gateway starts without a browser but cannot
// complete WhatsApp pairing.
func checkBrowser(_ context.Context, cfg *config.Config, deps Deps) CheckResult {
	if info, err := os.Stat(cfg.Gateway.ChromePath); err == nil && !info.IsDir() {
		return CheckResult{Name: "Chromium", Status: StatusPass, Message: cfg.Gateway.ChromePath}
	}
	if path, ok := deps.FindBrowser(); ok {
		return CheckResult{
			Name:    "Chromium",
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s missing, found %s", cfg.Gateway.ChromePath, path),
			Detail:  "Set ANYCLAW_CHROME_PATH=" + path,
		}
	}
	return CheckResult{
		Name:    "Chromium",
		Status:  StatusWarn,
		Message: "No Chrome or Chromium found",
		Detail:  "Gateways need a browser to pair WhatsApp",
	}
}

func checkStateRoot(_ context.Context, cfg *config.Config, _ Deps) CheckResult {
	if err := probeWritable(cfg.OpenClaw.StateRoot); err != nil {
		return CheckResult{Name: "State Root", Status: StatusFail, Message: err.Error()}
	}
	return CheckResult{Name: "State Root", Status: StatusPass, Message: cfg.OpenClaw.StateRoot + " writable"}
}

func checkUnitDir(_ context.Context, cfg *config.Config, _ Deps) CheckResult {
	if err := probeWritable(cfg.Gateway.UnitDir); err != nil {
		return CheckResult{
			Name:    "Unit Dir",
			Status:  StatusFail,
			Message: err.Error(),
			Detail:  "Unit files are installed as root",
		}
	}
	return CheckResult{Name: "Unit Dir", Status: StatusPass, Message: cfg.Gateway.UnitDir + " writable"}
}

func checkAPIKey(ctx context.Context, _ *config.Config, deps Deps) CheckResult {
	if deps.Keys == nil {
		return CheckResult{Name: "API Key", Status: StatusSkip, Message: "No resolver"}
	}
	if deps.Keys.ResolveKey(ctx) == "" {
		return CheckResult{
			Name:    "API Key",
			Status:  StatusWarn,
			Message: "No Anthropic key found",
			Detail:  "Set ANTHROPIC_API_KEY; gateways start but cannot answer",
		}
	}
	return CheckResult{Name: "API Key", Status: StatusPass, Message: "Anthropic key resolved"}
}

func checkDatabase(ctx context.Context, _ *config.Config, deps Deps) CheckResult {
	if deps.DB == nil {
		return CheckResult{Name: "Database", Status: StatusSkip, Message: "Not opened"}
	}
	if err := deps.DB.PingContext(ctx); err != nil {
		return CheckResult{Name: "Database", Status: StatusFail, Message: fmt.Sprintf("Ping failed: %v", err)}
	}
	return CheckResult{Name: "Database", Status: StatusPass, Message: "Connection valid"}
}

func checkRedis(ctx context.Context, cfg *config.Config, deps Deps) CheckResult {
	if cfg.RedisURL == "" || deps.Redis == nil {
		return CheckResult{Name: "Redis", Status: StatusSkip, Message: "Not configured; login codes kept in memory"}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := deps.Redis(pingCtx); err != nil {
		return CheckResult{Name: "Redis", Status: StatusFail, Message: err.Error()}
	}
	return CheckResult{Name: "Redis", Status: StatusPass, Message: "Reachable"}
}

func probeWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".anyclaw-doctor-*")
	if err != nil {
		return fmt.Errorf("%s unwritable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return nil
}

// Icon returns the marker the CLI prints next to a status.
func Icon(status string) string {
	switch status {
	case StatusFail:
		return "✗"
	case StatusWarn:
		return "!"
	case StatusSkip:
		return "-"
	}
	return "✓"
}
