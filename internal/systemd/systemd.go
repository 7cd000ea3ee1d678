// Package systemd installs and controls one systemd unit per runtime
// profile. systemctl is the source of truth for whether a gateway runs.
package systemd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/anyclaw/anyclaw/internal/procrun"
)

// ErrNotActive is returned when a unit is not active after its settle window.
var ErrNotActive = errors.New("service not active")

// Supervisor controls the background service for one profile.
type Supervisor interface {
	Install(ctx context.Context, profile string, port int) error
	Start(ctx context.Context, profile string) error
	Stop(ctx context.Context, profile string) error
	// IsActive reports systemctl's view of the unit and the raw state word
	// ("active", "inactive", "failed", "activating", ...).
	IsActive(ctx context.Context, profile string) (bool, string, error)
	Uninstall(ctx context.Context, profile string) error
}

type Options struct {
	UnitDir    string
	Systemctl  string
	Binary     string
	ChromePath string
	Timeout    time.Duration
}

// Systemd is the systemctl-backed Supervisor.
type Systemd struct {
	opts   Options
	runner procrun.Runner
}

func New(opts Options, runner procrun.Runner) *Systemd {
	if opts.UnitDir == "" {
		opts.UnitDir = "/etc/systemd/system"
	}
	if opts.Systemctl == "" {
		opts.Systemctl = "systemctl"
	}
	if opts.Binary == "" {
		opts.Binary = "openclaw"
	}
	if opts.ChromePath == "" {
		opts.ChromePath = "/snap/bin/chromium"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Systemd{opts: opts, runner: runner}
}

// UnitName is openclaw-<profile>.service.
func UnitName(profile string) string {
	return "openclaw-" + profile + ".service"
}

func (s *Systemd) UnitPath(profile string) string {
	return filepath.Join(s.opts.UnitDir, UnitName(profile))
}

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=OpenClaw Gateway ({{.Profile}})
After=network.target

[Service]
Type=simple
User=root
Environment=NODE_OPTIONS=--max-old-space-size=384
Environment=PUPPETEER_EXECUTABLE_PATH={{.ChromePath}}
Environment=CHROME_PATH={{.ChromePath}}
ExecStart={{.Binary}} --profile "{{.Profile}}" gateway --port {{.Port}}
Restart=always
RestartSec=10

[Install]
WantedBy=multi-user.target
`))

// RenderUnit returns the unit file body for profile and port.
func (s *Systemd) RenderUnit(profile string, port int) (string, error) {
	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, struct {
		Profile    string
		Port       int
		Binary     string
		ChromePath string
	}{profile, port, s.opts.Binary, s.opts.ChromePath})
	if err != nil {
		return "", fmt.Errorf("render unit: %w", err)
	}
	return buf.String(), nil
}

// Install writes the unit file and reloads the manager. Reinstalling an
// existing unit overwrites it.
func (s *Systemd) Install(ctx context.Context, profile string, port int) error {
	body, err := s.RenderUnit(profile, port)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.opts.UnitDir, 0o755); err != nil {
		return fmt.Errorf("create unit dir: %w", err)
	}
	if err := os.WriteFile(s.UnitPath(profile), []byte(body), 0o644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}
	return s.systemctl(ctx, "daemon-reload")
}

// Start enables and starts the unit. It does not wait for it to come up.
func (s *Systemd) Start(ctx context.Context, profile string) error {
	unit := UnitName(profile)
	if err := s.systemctl(ctx, "enable", unit); err != nil {
		return err
	}
	return s.systemctl(ctx, "start", unit)
}

func (s *Systemd) Stop(ctx context.Context, profile string) error {
	return s.systemctl(ctx, "stop", UnitName(profile))
}

// IsActive runs systemctl is-active. A non-zero exit with a state word on
// stdout is an answer, not an error.
func (s *Systemd) IsActive(ctx context.Context, profile string) (bool, string, error) {
	res, err := s.runner.Run(ctx, s.opts.Timeout, s.opts.Systemctl, "is-active", UnitName(profile))
	state := firstLine(res.Stdout)
	if state == "" && err != nil {
		return false, "", fmt.Errorf("query unit %s: %w", UnitName(profile), err)
	}
	return state == "active", state, nil
}

// Uninstall stops and disables the unit, then deletes its file. Every step
// tolerates the unit being absent, so repeated calls succeed.
func (s *Systemd) Uninstall(ctx context.Context, profile string) error {
	unit := UnitName(profile)
	// Both fail for a unit that no longer exists.
	_ = s.Stop(ctx, profile)
	_ = s.systemctl(ctx, "disable", unit)

	err := os.Remove(s.UnitPath(profile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("remove unit file: %w", err)
	}
	return s.systemctl(ctx, "daemon-reload")
}

func (s *Systemd) systemctl(ctx context.Context, args ...string) error {
	if _, err := s.runner.Run(ctx, s.opts.Timeout, s.opts.Systemctl, args...); err != nil {
		return fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
