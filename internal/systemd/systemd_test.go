package systemd

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anyclaw/anyclaw/internal/procrun"
)

type call struct {
	name string
	args []string
}

// fakeRunner records argv and answers from a map keyed by the joined args.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []call
	results map[string]procrun.Result
	errs    map[string]error
}

func (f *fakeRunner) Run(_ context.Context, _ time.Duration, name string, args ...string) (procrun.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name, args})
	key := strings.Join(args, " ")
	return f.results[key], f.errs[key]
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.name + " " + strings.Join(c.args, " ")
	}
	return out
}

func newTestSystemd(t *testing.T, r *fakeRunner) *Systemd {
	t.Helper()
	return New(Options{UnitDir: t.TempDir(), Binary: "/usr/bin/openclaw"}, r)
}

func TestRenderUnit(t *testing.T) {
	s := newTestSystemd(t, &fakeRunner{})
	body, err := s.RenderUnit("anyclaw-abc123", 19100)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Description=OpenClaw Gateway (anyclaw-abc123)",
		`ExecStart=/usr/bin/openclaw --profile "anyclaw-abc123" gateway --port 19100`,
		"Restart=always",
		"RestartSec=10",
		"Environment=NODE_OPTIONS=--max-old-space-size=384",
		"Environment=PUPPETEER_EXECUTABLE_PATH=/snap/bin/chromium",
		"Environment=CHROME_PATH=/snap/bin/chromium",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("unit missing %q:\n%s", want, body)
		}
	}
}

func TestInstallAndStart(t *testing.T) {
	r := &fakeRunner{}
	s := newTestSystemd(t, r)
	ctx := context.Background()

	if err := s.Install(ctx, "p1", 19101); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if _, err := os.Stat(s.UnitPath("p1")); err != nil {
		t.Fatalf("unit file not written: %v", err)
	}
	if err := s.Start(ctx, "p1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	want := []string{
		"systemctl daemon-reload",
		"systemctl enable openclaw-p1.service",
		"systemctl start openclaw-p1.service",
	}
	if got := r.commands(); strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("commands = %v, want %v", got, want)
	}
}

func TestStartFailureCarriesDiagnostic(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{
		"start openclaw-p1.service": &procrun.Error{Name: "systemctl", Stderr: "Job for openclaw-p1.service failed."},
	}}
	s := newTestSystemd(t, r)

	err := s.Start(context.Background(), "p1")
	var perr *procrun.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *procrun.Error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Job for openclaw-p1.service failed.") {
		t.Errorf("error should include stderr, got %q", err.Error())
	}
}

func TestIsActive(t *testing.T) {
	tests := []struct {
		name      string
		stdout    string
		err       error
		active    bool
		state     string
		expectErr bool
	}{
		{"active", "active\n", nil, true, "active", false},
		{"inactive exits non-zero", "inactive\n", &procrun.Error{ExitCode: 3}, false, "inactive", false},
		{"failed", "failed\n", &procrun.Error{ExitCode: 3}, false, "failed", false},
		{"systemctl missing", "", &procrun.Error{Err: errors.New("executable file not found")}, false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{
				results: map[string]procrun.Result{"is-active openclaw-p.service": {Stdout: tt.stdout}},
				errs:    map[string]error{"is-active openclaw-p.service": tt.err},
			}
			active, state, err := newTestSystemd(t, r).IsActive(context.Background(), "p")
			if (err != nil) != tt.expectErr {
				t.Fatalf("err = %v, expectErr %v", err, tt.expectErr)
			}
			if active != tt.active || state != tt.state {
				t.Errorf("IsActive = %v %q, want %v %q", active, state, tt.active, tt.state)
			}
		})
	}
}

func TestUninstallIsIdempotent(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{}}
	s := newTestSystemd(t, r)
	ctx := context.Background()

	if err := s.Install(ctx, "p", 19100); err != nil {
		t.Fatal(err)
	}
	installed := len(r.commands())
	if err := s.Uninstall(ctx, "p"); err != nil {
		t.Fatalf("first Uninstall: %v", err)
	}
	want := []string{
		"systemctl stop openclaw-p.service",
		"systemctl disable openclaw-p.service",
		"systemctl daemon-reload",
	}
	if got := r.commands()[installed:]; strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("uninstall commands = %v, want %v", got, want)
	}
	if _, err := os.Stat(s.UnitPath("p")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("unit file should be gone: %v", err)
	}

	// Unit no longer known to systemd.
	notLoaded := &procrun.Error{Stderr: "Unit openclaw-p.service not loaded."}
	r.errs["stop openclaw-p.service"] = notLoaded
	r.errs["disable openclaw-p.service"] = notLoaded
	before := len(r.commands())
	if err := s.Uninstall(ctx, "p"); err != nil {
		t.Fatalf("second Uninstall: %v", err)
	}
	after := r.commands()[before:]
	for _, c := range after {
		if strings.HasSuffix(c, "daemon-reload") {
			t.Errorf("no reload expected when no unit file was removed, got %v", after)
		}
	}
}
