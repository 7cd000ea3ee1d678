// Package procrun runs short-lived external commands with a hard timeout and
// a scrubbed environment.
package procrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner executes one command to completion.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error)
}

type Result struct {
	Stdout string
	Stderr string
}

// Error describes a command that exited non-zero, timed out, or could not
// be started.
type Error struct {
	Name     string
	Args     []string
	ExitCode int
	TimedOut bool
	Stdout   string
	Stderr   string
	Err      error
}

// Error prefers the command's own stderr, then its stdout, then the
// underlying exec error.
func (e *Error) Error() string {
	switch {
	case strings.TrimSpace(e.Stderr) != "":
		return strings.TrimSpace(e.Stderr)
	case strings.TrimSpace(e.Stdout) != "":
		return strings.TrimSpace(e.Stdout)
	case e.TimedOut:
		return fmt.Sprintf("%s timed out", e.Command())
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Command(), e.Err)
	default:
		return fmt.Sprintf("%s exited with status %d", e.Command(), e.ExitCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Command renders the invocation for log lines.
func (e *Error) Command() string {
	return strings.TrimSpace(e.Name + " " + strings.Join(e.Args, " "))
}

// Exec runs commands with os/exec. Extra is appended to the filtered parent
// environment.
type Exec struct {
	Extra []string
}

func (x Exec) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(FilterEnv(os.Environ()), x.Extra...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	perr := &Error{Name: name, Args: args, ExitCode: -1, Stdout: res.Stdout, Stderr: res.Stderr, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		perr.ExitCode = exitErr.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		perr.TimedOut = true
	}
	return res, perr
}

var sensitiveEnvPrefixes = []string{
	"AWS_SECRET",
	"AWS_SESSION",
	"GOOGLE_APPLICATION_CREDENTIALS",
	"GCLOUD_",
	"AZURE_",
	"OPENAI_API",
	"OPENROUTER_API",
	"ANYCLAW_JWT",
	"ANYCLAW_ENCRYPTION",
	"ANYCLAW_ACCESS",
	"REDIS_URL",
	"SSH_",
	"GPG_",
}

var sensitiveEnvExact = []string{
	"AWS_ACCESS_KEY_ID",
	"DATABASE_URL",
	"DB_PASSWORD",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GITLAB_TOKEN",
	"NPM_TOKEN",
	"DOCKER_PASSWORD",
}

// FilterEnv drops credentials the external runtime has no business seeing.
// ANTHROPIC_API_KEY is kept: the runtime reads it as a fallback provider key.
func FilterEnv(env []string) []string {
	var filtered []string
	for _, e := range env {
		key := e
		if idx := strings.Index(e, "="); idx >= 0 {
			key = e[:idx]
		}
		upper := strings.ToUpper(key)
		skip := false
		for _, prefix := range sensitiveEnvPrefixes {
			if strings.HasPrefix(upper, prefix) {
				skip = true
				break
			}
		}
		if !skip {
			for _, exact := range sensitiveEnvExact {
				if upper == exact {
					skip = true
					break
				}
			}
		}
		if !skip {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
