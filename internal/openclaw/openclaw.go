// Package openclaw drives the external openclaw CLI. Every call is scoped to
// one profile (except the global status query) and bounded by a timeout.
package openclaw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anyclaw/anyclaw/internal/procrun"
)

// ErrMalformedOutput is returned when a --json query does not yield a JSON
// object.
var ErrMalformedOutput = errors.New("malformed runtime output")

// Bridge is the narrow surface the orchestrator needs from the runtime.
type Bridge interface {
	RegisterAgent(ctx context.Context, profile, agentID, workspace, model string) error
	ChannelStatus(ctx context.Context, profile string) (ChannelStatus, error)
	GlobalStatus(ctx context.Context) (RuntimeStatus, error)
	ListAgents(ctx context.Context, profile string) (string, error)
}

type Options struct {
	Binary        string
	Timeout       time.Duration // registration and other mutating calls
	StatusTimeout time.Duration // read-only queries
}

// CLI implements Bridge by shelling out to the runtime binary.
type CLI struct {
	opts   Options
	runner procrun.Runner
}

func NewCLI(opts Options, runner procrun.Runner) *CLI {
	if opts.Binary == "" {
		opts.Binary = "openclaw"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.StatusTimeout <= 0 {
		opts.StatusTimeout = 10 * time.Second
	}
	return &CLI{opts: opts, runner: runner}
}

// Run invokes the binary as `<bin> --profile <profile> args...`. An empty
// profile runs against the default (master) profile.
func (c *CLI) Run(ctx context.Context, profile string, timeout time.Duration, args ...string) (string, error) {
	argv := args
	if profile != "" {
		argv = append([]string{"--profile", profile}, args...)
	}
	res, err := c.runner.Run(ctx, timeout, c.opts.Binary, argv...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// RegisterAgent runs `agents add` non-interactively. Any non-zero exit fails.
func (c *CLI) RegisterAgent(ctx context.Context, profile, agentID, workspace, model string) error {
	_, err := c.Run(ctx, profile, c.opts.Timeout,
		"agents", "add", agentID,
		"--workspace", workspace,
		"--model", model,
		"--non-interactive",
	)
	if err != nil {
		return fmt.Errorf("agent registration failed: %w", err)
	}
	return nil
}

func (c *CLI) ChannelStatus(ctx context.Context, profile string) (ChannelStatus, error) {
	out, err := c.Run(ctx, profile, c.opts.StatusTimeout, "channels", "status", "--json")
	if err != nil {
		return ChannelStatus{}, fmt.Errorf("channel status: %w", err)
	}
	return ParseChannelStatus(out)
}

func (c *CLI) GlobalStatus(ctx context.Context) (RuntimeStatus, error) {
	out, err := c.Run(ctx, "", c.opts.StatusTimeout, "status", "--json")
	if err != nil {
		return RuntimeStatus{}, fmt.Errorf("runtime status: %w", err)
	}
	return ParseRuntimeStatus(out)
}

// ListAgents returns the CLI's human-readable agent listing.
func (c *CLI) ListAgents(ctx context.Context, profile string) (string, error) {
	out, err := c.Run(ctx, profile, c.opts.StatusTimeout, "agents", "list")
	if err != nil {
		return "", fmt.Errorf("list agents: %w", err)
	}
	return out, nil
}
