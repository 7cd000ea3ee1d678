package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anyclaw/anyclaw/internal/logger"
	"github.com/anyclaw/anyclaw/internal/models"
	"github.com/anyclaw/anyclaw/internal/telemetry"
	"github.com/anyclaw/anyclaw/internal/templates"
)

// ProvisionResult is what a successful Provision leaves behind.
type ProvisionResult struct {
	Agent     *models.Agent   `json:"agent"`
	Gateway   *models.Gateway `json:"gateway"`
	Workspace string          `json:"workspace"`
}

// Provision brings one agent online in its tenant's gateway: ensure the
// gateway exists and is started, render the identity, build the workspace,
// register it, then mark the agent linking. Any failure after the agent is
// found marks it error before returning; nothing is retried.
func (o *Orchestrator) Provision(ctx context.Context, agentID string) (res *ProvisionResult, err error) {
	ctx, done := o.begin(ctx, "provision", telemetry.AttrAgentID.String(agentID))
	defer func() { done(err) }()

	agent, err := o.getAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	unlock := o.tenants.Lock(agent.UserID)
	defer unlock()

	// Re-read under the tenant lock: a concurrent Provision may have moved it.
	if agent, err = o.getAgent(ctx, agentID); err != nil {
		return nil, err
	}
	if agent.Status == models.AgentActive {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrAgentActive)
	}

	user, err := o.Store.GetUser(ctx, agent.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", agent.UserID, ErrNotFound)
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	fail := func(err error) (*ProvisionResult, error) {
		o.setAgentStatus(ctx, agent, models.AgentError, "", err.Error())
		return nil, err
	}

	gw, _, err := o.getOrCreateLocked(ctx, user.ID)
	if err != nil {
		return fail(fmt.Errorf("gateway creation failed: %w", err))
	}
	if gw.Status == models.GatewayCreated {
		if err := o.installAndStartLocked(ctx, gw); err != nil {
			return fail(fmt.Errorf("gateway start failed: %w", err))
		}
	}

	identity, err := o.renderIdentity(agent)
	if err != nil {
		return fail(err)
	}

	runtimeID := RuntimeAgentID(agent.ID)
	workspace, err := o.Builder.Build(runtimeID, agent.Name, identity, "")
	if err != nil {
		return fail(fmt.Errorf("build workspace: %w", err))
	}

	if err := o.registerAgentLocked(ctx, gw, runtimeID, workspace, user.Phone); err != nil {
		return fail(err)
	}

	if err := o.Store.MarkAgentLinking(context.WithoutCancel(ctx), agent.ID, gw.ID, workspace); err != nil {
		return fail(fmt.Errorf("record agent linking: %w", err))
	}
	agent.Status = models.AgentLinking
	agent.GatewayID = &gw.ID
	agent.Workspace = workspace
	o.announceAgent(agent, gw.ID, "pair WhatsApp by scanning the QR code")

	return &ProvisionResult{Agent: agent, Gateway: gw, Workspace: workspace}, nil
}

// renderIdentity re-renders the agent's template from the wizard inputs
// stored in its config blob, falling back to the agent record.
func (o *Orchestrator) renderIdentity(agent *models.Agent) (string, error) {
	var cfg models.AgentConfig
	if agent.ConfigJSON != "" {
		if err := json.Unmarshal([]byte(agent.ConfigJSON), &cfg); err != nil {
			return "", fmt.Errorf("parse agent config: %w", err)
		}
	}
	vars := templates.Vars{
		Name:        firstNonEmpty(cfg.AgentName, agent.Name),
		UserName:    firstNonEmpty(cfg.UserName, "User"),
		Personality: firstNonEmpty(cfg.Personality, agent.Personality),
		Rules:       firstNonEmpty(cfg.Rules, agent.Rules),
	}
	identity, err := o.Identities.Render(agent.TemplateID, vars)
	if err != nil {
		return "", fmt.Errorf("render identity: %w", err)
	}
	return identity, nil
}

func (o *Orchestrator) getAgent(ctx context.Context, id string) (*models.Agent, error) {
	agent, err := o.Store.GetAgent(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("look up agent: %w", err)
	}
	return agent, nil
}

func (o *Orchestrator) setAgentStatus(ctx context.Context, agent *models.Agent, status, gatewayID, msg string) {
	if err := o.Store.UpdateAgentStatus(context.WithoutCancel(ctx), agent.ID, status); err != nil {
		logger.Error("Record agent %s status %s: %v", agent.ID, status, err)
		return
	}
	agent.Status = status
	o.announceAgent(agent, gatewayID, msg)
}

func (o *Orchestrator) announceAgent(agent *models.Agent, gatewayID, msg string) {
	if agent.Status == models.AgentError {
		logger.Warn("Agent %s: %s", agent.ID, msg)
	} else {
		logger.Info("Agent %s %s", agent.ID, agent.Status)
	}
	o.opts.Metrics.Transition("agent", agent.Status)
	o.opts.Broadcast("agent_status", models.WSAgentStatus{
		AgentID: agent.ID, UserID: agent.UserID, GatewayID: gatewayID, Status: agent.Status, Message: msg,
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
