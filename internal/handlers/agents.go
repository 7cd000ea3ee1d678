package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/anyclaw/anyclaw/internal/database"
	"github.com/anyclaw/anyclaw/internal/gateway"
	"github.com/anyclaw/anyclaw/internal/middleware"
	"github.com/anyclaw/anyclaw/internal/models"
	"github.com/anyclaw/anyclaw/internal/templates"
	"github.com/go-chi/chi/v5"
)

// Provisioner brings an agent online. *gateway.Orchestrator satisfies it.
type Provisioner interface {
	Provision(ctx context.Context, agentID string) (*gateway.ProvisionResult, error)
}

type AgentsHandler struct {
	db        *database.DB
	catalog   *templates.Catalog
	provision Provisioner
}

func NewAgentsHandler(db *database.DB, catalog *templates.Catalog, provision Provisioner) *AgentsHandler {
	return &AgentsHandler{db: db, catalog: catalog, provision: provision}
}

type createAgentRequest struct {
	Template    string `json:"template"`
	AgentName   string `json:"agentName"`
	UserName    string `json:"userName"`
	Personality string `json:"personality"`
	Rules       string `json:"rules"`
}

func (req *createAgentRequest) validate(catalog *templates.Catalog) string {
	req.AgentName = strings.TrimSpace(req.AgentName)
	req.UserName = strings.TrimSpace(req.UserName)
	if _, ok := catalog.Get(req.Template); !ok {
		return "invalid template"
	}
	if len(req.AgentName) < 2 {
		return "agent name required"
	}
	if len(req.UserName) < 2 {
		return "your name is required"
	}
	return ""
}

// Create stores a new agent for the session's tenant with its identity
// rendered from the chosen template. Nothing touches the runtime until
// Provision.
func (h *AgentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(h.catalog); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	user, err := h.db.GetUser(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if user.Name != req.UserName {
		if user, err = h.db.UpsertUser(ctx, user.Phone, req.UserName); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to update user")
			return
		}
	}

	identity, err := h.catalog.Render(req.Template, templates.Vars{
		Name:        req.AgentName,
		UserName:    req.UserName,
		Personality: req.Personality,
		Rules:       req.Rules,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := json.Marshal(models.AgentConfig{
		Identity:    identity,
		Template:    req.Template,
		AgentName:   req.AgentName,
		UserName:    req.UserName,
		Personality: req.Personality,
		Rules:       req.Rules,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode agent config")
		return
	}

	agent := &models.Agent{
		ID:          database.ShortID(),
		UserID:      user.ID,
		Name:        req.AgentName,
		TemplateID:  req.Template,
		Personality: req.Personality,
		Rules:       req.Rules,
		Status:      models.AgentCreated,
		ConfigJSON:  string(cfg),
	}
	if err := h.db.InsertAgent(ctx, agent); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create agent")
		return
	}

	h.db.LogAudit(ctx, user.ID, database.AuditAgentCreated, "agent", agent.ID, req.Template)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"agent":      agent,
		"identityMd": identity,
	})
}

func (h *AgentsHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.db.ListAgents(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	if agents == nil {
		agents = []models.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

func (h *AgentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.ownedAgent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agent": agent})
}

type patchAgentRequest struct {
	Name        *string `json:"name"`
	Personality *string `json:"personality"`
	Rules       *string `json:"rules"`
	Status      *string `json:"status"`
}

func (h *AgentsHandler) Patch(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.ownedAgent(w, r)
	if !ok {
		return
	}
	var req patchAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status != nil && !models.ValidAgentStatus(*req.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if req.Name != nil && len(strings.TrimSpace(*req.Name)) < 2 {
		writeError(w, http.StatusBadRequest, "agent name required")
		return
	}

	patch := database.AgentPatch{
		Name:        req.Name,
		Personality: req.Personality,
		Rules:       req.Rules,
		Status:      req.Status,
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}
	if err := h.db.PatchAgent(r.Context(), agent.ID, patch); err != nil {
		writeServiceError(w, err)
		return
	}

	updated, err := h.db.GetAgent(r.Context(), agent.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.db.LogAudit(r.Context(), agent.UserID, database.AuditAgentUpdated, "agent", agent.ID, updated.Status)
	writeJSON(w, http.StatusOK, map[string]interface{}{"agent": updated})
}

// Provision runs the full provisioning sequence. It blocks for the gateway
// settle window on first use.
func (h *AgentsHandler) Provision(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.ownedAgent(w, r)
	if !ok {
		return
	}
	res, err := h.provision.Provision(r.Context(), agent.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.db.LogAudit(r.Context(), agent.UserID, database.AuditAgentProvisioned, "agent", agent.ID, res.Gateway.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":     res.Agent,
		"gateway":   res.Gateway,
		"workspace": res.Workspace,
		"message":   "Agent provisioned. Gateway started. Pair WhatsApp by scanning the QR code.",
	})
}

// Templates lists the identity templates agents can be created from.
func (h *AgentsHandler) Templates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": h.catalog.List()})
}

// ownedAgent loads the {id} agent and writes 404 unless the session's
// tenant owns it.
func (h *AgentsHandler) ownedAgent(w http.ResponseWriter, r *http.Request) (*models.Agent, bool) {
	agent, err := h.db.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load agent")
		}
		return nil, false
	}
	if agent.UserID != middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusNotFound, "agent not found")
		return nil, false
	}
	return agent, true
}
