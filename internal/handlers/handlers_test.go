package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anyclaw/anyclaw/internal/auth"
	"github.com/anyclaw/anyclaw/internal/database"
	"github.com/anyclaw/anyclaw/internal/gateway"
	"github.com/anyclaw/anyclaw/internal/middleware"
	"github.com/anyclaw/anyclaw/internal/models"
	"github.com/anyclaw/anyclaw/internal/openclaw"
	"github.com/anyclaw/anyclaw/internal/templates"
	"github.com/go-chi/chi/v5"
)

type fakeGateways struct {
	created   map[string]*models.Gateway
	fresh     map[string]bool
	status    *gateway.StatusReport
	statusErr error
	qr        *gateway.QRResult
	startErr  error
	forced    []bool
	removed   []string
	provision func(agentID string) (*gateway.ProvisionResult, error)
}

// GetOrCreate reports a gateway as created once, like the orchestrator.
func (f *fakeGateways) GetOrCreate(_ context.Context, userID string) (*models.Gateway, bool, error) {
	gw, ok := f.created[userID]
	if !ok {
		return nil, false, gateway.ErrNotFound
	}
	created := f.fresh[userID]
	delete(f.fresh, userID)
	return gw, created, nil
}

// Start mirrors the orchestrator's guard on connected gateways.
func (f *fakeGateways) Start(_ context.Context, id string, force bool) error {
	f.forced = append(f.forced, force)
	for _, gw := range f.created {
		if gw.ID == id && gw.Status == models.GatewayConnected && !force {
			return fmt.Errorf("gateway %s: %w", id, gateway.ErrAlreadyConnected)
		}
	}
	return f.startErr
}

func (f *fakeGateways) Status(context.Context, string) (*gateway.StatusReport, error) {
	return f.status, f.statusErr
}

func (f *fakeGateways) QRCode(context.Context, string) (*gateway.QRResult, error) {
	return f.qr, nil
}

func (f *fakeGateways) Remove(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeGateways) Provision(_ context.Context, agentID string) (*gateway.ProvisionResult, error) {
	return f.provision(agentID)
}

type fakeRuntime struct {
	status openclaw.RuntimeStatus
	err    error
}

func (f fakeRuntime) GlobalStatus(context.Context) (openclaw.RuntimeStatus, error) {
	return f.status, f.err
}

func (f fakeRuntime) ListAgents(context.Context, string) (string, error) {
	return "anyclaw-a1", f.err
}

type testEnv struct {
	t        *testing.T
	db       *database.DB
	auth     *auth.Service
	otps     *auth.OTPs
	gateways *fakeGateways
	runtime  *fakeRuntime
	router   chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.New(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		t:        t,
		db:       db,
		auth:     auth.NewService("handlers-test-secret"),
		otps:     auth.NewOTPs(auth.NewMemoryOTPStore(), 5*time.Minute),
		gateways: &fakeGateways{created: map[string]*models.Gateway{}, fresh: map[string]bool{}},
		runtime:  &fakeRuntime{},
	}

	catalog := templates.MustLoad()
	authH := NewAuthHandler(db, env.auth, env.otps, true)
	agentsH := NewAgentsHandler(db, catalog, env.gateways)
	usageH := NewUsageHandler(db, agentsH)
	gatewaysH := NewGatewaysHandler(db, env.gateways)
	systemH := NewSystemHandler(db, env.runtime)
	auditH := NewAuditHandler(db)

	r := chi.NewRouter()
	r.Post("/auth/login", authH.Login)
	r.Post("/auth/verify", authH.Verify)
	r.Get("/health", systemH.Health)
	r.Post("/agents/{id}/usage", usageH.Record)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(env.auth))
		r.Get("/auth/me", authH.Me)
		r.Get("/templates", agentsH.Templates)
		r.Post("/agents", agentsH.Create)
		r.Get("/agents", agentsH.List)
		r.Get("/agents/{id}", agentsH.Get)
		r.Patch("/agents/{id}", agentsH.Patch)
		r.Post("/agents/{id}/provision", agentsH.Provision)
		r.Get("/agents/{id}/usage", usageH.Get)
		r.Post("/gateways", gatewaysH.Create)
		r.Get("/gateways", gatewaysH.List)
		r.Get("/gateways/{id}", gatewaysH.Get)
		r.Post("/gateways/{id}/start", gatewaysH.Start)
		r.Get("/gateways/{id}/qr", gatewaysH.QR)
		r.Get("/gateways/{id}/qr.png", gatewaysH.QRImage)
		r.Delete("/gateways/{id}", gatewaysH.Delete)
		r.Get("/system/runtime", systemH.Runtime)
		r.Get("/audit", auditH.List)
	})
	env.router = r
	return env
}

// tenant creates a user and returns it with a session token.
func (e *testEnv) tenant(phone, name string) (*models.User, string) {
	e.t.Helper()
	u, err := e.db.UpsertUser(context.Background(), phone, name)
	if err != nil {
		e.t.Fatal(err)
	}
	tok, err := e.auth.GenerateToken(u.ID, u.Phone)
	if err != nil {
		e.t.Fatal(err)
	}
	return u, tok
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func (e *testEnv) createAgent(token, name string) *models.Agent {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/agents", token, map[string]string{
		"template": "assistant", "agentName": name, "userName": "Alice",
	})
	if rr.Code != http.StatusCreated {
		e.t.Fatalf("create agent: %d %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Agent models.Agent `json:"agent"`
	}
	decode(e.t, rr, &resp)
	return &resp.Agent
}
