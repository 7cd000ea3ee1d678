// Package gateway composes port allocation, profile workspaces, the service
// supervisor and the runtime bridge into the tenant-facing gateway and agent
// lifecycle. It owns every status transition recorded in the store.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anyclaw/anyclaw/internal/database"
	"github.com/anyclaw/anyclaw/internal/logger"
	"github.com/anyclaw/anyclaw/internal/metrics"
	"github.com/anyclaw/anyclaw/internal/models"
	"github.com/anyclaw/anyclaw/internal/openclaw"
	"github.com/anyclaw/anyclaw/internal/systemd"
	"github.com/anyclaw/anyclaw/internal/telemetry"
	"github.com/anyclaw/anyclaw/internal/templates"
)

var (
	// ErrNotFound marks an unknown gateway, agent or tenant.
	ErrNotFound = database.ErrNotFound
	// ErrAgentActive rejects provisioning an agent that is already live.
	ErrAgentActive = errors.New("agent already active")
	// ErrAlreadyConnected rejects an unforced restart of a paired gateway.
	ErrAlreadyConnected = errors.New("gateway already connected")
)

// IDPrefix namespaces gateway profiles and runtime agent ids.
const IDPrefix = "anyclaw-"

// Status values reported by QRCode besides the gateway states.
const (
	QRReady = "qr_ready"
	Waiting = "waiting"
)

type BroadcastFunc func(msgType string, payload interface{})

// Store is the subset of the persistent store the orchestrator uses.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)

	GetGateway(ctx context.Context, id string) (*models.Gateway, error)
	GetGatewayByUser(ctx context.Context, userID string) (*models.Gateway, error)
	InsertGateway(ctx context.Context, g *models.Gateway) error
	UpdateGatewayStatus(ctx context.Context, id, status string) error
	SetGatewayConnected(ctx context.Context, id, phone string) error
	DeleteGateway(ctx context.Context, id string) error

	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	UpdateAgentStatus(ctx context.Context, id, status string) error
	MarkAgentLinking(ctx context.Context, id, gatewayID, workspace string) error
}

type PortAllocator interface {
	Allocate(ctx context.Context) (int, error)
}

// Profiles is satisfied by profile.Manager.
type Profiles interface {
	Provision(ctx context.Context, profile string, port int) error
	Teardown(profile string) error
	ConfigPath(profile string) string
}

// AgentBuilder is satisfied by workspace.Builder.
type AgentBuilder interface {
	Build(agentID, name, identity, userMD string) (string, error)
}

// IdentityRenderer is satisfied by templates.Catalog.
type IdentityRenderer interface {
	Render(templateID string, v templates.Vars) (string, error)
}

// ConfigEditor is satisfied by openclaw.ConfigEditor.
type ConfigEditor interface {
	Edit(path string, mutate func(doc map[string]any) error) error
}

type Deps struct {
	Store      Store
	Ports      PortAllocator
	Profiles   Profiles
	Supervisor systemd.Supervisor
	Bridge     openclaw.Bridge
	Editor     ConfigEditor
	Builder    AgentBuilder
	Identities IdentityRenderer
}

type Options struct {
	Model     string
	Settle    time.Duration
	Metrics   *metrics.Metrics
	Broadcast BroadcastFunc
}

type Orchestrator struct {
	Deps
	opts Options

	tenants *keyedMutex
	// allocMu keeps port allocation and the gateway insert together so two
	// tenants created at once cannot read the same max port.
	allocMu sync.Mutex

	sleep  func(ctx context.Context, d time.Duration) error
	newID  func() string
	tracer trace.Tracer
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.Broadcast == nil {
		opts.Broadcast = func(string, interface{}) {}
	}
	return &Orchestrator{
		Deps:    deps,
		opts:    opts,
		tenants: newKeyedMutex(),
		sleep:   sleepContext,
		newID:   database.ShortID,
		tracer:  telemetry.Tracer("github.com/anyclaw/anyclaw/internal/gateway"),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProfileName returns the runtime profile for a gateway id.
func ProfileName(gatewayID string) string { return IDPrefix + gatewayID }

// RuntimeAgentID returns the id an agent is registered under in the runtime.
func RuntimeAgentID(agentID string) string { return IDPrefix + agentID }

// GetOrCreate returns the tenant's gateway, creating it on first use, and
// reports whether this call created it. The store record is inserted last,
// so a failure leaves at most an orphaned profile directory behind.
func (o *Orchestrator) GetOrCreate(ctx context.Context, userID string) (gw *models.Gateway, created bool, err error) {
	ctx, done := o.begin(ctx, "get_or_create", telemetry.AttrUserID.String(userID))
	defer func() { done(err) }()

	unlock := o.tenants.Lock(userID)
	defer unlock()
	return o.getOrCreateLocked(ctx, userID)
}

func (o *Orchestrator) getOrCreateLocked(ctx context.Context, userID string) (*models.Gateway, bool, error) {
	existing, err := o.Store.GetGatewayByUser(ctx, userID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("look up gateway: %w", err)
	}

	o.allocMu.Lock()
	defer o.allocMu.Unlock()

	port, err := o.Ports.Allocate(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("allocate port: %w", err)
	}

	id := o.newID()
	gw := &models.Gateway{
		ID:      id,
		UserID:  userID,
		Profile: ProfileName(id),
		Port:    port,
		Status:  models.GatewayCreated,
	}
	if err := o.Profiles.Provision(ctx, gw.Profile, port); err != nil {
		return nil, false, fmt.Errorf("provision profile %s: %w", gw.Profile, err)
	}
	if err := o.Store.InsertGateway(ctx, gw); err != nil {
		return nil, false, fmt.Errorf("record gateway: %w", err)
	}

	logger.Gateway(gw.Profile, models.GatewayCreated, fmt.Sprintf("port %d", port))
	o.opts.Metrics.Transition("gateway", models.GatewayCreated)
	o.opts.Broadcast("gateway_status", models.WSGatewayStatus{
		GatewayID: gw.ID, UserID: userID, Status: models.GatewayCreated,
	})
	return gw, true, nil
}

// Start installs the unit, starts it and waits the settle window. The
// gateway ends in pairing when the unit is active and in error otherwise.
// Reinstalling restarts the unit, so a connected gateway is refused with
// ErrAlreadyConnected unless force is set.
func (o *Orchestrator) Start(ctx context.Context, gatewayID string, force bool) (err error) {
	ctx, done := o.begin(ctx, "install_and_start", telemetry.AttrGatewayID.String(gatewayID))
	defer func() { done(err) }()

	gw, err := o.getGateway(ctx, gatewayID)
	if err != nil {
		return err
	}
	unlock := o.tenants.Lock(gw.UserID)
	defer unlock()

	// Re-read under the tenant lock: Status may have just marked it connected.
	if gw, err = o.getGateway(ctx, gatewayID); err != nil {
		return err
	}
	if gw.Status == models.GatewayConnected && !force {
		return fmt.Errorf("gateway %s: %w", gatewayID, ErrAlreadyConnected)
	}
	return o.installAndStartLocked(ctx, gw)
}

func (o *Orchestrator) installAndStartLocked(ctx context.Context, gw *models.Gateway) error {
	fail := func(err error) error {
		o.setGatewayStatus(ctx, gw, models.GatewayError, err.Error())
		return err
	}

	if err := o.Supervisor.Install(ctx, gw.Profile, gw.Port); err != nil {
		return fail(fmt.Errorf("install service: %w", err))
	}
	if err := o.Supervisor.Start(ctx, gw.Profile); err != nil {
		return fail(fmt.Errorf("start service: %w", err))
	}
	o.setGatewayStatus(ctx, gw, models.GatewayStarting, "")

	if err := o.sleep(ctx, o.opts.Settle); err != nil {
		return fail(fmt.Errorf("waiting for service: %w", err))
	}

	active, state, err := o.Supervisor.IsActive(ctx, gw.Profile)
	if err != nil {
		return fail(fmt.Errorf("check service: %w", err))
	}
	if !active {
		return fail(fmt.Errorf("%w: service status: %s", systemd.ErrNotActive, state))
	}

	o.setGatewayStatus(ctx, gw, models.GatewayPairing, "ready for WhatsApp pairing")
	return nil
}

// RegisterAgent registers agentID in the gateway's runtime, then routes the
// owner's DMs to it and allow-lists the owner in one config edit. Repeating
// the call leaves exactly one binding and one allow-list entry per list.
func (o *Orchestrator) RegisterAgent(ctx context.Context, gatewayID, agentID, workspace, ownerPhone string) (err error) {
	ctx, done := o.begin(ctx, "register_agent",
		telemetry.AttrGatewayID.String(gatewayID),
		telemetry.AttrAgentID.String(agentID))
	defer func() { done(err) }()

	gw, err := o.getGateway(ctx, gatewayID)
	if err != nil {
		return err
	}
	unlock := o.tenants.Lock(gw.UserID)
	defer unlock()
	return o.registerAgentLocked(ctx, gw, agentID, workspace, ownerPhone)
}

func (o *Orchestrator) registerAgentLocked(ctx context.Context, gw *models.Gateway, agentID, workspace, ownerPhone string) error {
	if err := o.Bridge.RegisterAgent(ctx, gw.Profile, agentID, workspace, o.opts.Model); err != nil {
		return err
	}
	err := o.Editor.Edit(o.Profiles.ConfigPath(gw.Profile), func(doc map[string]any) error {
		openclaw.AddDMBinding(doc, agentID, ownerPhone)
		openclaw.AllowPeer(doc, ownerPhone)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update routing for %s: %w", agentID, err)
	}
	logger.Gateway(gw.Profile, "agent", agentID+" registered")
	return nil
}

// StatusReport merges the recorded gateway with a live service check.
type StatusReport struct {
	Gateway       *models.Gateway `json:"gateway"`
	Status        string          `json:"status"`
	Phone         string          `json:"phone,omitempty"`
	ServiceActive bool            `json:"service_active"`
	ServiceState  string          `json:"service_state,omitempty"`
}

// Status asks systemd whether the unit runs and, if the gateway is not yet
// connected, asks the runtime whether pairing completed. A connection seen
// here is persisted before returning.
func (o *Orchestrator) Status(ctx context.Context, gatewayID string) (rep *StatusReport, err error) {
	ctx, done := o.begin(ctx, "status", telemetry.AttrGatewayID.String(gatewayID))
	defer func() { done(err) }()

	gw, err := o.getGateway(ctx, gatewayID)
	if err != nil {
		return nil, err
	}

	active, state, qerr := o.Supervisor.IsActive(ctx, gw.Profile)
	if qerr != nil {
		logger.Debug("Service check for %s failed: %v", gw.Profile, qerr)
	}
	rep = &StatusReport{
		Gateway:       gw,
		Status:        gw.Status,
		Phone:         gw.PhoneValue(),
		ServiceActive: active,
		ServiceState:  state,
	}

	if !active || gw.Status == models.GatewayConnected {
		return rep, nil
	}
	cs, cerr := o.Bridge.ChannelStatus(ctx, gw.Profile)
	if cerr != nil {
		logger.Debug("Channel status for %s unavailable: %v", gw.Profile, cerr)
		return rep, nil
	}
	if cs.Connected {
		if err := o.markConnected(ctx, gw, cs.Phone); err != nil {
			return nil, err
		}
		rep.Status = models.GatewayConnected
		rep.Phone = cs.Phone
	}
	return rep, nil
}

// QRResult is a pairing code (status qr_ready), a completed pairing (status
// connected), or the runtime's own state word.
type QRResult struct {
	Status string `json:"status"`
	QR     string `json:"qr,omitempty"`
}

// QRCode reads the channel state. It only writes to the store when the
// runtime reports the channel connected.
func (o *Orchestrator) QRCode(ctx context.Context, gatewayID string) (res *QRResult, err error) {
	ctx, done := o.begin(ctx, "qr_code", telemetry.AttrGatewayID.String(gatewayID))
	defer func() { done(err) }()

	gw, err := o.getGateway(ctx, gatewayID)
	if err != nil {
		return nil, err
	}

	cs, err := o.Bridge.ChannelStatus(ctx, gw.Profile)
	if err != nil {
		return nil, err
	}
	switch {
	case cs.QR != "":
		return &QRResult{Status: QRReady, QR: cs.QR}, nil
	case cs.Connected:
		if err := o.markConnected(ctx, gw, cs.Phone); err != nil {
			return nil, err
		}
		return &QRResult{Status: models.GatewayConnected}, nil
	case cs.State != "":
		return &QRResult{Status: cs.State}, nil
	default:
		return &QRResult{Status: Waiting}, nil
	}
}

// Remove stops and deletes the unit, then the profile directory, then the
// store record. Each step tolerates what it removes being gone already, so
// an interrupted Remove can be rerun, and removing an unknown gateway is a
// no-op.
func (o *Orchestrator) Remove(ctx context.Context, gatewayID string) (err error) {
	ctx, done := o.begin(ctx, "remove", telemetry.AttrGatewayID.String(gatewayID))
	defer func() { done(err) }()

	gw, err := o.Store.GetGateway(ctx, gatewayID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up gateway: %w", err)
	}

	unlock := o.tenants.Lock(gw.UserID)
	defer unlock()

	if gw.Status != models.GatewayStopped {
		o.setGatewayStatus(ctx, gw, models.GatewayStopped, "removing")
	}
	if err := o.Supervisor.Uninstall(ctx, gw.Profile); err != nil {
		return fmt.Errorf("uninstall service: %w", err)
	}
	if err := o.Profiles.Teardown(gw.Profile); err != nil {
		return fmt.Errorf("remove profile: %w", err)
	}
	if err := o.Store.DeleteGateway(ctx, gw.ID); err != nil {
		return fmt.Errorf("delete gateway record: %w", err)
	}
	logger.Gateway(gw.Profile, "removed", fmt.Sprintf("port %d released", gw.Port))
	return nil
}

func (o *Orchestrator) getGateway(ctx context.Context, id string) (*models.Gateway, error) {
	gw, err := o.Store.GetGateway(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("gateway %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("look up gateway: %w", err)
	}
	return gw, nil
}

// setGatewayStatus records a transition even if ctx was cancelled, so the
// store never stays at a stale status after a failed call.
func (o *Orchestrator) setGatewayStatus(ctx context.Context, gw *models.Gateway, status, msg string) {
	if err := o.Store.UpdateGatewayStatus(context.WithoutCancel(ctx), gw.ID, status); err != nil {
		logger.Error("Record gateway %s status %s: %v", gw.ID, status, err)
		return
	}
	gw.Status = status
	logger.Gateway(gw.Profile, status, msg)
	o.opts.Metrics.Transition("gateway", status)
	o.opts.Broadcast("gateway_status", models.WSGatewayStatus{
		GatewayID: gw.ID, UserID: gw.UserID, Status: status, Phone: gw.PhoneValue(), Message: msg,
	})
}

func (o *Orchestrator) markConnected(ctx context.Context, gw *models.Gateway, phone string) error {
	if err := o.Store.SetGatewayConnected(context.WithoutCancel(ctx), gw.ID, phone); err != nil {
		return fmt.Errorf("record connection: %w", err)
	}
	gw.Status = models.GatewayConnected
	if phone != "" {
		gw.Phone = &phone
	}
	logger.Gateway(gw.Profile, models.GatewayConnected, phone)
	o.opts.Metrics.Transition("gateway", models.GatewayConnected)
	o.opts.Broadcast("gateway_status", models.WSGatewayStatus{
		GatewayID: gw.ID, UserID: gw.UserID, Status: models.GatewayConnected, Phone: phone,
	})
	return nil
}

// begin opens a span and returns a closer that records the outcome.
func (o *Orchestrator) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := telemetry.Start(ctx, o.tracer, "gateway."+op, attrs...)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		o.opts.Metrics.ObserveOperation(op, start, err)
	}
}
