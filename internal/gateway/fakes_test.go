package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anyclaw/anyclaw/internal/database"
	"github.com/anyclaw/anyclaw/internal/models"
	"github.com/anyclaw/anyclaw/internal/openclaw"
)

// memStore is an in-memory Store that also answers MaxGatewayPort.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	gateways map[string]*models.Gateway
	agents   map[string]*models.Agent
	maxErr   error
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*models.User{},
		gateways: map[string]*models.Gateway{},
		agents:   map[string]*models.Agent{},
	}
}

func (s *memStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) GetGateway(_ context.Context, id string) (*models.Gateway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gateways[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *memStore) GetGatewayByUser(_ context.Context, userID string) (*models.Gateway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.gateways {
		if g.UserID == userID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) MaxGatewayPort(context.Context) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxErr != nil {
		return 0, false, s.maxErr
	}
	max, ok := 0, false
	for _, g := range s.gateways {
		if !ok || g.Port > max {
			max, ok = g.Port, true
		}
	}
	return max, ok, nil
}

func (s *memStore) InsertGateway(_ context.Context, g *models.Gateway) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.gateways {
		if other.Port == g.Port || other.UserID == g.UserID {
			return fmt.Errorf("UNIQUE constraint failed")
		}
	}
	cp := *g
	cp.CreatedAt, cp.UpdatedAt = time.Now(), time.Now()
	s.gateways[g.ID] = &cp
	return nil
}

func (s *memStore) UpdateGatewayStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gateways[id]
	if !ok {
		return database.ErrNotFound
	}
	g.Status = status
	return nil
}

func (s *memStore) SetGatewayConnected(_ context.Context, id, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gateways[id]
	if !ok {
		return database.ErrNotFound
	}
	g.Status = models.GatewayConnected
	g.Phone = &phone
	return nil
}

func (s *memStore) DeleteGateway(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gateways, id)
	return nil
}

func (s *memStore) GetAgent(_ context.Context, id string) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) UpdateAgentStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return database.ErrNotFound
	}
	a.Status = status
	return nil
}

func (s *memStore) MarkAgentLinking(_ context.Context, id, gatewayID, workspace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return database.ErrNotFound
	}
	a.Status = models.AgentLinking
	a.GatewayID = &gatewayID
	a.Workspace = workspace
	return nil
}

func (s *memStore) gatewayStatus(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gateways[id]; ok {
		return g.Status
	}
	return ""
}

func (s *memStore) agentStatus(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[id]; ok {
		return a.Status
	}
	return ""
}

type fakeSupervisor struct {
	mu         sync.Mutex
	calls      []string
	active     bool
	state      string
	installErr error
	startErr   error
	queryErr   error
}

func (f *fakeSupervisor) record(c string) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeSupervisor) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeSupervisor) Install(_ context.Context, profile string, port int) error {
	f.record(fmt.Sprintf("install %s %d", profile, port))
	return f.installErr
}

func (f *fakeSupervisor) Start(_ context.Context, profile string) error {
	f.record("start " + profile)
	return f.startErr
}

func (f *fakeSupervisor) Stop(_ context.Context, profile string) error {
	f.record("stop " + profile)
	return nil
}

func (f *fakeSupervisor) IsActive(_ context.Context, profile string) (bool, string, error) {
	f.record("is-active " + profile)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.state, f.queryErr
}

func (f *fakeSupervisor) Uninstall(_ context.Context, profile string) error {
	f.record("uninstall " + profile)
	return nil
}

type fakeBridge struct {
	mu          sync.Mutex
	registered  []string
	registerErr error
	channel     openclaw.ChannelStatus
	channelErr  error
	channelHits int
}

func (f *fakeBridge) RegisterAgent(_ context.Context, profile, agentID, workspace, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return f.registerErr
	}
	f.registered = append(f.registered, profile+"/"+agentID)
	return nil
}

func (f *fakeBridge) ChannelStatus(context.Context, string) (openclaw.ChannelStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelHits++
	return f.channel, f.channelErr
}

func (f *fakeBridge) GlobalStatus(context.Context) (openclaw.RuntimeStatus, error) {
	return openclaw.RuntimeStatus{Running: true}, nil
}

func (f *fakeBridge) ListAgents(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeBridge) registrations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registered)
}
