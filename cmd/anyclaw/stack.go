package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anyclaw/anyclaw/internal/auth"
	"github.com/anyclaw/anyclaw/internal/config"
	"github.com/anyclaw/anyclaw/internal/database"
	"github.com/anyclaw/anyclaw/internal/gateway"
	"github.com/anyclaw/anyclaw/internal/logger"
	"github.com/anyclaw/anyclaw/internal/metrics"
	"github.com/anyclaw/anyclaw/internal/openclaw"
	"github.com/anyclaw/anyclaw/internal/ports"
	"github.com/anyclaw/anyclaw/internal/procrun"
	"github.com/anyclaw/anyclaw/internal/profile"
	"github.com/anyclaw/anyclaw/internal/secrets"
	"github.com/anyclaw/anyclaw/internal/systemd"
	"github.com/anyclaw/anyclaw/internal/telemetry"
	"github.com/anyclaw/anyclaw/internal/templates"
	"github.com/anyclaw/anyclaw/internal/workspace"
)

const (
	settingJWTSecret     = "jwt_secret"
	settingEncryptionKey = "encryption_key"
)

// stack holds the services every subcommand shares. serve layers the HTTP
// surface on top of it.
type stack struct {
	cfg       *config.Config
	db        *database.DB
	auth      *auth.Service
	keys      profile.ChainResolver
	bridge    *openclaw.CLI
	orch      *gateway.Orchestrator
	catalog   *templates.Catalog
	metrics   *metrics.Metrics
	telemetry *telemetry.Provider
}

type settingStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// resolveSecret returns fromEnv when set, else the persisted setting, else a
// fresh key that is persisted before it is returned. generated reports the
// last case.
func resolveSecret(ctx context.Context, store settingStore, key, fromEnv string) (value string, generated bool, err error) {
	if fromEnv != "" {
		return fromEnv, false, nil
	}
	stored, err := store.GetSetting(ctx, key)
	if err != nil {
		return "", false, err
	}
	if stored != "" {
		return stored, false, nil
	}
	value, err = secrets.GenerateKey()
	if err != nil {
		return "", false, fmt.Errorf("generate %s: %w", key, err)
	}
	if err := store.SetSetting(ctx, key, value); err != nil {
		return "", false, fmt.Errorf("persist %s: %w", key, err)
	}
	return value, true, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// openStack wires the store, runtime adapters and orchestrator. broadcast
// may be nil for one-shot commands.
func openStack(ctx context.Context, cfg *config.Config, broadcast gateway.BroadcastFunc) (*stack, error) {
	tp, err := telemetry.Init(ctx, telemetry.Config{
		Exporter: cfg.OTelExporter,
		Endpoint: cfg.OTelEndpoint,
		Version:  version,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	db, err := database.New(cfg.DataDir)
	if err != nil {
		tp.Shutdown(ctx)
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &stack{cfg: cfg, db: db, telemetry: tp}

	jwtSecret, generated, err := resolveSecret(ctx, db, settingJWTSecret, cfg.JWTSecret)
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("resolve JWT secret: %w", err)
	}
	if generated {
		logger.Success("Generated and persisted JWT secret")
	}
	s.auth = auth.NewService(jwtSecret)

	encKey, generated, err := resolveSecret(ctx, db, settingEncryptionKey, cfg.EncryptionKey)
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("resolve encryption key: %w", err)
	}
	if generated {
		logger.Success("Generated and persisted encryption key")
	}
	sealer, err := secrets.NewManager(encKey)
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("init secrets: %w", err)
	}

	s.keys = profile.ChainResolver{
		EnvKey:       cfg.OpenClaw.APIKey,
		Vault:        secrets.NewVault(sealer, db),
		MasterConfig: cfg.OpenClaw.MasterConfig,
	}

	catalog, err := templates.Load()
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("load templates: %w", err)
	}
	s.catalog = catalog
	s.metrics = metrics.New(prometheus.NewRegistry())

	runner := procrun.Exec{}
	s.bridge = openclaw.NewCLI(openclaw.Options{
		Binary:        cfg.OpenClaw.Bin,
		Timeout:       cfg.Gateway.CLITimeout,
		StatusTimeout: cfg.Gateway.StatusTimeout,
	}, runner)
	supervisor := systemd.New(systemd.Options{
		UnitDir:    cfg.Gateway.UnitDir,
		Systemctl:  cfg.Gateway.Systemctl,
		Binary:     cfg.OpenClaw.Bin,
		ChromePath: cfg.Gateway.ChromePath,
		Timeout:    cfg.Gateway.CLITimeout,
	}, runner)

	s.orch = gateway.New(gateway.Deps{
		Store:      db,
		Ports:      ports.NewAllocator(db, cfg.Gateway.BasePort),
		Profiles:   profile.NewManager(cfg.OpenClaw.StateRoot, cfg.OpenClaw.Model, s.keys),
		Supervisor: supervisor,
		Bridge:     s.bridge,
		Editor:     openclaw.NewConfigEditor(),
		Builder:    workspace.NewBuilder(cfg.OpenClaw.AgentsDir),
		Identities: catalog,
	}, gateway.Options{
		Model:     cfg.OpenClaw.Model,
		Settle:    cfg.Gateway.Settle,
		Metrics:   s.metrics,
		Broadcast: broadcast,
	})
	return s, nil
}

func (s *stack) close(ctx context.Context) {
	if err := s.db.Close(); err != nil {
		logger.Warn("Close database: %v", err)
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		logger.Warn("Flush traces: %v", err)
	}
}
