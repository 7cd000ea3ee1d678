package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anyclaw/anyclaw/internal/auth"
	"github.com/anyclaw/anyclaw/internal/config"
	"github.com/anyclaw/anyclaw/internal/logger"
	"github.com/anyclaw/anyclaw/internal/netutil"
	"github.com/anyclaw/anyclaw/internal/scheduler"
	"github.com/anyclaw/anyclaw/internal/server"
	ws "github.com/anyclaw/anyclaw/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, WebSocket hub and maintenance jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

// newOTPStore picks Redis when REDIS_URL is set so pending codes survive a
// restart and are shared between replicas.
func newOTPStore(ctx context.Context, cfg *config.Config) (auth.OTPStore, func(), error) {
	if cfg.RedisURL == "" {
		return auth.NewMemoryOTPStore(), func() {}, nil
	}
	store, err := auth.NewRedisOTPStoreFromURL(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("OTP store: redis")
	return store, func() { store.Close() }, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Banner(version)

	// The hub needs the auth service the stack builds, so the orchestrator
	// gets a forwarding broadcast that is live once the hub exists.
	var hub *ws.Hub
	broadcast := func(msgType string, payload interface{}) {
		if hub != nil {
			hub.Publish(msgType, payload)
		}
	}

	st, err := openStack(ctx, cfg, broadcast)
	if err != nil {
		return err
	}
	defer st.close(context.Background())

	hub = ws.NewHub(st.auth, cfg.Origins...)
	go hub.Run()
	defer hub.Stop()

	otpStore, closeOTPs, err := newOTPStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open OTP store: %w", err)
	}
	defer closeOTPs()

	sched := scheduler.New()
	maint := scheduler.Maintenance{
		Usage:         st.db,
		RetentionDays: cfg.UsageRetentionDays,
		OTPs:          otpStore,
		Gateways:      st.db,
		Counts:        st.metrics,
	}
	if err := maint.Register(sched); err != nil {
		return fmt.Errorf("register maintenance jobs: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		DB:           st.db,
		Auth:         st.auth,
		OTPs:         auth.NewOTPs(otpStore, cfg.OTPTTL),
		Hub:          hub,
		Orchestrator: st.orch,
		Runtime:      st.bridge,
		Templates:    st.catalog,
		Metrics:      st.metrics,
		AccessHash:   cfg.AccessHash,
		Origins:      cfg.Origins,
		DevMode:      cfg.DevMode,
	})

	addr := cfg.BindAddress + ":" + strconv.Itoa(cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // provisioning and /ws hold responses open
		IdleTimeout:  60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Listen(addr, netutil.ListenURLs(cfg.BindAddress, cfg.Port)...)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
	case <-sigCtx.Done():
	}

	logger.Shutdown("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error: %v", err)
	}
	logger.Bye()
	return nil
}
