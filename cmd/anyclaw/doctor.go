package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/anyclaw/anyclaw/internal/auth"
	"github.com/anyclaw/anyclaw/internal/config"
	"github.com/anyclaw/anyclaw/internal/database"
	"github.com/anyclaw/anyclaw/internal/doctor"
	"github.com/anyclaw/anyclaw/internal/logger"
	"github.com/anyclaw/anyclaw/internal/profile"
	"github.com/anyclaw/anyclaw/internal/secrets"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check host prerequisites for running gateways",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		diag := runDoctor(ctx, cfg)
		out := cmd.OutOrStdout()
		if doctorJSON {
			if err := printJSON(out, diag); err != nil {
				return err
			}
		} else {
			printDiagnosis(out, diag)
		}
		if diag.Failed() {
			return fmt.Errorf("one or more checks failed")
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print the diagnosis as JSON")
}

// runDoctor opens only what the checks probe. A database that fails to open
// is reported by its check rather than aborting the run.
func runDoctor(ctx context.Context, cfg *config.Config) doctor.Diagnosis {
	deps := doctor.Deps{}
	keys := profile.ChainResolver{EnvKey: cfg.OpenClaw.APIKey, MasterConfig: cfg.OpenClaw.MasterConfig}

	db, err := database.New(cfg.DataDir)
	if err != nil {
		logger.Warn("Open database: %v", err)
		deps.DB = failedPinger{err: err}
	} else {
		defer db.Close()
		deps.DB = db
		if vault := readOnlyVault(ctx, cfg, db); vault != nil {
			keys.Vault = vault
		}
	}
	deps.Keys = keys

	if cfg.RedisURL != "" {
		deps.Redis = func(ctx context.Context) error {
			store, err := auth.NewRedisOTPStoreFromURL(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			return store.Close()
		}
	}
	return doctor.Run(ctx, cfg, deps, version)
}

// readOnlyVault returns nil when no encryption key exists yet. Unlike
// openStack it never generates one.
func readOnlyVault(ctx context.Context, cfg *config.Config, db *database.DB) *secrets.Vault {
	key := cfg.EncryptionKey
	if key == "" {
		stored, err := db.GetSetting(ctx, settingEncryptionKey)
		if err != nil || stored == "" {
			return nil
		}
		key = stored
	}
	m, err := secrets.NewManager(key)
	if err != nil {
		return nil
	}
	return secrets.NewVault(m, db)
}

type failedPinger struct{ err error }

func (p failedPinger) PingContext(context.Context) error { return p.err }

func printDiagnosis(w io.Writer, d doctor.Diagnosis) {
	fmt.Fprintf(w, "anyclaw %s (%s/%s, %s)\n\n", d.System.Version, d.System.OS, d.System.Arch, d.System.Go)
	for _, r := range d.Results {
		fmt.Fprintf(w, "  %s %-16s %s\n", doctor.Icon(r.Status), r.Name, r.Message)
		if r.Detail != "" {
			fmt.Fprintf(w, "    %s\n", r.Detail)
		}
	}
}
