package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/anyclaw/anyclaw/internal/gateway"
	"github.com/anyclaw/anyclaw/internal/logger"
)

var provisionCmd = &cobra.Command{
	Use:   "provision <agent-id>",
	Short: "Bring an agent online in its tenant's gateway",
	Args:  cobra.ExactArgs(1),
	RunE: withStack(func(ctx context.Context, st *stack, out io.Writer, args []string) error {
		res, err := st.orch.Provision(ctx, args[0])
		if err != nil {
			return err
		}
		logger.Success("Agent %s linking on gateway %s (port %d)", res.Agent.ID, res.Gateway.ID, res.Gateway.Port)
		return printJSON(out, res)
	}),
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Inspect and control tenant gateways",
}

var gatewayStatusCmd = &cobra.Command{
	Use:   "status <gateway-id>",
	Short: "Reconcile a gateway against systemd and the runtime",
	Args:  cobra.ExactArgs(1),
	RunE: withStack(func(ctx context.Context, st *stack, out io.Writer, args []string) error {
		rep, err := st.orch.Status(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(out, rep)
	}),
}

var gatewayQRCmd = &cobra.Command{
	Use:   "qr <gateway-id>",
	Short: "Render the pairing QR code in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: withStack(func(ctx context.Context, st *stack, out io.Writer, args []string) error {
		res, err := st.orch.QRCode(ctx, args[0])
		if err != nil {
			return err
		}
		if res.QR == "" {
			fmt.Fprintf(out, "No QR available (status: %s)\n", res.Status)
			return nil
		}
		logger.QR("Scan with WhatsApp > Linked devices", res.QR)
		return nil
	}),
}

var startForce bool

var gatewayStartCmd = &cobra.Command{
	Use:   "start <gateway-id>",
	Short: "Install and start a gateway unit",
	Args:  cobra.ExactArgs(1),
	RunE: withStack(func(ctx context.Context, st *stack, out io.Writer, args []string) error {
		return startGateway(ctx, st.orch, args[0], startForce)
	}),
}

type gatewayStarter interface {
	Start(ctx context.Context, gatewayID string, force bool) error
}

func startGateway(ctx context.Context, g gatewayStarter, id string, force bool) error {
	if err := g.Start(ctx, id, force); err != nil {
		if errors.Is(err, gateway.ErrAlreadyConnected) {
			return fmt.Errorf("gateway %s is connected; pass --force to restart it and re-pair", id)
		}
		return err
	}
	logger.Success("Gateway %s started", id)
	return nil
}

var gatewayRemoveCmd = &cobra.Command{
	Use:   "remove <gateway-id>",
	Short: "Stop, uninstall and delete a gateway",
	Args:  cobra.ExactArgs(1),
	RunE: withStack(func(ctx context.Context, st *stack, out io.Writer, args []string) error {
		if err := st.orch.Remove(ctx, args[0]); err != nil {
			return err
		}
		logger.Success("Gateway %s removed", args[0])
		return nil
	}),
}

func init() {
	gatewayStartCmd.Flags().BoolVar(&startForce, "force", false, "Restart even if the gateway is connected")

	gatewayCmd.AddCommand(gatewayStatusCmd)
	gatewayCmd.AddCommand(gatewayQRCmd)
	gatewayCmd.AddCommand(gatewayStartCmd)
	gatewayCmd.AddCommand(gatewayRemoveCmd)
}

type stackFunc func(ctx context.Context, st *stack, out io.Writer, args []string) error

// withStack opens the shared stack for a one-shot command. Nothing listens
// for broadcasts outside serve.
func withStack(fn stackFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		st, err := openStack(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer st.close(context.Background())
		return fn(ctx, st, cmd.OutOrStdout(), args)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
