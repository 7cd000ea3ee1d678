// Command anyclaw runs the multi-tenant gateway control plane and its
// operator tooling.
//
//	anyclaw serve                     HTTP API, WebSocket hub and maintenance jobs
//	anyclaw provision <agent-id>      bring one agent online in its tenant's gateway
//	anyclaw gateway status <id>       reconcile and print one gateway
//	anyclaw gateway qr <id>           render the pairing QR in the terminal
//	anyclaw gateway start <id>        install and start (or retry) a gateway unit
//	anyclaw gateway remove <id>       stop, uninstall and forget a gateway
//	anyclaw doctor                    check host prerequisites
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anyclaw/anyclaw/internal/handlers"
)

// Injected with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "anyclaw",
	Short:         "Per-tenant messaging gateway orchestrator",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "anyclaw "+version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	handlers.AppVersion = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
