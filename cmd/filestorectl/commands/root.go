// Package commands implements the filestorectl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nitrescov/filestored/internal/admin"
)

var (
	// client is the admin control-plane client, initialized in
	// PersistentPreRunE from the --socket flag.
	client *admin.Client

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// socketPath is the daemon's admin control socket.
	socketPath string
)

// rootCmd is the top-level cobra command for filestorectl.
var rootCmd = &cobra.Command{
	Use:   "filestorectl",
	Short: "CLI client for the filestored daemon",
	Long:  "filestorectl communicates with the filestored daemon over its admin control socket to inspect and manage active sessions.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		client = admin.NewClient(socketPath)
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/run/filestored/admin.sock",
		"filestored admin control socket path")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(reloadCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(killCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
