package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nitrescov/filestored/internal/admin"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and active sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			status, err := client.Status()
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}

			out, err := formatStatus(status, outputFormat)
			if err != nil {
				return fmt.Errorf("format status: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

func killCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <peer-address>",
		Short: "Forcibly close an active session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := client.KillSession(args[0]); err != nil {
				return fmt.Errorf("kill session %s: %w", args[0], err)
			}
			fmt.Printf("session %s closed\n", args[0])
			return nil
		},
	}
}

func reloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the credential table from disk",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := client.ReloadCredentials(); err != nil {
				return fmt.Errorf("reload credentials: %w", err)
			}
			fmt.Println("credentials reloaded")
			return nil
		},
	}
}

func usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List configured user names",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			users, err := client.ListUsers()
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}

			out, err := formatUsers(users, outputFormat)
			if err != nil {
				return fmt.Errorf("format users: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

// statusData is a type alias kept local for formatting helpers.
type statusData = admin.StatusData
