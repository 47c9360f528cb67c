package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is
// not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatStatus renders a daemon status snapshot in the requested format.
func formatStatus(status statusData, format string) (string, error) {
	switch format {
	case formatJSON:
		b, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal status: %w", err)
		}
		return string(b) + "\n", nil
	case formatTable:
		return formatStatusTable(status), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatStatusTable(status statusData) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "Listen Address:\t%s\n", status.ListenAddr)
	fmt.Fprintf(w, "Active Sessions:\t%d\n", status.ActiveSessions)
	fmt.Fprintf(w, "Uptime (s):\t%.0f\n", status.UptimeSeconds)
	w.Flush()

	if len(status.Peers) > 0 {
		b.WriteString("\nPeers:\n")
		for _, p := range status.Peers {
			fmt.Fprintf(&b, "  %s\n", p)
		}
	}

	return b.String()
}

// formatUsers renders a user-name listing in the requested format.
func formatUsers(users []string, format string) (string, error) {
	switch format {
	case formatJSON:
		b, err := json.MarshalIndent(users, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal users: %w", err)
		}
		return string(b) + "\n", nil
	case formatTable:
		var b strings.Builder
		for _, u := range users {
			fmt.Fprintln(&b, u)
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}
