package cli

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:1313"

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	warnMark = color.New(color.FgYellow).Sprint("!")
)

// RootCmd builds the debatectl command tree.
func RootCmd() *cobra.Command {
	server := os.Getenv("DELTA_SERVER_URL")
	if server == "" {
		server = defaultServer
	}

	root := &cobra.Command{
		Use:   "debatectl",
		Short: "Moderate a running debate server",
		Long: `debatectl talks to the admin API of a debate server. It tunes the
phase scheduler, edits deadlines, and manages debates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("server", server, "base URL of the debate server")
	root.PersistentFlags().String("role", "admin", "role sent in the X-User-Role header")

	root.AddCommand(PhaseCmd())
	root.AddCommand(DebatesCmd())
	return root
}

func clientFor(cmd *cobra.Command) *Client {
	server, _ := cmd.Flags().GetString("server")
	role, _ := cmd.Flags().GetString("role")
	return NewClient(server, role)
}
