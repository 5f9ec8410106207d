package commands

import (
	"github.com/spf13/cobra"
)

// Root builds the mcp-proxy root command.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-proxy",
		Short: "Multi-tenant MCP proxy/aggregator",
	}

	cmd.AddCommand(serveCommand())
	cmd.AddCommand(toolsCommand())
	return cmd
}
