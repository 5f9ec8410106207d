package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mcp-proxy/gateway/pkg/capabilities"
	"github.com/mcp-proxy/gateway/pkg/store"
	"github.com/spf13/cobra"
)

// toolsCommand groups debug tool-introspection subcommands, in the
// teacher's mcp-exec style ("docker mcp tools inspect"): inputs a
// prefixed tool name and prints its owning server and resolved danger
// level without going through a live session.
func toolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect aggregated tool metadata",
	}
	cmd.AddCommand(toolsDescribeCommand())
	return cmd
}

func toolsDescribeCommand() *cobra.Command {
	var databaseFile string

	cmd := &cobra.Command{
		Use:   "describe <prefixed-tool-name>",
		Short: "Describe one prefixed tool's owning server and danger level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return describeTool(cmd.Context(), databaseFile, args[0])
		},
	}
	cmd.Flags().StringVar(&databaseFile, "database", "", "Path to the sqlite database file")
	return cmd
}

func describeTool(ctx context.Context, databaseFile, prefixed string) error {
	original, serverID, ok := capabilities.Parse(prefixed)
	if !ok {
		return fmt.Errorf("tools describe: %q has no %q server suffix", prefixed, capabilities.Separator)
	}

	var opts []store.Option
	if databaseFile != "" {
		opts = append(opts, store.WithDatabaseFile(databaseFile))
	}
	repo, err := store.New(opts...)
	if err != nil {
		return fmt.Errorf("tools describe: open store: %w", err)
	}
	defer repo.Close()

	server, err := repo.GetServer(ctx, serverID)
	if err != nil {
		return fmt.Errorf("tools describe: server %s: %w", serverID, err)
	}

	item, known := server.Capabilities.Tools[original]
	danger := capabilities.DangerNotification
	if known && item.DangerLevel != nil {
		danger = capabilities.DangerLevel(*item.DangerLevel)
	}

	out := struct {
		PrefixedName string `json:"prefixedName"`
		OriginalName string `json:"originalName"`
		ServerID     string `json:"serverId"`
		ServerName   string `json:"serverName"`
		Enabled      bool   `json:"enabled"`
		DangerLevel  string `json:"dangerLevel"`
	}{
		PrefixedName: prefixed,
		OriginalName: original,
		ServerID:     serverID,
		ServerName:   server.ServerName,
		Enabled:      known && item.Enabled,
		DangerLevel:  string(danger),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
