// Command mcp-proxy runs the multi-tenant MCP proxy server, following the
// teacher's cmd/docker-mcp CLI shape: a cobra root command delegating to
// per-purpose subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/mcp-proxy/gateway/cmd/mcp-proxy/commands"
)

func main() {
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
