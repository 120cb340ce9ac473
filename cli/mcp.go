// ABOUTME: MCP server subcommand
// ABOUTME: Exposes connection, contact and sync tools to an assistant over stdio
package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/crmsync/handlers"
)

// MCPCommand starts the MCP server on stdio. Logs go to stderr.
func MCPCommand(app *App, args []string) error {
	app.logger().Info("starting MCP server")

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "crmsync",
		Version: "0.1.0",
	}, nil)

	handlers.New(app.DB, app.OrgID, app.ClientFactory(), app.logger()).Register(server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return server.Run(ctx, &mcp.StdioTransport{})
}
