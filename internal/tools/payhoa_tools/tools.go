package payhoa_tools

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hoaboard/treasurer/internal/payhoa"
	"github.com/hoaboard/treasurer/internal/server"
)

// RegisterPayhoaTools registers all PayHOA tools with the MCP server.
// Every tool is read-only against the upstream.
func RegisterPayhoaTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if err := RegisterAccountTools(s, sc); err != nil {
		return fmt.Errorf("failed to register account tools: %w", err)
	}
	if err := RegisterTransactionTools(s, sc); err != nil {
		return fmt.Errorf("failed to register transaction tools: %w", err)
	}
	if err := RegisterAnalysisTools(s, sc); err != nil {
		return fmt.Errorf("failed to register analysis tools: %w", err)
	}
	if err := RegisterReportTools(s, sc); err != nil {
		return fmt.Errorf("failed to register report tools: %w", err)
	}
	return nil
}

// getClient returns the shared PayHOA client, or a tool error result when
// the server context cannot build one (typically missing credentials).
func getClient(sc *server.ServerContext) (*payhoa.Client, *mcp.CallToolResult) {
	client, err := sc.Client()
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Failed to create PayHOA client: %v", err))
	}
	return client, nil
}

// centsOrNA renders an optional monetary value, distinguishing a missing
// upstream figure from an actual zero.
func centsOrNA(c *payhoa.Cents) string {
	if c == nil {
		return "n/a"
	}
	return c.String()
}
