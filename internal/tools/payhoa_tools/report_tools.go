package payhoa_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hoaboard/treasurer/internal/payhoa"
	"github.com/hoaboard/treasurer/internal/server"
	"github.com/hoaboard/treasurer/internal/tools/common"
)

// RegisterReportTools registers the accounting report tools with the MCP
// server.
func RegisterReportTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Balance sheet tool
	balanceSheetTool := mcp.NewTool("payhoa_get_balance_sheet",
		mcp.WithDescription("Fetch the organization's balance sheet as of a date, as a tree of sections and accounts"),
		mcp.WithString("asOfDate",
			mcp.Description("Reference date in YYYY-MM-DD format (default: today)"),
		),
	)

	s.AddTool(balanceSheetTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_get_balance_sheet", "balance_sheet", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetBalanceSheet(ctx, request, sc)
		}))

	// General ledger tool
	generalLedgerTool := mcp.NewTool("payhoa_get_general_ledger",
		mcp.WithDescription("Fetch general ledger entries for a date range, paginated. Debit and credit columns are integer cents."),
		mcp.WithString("startDate",
			mcp.Required(),
			mcp.Description("Report period start, YYYY-MM-DD (inclusive)"),
		),
		mcp.WithString("endDate",
			mcp.Required(),
			mcp.Description("Report period end, YYYY-MM-DD (inclusive)"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number, 0-indexed (default: 0)"),
		),
		mcp.WithNumber("pageSize",
			mcp.Description("Entries per page, at most 100"),
		),
	)

	s.AddTool(generalLedgerTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_get_general_ledger", "general_ledger", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetGeneralLedger(ctx, request, sc)
		}))

	return nil
}

func handleGetBalanceSheet(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	asOf, err := common.DateArg(args, "asOfDate")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	sheet, err := client.BalanceSheet(ctx, asOf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch balance sheet: %v", err)), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Balance sheet as of %s:\n", sheet.AsOf))
	for _, section := range sheet.Sections {
		writeBalanceNode(&result, section, 1)
	}

	return mcp.NewToolResultText(result.String()), nil
}

func writeBalanceNode(b *strings.Builder, node payhoa.BalanceSheetNode, depth int) {
	indent := strings.Repeat("  ", depth)
	if node.Amount != nil {
		b.WriteString(fmt.Sprintf("%s%s: %s\n", indent, node.Label, node.Amount))
	} else {
		b.WriteString(fmt.Sprintf("%s%s\n", indent, node.Label))
	}
	for _, child := range node.Children {
		writeBalanceNode(b, child, depth+1)
	}
}

func handleGetGeneralLedger(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	q := payhoa.LedgerQuery{
		Page:     common.IntArg(args, "page", 0),
		PageSize: common.IntArg(args, "pageSize", 0),
	}
	var err error
	if q.StartDate, err = common.DateArg(args, "startDate"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if q.EndDate, err = common.DateArg(args, "endDate"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if q.StartDate.IsZero() || q.EndDate.IsZero() {
		return mcp.NewToolResultError("startDate and endDate are required"), nil
	}

	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	page, err := client.GeneralLedger(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch general ledger: %v", err)), nil
	}

	jsonBytes, err := json.MarshalIndent(page, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format ledger entries: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}
