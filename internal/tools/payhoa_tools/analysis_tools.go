package payhoa_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hoaboard/treasurer/internal/payhoa"
	"github.com/hoaboard/treasurer/internal/recon"
	"github.com/hoaboard/treasurer/internal/server"
	"github.com/hoaboard/treasurer/internal/tools/common"
)

// RegisterAnalysisTools registers the reconciliation analysis tools with
// the MCP server.
func RegisterAnalysisTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Sign error detection tool
	findSignErrorsTool := mcp.NewTool("payhoa_find_sign_errors",
		mcp.WithDescription("Flag transactions whose sign disagrees with their category or wording, e.g. a deposit recorded as money out. Findings are review candidates, not corrections."),
		mcp.WithString("accountId",
			mcp.Description("Restrict to one bank account"),
		),
		mcp.WithString("startDate",
			mcp.Description("Earliest transaction date, YYYY-MM-DD (inclusive)"),
		),
		mcp.WithString("endDate",
			mcp.Description("Latest transaction date, YYYY-MM-DD (inclusive)"),
		),
		mcp.WithString("categories",
			mcp.Description("JSON object mapping category IDs to 'income' or 'expense'. Categories not listed fall back to keyword heuristics."),
		),
	)

	s.AddTool(findSignErrorsTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_find_sign_errors", "find_sign_errors", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleFindSignErrors(ctx, request, sc)
		}))

	// Period totals comparison tool
	comparePeriodTotalsTool := mcp.NewTool("payhoa_compare_period_totals",
		mcp.WithDescription("Sum ledger transactions for a statement period and compare the net against the bank statement's total"),
		mcp.WithString("accountId",
			mcp.Required(),
			mcp.Description("The bank account ID"),
		),
		mcp.WithString("startDate",
			mcp.Required(),
			mcp.Description("Statement period start, YYYY-MM-DD (inclusive)"),
		),
		mcp.WithString("endDate",
			mcp.Required(),
			mcp.Description("Statement period end, YYYY-MM-DD (inclusive)"),
		),
		mcp.WithString("statementTotal",
			mcp.Required(),
			mcp.Description("The statement's net total: integer cents (e.g. 15000) or a dollar string (e.g. '150.00')"),
		),
	)

	s.AddTool(comparePeriodTotalsTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_compare_period_totals", "compare_period_totals", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleComparePeriodTotals(ctx, request, sc)
		}))

	return nil
}

func handleFindSignErrors(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	categories, err := parseCategories(args["categories"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	q := payhoa.TransactionQuery{AccountID: common.GetAccountFromArgs(args)}
	if q.StartDate, err = common.DateArg(args, "startDate"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if q.EndDate, err = common.DateArg(args, "endDate"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	txns, err := client.ListAllTransactions(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}

	findings := recon.FindSignErrors(txns, categories)
	if len(findings) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No suspected sign errors among %d transaction(s).", len(txns))), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d suspected sign error(s) among %d transaction(s). Review each before correcting anything:\n", len(findings), len(txns)))
	for i, f := range findings {
		result.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, formatTransactionLine(f.Transaction)))
		result.WriteString(fmt.Sprintf("   Expected %s, recorded %s\n", f.Expected, f.Actual))
		result.WriteString(fmt.Sprintf("   Reason: %s\n", f.Reason))
	}

	return mcp.NewToolResultText(result.String()), nil
}

// parseCategories accepts the category mapping as a JSON object or as a
// string containing one; some MCP clients serialize nested arguments.
func parseCategories(raw interface{}) (map[string]recon.CategoryKind, error) {
	if raw == nil {
		return nil, nil
	}
	var obj map[string]interface{}
	switch v := raw.(type) {
	case map[string]interface{}:
		obj = v
	case string:
		if v == "" {
			return nil, nil
		}
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return nil, fmt.Errorf("categories must be a JSON object mapping category IDs to 'income' or 'expense'")
		}
	default:
		return nil, fmt.Errorf("categories must be an object mapping category IDs to 'income' or 'expense'")
	}

	categories := make(map[string]recon.CategoryKind, len(obj))
	for id, v := range obj {
		kind, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("categories[%s] must be 'income' or 'expense'", id)
		}
		switch recon.CategoryKind(strings.ToLower(kind)) {
		case recon.CategoryIncome:
			categories[id] = recon.CategoryIncome
		case recon.CategoryExpense:
			categories[id] = recon.CategoryExpense
		default:
			return nil, fmt.Errorf("categories[%s] must be 'income' or 'expense', got %q", id, kind)
		}
	}
	return categories, nil
}

func handleComparePeriodTotals(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	accountID, ok := args["accountId"].(string)
	if !ok || accountID == "" {
		return mcp.NewToolResultError("accountId is required"), nil
	}

	startDate, err := common.DateArg(args, "startDate")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	endDate, err := common.DateArg(args, "endDate")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if startDate.IsZero() || endDate.IsZero() {
		return mcp.NewToolResultError("startDate and endDate are required"), nil
	}

	statementTotal, ok, err := common.CentsArg(args, "statementTotal")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("statementTotal is required"), nil
	}

	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	txns, err := client.ListAllTransactions(ctx, payhoa.TransactionQuery{
		AccountID: accountID,
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}

	comparison, err := recon.CompareStatement(accountID, txns, startDate, endDate, statementTotal)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	t := comparison.Totals
	var result strings.Builder
	result.WriteString(fmt.Sprintf("Period totals for account %s, %s to %s (inclusive):\n", t.AccountID, t.From, t.To))
	result.WriteString(fmt.Sprintf("  Credits: %s across %d transaction(s)\n", t.Credits, t.CreditCount))
	result.WriteString(fmt.Sprintf("  Debits:  %s across %d transaction(s)\n", t.Debits, t.DebitCount))
	result.WriteString(fmt.Sprintf("  Net:     %s from %d transaction(s) in the period\n", t.Net, t.Count))
	result.WriteString(fmt.Sprintf("\nStatement total: %s\n", comparison.StatementTotal))
	result.WriteString(fmt.Sprintf("Difference (ledger net minus statement): %s\n", comparison.Difference))
	switch {
	case comparison.Difference == 0:
		result.WriteString("The ledger matches the statement for this period.\n")
	case comparison.Difference > 0:
		result.WriteString("The ledger shows more money in than the statement.\n")
	default:
		result.WriteString("The ledger shows less money in than the statement.\n")
	}

	return mcp.NewToolResultText(result.String()), nil
}
