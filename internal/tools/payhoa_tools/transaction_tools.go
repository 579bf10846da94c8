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

// maxSearchPages bounds the page walk of the substring search so a
// misbehaving pager cannot keep the tool call running forever.
const maxSearchPages = 100

// RegisterTransactionTools registers transaction listing and search tools
// with the MCP server.
func RegisterTransactionTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// List transactions tool
	listTransactionsTool := mcp.NewTool("payhoa_list_transactions",
		mcp.WithDescription("List bank transactions with filters, sorting, and pagination. Amounts are integer cents, positive for money in."),
		mcp.WithString("accountId",
			mcp.Description("Restrict to one bank account"),
		),
		mcp.WithBoolean("reviewed",
			mcp.Description("Filter by reviewed state (omit for both)"),
		),
		mcp.WithBoolean("reconciled",
			mcp.Description("Filter by reconciled state (omit for both)"),
		),
		mcp.WithString("startDate",
			mcp.Description("Earliest transaction date, YYYY-MM-DD (inclusive)"),
		),
		mcp.WithString("endDate",
			mcp.Description("Latest transaction date, YYYY-MM-DD (inclusive)"),
		),
		mcp.WithString("direction",
			mcp.Description("Sort by date: 'desc' (default, newest first) or 'asc'"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number, 1-indexed (default: 1)"),
		),
		mcp.WithNumber("perPage",
			mcp.Description("Results per page, at most 100"),
		),
	)

	s.AddTool(listTransactionsTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_list_transactions", "list_transactions", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListTransactions(ctx, request, sc)
		}))

	// Unreviewed transactions tool
	unreviewedTool := mcp.NewTool("payhoa_unreviewed_transactions",
		mcp.WithDescription("List transactions that have not been reviewed yet, the usual starting point for a reconciliation session"),
		mcp.WithString("accountId",
			mcp.Description("Restrict to one bank account"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of transactions to show (default: 50)"),
		),
	)

	s.AddTool(unreviewedTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_unreviewed_transactions", "unreviewed_transactions", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUnreviewedTransactions(ctx, request, sc)
		}))

	// Unreconciled transactions tool
	unreconciledTool := mcp.NewTool("payhoa_unreconciled_transactions",
		mcp.WithDescription("List transactions not yet cleared by any bank reconciliation"),
		mcp.WithString("accountId",
			mcp.Description("Restrict to one bank account"),
		),
		mcp.WithString("startDate",
			mcp.Description("Earliest transaction date, YYYY-MM-DD (inclusive)"),
		),
		mcp.WithString("endDate",
			mcp.Description("Latest transaction date, YYYY-MM-DD (inclusive)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of transactions to show (default: 50)"),
		),
	)

	s.AddTool(unreconciledTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_unreconciled_transactions", "unreconciled_transactions", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUnreconciledTransactions(ctx, request, sc)
		}))

	// Search transactions tool
	searchTool := mcp.NewTool("payhoa_search_transactions",
		mcp.WithDescription("Search transaction descriptions and memos for a case-insensitive substring"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Substring to search for (e.g. 'landscaping', 'check 1042')"),
		),
		mcp.WithString("accountId",
			mcp.Description("Restrict to one bank account"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Stop after this many matches (default: 25)"),
		),
	)

	s.AddTool(searchTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_search_transactions", "search_transactions", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearchTransactions(ctx, request, sc)
		}))

	// Find transactions by amount tool
	findByAmountTool := mcp.NewTool("payhoa_find_transactions_by_amount",
		mcp.WithDescription("Find transactions by amount regardless of sign. Bank statements and the ledger may record the same movement with opposite polarity, so a search for 15000 cents also matches -15000."),
		mcp.WithString("amount",
			mcp.Required(),
			mcp.Description("Target amount: integer cents (e.g. 15000) or a dollar string (e.g. '150.00')"),
		),
		mcp.WithNumber("toleranceCents",
			mcp.Description("Match window in cents around the target (default: 0, exact)"),
		),
		mcp.WithString("accountId",
			mcp.Description("Restrict to one bank account"),
		),
		mcp.WithString("startDate",
			mcp.Description("Earliest transaction date, YYYY-MM-DD (inclusive)"),
		),
		mcp.WithString("endDate",
			mcp.Description("Latest transaction date, YYYY-MM-DD (inclusive)"),
		),
	)

	s.AddTool(findByAmountTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_find_transactions_by_amount", "find_by_amount", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleFindTransactionsByAmount(ctx, request, sc)
		}))

	// Transaction detail tool
	transactionDetailTool := mcp.NewTool("payhoa_transaction_detail",
		mcp.WithDescription("Show one transaction in full, including how to read its sign"),
		mcp.WithString("transactionId",
			mcp.Required(),
			mcp.Description("The transaction ID"),
		),
	)

	s.AddTool(transactionDetailTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_transaction_detail", "transaction_detail", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleTransactionDetail(ctx, request, sc)
		}))

	return nil
}

func handleListTransactions(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	q := payhoa.TransactionQuery{
		AccountID: common.GetAccountFromArgs(args),
		Page:      common.IntArg(args, "page", 0),
		PerPage:   common.IntArg(args, "perPage", 0),
	}
	if v, ok := common.BoolArg(args, "reviewed"); ok {
		q.Reviewed = &v
	}
	if v, ok := common.BoolArg(args, "reconciled"); ok {
		q.Reconciled = &v
	}
	var err error
	if q.StartDate, err = common.DateArg(args, "startDate"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if q.EndDate, err = common.DateArg(args, "endDate"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if dir := common.StringArg(args, "direction"); dir != "" {
		q.Direction = payhoa.SortDirection(dir)
	}

	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	page, err := client.ListTransactions(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}

	jsonBytes, err := json.MarshalIndent(page, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format transactions: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func handleUnreviewedTransactions(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	limit := common.IntArg(args, "limit", 50)
	if limit < 1 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}

	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	reviewed := false
	txns, err := client.ListAllTransactions(ctx, payhoa.TransactionQuery{
		AccountID: common.GetAccountFromArgs(args),
		Reviewed:  &reviewed,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}

	unreviewed := recon.FilterUnreviewed(txns)
	if len(unreviewed) == 0 {
		return mcp.NewToolResultText("No unreviewed transactions found."), nil
	}

	return mcp.NewToolResultText(formatTransactionList(
		fmt.Sprintf("Found %d unreviewed transaction(s)", len(unreviewed)), unreviewed, limit)), nil
}

func handleUnreconciledTransactions(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	limit := common.IntArg(args, "limit", 50)
	if limit < 1 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}

	q := payhoa.TransactionQuery{AccountID: common.GetAccountFromArgs(args)}
	var err error
	if q.StartDate, err = common.DateArg(args, "startDate"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if q.EndDate, err = common.DateArg(args, "endDate"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	reconciled := false
	q.Reconciled = &reconciled

	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	txns, err := client.ListAllTransactions(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}

	unreconciled := recon.FilterUnreconciled(txns)
	if len(unreconciled) == 0 {
		return mcp.NewToolResultText("No unreconciled transactions found."), nil
	}

	return mcp.NewToolResultText(formatTransactionList(
		fmt.Sprintf("Found %d unreconciled transaction(s)", len(unreconciled)), unreconciled, limit)), nil
}

func handleSearchTransactions(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	limit := common.IntArg(args, "limit", 25)
	if limit < 1 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}

	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	needle := strings.ToLower(query)
	q := payhoa.TransactionQuery{
		AccountID: common.GetAccountFromArgs(args),
		PerPage:   payhoa.MaxPerPage,
	}

	var matches []payhoa.Transaction
	scanned := 0
scan:
	for page := 1; page <= maxSearchPages; page++ {
		q.Page = page
		pg, err := client.ListTransactions(ctx, q)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to search transactions: %v", err)), nil
		}
		scanned += len(pg.Transactions)
		for _, txn := range pg.Transactions {
			if matchesQuery(txn, needle) {
				matches = append(matches, txn)
				if len(matches) >= limit {
					break scan
				}
			}
		}
		if pg.LastPage > 0 && page >= pg.LastPage {
			break
		}
		if len(pg.Transactions) == 0 || (pg.LastPage == 0 && len(pg.Transactions) < q.PerPage) {
			break
		}
	}

	if len(matches) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No transactions matching %q found (%d scanned).", query, scanned)), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d transaction(s) matching %q:\n", len(matches), query))
	for _, txn := range matches {
		result.WriteString("  " + formatTransactionLine(txn) + "\n")
	}
	if len(matches) >= limit {
		result.WriteString(fmt.Sprintf("\nStopped at the first %d matches; raise limit or narrow the query for more.\n", limit))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func matchesQuery(txn payhoa.Transaction, needle string) bool {
	return strings.Contains(strings.ToLower(txn.Description), needle) ||
		strings.Contains(strings.ToLower(txn.Memo), needle)
}

func handleFindTransactionsByAmount(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	amount, ok, err := common.CentsArg(args, "amount")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("amount is required"), nil
	}
	tolerance := payhoa.Cents(common.IntArg(args, "toleranceCents", 0))

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

	matches, err := recon.FindByAmount(txns, amount, tolerance)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(matches) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No transactions within %s of %s found (either sign, %d searched).",
			tolerance, amount.Abs(), len(txns))), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d transaction(s) within %s of %s (either sign):\n",
		len(matches), tolerance, amount.Abs()))
	for _, txn := range matches {
		result.WriteString(fmt.Sprintf("  %s  [%s]\n", formatTransactionLine(txn), txn.SignLabel()))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func handleTransactionDetail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	transactionID, ok := args["transactionId"].(string)
	if !ok || transactionID == "" {
		return mcp.NewToolResultError("transactionId is required"), nil
	}

	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	txn, err := client.FindTransaction(ctx, transactionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to find transaction: %v", err)), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Transaction %s\n", txn.ID))
	result.WriteString(fmt.Sprintf("  Date:   %s\n", txn.Date))
	result.WriteString(fmt.Sprintf("  Amount: %s  [%s]\n", txn.Amount, txn.SignLabel()))
	if txn.OriginalAmount != nil {
		result.WriteString(fmt.Sprintf("  Bank feed amount: %s (the bank feed inverts polarity: negative means money in)\n", txn.OriginalAmount))
	}
	if txn.Description != "" {
		result.WriteString(fmt.Sprintf("  Description: %s\n", txn.Description))
	}
	if txn.Memo != "" {
		result.WriteString(fmt.Sprintf("  Memo: %s\n", txn.Memo))
	}
	if txn.CategoryID != "" {
		result.WriteString(fmt.Sprintf("  Category ID: %s\n", txn.CategoryID))
	}
	if txn.BankAccountID != "" {
		result.WriteString(fmt.Sprintf("  Bank account ID: %s\n", txn.BankAccountID))
	}
	result.WriteString(fmt.Sprintf("  Reviewed:   %t\n", txn.Reviewed))
	result.WriteString(fmt.Sprintf("  Reconciled: %t\n", txn.Reconciled))
	if txn.ReconciliationID != "" {
		result.WriteString(fmt.Sprintf("  Reconciliation ID: %s\n", txn.ReconciliationID))
	}
	if txn.Pending {
		result.WriteString("  Pending: true\n")
	}
	if !txn.Approved {
		result.WriteString("  Approved: false\n")
	}
	if txn.JournalEntry {
		result.WriteString("  Journal entry: true\n")
	}
	if txn.SplitCount > 0 {
		result.WriteString(fmt.Sprintf("  Split lines: %d\n", txn.SplitCount))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func formatTransactionLine(txn payhoa.Transaction) string {
	desc := txn.Description
	if desc == "" {
		desc = "(no description)"
	}
	line := fmt.Sprintf("%s  %s  %s", txn.Date, txn.Amount, desc)
	if txn.Pending {
		line += " [pending]"
	}
	return line + fmt.Sprintf(" (ID: %s)", txn.ID)
}

func formatTransactionList(header string, txns []payhoa.Transaction, limit int) string {
	var result strings.Builder
	shown := len(txns)
	if shown > limit {
		shown = limit
		result.WriteString(fmt.Sprintf("%s, showing the first %d:\n", header, shown))
	} else {
		result.WriteString(header + ":\n")
	}
	for _, txn := range txns[:shown] {
		result.WriteString("  " + formatTransactionLine(txn) + "\n")
	}
	return result.String()
}
