package payhoa_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hoaboard/treasurer/internal/payhoa"
	"github.com/hoaboard/treasurer/internal/recon"
	"github.com/hoaboard/treasurer/internal/server"
	"github.com/hoaboard/treasurer/internal/tools/batch"
	"github.com/hoaboard/treasurer/internal/tools/common"
)

// RegisterAccountTools registers bank account and reconciliation tools
// with the MCP server.
func RegisterAccountTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// List bank accounts tool
	listAccountsTool := mcp.NewTool("payhoa_list_bank_accounts",
		mcp.WithDescription("List all bank accounts of the organization with bank and ledger balances, pending funds, and unreviewed transaction counts"),
	)

	s.AddTool(listAccountsTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_list_bank_accounts", "list_accounts", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListBankAccounts(ctx, request, sc)
		}))

	// Account summary tool
	accountSummaryTool := mcp.NewTool("payhoa_account_summary",
		mcp.WithDescription("Summarize all bank accounts: total bank vs ledger balances, accounts with differences, cross-referenced against the balance sheet"),
		mcp.WithString("asOfDate",
			mcp.Description("Balance sheet reference date in YYYY-MM-DD format (default: today)"),
		),
	)

	s.AddTool(accountSummaryTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_account_summary", "account_summary", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAccountSummary(ctx, request, sc)
		}))

	// Balance discrepancy tool (supports single, multiple, or all accounts)
	balanceDiscrepancyTool := mcp.NewTool("payhoa_balance_discrepancy",
		mcp.WithDescription("Compare bank-reported and ledger balances for accounts and list possible causes for any difference"),
		mcp.WithString("accountIds",
			mcp.Description("Account ID (string) or array of account IDs to check. Omit to check every account."),
		),
	)

	s.AddTool(balanceDiscrepancyTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_balance_discrepancy", "balance_discrepancy", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleBalanceDiscrepancy(ctx, request, sc)
		}))

	// Reconciliation history tool
	reconciliationHistoryTool := mcp.NewTool("payhoa_reconciliation_history",
		mcp.WithDescription("List completed bank reconciliations for an account, newest statement first"),
		mcp.WithString("accountId",
			mcp.Required(),
			mcp.Description("The bank account ID"),
		),
	)

	s.AddTool(reconciliationHistoryTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_reconciliation_history", "reconciliation_history", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleReconciliationHistory(ctx, request, sc)
		}))

	// Reconciliation report tool
	reconciliationReportTool := mcp.NewTool("payhoa_get_reconciliation_report",
		mcp.WithDescription("Get the detail of one completed reconciliation: statement-period balances and every cleared transaction"),
		mcp.WithString("reconciliationId",
			mcp.Required(),
			mcp.Description("The reconciliation ID (from payhoa_reconciliation_history)"),
		),
	)

	s.AddTool(reconciliationReportTool, common.InstrumentedToolHandlerWithOperation(
		"payhoa_get_reconciliation_report", "reconciliation_report", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleReconciliationReport(ctx, request, sc)
		}))

	return nil
}

func handleListBankAccounts(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	accounts, err := client.ListBankAccounts(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list bank accounts: %v", err)), nil
	}

	if len(accounts) == 0 {
		return mcp.NewToolResultText("No bank accounts found for this organization."), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d bank account(s):\n", len(accounts)))
	for i, acct := range accounts {
		result.WriteString(fmt.Sprintf("\n%d. %s (ID: %s)\n", i+1, acct.Name, acct.ID))
		result.WriteString(formatAccountDetail(acct, "   "))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func formatAccountDetail(acct payhoa.BankAccount, indent string) string {
	var b strings.Builder
	if acct.Institution != "" {
		b.WriteString(fmt.Sprintf("%sInstitution: %s\n", indent, acct.Institution))
	}
	if acct.Last4 != "" {
		b.WriteString(fmt.Sprintf("%sAccount number: ****%s\n", indent, acct.Last4))
	}
	b.WriteString(fmt.Sprintf("%sBank balance:   %s\n", indent, centsOrNA(acct.BankBalance)))
	b.WriteString(fmt.Sprintf("%sLedger balance: %s\n", indent, centsOrNA(acct.LedgerBalance)))
	if acct.PendingFunds != nil && *acct.PendingFunds != 0 {
		b.WriteString(fmt.Sprintf("%sPending funds:  %s\n", indent, acct.PendingFunds))
	}
	b.WriteString(fmt.Sprintf("%sUnreviewed transactions: %d\n", indent, acct.UnreviewedCount))
	if acct.LastSynced != nil {
		b.WriteString(fmt.Sprintf("%sLast synced: %s\n", indent, acct.LastSynced.Format(time.RFC3339)))
	}
	if n := len(acct.Reconciliations); n > 0 {
		b.WriteString(fmt.Sprintf("%sCompleted reconciliations: %d\n", indent, n))
	}
	return b.String()
}

func handleAccountSummary(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	asOf, err := common.DateArg(args, "asOfDate")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	accounts, err := client.ListBankAccounts(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list bank accounts: %v", err)), nil
	}

	sheet, err := client.BalanceSheet(ctx, asOf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch balance sheet: %v", err)), nil
	}

	var totalBank, totalLedger, totalPending payhoa.Cents
	var unreviewed int
	var mismatched []recon.Discrepancy
	for _, acct := range accounts {
		d := recon.BalanceDiscrepancy(acct)
		totalBank += d.BankBalance
		totalLedger += d.LedgerBalance
		totalPending += d.PendingFunds
		unreviewed += d.UnreviewedCount
		if d.Difference != 0 {
			mismatched = append(mismatched, d)
		}
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Account summary (%d accounts):\n", len(accounts)))
	result.WriteString(fmt.Sprintf("  Total bank balance:   %s\n", totalBank))
	result.WriteString(fmt.Sprintf("  Total ledger balance: %s\n", totalLedger))
	result.WriteString(fmt.Sprintf("  Total difference:     %s\n", totalBank-totalLedger))
	result.WriteString(fmt.Sprintf("  Pending funds:        %s\n", totalPending))
	result.WriteString(fmt.Sprintf("  Unreviewed transactions: %d\n", unreviewed))

	if len(mismatched) == 0 {
		result.WriteString("\nAll bank balances match their ledger accounts.\n")
	} else {
		result.WriteString(fmt.Sprintf("\n%d account(s) with bank/ledger differences:\n", len(mismatched)))
		for _, d := range mismatched {
			result.WriteString(fmt.Sprintf("  - %s (ID: %s): bank %s, ledger %s, difference %s\n",
				d.AccountName, d.AccountID, d.BankBalance, d.LedgerBalance, d.Difference))
		}
	}

	result.WriteString(fmt.Sprintf("\nBalance sheet as of %s:\n", sheet.AsOf))
	for _, section := range sheet.Sections {
		result.WriteString(fmt.Sprintf("  %s: %s\n", section.Label, centsOrNA(section.Amount)))
	}
	if assets, ok := findSection(sheet.Sections, "Assets"); ok && assets.Amount != nil {
		result.WriteString(fmt.Sprintf("\nBalance sheet assets (%s) vs account ledger total (%s): difference %s\n",
			assets.Amount, totalLedger, *assets.Amount-totalLedger))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func findSection(sections []payhoa.BalanceSheetNode, label string) (payhoa.BalanceSheetNode, bool) {
	for _, s := range sections {
		if strings.EqualFold(s.Label, label) {
			return s, true
		}
	}
	return payhoa.BalanceSheetNode{}, false
}

func handleBalanceDiscrepancy(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	// No ids means check every account in one listing call.
	if _, ok := args["accountIds"]; !ok {
		accounts, err := client.ListBankAccounts(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list bank accounts: %v", err)), nil
		}
		if len(accounts) == 0 {
			return mcp.NewToolResultText("No bank accounts found for this organization."), nil
		}
		var result strings.Builder
		result.WriteString(fmt.Sprintf("Balance discrepancy check for %d account(s):\n", len(accounts)))
		for _, acct := range accounts {
			result.WriteString("\n")
			result.WriteString(formatDiscrepancy(recon.BalanceDiscrepancy(acct)))
		}
		return mcp.NewToolResultText(result.String()), nil
	}

	accountIDs, err := batch.ParseStringOrArray(args["accountIds"], "accountIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.ProcessBatch(accountIDs, func(accountID string) (string, error) {
		acct, err := client.GetBankAccount(ctx, accountID)
		if err != nil {
			return "", err
		}
		return formatDiscrepancy(recon.BalanceDiscrepancy(*acct)), nil
	})

	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}

func formatDiscrepancy(d recon.Discrepancy) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s (ID: %s)\n", d.AccountName, d.AccountID))
	b.WriteString(fmt.Sprintf("  Bank balance:   %s\n", d.BankBalance))
	b.WriteString(fmt.Sprintf("  Ledger balance: %s\n", d.LedgerBalance))
	b.WriteString(fmt.Sprintf("  Difference:     %s\n", d.Difference))
	if d.Difference == 0 {
		b.WriteString("  Balances match.\n")
		return b.String()
	}
	if d.PendingFunds != 0 {
		b.WriteString(fmt.Sprintf("  Pending funds:  %s\n", d.PendingFunds))
	}
	if d.UnreviewedCount > 0 {
		b.WriteString(fmt.Sprintf("  Unreviewed transactions: %d\n", d.UnreviewedCount))
	}
	if len(d.PossibleCauses) > 0 {
		b.WriteString("  Possible causes:\n")
		for _, cause := range d.PossibleCauses {
			b.WriteString(fmt.Sprintf("    - %s\n", cause))
		}
	}
	return b.String()
}

func handleReconciliationHistory(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	accountID, ok := args["accountId"].(string)
	if !ok || accountID == "" {
		return mcp.NewToolResultError("accountId is required"), nil
	}

	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	records, err := client.ReconciliationHistory(ctx, accountID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch reconciliation history: %v", err)), nil
	}

	if len(records) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No completed reconciliations found for account %s.", accountID)), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d reconciliation(s) for account %s (newest statement first):\n", len(records), accountID))
	for i, rec := range records {
		result.WriteString(fmt.Sprintf("\n%d. Statement %s (ID: %s)\n", i+1, rec.StatementDate, rec.ID))
		result.WriteString(fmt.Sprintf("   Period: %s to %s\n", rec.StartDate, rec.StatementDate))
		result.WriteString(fmt.Sprintf("   Starting balance: %s\n", centsOrNA(rec.StartingBalance)))
		result.WriteString(fmt.Sprintf("   Ending balance:   %s\n", centsOrNA(rec.StatementEndingBalance)))
		result.WriteString(fmt.Sprintf("   Deposits: %s, Payments: %s\n", centsOrNA(rec.TotalDeposits), centsOrNA(rec.TotalPayments)))
		if rec.CompletedAt != nil {
			result.WriteString(fmt.Sprintf("   Completed: %s\n", rec.CompletedAt.Format("2006-01-02")))
		}
	}

	return mcp.NewToolResultText(result.String()), nil
}

func handleReconciliationReport(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	reconciliationID, ok := args["reconciliationId"].(string)
	if !ok || reconciliationID == "" {
		return mcp.NewToolResultError("reconciliationId is required"), nil
	}

	client, errResult := getClient(sc)
	if errResult != nil {
		return errResult, nil
	}

	report, err := client.ReconciliationReport(ctx, reconciliationID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch reconciliation report: %v", err)), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Reconciliation %s\n", report.ID))
	result.WriteString(fmt.Sprintf("  Period: %s to %s\n", report.StartDate, report.EndDate))
	result.WriteString(fmt.Sprintf("  Starting balance: %s\n", centsOrNA(report.StartingBalance)))
	result.WriteString(fmt.Sprintf("  Ending balance:   %s\n", centsOrNA(report.EndingBalance)))
	result.WriteString(fmt.Sprintf("  Total deposits:   %s\n", centsOrNA(report.TotalDeposits)))
	result.WriteString(fmt.Sprintf("  Total payments:   %s\n", centsOrNA(report.TotalPayments)))
	result.WriteString(fmt.Sprintf("  Cleared transactions: %d\n", report.ClearedCount))
	for _, txn := range report.Cleared {
		result.WriteString(fmt.Sprintf("    %s  %s  %s (ID: %s)\n", txn.Date, txn.Amount, txn.Description, txn.ID))
	}

	return mcp.NewToolResultText(result.String()), nil
}
