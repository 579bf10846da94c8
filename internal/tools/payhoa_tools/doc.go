// Package payhoa_tools provides MCP tools for querying PayHOA financial
// records.
//
// This package implements MCP (Model Context Protocol) tools that wrap the
// PayHOA client and the reconciliation engine, exposing the association's
// bank accounts, transactions, and accounting reports to AI assistants.
// Every tool is read-only: nothing here creates, modifies, or deletes
// records upstream.
//
// # Available Tools
//
// Accounts and reconciliation:
//   - payhoa_list_bank_accounts: List accounts with bank and ledger balances
//   - payhoa_account_summary: Totals across accounts, cross-referenced
//     against the balance sheet
//   - payhoa_balance_discrepancy: Bank vs ledger comparison with possible
//     causes, for one account, several, or all
//   - payhoa_reconciliation_history: Completed reconciliations for an account
//   - payhoa_get_reconciliation_report: Cleared transactions and balances of
//     one reconciliation
//
// Transactions:
//   - payhoa_list_transactions: Filtered, sorted, paginated listing
//   - payhoa_unreviewed_transactions: Transactions awaiting review
//   - payhoa_unreconciled_transactions: Transactions no statement has cleared
//   - payhoa_search_transactions: Substring search over descriptions and memos
//   - payhoa_find_transactions_by_amount: Amount search ignoring sign
//   - payhoa_transaction_detail: One transaction with sign interpretation
//
// Analysis:
//   - payhoa_find_sign_errors: Transactions whose polarity looks wrong
//   - payhoa_compare_period_totals: Ledger period totals vs a statement total
//
// Reports:
//   - payhoa_get_balance_sheet: Balance sheet tree as of a date
//   - payhoa_get_general_ledger: General ledger entries for a period
//
// # Money
//
// All monetary values are integer cents. Formatted output renders dollars;
// JSON output carries the raw cent values.
//
// # Authentication
//
// Tools share one PayHOA session owned by the server context. The first
// call logs in with credentials from the environment; later calls reuse the
// cached session and re-authenticate once, transparently, when it expires.
package payhoa_tools
