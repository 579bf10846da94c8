package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hoaboard/treasurer/internal/logging"
	"github.com/hoaboard/treasurer/internal/server"
)

// RegisterPayhoaResources registers session and account resources.
// These resources describe the authenticated organization without
// requiring a tool call.
func RegisterPayhoaResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Register organization resource
	organizationResource := mcp.NewResource(
		"payhoa://organization",
		"PayHOA Organization",
		mcp.WithResourceDescription("The authenticated PayHOA organization and session state"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(organizationResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleOrganization(ctx, request, sc)
	})

	// Register bank accounts resource
	accountsResource := mcp.NewResource(
		"payhoa://accounts",
		"Bank Accounts",
		mcp.WithResourceDescription("Bank accounts connected to the organization, with bank and ledger balances in integer cents"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(accountsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleBankAccounts(ctx, request, sc)
	})

	return nil
}

// handleOrganization returns the authenticated organization and a sanitized
// view of the session. The bearer token is masked; credentials never appear.
func handleOrganization(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	sessions, err := sc.Sessions()
	if err != nil {
		return nil, fmt.Errorf("session manager unavailable: %w", err)
	}

	sess, err := sessions.Ensure(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to establish a session: %w", err)
	}

	orgData := map[string]interface{}{
		"organizationId": sess.OrganizationID,
		"bearerToken":    logging.SanitizeToken(sess.BearerToken),
		"baseUrl":        sessions.BaseURL(),
		"expiresAt":      nil,
		"description":    "Authenticated PayHOA organization session",
	}
	if sess.ExpiresAt != nil {
		orgData["expiresAt"] = sess.ExpiresAt.Format(time.RFC3339)
	}

	jsonData, err := json.MarshalIndent(orgData, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal organization data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}

// handleBankAccounts returns the connected bank accounts with both balance
// views. Amounts are integer cents; absent balances are null.
func handleBankAccounts(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	client, err := sc.Client()
	if err != nil {
		return nil, fmt.Errorf("failed to create PayHOA client: %w", err)
	}

	accounts, err := client.ListBankAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank accounts: %w", err)
	}

	entries := make([]map[string]interface{}, 0, len(accounts))
	for _, acct := range accounts {
		entry := map[string]interface{}{
			"id":                       acct.ID,
			"name":                     acct.Name,
			"institution":              acct.Institution,
			"last4":                    acct.Last4,
			"bankBalanceCents":         acct.BankBalance,
			"ledgerBalanceCents":       acct.LedgerBalance,
			"pendingFundsCents":        acct.PendingFunds,
			"unreviewedTransactions":   acct.UnreviewedCount,
			"completedReconciliations": len(acct.Reconciliations),
		}
		if acct.LastSynced != nil {
			entry["lastSynced"] = acct.LastSynced.Format(time.RFC3339)
		}
		entries = append(entries, entry)
	}

	accountsData := map[string]interface{}{
		"accounts":    entries,
		"count":       len(entries),
		"description": "Bank accounts connected to the PayHOA organization",
	}

	jsonData, err := json.MarshalIndent(accountsData, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
