package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hoaboard/treasurer/internal/recon"
)

func newStatusCmd() *cobra.Command {
	var (
		debugMode   bool
		sessionFile string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show bank account balances and discrepancies",
		Long: `Fetch every bank account of the organization and compare the bank feed
balance with the ledger balance, flagging accounts where the two disagree.

Reuses the cached session when one is still valid and signs in only when
necessary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(debugMode, sessionFile, asJSON)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&sessionFile, "session-file", "", "Path of the session cache file (default: user cache dir, or TREASURER_SESSION_FILE)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")

	return cmd
}

func runStatus(debugMode bool, sessionFile string, asJSON bool) error {
	configureLogging(debugMode)

	ctx := context.Background()

	serverContext, _, err := buildServerContext(ctx, sessionFile)
	if err != nil {
		return err
	}
	defer func() { _ = serverContext.Shutdown() }()

	client, err := serverContext.Client()
	if err != nil {
		return fmt.Errorf("failed to create PayHOA client: %w", err)
	}

	accounts, err := client.ListBankAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list bank accounts: %w", err)
	}
	if len(accounts) == 0 {
		fmt.Println("No bank accounts found.")
		return nil
	}

	reports := make([]recon.Discrepancy, 0, len(accounts))
	for _, acct := range accounts {
		reports = append(reports, recon.BalanceDiscrepancy(acct))
	}

	if asJSON {
		out, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tID\tBANK\tLEDGER\tDIFFERENCE\tPENDING\tUNREVIEWED")
	for _, d := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			d.AccountName, d.AccountID,
			d.BankBalance, d.LedgerBalance, d.Difference, d.PendingFunds,
			d.UnreviewedCount)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, d := range reports {
		if d.Difference == 0 {
			continue
		}
		fmt.Printf("\n%s is off by %s:\n", d.AccountName, d.Difference)
		for _, cause := range d.PossibleCauses {
			fmt.Printf("  - %s\n", cause)
		}
	}

	return nil
}
