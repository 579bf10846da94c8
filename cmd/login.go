package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hoaboard/treasurer/internal/logging"
	"github.com/hoaboard/treasurer/internal/payhoa"
)

func newLoginCmd() *cobra.Command {
	var (
		debugMode   bool
		sessionFile string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to PayHOA and cache the session",
		Long: `Sign in to PayHOA with the configured credentials and cache the
resulting session on disk, replacing any previously cached session.

Credentials come from the PAYHOA_EMAIL and PAYHOA_PASSWORD environment
variables (a .env file in the working directory is honored), or from the
1Password CLI when the environment is not set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(debugMode, sessionFile)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&sessionFile, "session-file", "", "Path of the session cache file (default: user cache dir, or TREASURER_SESSION_FILE)")

	return cmd
}

func runLogin(debugMode bool, sessionFile string) error {
	configureLogging(debugMode)

	ctx := context.Background()

	serverContext, store, err := buildServerContext(ctx, sessionFile)
	if err != nil {
		return err
	}
	defer func() { _ = serverContext.Shutdown() }()

	sessions, err := serverContext.Sessions()
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	session, err := sessions.ForceLogin(ctx)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Printf("Logged in to organization %s\n", session.OrganizationID)
	fmt.Printf("  Token:   %s\n", logging.SanitizeToken(session.BearerToken))
	if session.ExpiresAt != nil {
		fmt.Printf("  Expires: %s\n", session.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Printf("  Expires: unknown (valid until rejected)\n")
	}
	if fs, ok := store.(*payhoa.FileStore); ok {
		fmt.Printf("  Cached:  %s\n", fs.Path())
	} else {
		fmt.Printf("  Cached:  in memory only\n")
	}

	return nil
}
