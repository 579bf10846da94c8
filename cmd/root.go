package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the treasurer application
var rootCmd = &cobra.Command{
	Use:   "treasurer",
	Short: "Read-only MCP server for PayHOA accounting data",
	Long: `treasurer signs in to the PayHOA private API with the credentials of a
real login, caches the resulting session on disk, and exposes read-only
accounting queries (account balances, transactions, ledger reports, and
reconciliation checks) as MCP tools for AI assistants.

It can run as:
  - An MCP (Model Context Protocol) server over stdio or HTTP (default)
  - A CLI for session management (login) and quick balance checks (status)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "treasurer version %s\n" .Version}}`)

	// A .env file in the working directory may supply PAYHOA_* variables
	// during development. Absence is normal.
	_ = godotenv.Load()

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
