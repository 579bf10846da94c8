// Package cmd implements the command-line interface for treasurer.
//
// This package provides the following commands:
//   - serve: Start the MCP server exposing read-only PayHOA accounting tools
//   - login: Sign in to PayHOA and cache the session on disk
//   - status: Show bank account balances and bank/ledger discrepancies
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The serve command is the default command when no subcommand is specified.
package cmd
