// Package resources provides MCP resources exposing read-only session and
// account data. Resources are data sources MCP clients can fetch without a
// tool call, such as the authenticated organization and the set of
// connected bank accounts.
package resources
