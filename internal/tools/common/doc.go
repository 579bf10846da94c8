// Package common provides shared utilities for MCP tool implementations:
// argument extraction helpers (strings, dates, monetary amounts) and the
// instrumentation wrapper that records metrics and audit entries around
// every tool handler.
package common
