// Package server provides the MCP server context, the HTTP and metrics
// servers, and health checking for the treasurer application.
//
// # Key Components
//
// ServerContext owns the PayHOA session manager and the API client built
// on top of it. The client is created lazily on first use so that
// metrics and audit logging attached after startup are picked up; tool
// handlers fetch it per invocation via Client().
//
// HTTPServer exposes the MCP server over SSE or streamable HTTP. The
// tools it serves are read-only, but they reach private financial data,
// so the server carries no authentication layer of its own and is meant
// to bind to localhost or sit behind an authenticating proxy.
//
// MetricsServer serves Prometheus metrics on a dedicated port, keeping
// operational data off the MCP listener.
//
// HealthChecker implements Kubernetes-style probes. Readiness fails when
// the context is shutting down or the PayHOA credential source is
// misconfigured, so broken deployments surface before the first tool
// call.
package server
