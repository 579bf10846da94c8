package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/hoaboard/treasurer/internal/instrumentation"
	"github.com/hoaboard/treasurer/internal/logging"
	"github.com/hoaboard/treasurer/internal/payhoa"
	"github.com/hoaboard/treasurer/internal/resources"
	"github.com/hoaboard/treasurer/internal/server"
	"github.com/hoaboard/treasurer/internal/tools/payhoa_tools"
)

// MetricsConfig holds metrics server settings
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

func newServeCmd() *cobra.Command {
	var (
		debugMode      bool
		transport      string
		httpAddr       string
		sessionFile    string
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run as an MCP server for AI assistants",
		Long: `Run treasurer as a Model Context Protocol (MCP) server.

This allows AI assistants to query PayHOA accounting data through a set of
read-only tools: bank account balances, transactions, the general ledger,
balance sheets, and reconciliation checks.

The server authenticates lazily: it starts without touching the network and
signs in on the first tool call that needs the API, reusing a cached session
from disk when one is still valid.

Credentials come from the PAYHOA_EMAIL and PAYHOA_PASSWORD environment
variables (a .env file in the working directory is honored), or from the
1Password CLI when the environment is not set.

The server supports two transport types:
  - stdio: Standard input/output (default, for Claude Desktop and similar)
  - streamable-http: Streamable HTTP transport with health endpoints`,
		RunE: func(cmd *cobra.Command, args []string) error {
			metricsConfig := MetricsConfig{
				Enabled: metricsEnabled,
				Addr:    metricsAddr,
			}
			return runServe(transport, debugMode, httpAddr, sessionFile, metricsConfig)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().StringVar(&sessionFile, "session-file", "", "Path of the session cache file (default: user cache dir, or TREASURER_SESSION_FILE)")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", false, "Enable Prometheus metrics server (or METRICS_ENABLED=true)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address (or METRICS_ADDR)")

	return cmd
}

func runServe(transport string, debugMode bool, httpAddr, sessionFile string, metricsConfig MetricsConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	configureLogging(debugMode)

	// Load metrics config from environment if not set via flags
	if !metricsConfig.Enabled && os.Getenv("METRICS_ENABLED") == "true" {
		metricsConfig.Enabled = true
	}
	if metricsConfig.Addr == "" || metricsConfig.Addr == ":9090" {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			metricsConfig.Addr = addr
		}
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			// Don't log to stdout in stdio mode as it corrupts the protocol
			if transport != "stdio" {
				log.Printf("Error during instrumentation shutdown: %v", err)
			}
		}
	}()

	// Start metrics server if enabled and not in stdio mode
	var metricsServer *server.MetricsServer
	if transport != "stdio" && metricsConfig.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsConfig.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Wait for the listener to come up so a bad address fails the
		// command instead of surfacing later as a missing endpoint.
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			log.Printf("Metrics server listening on %s", metricsServer.Addr())
		case err := <-metricsErr:
			if err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}
		case <-time.After(5 * time.Second):
			return fmt.Errorf("timed out waiting for metrics server to start on %s", metricsConfig.Addr)
		}
	}

	// Create the server context. This fails fast when no credential source
	// is configured but performs no network I/O.
	serverContext, _, err := buildServerContext(shutdownCtx, sessionFile)
	if err != nil {
		return err
	}
	defer func() {
		if metricsServer != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := metricsServer.Shutdown(stopCtx); err != nil {
				log.Printf("Error during metrics server shutdown: %v", err)
			}
		}
		if err := serverContext.Shutdown(); err != nil {
			if transport != "stdio" {
				log.Printf("Error during server context shutdown: %v", err)
			}
		}
	}()

	if provider.Enabled() {
		serverContext.SetMetrics(provider.Metrics())
		serverContext.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(slog.Default(), instrConfig.AuditLogging))
	}

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("treasurer", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)

	// Register all tools and resources
	if err := registerAllTools(mcpSrv, serverContext); err != nil {
		return err
	}

	// Start the appropriate server based on transport type
	switch transport {
	case "stdio":
		return runStdioServer(shutdownCtx, mcpSrv)
	case "streamable-http":
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, provider, httpAddr, metricsConfig)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", transport)
	}
}

// configureLogging sets the process-wide slog default. Output always goes
// to stderr so the stdio transport stays clean.
func configureLogging(debugMode bool) {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// buildServerContext wires the credential source and session store into a
// server context. The returned store is the one the context persists
// sessions to; it is nil when no cache location could be resolved.
func buildServerContext(ctx context.Context, sessionFile string) (*server.ServerContext, payhoa.Store, error) {
	store := resolveSessionStore(sessionFile)

	serverContext, err := server.NewServerContext(ctx, server.ContextConfig{
		Credentials: payhoa.NewCredentialSource(logging.NewSlogAdapter(slog.Default())),
		Store:       store,
		BaseURL:     os.Getenv("PAYHOA_BASE_URL"),
		AppURL:      os.Getenv("PAYHOA_APP_URL"),
		Logger:      slog.Default(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create server context: %w", err)
	}

	if !serverContext.CredentialsAvailable() {
		_ = serverContext.Shutdown()
		return nil, nil, fmt.Errorf("no credential source available: set %s and %s (a .env file is honored) or install the 1Password CLI", payhoa.EnvEmail, payhoa.EnvPassword)
	}

	return serverContext, store, nil
}

// resolveSessionStore picks the session cache location: the --session-file
// flag, then TREASURER_SESSION_FILE, then the user cache directory. A nil
// store means the session lives in memory only.
func resolveSessionStore(sessionFile string) payhoa.Store {
	if sessionFile == "" {
		sessionFile = os.Getenv("TREASURER_SESSION_FILE")
	}
	if sessionFile == "" {
		path, err := payhoa.DefaultSessionPath()
		if err != nil {
			slog.Warn("Session cache disabled, sessions will not survive restarts", logging.Err(err))
			return nil
		}
		sessionFile = path
	}
	return payhoa.NewFileStore(sessionFile)
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, ctx *server.ServerContext) error {
	// Define all tool registrations
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "PayHOA",
			register: func() error {
				return payhoa_tools.RegisterPayhoaTools(mcpSrv, ctx)
			},
		},
		{
			name: "Resources",
			register: func() error {
				return resources.RegisterPayhoaResources(mcpSrv, ctx)
			},
		},
	}

	// Register all tools
	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	// Run server in a goroutine so we can handle shutdown signals
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- mcpserver.ServeStdio(mcpSrv)
	}()

	select {
	case <-ctx.Done():
		// Graceful shutdown requested. Stdio has no listener to drain;
		// returning lets the deferred cleanup persist state.
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("stdio server error: %w", err)
		}
		return nil
	}
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, serverContext *server.ServerContext, provider *instrumentation.Provider, httpAddr string, metricsConfig MetricsConfig) error {
	httpServer, err := server.NewHTTPServer(mcpSrv, "streamable-http")
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	healthChecker := server.NewHealthChecker(serverContext)
	httpServer.SetHealthChecker(healthChecker)
	if provider.Enabled() {
		httpServer.SetMetrics(provider.Metrics())
	}

	fmt.Printf("Starting treasurer MCP server (streamable-http) on %s\n", httpAddr)
	fmt.Printf("  MCP endpoint:  http://localhost%s/mcp\n", httpAddr)
	fmt.Printf("  Liveness:      http://localhost%s/healthz\n", httpAddr)
	fmt.Printf("  Readiness:     http://localhost%s/readyz\n", httpAddr)
	if metricsConfig.Enabled && provider.Enabled() {
		fmt.Printf("  Metrics:       http://localhost%s/metrics\n", metricsConfig.Addr)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- httpServer.Start(httpAddr)
	}()
	healthChecker.SetReady(true)

	select {
	case <-ctx.Done():
		healthChecker.SetReady(false)
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		if err := httpServer.Shutdown(stopCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		return nil
	case err := <-serverDone:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	}
}
