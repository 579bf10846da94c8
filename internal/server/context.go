package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hoaboard/treasurer/internal/instrumentation"
	"github.com/hoaboard/treasurer/internal/logging"
	"github.com/hoaboard/treasurer/internal/payhoa"
)

// ContextConfig configures a ServerContext. Credentials is required;
// everything else has a usable default.
type ContextConfig struct {
	// Credentials resolves the PayHOA login credentials when a session
	// has to be established.
	Credentials payhoa.CredentialResolver

	// Store persists sessions across restarts. Nil keeps the session in
	// memory for the lifetime of the process.
	Store payhoa.Store

	// BaseURL and AppURL override the PayHOA endpoints, mainly for tests.
	BaseURL string
	AppURL  string

	// HTTPClient is shared by the session manager and the API client.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// ServerContext holds the shared state for the MCP server: the PayHOA
// session manager, the API client built on top of it, and the
// instrumentation hooks tools report through.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg    ContextConfig
	logger *slog.Logger

	mu          sync.RWMutex
	sessions    *payhoa.SessionManager
	client      *payhoa.Client
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	shutdown    bool
}

// NewServerContext creates a new server context. The PayHOA client is
// built lazily on first use so that metrics and audit logging attached
// after construction are picked up.
func NewServerContext(ctx context.Context, cfg ContextConfig) (*ServerContext, error) {
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("server context requires a credential resolver")
	}

	shutdownCtx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		cfg:    cfg,
		logger: logging.WithComponent(logger, "server"),
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Logger returns the server's logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Sessions returns the PayHOA session manager, creating it on first use.
func (sc *ServerContext) Sessions() (*payhoa.SessionManager, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sessionsLocked()
}

func (sc *ServerContext) sessionsLocked() (*payhoa.SessionManager, error) {
	if sc.sessions != nil {
		return sc.sessions, nil
	}

	sessions, err := payhoa.NewSessionManager(payhoa.SessionConfig{
		Credentials: sc.cfg.Credentials,
		Store:       sc.cfg.Store,
		HTTPClient:  sc.cfg.HTTPClient,
		BaseURL:     sc.cfg.BaseURL,
		AppURL:      sc.cfg.AppURL,
		Logger:      sc.logger,
		Metrics:     sc.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	sc.sessions = sessions
	return sessions, nil
}

// Client returns the PayHOA API client, creating it (and the session
// manager beneath it) on first use. Creation does not touch the network;
// the first API call establishes the session.
func (sc *ServerContext) Client() (*payhoa.Client, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.client != nil {
		return sc.client, nil
	}

	sessions, err := sc.sessionsLocked()
	if err != nil {
		return nil, err
	}

	sc.client = payhoa.NewClient(sessions, payhoa.ClientConfig{
		HTTPClient: sc.cfg.HTTPClient,
		Logger:     sc.logger,
		Metrics:    sc.metrics,
	})
	return sc.client, nil
}

// SetClient replaces the PayHOA client, primarily for tests.
func (sc *ServerContext) SetClient(client *payhoa.Client) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.client = client
}

// CredentialsAvailable reports whether the credential resolver believes
// it can produce credentials, for resolvers that can tell without
// actually resolving. Resolvers that cannot tell are assumed available.
func (sc *ServerContext) CredentialsAvailable() bool {
	type availabilityChecker interface{ Available() bool }
	if c, ok := sc.cfg.Credentials.(availabilityChecker); ok {
		return c.Available()
	}
	return sc.cfg.Credentials != nil
}

// Organization returns the organization id of the active session,
// establishing a session if none is usable yet.
func (sc *ServerContext) Organization(ctx context.Context) (string, error) {
	sessions, err := sc.Sessions()
	if err != nil {
		return "", err
	}
	sess, err := sessions.Ensure(ctx)
	if err != nil {
		return "", err
	}
	return sess.OrganizationID, nil
}

// SetMetrics sets the metrics recorder for tool instrumentation.
// Call this before the first Client() use so the PayHOA layers pick it up.
func (sc *ServerContext) SetMetrics(metrics *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = metrics
}

// Metrics returns the metrics recorder, or nil if instrumentation is
// disabled.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger for tool invocations.
func (sc *ServerContext) SetAuditLogger(auditLogger *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = auditLogger
}

// AuditLogger returns the audit logger, or nil if audit logging is
// disabled.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
