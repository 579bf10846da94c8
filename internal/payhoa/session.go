package payhoa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/hoaboard/treasurer/internal/instrumentation"
	"github.com/hoaboard/treasurer/internal/logging"
)

const (
	// DefaultBaseURL is the PayHOA API origin.
	DefaultBaseURL = "https://core.payhoa.com"
	// DefaultAppURL is the web app origin, sent as Origin/Referer so the
	// backend accepts the requests as browser traffic.
	DefaultAppURL = "https://app.payhoa.com"

	// siteID identifies the hosted PayHOA app to the shared LegFi backend,
	// sent both as a header and in the login body.
	siteID = 2

	csrfCookieName = "XSRF-TOKEN"
	csrfPath       = "/sanctum/csrf-cookie"
	loginPath      = "/login"

	// expiryMargin renews sessions slightly early so a request issued just
	// before the cutoff does not ride an expiring token.
	expiryMargin = time.Minute

	defaultHTTPTimeout = 30 * time.Second
)

// SessionConfig configures a SessionManager. Credentials is required;
// everything else has a usable default.
type SessionConfig struct {
	Credentials CredentialResolver
	Store       Store // nil keeps the session in memory only
	HTTPClient  *http.Client
	BaseURL     string
	AppURL      string
	Logger      *slog.Logger
	Metrics     *instrumentation.Metrics
	Now         func() time.Time
}

// SessionManager owns the authenticated session: it loads a saved one,
// logs in when none is usable, and coalesces concurrent login attempts so
// the upstream sees at most one credential exchange at a time.
type SessionManager struct {
	creds   CredentialResolver
	store   Store
	httpc   *http.Client
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	baseURL string
	appURL  string
	now     func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	current *Session
	loaded  bool
}

// NewSessionManager builds a manager from cfg.
func NewSessionManager(cfg SessionConfig) (*SessionManager, error) {
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("session manager requires a credential resolver")
	}
	m := &SessionManager{
		creds:   cfg.Credentials,
		store:   cfg.Store,
		httpc:   cfg.HTTPClient,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		baseURL: normalizeOrigin(cfg.BaseURL, DefaultBaseURL),
		appURL:  normalizeOrigin(cfg.AppURL, DefaultAppURL),
		now:     cfg.Now,
	}
	if m.httpc == nil {
		m.httpc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = logging.WithComponent(m.logger, "payhoa.session")
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

func normalizeOrigin(u, fallback string) string {
	if u == "" {
		return fallback
	}
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}

// BaseURL returns the API origin requests are issued against.
func (m *SessionManager) BaseURL() string { return m.baseURL }

// AppURL returns the web app origin used for Origin/Referer headers.
func (m *SessionManager) AppURL() string { return m.appURL }

// Ensure returns a usable session: the cached one when it is still valid
// (no network involved), otherwise the result of a login. Concurrent
// callers share a single login.
func (m *SessionManager) Ensure(ctx context.Context) (*Session, error) {
	if sess := m.usable(ctx); sess != nil {
		return sess, nil
	}
	return m.login(ctx)
}

// ForceLogin discards any held session and performs a fresh login.
func (m *SessionManager) ForceLogin(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	m.current = nil
	m.loaded = true
	m.mu.Unlock()
	return m.login(ctx)
}

// Invalidate drops a session the upstream rejected. The rejected pointer
// guards against races: when a concurrent login already replaced the
// session, the newer one is left in place.
func (m *SessionManager) Invalidate(ctx context.Context, rejected *Session) {
	m.mu.Lock()
	if rejected != nil && m.current != rejected {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordSessionRefresh(ctx, "rejected")
	}
	if m.store != nil {
		if err := m.store.Clear(); err != nil {
			m.logger.Warn("could not clear saved session", logging.Err(err))
		}
	}
	m.logger.Info("session invalidated after upstream rejection")
}

// usable returns the held session when it is still valid, loading the
// store on first use. Expired or unusable sessions are dropped.
func (m *SessionManager) usable(ctx context.Context) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		m.loaded = true
		if m.store != nil {
			sess, err := m.store.Load()
			switch {
			case err != nil:
				m.logger.Warn("saved session unusable, will log in fresh", logging.Err(err))
			case sess != nil:
				m.logger.Debug("loaded saved session",
					logging.Organization(sess.OrganizationID))
				m.current = sess
			}
		}
	}

	if m.current == nil {
		return nil
	}
	if m.current.Expired(m.now(), expiryMargin) {
		m.logger.Info("session expired, logging in again",
			logging.Organization(m.current.OrganizationID))
		if m.metrics != nil {
			m.metrics.RecordSessionRefresh(ctx, "expired")
		}
		m.current = nil
		return nil
	}
	return m.current
}

// login performs the credential exchange, deduplicated across goroutines.
// The session is persisted on success; a store failure downgrades to an
// in-memory session rather than failing the login.
func (m *SessionManager) login(ctx context.Context) (*Session, error) {
	v, err, _ := m.group.Do("login", func() (any, error) {
		if sess := m.usable(ctx); sess != nil {
			return sess, nil
		}
		sess, err := m.performLogin(ctx)
		if err != nil {
			if m.metrics != nil {
				m.metrics.RecordLogin(ctx, "error")
			}
			return nil, err
		}
		if m.metrics != nil {
			m.metrics.RecordLogin(ctx, "success")
		}
		m.mu.Lock()
		m.current = sess
		m.loaded = true
		m.mu.Unlock()
		if m.store != nil {
			if err := m.store.Save(sess); err != nil {
				m.logger.Warn("session not persisted, continuing in memory", logging.Err(err))
			}
		}
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// performLogin runs the two-step exchange: fetch a CSRF token, then post
// the credentials. A throwaway cookie jar isolates the handshake from any
// shared client state.
func (m *SessionManager) performLogin(ctx context.Context) (*Session, error) {
	start := m.now()
	creds, err := m.creds.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, &Error{Kind: KindAuthenticationFailed, Op: "login", Err: err}
	}
	client := &http.Client{
		Transport: m.httpc.Transport,
		Timeout:   m.httpc.Timeout,
		Jar:       jar,
	}

	csrf, err := m.fetchCSRFToken(ctx, client)
	if err != nil {
		return nil, err
	}
	sess, err := m.postLogin(ctx, client, creds, csrf)
	if err != nil {
		return nil, err
	}

	m.logger.Info("logged in to PayHOA",
		logging.UserHash(creds.Email),
		logging.Organization(sess.OrganizationID),
		logging.Duration(m.now().Sub(start)))
	return sess, nil
}

// fetchCSRFToken primes the cookie jar via the sanctum endpoint and
// returns the decoded XSRF token.
func (m *SessionManager) fetchCSRFToken(ctx context.Context, client *http.Client) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+csrfPath, nil)
	if err != nil {
		return "", &Error{Kind: KindAuthenticationFailed, Op: "fetch_csrf", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", m.appURL)
	req.Header.Set("Referer", m.appURL+"/")

	resp, err := client.Do(req)
	if err != nil {
		return "", &Error{Kind: KindAuthenticationFailed, Op: "fetch_csrf", Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return "", &Error{Kind: KindAuthenticationFailed, Op: "fetch_csrf", Status: resp.StatusCode, Body: trimBody(body)}
	}
	token := m.csrfFromJar(client.Jar)
	if token == "" {
		return "", &Error{Kind: KindAuthenticationFailed, Op: "fetch_csrf", Err: fmt.Errorf("response set no %s cookie", csrfCookieName)}
	}
	return token, nil
}

// csrfFromJar returns the URL-decoded XSRF cookie currently in the jar, or
// "" when none is set. The cookie value is percent-encoded on the wire but
// the x-xsrf-token header wants the decoded form.
func (m *SessionManager) csrfFromJar(jar http.CookieJar) string {
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return ""
	}
	for _, c := range jar.Cookies(u) {
		if c.Name != csrfCookieName {
			continue
		}
		if decoded, err := url.QueryUnescape(c.Value); err == nil {
			return decoded
		}
		return c.Value
	}
	return ""
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	SiteID   int    `json:"siteId"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// postLogin exchanges the credentials for a bearer token and assembles the
// session from the token claims and the cookies the exchange left behind.
func (m *SessionManager) postLogin(ctx context.Context, client *http.Client, creds Credentials, csrf string) (*Session, error) {
	payload, err := json.Marshal(loginRequest{Email: creds.Email, Password: creds.Password, SiteID: siteID})
	if err != nil {
		return nil, &Error{Kind: KindAuthenticationFailed, Op: "login", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindAuthenticationFailed, Op: "login", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-legfi-site-id", strconv.Itoa(siteID))
	req.Header.Set("x-xsrf-token", csrf)
	req.Header.Set("Origin", m.appURL)
	req.Header.Set("Referer", m.appURL+"/")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindAuthenticationFailed, Op: "login", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Kind: KindAuthenticationFailed, Op: "login", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindAuthenticationFailed, Op: "login", Status: resp.StatusCode, Body: trimBody(body)}
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, &Error{Kind: KindAuthenticationFailed, Op: "login", Err: fmt.Errorf("decode login response: %w", err)}
	}
	if lr.Token == "" {
		return nil, &Error{Kind: KindAuthenticationFailed, Op: "login", Err: fmt.Errorf("login response carried no token")}
	}

	orgID, expiresAt, err := decodeTokenClaims(lr.Token)
	if err != nil {
		return nil, &Error{Kind: KindAuthenticationFailed, Op: "login", Err: err}
	}

	u, err := url.Parse(m.baseURL)
	if err != nil {
		return nil, &Error{Kind: KindAuthenticationFailed, Op: "login", Err: err}
	}
	cookies := map[string]string{}
	for _, c := range client.Jar.Cookies(u) {
		cookies[c.Name] = c.Value
	}

	// The login response usually rotates the CSRF cookie; prefer the
	// rotated value for subsequent requests.
	if rotated := m.csrfFromJar(client.Jar); rotated != "" {
		csrf = rotated
	}

	m.logger.Debug("bearer token issued",
		slog.String("token", logging.SanitizeToken(lr.Token)),
		logging.Organization(orgID))

	return &Session{
		BearerToken:    lr.Token,
		CSRFToken:      csrf,
		Cookies:        cookies,
		OrganizationID: orgID,
		ExpiresAt:      expiresAt,
	}, nil
}

// payhoaClaims is the subset of the bearer token's claims the client
// needs. The token is decoded without signature verification: it came over
// TLS from the issuer and is only read locally for routing, never trusted
// for authorization decisions.
type payhoaClaims struct {
	Legfi struct {
		OrgID json.Number `json:"orgId"`
	} `json:"legfi"`
	jwt.RegisteredClaims
}

func decodeTokenClaims(token string) (orgID string, expiresAt *time.Time, err error) {
	claims := &payhoaClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", nil, fmt.Errorf("decode bearer token: %w", err)
	}
	orgID = claims.Legfi.OrgID.String()
	if orgID == "" {
		return "", nil, fmt.Errorf("bearer token carries no organization id")
	}
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		expiresAt = &t
	}
	return orgID, expiresAt, nil
}
