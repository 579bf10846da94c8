package payhoa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hoaboard/treasurer/internal/instrumentation"
	"github.com/hoaboard/treasurer/internal/logging"
)

const (
	// MaxPerPage is the largest page size the upstream accepts.
	MaxPerPage = 100
	// maxPageScan bounds fetch-all loops so a runaway pager cannot walk an
	// unbounded transaction history.
	maxPageScan = 100

	maxAttempts      = 3
	maxResponseBytes = 16 << 20
	bodySnippetLimit = 512
)

// SortDirection orders transaction listings by date.
type SortDirection string

const (
	SortDescending SortDirection = "desc"
	SortAscending  SortDirection = "asc"
)

// TransactionQuery selects and pages transactions. Zero values mean
// "unset": nil tri-state filters are omitted, zero dates leave the range
// open, Page 0 requests the first page.
type TransactionQuery struct {
	AccountID  string
	Reviewed   *bool
	Reconciled *bool
	StartDate  Date
	EndDate    Date
	Direction  SortDirection // default newest first
	Page       int           // 1-indexed
	PerPage    int           // default is the server's choice, capped at MaxPerPage
}

// LedgerQuery selects a general ledger page. Both dates are required; the
// report endpoint pages from zero.
type LedgerQuery struct {
	StartDate Date
	EndDate   Date
	Page      int // 0-indexed
	PageSize  int // default MaxPerPage
}

// ClientConfig configures a Client. Every field has a usable default.
type ClientConfig struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *instrumentation.Metrics
	// BackOff supplies the retry schedule for transient upstream failures.
	BackOff func() backoff.BackOff
}

// Client issues read-only queries against the PayHOA API. Sessions come
// from the manager; a request the upstream rejects as unauthenticated
// invalidates the session and is retried once on a fresh login.
type Client struct {
	sessions *SessionManager
	httpc    *http.Client
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	backOff  func() backoff.BackOff
}

// NewClient builds a client on top of sessions.
func NewClient(sessions *SessionManager, cfg ClientConfig) *Client {
	c := &Client{
		sessions: sessions,
		httpc:    cfg.HTTPClient,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		backOff:  cfg.BackOff,
	}
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = logging.WithComponent(c.logger, "payhoa.client")
	if c.backOff == nil {
		c.backOff = defaultBackOff
	}
	return c
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// ListBankAccounts returns every bank account connected to the
// organization. Records the converter cannot use are dropped with a
// warning rather than failing the whole listing.
func (c *Client) ListBankAccounts(ctx context.Context) ([]BankAccount, error) {
	const op = "list_bank_accounts"
	body, err := c.get(ctx, op, "/bank-accounts", nil)
	if err != nil {
		return nil, err
	}
	var raws []rawBankAccount
	if err := decodeJSON(op, body, &raws); err != nil {
		return nil, err
	}
	accounts := make([]BankAccount, 0, len(raws))
	for _, raw := range raws {
		acct, err := toBankAccount(raw)
		if err != nil {
			c.logger.Warn("skipping unusable bank account record", logging.Err(err))
			continue
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// GetBankAccount returns one account by id.
func (c *Client) GetBankAccount(ctx context.Context, accountID string) (*BankAccount, error) {
	const op = "get_bank_account"
	if accountID == "" {
		return nil, invalidInput(op, "account id is required")
	}
	accounts, err := c.ListBankAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].ID == accountID {
			return &accounts[i], nil
		}
	}
	return nil, &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf("bank account %s not found", accountID)}
}

// ListTransactions returns one page of transactions matching the query,
// newest first unless the query says otherwise.
func (c *Client) ListTransactions(ctx context.Context, q TransactionQuery) (*TransactionPage, error) {
	const op = "list_transactions"
	params, err := transactionParams(op, q)
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, op, "/transactions", params)
	if err != nil {
		return nil, err
	}
	var raw rawTransactionPage
	if err := decodeJSON(op, body, &raw); err != nil {
		return nil, err
	}
	page := &TransactionPage{
		Transactions: make([]Transaction, 0, len(raw.Data)),
		Page:         int(raw.CurrentPage),
		LastPage:     int(raw.LastPage),
		PerPage:      int(raw.PerPage),
		Total:        int(raw.Total),
	}
	if page.Page == 0 {
		page.Page = pageOrFirst(q.Page)
	}
	for _, rt := range raw.Data {
		txn, err := toTransaction(rt)
		if err != nil {
			c.logger.Warn("skipping unusable transaction record", logging.Err(err))
			continue
		}
		page.Transactions = append(page.Transactions, txn)
	}
	return page, nil
}

// ListAllTransactions walks every page the query matches and returns the
// concatenation, preserving the server's ordering. The walk is capped at
// maxPageScan pages; hitting the cap logs a truncation warning.
func (c *Client) ListAllTransactions(ctx context.Context, q TransactionQuery) ([]Transaction, error) {
	if q.PerPage == 0 {
		q.PerPage = MaxPerPage
	}
	var all []Transaction
	page := pageOrFirst(q.Page)
	for scanned := 0; scanned < maxPageScan; scanned++ {
		q.Page = page
		pg, err := c.ListTransactions(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, pg.Transactions...)
		if pg.LastPage > 0 && page >= pg.LastPage {
			return all, nil
		}
		// Without last-page metadata a short page is the only end signal.
		if len(pg.Transactions) == 0 || (pg.LastPage == 0 && len(pg.Transactions) < q.PerPage) {
			return all, nil
		}
		page++
	}
	c.logger.Warn("transaction walk truncated at page scan limit",
		slog.Int("pages", maxPageScan), slog.Int("transactions", len(all)))
	return all, nil
}

// BalanceSheet returns the balance sheet as of a date; the zero date means
// today.
func (c *Client) BalanceSheet(ctx context.Context, asOf Date) (*BalanceSheet, error) {
	const op = "balance_sheet"
	if asOf.IsZero() {
		asOf = Today()
	}
	params := url.Values{}
	params.Set("asOfDate", asOf.String())
	body, err := c.get(ctx, op, "/reports/balance-sheet/0", params)
	if err != nil {
		return nil, err
	}
	var raws []rawBalanceSection
	if err := decodeJSON(op, body, &raws); err != nil {
		return nil, err
	}
	sheet := &BalanceSheet{AsOf: asOf}
	for _, raw := range raws {
		sheet.Sections = append(sheet.Sections, toBalanceSheetNode(raw))
	}
	return sheet, nil
}

// GeneralLedger returns one page of general ledger entries for a period.
func (c *Client) GeneralLedger(ctx context.Context, q LedgerQuery) (*LedgerPage, error) {
	const op = "general_ledger"
	if q.StartDate.IsZero() || q.EndDate.IsZero() {
		return nil, invalidInput(op, "start and end dates are required")
	}
	if q.StartDate.After(q.EndDate) {
		return nil, invalidInput(op, "start date %s is after end date %s", q.StartDate, q.EndDate)
	}
	if q.Page < 0 {
		return nil, invalidInput(op, "page must not be negative, got %d", q.Page)
	}
	if q.PageSize == 0 {
		q.PageSize = MaxPerPage
	}
	if q.PageSize < 1 || q.PageSize > MaxPerPage {
		return nil, invalidInput(op, "page size must be between 1 and %d, got %d", MaxPerPage, q.PageSize)
	}
	payload := map[string]any{
		"startDate":      q.StartDate.String(),
		"endDate":        q.EndDate.String(),
		"pageSize":       q.PageSize,
		"page":           q.Page,
		"showMemoColumn": true,
	}
	body, err := c.post(ctx, op, "/reports/general-ledger/json", payload)
	if err != nil {
		return nil, err
	}
	var raw rawLedgerPage
	if err := decodeJSON(op, body, &raw); err != nil {
		return nil, err
	}
	page := &LedgerPage{
		Entries:  make([]LedgerEntry, 0, len(raw.Data)),
		Page:     q.Page,
		PageSize: q.PageSize,
		Total:    int(raw.Total),
	}
	for _, re := range raw.Data {
		entry, err := toLedgerEntry(re)
		if err != nil {
			c.logger.Warn("skipping unusable ledger entry", logging.Err(err))
			continue
		}
		page.Entries = append(page.Entries, entry)
	}
	return page, nil
}

// ReconciliationReport returns the detail of one completed reconciliation,
// including every transaction cleared against the statement.
func (c *Client) ReconciliationReport(ctx context.Context, reconciliationID string) (*ReconciliationReport, error) {
	const op = "reconciliation_report"
	if reconciliationID == "" {
		return nil, invalidInput(op, "reconciliation id is required")
	}
	params := url.Values{}
	params.Set("reconciliation", reconciliationID)
	body, err := c.get(ctx, op, "/reports/reconciliations/0", params)
	if err != nil {
		return nil, err
	}
	var raw rawReconciliationReport
	if err := decodeJSON(op, body, &raw); err != nil {
		return nil, err
	}
	report := toReconciliationReport(reconciliationID, raw)
	if report.ClearedCount == 0 {
		report.ClearedCount = len(report.Cleared)
	}
	return &report, nil
}

// ReconciliationHistory returns the account's completed reconciliations,
// newest statement first.
func (c *Client) ReconciliationHistory(ctx context.Context, accountID string) ([]ReconciliationRecord, error) {
	acct, err := c.GetBankAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	records := make([]ReconciliationRecord, len(acct.Reconciliations))
	copy(records, acct.Reconciliations)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StatementDate.After(records[j].StatementDate)
	})
	return records, nil
}

// FindTransaction locates a transaction by id, walking the listing newest
// first. The walk shares the page scan cap, so very old transactions may
// report not found.
func (c *Client) FindTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	const op = "find_transaction"
	if transactionID == "" {
		return nil, invalidInput(op, "transaction id is required")
	}
	q := TransactionQuery{PerPage: MaxPerPage}
	for page := 1; page <= maxPageScan; page++ {
		q.Page = page
		pg, err := c.ListTransactions(ctx, q)
		if err != nil {
			return nil, err
		}
		for i := range pg.Transactions {
			if pg.Transactions[i].ID == transactionID {
				txn := pg.Transactions[i]
				return &txn, nil
			}
		}
		if len(pg.Transactions) == 0 || (pg.LastPage > 0 && page >= pg.LastPage) {
			break
		}
	}
	return nil, &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf("transaction %s not found", transactionID)}
}

// transactionParams validates the query and renders it as URL parameters.
func transactionParams(op string, q TransactionQuery) (url.Values, error) {
	if q.Page < 0 {
		return nil, invalidInput(op, "page must not be negative, got %d", q.Page)
	}
	if q.PerPage < 0 || q.PerPage > MaxPerPage {
		return nil, invalidInput(op, "per page must be between 1 and %d, got %d", MaxPerPage, q.PerPage)
	}
	if !q.StartDate.IsZero() && !q.EndDate.IsZero() && q.StartDate.After(q.EndDate) {
		return nil, invalidInput(op, "start date %s is after end date %s", q.StartDate, q.EndDate)
	}
	direction := q.Direction
	switch direction {
	case "":
		direction = SortDescending
	case SortAscending, SortDescending:
	default:
		return nil, invalidInput(op, "direction must be %q or %q, got %q", SortAscending, SortDescending, direction)
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(pageOrFirst(q.Page)))
	if q.PerPage > 0 {
		params.Set("perPage", strconv.Itoa(q.PerPage))
	}
	params.Set("column", "transactionDate")
	params.Set("direction", string(direction))

	filters := map[string]any{}
	if q.AccountID != "" {
		// The backend compares the account filter numerically.
		if n, err := strconv.Atoi(q.AccountID); err == nil {
			filters["account"] = n
		} else {
			filters["account"] = q.AccountID
		}
	}
	if q.Reviewed != nil {
		filters["reviewed"] = *q.Reviewed
	}
	if q.Reconciled != nil {
		filters["reconciled"] = *q.Reconciled
	}
	if !q.StartDate.IsZero() {
		filters["startDate"] = q.StartDate.String()
	}
	if !q.EndDate.IsZero() {
		filters["endDate"] = q.EndDate.String()
	}
	if len(filters) > 0 {
		encoded, err := json.Marshal(filters)
		if err != nil {
			return nil, invalidInput(op, "encode filters: %v", err)
		}
		params.Set("filters", string(encoded))
	}
	return params, nil
}

func pageOrFirst(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, op, http.MethodGet, path, query, nil)
}

func (c *Client) post(ctx context.Context, op, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, invalidInput(op, "encode request body: %v", err)
	}
	return c.do(ctx, op, http.MethodPost, path, nil, encoded)
}

// do runs one logical API operation, recording its outcome.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload []byte) ([]byte, error) {
	start := time.Now()
	body, err := c.exchange(ctx, op, method, path, query, payload)
	elapsed := time.Since(start)

	status := logging.StatusSuccess
	if err != nil {
		status = logging.StatusError
	}
	if c.metrics != nil {
		c.metrics.RecordAPIOperation(ctx, op, status, elapsed)
	}
	if err != nil {
		c.logger.Warn("api operation failed",
			logging.Operation(op), logging.Duration(elapsed), logging.Err(err))
		return nil, err
	}
	c.logger.Debug("api operation",
		logging.Operation(op), logging.Duration(elapsed))
	return body, nil
}

// exchange acquires a session and performs the request. When the upstream
// rejects the session, it is invalidated and the request retried exactly
// once on a fresh login; a second rejection surfaces to the caller.
func (c *Client) exchange(ctx context.Context, op, method, path string, query url.Values, payload []byte) ([]byte, error) {
	sess, err := c.sessions.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.attempt(ctx, op, method, path, query, payload, sess)
	if err == nil || !IsKind(err, KindAuthenticationFailed) {
		return body, err
	}

	c.logger.Info("session rejected by upstream, retrying with a fresh login",
		logging.Operation(op))
	c.sessions.Invalidate(ctx, sess)
	sess, err = c.sessions.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return c.attempt(ctx, op, method, path, query, payload, sess)
}

// attempt performs the request with bounded retries. Transport failures
// and 5xx responses are retried on the backoff schedule; auth rejections,
// other 4xx responses, and context cancellation stop immediately.
func (c *Client) attempt(ctx context.Context, op, method, path string, query url.Values, payload []byte, sess *Session) ([]byte, error) {
	operation := func() ([]byte, error) {
		req, err := c.newRequest(ctx, op, method, path, query, payload, sess)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, &Error{Kind: KindUpstreamUnavailable, Op: op, Err: err}
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, &Error{Kind: KindUpstreamUnavailable, Op: op, Err: err}
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, backoff.Permanent(&Error{Kind: KindAuthenticationFailed, Op: op, Status: resp.StatusCode, Body: trimBody(body)})
		case resp.StatusCode >= 500:
			return nil, &Error{Kind: KindUpstreamUnavailable, Op: op, Status: resp.StatusCode, Body: trimBody(body)}
		case resp.StatusCode >= 400:
			return nil, backoff.Permanent(&Error{Kind: KindUpstreamRejected, Op: op, Status: resp.StatusCode, Body: trimBody(body)})
		}
		return body, nil
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxTries(maxAttempts))
}

// newRequest builds an authenticated request the backend accepts as
// browser traffic: bearer token, site id, app origin, and the session
// cookies.
func (c *Client) newRequest(ctx context.Context, op, method, path string, query url.Values, payload []byte, sess *Session) (*http.Request, error) {
	target := c.sessions.BaseURL() + apiPath(sess.OrganizationID, path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+sess.BearerToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-legfi-site-id", strconv.Itoa(siteID))
	req.Header.Set("Origin", c.sessions.AppURL())
	req.Header.Set("Referer", c.sessions.AppURL()+"/")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range sess.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req, nil
}

// apiPath scopes path to the organization unless it already is.
func apiPath(orgID, path string) string {
	if strings.HasPrefix(path, "/organizations") {
		return path
	}
	return "/organizations/" + orgID + path
}

func decodeJSON(op string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &Error{Kind: KindMalformedResponse, Op: op, Err: err, Body: trimBody(body)}
	}
	return nil
}

// trimBody keeps a short prefix of an upstream body for error context.
func trimBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= bodySnippetLimit {
		return s
	}
	return strings.ToValidUTF8(s[:bodySnippetLimit], "") + "..."
}
