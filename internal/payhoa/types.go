package payhoa

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Session is the authenticated state produced by a login. The invariant is
// fully-populated-or-absent: a Session value in circulation always carries
// every field below (ExpiresAt excepted, since the upstream does not always
// declare one).
type Session struct {
	BearerToken    string            `json:"bearerToken"`
	CSRFToken      string            `json:"csrfToken"`
	Cookies        map[string]string `json:"cookies"`
	OrganizationID string            `json:"organizationId"`
	ExpiresAt      *time.Time        `json:"expiresAt,omitempty"`
}

// Complete reports whether every required field is populated.
func (s *Session) Complete() bool {
	return s != nil &&
		s.BearerToken != "" &&
		s.CSRFToken != "" &&
		s.OrganizationID != "" &&
		s.Cookies != nil
}

// Expired reports whether the session's declared expiry has passed, judged
// margin early so an in-flight request does not race the cutoff. Sessions
// without a declared expiry are assumed valid until the upstream rejects
// them.
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	if s.ExpiresAt == nil {
		return false
	}
	return !now.Add(margin).Before(*s.ExpiresAt)
}

// BankAccount is one bank account connected to the organization, carrying
// both the bank-reported balance and the ledger's view of it. Balance
// pointers are nil when the upstream omits the value; absent is never
// conflated with zero.
type BankAccount struct {
	ID              string
	Name            string
	Last4           string
	Institution     string
	BankBalance     *Cents // reported by the bank feed
	LedgerBalance   *Cents // the ledger asset account's balance
	PendingFunds    *Cents // deposits in transit, not yet settled
	UnreviewedCount int
	LastSynced      *time.Time
	Reconciliations []ReconciliationRecord
}

// ReconciliationRecord summarizes one completed bank reconciliation.
type ReconciliationRecord struct {
	ID                     string
	StartDate              Date
	StatementDate          Date // end of the statement period
	StartingBalance        *Cents
	StatementEndingBalance *Cents
	TotalDeposits          *Cents
	TotalPayments          *Cents
	CompletedAt            *time.Time
}

// Transaction is one ledger-visible bank transaction. Amount is signed with
// the ledger's orientation: positive is money in, negative is money out.
// OriginalAmount preserves the raw bank-feed value, which uses the opposite
// polarity (negative means inflow); sign-error analysis consults both.
type Transaction struct {
	ID               string
	Date             Date
	Amount           Cents
	OriginalAmount   *Cents
	Description      string
	Memo             string
	CategoryID       string
	BankAccountID    string
	Pending          bool
	Approved         bool
	Reviewed         bool
	Reconciled       bool
	ReconciliationID string
	JournalEntry     bool
	SplitCount       int
}

// IsCredit reports whether the transaction moves money in.
func (t Transaction) IsCredit() bool { return t.Amount > 0 }

// IsDebit reports whether the transaction moves money out.
func (t Transaction) IsDebit() bool { return t.Amount < 0 }

// SignLabel is the human reading of the amount's direction.
func (t Transaction) SignLabel() string {
	switch {
	case t.Amount > 0:
		return "CREDIT (money IN)"
	case t.Amount < 0:
		return "DEBIT (money OUT)"
	default:
		return "ZERO"
	}
}

// TransactionPage is one page of a transaction listing.
type TransactionPage struct {
	Transactions []Transaction
	Page         int // 1-indexed
	LastPage     int
	PerPage      int
	Total        int
}

// LedgerEntry is one line of the general ledger report. Debit and credit
// columns are zero when the entry posts to the other side; RunningBalance
// is nil when the report omits the column.
type LedgerEntry struct {
	ID             string
	Date           Date
	AccountID      string
	AccountName    string
	Debit          Cents
	Credit         Cents
	RunningBalance *Cents
	Description    string
	Reference      string
	Memo           string
}

// LedgerPage is one page of general ledger entries.
type LedgerPage struct {
	Entries  []LedgerEntry
	Page     int // 0-indexed, as requested
	PageSize int
	Total    int
}

// BalanceSheetNode is one labeled line of the balance sheet tree. Leaf
// accounts appear as children without children of their own. The upstream
// guarantees parent totals equal the sum of their leaves; this client does
// not re-verify that.
type BalanceSheetNode struct {
	Label    string
	Amount   *Cents
	Children []BalanceSheetNode
}

// BalanceSheet is the full report as of a date.
type BalanceSheet struct {
	AsOf     Date
	Sections []BalanceSheetNode
}

// ClearedTransaction is one cleared line of a reconciliation report.
type ClearedTransaction struct {
	ID          string
	Date        Date
	Description string
	Amount      Cents
}

// ReconciliationReport is the detail view of one reconciliation: the
// statement-period balances plus every transaction cleared against the
// statement.
type ReconciliationReport struct {
	ID              string
	StartDate       Date
	EndDate         Date
	StartingBalance *Cents
	EndingBalance   *Cents
	TotalDeposits   *Cents
	TotalPayments   *Cents
	ClearedCount    int
	Cleared         []ClearedTransaction
}

// ClearedTransactionIDs lists the ids of the cleared transactions.
func (r *ReconciliationReport) ClearedTransactionIDs() []string {
	ids := make([]string, 0, len(r.Cleared))
	for _, t := range r.Cleared {
		ids = append(ids, t.ID)
	}
	return ids
}

// flexID tolerates upstream identifiers arriving as JSON numbers or
// strings and normalizes them to strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*f = flexID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }

// flexInt tolerates counters arriving as JSON numbers or quoted numbers.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*f = flexInt(n)
		return nil
	}
	fl, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse integer %q: %w", s, err)
	}
	*f = flexInt(int(fl))
	return nil
}

// Raw wire shapes. Monetary fields are integer cents; optional money is a
// pointer so null and absent survive as nil.

type rawBankAccount struct {
	ID                          flexID              `json:"id"`
	FriendlyName                string              `json:"friendlyName"`
	Last4                       string              `json:"last4"`
	PlaidBalance                *int64              `json:"plaidBalance"`
	PlaidToken                  *rawPlaidToken      `json:"plaidToken"`
	FixedAsset                  *rawFixedAsset      `json:"fixedAsset"`
	DepositBankAccount          *rawDepositAccount  `json:"depositBankAccount"`
	UnreviewedTransactionsCount flexInt             `json:"unreviewedTransactionsCount"`
	Reconciliations             []rawReconciliation `json:"reconciliations"`
}

type rawPlaidToken struct {
	Institution            *rawInstitution `json:"institution"`
	TransactionsLastPulled string          `json:"transactionsLastPulled"`
}

type rawInstitution struct {
	Name string `json:"name"`
}

type rawFixedAsset struct {
	Balance *int64 `json:"balance"`
}

type rawDepositAccount struct {
	InternalBalance *int64 `json:"internalBalance"`
	PendingFunds    *int64 `json:"pendingFunds"`
}

type rawReconciliation struct {
	ID              flexID `json:"id"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	StartingBalance *int64 `json:"startingBalance"`
	EndingBalance   *int64 `json:"endingBalance"`
	TotalDeposits   *int64 `json:"totalDeposits"`
	TotalPayments   *int64 `json:"totalPayments"`
	CompletedAt     string `json:"completedAt"`
}

type rawTransaction struct {
	ID                            flexID            `json:"id"`
	TransactionDate               string            `json:"transactionDate"`
	Amount                        *int64            `json:"amount"`
	OriginalAmount                *int64            `json:"originalAmount"`
	Description                   string            `json:"description"`
	Memo                          string            `json:"memo"`
	CategoryID                    flexID            `json:"categoryId"`
	BankAccountID                 flexID            `json:"bankAccountId"`
	Pending                       bool              `json:"pending"`
	Approved                      *bool             `json:"approved"`
	Reviewed                      bool              `json:"reviewed"`
	JournalEntry                  bool              `json:"journalEntry"`
	Children                      []json.RawMessage `json:"children"`
	BankReconciliationTransaction *rawReconLink     `json:"bankReconciliationTransaction"`
}

type rawReconLink struct {
	BankReconciliationID flexID `json:"bankReconciliationId"`
}

type rawTransactionPage struct {
	Data        []rawTransaction `json:"data"`
	CurrentPage flexInt          `json:"current_page"`
	LastPage    flexInt          `json:"last_page"`
	PerPage     flexInt          `json:"per_page"`
	Total       flexInt          `json:"total"`
}

type rawBalanceSection struct {
	Name     string              `json:"name"`
	Balance  *int64              `json:"balance"`
	Children []rawBalanceSection `json:"children"`
	Accounts []rawBalanceAccount `json:"accounts"`
}

type rawBalanceAccount struct {
	Name    string `json:"name"`
	Balance *int64 `json:"balance"`
}

type rawLedgerEntry struct {
	ID          flexID `json:"id"`
	Date        string `json:"date"`
	AccountID   flexID `json:"accountId"`
	AccountName string `json:"accountName"`
	Debit       *int64 `json:"debit"`
	Credit      *int64 `json:"credit"`
	Balance     *int64 `json:"balance"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
	Memo        string `json:"memo"`
}

type rawLedgerPage struct {
	Data  []rawLedgerEntry `json:"data"`
	Total flexInt          `json:"total"`
}

type rawReconciliationReport struct {
	StartDate           string                  `json:"startDate"`
	EndDate             string                  `json:"endDate"`
	StartingBalance     *int64                  `json:"startingBalance"`
	EndingBalance       *int64                  `json:"endingBalance"`
	TotalDeposits       *int64                  `json:"totalDeposits"`
	TotalPayments       *int64                  `json:"totalPayments"`
	ClearedCount        flexInt                 `json:"clearedCount"`
	ClearedTransactions []rawClearedTransaction `json:"clearedTransactions"`
}

type rawClearedTransaction struct {
	ID              flexID `json:"id"`
	TransactionDate string `json:"transactionDate"`
	Description     string `json:"description"`
	Amount          *int64 `json:"amount"`
}

// centsPtr converts an optional wire value to an optional Cents.
func centsPtr(v *int64) *Cents {
	if v == nil {
		return nil
	}
	c := Cents(*v)
	return &c
}

// toBankAccount converts a raw account record. Optional fields stay nil;
// only a missing id makes the record unusable.
func toBankAccount(raw rawBankAccount) (BankAccount, error) {
	if raw.ID == "" {
		return BankAccount{}, fmt.Errorf("bank account record has no id")
	}
	acct := BankAccount{
		ID:              raw.ID.String(),
		Name:            raw.FriendlyName,
		Last4:           raw.Last4,
		BankBalance:     centsPtr(raw.PlaidBalance),
		UnreviewedCount: int(raw.UnreviewedTransactionsCount),
	}
	if acct.Name == "" {
		acct.Name = "Unknown"
	}
	if raw.PlaidToken != nil {
		if raw.PlaidToken.Institution != nil {
			acct.Institution = raw.PlaidToken.Institution.Name
		}
		if raw.PlaidToken.TransactionsLastPulled != "" {
			if t, err := parseUpstreamTime(raw.PlaidToken.TransactionsLastPulled); err == nil {
				acct.LastSynced = &t
			}
		}
	}
	// The ledger balance lives on the fixed-asset account when one is
	// linked, otherwise on the deposit account.
	if raw.FixedAsset != nil && raw.FixedAsset.Balance != nil {
		acct.LedgerBalance = centsPtr(raw.FixedAsset.Balance)
	} else if raw.DepositBankAccount != nil {
		acct.LedgerBalance = centsPtr(raw.DepositBankAccount.InternalBalance)
	}
	if raw.DepositBankAccount != nil {
		acct.PendingFunds = centsPtr(raw.DepositBankAccount.PendingFunds)
	}
	for _, rec := range raw.Reconciliations {
		if r, ok := toReconciliationRecord(rec); ok {
			acct.Reconciliations = append(acct.Reconciliations, r)
		}
	}
	return acct, nil
}

// toReconciliationRecord converts one embedded reconciliation. Records
// without an id or a complete statement period are skipped, matching how
// the web UI hides drafts.
func toReconciliationRecord(raw rawReconciliation) (ReconciliationRecord, bool) {
	if raw.ID == "" {
		return ReconciliationRecord{}, false
	}
	start, errStart := ParseDate(raw.StartDate)
	end, errEnd := ParseDate(raw.EndDate)
	if errStart != nil || errEnd != nil {
		return ReconciliationRecord{}, false
	}
	rec := ReconciliationRecord{
		ID:                     raw.ID.String(),
		StartDate:              start,
		StatementDate:          end,
		StartingBalance:        centsPtr(raw.StartingBalance),
		StatementEndingBalance: centsPtr(raw.EndingBalance),
		TotalDeposits:          centsPtr(raw.TotalDeposits),
		TotalPayments:          centsPtr(raw.TotalPayments),
	}
	if raw.CompletedAt != "" {
		if t, err := parseUpstreamTime(raw.CompletedAt); err == nil {
			rec.CompletedAt = &t
		}
	}
	return rec, true
}

// toTransaction converts a raw transaction. Id, date, and amount are
// required; everything else degrades gracefully.
func toTransaction(raw rawTransaction) (Transaction, error) {
	if raw.ID == "" {
		return Transaction{}, fmt.Errorf("transaction record has no id")
	}
	if raw.Amount == nil {
		return Transaction{}, fmt.Errorf("transaction %s has no amount", raw.ID)
	}
	date, err := ParseDate(raw.TransactionDate)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: %w", raw.ID, err)
	}
	txn := Transaction{
		ID:             raw.ID.String(),
		Date:           date,
		Amount:         Cents(*raw.Amount),
		OriginalAmount: centsPtr(raw.OriginalAmount),
		Description:    raw.Description,
		Memo:           raw.Memo,
		CategoryID:     raw.CategoryID.String(),
		BankAccountID:  raw.BankAccountID.String(),
		Pending:        raw.Pending,
		Reviewed:       raw.Reviewed,
		Approved:       true, // upstream omits the flag for approved rows
		JournalEntry:   raw.JournalEntry,
		SplitCount:     len(raw.Children),
	}
	if raw.Approved != nil {
		txn.Approved = *raw.Approved
	}
	if link := raw.BankReconciliationTransaction; link != nil {
		txn.Reconciled = true
		txn.ReconciliationID = link.BankReconciliationID.String()
	}
	return txn, nil
}

// toBalanceSheetNode converts one section recursively, folding leaf
// accounts in as children.
func toBalanceSheetNode(raw rawBalanceSection) BalanceSheetNode {
	node := BalanceSheetNode{
		Label:  raw.Name,
		Amount: centsPtr(raw.Balance),
	}
	for _, child := range raw.Children {
		node.Children = append(node.Children, toBalanceSheetNode(child))
	}
	for _, acc := range raw.Accounts {
		node.Children = append(node.Children, BalanceSheetNode{
			Label:  acc.Name,
			Amount: centsPtr(acc.Balance),
		})
	}
	return node
}

// toLedgerEntry converts one general ledger row. The date is required.
func toLedgerEntry(raw rawLedgerEntry) (LedgerEntry, error) {
	date, err := ParseDate(raw.Date)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("ledger entry %s: %w", raw.ID, err)
	}
	entry := LedgerEntry{
		ID:             raw.ID.String(),
		Date:           date,
		AccountID:      raw.AccountID.String(),
		AccountName:    raw.AccountName,
		RunningBalance: centsPtr(raw.Balance),
		Description:    raw.Description,
		Reference:      raw.Reference,
		Memo:           raw.Memo,
	}
	if raw.Debit != nil {
		entry.Debit = Cents(*raw.Debit)
	}
	if raw.Credit != nil {
		entry.Credit = Cents(*raw.Credit)
	}
	return entry, nil
}

// toReconciliationReport converts the report payload. Dates are parsed
// leniently: the report remains useful even when the upstream omits one.
func toReconciliationReport(id string, raw rawReconciliationReport) ReconciliationReport {
	report := ReconciliationReport{
		ID:              id,
		StartingBalance: centsPtr(raw.StartingBalance),
		EndingBalance:   centsPtr(raw.EndingBalance),
		TotalDeposits:   centsPtr(raw.TotalDeposits),
		TotalPayments:   centsPtr(raw.TotalPayments),
		ClearedCount:    int(raw.ClearedCount),
	}
	if d, err := ParseDate(raw.StartDate); err == nil {
		report.StartDate = d
	}
	if d, err := ParseDate(raw.EndDate); err == nil {
		report.EndDate = d
	}
	for _, txn := range raw.ClearedTransactions {
		cleared := ClearedTransaction{
			ID:          txn.ID.String(),
			Description: txn.Description,
		}
		if d, err := ParseDate(txn.TransactionDate); err == nil {
			cleared.Date = d
		}
		if txn.Amount != nil {
			cleared.Amount = Cents(*txn.Amount)
		}
		report.Cleared = append(report.Cleared, cleared)
	}
	return report
}
