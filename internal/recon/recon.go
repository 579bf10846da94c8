package recon

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hoaboard/treasurer/internal/payhoa"
)

var (
	// ErrInvalidRange reports a period whose start falls after its end.
	ErrInvalidRange = errors.New("period start is after end")
	// ErrEmptyAccount reports a missing account id.
	ErrEmptyAccount = errors.New("account id is required")
	// ErrNegativeTolerance reports a negative amount-search tolerance.
	ErrNegativeTolerance = errors.New("tolerance must not be negative")
)

const (
	labelCredit = "CREDIT (money IN)"
	labelDebit  = "DEBIT (money OUT)"
)

// Discrepancy describes how far a bank-reported balance sits from the
// ledger's for one account. Difference is bank minus ledger, exact integer
// subtraction. PossibleCauses is populated only when the balances differ.
type Discrepancy struct {
	AccountID       string
	AccountName     string
	BankBalance     payhoa.Cents
	LedgerBalance   payhoa.Cents
	Difference      payhoa.Cents
	PendingFunds    payhoa.Cents
	UnreviewedCount int
	PossibleCauses  []string
}

// BalanceDiscrepancy compares the bank and ledger balances of one account.
// Balances the upstream did not report are treated as zero.
func BalanceDiscrepancy(acct payhoa.BankAccount) Discrepancy {
	d := Discrepancy{
		AccountID:       acct.ID,
		AccountName:     acct.Name,
		BankBalance:     orZero(acct.BankBalance),
		LedgerBalance:   orZero(acct.LedgerBalance),
		PendingFunds:    orZero(acct.PendingFunds),
		UnreviewedCount: acct.UnreviewedCount,
	}
	d.Difference = d.BankBalance - d.LedgerBalance
	if d.Difference != 0 {
		d.PossibleCauses = possibleCauses(d)
	}
	return d
}

func possibleCauses(d Discrepancy) []string {
	var causes []string
	if d.PendingFunds > 0 {
		causes = append(causes, fmt.Sprintf("Pending funds in transit: $%s", d.PendingFunds.Dollars()))
	}
	if d.Difference == d.PendingFunds {
		causes = append(causes, "Difference matches pending funds - likely timing issue")
	}
	if d.Difference.Abs() < 100 {
		causes = append(causes, "Small difference may be rounding in fee calculations")
	}
	if d.UnreviewedCount > 0 {
		causes = append(causes, fmt.Sprintf("%d unreviewed transactions may affect balance", d.UnreviewedCount))
	}
	if len(causes) == 0 {
		causes = append(causes, "Unknown cause - manual investigation recommended")
	}
	return causes
}

func orZero(c *payhoa.Cents) payhoa.Cents {
	if c == nil {
		return 0
	}
	return *c
}

// FilterUnreviewed selects transactions not yet reviewed, preserving order.
func FilterUnreviewed(txns []payhoa.Transaction) []payhoa.Transaction {
	var out []payhoa.Transaction
	for _, txn := range txns {
		if !txn.Reviewed {
			out = append(out, txn)
		}
	}
	return out
}

// FilterUnreconciled selects transactions not cleared by any
// reconciliation, preserving order.
func FilterUnreconciled(txns []payhoa.Transaction) []payhoa.Transaction {
	var out []payhoa.Transaction
	for _, txn := range txns {
		if !txn.Reconciled {
			out = append(out, txn)
		}
	}
	return out
}

// FindByAmount returns the transactions whose magnitude falls within
// tolerance of target, preserving order. Matching is sign-agnostic on both
// sides: a statement and a ledger often record the same economic event
// with opposite polarity, so searching for 15000 finds -15000 too. Both
// the normalized amount and the raw bank-feed amount are consulted.
func FindByAmount(txns []payhoa.Transaction, target, tolerance payhoa.Cents) ([]payhoa.Transaction, error) {
	if tolerance < 0 {
		return nil, ErrNegativeTolerance
	}
	want := target.Abs()
	var out []payhoa.Transaction
	for _, txn := range txns {
		if matchesAmount(txn, want, tolerance) {
			out = append(out, txn)
		}
	}
	return out, nil
}

func matchesAmount(txn payhoa.Transaction, want, tolerance payhoa.Cents) bool {
	if within(txn.Amount.Abs(), want, tolerance) {
		return true
	}
	return txn.OriginalAmount != nil && within(txn.OriginalAmount.Abs(), want, tolerance)
}

func within(have, want, tolerance payhoa.Cents) bool {
	return (have - want).Abs() <= tolerance
}

// CategoryKind is the expected money direction of a category.
type CategoryKind string

const (
	CategoryIncome  CategoryKind = "income"
	CategoryExpense CategoryKind = "expense"
)

// SignFinding flags one transaction whose polarity looks wrong. It is a
// heuristic for operator review, never an authoritative correction.
type SignFinding struct {
	Transaction payhoa.Transaction
	Expected    string
	Actual      string
	Reason      string
}

// Keywords that suggest money in; a debit carrying one is suspect.
var creditKeywords = []string{
	"deposit", "credit", "payment received", "incoming",
	"refund", "reimbursement", "interest earned", "dividend",
}

// Keywords that suggest money out.
var debitKeywords = []string{
	"payment to", "withdrawal", "transfer out", "fee",
	"expense", "bill pay", "check paid",
}

// FindSignErrors flags transactions whose sign disagrees with what their
// category expects: income categories expect positive amounts, expense
// categories negative. Transactions whose category is not in the mapping
// fall back to a keyword scan of description and memo. Zero amounts are
// never flagged. Order is preserved.
func FindSignErrors(txns []payhoa.Transaction, categories map[string]CategoryKind) []SignFinding {
	var findings []SignFinding
	for _, txn := range txns {
		if txn.Amount == 0 {
			continue
		}
		if kind, known := categories[txn.CategoryID]; known && txn.CategoryID != "" {
			if f, suspect := categoryMismatch(txn, kind); suspect {
				findings = append(findings, f)
			}
			continue
		}
		if f, suspect := keywordMismatch(txn); suspect {
			findings = append(findings, f)
		}
	}
	return findings
}

func categoryMismatch(txn payhoa.Transaction, kind CategoryKind) (SignFinding, bool) {
	switch kind {
	case CategoryIncome:
		if txn.Amount < 0 {
			return SignFinding{
				Transaction: txn,
				Expected:    labelCredit,
				Actual:      txn.SignLabel(),
				Reason:      "Recorded as DEBIT but category is income",
			}, true
		}
	case CategoryExpense:
		if txn.Amount > 0 {
			return SignFinding{
				Transaction: txn,
				Expected:    labelDebit,
				Actual:      txn.SignLabel(),
				Reason:      "Recorded as CREDIT but category is expense",
			}, true
		}
	}
	return SignFinding{}, false
}

func keywordMismatch(txn payhoa.Transaction) (SignFinding, bool) {
	combined := strings.ToLower(txn.Description) + " " + strings.ToLower(txn.Memo)
	if txn.IsDebit() {
		for _, kw := range creditKeywords {
			if strings.Contains(combined, kw) {
				return SignFinding{
					Transaction: txn,
					Expected:    labelCredit,
					Actual:      txn.SignLabel(),
					Reason:      fmt.Sprintf("Recorded as DEBIT but description contains '%s'", kw),
				}, true
			}
		}
	}
	if txn.IsCredit() {
		for _, kw := range debitKeywords {
			if strings.Contains(combined, kw) {
				return SignFinding{
					Transaction: txn,
					Expected:    labelDebit,
					Actual:      txn.SignLabel(),
					Reason:      fmt.Sprintf("Recorded as CREDIT but description contains '%s'", kw),
				}, true
			}
		}
	}
	return SignFinding{}, false
}

// PeriodTotals aggregates the transactions of one account over a period.
// Credits and Debits are positive magnitudes, Net is credits minus debits.
// Count includes zero-amount transactions that fell in the period even
// though they contribute to neither side.
type PeriodTotals struct {
	AccountID   string
	From        payhoa.Date
	To          payhoa.Date
	Credits     payhoa.Cents
	CreditCount int
	Debits      payhoa.Cents
	DebitCount  int
	Net         payhoa.Cents
	Count       int
}

// TotalsForPeriod sums the transactions dated within [from, to], both ends
// inclusive, comparing calendar dates only. A zero bound leaves that end
// open. The transactions are assumed already scoped to the account;
// accountID is carried through for provenance and must not be empty.
func TotalsForPeriod(accountID string, txns []payhoa.Transaction, from, to payhoa.Date) (PeriodTotals, error) {
	if accountID == "" {
		return PeriodTotals{}, ErrEmptyAccount
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return PeriodTotals{}, ErrInvalidRange
	}
	totals := PeriodTotals{AccountID: accountID, From: from, To: to}
	for _, txn := range txns {
		if !txn.Date.WithinInclusive(from, to) {
			continue
		}
		totals.Count++
		switch {
		case txn.Amount > 0:
			totals.Credits += txn.Amount
			totals.CreditCount++
		case txn.Amount < 0:
			totals.Debits += -txn.Amount
			totals.DebitCount++
		}
	}
	totals.Net = totals.Credits - totals.Debits
	return totals, nil
}

// StatementComparison holds the ledger-side totals next to a bank
// statement's total for the same period. Difference is the ledger net
// minus the statement total: positive means the ledger shows more money
// movement in than the statement.
type StatementComparison struct {
	Totals         PeriodTotals
	StatementTotal payhoa.Cents
	Difference     payhoa.Cents
}

// CompareStatement sums the ledger's transactions for the period and
// compares the net against a caller-supplied statement total.
func CompareStatement(accountID string, txns []payhoa.Transaction, from, to payhoa.Date, statementTotal payhoa.Cents) (StatementComparison, error) {
	totals, err := TotalsForPeriod(accountID, txns, from, to)
	if err != nil {
		return StatementComparison{}, err
	}
	return StatementComparison{
		Totals:         totals,
		StatementTotal: statementTotal,
		Difference:     totals.Net - statementTotal,
	}, nil
}
