package payhoa

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSessionComplete(t *testing.T) {
	sess := &Session{
		BearerToken:    "token",
		CSRFToken:      "csrf",
		Cookies:        map[string]string{"payhoa_session": "abc"},
		OrganizationID: "9137",
	}
	if !sess.Complete() {
		t.Error("Expected fully populated session to be complete")
	}

	var nilSess *Session
	if nilSess.Complete() {
		t.Error("Expected nil session to be incomplete")
	}
	if (&Session{BearerToken: "token"}).Complete() {
		t.Error("Expected session missing fields to be incomplete")
	}
	sess.OrganizationID = ""
	if sess.Complete() {
		t.Error("Expected session without organization to be incomplete")
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2025, time.August, 1, 12, 0, 0, 0, time.UTC)

	// No declared expiry: valid until the upstream says otherwise.
	sess := &Session{}
	if sess.Expired(now, time.Minute) {
		t.Error("Expected session without expiry to never expire locally")
	}

	future := now.Add(time.Hour)
	sess.ExpiresAt = &future
	if sess.Expired(now, time.Minute) {
		t.Error("Expected session an hour from expiry to be valid")
	}

	// Inside the renewal margin counts as expired.
	soon := now.Add(30 * time.Second)
	sess.ExpiresAt = &soon
	if !sess.Expired(now, time.Minute) {
		t.Error("Expected session inside the margin to count as expired")
	}

	past := now.Add(-time.Hour)
	sess.ExpiresAt = &past
	if !sess.Expired(now, time.Minute) {
		t.Error("Expected past expiry to count as expired")
	}
}

func TestFlexID(t *testing.T) {
	var v struct {
		ID flexID `json:"id"`
	}
	for raw, want := range map[string]string{
		`{"id": 4821}`:     "4821",
		`{"id": "4821"}`:   "4821",
		`{"id": "tx-9"}`:   "tx-9",
		`{"id": null}`:     "",
		`{}`:               "",
		`{"id": 4821.0}`:   "4821.0",
	} {
		v.ID = ""
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Errorf("Unmarshal %s returned error: %v", raw, err)
			continue
		}
		if v.ID.String() != want {
			t.Errorf("flexID from %s = %q, want %q", raw, v.ID, want)
		}
	}
}

func TestFlexInt(t *testing.T) {
	var v struct {
		N flexInt `json:"n"`
	}
	for raw, want := range map[string]int{
		`{"n": 25}`:     25,
		`{"n": "25"}`:   25,
		`{"n": null}`:   0,
		`{}`:            0,
		`{"n": 25.0}`:   25,
	} {
		v.N = 0
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Errorf("Unmarshal %s returned error: %v", raw, err)
			continue
		}
		if int(v.N) != want {
			t.Errorf("flexInt from %s = %d, want %d", raw, v.N, want)
		}
	}
}

func TestToBankAccount(t *testing.T) {
	raw := rawBankAccount{
		ID:           "4821",
		FriendlyName: "Operating Checking",
		Last4:        "1234",
		PlaidBalance: ptrInt64(2301777),
		PlaidToken: &rawPlaidToken{
			Institution:            &rawInstitution{Name: "First National"},
			TransactionsLastPulled: "2025-08-01 06:15:00",
		},
		FixedAsset:                  &rawFixedAsset{Balance: ptrInt64(2301577)},
		DepositBankAccount:          &rawDepositAccount{InternalBalance: ptrInt64(99), PendingFunds: ptrInt64(200)},
		UnreviewedTransactionsCount: 3,
		Reconciliations: []rawReconciliation{
			{
				ID:              "77",
				StartDate:       "2025-07-01",
				EndDate:         "2025-07-31",
				StartingBalance: ptrInt64(2200000),
				EndingBalance:   ptrInt64(2301577),
				TotalDeposits:   ptrInt64(150000),
				TotalPayments:   ptrInt64(48423),
				CompletedAt:     "2025-08-02T09:00:00Z",
			},
			// Incomplete statement period: dropped.
			{ID: "78", StartDate: "2025-08-01"},
		},
	}

	acct, err := toBankAccount(raw)
	if err != nil {
		t.Fatalf("toBankAccount returned error: %v", err)
	}
	if acct.ID != "4821" {
		t.Errorf("Expected ID 4821, got %s", acct.ID)
	}
	if acct.Name != "Operating Checking" {
		t.Errorf("Expected name 'Operating Checking', got %s", acct.Name)
	}
	if acct.Institution != "First National" {
		t.Errorf("Expected institution 'First National', got %s", acct.Institution)
	}
	if acct.BankBalance == nil || *acct.BankBalance != 2301777 {
		t.Errorf("Expected bank balance 2301777, got %v", acct.BankBalance)
	}
	// The fixed asset wins over the deposit account's internal balance.
	if acct.LedgerBalance == nil || *acct.LedgerBalance != 2301577 {
		t.Errorf("Expected ledger balance 2301577, got %v", acct.LedgerBalance)
	}
	if acct.PendingFunds == nil || *acct.PendingFunds != 200 {
		t.Errorf("Expected pending funds 200, got %v", acct.PendingFunds)
	}
	if acct.UnreviewedCount != 3 {
		t.Errorf("Expected 3 unreviewed, got %d", acct.UnreviewedCount)
	}
	if acct.LastSynced == nil {
		t.Error("Expected last synced time to be parsed")
	}
	if len(acct.Reconciliations) != 1 {
		t.Fatalf("Expected 1 reconciliation, got %d", len(acct.Reconciliations))
	}
	rec := acct.Reconciliations[0]
	if rec.ID != "77" {
		t.Errorf("Expected reconciliation 77, got %s", rec.ID)
	}
	if !rec.StatementDate.Equal(NewDate(2025, time.July, 31)) {
		t.Errorf("Expected statement date 2025-07-31, got %v", rec.StatementDate)
	}
	if rec.CompletedAt == nil {
		t.Error("Expected completed time to be parsed")
	}
}

func TestToBankAccount_Defaults(t *testing.T) {
	acct, err := toBankAccount(rawBankAccount{
		ID:                 "9",
		DepositBankAccount: &rawDepositAccount{InternalBalance: ptrInt64(5000)},
	})
	if err != nil {
		t.Fatalf("toBankAccount returned error: %v", err)
	}
	if acct.Name != "Unknown" {
		t.Errorf("Expected default name 'Unknown', got %s", acct.Name)
	}
	// Without a fixed asset the deposit account's balance is the ledger view.
	if acct.LedgerBalance == nil || *acct.LedgerBalance != 5000 {
		t.Errorf("Expected ledger balance 5000, got %v", acct.LedgerBalance)
	}
	if acct.BankBalance != nil {
		t.Error("Expected absent bank balance to stay nil")
	}
}

func TestToBankAccount_MissingID(t *testing.T) {
	if _, err := toBankAccount(rawBankAccount{FriendlyName: "No ID"}); err == nil {
		t.Error("Expected error for record without id")
	}
}

func TestToTransaction(t *testing.T) {
	approved := false
	raw := rawTransaction{
		ID:              "314159",
		TransactionDate: "2025-08-01 00:00:00",
		Amount:          ptrInt64(-4500),
		OriginalAmount:  ptrInt64(4500),
		Description:     "Landscaping service",
		Memo:            "July invoice",
		CategoryID:      "12",
		BankAccountID:   "4821",
		Pending:         true,
		Approved:        &approved,
		Reviewed:        true,
		JournalEntry:    false,
		Children:        []json.RawMessage{[]byte(`{}`), []byte(`{}`)},
		BankReconciliationTransaction: &rawReconLink{
			BankReconciliationID: "77",
		},
	}

	txn, err := toTransaction(raw)
	if err != nil {
		t.Fatalf("toTransaction returned error: %v", err)
	}
	if txn.ID != "314159" {
		t.Errorf("Expected ID 314159, got %s", txn.ID)
	}
	if !txn.Date.Equal(NewDate(2025, time.August, 1)) {
		t.Errorf("Expected date 2025-08-01, got %v", txn.Date)
	}
	if txn.Amount != -4500 {
		t.Errorf("Expected amount -4500, got %d", txn.Amount)
	}
	if txn.OriginalAmount == nil || *txn.OriginalAmount != 4500 {
		t.Errorf("Expected original amount 4500, got %v", txn.OriginalAmount)
	}
	if txn.Approved {
		t.Error("Expected explicit approved=false to be kept")
	}
	if !txn.Reconciled || txn.ReconciliationID != "77" {
		t.Errorf("Expected reconciled via link 77, got %v %s", txn.Reconciled, txn.ReconciliationID)
	}
	if txn.SplitCount != 2 {
		t.Errorf("Expected 2 splits, got %d", txn.SplitCount)
	}
}

func TestToTransaction_ApprovedDefault(t *testing.T) {
	txn, err := toTransaction(rawTransaction{
		ID:              "1",
		TransactionDate: "2025-08-01",
		Amount:          ptrInt64(100),
	})
	if err != nil {
		t.Fatalf("toTransaction returned error: %v", err)
	}
	// The upstream omits the flag on approved rows.
	if !txn.Approved {
		t.Error("Expected absent approved flag to default to true")
	}
	if txn.Reconciled {
		t.Error("Expected no reconciliation link to mean unreconciled")
	}
}

func TestToTransaction_Invalid(t *testing.T) {
	if _, err := toTransaction(rawTransaction{TransactionDate: "2025-08-01", Amount: ptrInt64(1)}); err == nil {
		t.Error("Expected error for missing id")
	}
	if _, err := toTransaction(rawTransaction{ID: "1", TransactionDate: "2025-08-01"}); err == nil {
		t.Error("Expected error for missing amount")
	}
	if _, err := toTransaction(rawTransaction{ID: "1", TransactionDate: "bogus", Amount: ptrInt64(1)}); err == nil {
		t.Error("Expected error for unparseable date")
	}
}

func TestTransactionSignLabel(t *testing.T) {
	if got := (Transaction{Amount: 500}).SignLabel(); got != "CREDIT (money IN)" {
		t.Errorf("Expected CREDIT label, got %s", got)
	}
	if got := (Transaction{Amount: -500}).SignLabel(); got != "DEBIT (money OUT)" {
		t.Errorf("Expected DEBIT label, got %s", got)
	}
	if got := (Transaction{}).SignLabel(); got != "ZERO" {
		t.Errorf("Expected ZERO label, got %s", got)
	}
	if !(Transaction{Amount: 500}).IsCredit() {
		t.Error("Expected positive amount to be a credit")
	}
	if !(Transaction{Amount: -500}).IsDebit() {
		t.Error("Expected negative amount to be a debit")
	}
}

func TestToBalanceSheetNode(t *testing.T) {
	raw := rawBalanceSection{
		Name:    "Assets",
		Balance: ptrInt64(2301777),
		Children: []rawBalanceSection{
			{Name: "Current Assets", Balance: ptrInt64(2301777)},
		},
		Accounts: []rawBalanceAccount{
			{Name: "Operating Checking", Balance: ptrInt64(2301577)},
			{Name: "Petty Cash", Balance: ptrInt64(200)},
		},
	}

	node := toBalanceSheetNode(raw)
	if node.Label != "Assets" {
		t.Errorf("Expected label Assets, got %s", node.Label)
	}
	if node.Amount == nil || *node.Amount != 2301777 {
		t.Errorf("Expected amount 2301777, got %v", node.Amount)
	}
	// Child sections come first, then leaf accounts.
	if len(node.Children) != 3 {
		t.Fatalf("Expected 3 children, got %d", len(node.Children))
	}
	if node.Children[0].Label != "Current Assets" {
		t.Errorf("Expected first child 'Current Assets', got %s", node.Children[0].Label)
	}
	if node.Children[2].Label != "Petty Cash" || *node.Children[2].Amount != 200 {
		t.Errorf("Unexpected leaf account: %+v", node.Children[2])
	}
}

func TestToLedgerEntry(t *testing.T) {
	raw := rawLedgerEntry{
		ID:          "88",
		Date:        "2025-07-15",
		AccountID:   "300",
		AccountName: "Landscaping Expense",
		Debit:       ptrInt64(4500),
		Balance:     ptrInt64(125000),
		Description: "Landscaping service",
		Reference:   "CHK 1042",
		Memo:        "July invoice",
	}

	entry, err := toLedgerEntry(raw)
	if err != nil {
		t.Fatalf("toLedgerEntry returned error: %v", err)
	}
	if entry.Debit != 4500 {
		t.Errorf("Expected debit 4500, got %d", entry.Debit)
	}
	if entry.Credit != 0 {
		t.Errorf("Expected credit 0 for absent column, got %d", entry.Credit)
	}
	if entry.RunningBalance == nil || *entry.RunningBalance != 125000 {
		t.Errorf("Expected running balance 125000, got %v", entry.RunningBalance)
	}

	if _, err := toLedgerEntry(rawLedgerEntry{ID: "89"}); err == nil {
		t.Error("Expected error for entry without a date")
	}
}

func TestToReconciliationReport(t *testing.T) {
	raw := rawReconciliationReport{
		StartDate:       "2025-07-01",
		EndDate:         "2025-07-31",
		StartingBalance: ptrInt64(2200000),
		EndingBalance:   ptrInt64(2301577),
		TotalDeposits:   ptrInt64(150000),
		TotalPayments:   ptrInt64(48423),
		ClearedCount:    2,
		ClearedTransactions: []rawClearedTransaction{
			{ID: "314159", TransactionDate: "2025-07-10", Description: "Dues payment", Amount: ptrInt64(35000)},
			{ID: "314160", TransactionDate: "2025-07-12", Description: "Pool maintenance", Amount: ptrInt64(-12000)},
		},
	}

	report := toReconciliationReport("77", raw)
	if report.ID != "77" {
		t.Errorf("Expected report id 77, got %s", report.ID)
	}
	if !report.EndDate.Equal(NewDate(2025, time.July, 31)) {
		t.Errorf("Expected end date 2025-07-31, got %v", report.EndDate)
	}
	if report.ClearedCount != 2 || len(report.Cleared) != 2 {
		t.Errorf("Expected 2 cleared transactions, got count=%d len=%d", report.ClearedCount, len(report.Cleared))
	}
	ids := report.ClearedTransactionIDs()
	if len(ids) != 2 || ids[0] != "314159" || ids[1] != "314160" {
		t.Errorf("Unexpected cleared ids: %v", ids)
	}
}

func ptrInt64(v int64) *int64 { return &v }
