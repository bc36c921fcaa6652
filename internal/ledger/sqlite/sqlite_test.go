package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/paylessai/payless-gateway/internal/ledger"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBalanceIsSumOfDeltas(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	balance, err := store.Balance(ctx, "user-1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance for empty ledger, got %v", balance)
	}

	deltas := []float64{100, -30, 7.5, -0.25}
	reasons := []ledger.Reason{ledger.ReasonMint, ledger.ReasonSpend, ledger.ReasonEngagementEarn, ledger.ReasonAdjust}
	want := 0.0
	for i, d := range deltas {
		if _, err := store.Append(ctx, "user-1", d, reasons[i], "test"); err != nil {
			t.Fatalf("Append: %v", err)
		}
		want += d
		got, err := store.Balance(ctx, "user-1")
		if err != nil {
			t.Fatalf("Balance: %v", err)
		}
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("after %d appends: expected %v, got %v", i+1, want, got)
		}
	}

	// Other users are unaffected.
	other, err := store.Balance(ctx, "user-2")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if other != 0 {
		t.Fatalf("expected zero balance for other user, got %v", other)
	}
}

func TestSpendSufficientFunds(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "u", 100, ledger.ReasonMint, ""); err != nil {
		t.Fatalf("Append: %v", err)
	}

	res, err := store.Spend(ctx, "u", 2, "openai/gpt-5.1: 500+200 tokens")
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected spend to succeed")
	}
	if res.NewBalance != 98 {
		t.Fatalf("expected balance 98, got %v", res.NewBalance)
	}
}

func TestSpendInsufficientFundsLeavesBalance(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "u", 10, ledger.ReasonAllocate, ""); err != nil {
		t.Fatalf("Append: %v", err)
	}

	res, err := store.Spend(ctx, "u", 10.01, "")
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}
	if res.Success {
		t.Fatalf("expected spend to fail")
	}
	if res.NewBalance != 10 {
		t.Fatalf("expected balance unchanged at 10, got %v", res.NewBalance)
	}

	entries, err := store.ListRecent(ctx, "u", 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after failed spend, got %d", len(entries))
	}
}

func TestSpendExactBalance(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "u", 5, ledger.ReasonMint, ""); err != nil {
		t.Fatalf("Append: %v", err)
	}
	res, err := store.Spend(ctx, "u", 5, "")
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}
	if !res.Success || res.NewBalance != 0 {
		t.Fatalf("expected success with zero balance, got %+v", res)
	}
}

func TestSpendConcurrentContention(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "u", 10, ledger.ReasonMint, ""); err != nil {
		t.Fatalf("Append: %v", err)
	}

	const workers = 8
	results := make(chan ledger.SpendResult, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.Spend(ctx, "u", 10, "concurrent spend")
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	// Contending writers must wait and be conditionally rejected, never
	// error out with a busy database.
	for err := range errs {
		t.Fatalf("Spend: %v", err)
	}
	winners := 0
	for res := range results {
		if res.Success {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winning spend, got %d", winners)
	}
	balance, err := store.Balance(ctx, "u")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance after contention, got %v", balance)
	}
}

func TestAppendWithRefIdempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.AppendWithRef(ctx, "u", 50, ledger.ReasonSurveyComplete, "survey 9 ($0.50)", "cpx:XYZ"); err != nil {
		t.Fatalf("AppendWithRef: %v", err)
	}
	_, err := store.AppendWithRef(ctx, "u", 50, ledger.ReasonSurveyComplete, "survey 9 ($0.50)", "cpx:XYZ")
	if !errors.Is(err, ledger.ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}

	balance, err := store.Balance(ctx, "u")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 50 {
		t.Fatalf("expected one credit of 50, got balance %v", balance)
	}

	entries, err := store.ListRecent(ctx, "u", 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
	if entries[0].ExternalRef != "cpx:XYZ" {
		t.Fatalf("expected external ref cpx:XYZ, got %q", entries[0].ExternalRef)
	}
}

func TestAppendValidation(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "", 1, ledger.ReasonMint, ""); err == nil {
		t.Fatalf("expected error for missing user id")
	}
	if _, err := store.Append(ctx, "u", 1, ledger.Reason("bogus"), ""); err == nil {
		t.Fatalf("expected error for invalid reason")
	}
	if _, err := store.Spend(ctx, "u", -1, ""); err == nil {
		t.Fatalf("expected error for negative spend amount")
	}
	if _, err := store.AppendWithRef(ctx, "u", 1, ledger.ReasonAdjust, "", "  "); err == nil {
		t.Fatalf("expected error for blank external ref")
	}
}

func TestEarnStatsCountsOnlyEngagement(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "u", 7.5, ledger.ReasonEngagementEarn, ""); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := store.Append(ctx, "u", 2.5, ledger.ReasonEngagementEarn, ""); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := store.Append(ctx, "u", 100, ledger.ReasonMint, ""); err != nil {
		t.Fatalf("Append: %v", err)
	}

	stats, err := store.EarnStatsFor(ctx, "u")
	if err != nil {
		t.Fatalf("EarnStatsFor: %v", err)
	}
	if stats.TotalEarned != 10 {
		t.Fatalf("expected total 10, got %v", stats.TotalEarned)
	}
	if stats.EarnedToday != 10 {
		t.Fatalf("expected today 10, got %v", stats.EarnedToday)
	}
}

func TestListRecentOrdering(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for i, d := range []float64{1, 2, 3} {
		if _, err := store.Append(ctx, "u", d, ledger.ReasonMint, ""); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	recent, err := store.ListRecent(ctx, "u", 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].Delta != 3 || recent[1].Delta != 2 {
		t.Fatalf("unexpected ordering %#v", recent)
	}
}
