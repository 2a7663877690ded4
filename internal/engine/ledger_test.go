package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/quorumlabs/settled/internal/domain"
)

// Scenario: create a 2-outcome market 30 days out, mint 10,000 complete sets.
func TestMintSet(t *testing.T) {
	f := newFixture(t)
	f.registerMarket(t, "mkt-1", 30*24*time.Hour, 2)
	ctx := context.Background()

	if err := f.eng.MintSet(ctx, "mkt-1", alice, big.NewInt(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	for outcome := 0; outcome < 2; outcome++ {
		bal, err := f.eng.OutcomeBalance("mkt-1", outcome, alice)
		if err != nil {
			t.Fatal(err)
		}
		wantBig(t, bal, 10_000, "outcome balance")
	}

	coll, err := f.eng.CollateralBalance("mkt-1")
	if err != nil {
		t.Fatal(err)
	}
	wantBig(t, coll, 10_000, "market collateral")
	wantBig(t, f.bank.BalanceOf(usdc, alice), 1_000_000-10_000, "alice collateral")
}

// Scenario: burn 5,000 of the minted sets; both outcome balances drop and the
// collateral is returned.
func TestBurnSet(t *testing.T) {
	f := newFixture(t)
	f.registerMarket(t, "mkt-1", 30*24*time.Hour, 2)
	ctx := context.Background()

	if err := f.eng.MintSet(ctx, "mkt-1", alice, big.NewInt(10_000)); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.BurnSet(ctx, "mkt-1", alice, big.NewInt(5_000)); err != nil {
		t.Fatalf("burn: %v", err)
	}

	for outcome := 0; outcome < 2; outcome++ {
		bal, err := f.eng.OutcomeBalance("mkt-1", outcome, alice)
		if err != nil {
			t.Fatal(err)
		}
		wantBig(t, bal, 5_000, "outcome balance after burn")
	}

	coll, err := f.eng.CollateralBalance("mkt-1")
	if err != nil {
		t.Fatal(err)
	}
	wantBig(t, coll, 5_000, "market collateral after burn")
	wantBig(t, f.bank.BalanceOf(usdc, alice), 1_000_000-5_000, "alice collateral after burn")
}

// Round-trip: mint then burn the same amount restores the pre-mint collateral
// and claim balances exactly.
func TestMintBurnRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.registerMarket(t, "mkt-1", 30*24*time.Hour, 3)
	ctx := context.Background()

	before := f.bank.BalanceOf(usdc, alice)

	if err := f.eng.MintSet(ctx, "mkt-1", alice, big.NewInt(777)); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.BurnSet(ctx, "mkt-1", alice, big.NewInt(777)); err != nil {
		t.Fatal(err)
	}

	after := f.bank.BalanceOf(usdc, alice)
	if before.Cmp(after) != 0 {
		t.Errorf("collateral not restored: before %s, after %s", before, after)
	}
	for outcome := 0; outcome < 3; outcome++ {
		bal, err := f.eng.OutcomeBalance("mkt-1", outcome, alice)
		if err != nil {
			t.Fatal(err)
		}
		wantBig(t, bal, 0, "outcome balance after round trip")
	}
	coll, err := f.eng.CollateralBalance("mkt-1")
	if err != nil {
		t.Fatal(err)
	}
	wantBig(t, coll, 0, "market collateral after round trip")
}

func TestMintSetValidation(t *testing.T) {
	f := newFixture(t)
	f.registerMarket(t, "mkt-1", 30*24*time.Hour, 2)
	ctx := context.Background()

	if err := f.eng.MintSet(ctx, "mkt-1", alice, big.NewInt(0)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero amount: err = %v, want ErrInvalidAmount", err)
	}
	if err := f.eng.MintSet(ctx, "unknown", alice, big.NewInt(1)); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("unknown market: err = %v, want ErrMarketNotFound", err)
	}
	if err := f.eng.MintSet(ctx, "mkt-1", alice, big.NewInt(2_000_000)); !errors.Is(err, domain.ErrInsufficientCollateral) {
		t.Errorf("underfunded caller: err = %v, want ErrInsufficientCollateral", err)
	}

	f.resolveAt(t, "mkt-1", 0)
	if err := f.eng.MintSet(ctx, "mkt-1", alice, big.NewInt(1)); !errors.Is(err, domain.ErrMarketResolved) {
		t.Errorf("mint after resolution: err = %v, want ErrMarketResolved", err)
	}
}

func TestBurnSetRequiresFullSet(t *testing.T) {
	f := newFixture(t)
	f.registerMarket(t, "mkt-1", 30*24*time.Hour, 2)
	ctx := context.Background()

	if err := f.eng.MintSet(ctx, "mkt-1", alice, big.NewInt(100)); err != nil {
		t.Fatal(err)
	}

	if err := f.eng.BurnSet(ctx, "mkt-1", alice, big.NewInt(200)); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("over-burn: err = %v, want ErrInsufficientBalance", err)
	}
	if err := f.eng.BurnSet(ctx, "mkt-1", bob, big.NewInt(1)); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("burn without holdings: err = %v, want ErrInsufficientBalance", err)
	}
	// The failed burns must not have moved anything.
	bal, err := f.eng.OutcomeBalance("mkt-1", 0, alice)
	if err != nil {
		t.Fatal(err)
	}
	wantBig(t, bal, 100, "balance after failed burns")
}

// Burning after resolution is allowed: a complete set is always worth one
// collateral unit regardless of outcome.
func TestBurnSetAfterResolution(t *testing.T) {
	f := newFixture(t)
	f.registerMarket(t, "mkt-1", 30*24*time.Hour, 2)
	ctx := context.Background()

	if err := f.eng.MintSet(ctx, "mkt-1", alice, big.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	f.resolveAt(t, "mkt-1", 0)

	if err := f.eng.BurnSet(ctx, "mkt-1", alice, big.NewInt(100)); err != nil {
		t.Errorf("burn after resolution: %v", err)
	}
}

func TestCompleteSetBalance(t *testing.T) {
	f := newFixture(t)
	f.registerMarket(t, "mkt-1", 30*24*time.Hour, 2)
	ctx := context.Background()

	bal, err := f.eng.CompleteSetBalance("mkt-1", alice)
	if err != nil {
		t.Fatal(err)
	}
	wantBig(t, bal, 0, "complete-set balance with no holdings")

	if err := f.eng.MintSet(ctx, "mkt-1", alice, big.NewInt(50)); err != nil {
		t.Fatal(err)
	}
	bal, err = f.eng.CompleteSetBalance("mkt-1", alice)
	if err != nil {
		t.Fatal(err)
	}
	wantBig(t, bal, 50, "complete-set balance after mint")
}

func TestOutcomeClaimViews(t *testing.T) {
	f := newFixture(t)
	f.registerMarket(t, "mkt-1", 30*24*time.Hour, 4)

	n, err := f.eng.OutcomeCount("mkt-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("outcome count = %d, want 4", n)
	}

	claim, err := f.eng.OutcomeClaimRef("mkt-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if claim.MarketID != "mkt-1" || claim.Outcome != 2 || claim.Ref == "" {
		t.Errorf("unexpected claim ref: %+v", claim)
	}

	if _, err := f.eng.OutcomeClaimRef("mkt-1", 4); err == nil {
		t.Error("out-of-range outcome: expected error")
	}
}
