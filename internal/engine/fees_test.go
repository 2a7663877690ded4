package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
)

func TestFeeMultiplierBoundaries(t *testing.T) {
	tests := []struct {
		name        string
		timeToEvent time.Duration
		want        float64
	}{
		{"just over a week", 7*24*time.Hour + time.Second, 1.0},
		{"exactly a week", 7 * 24 * time.Hour, 1.0},
		{"just under a week", 7*24*time.Hour - time.Second, 1.5},
		{"exactly a day", 24 * time.Hour, 1.5},
		{"just under a day", 24*time.Hour - time.Second, 2.0},
		{"exactly an hour", time.Hour, 2.0},
		{"just under an hour", time.Hour - time.Second, 3.0},
		{"past event", -time.Minute, 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FeeMultiplier(tt.timeToEvent); got != tt.want {
				t.Errorf("FeeMultiplier(%v) = %v, want %v", tt.timeToEvent, got, tt.want)
			}
		})
	}
}

func TestCurrentFeeMultiplier(t *testing.T) {
	f := newFixture(t)
	f.registerMarket(t, "mkt-1", 30*24*time.Hour, 2)

	mult, err := f.eng.CurrentFeeMultiplier("mkt-1", f.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if mult != 1.0 {
		t.Errorf("30 days out: multiplier = %v, want 1.0", mult)
	}

	mult, err = f.eng.CurrentFeeMultiplier("mkt-1", f.clock.Now().Add(30*24*time.Hour-30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if mult != 3.0 {
		t.Errorf("30 minutes out: multiplier = %v, want 3.0", mult)
	}

	if _, err := f.eng.CurrentFeeMultiplier("unknown", f.clock.Now()); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("unknown market: err = %v, want ErrMarketNotFound", err)
	}
}

func TestReportTradeSkimsProtocolShare(t *testing.T) {
	f := newFixture(t)
	f.registerMarket(t, "mkt-1", 30*24*time.Hour, 2)

	// swapFee = 10000 * 200bps = 200; protocol share = 40% = 80.
	err := f.eng.ReportTrade(context.Background(), domain.TradeReport{
		MarketID:     "mkt-1",
		Venue:        venueAddr,
		OutputAmount: big.NewInt(10_000),
		FeeRateBps:   200,
	})
	if err != nil {
		t.Fatalf("report trade: %v", err)
	}

	wantBig(t, f.eng.FeeBalance(usdc), 80, "fee balance after skim")
	wantBig(t, f.bank.BalanceOf(usdc, venueAddr), 1_000_000-80, "venue balance after skim")

	m, err := f.eng.Market("mkt-1")
	if err != nil {
		t.Fatal(err)
	}
	wantBig(t, m.Volume, 10_000, "volume")
}

func TestReportTradeRejectsInvalidAmount(t *testing.T) {
	f := newFixture(t)
	f.registerMarket(t, "mkt-1", 30*24*time.Hour, 2)

	err := f.eng.ReportTrade(context.Background(), domain.TradeReport{
		MarketID:     "mkt-1",
		Venue:        venueAddr,
		OutputAmount: big.NewInt(0),
		FeeRateBps:   200,
	})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero output: err = %v, want ErrInvalidAmount", err)
	}
}

func TestWithdrawFees(t *testing.T) {
	f := newFixture(t)
	f.registerMarket(t, "mkt-1", 30*24*time.Hour, 2)
	f.fundFees(t, "mkt-1", 500)

	recipient := bob
	before := f.bank.BalanceOf(usdc, recipient)

	if err := f.eng.WithdrawFees(context.Background(), owner, usdc, recipient, big.NewInt(300)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	wantBig(t, f.eng.FeeBalance(usdc), 200, "fee balance after withdrawal")

	after := f.bank.BalanceOf(usdc, recipient)
	if diff := new(big.Int).Sub(after, before); diff.Cmp(big.NewInt(300)) != 0 {
		t.Errorf("recipient received %s, want 300", diff)
	}
}

func TestWithdrawFeesValidation(t *testing.T) {
	f := newFixture(t)
	f.registerMarket(t, "mkt-1", 30*24*time.Hour, 2)
	f.fundFees(t, "mkt-1", 100)

	ctx := context.Background()

	if err := f.eng.WithdrawFees(ctx, alice, usdc, bob, big.NewInt(10)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-owner: err = %v, want ErrUnauthorized", err)
	}
	if err := f.eng.WithdrawFees(ctx, owner, usdc, common.Address{}, big.NewInt(10)); !errors.Is(err, domain.ErrInvalidRecipient) {
		t.Errorf("zero recipient: err = %v, want ErrInvalidRecipient", err)
	}
	if err := f.eng.WithdrawFees(ctx, owner, usdc, bob, big.NewInt(0)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero amount: err = %v, want ErrInvalidAmount", err)
	}
	if err := f.eng.WithdrawFees(ctx, owner, usdc, bob, big.NewInt(1_000)); !errors.Is(err, domain.ErrInsufficientFees) {
		t.Errorf("over-withdrawal: err = %v, want ErrInsufficientFees", err)
	}
	// The failed withdrawal must not have touched the balance.
	wantBig(t, f.eng.FeeBalance(usdc), 100, "fee balance after failed withdrawal")
}
