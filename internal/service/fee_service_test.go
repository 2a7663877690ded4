package service

import (
	"context"
	"math/big"
	"testing"

	"github.com/quorumlabs/settled/internal/domain"
)

func newFeeFixture(t *testing.T) (*fixture, *FeeService) {
	t.Helper()
	f := newFixture(t)
	svc := NewFeeService(f.eng, f.fees, f.markets, f.cache, f.bus, f.audit, discardLogger())
	return f, svc
}

// reportTrade files a venue callback sized to credit the protocol fee balance
// with exactly the given amount (share = output*rate/10000 * 40/100).
func reportTrade(t *testing.T, svc *FeeService, marketID string, feeAmount int64) {
	t.Helper()
	err := svc.ReportTrade(context.Background(), domain.TradeReport{
		MarketID:     marketID,
		Venue:        venueAddr,
		OutputAmount: big.NewInt(feeAmount * 500),
		FeeRateBps:   50,
	})
	if err != nil {
		t.Fatalf("ReportTrade() = %v", err)
	}
}

func TestReportTradePersistsFeeAndVolume(t *testing.T) {
	f, svc := newFeeFixture(t)
	f.registerMarket(t, "mkt-1")

	reportTrade(t, svc, "mkt-1", 40)

	wantBig(t, f.fees.balance(usdc), 40, "stored fee balance")

	m, err := f.markets.GetByID(context.Background(), "mkt-1")
	if err != nil {
		t.Fatalf("persisted market: %v", err)
	}
	wantBig(t, m.Volume, 40*500, "persisted volume")
}

func TestReportTradeEvictsCachedSnapshot(t *testing.T) {
	f, svc := newFeeFixture(t)
	f.registerMarket(t, "mkt-1")

	reportTrade(t, svc, "mkt-1", 10)

	ids := f.cache.invalidatedIDs()
	if len(ids) != 1 || ids[0] != "mkt-1" {
		t.Fatalf("invalidated = %v, want [mkt-1]", ids)
	}
}

func TestStoredBalanceZeroBeforeFirstPersist(t *testing.T) {
	_, svc := newFeeFixture(t)

	bal, err := svc.StoredBalance(context.Background(), usdc)
	if err != nil {
		t.Fatalf("StoredBalance() = %v", err)
	}
	if bal.Sign() != 0 {
		t.Errorf("stored balance = %s, want 0", bal)
	}
}

func TestStoredBalanceTracksLiveBalance(t *testing.T) {
	f, svc := newFeeFixture(t)
	f.registerMarket(t, "mkt-1")

	reportTrade(t, svc, "mkt-1", 25)

	stored, err := svc.StoredBalance(context.Background(), usdc)
	if err != nil {
		t.Fatalf("StoredBalance() = %v", err)
	}
	if live := svc.Balance(usdc); stored.Cmp(live) != 0 {
		t.Errorf("stored = %s, live = %s, want equal", stored, live)
	}
	wantBig(t, stored, 25, "stored fee balance")
}
