package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/quorumlabs/settled/internal/domain"
)

func newMarketFixture(t *testing.T) (*fixture, *MarketService) {
	t.Helper()
	f := newFixture(t)
	svc := NewMarketService(f.eng, f.markets, f.disputes, f.cache, f.bus, f.audit, nil, nil, discardLogger())
	return f, svc
}

func TestRegisterPersistsMarket(t *testing.T) {
	f, svc := newMarketFixture(t)

	if _, err := svc.Register(context.Background(), registerParamsFor(f, "mkt-1")); err != nil {
		t.Fatalf("Register() = %v", err)
	}
	if _, err := f.markets.GetByID(context.Background(), "mkt-1"); err != nil {
		t.Fatalf("persisted market: %v", err)
	}
}

func TestFinalizeBlockedByStoredDispute(t *testing.T) {
	f, svc := newMarketFixture(t)
	f.registerMarket(t, "mkt-1")
	f.resolveAt(t, "mkt-1", 0)
	f.clock.Advance(25 * time.Hour)

	// A challenge another instance recorded durably but this engine never
	// loaded must still block finalization.
	stored := domain.Dispute{
		ID:              "dsp-remote",
		MarketID:        "mkt-1",
		Challenger:      bob,
		ProposedOutcome: 1,
		Stake:           big.NewInt(100),
		SubmittedAt:     f.clock.Now(),
	}
	if err := f.disputes.Insert(context.Background(), stored); err != nil {
		t.Fatalf("seed dispute: %v", err)
	}

	_, err := svc.Finalize(context.Background(), "mkt-1")
	if !errors.Is(err, domain.ErrUnresolvedDisputes) {
		t.Fatalf("Finalize() = %v, want ErrUnresolvedDisputes", err)
	}

	m, err := f.eng.Market("mkt-1")
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	if m.Finalized {
		t.Error("market finalized despite stored open dispute")
	}
}

func TestFinalizeProceedsOnceStoredDisputeResolved(t *testing.T) {
	f, svc := newMarketFixture(t)
	f.registerMarket(t, "mkt-1")
	f.resolveAt(t, "mkt-1", 0)
	f.clock.Advance(25 * time.Hour)

	stored := domain.Dispute{
		ID:          "dsp-remote",
		MarketID:    "mkt-1",
		Challenger:  bob,
		Stake:       big.NewInt(100),
		SubmittedAt: f.clock.Now(),
	}
	if err := f.disputes.Insert(context.Background(), stored); err != nil {
		t.Fatalf("seed dispute: %v", err)
	}
	if err := f.disputes.MarkResolved(context.Background(), "dsp-remote", false); err != nil {
		t.Fatalf("resolve dispute: %v", err)
	}

	m, err := svc.Finalize(context.Background(), "mkt-1")
	if err != nil {
		t.Fatalf("Finalize() = %v", err)
	}
	if !m.Finalized {
		t.Error("market not finalized")
	}

	persisted, err := f.markets.GetByID(context.Background(), "mkt-1")
	if err != nil {
		t.Fatalf("persisted market: %v", err)
	}
	if !persisted.Finalized {
		t.Error("persisted market row not finalized")
	}
}

func TestGetFallsBackToStore(t *testing.T) {
	f, svc := newMarketFixture(t)

	seeded := domain.Market{
		ID:           "mkt-cold",
		EventTime:    f.clock.Now().Add(time.Hour),
		OutcomeCount: 2,
		Volume:       new(big.Int),
		Collateral:   usdc,
	}
	if err := f.markets.Upsert(context.Background(), seeded); err != nil {
		t.Fatalf("seed market: %v", err)
	}

	m, err := svc.Get(context.Background(), "mkt-cold")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if m.ID != "mkt-cold" {
		t.Errorf("market ID = %s, want mkt-cold", m.ID)
	}
}
