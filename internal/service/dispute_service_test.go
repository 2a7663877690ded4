package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/quorumlabs/settled/internal/domain"
)

func newDisputeFixture(t *testing.T) (*fixture, *DisputeService) {
	t.Helper()
	f := newFixture(t)
	svc := NewDisputeService(f.eng, f.disputes, f.markets, f.fees, f.cache, f.bus, f.audit, nil, discardLogger())
	return f, svc
}

func TestSubmitPersistsDispute(t *testing.T) {
	f, svc := newDisputeFixture(t)
	f.registerMarket(t, "mkt-1")
	f.resolveAt(t, "mkt-1", 0)

	d, err := svc.Submit(context.Background(), "mkt-1", bob, 1, big.NewInt(200))
	if err != nil {
		t.Fatalf("Submit() = %v", err)
	}

	stored, err := f.disputes.GetByID(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("persisted dispute: %v", err)
	}
	if stored.Challenger != bob || stored.ProposedOutcome != 1 {
		t.Errorf("stored dispute = %+v, want bob proposing outcome 1", stored)
	}
}

func TestGetReturnsLiveDispute(t *testing.T) {
	f, svc := newDisputeFixture(t)
	f.registerMarket(t, "mkt-1")
	f.resolveAt(t, "mkt-1", 0)

	d, err := svc.Submit(context.Background(), "mkt-1", bob, 1, big.NewInt(200))
	if err != nil {
		t.Fatalf("Submit() = %v", err)
	}

	got, err := svc.Get(context.Background(), "mkt-1", d.ID)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.ID != d.ID {
		t.Errorf("dispute ID = %s, want %s", got.ID, d.ID)
	}
}

func TestGetFallsBackToStoredDispute(t *testing.T) {
	f, svc := newDisputeFixture(t)

	// The dispute exists only in the store, as when another instance
	// recorded it and this engine never loaded the market.
	stored := domain.Dispute{
		ID:              "dsp-remote",
		MarketID:        "mkt-cold",
		Challenger:      bob,
		ProposedOutcome: 1,
		Stake:           big.NewInt(150),
	}
	if err := f.disputes.Insert(context.Background(), stored); err != nil {
		t.Fatalf("seed dispute: %v", err)
	}

	got, err := svc.Get(context.Background(), "mkt-cold", "dsp-remote")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.Challenger != bob {
		t.Errorf("challenger = %s, want %s", got.Challenger.Hex(), bob.Hex())
	}

	// The row must not leak under a different market ID.
	if _, err := svc.Get(context.Background(), "mkt-other", "dsp-remote"); !errors.Is(err, domain.ErrDisputeNotFound) {
		t.Errorf("Get() under wrong market = %v, want ErrDisputeNotFound", err)
	}
}
