package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
	"github.com/quorumlabs/settled/internal/engine"
	"github.com/quorumlabs/settled/internal/oracle"
)

func newOracleFixture(t *testing.T) (*oracle.Registry, *memAuditStore, *OracleService) {
	t.Helper()
	reg := oracle.NewRegistry()
	reg.Register(oracle.NewManual(oracleRef))
	audit := &memAuditStore{}
	svc := NewOracleService(reg, adjudicator, owner, audit, discardLogger())
	return reg, audit, svc
}

func TestSettleRecordsAnswerOnManualOracle(t *testing.T) {
	reg, audit, svc := newOracleFixture(t)
	settledAt := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

	if err := svc.Settle(context.Background(), adjudicator, oracleRef, 1, settledAt); err != nil {
		t.Fatalf("Settle() = %v", err)
	}

	o, err := reg.Lookup(oracleRef)
	if err != nil {
		t.Fatalf("Lookup() = %v", err)
	}
	answer, updatedAt, err := o.LatestAnswer(context.Background())
	if err != nil {
		t.Fatalf("LatestAnswer() = %v", err)
	}
	if answer != 1 {
		t.Errorf("answer = %d, want 1", answer)
	}
	if !updatedAt.Equal(settledAt) {
		t.Errorf("updatedAt = %v, want %v", updatedAt, settledAt)
	}
	if !audit.has(domain.EventOracleSettled) {
		t.Error("settlement was not audit-logged")
	}
}

func TestSettleAllowsOwner(t *testing.T) {
	_, _, svc := newOracleFixture(t)

	if err := svc.Settle(context.Background(), owner, oracleRef, 0, time.Now().UTC()); err != nil {
		t.Fatalf("Settle() by owner = %v", err)
	}
}

func TestSettleRejectsUnprivilegedCaller(t *testing.T) {
	reg, _, svc := newOracleFixture(t)

	err := svc.Settle(context.Background(), alice, oracleRef, 1, time.Now().UTC())
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("Settle() = %v, want ErrUnauthorized", err)
	}

	o, _ := reg.Lookup(oracleRef)
	if _, _, err := o.LatestAnswer(context.Background()); !errors.Is(err, oracle.ErrNoAnswer) {
		t.Errorf("LatestAnswer() = %v, want ErrNoAnswer after rejected settle", err)
	}
}

func TestSettleUnknownRef(t *testing.T) {
	_, _, svc := newOracleFixture(t)
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000ff")

	err := svc.Settle(context.Background(), adjudicator, unknown, 1, time.Now().UTC())
	if !errors.Is(err, domain.ErrInvalidOracle) {
		t.Fatalf("Settle() = %v, want ErrInvalidOracle", err)
	}
}

func TestSettleRejectsNonManualOracle(t *testing.T) {
	reg, _, svc := newOracleFixture(t)
	feedRef := common.HexToAddress("0x00000000000000000000000000000000000000fe")
	reg.Register(&stubOracle{ref: feedRef})

	err := svc.Settle(context.Background(), adjudicator, feedRef, 1, time.Now().UTC())
	if !errors.Is(err, domain.ErrInvalidOracle) {
		t.Fatalf("Settle() = %v, want ErrInvalidOracle for feed-backed oracle", err)
	}
}

func TestRefsListsRegisteredOracles(t *testing.T) {
	_, _, svc := newOracleFixture(t)

	refs := svc.Refs()
	if len(refs) != 1 || refs[0] != oracleRef {
		t.Fatalf("Refs() = %v, want [%s]", refs, oracleRef.Hex())
	}
}

// A market bound to a manual oracle must become resolvable once the operator
// settles the oracle through the service.
func TestSettledManualOracleResolvesMarket(t *testing.T) {
	reg, _, svc := newOracleFixture(t)
	f := newFixture(t)

	manual, err := reg.Lookup(oracleRef)
	if err != nil {
		t.Fatalf("Lookup() = %v", err)
	}
	if _, err := f.eng.RegisterMarket(context.Background(), engine.RegisterParams{
		ID:           "mkt-manual",
		EventTime:    f.clock.Now().Add(time.Hour),
		Oracle:       manual,
		OutcomeCount: 2,
		Creator:      alice,
		Collateral:   usdc,
	}); err != nil {
		t.Fatalf("register market: %v", err)
	}
	if err := f.bank.Deposit(context.Background(), usdc, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("fund alice: %v", err)
	}

	f.clock.Advance(time.Hour + time.Minute)
	if err := svc.Settle(context.Background(), adjudicator, oracleRef, 1, f.clock.Now()); err != nil {
		t.Fatalf("Settle() = %v", err)
	}

	m, err := f.eng.ResolveMarket(context.Background(), "mkt-manual")
	if err != nil {
		t.Fatalf("ResolveMarket() = %v", err)
	}
	if !m.Resolved || m.WinningOutcome != 1 {
		t.Errorf("market resolved=%v outcome=%d, want resolved to outcome 1", m.Resolved, m.WinningOutcome)
	}
}
