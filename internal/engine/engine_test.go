package engine

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/collateral"
	"github.com/quorumlabs/settled/internal/domain"
)

var (
	usdc        = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	venueAddr   = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	adjudicator = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	owner       = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	oracleRef   = common.HexToAddress("0x0000000000000000000000000000000000000d01")
)

// fakeClock is a settable time source for the engine.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubOracle is a scriptable oracle for tests.
type stubOracle struct {
	ref       common.Address
	answer    int64
	updatedAt time.Time
	err       error
}

func (o *stubOracle) LatestAnswer(context.Context) (int64, time.Time, error) {
	return o.answer, o.updatedAt, o.err
}

func (o *stubOracle) Ref() common.Address { return o.ref }

type fixture struct {
	eng    *Engine
	bank   *collateral.Bank
	clock  *fakeClock
	oracle *stubOracle
	start  time.Time
}

func testParams() Params {
	return Params{
		DisputePeriod:        24 * time.Hour,
		MinDisputeStake:      big.NewInt(100),
		ProtocolFeePercent:   40,
		ResolutionFeePercent: 2,
		DisputeRewardPercent: 20,
		Adjudicator:          adjudicator,
		Owner:                owner,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	bank := collateral.NewBank()
	eng := New(bank, testParams(), discardLogger(), WithClock(clock.Now))
	return &fixture{
		eng:    eng,
		bank:   bank,
		clock:  clock,
		oracle: &stubOracle{ref: oracleRef},
		start:  start,
	}
}

// registerMarket registers a 2-outcome market with the event the given
// duration out and funds alice and bob.
func (f *fixture) registerMarket(t *testing.T, id string, eventIn time.Duration, outcomes int) domain.Market {
	t.Helper()
	m, err := f.eng.RegisterMarket(context.Background(), RegisterParams{
		ID:           id,
		EventTime:    f.clock.Now().Add(eventIn),
		Oracle:       f.oracle,
		OutcomeCount: outcomes,
		Creator:      alice,
		Collateral:   usdc,
	})
	if err != nil {
		t.Fatalf("register market: %v", err)
	}
	for _, holder := range []common.Address{alice, bob, venueAddr} {
		if err := f.bank.Deposit(context.Background(), usdc, holder, big.NewInt(1_000_000)); err != nil {
			t.Fatalf("fund %s: %v", holder, err)
		}
	}
	return m
}

// resolveAt advances the clock past event time, scripts the oracle and
// resolves the market.
func (f *fixture) resolveAt(t *testing.T, id string, answer int64) domain.Market {
	t.Helper()
	m, err := f.eng.Market(id)
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	if f.clock.Now().Before(m.EventTime) {
		f.clock.mu.Lock()
		f.clock.now = m.EventTime.Add(time.Minute)
		f.clock.mu.Unlock()
	}
	f.oracle.answer = answer
	f.oracle.updatedAt = f.clock.Now()
	resolved, err := f.eng.ResolveMarket(context.Background(), id)
	if err != nil {
		t.Fatalf("resolve market: %v", err)
	}
	return resolved
}

// fundFees runs a venue trade report sized to credit the protocol fee balance
// with exactly the given amount (share = output*rate/10000 * 40/100).
func (f *fixture) fundFees(t *testing.T, id string, amount int64) {
	t.Helper()
	// share = output * 50 / 10000 * 40 / 100 = output / 500
	err := f.eng.ReportTrade(context.Background(), domain.TradeReport{
		MarketID:     id,
		Venue:        venueAddr,
		OutputAmount: big.NewInt(amount * 500),
		FeeRateBps:   50,
	})
	if err != nil {
		t.Fatalf("fund fees via trade report: %v", err)
	}
}

func wantBig(t *testing.T, got *big.Int, want int64, label string) {
	t.Helper()
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: got %s, want %d", label, got.String(), want)
	}
}
