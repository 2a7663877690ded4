package service

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
	"github.com/quorumlabs/settled/internal/engine"
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

func (c *fakeClock) SetTo(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
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

// memMarketStore keeps market rows in a map.
type memMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{markets: make(map[string]domain.Market)}
}

func (s *memMarketStore) Upsert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	return nil
}

func (s *memMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	return m, nil
}

func (s *memMarketStore) List(context.Context, domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	return out, nil
}

func (s *memMarketStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

// memClaimStore records every upsert so tests can inspect what was persisted.
type memClaimStore struct {
	mu   sync.Mutex
	rows []domain.ClaimBalance
}

func (s *memClaimStore) Upsert(_ context.Context, b domain.ClaimBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, b)
	return nil
}

func (s *memClaimStore) UpsertBatch(_ context.Context, balances []domain.ClaimBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, balances...)
	return nil
}

func (s *memClaimStore) ListByMarket(_ context.Context, marketID string) ([]domain.ClaimBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ClaimBalance
	for _, r := range s.rows {
		if r.MarketID == marketID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memClaimStore) ListByHolder(_ context.Context, marketID string, holder common.Address) ([]domain.ClaimBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ClaimBalance
	for _, r := range s.rows {
		if r.MarketID == marketID && r.Holder == holder {
			out = append(out, r)
		}
	}
	return out, nil
}

// memDisputeStore keeps dispute rows in insertion order.
type memDisputeStore struct {
	mu   sync.Mutex
	rows []domain.Dispute
}

func (s *memDisputeStore) Insert(_ context.Context, d domain.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, d)
	return nil
}

func (s *memDisputeStore) MarkResolved(_ context.Context, id string, accepted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].Resolved = true
			s.rows[i].Accepted = accepted
			return nil
		}
	}
	return domain.ErrDisputeNotFound
}

func (s *memDisputeStore) GetByID(_ context.Context, id string) (domain.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.rows {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.Dispute{}, domain.ErrDisputeNotFound
}

func (s *memDisputeStore) ListByMarket(_ context.Context, marketID string) ([]domain.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Dispute
	for _, d := range s.rows {
		if d.MarketID == marketID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memDisputeStore) ListUnresolved(_ context.Context, marketID string) ([]domain.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Dispute
	for _, d := range s.rows {
		if d.MarketID == marketID && !d.Resolved {
			out = append(out, d)
		}
	}
	return out, nil
}

// memFeeStore keeps the durable fee balance per asset.
type memFeeStore struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

func newMemFeeStore() *memFeeStore {
	return &memFeeStore{balances: make(map[common.Address]*big.Int)}
}

func (s *memFeeStore) Upsert(_ context.Context, b domain.FeeBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[b.Asset] = new(big.Int).Set(b.Balance)
	return nil
}

func (s *memFeeStore) Get(_ context.Context, asset common.Address) (domain.FeeBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[asset]
	if !ok {
		return domain.FeeBalance{}, domain.ErrNotFound
	}
	return domain.FeeBalance{Asset: asset, Balance: new(big.Int).Set(bal)}, nil
}

func (s *memFeeStore) List(context.Context) ([]domain.FeeBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.FeeBalance, 0, len(s.balances))
	for asset, bal := range s.balances {
		out = append(out, domain.FeeBalance{Asset: asset, Balance: new(big.Int).Set(bal)})
	}
	return out, nil
}

func (s *memFeeStore) balance(asset common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[asset]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// memAuditStore records audit events in order.
type memAuditStore struct {
	mu     sync.Mutex
	events []string
}

func (s *memAuditStore) Log(_ context.Context, event string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memAuditStore) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (s *memAuditStore) has(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e == event {
			return true
		}
	}
	return false
}

// noopBus satisfies domain.SignalBus and drops everything.
type noopBus struct{}

func (noopBus) Publish(context.Context, string, []byte) error      { return nil }
func (noopBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (noopBus) Subscribe(context.Context, ...string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (noopBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// memCache never holds a snapshot and records which IDs were invalidated.
type memCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *memCache) Set(context.Context, domain.Market) error { return nil }

func (c *memCache) Get(context.Context, string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}

func (c *memCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	return nil
}

func (c *memCache) invalidatedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invalidated...)
}

func testParams() engine.Params {
	return engine.Params{
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

// fixture wires an engine against in-memory stores so services can be tested
// end to end without PostgreSQL or Redis.
type fixture struct {
	eng      *engine.Engine
	bank     *collateral.Bank
	clock    *fakeClock
	oracle   *stubOracle
	markets  *memMarketStore
	claims   *memClaimStore
	disputes *memDisputeStore
	fees     *memFeeStore
	audit    *memAuditStore
	cache    *memCache
	bus      noopBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	bank := collateral.NewBank()
	return &fixture{
		eng:      engine.New(bank, testParams(), discardLogger(), engine.WithClock(clock.Now)),
		bank:     bank,
		clock:    clock,
		oracle:   &stubOracle{ref: oracleRef},
		markets:  newMemMarketStore(),
		claims:   &memClaimStore{},
		disputes: &memDisputeStore{},
		fees:     newMemFeeStore(),
		audit:    &memAuditStore{},
		cache:    &memCache{},
	}
}

func registerParamsFor(f *fixture, id string) engine.RegisterParams {
	return engine.RegisterParams{
		ID:           id,
		EventTime:    f.clock.Now().Add(time.Hour),
		Oracle:       f.oracle,
		OutcomeCount: 2,
		Creator:      alice,
		Collateral:   usdc,
	}
}

// registerMarket registers a 2-outcome market with the event one hour out and
// funds the standard holders.
func (f *fixture) registerMarket(t *testing.T, id string) domain.Market {
	t.Helper()
	m, err := f.eng.RegisterMarket(context.Background(), registerParamsFor(f, id))
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
		f.clock.SetTo(m.EventTime.Add(time.Minute))
	}
	f.oracle.answer = answer
	f.oracle.updatedAt = f.clock.Now()
	resolved, err := f.eng.ResolveMarket(context.Background(), id)
	if err != nil {
		t.Fatalf("resolve market: %v", err)
	}
	return resolved
}

func wantBig(t *testing.T, got *big.Int, want int64, label string) {
	t.Helper()
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: got %s, want %d", label, got.String(), want)
	}
}
