// Package engine implements the settlement core for event contract markets:
// the market lifecycle state machine, the complete-set claim ledger, fee
// accounting, and the stake-gated dispute subsystem.
//
// A single Engine owns every keyed registry (markets, claim balances,
// disputes, fee balances); there are no package-level singletons. Callers in
// a concurrent host are serialized per market by the per-market mutex, so no
// two mutations of the same market's state can interleave.
package engine

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
)

// Params holds the protocol parameters the engine operates under.
type Params struct {
	// DisputePeriod is the length of the dispute window after resolution.
	DisputePeriod time.Duration
	// MinDisputeStake is the smallest accepted dispute stake, in collateral
	// base units.
	MinDisputeStake *big.Int
	// ProtocolFeePercent is the protocol's share of venue swap fees.
	ProtocolFeePercent int64
	// ResolutionFeePercent is the fee taken on every redemption.
	ResolutionFeePercent int64
	// DisputeRewardPercent is the reward paid on an accepted dispute,
	// expressed as a percentage of the stake.
	DisputeRewardPercent int64
	// Adjudicator is the only identity allowed to resolve disputes.
	Adjudicator common.Address
	// Owner is the only identity allowed to withdraw protocol fees.
	Owner common.Address
}

// marketState bundles a market record with its claim ledger, collateral
// position, dispute list and oracle handle. Its mutex serializes every
// mutation of the market.
type marketState struct {
	mu sync.Mutex

	market     domain.Market
	oracle     domain.Oracle
	claims     []map[common.Address]*big.Int // outcome index -> holder -> balance
	claimRefs  []domain.OutcomeClaim
	collateral *big.Int // vault custody attributable to this market
	disputes   []*domain.Dispute
}

// Engine is the top-level settlement engine object.
type Engine struct {
	mu      sync.RWMutex
	markets map[string]*marketState

	fees   *feeBook
	vault  domain.CollateralVault
	params Params
	clock  func() time.Time
	logger *slog.Logger
}

// Option customizes Engine construction.
type Option func(*Engine)

// WithClock replaces the engine's time source. Tests use this to pin time.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// New creates an Engine backed by the given collateral vault.
func New(vault domain.CollateralVault, params Params, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		markets: make(map[string]*marketState),
		fees:    newFeeBook(),
		vault:   vault,
		params:  params,
		clock:   time.Now,
		logger:  logger.With(slog.String("component", "engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// state returns the marketState for id or domain.ErrMarketNotFound.
func (e *Engine) state(id string) (*marketState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return st, nil
}

// Market returns a snapshot of the market record.
func (e *Engine) Market(id string) (domain.Market, error) {
	st, err := e.state(id)
	if err != nil {
		return domain.Market{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.market, nil
}

// Markets returns snapshots of every registered market.
func (e *Engine) Markets() []domain.Market {
	e.mu.RLock()
	states := make([]*marketState, 0, len(e.markets))
	for _, st := range e.markets {
		states = append(states, st)
	}
	e.mu.RUnlock()

	out := make([]domain.Market, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		out = append(out, st.market)
		st.mu.Unlock()
	}
	return out
}

// CollateralBalance returns the vault custody attributable to the market:
// (sets minted - sets burned) x unit, minus net redemption payouts.
func (e *Engine) CollateralBalance(marketID string) (*big.Int, error) {
	st, err := e.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return new(big.Int).Set(st.collateral), nil
}

// RestoreMarket loads a previously persisted market into the engine. It is
// used on startup rehydration and must not be called for live markets.
func (e *Engine) RestoreMarket(m domain.Market, oracle domain.Oracle, claims []domain.ClaimBalance, disputes []domain.Dispute) error {
	if m.OutcomeCount < 2 || m.OutcomeCount > 10 {
		return domain.ErrInvalidOutcomeCount
	}

	st := &marketState{
		market:     m,
		oracle:     oracle,
		claims:     make([]map[common.Address]*big.Int, m.OutcomeCount),
		claimRefs:  make([]domain.OutcomeClaim, m.OutcomeCount),
		collateral: big.NewInt(0),
	}
	for i := range st.claims {
		st.claims[i] = make(map[common.Address]*big.Int)
		st.claimRefs[i] = domain.OutcomeClaim{
			Ref:      fmt.Sprintf("%s/%d", m.ID, i),
			MarketID: m.ID,
			Outcome:  i,
		}
	}
	for _, b := range claims {
		if b.Outcome < 0 || b.Outcome >= m.OutcomeCount {
			return fmt.Errorf("engine: restore %s: claim outcome %d out of range", m.ID, b.Outcome)
		}
		st.claims[b.Outcome][b.Holder] = new(big.Int).Set(b.Balance)
	}
	// Reconstruct custody from claim supply. Before resolution every outcome
	// supply is equal (mints and burns are symmetric); after resolution only
	// the winning outcome is redeemable, so its remaining supply is the
	// collateral still owed.
	backing := 0
	if m.Resolved {
		backing = m.WinningOutcome
	}
	supply := big.NewInt(0)
	for _, bal := range st.claims[backing] {
		supply.Add(supply, bal)
	}
	st.collateral = supply

	for i := range disputes {
		d := disputes[i]
		st.disputes = append(st.disputes, &d)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.markets[m.ID]; ok {
		return domain.ErrMarketExists
	}
	e.markets[m.ID] = st
	return nil
}

// RestoreFees loads persisted per-asset fee balances on startup.
func (e *Engine) RestoreFees(balances []domain.FeeBalance) {
	for _, b := range balances {
		e.fees.credit(b.Asset, b.Balance)
	}
}

// Compile-time interface checks.
var (
	_ domain.FeeQuoter     = (*Engine)(nil)
	_ domain.TradeReporter = (*Engine)(nil)
)
