package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
)

// RegisterParams holds the inputs for market registration.
type RegisterParams struct {
	ID           string
	EventTime    time.Time
	Oracle       domain.Oracle
	OutcomeCount int
	Creator      common.Address
	Collateral   common.Address
}

// RegisterMarket validates the parameters, creates the market record and
// registers its outcome claims with the ledger. The market enters the
// trading state immediately.
func (e *Engine) RegisterMarket(ctx context.Context, p RegisterParams) (domain.Market, error) {
	now := e.clock()

	if p.ID == "" {
		return domain.Market{}, domain.ErrInvalidMarketParams
	}
	if !p.EventTime.After(now) {
		return domain.Market{}, domain.ErrEventInPast
	}
	if p.Oracle == nil || p.Oracle.Ref() == (common.Address{}) {
		return domain.Market{}, domain.ErrInvalidOracle
	}
	if p.OutcomeCount < 2 || p.OutcomeCount > 10 {
		return domain.Market{}, domain.ErrInvalidOutcomeCount
	}

	st := &marketState{
		market: domain.Market{
			ID:             p.ID,
			EventTime:      p.EventTime,
			OracleRef:      p.Oracle.Ref(),
			OutcomeCount:   p.OutcomeCount,
			WinningOutcome: -1,
			Volume:         big.NewInt(0),
			Creator:        p.Creator,
			Collateral:     p.Collateral,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		oracle:     p.Oracle,
		claims:     make([]map[common.Address]*big.Int, p.OutcomeCount),
		claimRefs:  make([]domain.OutcomeClaim, p.OutcomeCount),
		collateral: big.NewInt(0),
	}
	for i := range st.claims {
		st.claims[i] = make(map[common.Address]*big.Int)
		st.claimRefs[i] = domain.OutcomeClaim{
			Ref:      fmt.Sprintf("%s/%d", p.ID, i),
			MarketID: p.ID,
			Outcome:  i,
		}
	}

	e.mu.Lock()
	if _, ok := e.markets[p.ID]; ok {
		e.mu.Unlock()
		return domain.Market{}, domain.ErrMarketExists
	}
	e.markets[p.ID] = st
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "market registered",
		slog.String("market_id", p.ID),
		slog.Time("event_time", p.EventTime),
		slog.Int("outcomes", p.OutcomeCount),
	)
	return st.market, nil
}

// ResolveMarket queries the market's oracle and stores the winning outcome.
// It can succeed at most once per market; the stored outcome may only change
// afterwards through an accepted dispute.
func (e *Engine) ResolveMarket(ctx context.Context, marketID string) (domain.Market, error) {
	st, err := e.state(marketID)
	if err != nil {
		return domain.Market{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if err := e.resolveLocked(ctx, st, e.clock()); err != nil {
		return domain.Market{}, err
	}
	return st.market, nil
}

// resolveLocked performs the oracle query and state write. The caller must
// hold st.mu.
func (e *Engine) resolveLocked(ctx context.Context, st *marketState, now time.Time) error {
	if st.market.Resolved {
		return domain.ErrAlreadyResolved
	}
	if now.Before(st.market.EventTime) {
		return domain.ErrEventNotReached
	}

	answer, updatedAt, err := st.oracle.LatestAnswer(ctx)
	if err != nil {
		return fmt.Errorf("engine: oracle query: %w", err)
	}
	if updatedAt.Before(st.market.EventTime) {
		return domain.ErrStaleOracleAnswer
	}
	if answer < 0 || answer >= int64(st.market.OutcomeCount) {
		return domain.ErrAnswerOutOfRange
	}

	st.market.Resolved = true
	st.market.WinningOutcome = int(answer)
	resolvedAt := now
	st.market.ResolutionTime = &resolvedAt
	st.market.UpdatedAt = now

	e.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", st.market.ID),
		slog.Int("winning_outcome", st.market.WinningOutcome),
	)
	return nil
}

// tryResolveLocked attempts resolution and discards any error. Trade reports
// against a frozen market trigger it so a market can settle without an
// explicit ResolveMarket call; a failure here (stale oracle, no answer yet)
// must not mask the caller's trading-frozen error.
func (e *Engine) tryResolveLocked(ctx context.Context, st *marketState, now time.Time) {
	if err := e.resolveLocked(ctx, st, now); err != nil {
		e.logger.DebugContext(ctx, "opportunistic resolution failed",
			slog.String("market_id", st.market.ID),
			slog.String("error", err.Error()),
		)
	}
}

// FinalizeMarket irreversibly locks in the outcome once the dispute window
// has elapsed and every dispute on the market is resolved. Finalization
// unlocks redemption.
func (e *Engine) FinalizeMarket(ctx context.Context, marketID string) (domain.Market, error) {
	st, err := e.state(marketID)
	if err != nil {
		return domain.Market{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.market.Resolved {
		return domain.Market{}, domain.ErrMarketNotResolved
	}
	if st.market.Finalized {
		return domain.Market{}, domain.ErrAlreadyFinalized
	}
	now := e.clock()
	if now.Before(st.market.ResolutionTime.Add(e.params.DisputePeriod)) {
		return domain.Market{}, domain.ErrDisputePeriodActive
	}
	for _, d := range st.disputes {
		if !d.Resolved {
			return domain.Market{}, domain.ErrUnresolvedDisputes
		}
	}

	st.market.Finalized = true
	st.market.UpdatedAt = now

	e.logger.InfoContext(ctx, "market finalized",
		slog.String("market_id", marketID),
		slog.Int("winning_outcome", st.market.WinningOutcome),
	)
	return st.market, nil
}

// IsTradeable reports whether trades may still execute against the market.
func (e *Engine) IsTradeable(marketID string) (bool, error) {
	st, err := e.state(marketID)
	if err != nil {
		return false, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.market.Tradeable(e.clock()), nil
}

// TimeUntilEvent returns the remaining time before the market's event, or
// zero if the event time has passed.
func (e *Engine) TimeUntilEvent(marketID string) (time.Duration, error) {
	st, err := e.state(marketID)
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	remaining := st.market.EventTime.Sub(e.clock())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// RedeemWinningTokens redeems winning outcome claims for collateral. It
// requires the market to be both resolved and finalized: redemption before
// resolution fails with ErrMarketNotResolved, redemption during the dispute
// window fails with ErrMarketNotFinalized. The resolution fee share is
// recorded in fee accounting.
func (e *Engine) RedeemWinningTokens(ctx context.Context, marketID string, holder common.Address, amount *big.Int) (payout *big.Int, err error) {
	st, err := e.state(marketID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.market.Resolved {
		return nil, domain.ErrMarketNotResolved
	}
	if !st.market.Finalized {
		return nil, domain.ErrMarketNotFinalized
	}

	feeBps := e.params.ResolutionFeePercent * 100
	return e.redeemWinningLocked(ctx, st, holder, amount, feeBps)
}
