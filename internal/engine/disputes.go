package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/quorumlabs/settled/internal/domain"
)

// SubmitDispute accepts a staked challenge to a resolved market's stored
// outcome. The stake is pulled into custody and the dispute record appended;
// multiple independently staked disputes per market are allowed.
func (e *Engine) SubmitDispute(ctx context.Context, marketID string, challenger common.Address, proposedOutcome int, stake *big.Int) (domain.Dispute, error) {
	st, err := e.state(marketID)
	if err != nil {
		return domain.Dispute{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.market.Resolved {
		return domain.Dispute{}, domain.ErrMarketNotResolved
	}
	if st.market.Finalized {
		return domain.Dispute{}, domain.ErrAlreadyFinalized
	}
	now := e.clock()
	if !st.market.DisputeWindowOpen(now, e.params.DisputePeriod) {
		return domain.Dispute{}, domain.ErrDisputePeriodExpired
	}
	if stake == nil || stake.Cmp(e.params.MinDisputeStake) < 0 {
		return domain.Dispute{}, domain.ErrInsufficientDisputeStake
	}
	if proposedOutcome < 0 || proposedOutcome >= st.market.OutcomeCount || proposedOutcome == st.market.WinningOutcome {
		return domain.Dispute{}, domain.ErrInvalidDisputeOutcome
	}

	if err := e.vault.Pull(ctx, st.market.Collateral, challenger, stake); err != nil {
		return domain.Dispute{}, fmt.Errorf("engine: pull dispute stake: %w", err)
	}

	d := &domain.Dispute{
		ID:                uuid.New().String(),
		MarketID:          marketID,
		Challenger:        challenger,
		ChallengedOutcome: st.market.WinningOutcome,
		ProposedOutcome:   proposedOutcome,
		Stake:             new(big.Int).Set(stake),
		SubmittedAt:       now,
	}
	st.disputes = append(st.disputes, d)

	e.logger.InfoContext(ctx, "dispute submitted",
		slog.String("market_id", marketID),
		slog.String("dispute_id", d.ID),
		slog.String("challenger", challenger.Hex()),
		slog.Int("proposed_outcome", proposedOutcome),
		slog.String("stake", stake.String()),
	)
	return *d, nil
}

// ResolveDispute adjudicates one dispute. Only the configured adjudicator may
// call it, and each dispute is adjudicated exactly once.
//
// Accepted: the market's winning outcome is overwritten with the proposed
// outcome and the challenger is paid stake plus a reward funded from the
// protocol fee balance; an underfunded fee balance fails the call rather than
// truncating the reward. Rejected: the stake is forfeited into the protocol
// fee balance.
func (e *Engine) ResolveDispute(ctx context.Context, caller common.Address, marketID, disputeID string, accepted bool) (domain.Dispute, error) {
	if caller != e.params.Adjudicator {
		return domain.Dispute{}, domain.ErrUnauthorized
	}

	st, err := e.state(marketID)
	if err != nil {
		return domain.Dispute{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.market.Resolved {
		return domain.Dispute{}, domain.ErrMarketNotResolved
	}

	var d *domain.Dispute
	for _, cand := range st.disputes {
		if cand.ID == disputeID {
			d = cand
			break
		}
	}
	if d == nil {
		return domain.Dispute{}, domain.ErrDisputeNotFound
	}
	if d.Resolved {
		return domain.Dispute{}, domain.ErrDisputeAlreadyResolved
	}

	asset := st.market.Collateral
	if accepted {
		reward := new(big.Int).Mul(d.Stake, big.NewInt(e.params.DisputeRewardPercent))
		reward.Div(reward, big.NewInt(100))

		if err := e.fees.debit(asset, reward); err != nil {
			return domain.Dispute{}, fmt.Errorf("engine: fund dispute reward: %w", err)
		}
		payout := new(big.Int).Add(d.Stake, reward)
		if err := e.vault.Push(ctx, asset, d.Challenger, payout); err != nil {
			e.fees.credit(asset, reward)
			return domain.Dispute{}, fmt.Errorf("engine: pay dispute reward: %w", err)
		}

		st.market.WinningOutcome = d.ProposedOutcome
		st.market.UpdatedAt = e.clock()
	} else {
		// Forfeited stake remains in custody and becomes protocol balance.
		e.fees.credit(asset, d.Stake)
	}

	d.Resolved = true
	d.Accepted = accepted

	e.logger.InfoContext(ctx, "dispute resolved",
		slog.String("market_id", marketID),
		slog.String("dispute_id", disputeID),
		slog.Bool("accepted", accepted),
	)
	return *d, nil
}

// Disputes returns snapshots of every dispute on a market.
func (e *Engine) Disputes(marketID string) ([]domain.Dispute, error) {
	st, err := e.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]domain.Dispute, 0, len(st.disputes))
	for _, d := range st.disputes {
		out = append(out, *d)
	}
	return out, nil
}

// Dispute returns a snapshot of one dispute.
func (e *Engine) Dispute(marketID, disputeID string) (domain.Dispute, error) {
	st, err := e.state(marketID)
	if err != nil {
		return domain.Dispute{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, d := range st.disputes {
		if d.ID == disputeID {
			return *d, nil
		}
	}
	return domain.Dispute{}, domain.ErrDisputeNotFound
}
