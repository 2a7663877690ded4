package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
)

// The claim ledger. Every mutating operation is all-or-nothing: validation
// happens before any balance moves, and the vault transfer is ordered so a
// transfer failure leaves the claim table untouched.

// MintSet pulls amount collateral from the caller and credits amount of every
// outcome claim to them. Minting is rejected once the market is resolved.
func (e *Engine) MintSet(ctx context.Context, marketID string, caller common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	st, err := e.state(marketID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.market.Resolved {
		return domain.ErrMarketResolved
	}

	if err := e.vault.Pull(ctx, st.market.Collateral, caller, amount); err != nil {
		return fmt.Errorf("engine: mint set: %w", err)
	}
	for i := range st.claims {
		creditClaim(st.claims[i], caller, amount)
	}
	st.collateral.Add(st.collateral, amount)

	e.logger.DebugContext(ctx, "set minted",
		slog.String("market_id", marketID),
		slog.String("holder", caller.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// BurnSet debits amount of every outcome claim from the caller and returns
// amount collateral. There is no resolution-state restriction: burning a
// complete set after resolution is legitimate arbitrage.
func (e *Engine) BurnSet(ctx context.Context, marketID string, caller common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	st, err := e.state(marketID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	for i := range st.claims {
		if claimBalance(st.claims[i], caller).Cmp(amount) < 0 {
			return domain.ErrInsufficientBalance
		}
	}

	if err := e.vault.Push(ctx, st.market.Collateral, caller, amount); err != nil {
		return fmt.Errorf("engine: burn set: %w", err)
	}
	for i := range st.claims {
		debitClaim(st.claims[i], caller, amount)
	}
	st.collateral.Sub(st.collateral, amount)

	e.logger.DebugContext(ctx, "set burned",
		slog.String("market_id", marketID),
		slog.String("holder", caller.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// redeemWinningLocked burns amount of the holder's winning outcome claims,
// sends amount*feeBps/10000 to fee accounting and pays the remainder to the
// holder. The caller must hold st.mu and have checked the lifecycle gates.
func (e *Engine) redeemWinningLocked(ctx context.Context, st *marketState, holder common.Address, amount *big.Int, feeBps int64) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	winning := st.claims[st.market.WinningOutcome]
	if claimBalance(winning, holder).Cmp(amount) < 0 {
		return nil, domain.ErrInsufficientBalance
	}

	fee := new(big.Int).Mul(amount, big.NewInt(feeBps))
	fee.Div(fee, big.NewInt(10000))
	payout := new(big.Int).Sub(amount, fee)

	if err := e.vault.Push(ctx, st.market.Collateral, holder, payout); err != nil {
		return nil, fmt.Errorf("engine: redeem payout: %w", err)
	}
	debitClaim(winning, holder, amount)
	st.collateral.Sub(st.collateral, amount)
	// The fee stays in custody and becomes withdrawable protocol balance.
	e.fees.credit(st.market.Collateral, fee)

	e.logger.InfoContext(ctx, "winning claims redeemed",
		slog.String("market_id", st.market.ID),
		slog.String("holder", holder.Hex()),
		slog.String("amount", amount.String()),
		slog.String("fee", fee.String()),
	)
	return payout, nil
}

// OutcomeCount returns the number of outcomes for a market.
func (e *Engine) OutcomeCount(marketID string) (int, error) {
	st, err := e.state(marketID)
	if err != nil {
		return 0, err
	}
	return st.market.OutcomeCount, nil
}

// OutcomeClaimRef returns the claim reference for one outcome of a market.
func (e *Engine) OutcomeClaimRef(marketID string, outcome int) (domain.OutcomeClaim, error) {
	st, err := e.state(marketID)
	if err != nil {
		return domain.OutcomeClaim{}, err
	}
	if outcome < 0 || outcome >= st.market.OutcomeCount {
		return domain.OutcomeClaim{}, domain.ErrAnswerOutOfRange
	}
	return st.claimRefs[outcome], nil
}

// OutcomeBalance returns the holder's balance of one outcome claim.
func (e *Engine) OutcomeBalance(marketID string, outcome int, holder common.Address) (*big.Int, error) {
	st, err := e.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if outcome < 0 || outcome >= st.market.OutcomeCount {
		return nil, domain.ErrAnswerOutOfRange
	}
	return claimBalance(st.claims[outcome], holder), nil
}

// CompleteSetBalance returns the holder's complete-set balance: the minimum
// balance across all outcome claims, zero if any outcome is unheld.
func (e *Engine) CompleteSetBalance(marketID string, holder common.Address) (*big.Int, error) {
	st, err := e.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	min := claimBalance(st.claims[0], holder)
	for i := 1; i < len(st.claims); i++ {
		if bal := claimBalance(st.claims[i], holder); bal.Cmp(min) < 0 {
			min = bal
		}
	}
	return min, nil
}

// ClaimBalances snapshots the full claim-balance table for a market, used by
// the persistence layer.
func (e *Engine) ClaimBalances(marketID string) ([]domain.ClaimBalance, error) {
	st, err := e.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []domain.ClaimBalance
	for outcome, holders := range st.claims {
		for holder, bal := range holders {
			out = append(out, domain.ClaimBalance{
				MarketID: marketID,
				Outcome:  outcome,
				Holder:   holder,
				Balance:  new(big.Int).Set(bal),
			})
		}
	}
	return out, nil
}

func claimBalance(holders map[common.Address]*big.Int, holder common.Address) *big.Int {
	if bal, ok := holders[holder]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func creditClaim(holders map[common.Address]*big.Int, holder common.Address, amount *big.Int) {
	bal, ok := holders[holder]
	if !ok {
		bal = big.NewInt(0)
		holders[holder] = bal
	}
	bal.Add(bal, amount)
}

func debitClaim(holders map[common.Address]*big.Int, holder common.Address, amount *big.Int) {
	if bal, ok := holders[holder]; ok {
		bal.Sub(bal, amount)
	}
}
