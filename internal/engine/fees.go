package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
)

// Fee multiplier windows. The multiplier rises as the event approaches to
// compensate liquidity providers for information-driven volatility and to
// discourage late manipulative trades.
const (
	feeWindowWeek = 7 * 24 * time.Hour
	feeWindowDay  = 24 * time.Hour
	feeWindowHour = time.Hour
)

// FeeMultiplier returns the trading fee multiplier for the given time to
// event: >=7d 1.0x, [1d,7d) 1.5x, [1h,1d) 2.0x, <1h 3.0x.
func FeeMultiplier(timeToEvent time.Duration) float64 {
	switch {
	case timeToEvent >= feeWindowWeek:
		return 1.0
	case timeToEvent >= feeWindowDay:
		return 1.5
	case timeToEvent >= feeWindowHour:
		return 2.0
	default:
		return 3.0
	}
}

// CurrentFeeMultiplier implements domain.FeeQuoter.
func (e *Engine) CurrentFeeMultiplier(marketID string, now time.Time) (float64, error) {
	st, err := e.state(marketID)
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	eventTime := st.market.EventTime
	st.mu.Unlock()
	return FeeMultiplier(eventTime.Sub(now)), nil
}

// feeBook tracks the withdrawable protocol fee balance per collateral asset.
// Every mutation is a single atomic read-modify-write under the book mutex.
type feeBook struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

func newFeeBook() *feeBook {
	return &feeBook{balances: make(map[common.Address]*big.Int)}
}

func (b *feeBook) credit(asset common.Address, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.balances[asset]
	if !ok {
		bal = big.NewInt(0)
		b.balances[asset] = bal
	}
	bal.Add(bal, amount)
}

// debit reduces the asset balance or fails with domain.ErrInsufficientFees.
// It never truncates a partial amount.
func (b *feeBook) debit(asset common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.balances[asset]
	if !ok || bal.Cmp(amount) < 0 {
		return domain.ErrInsufficientFees
	}
	bal.Sub(bal, amount)
	return nil
}

func (b *feeBook) balance(asset common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[asset]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (b *feeBook) all() []domain.FeeBalance {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.FeeBalance, 0, len(b.balances))
	for asset, bal := range b.balances {
		out = append(out, domain.FeeBalance{Asset: asset, Balance: new(big.Int).Set(bal)})
	}
	return out
}

// FeeBalance returns the withdrawable protocol fee balance for an asset.
func (e *Engine) FeeBalance(asset common.Address) *big.Int {
	return e.fees.balance(asset)
}

// FeeBalances returns every per-asset fee balance.
func (e *Engine) FeeBalances() []domain.FeeBalance {
	return e.fees.all()
}

// WithdrawFees transfers accumulated protocol fees to the recipient. Only the
// configured owner may withdraw.
func (e *Engine) WithdrawFees(ctx context.Context, caller, asset, recipient common.Address, amount *big.Int) error {
	if caller != e.params.Owner {
		return domain.ErrUnauthorized
	}
	if recipient == (common.Address{}) {
		return domain.ErrInvalidRecipient
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	if err := e.fees.debit(asset, amount); err != nil {
		return err
	}
	if err := e.vault.Push(ctx, asset, recipient, amount); err != nil {
		e.fees.credit(asset, amount)
		return fmt.Errorf("engine: withdraw fees: %w", err)
	}

	e.logger.Info("fees withdrawn",
		slog.String("asset", asset.Hex()),
		slog.String("recipient", recipient.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// ReportTrade implements domain.TradeReporter. The venue calls it after each
// trade; the engine skims the protocol share of the swap fee out of the
// venue's settlement and accounts the trade volume on the market.
//
// A report against a frozen market fails with domain.ErrTradingFrozen and, if
// the market is past event time but unresolved, opportunistically attempts
// resolution first. Any error from that attempt is discarded so resolution
// can be retried later by an explicit ResolveMarket call.
func (e *Engine) ReportTrade(ctx context.Context, report domain.TradeReport) error {
	if report.OutputAmount == nil || report.OutputAmount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	st, err := e.state(report.MarketID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := e.clock()
	if !st.market.Tradeable(now) {
		e.tryResolveLocked(ctx, st, now)
		return domain.ErrTradingFrozen
	}

	// swapFee = output * feeRate; protocolShare = swapFee * percent / 100.
	swapFee := new(big.Int).Mul(report.OutputAmount, big.NewInt(report.FeeRateBps))
	swapFee.Div(swapFee, big.NewInt(10000))
	share := new(big.Int).Mul(swapFee, big.NewInt(e.params.ProtocolFeePercent))
	share.Div(share, big.NewInt(100))

	if share.Sign() > 0 {
		if err := e.vault.Pull(ctx, st.market.Collateral, report.Venue, share); err != nil {
			return fmt.Errorf("engine: skim protocol fee: %w", err)
		}
		e.fees.credit(st.market.Collateral, share)
	}

	st.market.Volume = new(big.Int).Add(st.market.Volume, report.OutputAmount)
	st.market.UpdatedAt = now
	return nil
}
