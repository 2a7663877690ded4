package service

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/collateral"
	"github.com/quorumlabs/settled/internal/domain"
)

// CollateralService funds and inspects vault accounts. Deposits are the entry
// point for external collateral and are restricted to the owner: crediting an
// account mirrors a transfer that already happened outside the system, so
// only the operator may record one.
type CollateralService struct {
	vault  *collateral.Bank
	owner  common.Address
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewCollateralService creates a CollateralService with the given vault and
// owner identity.
func NewCollateralService(
	vault *collateral.Bank,
	owner common.Address,
	audit domain.AuditStore,
	logger *slog.Logger,
) *CollateralService {
	return &CollateralService{
		vault:  vault,
		owner:  owner,
		audit:  audit,
		logger: logger.With(slog.String("component", "collateral_service")),
	}
}

// Deposit credits a holder's vault account with amount of asset.
func (s *CollateralService) Deposit(ctx context.Context, caller, asset, holder common.Address, amount *big.Int) error {
	if caller != s.owner {
		return domain.ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	if err := s.vault.Deposit(ctx, asset, holder, amount); err != nil {
		return err
	}

	detail := map[string]any{
		"asset":  asset.Hex(),
		"holder": holder.Hex(),
		"amount": amount.String(),
	}
	if err := s.audit.Log(ctx, domain.EventCollateralDeposited, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", domain.EventCollateralDeposited),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "collateral deposited",
		slog.String("asset", asset.Hex()),
		slog.String("holder", holder.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// Balance returns a holder's free balance of an asset.
func (s *CollateralService) Balance(asset, holder common.Address) *big.Int {
	return s.vault.BalanceOf(asset, holder)
}

// Custody returns the engine custody total for an asset.
func (s *CollateralService) Custody(ctx context.Context, asset common.Address) (*big.Int, error) {
	return s.vault.CustodyBalance(ctx, asset)
}
