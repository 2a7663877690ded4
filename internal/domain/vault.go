package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralVault moves collateral between external holders and engine
// custody. Pull and Push must be atomic per call: either the full amount
// moves or the call fails with no effect.
type CollateralVault interface {
	// Pull transfers amount of asset from the holder into engine custody.
	Pull(ctx context.Context, asset, from common.Address, amount *big.Int) error
	// Push transfers amount of asset from engine custody to the recipient.
	Push(ctx context.Context, asset, to common.Address, amount *big.Int) error
	// CustodyBalance returns the amount of asset currently held in custody.
	CustodyBalance(ctx context.Context, asset common.Address) (*big.Int, error)
}

// CollateralAccount is one holder's balance of one collateral asset.
type CollateralAccount struct {
	Asset   common.Address
	Holder  common.Address
	Balance *big.Int
}

// CustodyBalance is the engine custody total for one collateral asset.
type CustodyBalance struct {
	Asset   common.Address
	Balance *big.Int
}

// CollateralStore persists vault account and custody balances so the vault
// survives restarts.
type CollateralStore interface {
	UpsertAccount(ctx context.Context, a CollateralAccount) error
	UpsertCustody(ctx context.Context, c CustodyBalance) error
	ListAccounts(ctx context.Context) ([]CollateralAccount, error)
	ListCustody(ctx context.Context) ([]CustodyBalance, error)
}
