// Package collateral provides collateral vault implementations. Bank is a
// double-entry vault that keeps balances in memory and optionally mirrors
// every movement to a durable store; custody is tracked per asset alongside
// external holder accounts.
package collateral

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
)

// Bank is an in-memory implementation of domain.CollateralVault. With a store
// attached, every Deposit, Pull and Push writes the affected balances through
// before returning; a store failure rolls the in-memory movement back so
// memory and durable state cannot drift apart.
type Bank struct {
	mu       sync.Mutex
	accounts map[common.Address]map[common.Address]*big.Int // asset -> holder -> balance
	custody  map[common.Address]*big.Int                    // asset -> custody balance
	store    domain.CollateralStore
}

// Option customizes Bank construction.
type Option func(*Bank)

// WithStore attaches a durable store the bank writes balances through to.
func WithStore(store domain.CollateralStore) Option {
	return func(b *Bank) { b.store = store }
}

// NewBank creates an empty Bank.
func NewBank(opts ...Option) *Bank {
	b := &Bank{
		accounts: make(map[common.Address]map[common.Address]*big.Int),
		custody:  make(map[common.Address]*big.Int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load replays persisted balances into memory. It runs once on startup before
// the engine takes traffic; a bank without a store loads nothing.
func (b *Bank) Load(ctx context.Context) error {
	if b.store == nil {
		return nil
	}

	accounts, err := b.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("collateral: load accounts: %w", err)
	}
	custody, err := b.store.ListCustody(ctx)
	if err != nil {
		return fmt.Errorf("collateral: load custody: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range accounts {
		b.account(a.Asset, a.Holder).Set(a.Balance)
	}
	for _, c := range custody {
		b.custodyAccount(c.Asset).Set(c.Balance)
	}
	return nil
}

// Deposit credits a holder account. This is the funding path for external
// collateral arriving in the system.
func (b *Bank) Deposit(ctx context.Context, asset, holder common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct := b.account(asset, holder)
	acct.Add(acct, amount)
	if err := b.persist(ctx, asset, holder); err != nil {
		acct.Sub(acct, amount)
		return err
	}
	return nil
}

// BalanceOf returns a holder's balance of an asset.
func (b *Bank) BalanceOf(asset, holder common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.account(asset, holder))
}

// Pull moves amount of asset from the holder into custody. It fails with
// domain.ErrInsufficientCollateral without any movement if the holder's
// balance is short.
func (b *Bank) Pull(ctx context.Context, asset, from common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct := b.account(asset, from)
	if acct.Cmp(amount) < 0 {
		return domain.ErrInsufficientCollateral
	}
	acct.Sub(acct, amount)
	cust := b.custodyAccount(asset)
	cust.Add(cust, amount)
	if err := b.persist(ctx, asset, from); err != nil {
		acct.Add(acct, amount)
		cust.Sub(cust, amount)
		return err
	}
	return nil
}

// Push moves amount of asset from custody to the recipient.
func (b *Bank) Push(ctx context.Context, asset, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cust := b.custodyAccount(asset)
	if cust.Cmp(amount) < 0 {
		return domain.ErrInsufficientCollateral
	}
	cust.Sub(cust, amount)
	acct := b.account(asset, to)
	acct.Add(acct, amount)
	if err := b.persist(ctx, asset, to); err != nil {
		cust.Add(cust, amount)
		acct.Sub(acct, amount)
		return err
	}
	return nil
}

// CustodyBalance returns the amount of asset currently held in custody.
func (b *Bank) CustodyBalance(_ context.Context, asset common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.custodyAccount(asset)), nil
}

// persist writes the holder's account row and the asset's custody row through
// to the store. The caller must hold b.mu.
func (b *Bank) persist(ctx context.Context, asset, holder common.Address) error {
	if b.store == nil {
		return nil
	}
	err := b.store.UpsertAccount(ctx, domain.CollateralAccount{
		Asset:   asset,
		Holder:  holder,
		Balance: new(big.Int).Set(b.account(asset, holder)),
	})
	if err != nil {
		return fmt.Errorf("collateral: persist account: %w", err)
	}
	err = b.store.UpsertCustody(ctx, domain.CustodyBalance{
		Asset:   asset,
		Balance: new(big.Int).Set(b.custodyAccount(asset)),
	})
	if err != nil {
		return fmt.Errorf("collateral: persist custody: %w", err)
	}
	return nil
}

func (b *Bank) account(asset, holder common.Address) *big.Int {
	holders, ok := b.accounts[asset]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		b.accounts[asset] = holders
	}
	bal, ok := holders[holder]
	if !ok {
		bal = big.NewInt(0)
		holders[holder] = bal
	}
	return bal
}

func (b *Bank) custodyAccount(asset common.Address) *big.Int {
	bal, ok := b.custody[asset]
	if !ok {
		bal = big.NewInt(0)
		b.custody[asset] = bal
	}
	return bal
}

// Compile-time interface check.
var _ domain.CollateralVault = (*Bank)(nil)
