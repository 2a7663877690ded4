package collateral

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
)

var (
	usdc  = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b02")
)

func deposit(t *testing.T, b *Bank, asset, holder common.Address, amount int64) {
	t.Helper()
	if err := b.Deposit(context.Background(), asset, holder, big.NewInt(amount)); err != nil {
		t.Fatalf("Deposit() = %v", err)
	}
}

func TestPullMovesBalanceIntoCustody(t *testing.T) {
	b := NewBank()
	deposit(t, b, usdc, alice, 500)

	if err := b.Pull(context.Background(), usdc, alice, big.NewInt(300)); err != nil {
		t.Fatalf("Pull() = %v", err)
	}

	if got := b.BalanceOf(usdc, alice); got.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("alice balance = %s, want 200", got)
	}
	cust, err := b.CustodyBalance(context.Background(), usdc)
	if err != nil {
		t.Fatalf("CustodyBalance() = %v", err)
	}
	if cust.Cmp(big.NewInt(300)) != 0 {
		t.Errorf("custody = %s, want 300", cust)
	}
}

func TestPullInsufficientBalanceLeavesAccountsUntouched(t *testing.T) {
	b := NewBank()
	deposit(t, b, usdc, alice, 100)

	err := b.Pull(context.Background(), usdc, alice, big.NewInt(101))
	if !errors.Is(err, domain.ErrInsufficientCollateral) {
		t.Fatalf("Pull() = %v, want ErrInsufficientCollateral", err)
	}

	if got := b.BalanceOf(usdc, alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("alice balance = %s, want 100 after failed pull", got)
	}
}

func TestPushPaysOutOfCustody(t *testing.T) {
	b := NewBank()
	deposit(t, b, usdc, alice, 500)
	if err := b.Pull(context.Background(), usdc, alice, big.NewInt(500)); err != nil {
		t.Fatalf("Pull() = %v", err)
	}

	if err := b.Push(context.Background(), usdc, bob, big.NewInt(200)); err != nil {
		t.Fatalf("Push() = %v", err)
	}

	if got := b.BalanceOf(usdc, bob); got.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("bob balance = %s, want 200", got)
	}
	cust, _ := b.CustodyBalance(context.Background(), usdc)
	if cust.Cmp(big.NewInt(300)) != 0 {
		t.Errorf("custody = %s, want 300", cust)
	}
}

func TestPushInsufficientCustody(t *testing.T) {
	b := NewBank()

	err := b.Push(context.Background(), usdc, bob, big.NewInt(1))
	if !errors.Is(err, domain.ErrInsufficientCollateral) {
		t.Fatalf("Push() = %v, want ErrInsufficientCollateral", err)
	}
}

func TestAssetsAreIsolated(t *testing.T) {
	dai := common.HexToAddress("0x0000000000000000000000000000000000000a02")

	b := NewBank()
	deposit(t, b, usdc, alice, 100)

	if got := b.BalanceOf(dai, alice); got.Sign() != 0 {
		t.Errorf("dai balance = %s, want 0", got)
	}
	if err := b.Pull(context.Background(), dai, alice, big.NewInt(1)); !errors.Is(err, domain.ErrInsufficientCollateral) {
		t.Errorf("Pull(dai) = %v, want ErrInsufficientCollateral", err)
	}
}

func TestBalanceOfReturnsCopy(t *testing.T) {
	b := NewBank()
	deposit(t, b, usdc, alice, 100)

	bal := b.BalanceOf(usdc, alice)
	bal.SetInt64(0)

	if got := b.BalanceOf(usdc, alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("alice balance = %s, want 100 after mutating returned value", got)
	}
}

// memCollateralStore is an in-memory domain.CollateralStore that can be
// scripted to fail.
type memCollateralStore struct {
	accounts map[string]*big.Int // asset/holder -> balance
	custody  map[string]*big.Int // asset -> balance
	failNext error
}

func newMemCollateralStore() *memCollateralStore {
	return &memCollateralStore{
		accounts: make(map[string]*big.Int),
		custody:  make(map[string]*big.Int),
	}
}

func accountKey(asset, holder common.Address) string {
	return asset.Hex() + "/" + holder.Hex()
}

func (s *memCollateralStore) UpsertAccount(_ context.Context, a domain.CollateralAccount) error {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.accounts[accountKey(a.Asset, a.Holder)] = new(big.Int).Set(a.Balance)
	return nil
}

func (s *memCollateralStore) UpsertCustody(_ context.Context, c domain.CustodyBalance) error {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.custody[c.Asset.Hex()] = new(big.Int).Set(c.Balance)
	return nil
}

func (s *memCollateralStore) ListAccounts(context.Context) ([]domain.CollateralAccount, error) {
	out := make([]domain.CollateralAccount, 0, len(s.accounts))
	for key, bal := range s.accounts {
		out = append(out, domain.CollateralAccount{
			Asset:   common.HexToAddress(key[:42]),
			Holder:  common.HexToAddress(key[43:]),
			Balance: new(big.Int).Set(bal),
		})
	}
	return out, nil
}

func (s *memCollateralStore) ListCustody(context.Context) ([]domain.CustodyBalance, error) {
	out := make([]domain.CustodyBalance, 0, len(s.custody))
	for asset, bal := range s.custody {
		out = append(out, domain.CustodyBalance{
			Asset:   common.HexToAddress(asset),
			Balance: new(big.Int).Set(bal),
		})
	}
	return out, nil
}

func TestBankWritesBalancesThrough(t *testing.T) {
	store := newMemCollateralStore()
	b := NewBank(WithStore(store))
	ctx := context.Background()

	deposit(t, b, usdc, alice, 500)
	if err := b.Pull(ctx, usdc, alice, big.NewInt(300)); err != nil {
		t.Fatalf("Pull() = %v", err)
	}
	if err := b.Push(ctx, usdc, bob, big.NewInt(100)); err != nil {
		t.Fatalf("Push() = %v", err)
	}

	if got := store.accounts[accountKey(usdc, alice)]; got.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("stored alice balance = %s, want 200", got)
	}
	if got := store.accounts[accountKey(usdc, bob)]; got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("stored bob balance = %s, want 100", got)
	}
	if got := store.custody[usdc.Hex()]; got.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("stored custody = %s, want 200", got)
	}
}

func TestBankRollsBackOnStoreFailure(t *testing.T) {
	store := newMemCollateralStore()
	b := NewBank(WithStore(store))
	ctx := context.Background()

	deposit(t, b, usdc, alice, 500)

	store.failNext = errors.New("connection reset")
	if err := b.Pull(ctx, usdc, alice, big.NewInt(300)); err == nil {
		t.Fatal("Pull() with failing store: expected error")
	}

	if got := b.BalanceOf(usdc, alice); got.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("alice balance = %s, want 500 after rolled-back pull", got)
	}
	cust, _ := b.CustodyBalance(ctx, usdc)
	if cust.Sign() != 0 {
		t.Errorf("custody = %s, want 0 after rolled-back pull", cust)
	}
}

func TestBankLoadRestoresPersistedState(t *testing.T) {
	store := newMemCollateralStore()
	ctx := context.Background()

	first := NewBank(WithStore(store))
	deposit(t, first, usdc, alice, 500)
	if err := first.Pull(ctx, usdc, alice, big.NewInt(300)); err != nil {
		t.Fatalf("Pull() = %v", err)
	}

	second := NewBank(WithStore(store))
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if got := second.BalanceOf(usdc, alice); got.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("restored alice balance = %s, want 200", got)
	}
	cust, _ := second.CustodyBalance(ctx, usdc)
	if cust.Cmp(big.NewInt(300)) != 0 {
		t.Errorf("restored custody = %s, want 300", cust)
	}

	// The restored custody must actually pay out.
	if err := second.Push(ctx, usdc, bob, big.NewInt(300)); err != nil {
		t.Errorf("Push() after restore = %v", err)
	}
}
