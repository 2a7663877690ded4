package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/quorumlabs/settled/internal/collateral"
	"github.com/quorumlabs/settled/internal/domain"
)

func newCollateralFixture(t *testing.T) (*collateral.Bank, *memAuditStore, *CollateralService) {
	t.Helper()
	bank := collateral.NewBank()
	audit := &memAuditStore{}
	svc := NewCollateralService(bank, owner, audit, discardLogger())
	return bank, audit, svc
}

func TestDepositCreditsHolder(t *testing.T) {
	bank, audit, svc := newCollateralFixture(t)

	if err := svc.Deposit(context.Background(), owner, usdc, alice, big.NewInt(750)); err != nil {
		t.Fatalf("Deposit() = %v", err)
	}

	wantBig(t, bank.BalanceOf(usdc, alice), 750, "alice balance")
	wantBig(t, svc.Balance(usdc, alice), 750, "service balance view")
	if !audit.has(domain.EventCollateralDeposited) {
		t.Error("deposit was not audit-logged")
	}
}

func TestDepositRejectsNonOwner(t *testing.T) {
	bank, _, svc := newCollateralFixture(t)

	err := svc.Deposit(context.Background(), alice, usdc, alice, big.NewInt(750))
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("Deposit() = %v, want ErrUnauthorized", err)
	}
	if got := bank.BalanceOf(usdc, alice); got.Sign() != 0 {
		t.Errorf("alice balance = %s, want 0 after rejected deposit", got)
	}
}

func TestDepositRejectsBadAmount(t *testing.T) {
	_, _, svc := newCollateralFixture(t)

	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		err := svc.Deposit(context.Background(), owner, usdc, alice, amount)
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("Deposit(%v) = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestCustodyReflectsEngineLocks(t *testing.T) {
	bank, _, svc := newCollateralFixture(t)

	if err := svc.Deposit(context.Background(), owner, usdc, alice, big.NewInt(500)); err != nil {
		t.Fatalf("Deposit() = %v", err)
	}
	if err := bank.Pull(context.Background(), usdc, alice, big.NewInt(200)); err != nil {
		t.Fatalf("Pull() = %v", err)
	}

	cust, err := svc.Custody(context.Background(), usdc)
	if err != nil {
		t.Fatalf("Custody() = %v", err)
	}
	wantBig(t, cust, 200, "custody")
}
