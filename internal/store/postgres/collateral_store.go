package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quorumlabs/settled/internal/domain"
)

// CollateralStore implements domain.CollateralStore using PostgreSQL. It is
// the durable mirror of the in-memory vault.
type CollateralStore struct {
	pool *pgxpool.Pool
}

// NewCollateralStore creates a new CollateralStore backed by the given
// connection pool.
func NewCollateralStore(pool *pgxpool.Pool) *CollateralStore {
	return &CollateralStore{pool: pool}
}

// UpsertAccount writes one holder's balance of one asset.
func (s *CollateralStore) UpsertAccount(ctx context.Context, a domain.CollateralAccount) error {
	const query = `
		INSERT INTO collateral_accounts (asset, holder, balance, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (asset, holder) DO UPDATE SET
			balance    = EXCLUDED.balance,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, a.Asset.Hex(), a.Holder.Hex(), a.Balance.String())
	if err != nil {
		return fmt.Errorf("postgres: upsert collateral account %s/%s: %w", a.Asset.Hex(), a.Holder.Hex(), err)
	}
	return nil
}

// UpsertCustody writes the custody total for one asset.
func (s *CollateralStore) UpsertCustody(ctx context.Context, c domain.CustodyBalance) error {
	const query = `
		INSERT INTO collateral_custody (asset, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (asset) DO UPDATE SET
			balance    = EXCLUDED.balance,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, c.Asset.Hex(), c.Balance.String())
	if err != nil {
		return fmt.Errorf("postgres: upsert collateral custody %s: %w", c.Asset.Hex(), err)
	}
	return nil
}

// ListAccounts returns every persisted holder balance.
func (s *CollateralStore) ListAccounts(ctx context.Context) ([]domain.CollateralAccount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset, holder, balance::text FROM collateral_accounts ORDER BY asset, holder`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list collateral accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.CollateralAccount
	for rows.Next() {
		var asset, holder, balance string
		if err := rows.Scan(&asset, &holder, &balance); err != nil {
			return nil, fmt.Errorf("postgres: scan collateral account: %w", err)
		}
		n, err := parseNumeric(balance)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, domain.CollateralAccount{
			Asset:   common.HexToAddress(asset),
			Holder:  common.HexToAddress(holder),
			Balance: n,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list collateral accounts rows: %w", err)
	}
	return accounts, nil
}

// ListCustody returns the persisted custody total for every asset.
func (s *CollateralStore) ListCustody(ctx context.Context) ([]domain.CustodyBalance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset, balance::text FROM collateral_custody ORDER BY asset`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list collateral custody: %w", err)
	}
	defer rows.Close()

	var balances []domain.CustodyBalance
	for rows.Next() {
		var asset, balance string
		if err := rows.Scan(&asset, &balance); err != nil {
			return nil, fmt.Errorf("postgres: scan collateral custody: %w", err)
		}
		n, err := parseNumeric(balance)
		if err != nil {
			return nil, err
		}
		balances = append(balances, domain.CustodyBalance{
			Asset:   common.HexToAddress(asset),
			Balance: n,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list collateral custody rows: %w", err)
	}
	return balances, nil
}

// Compile-time interface check.
var _ domain.CollateralStore = (*CollateralStore)(nil)
