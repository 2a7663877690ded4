package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quorumlabs/settled/internal/domain"
)

// FeeBalanceStore implements domain.FeeBalanceStore using PostgreSQL.
type FeeBalanceStore struct {
	pool *pgxpool.Pool
}

// NewFeeBalanceStore creates a new FeeBalanceStore backed by the given
// connection pool.
func NewFeeBalanceStore(pool *pgxpool.Pool) *FeeBalanceStore {
	return &FeeBalanceStore{pool: pool}
}

// Upsert writes the current protocol fee balance for one collateral asset.
func (s *FeeBalanceStore) Upsert(ctx context.Context, b domain.FeeBalance) error {
	const query = `
		INSERT INTO fee_balances (asset, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (asset) DO UPDATE SET
			balance    = EXCLUDED.balance,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, b.Asset.Hex(), b.Balance.String())
	if err != nil {
		return fmt.Errorf("postgres: upsert fee balance %s: %w", b.Asset.Hex(), err)
	}
	return nil
}

// Get retrieves the fee balance for one asset.
func (s *FeeBalanceStore) Get(ctx context.Context, asset common.Address) (domain.FeeBalance, error) {
	var balance string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::text FROM fee_balances WHERE asset = $1`, asset.Hex(),
	).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.FeeBalance{}, domain.ErrNotFound
		}
		return domain.FeeBalance{}, fmt.Errorf("postgres: get fee balance %s: %w", asset.Hex(), err)
	}

	n, err := parseNumeric(balance)
	if err != nil {
		return domain.FeeBalance{}, err
	}
	return domain.FeeBalance{Asset: asset, Balance: n}, nil
}

// List returns the fee balances for every asset seen so far.
func (s *FeeBalanceStore) List(ctx context.Context) ([]domain.FeeBalance, error) {
	rows, err := s.pool.Query(ctx, `SELECT asset, balance::text FROM fee_balances ORDER BY asset`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fee balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.FeeBalance
	for rows.Next() {
		var asset, balance string
		if err := rows.Scan(&asset, &balance); err != nil {
			return nil, fmt.Errorf("postgres: scan fee balance: %w", err)
		}
		n, err := parseNumeric(balance)
		if err != nil {
			return nil, err
		}
		balances = append(balances, domain.FeeBalance{
			Asset:   common.HexToAddress(asset),
			Balance: n,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list fee balances rows: %w", err)
	}
	return balances, nil
}
