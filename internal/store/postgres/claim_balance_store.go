package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quorumlabs/settled/internal/domain"
)

// ClaimBalanceStore implements domain.ClaimBalanceStore using PostgreSQL.
type ClaimBalanceStore struct {
	pool *pgxpool.Pool
}

// NewClaimBalanceStore creates a new ClaimBalanceStore backed by the given
// connection pool.
func NewClaimBalanceStore(pool *pgxpool.Pool) *ClaimBalanceStore {
	return &ClaimBalanceStore{pool: pool}
}

const upsertClaimQuery = `
	INSERT INTO claim_balances (market_id, outcome, holder, balance, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (market_id, outcome, holder) DO UPDATE SET
		balance    = EXCLUDED.balance,
		updated_at = NOW()`

// Upsert writes a single claim balance row.
func (s *ClaimBalanceStore) Upsert(ctx context.Context, b domain.ClaimBalance) error {
	_, err := s.pool.Exec(ctx, upsertClaimQuery,
		b.MarketID, b.Outcome, b.Holder.Hex(), b.Balance.String())
	if err != nil {
		return fmt.Errorf("postgres: upsert claim balance %s/%d: %w", b.MarketID, b.Outcome, err)
	}
	return nil
}

// UpsertBatch writes multiple claim balance rows in a single batch. A mint or
// burn touches every outcome of a market at once, so batching keeps the
// snapshot write to one round trip.
func (s *ClaimBalanceStore) UpsertBatch(ctx context.Context, balances []domain.ClaimBalance) error {
	if len(balances) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range balances {
		batch.Queue(upsertClaimQuery, b.MarketID, b.Outcome, b.Holder.Hex(), b.Balance.String())
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range balances {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert claim balance batch item %d: %w", i, err)
		}
	}
	return nil
}

const claimCols = `market_id, outcome, holder, balance::text`

func scanClaimBalance(row pgx.Row) (domain.ClaimBalance, error) {
	var (
		b       domain.ClaimBalance
		holder  string
		balance string
	)
	if err := row.Scan(&b.MarketID, &b.Outcome, &holder, &balance); err != nil {
		return domain.ClaimBalance{}, err
	}
	b.Holder = common.HexToAddress(holder)
	var err error
	b.Balance, err = parseNumeric(balance)
	if err != nil {
		return domain.ClaimBalance{}, err
	}
	return b, nil
}

// ListByMarket returns every claim balance row for a market.
func (s *ClaimBalanceStore) ListByMarket(ctx context.Context, marketID string) ([]domain.ClaimBalance, error) {
	return s.list(ctx,
		`SELECT `+claimCols+` FROM claim_balances WHERE market_id = $1 ORDER BY outcome, holder`,
		marketID)
}

// ListByHolder returns one holder's claim balances across a market's outcomes.
func (s *ClaimBalanceStore) ListByHolder(ctx context.Context, marketID string, holder common.Address) ([]domain.ClaimBalance, error) {
	return s.list(ctx,
		`SELECT `+claimCols+` FROM claim_balances WHERE market_id = $1 AND holder = $2 ORDER BY outcome`,
		marketID, holder.Hex())
}

func (s *ClaimBalanceStore) list(ctx context.Context, query string, args ...any) ([]domain.ClaimBalance, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list claim balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.ClaimBalance
	for rows.Next() {
		b, err := scanClaimBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan claim balance: %w", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list claim balances rows: %w", err)
	}
	return balances, nil
}
