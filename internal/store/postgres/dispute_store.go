package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quorumlabs/settled/internal/domain"
)

// DisputeStore implements domain.DisputeStore using PostgreSQL.
type DisputeStore struct {
	pool *pgxpool.Pool
}

// NewDisputeStore creates a new DisputeStore backed by the given connection pool.
func NewDisputeStore(pool *pgxpool.Pool) *DisputeStore {
	return &DisputeStore{pool: pool}
}

// Insert appends a new dispute row.
func (s *DisputeStore) Insert(ctx context.Context, d domain.Dispute) error {
	const query = `
		INSERT INTO disputes (
			id, market_id, challenger, challenged_outcome,
			proposed_outcome, stake, submitted_at, resolved, accepted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.MarketID, d.Challenger.Hex(), d.ChallengedOutcome,
		d.ProposedOutcome, d.Stake.String(), d.SubmittedAt, d.Resolved, d.Accepted,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert dispute %s: %w", d.ID, err)
	}
	return nil
}

// MarkResolved records the adjudication verdict for a dispute.
func (s *DisputeStore) MarkResolved(ctx context.Context, id string, accepted bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE disputes SET resolved = TRUE, accepted = $2 WHERE id = $1`,
		id, accepted,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark dispute %s resolved: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDisputeNotFound
	}
	return nil
}

const disputeCols = `id, market_id, challenger, challenged_outcome,
	proposed_outcome, stake::text, submitted_at, resolved, accepted`

func scanDispute(row pgx.Row) (domain.Dispute, error) {
	var (
		d          domain.Dispute
		challenger string
		stake      string
	)
	err := row.Scan(
		&d.ID, &d.MarketID, &challenger, &d.ChallengedOutcome,
		&d.ProposedOutcome, &stake, &d.SubmittedAt, &d.Resolved, &d.Accepted,
	)
	if err != nil {
		return domain.Dispute{}, err
	}
	d.Challenger = common.HexToAddress(challenger)
	d.Stake, err = parseNumeric(stake)
	if err != nil {
		return domain.Dispute{}, err
	}
	return d, nil
}

// GetByID retrieves a dispute by its primary key.
func (s *DisputeStore) GetByID(ctx context.Context, id string) (domain.Dispute, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+disputeCols+` FROM disputes WHERE id = $1`, id)
	d, err := scanDispute(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Dispute{}, domain.ErrDisputeNotFound
		}
		return domain.Dispute{}, fmt.Errorf("postgres: get dispute %s: %w", id, err)
	}
	return d, nil
}

// ListByMarket returns every dispute raised against a market in submission
// order.
func (s *DisputeStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Dispute, error) {
	return s.list(ctx,
		`SELECT `+disputeCols+` FROM disputes WHERE market_id = $1 ORDER BY submitted_at`,
		marketID)
}

// ListUnresolved returns the disputes on a market still awaiting adjudication.
func (s *DisputeStore) ListUnresolved(ctx context.Context, marketID string) ([]domain.Dispute, error) {
	return s.list(ctx,
		`SELECT `+disputeCols+` FROM disputes WHERE market_id = $1 AND NOT resolved ORDER BY submitted_at`,
		marketID)
}

func (s *DisputeStore) list(ctx context.Context, query string, args ...any) ([]domain.Dispute, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list disputes: %w", err)
	}
	defer rows.Close()

	var disputes []domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan dispute: %w", err)
		}
		disputes = append(disputes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list disputes rows: %w", err)
	}
	return disputes, nil
}
