package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market records.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// DisputeStore persists the append-only dispute list per market.
type DisputeStore interface {
	Insert(ctx context.Context, d Dispute) error
	MarkResolved(ctx context.Context, id string, accepted bool) error
	GetByID(ctx context.Context, id string) (Dispute, error)
	ListByMarket(ctx context.Context, marketID string) ([]Dispute, error)
	ListUnresolved(ctx context.Context, marketID string) ([]Dispute, error)
}

// ClaimBalanceStore persists the per-outcome claim-balance table.
type ClaimBalanceStore interface {
	Upsert(ctx context.Context, b ClaimBalance) error
	UpsertBatch(ctx context.Context, balances []ClaimBalance) error
	ListByMarket(ctx context.Context, marketID string) ([]ClaimBalance, error)
	ListByHolder(ctx context.Context, marketID string, holder common.Address) ([]ClaimBalance, error)
}

// FeeBalanceStore persists the per-asset protocol fee balance.
type FeeBalanceStore interface {
	Upsert(ctx context.Context, b FeeBalance) error
	Get(ctx context.Context, asset common.Address) (FeeBalance, error)
	List(ctx context.Context) ([]FeeBalance, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
