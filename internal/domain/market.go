package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusTrading    MarketStatus = "trading"
	MarketStatusEventDue   MarketStatus = "event_due"
	MarketStatusDisputable MarketStatus = "disputable"
	MarketStatusFinalized  MarketStatus = "finalized"
)

// Market represents one event-linked contract between a real-world event and
// a set of outcome claims. Resolution fields are written exactly once by the
// oracle-resolution step; an accepted dispute may later overwrite
// WinningOutcome but never clears Resolved. Finalized is set exactly once and
// is irreversible.
type Market struct {
	ID             string         `json:"id"`
	EventTime      time.Time      `json:"event_time"`
	OracleRef      common.Address `json:"oracle_ref"`
	OutcomeCount   int            `json:"outcome_count"`
	Resolved       bool           `json:"resolved"`
	Finalized      bool           `json:"finalized"`
	WinningOutcome int            `json:"winning_outcome"`
	ResolutionTime *time.Time     `json:"resolution_time,omitempty"`
	Volume         *big.Int       `json:"volume"`
	Creator        common.Address `json:"creator"`
	Collateral     common.Address `json:"collateral"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Status derives the lifecycle state from the stored flags and the given
// reference time.
func (m Market) Status(now time.Time) MarketStatus {
	switch {
	case m.Finalized:
		return MarketStatusFinalized
	case m.Resolved:
		return MarketStatusDisputable
	case !now.Before(m.EventTime):
		return MarketStatusEventDue
	default:
		return MarketStatusTrading
	}
}

// Tradeable reports whether trades may still execute against this market.
func (m Market) Tradeable(now time.Time) bool {
	return !m.Resolved && now.Before(m.EventTime)
}

// DisputeWindowOpen reports whether the dispute window is open at the given
// time. The window is [ResolutionTime, ResolutionTime+period).
func (m Market) DisputeWindowOpen(now time.Time, period time.Duration) bool {
	if !m.Resolved || m.Finalized || m.ResolutionTime == nil {
		return false
	}
	return now.Before(m.ResolutionTime.Add(period))
}
