package domain

import (
	"context"
	"time"
)

// FeeQuoter is consumed by the trading venue before each trade to obtain the
// current fee multiplier for a market. The multiplier scales the venue's base
// fee with proximity to event time.
type FeeQuoter interface {
	CurrentFeeMultiplier(marketID string, now time.Time) (float64, error)
}

// TradeReporter is invoked by the trading venue after each trade so the
// protocol can skim its share of the swap fee and account trade volume. The
// venue depends on this interface; the core has no knowledge of any specific
// venue implementation.
type TradeReporter interface {
	ReportTrade(ctx context.Context, report TradeReport) error
}
