package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeBalance is the withdrawable protocol fee balance for one collateral
// asset.
type FeeBalance struct {
	Asset   common.Address `json:"asset"`
	Balance *big.Int       `json:"balance"`
}

// TradeReport is the venue's post-trade callback payload. OutputAmount is the
// trade's output leg in collateral base units; FeeRateBps is the venue's swap
// fee rate in basis points.
type TradeReport struct {
	MarketID     string         `json:"market_id"`
	Venue        common.Address `json:"venue"`
	OutputAmount *big.Int       `json:"output_amount"`
	FeeRateBps   int64          `json:"fee_rate_bps"`
}
