package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OutcomeClaim identifies one fungible outcome claim of a market. Ref is a
// stable opaque identifier assigned at market registration.
type OutcomeClaim struct {
	Ref      string `json:"ref"`
	MarketID string `json:"market_id"`
	Outcome  int    `json:"outcome"`
}

// ClaimBalance is one row of the per-outcome claim-balance table.
type ClaimBalance struct {
	MarketID string         `json:"market_id"`
	Outcome  int            `json:"outcome"`
	Holder   common.Address `json:"holder"`
	Balance  *big.Int       `json:"balance"`
}
