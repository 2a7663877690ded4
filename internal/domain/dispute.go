package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Dispute is a staked challenge against a market's stored outcome. Records
// are append-only: a dispute is created on submission and mutated exactly
// once by adjudication, which sets Resolved and Accepted.
type Dispute struct {
	ID                string         `json:"id"`
	MarketID          string         `json:"market_id"`
	Challenger        common.Address `json:"challenger"`
	ChallengedOutcome int            `json:"challenged_outcome"`
	ProposedOutcome   int            `json:"proposed_outcome"`
	Stake             *big.Int       `json:"stake"`
	SubmittedAt       time.Time      `json:"submitted_at"`
	Resolved          bool           `json:"resolved"`
	Accepted          bool           `json:"accepted"`
}
