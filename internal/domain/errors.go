package domain

import "errors"

// Validation errors, rejected before any state mutation.
var (
	ErrInvalidMarketParams   = errors.New("invalid market parameters")
	ErrEventInPast           = errors.New("event time is in the past")
	ErrInvalidOracle         = errors.New("invalid oracle reference")
	ErrInvalidOutcomeCount   = errors.New("outcome count must be between 2 and 10")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInvalidRecipient      = errors.New("invalid recipient")
	ErrInvalidDisputeOutcome = errors.New("invalid dispute outcome")
)

// State-precondition errors. These name the exact lifecycle condition so a
// caller can distinguish "not yet" from "never".
var (
	ErrMarketNotFound         = errors.New("market not found")
	ErrMarketExists           = errors.New("market already registered")
	ErrTradingFrozen          = errors.New("trading frozen")
	ErrEventNotReached        = errors.New("event time not reached")
	ErrAlreadyResolved        = errors.New("market already resolved")
	ErrMarketResolved         = errors.New("market resolved")
	ErrMarketNotResolved      = errors.New("market not resolved")
	ErrMarketNotFinalized     = errors.New("market not finalized")
	ErrAlreadyFinalized       = errors.New("market already finalized")
	ErrDisputePeriodActive    = errors.New("dispute period still active")
	ErrDisputePeriodExpired   = errors.New("dispute period expired")
	ErrUnresolvedDisputes     = errors.New("market has unresolved disputes")
	ErrDisputeNotFound        = errors.New("dispute not found")
	ErrDisputeAlreadyResolved = errors.New("dispute already resolved")
)

// Oracle errors.
var (
	ErrStaleOracleAnswer = errors.New("oracle answer predates event time")
	ErrAnswerOutOfRange  = errors.New("oracle answer outside outcome range")
)

// Authorization and resource errors.
var (
	ErrUnauthorized             = errors.New("unauthorized")
	ErrInsufficientBalance      = errors.New("insufficient claim balance")
	ErrInsufficientCollateral   = errors.New("insufficient collateral balance")
	ErrInsufficientDisputeStake = errors.New("dispute stake below minimum")
	ErrInsufficientFees         = errors.New("insufficient fee balance")
)

// Infrastructure errors.
var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")
)
