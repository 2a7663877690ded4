package domain

// Event type names published on the signal bus and forwarded to notification
// channels and WebSocket clients.
const (
	EventMarketRegistered    = "market_registered"
	EventMarketResolved      = "market_resolved"
	EventMarketFinalized     = "market_finalized"
	EventSetMinted           = "set_minted"
	EventSetBurned           = "set_burned"
	EventRedemption          = "redemption"
	EventDisputeSubmitted    = "dispute_submitted"
	EventDisputeResolved     = "dispute_resolved"
	EventFeesWithdrawn       = "fees_withdrawn"
	EventOracleSettled       = "oracle_settled"
	EventCollateralDeposited = "collateral_deposited"
)

// Bus channel names.
const (
	ChannelMarkets     = "markets"
	ChannelDisputes    = "disputes"
	ChannelSettlements = "settlements"
)
