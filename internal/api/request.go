package api

import "github.com/shopspring/decimal"

// CreateTradeRequest is the POST /trades body.
type CreateTradeRequest struct {
	Creator         string          `json:"creator"`
	ReferenceAmount decimal.Decimal `json:"reference_amount"`
	QuoteAmount     decimal.Decimal `json:"quote_amount"`
	Price           decimal.Decimal `json:"price"`
	Direction       string          `json:"direction"`
	PricingMode     string          `json:"pricing_mode"`
	SettlementAddr  string          `json:"settlement_addr"`
}

// ExecuteTradeRequest is the POST /trades/:id/execute body.
type ExecuteTradeRequest struct {
	Taker      string          `json:"taker"`
	FillAmount decimal.Decimal `json:"fill_amount"`
	Price      decimal.Decimal `json:"price,omitempty"`
}

// CancelTradeRequest is the POST /trades/:id/cancel body.
type CancelTradeRequest struct {
	Caller string `json:"caller"`
}

// SetFeesRequest adjusts the fee schedule.
type SetFeesRequest struct {
	MarketFeeBps int64 `json:"market_fee_bps"`
	FixedFeeBps  int64 `json:"fixed_fee_bps"`
}

// SetCashbackRequest adjusts the market-fill cashback percentage.
type SetCashbackRequest struct {
	CashbackPct int64 `json:"cashback_pct"`
}

// SetMinimumsRequest adjusts the per-mode minimum quote sizes.
type SetMinimumsRequest struct {
	MinQuoteMarket decimal.Decimal `json:"min_quote_market"`
	MinQuoteFixed  decimal.Decimal `json:"min_quote_fixed"`
}

// SetThresholdRequest adjusts the large-order circuit breaker.
type SetThresholdRequest struct {
	LargeOrderThreshold decimal.Decimal `json:"large_order_threshold"`
}

// WithdrawRequest drains the platform fee pool.
type WithdrawRequest struct {
	To string `json:"to"`
}

// RegisterAgentRequest approves a new agent.
type RegisterAgentRequest struct {
	Wallet            string `json:"wallet"`
	CommissionRateBps int64  `json:"commission_rate_bps"`
}

// AssignClientRequest binds a client to an agent.
type AssignClientRequest struct {
	Client string `json:"client"`
	Agent  string `json:"agent"`
}
