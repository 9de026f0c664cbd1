package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubmitTradeCommand asks the engine to create a new standing trade.
type SubmitTradeCommand struct {
	CommandID       string          `json:"command_id"`
	Creator         string          `json:"creator"`
	ReferenceAmount decimal.Decimal `json:"reference_amount"`
	QuoteAmount     decimal.Decimal `json:"quote_amount"`
	Price           decimal.Decimal `json:"price"`
	Direction       string          `json:"direction"`
	PricingMode     string          `json:"pricing_mode"`
	SettlementAddr  string          `json:"settlement_addr"`
	Timestamp       time.Time       `json:"timestamp"`
}

// ExecuteTradeCommand asks the engine to fill part of an open trade.
type ExecuteTradeCommand struct {
	CommandID  string          `json:"command_id"`
	TradeID    string          `json:"trade_id"`
	Taker      string          `json:"taker"`
	FillAmount decimal.Decimal `json:"fill_amount"`
	// Price is only honoured for market-priced trades; fixed trades always
	// settle at their stored price.
	Price     decimal.Decimal `json:"price,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// CancelTradeCommand asks the engine to cancel an open trade.
type CancelTradeCommand struct {
	CommandID string    `json:"command_id"`
	TradeID   string    `json:"trade_id"`
	Caller    string    `json:"caller"`
	Timestamp time.Time `json:"timestamp"`
}
