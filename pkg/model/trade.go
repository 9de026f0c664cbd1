package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction states which side of the pair the creator is offering.
type Direction int

const (
	DirectionUnknown Direction = iota
	// DirectionRefToQuote: the creator offers the reference asset and wants
	// the quote asset. The quote leg settles through the ledger at fill time.
	DirectionRefToQuote
	// DirectionQuoteToRef: the creator offers the quote asset, which is
	// escrowed up front; the reference leg settles against SettlementAddr.
	DirectionQuoteToRef
)

// DirectionFromString converts a string to Direction
func DirectionFromString(s string) Direction {
	switch s {
	case "REF_TO_QUOTE":
		return DirectionRefToQuote
	case "QUOTE_TO_REF":
		return DirectionQuoteToRef
	default:
		return DirectionUnknown
	}
}

// String returns the string representation
func (d Direction) String() string {
	switch d {
	case DirectionRefToQuote:
		return "REF_TO_QUOTE"
	case DirectionQuoteToRef:
		return "QUOTE_TO_REF"
	default:
		return "UNKNOWN"
	}
}

// PricingMode states how the execution price of a trade is determined.
type PricingMode int

const (
	PricingUnknown PricingMode = iota
	// PricingMarket: price is taken at execution time.
	PricingMarket
	// PricingFixed: price was negotiated at creation and never moves.
	PricingFixed
)

// PricingModeFromString converts a string to PricingMode
func PricingModeFromString(s string) PricingMode {
	switch s {
	case "MARKET":
		return PricingMarket
	case "FIXED":
		return PricingFixed
	default:
		return PricingUnknown
	}
}

// String returns the string representation
func (p PricingMode) String() string {
	switch p {
	case PricingMarket:
		return "MARKET"
	case PricingFixed:
		return "FIXED"
	default:
		return "UNKNOWN"
	}
}

// TradeStatus is the lifecycle state of a trade.
type TradeStatus int

const (
	StatusOpen TradeStatus = iota
	StatusCompleted
	StatusCancelled
)

// String returns the string representation
func (s TradeStatus) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Trade is a standing, partially fillable order to exchange a reference-asset
// amount against a quote-asset amount. ReferenceAmount and QuoteAmount are the
// live residuals; the Initial* fields never change after creation.
type Trade struct {
	ID              string          `json:"id"`
	Creator         string          `json:"creator"`
	ReferenceAmount decimal.Decimal `json:"reference_amount"`
	QuoteAmount     decimal.Decimal `json:"quote_amount"`
	InitialRef      decimal.Decimal `json:"initial_reference_amount"`
	InitialQuote    decimal.Decimal `json:"initial_quote_amount"`
	Price           decimal.Decimal `json:"price"` // quote units per reference unit
	Direction       Direction       `json:"direction"`
	PricingMode     PricingMode     `json:"pricing_mode"`
	Status          TradeStatus     `json:"status"`
	SettlementAddr  string          `json:"settlement_addr"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Clone returns a deep copy so callers can never mutate engine state.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// TradeView is the externally visible projection of a trade.
type TradeView struct {
	ID              string          `json:"id"`
	Creator         string          `json:"creator"`
	ReferenceAmount decimal.Decimal `json:"reference_amount"`
	QuoteAmount     decimal.Decimal `json:"quote_amount"`
	InitialRef      decimal.Decimal `json:"initial_reference_amount"`
	InitialQuote    decimal.Decimal `json:"initial_quote_amount"`
	Price           decimal.Decimal `json:"price"`
	Direction       string          `json:"direction"`
	PricingMode     string          `json:"pricing_mode"`
	Status          string          `json:"status"`
	SettlementAddr  string          `json:"settlement_addr"`
	CreatedAt       time.Time       `json:"created_at"`
}

// View converts a trade to its external projection.
func (t *Trade) View() TradeView {
	return TradeView{
		ID:              t.ID,
		Creator:         t.Creator,
		ReferenceAmount: t.ReferenceAmount,
		QuoteAmount:     t.QuoteAmount,
		InitialRef:      t.InitialRef,
		InitialQuote:    t.InitialQuote,
		Price:           t.Price,
		Direction:       t.Direction.String(),
		PricingMode:     t.PricingMode.String(),
		Status:          t.Status.String(),
		SettlementAddr:  t.SettlementAddr,
		CreatedAt:       t.CreatedAt,
	}
}

// FillResult reports one settled execution against a trade.
type FillResult struct {
	TradeID         string          `json:"trade_id"`
	Taker           string          `json:"taker"`
	FilledReference decimal.Decimal `json:"filled_reference"`
	FilledQuote     decimal.Decimal `json:"filled_quote"`
	RemainingRef    decimal.Decimal `json:"remaining_reference"`
	Price           decimal.Decimal `json:"price"`
	FeeCharged      decimal.Decimal `json:"fee_charged"`
	Commission      decimal.Decimal `json:"commission"`
	Cashback        decimal.Decimal `json:"cashback"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	Completed       bool            `json:"completed"`
	// DustReturned is set when a sub-dust residual was auto-completed and the
	// unused escrow returned to the creator alongside the ordinary fill.
	DustReturned decimal.Decimal `json:"dust_returned"`
	ExecutedAt   time.Time       `json:"executed_at"`
}
