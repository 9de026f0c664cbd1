package fees

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/swap-engine/pkg/model"
)

const (
	// BpsDenominator converts basis points to a fraction.
	BpsDenominator = 10000
	// MaxCommissionRateBps caps an agent's share of the fee at 75%.
	MaxCommissionRateBps = 7500
	// MaxCashbackPct caps the taker cashback. Cashback is expressed in whole
	// percent, not basis points; the two scales must never be mixed.
	MaxCashbackPct = 100
)

var (
	ErrZeroFeeRate = errors.New("fees: fee rate must be positive")
	ErrFeeSplit    = errors.New("fees: deductions exceed gross fee")
)

var (
	bpsDen = decimal.NewFromInt(BpsDenominator)
	pctDen = decimal.NewFromInt(100)
)

// Schedule holds the owner-adjustable fee parameters. Market fills carry a
// materially lower fee than fixed-price fills.
type Schedule struct {
	MarketFeeBps int64
	FixedFeeBps  int64
	CashbackPct  int64
}

// DefaultSchedule returns the standard 25 bps market / 200 bps fixed schedule
// with cashback disabled.
func DefaultSchedule() Schedule {
	return Schedule{MarketFeeBps: 25, FixedFeeBps: 200, CashbackPct: 0}
}

// Validate rejects schedules that could zero out the fee or overflow the
// cashback scale.
func (s Schedule) Validate() error {
	if s.MarketFeeBps <= 0 || s.FixedFeeBps <= 0 {
		return ErrZeroFeeRate
	}
	if s.MarketFeeBps > BpsDenominator || s.FixedFeeBps > BpsDenominator {
		return fmt.Errorf("fees: fee rate above %d bps", BpsDenominator)
	}
	if s.CashbackPct < 0 || s.CashbackPct > MaxCashbackPct {
		return fmt.Errorf("fees: cashback percent out of range")
	}
	return nil
}

// FeeBps returns the fee rate for a pricing mode.
func (s Schedule) FeeBps(mode model.PricingMode) int64 {
	if mode == model.PricingMarket {
		return s.MarketFeeBps
	}
	return s.FixedFeeBps
}

// QuoteFill converts a reference fill amount to quote terms at the given price.
func QuoteFill(fillAmount, price decimal.Decimal) decimal.Decimal {
	return fillAmount.Mul(price)
}

// Fee computes the gross fee on a quote-denominated fill. The fee is computed
// directly in quote terms; there is no intermediate reference-asset
// conversion.
func (s Schedule) Fee(quoteFill decimal.Decimal, mode model.PricingMode) decimal.Decimal {
	return quoteFill.Mul(decimal.NewFromInt(s.FeeBps(mode))).Div(bpsDen)
}

// Split is the three-way division of a gross fee.
type Split struct {
	Commission decimal.Decimal
	Cashback   decimal.Decimal
	Platform   decimal.Decimal
}

// Split divides a gross fee between agent commission, taker cashback and
// platform retention. Commission and cashback are both fractions of the gross
// fee; the platform keeps the remainder. The three parts always sum exactly
// to the fee, and the call fails closed if the deductions would exceed it.
func (s Schedule) Split(fee decimal.Decimal, agentRateBps int64, marketMode bool) (Split, error) {
	if agentRateBps < 0 || agentRateBps > MaxCommissionRateBps {
		return Split{}, fmt.Errorf("fees: commission rate %d bps out of range", agentRateBps)
	}

	commission := fee.Mul(decimal.NewFromInt(agentRateBps)).Div(bpsDen)
	if commission.GreaterThan(fee) {
		commission = fee
	}

	cashback := decimal.Zero
	if marketMode && s.CashbackPct > 0 {
		cashback = fee.Mul(decimal.NewFromInt(s.CashbackPct)).Div(pctDen)
	}

	platform := fee.Sub(commission).Sub(cashback)
	if platform.IsNegative() {
		return Split{}, ErrFeeSplit
	}
	return Split{Commission: commission, Cashback: cashback, Platform: platform}, nil
}
