package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/swap-engine/internal/fees"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// Params is the single mutable configuration aggregate consulted by trade
// creation and settlement. Every operation reads it through the getters;
// changes go through the validated setters only.
type Params struct {
	mu                  sync.RWMutex
	schedule            fees.Schedule
	minQuoteMarket      decimal.Decimal
	minQuoteFixed       decimal.Decimal
	largeOrderThreshold decimal.Decimal
	dustThreshold       decimal.Decimal
	marketTTL           time.Duration
	fixedTTL            time.Duration
}

// DefaultParams returns the standard production parameters: 25/200 bps fees,
// quote minimums of 10 (market) and 100 (fixed), a 1,000,000 large-order
// threshold, a 0.0001 reference-unit dust threshold, and 1h/24h timeouts.
func DefaultParams() *Params {
	return &Params{
		schedule:            fees.DefaultSchedule(),
		minQuoteMarket:      decimal.NewFromInt(10),
		minQuoteFixed:       decimal.NewFromInt(100),
		largeOrderThreshold: decimal.NewFromInt(1_000_000),
		dustThreshold:       decimal.RequireFromString("0.0001"),
		marketTTL:           time.Hour,
		fixedTTL:            24 * time.Hour,
	}
}

// Schedule returns the current fee schedule.
func (p *Params) Schedule() fees.Schedule {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.schedule
}

// MinQuote returns the minimum quote amount for a pricing mode.
func (p *Params) MinQuote(mode model.PricingMode) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if mode == model.PricingMarket {
		return p.minQuoteMarket
	}
	return p.minQuoteFixed
}

// LargeOrderThreshold returns the exposure circuit-breaker level. Orders at
// or above it are rejected.
func (p *Params) LargeOrderThreshold() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.largeOrderThreshold
}

// DustThreshold returns the residual size below which a trade auto-completes.
func (p *Params) DustThreshold() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dustThreshold
}

// TTL returns the fill window for a pricing mode, measured from creation.
func (p *Params) TTL(mode model.PricingMode) time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if mode == model.PricingMarket {
		return p.marketTTL
	}
	return p.fixedTTL
}

// SetFees replaces both fee rates, keeping the current cashback setting.
func (p *Params) SetFees(marketBps, fixedBps int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.schedule
	next.MarketFeeBps = marketBps
	next.FixedFeeBps = fixedBps
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	p.schedule = next
	return nil
}

// SetCashback replaces the market-fill cashback percentage.
func (p *Params) SetCashback(pct int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.schedule
	next.CashbackPct = pct
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	p.schedule = next
	return nil
}

// SetMinimums replaces the per-mode minimum quote amounts.
func (p *Params) SetMinimums(market, fixed decimal.Decimal) error {
	if market.Sign() <= 0 || fixed.Sign() <= 0 {
		return fmt.Errorf("%w: minimum trade sizes must be positive", ErrValidation)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minQuoteMarket = market
	p.minQuoteFixed = fixed
	return nil
}

// SetLargeOrderThreshold replaces the exposure cap. It must stay above both
// minimums or every order would be rejected.
func (p *Params) SetLargeOrderThreshold(threshold decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if threshold.LessThanOrEqual(p.minQuoteMarket) || threshold.LessThanOrEqual(p.minQuoteFixed) {
		return fmt.Errorf("%w: large-order threshold below minimum trade size", ErrValidation)
	}
	p.largeOrderThreshold = threshold
	return nil
}

// SetDustThreshold replaces the auto-completion residual level.
func (p *Params) SetDustThreshold(threshold decimal.Decimal) error {
	if threshold.Sign() < 0 {
		return fmt.Errorf("%w: dust threshold must not be negative", ErrValidation)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dustThreshold = threshold
	return nil
}

// SetTimeouts replaces the per-mode fill windows.
func (p *Params) SetTimeouts(market, fixed time.Duration) error {
	if market <= 0 || fixed <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrValidation)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marketTTL = market
	p.fixedTTL = fixed
	return nil
}
