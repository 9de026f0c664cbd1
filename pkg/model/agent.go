package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Agent is a referral party entitled to a share of the fees generated by its
// assigned clients' fills.
type Agent struct {
	Wallet            string          `json:"wallet"`
	Active            bool            `json:"active"`
	CommissionRateBps int64           `json:"commission_rate_bps"`
	TotalCommission   decimal.Decimal `json:"total_commission"`
	TotalRefVolume    decimal.Decimal `json:"total_reference_volume"`
	TotalQuoteVolume  decimal.Decimal `json:"total_quote_volume"`
	// Pending is commission accrued but not yet paid out. Settlement pays
	// commission immediately, so this is only non-zero for migrated records;
	// deletion flushes it through the ledger before purging.
	Pending      decimal.Decimal `json:"pending"`
	RegisteredAt time.Time       `json:"registered_at"`
}

// Clone returns a deep copy of the agent record.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// VolumeEntry is one recorded fill attributed to an agent's client.
type VolumeEntry struct {
	Agent      string          `json:"agent"`
	Trader     string          `json:"trader"`
	RefAmount  decimal.Decimal `json:"reference_amount"`
	QuoteAmt   decimal.Decimal `json:"quote_amount"`
	Direction  string          `json:"direction"`
	RecordedAt time.Time       `json:"recorded_at"`
}
