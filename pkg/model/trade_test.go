package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectionFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected Direction
	}{
		{"REF_TO_QUOTE", DirectionRefToQuote},
		{"QUOTE_TO_REF", DirectionQuoteToRef},
		{"ref_to_quote", DirectionUnknown},
		{"", DirectionUnknown},
		{"SIDEWAYS", DirectionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, DirectionFromString(tt.input))
		})
	}
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "REF_TO_QUOTE", DirectionRefToQuote.String())
	assert.Equal(t, "QUOTE_TO_REF", DirectionQuoteToRef.String())
	assert.Equal(t, "UNKNOWN", DirectionUnknown.String())
}

func TestPricingModeRoundTrip(t *testing.T) {
	for _, mode := range []PricingMode{PricingMarket, PricingFixed} {
		assert.Equal(t, mode, PricingModeFromString(mode.String()))
	}
	assert.Equal(t, PricingUnknown, PricingModeFromString("LIMIT"))
}

func TestTradeStatusString(t *testing.T) {
	tests := []struct {
		status   TradeStatus
		expected string
	}{
		{StatusOpen, "OPEN"},
		{StatusCompleted, "COMPLETED"},
		{StatusCancelled, "CANCELLED"},
		{TradeStatus(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.status.String())
	}
}

func TestTradeCloneIsIndependent(t *testing.T) {
	orig := &Trade{ID: "t-1", Creator: "maker", Status: StatusOpen}
	cp := orig.Clone()

	cp.Status = StatusCancelled
	assert.Equal(t, StatusOpen, orig.Status)

	var nilTrade *Trade
	assert.Nil(t, nilTrade.Clone())
}

func TestTradeViewProjectsEnums(t *testing.T) {
	trade := &Trade{
		ID:          "t-1",
		Direction:   DirectionQuoteToRef,
		PricingMode: PricingFixed,
		Status:      StatusOpen,
	}

	view := trade.View()
	assert.Equal(t, "QUOTE_TO_REF", view.Direction)
	assert.Equal(t, "FIXED", view.PricingMode)
	assert.Equal(t, "OPEN", view.Status)
}
