// Package engine implements the trade lifecycle and settlement core: order
// creation with escrow, partial fills with fee/commission/cashback routing,
// expiry, cancellation and platform fee accounting.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/access"
	"github.com/Checker-Finance/swap-engine/internal/agent"
	"github.com/Checker-Finance/swap-engine/internal/fees"
	"github.com/Checker-Finance/swap-engine/internal/ledger"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// Internal ledger accounts. Escrow holds the quote side of open orders; the
// fee pool accumulates platform retention until an owner withdrawal.
const (
	AccountEscrow  = "swap:escrow"
	AccountFeePool = "swap:fees"
)

// PriceSource supplies the current market price for market-priced fills.
// Absence is a normal outcome; the engine falls back to the caller-supplied
// or stored price.
type PriceSource interface {
	LastPrice() (decimal.Decimal, bool)
}

// Sink receives lifecycle outcomes after they commit. Implementations fan
// out to the event bus and the audit store; a nil sink is valid. A fill
// carries up to two volume entries, one per party with an active agent.
type Sink interface {
	TradeCreated(ctx context.Context, trade model.TradeView)
	TradeExecuted(ctx context.Context, trade model.TradeView, fill model.FillResult, volumes []model.VolumeEntry)
	TradeCancelled(ctx context.Context, trade model.TradeView)
}

// Engine owns the trade set and settles fills against it. All trade-mutating
// operations run under a single writer lock; each call either fully applies
// or leaves every balance and record untouched.
type Engine struct {
	mu      sync.Mutex
	trades  map[string]*model.Trade
	order   []string
	feePool decimal.Decimal

	gate    *access.Gate
	agents  *agent.Registry
	ledger  ledger.Ledger
	params  *Params
	prices  PriceSource
	sink    Sink
	logger  *zap.Logger
	nowFn   func() time.Time
}

// New wires an engine. prices and sink may be nil.
func New(gate *access.Gate, agents *agent.Registry, l ledger.Ledger, params *Params, prices PriceSource, sink Sink, logger *zap.Logger) *Engine {
	if params == nil {
		params = DefaultParams()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		trades: make(map[string]*model.Trade),
		gate:   gate,
		agents: agents,
		ledger: l,
		params: params,
		prices: prices,
		sink:   sink,
		logger: logger,
		nowFn:  time.Now,
	}
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// Params exposes the configuration aggregate for administrative changes.
func (e *Engine) Params() *Params { return e.params }

// Gate exposes the access gate for administrative changes.
func (e *Engine) Gate() *access.Gate { return e.gate }

// Agents exposes the agent registry.
func (e *Engine) Agents() *agent.Registry { return e.agents }

// tradeID derives a deterministic, collision-resistant id from the creation
// inputs.
func tradeID(creator string, at time.Time, ref, quote decimal.Decimal) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|%s", creator, at.UnixNano(), ref.String(), quote.String())
	return hex.EncodeToString(h.Sum(nil))
}

// CreateTrade records a new standing order. For quote-offering trades the
// quote amount is escrowed atomically with insertion; a refused transfer
// fails the whole call with no orphaned record. A blocked creator's trade is
// still recorded for audit, but directly in Cancelled status with no escrow,
// and is never fillable.
func (e *Engine) CreateTrade(ctx context.Context, cmd model.SubmitTradeCommand) (model.TradeView, error) {
	if err := e.gate.RequireActive(); err != nil {
		return model.TradeView{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	direction := model.DirectionFromString(cmd.Direction)
	mode := model.PricingModeFromString(cmd.PricingMode)
	if direction == model.DirectionUnknown {
		return model.TradeView{}, fmt.Errorf("%w: unknown direction %q", ErrValidation, cmd.Direction)
	}
	if mode == model.PricingUnknown {
		return model.TradeView{}, fmt.Errorf("%w: unknown pricing mode %q", ErrValidation, cmd.PricingMode)
	}
	if cmd.Creator == "" {
		return model.TradeView{}, fmt.Errorf("%w: creator is required", ErrValidation)
	}
	if cmd.ReferenceAmount.Sign() <= 0 || cmd.QuoteAmount.Sign() <= 0 || cmd.Price.Sign() <= 0 {
		return model.TradeView{}, fmt.Errorf("%w: amounts and price must be positive", ErrValidation)
	}
	if min := e.params.MinQuote(mode); cmd.QuoteAmount.LessThan(min) {
		return model.TradeView{}, fmt.Errorf("%w: quote amount below %s minimum of %s", ErrValidation, mode, min)
	}
	if threshold := e.params.LargeOrderThreshold(); cmd.QuoteAmount.GreaterThanOrEqual(threshold) {
		return model.TradeView{}, fmt.Errorf("%w: quote amount at or above large-order threshold %s", ErrValidation, threshold)
	}
	if mode == model.PricingFixed && !cmd.QuoteAmount.Equal(cmd.ReferenceAmount.Mul(cmd.Price)) {
		return model.TradeView{}, fmt.Errorf("%w: quote amount does not match reference amount at fixed price", ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFn()
	trade := &model.Trade{
		ID:              tradeID(cmd.Creator, now, cmd.ReferenceAmount, cmd.QuoteAmount),
		Creator:         cmd.Creator,
		ReferenceAmount: cmd.ReferenceAmount,
		QuoteAmount:     cmd.QuoteAmount,
		InitialRef:      cmd.ReferenceAmount,
		InitialQuote:    cmd.QuoteAmount,
		Price:           cmd.Price,
		Direction:       direction,
		PricingMode:     mode,
		Status:          model.StatusOpen,
		SettlementAddr:  cmd.SettlementAddr,
		CreatedAt:       now,
	}

	if e.gate.IsBlocked(cmd.Creator) {
		trade.Status = model.StatusCancelled
		e.insertLocked(trade)
		e.logger.Warn("engine.trade_blocked_creator",
			zap.String("trade_id", trade.ID),
			zap.String("creator", cmd.Creator))
		view := trade.View()
		e.emitCreated(ctx, view)
		return view, nil
	}

	if direction == model.DirectionQuoteToRef {
		if err := e.ledger.Transfer(ctx, cmd.Creator, AccountEscrow, cmd.QuoteAmount); err != nil {
			return model.TradeView{}, fmt.Errorf("%w: escrow funding: %v", ErrTransfer, err)
		}
	}

	e.insertLocked(trade)
	e.logger.Info("engine.trade_created",
		zap.String("trade_id", trade.ID),
		zap.String("creator", trade.Creator),
		zap.String("direction", trade.Direction.String()),
		zap.String("pricing_mode", trade.PricingMode.String()),
		zap.String("reference_amount", trade.ReferenceAmount.String()),
		zap.String("quote_amount", trade.QuoteAmount.String()))
	view := trade.View()
	e.emitCreated(ctx, view)
	return view, nil
}

func (e *Engine) insertLocked(t *model.Trade) {
	e.trades[t.ID] = t
	e.order = append(e.order, t.ID)
}

// resolvePrice picks the execution price for a fill. Fixed trades always
// settle at the stored price; market fills honour the caller override first,
// then the live feed, then fall back to the stored price.
func (e *Engine) resolvePrice(t *model.Trade, override decimal.Decimal) decimal.Decimal {
	if t.PricingMode == model.PricingFixed {
		return t.Price
	}
	if override.Sign() > 0 {
		return override
	}
	if e.prices != nil {
		if p, ok := e.prices.LastPrice(); ok && p.Sign() > 0 {
			return p
		}
	}
	return t.Price
}

// ExecuteTrade settles a fill of fillAmount reference units against an open
// trade. Fee, agent commission, cashback and platform retention are computed
// on the quote-denominated fill and moved in one atomic batch with the
// principal leg; bookkeeping only commits after the batch does.
func (e *Engine) ExecuteTrade(ctx context.Context, cmd model.ExecuteTradeCommand) (model.FillResult, error) {
	if err := e.gate.RequireActive(); err != nil {
		return model.FillResult{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if e.gate.IsBlocked(cmd.Taker) {
		return model.FillResult{}, fmt.Errorf("%w: taker wallet is blocked", ErrUnauthorized)
	}
	if cmd.Taker == "" {
		return model.FillResult{}, fmt.Errorf("%w: taker is required", ErrValidation)
	}
	if cmd.FillAmount.Sign() <= 0 {
		return model.FillResult{}, fmt.Errorf("%w: fill amount must be positive", ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	trade, ok := e.trades[cmd.TradeID]
	if !ok {
		return model.FillResult{}, fmt.Errorf("%w: %s", ErrNotFound, cmd.TradeID)
	}
	if trade.Status != model.StatusOpen {
		return model.FillResult{}, fmt.Errorf("%w: trade is %s", ErrState, trade.Status)
	}
	now := e.nowFn()
	if now.After(trade.CreatedAt.Add(e.params.TTL(trade.PricingMode))) {
		return model.FillResult{}, fmt.Errorf("%w: %s fill window elapsed", ErrExpired, trade.PricingMode)
	}
	if cmd.FillAmount.GreaterThan(trade.ReferenceAmount) {
		return model.FillResult{}, fmt.Errorf("%w: fill %s exceeds residual %s", ErrState, cmd.FillAmount, trade.ReferenceAmount)
	}
	if trade.Creator == cmd.Taker {
		return model.FillResult{}, fmt.Errorf("%w: creator cannot take own trade", ErrValidation)
	}
	if e.gate.IsBlocked(trade.Creator) {
		return model.FillResult{}, fmt.Errorf("%w: creator wallet is blocked", ErrUnauthorized)
	}

	price := e.resolvePrice(trade, cmd.Price)
	quoteFill := fees.QuoteFill(cmd.FillAmount, price)
	if quoteFill.GreaterThan(trade.QuoteAmount) {
		return model.FillResult{}, fmt.Errorf("%w: quote fill %s exceeds residual %s", ErrState, quoteFill, trade.QuoteAmount)
	}

	schedule := e.params.Schedule()
	fee := schedule.Fee(quoteFill, trade.PricingMode)

	agentWallet, agentRate, hasAgent := e.agents.Entitlement(cmd.Taker)
	if !hasAgent {
		agentRate = 0
	}
	split, err := schedule.Split(fee, agentRate, trade.PricingMode == model.PricingMarket)
	if err != nil {
		return model.FillResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	newRef := trade.ReferenceAmount.Sub(cmd.FillAmount)
	newQuote := trade.QuoteAmount.Sub(quoteFill)
	completed := newRef.IsZero() || newRef.LessThan(e.params.DustThreshold())

	// Unused escrow goes back to the creator when an escrowed trade
	// completes, whether the remainder is exact zero drift or dust.
	escrowRefund := decimal.Zero
	if completed && trade.Direction == model.DirectionQuoteToRef && newQuote.Sign() > 0 {
		escrowRefund = newQuote
	}

	var moves []ledger.Movement
	switch trade.Direction {
	case model.DirectionQuoteToRef:
		// Creator's quote sits in escrow; the taker delivers the reference
		// leg to the trade's settlement address off-ledger.
		moves = []ledger.Movement{
			{From: AccountEscrow, To: cmd.Taker, Amount: quoteFill.Sub(fee)},
			{From: AccountEscrow, To: agentWallet, Amount: split.Commission},
			{From: AccountEscrow, To: cmd.Taker, Amount: split.Cashback},
			{From: AccountEscrow, To: AccountFeePool, Amount: split.Platform},
			{From: AccountEscrow, To: trade.Creator, Amount: escrowRefund},
		}
	case model.DirectionRefToQuote:
		// Taker pays the quote leg directly; the cashback portion of the fee
		// is simply never collected from the taker.
		moves = []ledger.Movement{
			{From: cmd.Taker, To: trade.Creator, Amount: quoteFill.Sub(fee)},
			{From: cmd.Taker, To: agentWallet, Amount: split.Commission},
			{From: cmd.Taker, To: AccountFeePool, Amount: split.Platform},
		}
	}

	if err := ledger.Apply(ctx, e.ledger, moves); err != nil {
		return model.FillResult{}, fmt.Errorf("%w: %v", ErrTransfer, err)
	}

	trade.ReferenceAmount = newRef
	trade.QuoteAmount = newQuote.Sub(escrowRefund)
	if completed {
		trade.Status = model.StatusCompleted
	}
	e.feePool = e.feePool.Add(split.Platform)
	if hasAgent {
		e.agents.RecordCommission(agentWallet, split.Commission)
	}
	// Either side of the fill may carry an active agent; each one accrues
	// the trade volume.
	volumes := make([]model.VolumeEntry, 0, 2)
	for _, party := range []string{cmd.Taker, trade.Creator} {
		if entry := e.agents.RecordVolume(party, cmd.FillAmount, quoteFill, trade.Direction); entry != nil {
			volumes = append(volumes, *entry)
		}
	}

	dustReturned := decimal.Zero
	if newRef.Sign() > 0 && completed {
		dustReturned = escrowRefund
	}
	fill := model.FillResult{
		TradeID:         trade.ID,
		Taker:           cmd.Taker,
		FilledReference: cmd.FillAmount,
		FilledQuote:     quoteFill,
		RemainingRef:    newRef,
		Price:           price,
		FeeCharged:      fee,
		Commission:      split.Commission,
		Cashback:        split.Cashback,
		PlatformFee:     split.Platform,
		Completed:       completed,
		DustReturned:    dustReturned,
		ExecutedAt:      now,
	}

	e.logger.Info("engine.trade_executed",
		zap.String("trade_id", trade.ID),
		zap.String("taker", cmd.Taker),
		zap.String("filled_reference", cmd.FillAmount.String()),
		zap.String("filled_quote", quoteFill.String()),
		zap.String("fee", fee.String()),
		zap.String("commission", split.Commission.String()),
		zap.String("cashback", split.Cashback.String()),
		zap.Bool("completed", completed))

	if e.sink != nil {
		e.sink.TradeExecuted(ctx, trade.View(), fill, volumes)
	}
	return fill, nil
}

// CancelTrade cancels an open trade. Only the creator may cancel; escrowed
// quote funds are returned before the status flips. Cancellation stays
// available while trading is paused and after expiry.
func (e *Engine) CancelTrade(ctx context.Context, cmd model.CancelTradeCommand) (model.TradeView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	trade, ok := e.trades[cmd.TradeID]
	if !ok {
		return model.TradeView{}, fmt.Errorf("%w: %s", ErrNotFound, cmd.TradeID)
	}
	if cmd.Caller != trade.Creator {
		return model.TradeView{}, fmt.Errorf("%w: only the creator may cancel", ErrUnauthorized)
	}
	if trade.Status != model.StatusOpen {
		return model.TradeView{}, fmt.Errorf("%w: trade is %s", ErrState, trade.Status)
	}

	if trade.Direction == model.DirectionQuoteToRef && trade.QuoteAmount.Sign() > 0 {
		if err := e.ledger.Transfer(ctx, AccountEscrow, trade.Creator, trade.QuoteAmount); err != nil {
			return model.TradeView{}, fmt.Errorf("%w: escrow refund: %v", ErrTransfer, err)
		}
		trade.QuoteAmount = decimal.Zero
	}
	trade.Status = model.StatusCancelled

	e.logger.Info("engine.trade_cancelled",
		zap.String("trade_id", trade.ID),
		zap.String("creator", trade.Creator))

	view := trade.View()
	if e.sink != nil {
		e.sink.TradeCancelled(ctx, view)
	}
	return view, nil
}

// GetTrade returns a single trade view.
func (e *Engine) GetTrade(id string) (model.TradeView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	trade, ok := e.trades[id]
	if !ok {
		return model.TradeView{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return trade.View(), nil
}

// OpenOrders returns a point-in-time snapshot of fillable trades, excluding
// anything past its timeout window, in insertion order.
func (e *Engine) OpenOrders() []model.TradeView {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.nowFn()
	out := make([]model.TradeView, 0)
	for _, id := range e.order {
		t := e.trades[id]
		if t.Status != model.StatusOpen {
			continue
		}
		if now.After(t.CreatedAt.Add(e.params.TTL(t.PricingMode))) {
			continue
		}
		out = append(out, t.View())
	}
	return out
}

// UserTrades returns every trade created by an account, terminal ones
// included, in insertion order.
func (e *Engine) UserTrades(account string) []model.TradeView {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.TradeView, 0)
	for _, id := range e.order {
		t := e.trades[id]
		if t.Creator != account {
			continue
		}
		out = append(out, t.View())
	}
	return out
}

// PlatformFees returns the accumulated, unwithdrawn platform retention.
func (e *Engine) PlatformFees() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.feePool
}

// WithdrawFees drains the platform fee pool to the given account. Owner only.
func (e *Engine) WithdrawFees(ctx context.Context, caller, to string) (decimal.Decimal, error) {
	if err := e.gate.RequireOwner(caller); err != nil {
		return decimal.Zero, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	amount := e.feePool
	if amount.Sign() <= 0 {
		return decimal.Zero, nil
	}
	if err := e.ledger.Transfer(ctx, AccountFeePool, to, amount); err != nil {
		return decimal.Zero, fmt.Errorf("%w: fee withdrawal: %v", ErrTransfer, err)
	}
	e.feePool = decimal.Zero
	e.logger.Info("engine.fees_withdrawn",
		zap.String("to", to),
		zap.String("amount", amount.String()))
	return amount, nil
}

func (e *Engine) emitCreated(ctx context.Context, view model.TradeView) {
	if e.sink != nil {
		e.sink.TradeCreated(ctx, view)
	}
}
