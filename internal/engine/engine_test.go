package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/swap-engine/internal/access"
	"github.com/Checker-Finance/swap-engine/internal/agent"
	"github.com/Checker-Finance/swap-engine/internal/ledger"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type env struct {
	eng    *Engine
	gate   *access.Gate
	agents *agent.Registry
	book   *ledger.Memory
	now    time.Time
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	gate := access.NewGate("owner")
	book := ledger.NewMemory()
	agents := agent.NewRegistry(book, AccountFeePool, nil)
	eng := New(gate, agents, book, DefaultParams(), nil, nil, nil)

	e := &env{
		eng:    eng,
		gate:   gate,
		agents: agents,
		book:   book,
		now:    time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
	}
	eng.SetNowFunc(func() time.Time { return e.now })
	agents.SetNowFunc(func() time.Time { return e.now })
	return e
}

func (e *env) submit(t *testing.T, creator, ref, quote, price, direction, mode string) model.TradeView {
	t.Helper()
	view, err := e.eng.CreateTrade(context.Background(), model.SubmitTradeCommand{
		Creator:         creator,
		ReferenceAmount: dec(ref),
		QuoteAmount:     dec(quote),
		Price:           dec(price),
		Direction:       direction,
		PricingMode:     mode,
		SettlementAddr:  "dep-addr-1",
	})
	require.NoError(t, err)
	return view
}

func (e *env) execute(tradeID, taker, fill string) (model.FillResult, error) {
	return e.eng.ExecuteTrade(context.Background(), model.ExecuteTradeCommand{
		TradeID:    tradeID,
		Taker:      taker,
		FillAmount: dec(fill),
	})
}

func (e *env) cancel(tradeID, caller string) (model.TradeView, error) {
	return e.eng.CancelTrade(context.Background(), model.CancelTradeCommand{
		TradeID: tradeID,
		Caller:  caller,
	})
}

func (e *env) balance(t *testing.T, account string) decimal.Decimal {
	t.Helper()
	bal, err := e.book.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	return bal
}

func TestFixedFullFillWithAgent(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("taker", dec("50000"))
	require.NoError(t, e.agents.Register("a1", 2000))
	require.NoError(t, e.agents.AssignClient("taker", "a1"))

	trade := e.submit(t, "maker", "1.0", "50000", "50000", "REF_TO_QUOTE", "FIXED")

	fill, err := e.execute(trade.ID, "taker", "1.0")
	require.NoError(t, err)

	// 200 bps on 50000: fee 1000, split 200 agent / 800 platform.
	assert.True(t, fill.FeeCharged.Equal(dec("1000")), "fee = %s", fill.FeeCharged)
	assert.True(t, fill.Commission.Equal(dec("200")))
	assert.True(t, fill.Cashback.IsZero())
	assert.True(t, fill.PlatformFee.Equal(dec("800")))
	assert.True(t, fill.Completed)
	assert.True(t, fill.RemainingRef.IsZero())

	assert.True(t, e.balance(t, "maker").Equal(dec("49000")))
	assert.True(t, e.balance(t, "a1").Equal(dec("200")))
	assert.True(t, e.balance(t, AccountFeePool).Equal(dec("800")))
	assert.True(t, e.balance(t, "taker").IsZero())
	assert.True(t, e.eng.PlatformFees().Equal(dec("800")))

	a, _ := e.agents.Get("a1")
	assert.True(t, a.TotalCommission.Equal(dec("200")))
	assert.True(t, a.TotalRefVolume.Equal(dec("1.0")))

	got, err := e.eng.GetTrade(trade.ID)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", got.Status)
}

func TestEscrowedCreateAndCancel(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("maker", dec("50000"))

	trade := e.submit(t, "maker", "1.0", "50000", "50000", "QUOTE_TO_REF", "FIXED")

	assert.True(t, e.balance(t, "maker").IsZero())
	assert.True(t, e.balance(t, AccountEscrow).Equal(dec("50000")))

	// Only the creator may cancel.
	_, err := e.cancel(trade.ID, "mallory")
	assert.ErrorIs(t, err, ErrUnauthorized)

	view, err := e.cancel(trade.ID, "maker")
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", view.Status)
	assert.True(t, e.balance(t, "maker").Equal(dec("50000")))
	assert.True(t, e.balance(t, AccountEscrow).IsZero())

	// Cancelling twice fails the second time and leaves the status alone.
	_, err = e.cancel(trade.ID, "maker")
	assert.ErrorIs(t, err, ErrState)
	got, _ := e.eng.GetTrade(trade.ID)
	assert.Equal(t, "CANCELLED", got.Status)
}

func TestPartialFillResidualAccounting(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("maker", dec("50000"))

	trade := e.submit(t, "maker", "1.0", "50000", "50000", "QUOTE_TO_REF", "FIXED")

	first, err := e.execute(trade.ID, "taker1", "0.4")
	require.NoError(t, err)
	assert.False(t, first.Completed)
	assert.True(t, first.FilledQuote.Equal(dec("20000")))
	assert.True(t, first.RemainingRef.Equal(dec("0.6")))

	mid, _ := e.eng.GetTrade(trade.ID)
	assert.True(t, mid.ReferenceAmount.Equal(dec("0.6")))
	assert.True(t, mid.QuoteAmount.Equal(dec("30000")))
	// Filled so far equals initial minus residual.
	assert.True(t, mid.InitialRef.Sub(mid.ReferenceAmount).Equal(first.FilledReference))

	second, err := e.execute(trade.ID, "taker2", "0.6")
	require.NoError(t, err)
	assert.True(t, second.Completed)
	assert.True(t, second.RemainingRef.IsZero())
	assert.True(t, second.DustReturned.IsZero())

	// The escrow is fully drained: principals, fees and nothing left over.
	assert.True(t, e.balance(t, AccountEscrow).IsZero())

	done, _ := e.eng.GetTrade(trade.ID)
	assert.Equal(t, "COMPLETED", done.Status)

	// A completed trade rejects further fills.
	_, err = e.execute(trade.ID, "taker3", "0.1")
	assert.ErrorIs(t, err, ErrState)
}

func TestDustResidualAutoCompletes(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("maker", dec("50000"))

	trade := e.submit(t, "maker", "1.0", "50000", "50000", "QUOTE_TO_REF", "FIXED")

	// Leaves 0.00005 reference, under the 0.0001 dust threshold.
	fill, err := e.execute(trade.ID, "taker", "0.99995")
	require.NoError(t, err)

	assert.True(t, fill.Completed)
	assert.True(t, fill.RemainingRef.Equal(dec("0.00005")))
	assert.True(t, fill.DustReturned.Equal(dec("2.5")), "dust = %s", fill.DustReturned)

	// Unused escrow went back to the creator; nothing is stranded.
	assert.True(t, e.balance(t, "maker").Equal(dec("2.5")))
	assert.True(t, e.balance(t, AccountEscrow).IsZero())

	got, _ := e.eng.GetTrade(trade.ID)
	assert.Equal(t, "COMPLETED", got.Status)
	assert.True(t, got.QuoteAmount.IsZero())
}

func TestBlockedCreatorRecordedCancelled(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("evil", dec("50000"))
	require.NoError(t, e.gate.BlockWallet("owner", "evil"))

	trade := e.submit(t, "evil", "1.0", "50000", "50000", "QUOTE_TO_REF", "FIXED")

	// Recorded for audit, already terminal, no escrow taken.
	assert.Equal(t, "CANCELLED", trade.Status)
	assert.True(t, e.balance(t, "evil").Equal(dec("50000")))
	assert.Empty(t, e.eng.OpenOrders())

	_, err := e.execute(trade.ID, "taker", "0.5")
	assert.ErrorIs(t, err, ErrState)
}

func TestLargeOrderThresholdRejected(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("maker", dec("2000000"))

	// At the threshold is rejected, just below passes.
	_, err := e.eng.CreateTrade(context.Background(), model.SubmitTradeCommand{
		Creator:         "maker",
		ReferenceAmount: dec("20"),
		QuoteAmount:     dec("1000000"),
		Price:           dec("50000"),
		Direction:       "QUOTE_TO_REF",
		PricingMode:     "FIXED",
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.True(t, e.balance(t, "maker").Equal(dec("2000000")), "no escrow on rejection")

	e.submit(t, "maker", "19.99998", "999999", "50000", "QUOTE_TO_REF", "FIXED")
}

func TestMinimumQuoteByMode(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.eng.CreateTrade(context.Background(), model.SubmitTradeCommand{
		Creator:         "maker",
		ReferenceAmount: dec("0.001"),
		QuoteAmount:     dec("50"),
		Price:           dec("50000"),
		Direction:       "REF_TO_QUOTE",
		PricingMode:     "FIXED",
	})
	assert.ErrorIs(t, err, ErrValidation, "fixed minimum is 100")

	// The same size is fine as a market trade (minimum 10).
	e.submit(t, "maker", "0.001", "50", "50000", "REF_TO_QUOTE", "MARKET")
}

func TestFixedPriceConsistency(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.eng.CreateTrade(context.Background(), model.SubmitTradeCommand{
		Creator:         "maker",
		ReferenceAmount: dec("1.0"),
		QuoteAmount:     dec("49000"),
		Price:           dec("50000"),
		Direction:       "REF_TO_QUOTE",
		PricingMode:     "FIXED",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestExpiredTradeStillCancellable(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("maker", dec("50000"))

	trade := e.submit(t, "maker", "1.0", "50000", "50000", "QUOTE_TO_REF", "FIXED")

	e.now = e.now.Add(25 * time.Hour) // past the 24h fixed window

	_, err := e.execute(trade.ID, "taker", "0.5")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Empty(t, e.eng.OpenOrders())

	// The creator reclaims the full escrow after expiry.
	_, err = e.cancel(trade.ID, "maker")
	require.NoError(t, err)
	assert.True(t, e.balance(t, "maker").Equal(dec("50000")))
}

func TestMarketTimeoutShorterThanFixed(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("taker", dec("50000"))

	trade := e.submit(t, "maker", "1.0", "50000", "50000", "REF_TO_QUOTE", "MARKET")

	e.now = e.now.Add(2 * time.Hour) // past the 1h market window

	_, err := e.execute(trade.ID, "taker", "1.0")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestPauseBlocksTradingButNotCancellation(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("maker", dec("50000"))
	trade := e.submit(t, "maker", "1.0", "50000", "50000", "QUOTE_TO_REF", "FIXED")

	require.NoError(t, e.gate.Pause("owner"))

	_, err := e.eng.CreateTrade(context.Background(), model.SubmitTradeCommand{
		Creator:         "maker",
		ReferenceAmount: dec("1"),
		QuoteAmount:     dec("50000"),
		Price:           dec("50000"),
		Direction:       "REF_TO_QUOTE",
		PricingMode:     "FIXED",
	})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = e.execute(trade.ID, "taker", "0.5")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Cancellation stays available while paused.
	_, err = e.cancel(trade.ID, "maker")
	assert.NoError(t, err)
}

type failingLedger struct {
	inner  *ledger.Memory
	failAt int
	calls  int
}

func (f *failingLedger) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	f.calls++
	if f.calls == f.failAt {
		return errors.New("custody refused")
	}
	return f.inner.Transfer(ctx, from, to, amount)
}

func (f *failingLedger) BalanceOf(ctx context.Context, account string) (decimal.Decimal, error) {
	return f.inner.BalanceOf(ctx, account)
}

func TestTransferFailureRollsBackSettlement(t *testing.T) {
	gate := access.NewGate("owner")
	book := ledger.NewMemory()
	agents := agent.NewRegistry(book, AccountFeePool, nil)
	flaky := &failingLedger{inner: book}
	eng := New(gate, agents, flaky, DefaultParams(), nil, nil, nil)

	ctx := context.Background()
	book.Credit("taker", dec("50000"))
	require.NoError(t, agents.Register("a1", 2000))
	require.NoError(t, agents.AssignClient("taker", "a1"))

	trade, err := eng.CreateTrade(ctx, model.SubmitTradeCommand{
		Creator:         "maker",
		ReferenceAmount: dec("1.0"),
		QuoteAmount:     dec("50000"),
		Price:           dec("50000"),
		Direction:       "REF_TO_QUOTE",
		PricingMode:     "FIXED",
	})
	require.NoError(t, err)

	// Principal leg applies, commission leg is refused, principal reverses.
	flaky.failAt = flaky.calls + 2
	_, err = eng.ExecuteTrade(ctx, model.ExecuteTradeCommand{
		TradeID:    trade.ID,
		Taker:      "taker",
		FillAmount: dec("1.0"),
	})
	require.ErrorIs(t, err, ErrTransfer)

	takerBal, _ := book.BalanceOf(ctx, "taker")
	makerBal, _ := book.BalanceOf(ctx, "maker")
	assert.True(t, takerBal.Equal(dec("50000")), "taker = %s", takerBal)
	assert.True(t, makerBal.IsZero())
	assert.True(t, eng.PlatformFees().IsZero())

	a, _ := agents.Get("a1")
	assert.True(t, a.TotalCommission.IsZero(), "no commission bookkeeping on rollback")

	got, _ := eng.GetTrade(trade.ID)
	assert.Equal(t, "OPEN", got.Status)
	assert.True(t, got.ReferenceAmount.Equal(dec("1.0")), "residual untouched")
}

func TestMarketFillCashbackAndPriceOverride(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("taker", dec("50000"))
	require.NoError(t, e.eng.Params().SetCashback(10))

	trade := e.submit(t, "maker", "1.0", "50000", "50000", "REF_TO_QUOTE", "MARKET")

	// Market fills honour the caller-supplied price.
	fill, err := e.eng.ExecuteTrade(context.Background(), model.ExecuteTradeCommand{
		TradeID:    trade.ID,
		Taker:      "taker",
		FillAmount: dec("1.0"),
		Price:      dec("49000"),
	})
	require.NoError(t, err)

	assert.True(t, fill.Price.Equal(dec("49000")))
	assert.True(t, fill.FeeCharged.Equal(dec("122.5")), "25 bps on 49000")
	assert.True(t, fill.Cashback.Equal(dec("12.25")))
	assert.True(t, fill.PlatformFee.Equal(dec("110.25")))

	// The taker keeps the cashback: it is simply never collected.
	assert.True(t, e.balance(t, "taker").Equal(dec("1012.25")))
	assert.True(t, e.balance(t, "maker").Equal(dec("48877.5")))
}

type stubPrices struct{ price decimal.Decimal }

func (s stubPrices) LastPrice() (decimal.Decimal, bool) {
	return s.price, s.price.Sign() > 0
}

func TestMarketFillUsesFeedWhenNoOverride(t *testing.T) {
	gate := access.NewGate("owner")
	book := ledger.NewMemory()
	agents := agent.NewRegistry(book, AccountFeePool, nil)
	eng := New(gate, agents, book, DefaultParams(), stubPrices{price: dec("48000")}, nil, nil)

	ctx := context.Background()
	book.Credit("taker", dec("50000"))

	trade, err := eng.CreateTrade(ctx, model.SubmitTradeCommand{
		Creator:         "maker",
		ReferenceAmount: dec("1.0"),
		QuoteAmount:     dec("50000"),
		Price:           dec("50000"),
		Direction:       "REF_TO_QUOTE",
		PricingMode:     "MARKET",
	})
	require.NoError(t, err)

	fill, err := eng.ExecuteTrade(ctx, model.ExecuteTradeCommand{
		TradeID:    trade.ID,
		Taker:      "taker",
		FillAmount: dec("1.0"),
	})
	require.NoError(t, err)
	assert.True(t, fill.Price.Equal(dec("48000")))
}

func TestExecuteValidation(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("maker", dec("50000"))
	trade := e.submit(t, "maker", "1.0", "50000", "50000", "QUOTE_TO_REF", "FIXED")

	_, err := e.execute("no-such-trade", "taker", "0.5")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.execute(trade.ID, "taker", "0")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.execute(trade.ID, "taker", "1.5")
	assert.ErrorIs(t, err, ErrState)

	_, err = e.execute(trade.ID, "maker", "0.5")
	assert.ErrorIs(t, err, ErrValidation, "creator cannot take own trade")

	require.NoError(t, e.gate.BlockWallet("owner", "badtaker"))
	_, err = e.execute(trade.ID, "badtaker", "0.5")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestFillVolumeAccruesToEachSidesAgent(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("taker", dec("50000"))
	require.NoError(t, e.agents.Register("a-maker", 1000))
	require.NoError(t, e.agents.Register("a-taker", 2000))
	require.NoError(t, e.agents.AssignClient("maker", "a-maker"))
	require.NoError(t, e.agents.AssignClient("taker", "a-taker"))

	trade := e.submit(t, "maker", "1.0", "50000", "50000", "REF_TO_QUOTE", "FIXED")
	fill, err := e.execute(trade.ID, "taker", "1.0")
	require.NoError(t, err)

	// Both sides' agents accrue the fill volume; commission stays with the
	// taker's agent only.
	am, _ := e.agents.Get("a-maker")
	at, _ := e.agents.Get("a-taker")
	assert.True(t, am.TotalRefVolume.Equal(dec("1.0")), "creator's agent volume = %s", am.TotalRefVolume)
	assert.True(t, am.TotalQuoteVolume.Equal(dec("50000")))
	assert.True(t, at.TotalRefVolume.Equal(dec("1.0")))
	assert.True(t, fill.Commission.Equal(dec("200")))
	assert.True(t, am.TotalCommission.IsZero())
	assert.True(t, at.TotalCommission.Equal(dec("200")))
	assert.True(t, e.balance(t, "a-maker").IsZero())
}

func TestCreatorOnlyAgentStillAccruesVolume(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("taker", dec("50000"))
	require.NoError(t, e.agents.Register("a-maker", 1000))
	require.NoError(t, e.agents.AssignClient("maker", "a-maker"))

	trade := e.submit(t, "maker", "1.0", "50000", "50000", "REF_TO_QUOTE", "FIXED")
	fill, err := e.execute(trade.ID, "taker", "1.0")
	require.NoError(t, err)

	// The taker has no agent, so the whole fee stays with the platform.
	assert.True(t, fill.Commission.IsZero())
	assert.True(t, fill.PlatformFee.Equal(dec("1000")))

	a, _ := e.agents.Get("a-maker")
	assert.True(t, a.TotalRefVolume.Equal(dec("1.0")))
	assert.True(t, a.TotalQuoteVolume.Equal(dec("50000")))
}

func TestFillRejectedWhenCreatorBlocked(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("taker", dec("50000"))
	trade := e.submit(t, "maker", "1.0", "50000", "50000", "REF_TO_QUOTE", "FIXED")

	require.NoError(t, e.gate.BlockWallet("owner", "maker"))

	_, err := e.execute(trade.ID, "taker", "1.0")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, e.balance(t, "maker").IsZero(), "no proceeds to a blocked wallet")
	assert.True(t, e.balance(t, "taker").Equal(dec("50000")))

	got, _ := e.eng.GetTrade(trade.ID)
	assert.Equal(t, "OPEN", got.Status)

	// Unblocking makes the trade fillable again.
	require.NoError(t, e.gate.UnblockWallet("owner", "maker"))
	_, err = e.execute(trade.ID, "taker", "1.0")
	assert.NoError(t, err)
}

func TestOpenOrdersAndUserTrades(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("maker", dec("100000"))

	first := e.submit(t, "maker", "1.0", "50000", "50000", "QUOTE_TO_REF", "FIXED")
	second := e.submit(t, "other", "0.5", "25000", "50000", "REF_TO_QUOTE", "FIXED")

	open := e.eng.OpenOrders()
	require.Len(t, open, 2)
	assert.Equal(t, first.ID, open[0].ID)
	assert.Equal(t, second.ID, open[1].ID)

	_, err := e.cancel(first.ID, "maker")
	require.NoError(t, err)
	assert.Len(t, e.eng.OpenOrders(), 1)

	mine := e.eng.UserTrades("maker")
	require.Len(t, mine, 1)
	assert.Equal(t, "CANCELLED", mine[0].Status)
	assert.True(t, mine[0].InitialRef.Equal(dec("1.0")), "history keeps initial amounts")
}

func TestWithdrawFeesOwnerOnly(t *testing.T) {
	e := newTestEnv(t)
	e.book.Credit("taker", dec("50000"))
	trade := e.submit(t, "maker", "1.0", "50000", "50000", "REF_TO_QUOTE", "FIXED")
	_, err := e.execute(trade.ID, "taker", "1.0")
	require.NoError(t, err)
	require.True(t, e.eng.PlatformFees().Equal(dec("1000")))

	_, err = e.eng.WithdrawFees(context.Background(), "mallory", "treasury")
	assert.ErrorIs(t, err, access.ErrNotOwner)

	amount, err := e.eng.WithdrawFees(context.Background(), "owner", "treasury")
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("1000")))
	assert.True(t, e.balance(t, "treasury").Equal(dec("1000")))
	assert.True(t, e.eng.PlatformFees().IsZero())

	// Nothing left to withdraw.
	amount, err = e.eng.WithdrawFees(context.Background(), "owner", "treasury")
	require.NoError(t, err)
	assert.True(t, amount.IsZero())
}

func TestEscrowFailureLeavesNoOrphanTrade(t *testing.T) {
	e := newTestEnv(t)
	// Creator has no funds, so escrow funding is refused.
	_, err := e.eng.CreateTrade(context.Background(), model.SubmitTradeCommand{
		Creator:         "pauper",
		ReferenceAmount: dec("1.0"),
		QuoteAmount:     dec("50000"),
		Price:           dec("50000"),
		Direction:       "QUOTE_TO_REF",
		PricingMode:     "FIXED",
	})
	require.ErrorIs(t, err, ErrTransfer)
	assert.Empty(t, e.eng.OpenOrders())
	assert.Empty(t, e.eng.UserTrades("pauper"))
}
