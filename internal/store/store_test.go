package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/swap-engine/pkg/model"
)

func newTestStore(t *testing.T) (*HybridStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &HybridStore{redis: rdb}, mr
}

func TestSetAndGetJSON(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	defer mr.Close()

	val := []model.TradeView{{
		ID:              "t-1",
		Creator:         "maker",
		ReferenceAmount: decimal.RequireFromString("1.0"),
		QuoteAmount:     decimal.RequireFromString("50000"),
		Status:          "OPEN",
	}}

	if err := store.SetJSON(ctx, "swap:open_orders", val, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got []model.TradeView
	if err := store.GetJSON(ctx, "swap:open_orders", &got); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}

	if len(got) != 1 || got[0].ID != "t-1" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if !got[0].QuoteAmount.Equal(decimal.RequireFromString("50000")) {
		t.Errorf("quote amount round-trip mismatch: %s", got[0].QuoteAmount)
	}
}

func TestGetJSONMiss(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	defer mr.Close()

	var got []model.TradeView
	err := store.GetJSON(ctx, "swap:missing", &got)
	if err == nil {
		t.Fatal("expected a miss error")
	}
	if !IsMiss(err) {
		t.Errorf("expected IsMiss to report a cache miss, got %v", err)
	}
}

func TestSnapshotExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	defer mr.Close()

	if err := store.SetJSON(ctx, "swap:open_orders", []model.TradeView{}, 30*time.Second); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	mr.FastForward(31 * time.Second)

	var got []model.TradeView
	if err := store.GetJSON(ctx, "swap:open_orders", &got); !IsMiss(err) {
		t.Errorf("expected miss after TTL, got %v", err)
	}
}

func TestPGWriteBehindSkipsWhenUnconfigured(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	defer mr.Close()

	// No Postgres pool wired: audit writes are silent no-ops, never errors.
	if err := store.RecordTradeEvent(ctx, model.TradeView{ID: "t-1"}, "trade.created"); err != nil {
		t.Fatalf("RecordTradeEvent should no-op without PG: %v", err)
	}
	if err := store.RecordFillEvent(ctx, model.FillResult{TradeID: "t-1"}); err != nil {
		t.Fatalf("RecordFillEvent should no-op without PG: %v", err)
	}
	if err := store.RecordVolumeEntry(ctx, model.VolumeEntry{Agent: "a1"}); err != nil {
		t.Fatalf("RecordVolumeEntry should no-op without PG: %v", err)
	}
}

func TestNewHybridRedisAuth(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	mr.RequireAuth("hunter2")

	if _, err := NewHybrid(mr.Addr(), "", 0, "", PGPoolConfig{}, nil); err == nil {
		t.Fatal("expected ping failure without the redis password")
	}

	st, err := NewHybrid(mr.Addr(), "hunter2", 0, "", PGPoolConfig{}, nil)
	if err != nil {
		t.Fatalf("NewHybrid with password failed: %v", err)
	}
	defer st.Close()

	if err := st.HealthCheck(context.Background()); err != nil {
		t.Fatalf("healthcheck failed: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("healthcheck failed: %v", err)
	}

	mr.Close()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected healthcheck failure after redis shutdown")
	}
}
