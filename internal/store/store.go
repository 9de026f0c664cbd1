package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// Store defines the contract for caching snapshots and persisting the swap
// audit trail. Persistence is write-behind: the engine is the source of
// truth and a failed audit write never vetoes a settled fill.
type Store interface {
	RecordTradeEvent(ctx context.Context, trade model.TradeView, eventType string) error
	RecordFillEvent(ctx context.Context, fill model.FillResult) error
	RecordVolumeEntry(ctx context.Context, entry model.VolumeEntry) error
	GetFills(ctx context.Context, tradeID string) ([]model.FillResult, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-first, Postgres-backed store.
func NewHybrid(redisAddr, redisPass string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPass,
		DB:       redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// RecordTradeEvent inserts an immutable lifecycle event into swap.trade_event.
func (s *HybridStore) RecordTradeEvent(ctx context.Context, trade model.TradeView, eventType string) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO swap.trade_event (
			trade_id, event_type, creator, reference_amount, quote_amount,
			initial_reference_amount, initial_quote_amount, price,
			direction, pricing_mode, status, settlement_addr, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
	`, trade.ID, eventType, trade.Creator, trade.ReferenceAmount, trade.QuoteAmount,
		trade.InitialRef, trade.InitialQuote, trade.Price,
		trade.Direction, trade.PricingMode, trade.Status, trade.SettlementAddr)
	if err != nil {
		s.logger.Error("store.pg.insert_trade_event_failed", zap.Error(err))
	}
	return err
}

// RecordFillEvent inserts a settled fill into swap.fill_event.
func (s *HybridStore) RecordFillEvent(ctx context.Context, fill model.FillResult) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO swap.fill_event (
			trade_id, taker, filled_reference, filled_quote, remaining_reference,
			price, fee_charged, commission, cashback, platform_fee,
			completed, dust_returned, executed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, fill.TradeID, fill.Taker, fill.FilledReference, fill.FilledQuote, fill.RemainingRef,
		fill.Price, fill.FeeCharged, fill.Commission, fill.Cashback, fill.PlatformFee,
		fill.Completed, fill.DustReturned, fill.ExecutedAt)
	if err != nil {
		s.logger.Error("store.pg.insert_fill_event_failed", zap.Error(err))
	}
	return err
}

// RecordVolumeEntry inserts an agent-attributed fill into swap.agent_volume.
func (s *HybridStore) RecordVolumeEntry(ctx context.Context, entry model.VolumeEntry) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO swap.agent_volume (
			agent, trader, reference_amount, quote_amount, direction, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.Agent, entry.Trader, entry.RefAmount, entry.QuoteAmt, entry.Direction, entry.RecordedAt)
	if err != nil {
		s.logger.Error("store.pg.insert_volume_failed", zap.Error(err))
	}
	return err
}

// GetFills returns the recorded fill history of a trade, oldest first.
func (s *HybridStore) GetFills(ctx context.Context, tradeID string) ([]model.FillResult, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	rows, err := s.PG.Query(ctx, `
		SELECT trade_id, taker, filled_reference, filled_quote, remaining_reference,
		       price, fee_charged, commission, cashback, platform_fee,
		       completed, dust_returned, executed_at
		FROM swap.fill_event
		WHERE trade_id = $1
		ORDER BY executed_at ASC;
	`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.FillResult
	for rows.Next() {
		var f model.FillResult
		if err := rows.Scan(&f.TradeID, &f.Taker, &f.FilledReference, &f.FilledQuote, &f.RemainingRef,
			&f.Price, &f.FeeCharged, &f.Commission, &f.Cashback, &f.PlatformFee,
			&f.Completed, &f.DustReturned, &f.ExecutedAt); err != nil {
			return nil, err
		}
		results = append(results, f)
	}
	return results, nil
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// IsMiss reports whether a GetJSON error was a plain cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
