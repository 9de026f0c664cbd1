// Package service composes the settlement engine with the ambient
// infrastructure: per-wallet throttling, the Redis open-order snapshot, the
// Postgres audit trail and canonical event publication.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/engine"
	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/internal/rate"
	"github.com/Checker-Finance/swap-engine/internal/store"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// ErrRateLimited is returned when a wallet exceeds its submission throttle.
var ErrRateLimited = errors.New("service: rate limit exceeded")

// EventPublisher is the outbound event surface the service fans out to.
type EventPublisher interface {
	PublishTradeCreated(ctx context.Context, trade model.TradeView) error
	PublishTradeExecuted(ctx context.Context, fill model.FillResult) error
	PublishTradeCancelled(ctx context.Context, trade model.TradeView) error
	PublishAgentUpdated(ctx context.Context, agent model.Agent) error
}

// Service is the operation surface shared by the HTTP API and the command
// consumer.
type Service struct {
	engine *engine.Engine
	store  store.Store
	pub    EventPublisher
	rates  *rate.Manager
	logger *zap.Logger

	openOrdersKey string
	snapshotTTL   time.Duration
}

// New wires a service. store, pub and rates may each be nil; the engine is
// authoritative and everything else is best-effort.
func New(eng *engine.Engine, st store.Store, pub EventPublisher, rates *rate.Manager, openOrdersKey string, snapshotTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:        eng,
		store:         st,
		pub:           pub,
		rates:         rates,
		logger:        logger,
		openOrdersKey: openOrdersKey,
		snapshotTTL:   snapshotTTL,
	}
}

// Engine exposes the underlying engine for administrative wiring.
func (s *Service) Engine() *engine.Engine { return s.engine }

// CreateTrade throttles the creator and delegates to the engine.
func (s *Service) CreateTrade(ctx context.Context, cmd model.SubmitTradeCommand) (model.TradeView, error) {
	if s.rates != nil && !s.rates.Allow(cmd.Creator) {
		metrics.IncTradeOp("create", "error")
		return model.TradeView{}, ErrRateLimited
	}
	start := time.Now()
	view, err := s.engine.CreateTrade(ctx, cmd)
	metrics.ObserveDuration(metrics.SettlementDuration, start, "create")
	if err != nil {
		metrics.IncTradeOp("create", "error")
		return model.TradeView{}, err
	}
	metrics.IncTradeOp("create", "ok")
	s.refreshSnapshot(ctx)
	return view, nil
}

// ExecuteTrade delegates a fill to the engine.
func (s *Service) ExecuteTrade(ctx context.Context, cmd model.ExecuteTradeCommand) (model.FillResult, error) {
	start := time.Now()
	fill, err := s.engine.ExecuteTrade(ctx, cmd)
	metrics.ObserveDuration(metrics.SettlementDuration, start, "execute")
	if err != nil {
		metrics.IncTradeOp("execute", "error")
		return model.FillResult{}, err
	}
	metrics.IncTradeOp("execute", "ok")
	fee, _ := fill.PlatformFee.Float64()
	commission, _ := fill.Commission.Float64()
	cashback, _ := fill.Cashback.Float64()
	metrics.AddFeeVolume("platform", fee)
	metrics.AddFeeVolume("commission", commission)
	metrics.AddFeeVolume("cashback", cashback)
	s.refreshSnapshot(ctx)
	return fill, nil
}

// CancelTrade delegates a cancellation to the engine.
func (s *Service) CancelTrade(ctx context.Context, cmd model.CancelTradeCommand) (model.TradeView, error) {
	view, err := s.engine.CancelTrade(ctx, cmd)
	if err != nil {
		metrics.IncTradeOp("cancel", "error")
		return model.TradeView{}, err
	}
	metrics.IncTradeOp("cancel", "ok")
	s.refreshSnapshot(ctx)
	return view, nil
}

// OpenOrders serves the cached snapshot when fresh, falling back to the
// engine and repopulating the cache.
func (s *Service) OpenOrders(ctx context.Context) []model.TradeView {
	if s.store != nil {
		var cached []model.TradeView
		if err := s.store.GetJSON(ctx, s.openOrdersKey, &cached); err == nil {
			return cached
		} else if !store.IsMiss(err) {
			s.logger.Warn("service.snapshot_read_failed", zap.Error(err))
		}
	}
	open := s.engine.OpenOrders()
	s.cacheSnapshot(ctx, open)
	return open
}

// UserTrades returns an account's trades, terminal ones included.
func (s *Service) UserTrades(account string) []model.TradeView {
	return s.engine.UserTrades(account)
}

// GetTrade returns one trade.
func (s *Service) GetTrade(id string) (model.TradeView, error) {
	return s.engine.GetTrade(id)
}

// Fills returns the persisted fill history of a trade.
func (s *Service) Fills(ctx context.Context, tradeID string) ([]model.FillResult, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.GetFills(ctx, tradeID)
}

func (s *Service) refreshSnapshot(ctx context.Context) {
	open := s.engine.OpenOrders()
	metrics.SetOpenOrders(len(open))
	s.cacheSnapshot(ctx, open)
}

func (s *Service) cacheSnapshot(ctx context.Context, open []model.TradeView) {
	if s.store == nil {
		return
	}
	if err := s.store.SetJSON(ctx, s.openOrdersKey, open, s.snapshotTTL); err != nil {
		s.logger.Warn("service.snapshot_write_failed", zap.Error(err))
	}
}

// RegisterAgent approves an agent. Operator or owner.
func (s *Service) RegisterAgent(ctx context.Context, caller, wallet string, rateBps int64) error {
	if err := s.engine.Gate().RequireOperator(caller); err != nil {
		return err
	}
	if err := s.engine.Agents().Register(wallet, rateBps); err != nil {
		return err
	}
	s.publishAgent(ctx, wallet)
	return nil
}

// SuspendAgent halts an agent's accrual. Operator or owner.
func (s *Service) SuspendAgent(ctx context.Context, caller, wallet string) error {
	if err := s.engine.Gate().RequireOperator(caller); err != nil {
		return err
	}
	if err := s.engine.Agents().Suspend(wallet); err != nil {
		return err
	}
	s.publishAgent(ctx, wallet)
	return nil
}

// ResumeAgent reverses a suspension. Operator or owner.
func (s *Service) ResumeAgent(ctx context.Context, caller, wallet string) error {
	if err := s.engine.Gate().RequireOperator(caller); err != nil {
		return err
	}
	if err := s.engine.Agents().Resume(wallet); err != nil {
		return err
	}
	s.publishAgent(ctx, wallet)
	return nil
}

// DeleteAgent purges an agent after flushing pending commission. Operator or
// owner.
func (s *Service) DeleteAgent(ctx context.Context, caller, wallet string) error {
	if err := s.engine.Gate().RequireOperator(caller); err != nil {
		return err
	}
	return s.engine.Agents().Delete(ctx, wallet)
}

// AssignClient binds a client to an agent. Operator or owner.
func (s *Service) AssignClient(caller, client, agentWallet string) error {
	if err := s.engine.Gate().RequireOperator(caller); err != nil {
		return err
	}
	return s.engine.Agents().AssignClient(client, agentWallet)
}

// UnassignClient severs a client's agent binding. Operator or owner.
func (s *Service) UnassignClient(caller, client string) error {
	if err := s.engine.Gate().RequireOperator(caller); err != nil {
		return err
	}
	return s.engine.Agents().UnassignClient(client)
}

// Agents lists agent records. Operator or owner.
func (s *Service) Agents(caller string) ([]model.Agent, error) {
	if err := s.engine.Gate().RequireOperator(caller); err != nil {
		return nil, err
	}
	return s.engine.Agents().List(), nil
}

func (s *Service) publishAgent(ctx context.Context, wallet string) {
	if s.pub == nil {
		return
	}
	if a, ok := s.engine.Agents().Get(wallet); ok {
		if err := s.pub.PublishAgentUpdated(ctx, *a); err != nil {
			s.logger.Warn("service.agent_publish_failed", zap.Error(err))
		}
	}
}
