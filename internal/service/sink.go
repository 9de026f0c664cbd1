package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/store"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// EventSink fans committed engine outcomes out to the event bus and the
// audit store. Both are write-behind: a failure is logged and counted but
// never unwinds a settled operation.
type EventSink struct {
	store  store.Store
	pub    EventPublisher
	logger *zap.Logger
}

// NewEventSink creates a sink. store and pub may each be nil.
func NewEventSink(st store.Store, pub EventPublisher, logger *zap.Logger) *EventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventSink{store: st, pub: pub, logger: logger}
}

func (s *EventSink) TradeCreated(ctx context.Context, trade model.TradeView) {
	if s.store != nil {
		if err := s.store.RecordTradeEvent(ctx, trade, "trade.created"); err != nil {
			s.logger.Warn("sink.trade_event_record_failed", zap.String("trade_id", trade.ID), zap.Error(err))
		}
	}
	if s.pub != nil {
		if err := s.pub.PublishTradeCreated(ctx, trade); err != nil {
			s.logger.Warn("sink.trade_created_publish_failed", zap.String("trade_id", trade.ID), zap.Error(err))
		}
	}
}

func (s *EventSink) TradeExecuted(ctx context.Context, trade model.TradeView, fill model.FillResult, volumes []model.VolumeEntry) {
	if s.store != nil {
		if err := s.store.RecordTradeEvent(ctx, trade, "trade.executed"); err != nil {
			s.logger.Warn("sink.trade_event_record_failed", zap.String("trade_id", trade.ID), zap.Error(err))
		}
		if err := s.store.RecordFillEvent(ctx, fill); err != nil {
			s.logger.Warn("sink.fill_record_failed", zap.String("trade_id", trade.ID), zap.Error(err))
		}
		for _, volume := range volumes {
			if err := s.store.RecordVolumeEntry(ctx, volume); err != nil {
				s.logger.Warn("sink.volume_record_failed", zap.String("agent", volume.Agent), zap.Error(err))
			}
		}
	}
	if s.pub != nil {
		if err := s.pub.PublishTradeExecuted(ctx, fill); err != nil {
			s.logger.Warn("sink.trade_executed_publish_failed", zap.String("trade_id", trade.ID), zap.Error(err))
		}
	}
}

func (s *EventSink) TradeCancelled(ctx context.Context, trade model.TradeView) {
	if s.store != nil {
		if err := s.store.RecordTradeEvent(ctx, trade, "trade.cancelled"); err != nil {
			s.logger.Warn("sink.trade_event_record_failed", zap.String("trade_id", trade.ID), zap.Error(err))
		}
	}
	if s.pub != nil {
		if err := s.pub.PublishTradeCancelled(ctx, trade); err != nil {
			s.logger.Warn("sink.trade_cancelled_publish_failed", zap.String("trade_id", trade.ID), zap.Error(err))
		}
	}
}
