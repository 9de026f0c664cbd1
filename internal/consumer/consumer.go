package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/engine"
	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// TradeService defines the engine surface the consumer drives.
type TradeService interface {
	CreateTrade(ctx context.Context, cmd model.SubmitTradeCommand) (model.TradeView, error)
	ExecuteTrade(ctx context.Context, cmd model.ExecuteTradeCommand) (model.FillResult, error)
	CancelTrade(ctx context.Context, cmd model.CancelTradeCommand) (model.TradeView, error)
}

// Consumer consumes trade commands from RabbitMQ
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	trades  TradeService
	queues  Queues
	logger  *zap.Logger
	done    chan struct{}
}

// Queues names the three command queues.
type Queues struct {
	Submit  string
	Execute string
	Cancel  string
}

// NewConsumer creates a new RabbitMQ consumer
func NewConsumer(url string, queues Queues, trades TradeService, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: channel,
		trades:  trades,
		queues:  queues,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start declares the command queues and starts one consumer goroutine per queue.
func (c *Consumer) Start(ctx context.Context) error {
	for _, q := range []string{c.queues.Submit, c.queues.Execute, c.queues.Cancel} {
		if _, err := c.channel.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q, err)
		}
	}

	submitMsgs, err := c.channel.Consume(c.queues.Submit, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.queues.Submit, err)
	}
	executeMsgs, err := c.channel.Consume(c.queues.Execute, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.queues.Execute, err)
	}
	cancelMsgs, err := c.channel.Consume(c.queues.Cancel, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.queues.Cancel, err)
	}

	c.logger.Info("Started consuming from RabbitMQ",
		zap.String("submitQueue", c.queues.Submit),
		zap.String("executeQueue", c.queues.Execute),
		zap.String("cancelQueue", c.queues.Cancel),
	)

	go c.consumeSubmits(ctx, submitMsgs)
	go c.consumeExecutes(ctx, executeMsgs)
	go c.consumeCancels(ctx, cancelMsgs)

	return nil
}

// settle acks, drops or requeues a delivery based on the engine outcome.
// Engine rejections are deterministic, so only transfer failures are worth
// retrying; everything else would loop forever.
func (c *Consumer) settle(msg amqp.Delivery, queue string, err error) {
	if err == nil {
		metrics.IncCommand(queue, "ok")
		msg.Ack(false)
		return
	}
	metrics.IncCommand(queue, "error")
	if errors.Is(err, engine.ErrTransfer) {
		msg.Nack(false, true) // Requeue on failure
		return
	}
	msg.Nack(false, false)
}

func (c *Consumer) consumeSubmits(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Submit channel closed")
				return
			}

			c.logger.Debug("Received submit message", zap.String("body", string(msg.Body)))

			var cmd model.SubmitTradeCommand
			if err := json.Unmarshal(msg.Body, &cmd); err != nil {
				c.logger.Error("Failed to unmarshal SubmitTradeCommand", zap.Error(err))
				metrics.IncCommand(c.queues.Submit, "error")
				msg.Nack(false, false)
				continue
			}

			_, err := c.trades.CreateTrade(ctx, cmd)
			if err != nil {
				c.logger.Error("Failed to create trade", zap.Error(err))
			}
			c.settle(msg, c.queues.Submit, err)
		}
	}
}

func (c *Consumer) consumeExecutes(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Execute channel closed")
				return
			}

			var cmd model.ExecuteTradeCommand
			if err := json.Unmarshal(msg.Body, &cmd); err != nil {
				c.logger.Error("Failed to unmarshal ExecuteTradeCommand", zap.Error(err))
				metrics.IncCommand(c.queues.Execute, "error")
				msg.Nack(false, false)
				continue
			}

			_, err := c.trades.ExecuteTrade(ctx, cmd)
			if err != nil {
				c.logger.Error("Failed to execute trade",
					zap.String("trade_id", cmd.TradeID),
					zap.Error(err))
			}
			c.settle(msg, c.queues.Execute, err)
		}
	}
}

func (c *Consumer) consumeCancels(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Cancel channel closed")
				return
			}

			var cmd model.CancelTradeCommand
			if err := json.Unmarshal(msg.Body, &cmd); err != nil {
				c.logger.Error("Failed to unmarshal CancelTradeCommand", zap.Error(err))
				metrics.IncCommand(c.queues.Cancel, "error")
				msg.Nack(false, false)
				continue
			}

			_, err := c.trades.CancelTrade(ctx, cmd)
			if err != nil {
				c.logger.Error("Failed to cancel trade",
					zap.String("trade_id", cmd.TradeID),
					zap.Error(err))
			}
			c.settle(msg, c.queues.Cancel, err)
		}
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	close(c.done)

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
