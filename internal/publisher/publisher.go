package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/pkg/logger"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// jetStream is the slice of the JetStream context the publisher needs,
// narrowed so tests can substitute it.
type jetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher wraps a NATS connection and provides helpers for publishing canonical events.
type Publisher struct {
	nc            *nats.Conn
	js            jetStream
	subjectPrefix string
	agentSubject  string
	service       string
}

// New creates a new Publisher with JetStream enabled if available.
func New(nc *nats.Conn, subjectPrefix, agentSubject, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:            nc,
		js:            js,
		subjectPrefix: subjectPrefix,
		agentSubject:  agentSubject,
		service:       service,
	}, nil
}

// PublishEnvelope serializes and publishes a canonical event envelope to NATS.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"wallet":         []string{env.Wallet},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"wallet", env.Wallet,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	logger.S().Infow("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
		"wallet", env.Wallet,
	)

	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// PublishTradeCreated emits canonical trade.created events.
func (p *Publisher) PublishTradeCreated(ctx context.Context, trade model.TradeView) error {
	return p.publishTrade(ctx, trade, "created")
}

// PublishTradeCancelled emits canonical trade.cancelled events.
func (p *Publisher) PublishTradeCancelled(ctx context.Context, trade model.TradeView) error {
	return p.publishTrade(ctx, trade, "cancelled")
}

func (p *Publisher) publishTrade(ctx context.Context, trade model.TradeView, verb string) error {
	subject := p.subjectPrefix + "." + verb + ".v1"
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Wallet:        trade.Creator,
		Topic:         subject,
		EventType:     "trade." + verb,
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
	}

	data, _ := json.Marshal(trade)
	env.Payload = data

	return p.PublishEnvelope(ctx, subject, env)
}

// PublishTradeExecuted emits canonical trade.executed events carrying the
// fill result.
func (p *Publisher) PublishTradeExecuted(ctx context.Context, fill model.FillResult) error {
	subject := p.subjectPrefix + ".executed.v1"
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Wallet:        fill.Taker,
		Topic:         subject,
		EventType:     "trade.executed",
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
	}

	data, _ := json.Marshal(fill)
	env.Payload = data

	return p.PublishEnvelope(ctx, subject, env)
}

// PublishAgentUpdated emits canonical agent.updated events.
func (p *Publisher) PublishAgentUpdated(ctx context.Context, agent model.Agent) error {
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Wallet:        agent.Wallet,
		Topic:         p.agentSubject,
		EventType:     "agent.updated",
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
	}

	data, _ := json.Marshal(agent)
	env.Payload = data

	return p.PublishEnvelope(ctx, p.agentSubject, env)
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
