package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// --- mock types ---

type mockJetStream struct {
	published []*nats.Msg
	fail      bool
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if m.fail {
		return nil, errors.New("mock publish error")
	}
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "mock-stream", Sequence: 1}, nil
}

// --- helper ---

func newTestPublisher(fail bool) *Publisher {
	return &Publisher{
		js:            &mockJetStream{fail: fail},
		subjectPrefix: "evt.trade",
		agentSubject:  "evt.agent.updated.v1",
		service:       "swap-engine",
	}
}

// --- tests ---

func TestPublishEnvelope_Success(t *testing.T) {
	pub := newTestPublisher(false)
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Wallet:        "maker-001",
		Topic:         "evt.trade.created.v1",
		EventType:     "trade.created",
		Version:       "1.0.0",
		Timestamp:     time.Now(),
		Payload:       json.RawMessage(`{"id":"t-1","status":"OPEN"}`),
	}

	err := pub.PublishEnvelope(context.Background(), "evt.trade.created.v1", env)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	js := pub.js.(*mockJetStream)
	if len(js.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(js.published))
	}

	msg := js.published[0]
	if msg.Subject != "evt.trade.created.v1" {
		t.Errorf("unexpected subject: %s", msg.Subject)
	}

	// verify headers
	if msg.Header.Get("event_type") != "trade.created" {
		t.Errorf("expected header event_type=trade.created, got %s", msg.Header.Get("event_type"))
	}
	if msg.Header.Get("wallet") != "maker-001" {
		t.Errorf("expected header wallet=maker-001, got %s", msg.Header.Get("wallet"))
	}
}

func TestPublishEnvelope_Failure(t *testing.T) {
	pub := newTestPublisher(true)
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Topic:         "evt.trade.created.v1",
		EventType:     "trade.created",
		Version:       "1.0.0",
		Timestamp:     time.Now(),
	}

	if err := pub.PublishEnvelope(context.Background(), "evt.trade.created.v1", env); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestPublishTradeExecuted_SubjectAndPayload(t *testing.T) {
	pub := newTestPublisher(false)

	fill := model.FillResult{
		TradeID:         "t-1",
		Taker:           "taker-1",
		FilledReference: decimal.RequireFromString("0.5"),
		FilledQuote:     decimal.RequireFromString("25000"),
		FeeCharged:      decimal.RequireFromString("500"),
		ExecutedAt:      time.Now().UTC(),
	}

	if err := pub.PublishTradeExecuted(context.Background(), fill); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	js := pub.js.(*mockJetStream)
	msg := js.published[0]
	if msg.Subject != "evt.trade.executed.v1" {
		t.Errorf("unexpected subject: %s", msg.Subject)
	}

	var env model.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		t.Fatalf("envelope unmarshal failed: %v", err)
	}
	if env.EventType != "trade.executed" {
		t.Errorf("unexpected event type: %s", env.EventType)
	}
	if env.Wallet != "taker-1" {
		t.Errorf("unexpected wallet: %s", env.Wallet)
	}

	var got model.FillResult
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if got.TradeID != "t-1" || !got.FeeCharged.Equal(fill.FeeCharged) {
		t.Errorf("payload round-trip mismatch: %+v", got)
	}
}

func TestPublishAgentUpdated(t *testing.T) {
	pub := newTestPublisher(false)

	err := pub.PublishAgentUpdated(context.Background(), model.Agent{
		Wallet:            "a1",
		Active:            true,
		CommissionRateBps: 2000,
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	js := pub.js.(*mockJetStream)
	if js.published[0].Subject != "evt.agent.updated.v1" {
		t.Errorf("unexpected subject: %s", js.published[0].Subject)
	}
}
