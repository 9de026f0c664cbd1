package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/fees"
	"github.com/Checker-Finance/swap-engine/internal/ledger"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

var (
	ErrNotFound          = errors.New("agent: not registered")
	ErrAlreadyRegistered = errors.New("agent: already registered")
	ErrAlreadyAssigned   = errors.New("agent: client already assigned")
	ErrNotAssigned       = errors.New("agent: client not assigned")
	ErrInactive          = errors.New("agent: suspended")
)

// Registry owns agent records, client assignments and per-agent commission
// and volume aggregates. The settlement engine consults it on every fill.
type Registry struct {
	mu      sync.RWMutex
	agents  map[string]*model.Agent
	clients map[string]string // client wallet -> agent wallet
	ledger  ledger.Ledger
	feePool string
	logger  *zap.Logger
	nowFn   func() time.Time
}

// NewRegistry creates an empty registry. Pending-commission flushes on
// deletion are paid out of the feePool account through the supplied ledger.
func NewRegistry(l ledger.Ledger, feePool string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents:  make(map[string]*model.Agent),
		clients: make(map[string]string),
		ledger:  l,
		feePool: feePool,
		logger:  logger,
		nowFn:   time.Now,
	}
}

// SetNowFunc overrides the time source, primarily used in tests.
func (r *Registry) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.nowFn = now
}

// Register approves a new agent at the given commission rate. Re-registering
// a previously deleted agent starts from a fresh record; registering an
// existing one is rejected.
func (r *Registry) Register(wallet string, commissionRateBps int64) error {
	if commissionRateBps <= 0 || commissionRateBps > fees.MaxCommissionRateBps {
		return fmt.Errorf("agent: commission rate %d bps out of range (max %d)", commissionRateBps, fees.MaxCommissionRateBps)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[wallet]; ok {
		return ErrAlreadyRegistered
	}
	r.agents[wallet] = &model.Agent{
		Wallet:            wallet,
		Active:            true,
		CommissionRateBps: commissionRateBps,
		RegisteredAt:      r.nowFn(),
	}
	r.logger.Info("agent.registered",
		zap.String("wallet", wallet),
		zap.Int64("rate_bps", commissionRateBps))
	return nil
}

// Suspend retains the record but halts further commission and volume accrual.
func (r *Registry) Suspend(wallet string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[wallet]
	if !ok {
		return ErrNotFound
	}
	a.Active = false
	return nil
}

// Resume reverses a suspension.
func (r *Registry) Resume(wallet string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[wallet]
	if !ok {
		return ErrNotFound
	}
	a.Active = true
	return nil
}

// Delete purges the record, flushing any pending commission to the agent
// first and severing every client assignment pointing at it.
func (r *Registry) Delete(ctx context.Context, wallet string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[wallet]
	if !ok {
		return ErrNotFound
	}
	if a.Pending.Sign() > 0 {
		if err := r.ledger.Transfer(ctx, r.feePool, wallet, a.Pending); err != nil {
			return fmt.Errorf("agent: pending commission flush failed: %w", err)
		}
		r.logger.Info("agent.pending_flushed",
			zap.String("wallet", wallet),
			zap.String("amount", a.Pending.String()))
	}
	delete(r.agents, wallet)
	for client, agentWallet := range r.clients {
		if agentWallet == wallet {
			delete(r.clients, client)
		}
	}
	return nil
}

// AssignClient establishes an exclusive client -> agent relationship.
// Reassigning an already-assigned client is rejected; callers must unassign
// first.
func (r *Registry) AssignClient(client, agentWallet string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentWallet]
	if !ok {
		return ErrNotFound
	}
	if !a.Active {
		return ErrInactive
	}
	if _, ok := r.clients[client]; ok {
		return ErrAlreadyAssigned
	}
	r.clients[client] = agentWallet
	return nil
}

// UnassignClient severs a client's agent relationship.
func (r *Registry) UnassignClient(client string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[client]; !ok {
		return ErrNotAssigned
	}
	delete(r.clients, client)
	return nil
}

// AgentOf returns the wallet of the agent assigned to a client, if any.
func (r *Registry) AgentOf(client string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.clients[client]
	return w, ok
}

// Entitlement returns the trader's active agent and its commission rate. The
// absent case is a normal outcome, not an error: settlement treats it as zero
// commission.
func (r *Registry) Entitlement(trader string) (wallet string, rateBps int64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, assigned := r.clients[trader]
	if !assigned {
		return "", 0, false
	}
	a, exists := r.agents[w]
	if !exists || !a.Active {
		return "", 0, false
	}
	return w, a.CommissionRateBps, true
}

// RecordCommission accrues a paid-out commission to the agent's lifetime
// total. Called after the settlement transfers have committed.
func (r *Registry) RecordCommission(agentWallet string, amount decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentWallet]
	if !ok {
		return
	}
	a.TotalCommission = a.TotalCommission.Add(amount)
}

// RecordVolume appends a fill to the trade-volume ledger of the trader's
// active agent. A trader without one is a no-op, and the entry is returned
// for audit when recorded.
func (r *Registry) RecordVolume(trader string, refAmount, quoteAmount decimal.Decimal, direction model.Direction) *model.VolumeEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, assigned := r.clients[trader]
	if !assigned {
		return nil
	}
	a, exists := r.agents[w]
	if !exists || !a.Active {
		return nil
	}
	a.TotalRefVolume = a.TotalRefVolume.Add(refAmount)
	a.TotalQuoteVolume = a.TotalQuoteVolume.Add(quoteAmount)
	return &model.VolumeEntry{
		Agent:      w,
		Trader:     trader,
		RefAmount:  refAmount,
		QuoteAmt:   quoteAmount,
		Direction:  direction.String(),
		RecordedAt: r.nowFn(),
	}
}

// Get returns a copy of an agent record.
func (r *Registry) Get(wallet string) (*model.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[wallet]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// List returns copies of all agent records.
func (r *Registry) List() []model.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a.Clone())
	}
	return out
}
