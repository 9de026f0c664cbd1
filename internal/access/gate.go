package access

import (
	"errors"
	"sync"
)

var (
	ErrPaused      = errors.New("access: trading is paused")
	ErrNotPaused   = errors.New("access: trading is not paused")
	ErrBlocked     = errors.New("access: wallet is blocked")
	ErrNotOperator = errors.New("access: caller is not an operator")
	ErrNotOwner    = errors.New("access: caller is not the owner")
)

// Gate holds the pure gating state consulted by every mutating operation:
// the pause flag, the wallet blocklist and the operator set. The owner is a
// superset of the operator role.
type Gate struct {
	mu        sync.RWMutex
	owner     string
	operators map[string]struct{}
	blocked   map[string]struct{}
	paused    bool
}

// NewGate creates a gate owned by the given wallet.
func NewGate(owner string) *Gate {
	return &Gate{
		owner:     owner,
		operators: make(map[string]struct{}),
		blocked:   make(map[string]struct{}),
	}
}

// Owner returns the owner wallet.
func (g *Gate) Owner() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.owner
}

// RequireOwner rejects callers other than the owner.
func (g *Gate) RequireOwner(caller string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if caller != g.owner {
		return ErrNotOwner
	}
	return nil
}

// RequireOperator rejects callers that are neither an operator nor the owner.
func (g *Gate) RequireOperator(caller string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if caller == g.owner {
		return nil
	}
	if _, ok := g.operators[caller]; !ok {
		return ErrNotOperator
	}
	return nil
}

// AddOperator grants the operator role. Owner only.
func (g *Gate) AddOperator(caller, operator string) error {
	if err := g.RequireOwner(caller); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.operators[operator] = struct{}{}
	return nil
}

// RemoveOperator revokes the operator role. Owner only.
func (g *Gate) RemoveOperator(caller, operator string) error {
	if err := g.RequireOwner(caller); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.operators, operator)
	return nil
}

// Pause halts trade creation and execution. Owner only.
func (g *Gate) Pause(caller string) error {
	if err := g.RequireOwner(caller); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = true
	return nil
}

// Resume lifts the pause flag. Owner only.
func (g *Gate) Resume(caller string) error {
	if err := g.RequireOwner(caller); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return ErrNotPaused
	}
	g.paused = false
	return nil
}

// Paused reports the circuit-breaker state.
func (g *Gate) Paused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}

// RequireActive rejects while the circuit breaker is set.
func (g *Gate) RequireActive() error {
	if g.Paused() {
		return ErrPaused
	}
	return nil
}

// BlockWallet adds a wallet to the blocklist. Operator or owner.
func (g *Gate) BlockWallet(caller, wallet string) error {
	if err := g.RequireOperator(caller); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked[wallet] = struct{}{}
	return nil
}

// UnblockWallet removes a wallet from the blocklist. Operator or owner.
func (g *Gate) UnblockWallet(caller, wallet string) error {
	if err := g.RequireOperator(caller); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.blocked, wallet)
	return nil
}

// IsBlocked reports whether a wallet is on the blocklist.
func (g *Gate) IsBlocked(wallet string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.blocked[wallet]
	return ok
}
