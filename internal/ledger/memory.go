package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Memory is an in-process Ledger used in development and tests. Production
// deployments wire the custody service instead.
type Memory struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]decimal.Decimal)}
}

// Credit seeds an account balance.
func (m *Memory) Credit(account string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = m.balances[account].Add(amount)
}

// Transfer moves amount from one account to another, refusing overdrafts.
func (m *Memory) Transfer(_ context.Context, from, to string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[from].LessThan(amount) {
		return ErrInsufficientFunds
	}
	m.balances[from] = m.balances[from].Sub(amount)
	m.balances[to] = m.balances[to].Add(amount)
	return nil
}

// BalanceOf returns the current balance of an account.
func (m *Memory) BalanceOf(_ context.Context, account string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}
