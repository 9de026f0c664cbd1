package rate

import (
	"context"
	"sync"
	"time"
)

// Config defines throttle parameters for a wallet: Requests per Period with
// an allowed Burst.
type Config struct {
	Requests int
	Period   time.Duration
	Burst    int
}

// Limiter implements a token bucket rate limiter.
type Limiter struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
	rate   float64 // tokens per second
	burst  float64
}

// New creates a new limiter.
func New(cfg Config) *Limiter {
	period := cfg.Period
	if period <= 0 {
		period = time.Second
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Requests
	}
	return &Limiter{
		tokens: float64(burst),
		last:   time.Now(),
		rate:   float64(cfg.Requests) / period.Seconds(),
		burst:  float64(burst),
	}
}

func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.last).Seconds()
	l.last = now

	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}

	if l.tokens >= 1 {
		l.tokens -= 1
		return true
	}
	return false
}

// Wait blocks until a token becomes available or context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if l.Allow() {
			return nil
		}
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Manager holds per-wallet limiters.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	defaults Config
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters: make(map[string]*Limiter),
		defaults: defaults,
	}
}

func (m *Manager) GetLimiter(wallet string) *Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[wallet]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[wallet]; ok {
		return lim
	}
	lim := New(m.defaults)
	m.limiters[wallet] = lim
	return lim
}

// Allow reports whether a wallet may submit another request right now.
func (m *Manager) Allow(wallet string) bool {
	return m.GetLimiter(wallet).Allow()
}

// Wait ensures rate limit compliance for a given wallet.
func (m *Manager) Wait(ctx context.Context, wallet string) error {
	return m.GetLimiter(wallet).Wait(ctx)
}
