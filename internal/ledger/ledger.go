// Package ledger abstracts the asset-transfer collaborator. The engine never
// touches balances directly; every fund movement goes through a Ledger and
// either fully applies or is refused.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInvalidAmount     = errors.New("ledger: amount must be positive")
)

// Ledger is the custody collaborator. A single Transfer is atomic on the
// collaborator side: it either fully applies or returns an error.
type Ledger interface {
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error
	BalanceOf(ctx context.Context, account string) (decimal.Decimal, error)
}

// Movement is one staged transfer leg of a settlement.
type Movement struct {
	From   string
	To     string
	Amount decimal.Decimal
}

// Apply executes a batch of movements as a unit. Zero-amount legs are
// skipped. If any leg is refused, every leg already applied is reversed in
// LIFO order before the error is returned, so the batch never partially
// commits.
func Apply(ctx context.Context, l Ledger, moves []Movement) error {
	applied := make([]Movement, 0, len(moves))
	for _, mv := range moves {
		if mv.Amount.IsZero() {
			continue
		}
		if err := l.Transfer(ctx, mv.From, mv.To, mv.Amount); err != nil {
			err = fmt.Errorf("ledger: transfer %s -> %s failed: %w", mv.From, mv.To, err)
			for i := len(applied) - 1; i >= 0; i-- {
				rb := applied[i]
				if rerr := l.Transfer(ctx, rb.To, rb.From, rb.Amount); rerr != nil {
					err = errors.Join(err, fmt.Errorf("ledger: rollback %s -> %s failed: %w", rb.To, rb.From, rerr))
				}
			}
			return err
		}
		applied = append(applied, mv)
	}
	return nil
}
