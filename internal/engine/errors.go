package engine

import "errors"

// Sentinel failure classes. Callers branch with errors.Is; the API layer maps
// each class to a status code.
var (
	// ErrValidation covers malformed input rejected before any state change.
	ErrValidation = errors.New("engine: validation failed")
	// ErrNotFound is returned for an unknown trade id.
	ErrNotFound = errors.New("engine: trade not found")
	// ErrState covers operations against a trade in the wrong lifecycle state,
	// including fills beyond the residual.
	ErrState = errors.New("engine: invalid trade state")
	// ErrUnauthorized covers blocked wallets and callers lacking a role.
	ErrUnauthorized = errors.New("engine: unauthorized")
	// ErrExpired is returned when a fill arrives after the trade's timeout
	// window. The trade stays cancellable by its creator.
	ErrExpired = errors.New("engine: trade expired")
	// ErrTransfer wraps a refusal from the ledger collaborator. The whole
	// operation is rolled back; nothing partially commits.
	ErrTransfer = errors.New("engine: transfer failed")
)
