package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUserBlocked       = errors.New("user is blocked")
	ErrNotFound          = errors.New("not found")
	ErrAlreadySettled    = errors.New("transaction already settled")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrOptimisticLock    = errors.New("optimistic lock error")
	ErrStoreFailure      = errors.New("store failure")
)

// wrapStore tags driver-level failures so callers can distinguish transient
// I/O problems from business outcomes with errors.Is.
func wrapStore(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreFailure, err)
}
