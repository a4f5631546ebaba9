package errors

import "errors"

var (
	ErrNotAdmin            = errors.New("caller is not the vault admin")
	ErrPermissionDenied    = errors.New("caller is not permitted to deposit")
	ErrInsufficientBalance = errors.New("amount exceeds unallocated vault balance")
	ErrNoAllocation        = errors.New("caller has no allocation to claim")
	ErrVaultNotFound       = errors.New("vault not found")
	ErrVaultAlreadyExists  = errors.New("vault already exists")
	ErrInvalidAmount       = errors.New("amount must not be negative")
	ErrInvalidInput        = errors.New("vault ledger input is invalid")
	ErrInsufficientFunds   = errors.New("depositor balance is insufficient")
	ErrInvalidCapability   = errors.New("signing capability is not the delegated one")
	ErrOutboxNotFound      = errors.New("outbox message not found")
)
