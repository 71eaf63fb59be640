package domain

import "errors"

var (
	ErrSkuMismatch        = errors.New("sku mismatch")
	ErrUnknownBatch       = errors.New("unknown batch")
	ErrEmptyAllocationSet = errors.New("no allocations to remove")
	ErrInvalidQuantity    = errors.New("invalid quantity")
)
