package database

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// Set of error variables for validating transactions and blocks and for
// reporting storage problems. Callers compare with errors.Is.
var (
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrDoubleSpend          = errors.New("double spend")
	ErrNonceMismatch        = errors.New("nonce mismatch")
	ErrInvalidAddress       = errors.New("invalid address")
	ErrConsensusRejected    = errors.New("consensus rejected")
	ErrUnknownParent        = errors.New("unknown parent")
	ErrStorageFailure       = errors.New("storage failure")
	ErrDuplicateBlock       = errors.New("duplicate block")
	ErrInvalidBlock         = errors.New("invalid block")
	ErrInvariantViolation   = errors.New("invariant violation")
	ErrNotFound             = errors.New("not found")
)

// BlockError identifies the block that failed while a branch of blocks was
// being replayed.
type BlockError struct {
	Hash signature.Hash
	Err  error
}

// Error implements the error interface.
func (be *BlockError) Error() string {
	return fmt.Sprintf("block %s: %s", be.Hash, be.Err)
}

// Unwrap provides access to the underlying validation error.
func (be *BlockError) Unwrap() error {
	return be.Err
}
