package state

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion.
// A transaction for an account and nonce already in the mempool replaces it.
func (s *State) SubmitWalletTransaction(tx database.SignedTx) error {
	if err := s.validateTransaction(tx); err != nil {
		return err
	}

	n := s.mempool.Upsert(tx)
	s.evHandler("state: SubmitWalletTransaction: tx[%s]: mempool[%d]", tx, n)

	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return nil
}

// =============================================================================

// validateTransaction takes the signed transaction and validates it has
// a proper signature and a nonce that has not been used yet.
func (s *State) validateTransaction(tx database.SignedTx) error {
	if err := tx.Validate(s.genesis.ChainID); err != nil {
		return err
	}

	account, err := s.db.ReadAccount(tx.From)
	if err != nil {
		return err
	}

	if tx.Nonce < account.Nonce {
		return fmt.Errorf("%w: nonce %d already used, next is %d", database.ErrNonceMismatch, tx.Nonce, account.Nonce)
	}

	return nil
}
