// Package mempool maintains the set of wallet transactions waiting to be
// mined into a block.
package mempool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// Mempool represents a cache of transactions organized by account:nonce.
type Mempool struct {
	mu   sync.RWMutex
	pool map[string]database.SignedTx
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		pool: make(map[string]database.SignedTx),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool. A transaction with the
// same account and nonce as an existing one replaces it.
func (mp *Mempool) Upsert(tx database.SignedTx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool[mapKey(tx)] = tx

	return len(mp.pool)
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx database.SignedTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, mapKey(tx))
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.SignedTx)
}

// Prune removes every transaction whose nonce has already been used according
// to the view. It returns the number of transactions removed.
func (mp *Mempool) Prune(view database.AccountReader) (int, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	nonces := make(map[database.Address]uint64)

	var removed int
	for key, tx := range mp.pool {
		next, exists := nonces[tx.From]
		if !exists {
			account, err := view.ReadAccount(tx.From)
			if err != nil {
				return removed, err
			}
			next = account.Nonce
			nonces[tx.From] = next
		}

		if tx.Nonce < next {
			delete(mp.pool, key)
			removed++
		}
	}

	return removed, nil
}

// Copy returns every transaction in the pool ordered by account and nonce.
func (mp *Mempool) Copy() []database.SignedTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	cpy := make([]database.SignedTx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		cpy = append(cpy, tx)
	}
	sort.Sort(byAccountNonce(cpy))

	return cpy
}

// PickBest returns the next set of transactions for a block. The caller
// specifies how many transactions they want, -1 for all of them. For each
// account only the run of transactions starting at the account's next nonce
// that its balance can pay for is considered, so the result always applies
// cleanly against the view.
func (mp *Mempool) PickBest(view database.AccountReader, howMany int) ([]database.SignedTx, error) {

	// Group the transactions by account.
	m := make(map[database.Address][]database.SignedTx)
	mp.mu.RLock()
	{
		if howMany == -1 {
			howMany = len(mp.pool)
		}

		for _, tx := range mp.pool {
			m[tx.From] = append(m[tx.From], tx)
		}
	}
	mp.mu.RUnlock()

	// Keep only what each account can actually execute.
	for from, txs := range m {
		account, err := view.ReadAccount(from)
		if err != nil {
			return nil, err
		}
		m[from] = executable(account, txs)
	}

	return selectRows(m, howMany), nil
}

// =============================================================================

// mapKey is used to generate the map key.
func mapKey(tx database.SignedTx) string {
	return fmt.Sprintf("%s:%d", tx.From, tx.Nonce)
}
