package state

import (
	"fmt"
	"math/big"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// =============================================================================

// QueryAccount returns the account from the database. Unknown accounts are
// returned with a zero balance and nonce.
func (s *State) QueryAccount(address database.Address) (database.Account, error) {
	return s.db.ReadAccount(address)
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryBlocksByNumber returns the set of canonical blocks based on block
// numbers. The blocks are read from one view of the ledger so a concurrent
// reorganization can't mix branches.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) ([]database.Block, error) {
	view, err := s.db.View()
	if err != nil {
		return nil, err
	}
	defer view.Release()

	_, latest, err := view.Tip()
	if err != nil {
		return nil, err
	}

	if from == QueryLatest {
		from = latest
		to = from
	}
	if to == QueryLatest || to > latest {
		to = latest
	}

	var out []database.Block
	for i := from; i <= to; i++ {
		block, err := view.GetBlockByNumber(i)
		if err != nil {
			s.evHandler("state: QueryBlocksByNumber: ERROR: %s", err)
			return nil, err
		}
		out = append(out, block)
	}

	return out, nil
}

// QueryBlockByHash returns the block with the hash from any branch the node
// has stored.
func (s *State) QueryBlockByHash(hash signature.Hash) (database.Block, error) {
	return s.db.GetBlockByHash(hash)
}

// QueryBlocksByAccount returns the canonical blocks holding a transaction
// from or to the address.
func (s *State) QueryBlocksByAccount(address database.Address) ([]database.Block, error) {
	view, err := s.db.View()
	if err != nil {
		return nil, err
	}
	defer view.Release()

	_, latest, err := view.Tip()
	if err != nil {
		return nil, err
	}

	var out []database.Block
	for num := uint64(1); num <= latest; num++ {
		block, err := view.GetBlockByNumber(num)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", num, err)
		}

		for _, tx := range block.Trans {
			if tx.From == address || tx.To == address {
				out = append(out, block)
				break
			}
		}
	}

	return out, nil
}

// QueryNextTarget returns the target the next block on the tip must meet.
func (s *State) QueryNextTarget() (*big.Int, error) {
	return s.requiredTarget(s.db.LatestBlock())
}
