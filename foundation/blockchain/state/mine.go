package state

import (
	"context"
	"errors"
	"math/big"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("no transactions in mempool")

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can become
// the next block in the chain. The solved block goes through the same
// processing as any proposed block.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// Are there enough transactions in the pool.
	if s.mempool.Count() == 0 {
		return database.Block{}, ErrNoTransactions
	}

	parent, trans, target, err := s.template()
	if err != nil {
		return database.Block{}, err
	}

	if len(trans) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: parent[%s]: trans[%d]", parent.Hash(), len(trans))

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	block, err := database.POW(ctx, database.POWArgs{
		Beneficiary: s.beneficiaryID,
		Target:      target,
		PrevBlock:   parent,
		Trans:       trans,
		EvHandler:   s.evHandler,
	})
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	if _, err := s.processBlock(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// template reads the tip, the transactions that apply on top of it and the
// target the next block needs from one consistent view.
func (s *State) template() (database.Block, []database.SignedTx, *big.Int, error) {
	view, err := s.db.View()
	if err != nil {
		return database.Block{}, nil, nil, err
	}
	defer view.Release()

	tipHash, _, err := view.Tip()
	if err != nil {
		return database.Block{}, nil, nil, err
	}

	parent, err := s.db.GetBlockByHash(tipHash)
	if err != nil {
		return database.Block{}, nil, nil, err
	}

	trans, err := s.mempool.PickBest(view, int(s.genesis.TransPerBlock))
	if err != nil {
		return database.Block{}, nil, nil, err
	}

	target, err := s.requiredTarget(parent)
	if err != nil {
		return database.Block{}, nil, nil, err
	}

	return parent, trans, target, nil
}
