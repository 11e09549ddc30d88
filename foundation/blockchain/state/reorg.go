package state

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// reorganize switches the canonical chain onto the branch ending at the
// block. The database replays the branch before anything is written, so a
// failure leaves the tip where it was. No mining can take place while this
// is running since the write lock is held.
func (s *State) reorganize(block database.Block) error {
	s.setStatus(Reorganizing)

	s.evHandler("state: reorganize: started: newTip[%s]: *****************************", block.Hash())
	defer s.evHandler("state: reorganize: completed: *****************************")

	forkHeight, branch, err := s.findBranch(block)
	if err != nil {
		return err
	}

	// Capture the blocks leaving the canonical chain so their transactions
	// can go back into the mempool.
	latest := s.db.LatestBlock()
	detached := make([]database.Block, 0, latest.Header.Number-forkHeight)
	for num := forkHeight + 1; num <= latest.Header.Number; num++ {
		b, err := s.db.GetBlockByNumber(num)
		if err != nil {
			return err
		}
		detached = append(detached, b)
	}

	s.evHandler("state: reorganize: fork[%d]: detach[%d]: attach[%d]", forkHeight, len(detached), len(branch))

	if err := s.db.Reorganize(forkHeight, branch); err != nil {
		if hash, ok := database.IsBlockError(err); ok {
			s.invalidateBranch(branch, block, hash)
			return err
		}

		if errors.Is(err, database.ErrStorageFailure) || errors.Is(err, database.ErrInvariantViolation) {
			return s.halt(err)
		}

		return err
	}

	// Transactions of the old branch that are still valid become pending
	// again, then everything the new branch used is dropped.
	for _, b := range detached {
		for _, tx := range b.Trans {
			s.mempool.Upsert(tx)
		}
	}
	for _, b := range branch {
		for _, tx := range b.Trans {
			s.mempool.Delete(tx)
		}
	}
	s.pruneMempool()

	for _, b := range branch {
		s.blockEvent(b)
	}

	return nil
}

// findBranch walks back from the block until it reaches a block on the
// canonical chain. It returns that fork height and the blocks above it in
// chain order, ending with the block itself.
func (s *State) findBranch(block database.Block) (uint64, []database.Block, error) {
	branch := []database.Block{block}

	hash := block.Header.PrevBlockHash
	for {
		b, err := s.db.GetBlockByHash(hash)
		if err != nil {
			return 0, nil, fmt.Errorf("find branch: %w", err)
		}

		canonical, err := s.db.CanonicalHash(b.Header.Number)
		switch {
		case err == nil && canonical == hash:
			slices.Reverse(branch)
			return b.Header.Number, branch, nil

		case err != nil && !errors.Is(err, database.ErrNotFound):
			return 0, nil, err
		}

		branch = append(branch, b)
		hash = b.Header.PrevBlockHash
	}
}

// invalidateBranch marks the failing block and everything above it on the
// branch as invalid.
func (s *State) invalidateBranch(branch []database.Block, block database.Block, failed signature.Hash) {
	for i, b := range branch {
		if b.Hash() != failed {
			continue
		}

		for _, bad := range branch[i:] {
			s.evHandler("state: reorganize: INVALID: blk[%d]: hash[%s]", bad.Header.Number, bad.Hash())
			s.markInvalid(bad.Hash())
		}
		return
	}

	// The failure could not be tied to a branch block, reject the new block.
	s.markInvalid(block.Hash())
}
