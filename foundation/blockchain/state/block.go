package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/pow"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// ProcessProposedBlock takes a block received from a miner, validates it and
// if that passes, decides where it belongs. The block either extends the tip,
// causes the chain to reorganize onto its branch or is kept as a fork
// candidate.
func (s *State) ProcessProposedBlock(block database.Block) (Result, error) {
	s.evHandler("state: ProcessProposedBlock: started: prevBlk[%s]: newBlk[%s]: numTrans[%d]", block.Header.PrevBlockHash, block.Hash(), len(block.Trans))

	result, err := s.processBlock(block)
	if err != nil {
		s.evHandler("state: ProcessProposedBlock: REJECTED: newBlk[%s]: ERROR: %s", block.Hash(), err)
		return 0, err
	}

	s.evHandler("state: ProcessProposedBlock: completed: newBlk[%s]: result[%s]", block.Hash(), result)

	// The tip moved, so any mining operation is working on a stale parent.
	if result != ForkCandidate && s.Worker != nil {
		s.Worker.SignalCancelMining()
		s.Worker.SignalStartMining()
	}

	return result, nil
}

// =============================================================================

// processBlock runs the block through the chain manager under the write lock.
// Nothing is persisted for a block that is rejected.
func (s *State) processBlock(block database.Block) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.setStatus(Idle)

	if s.halted != nil {
		return 0, s.halted
	}

	s.setStatus(ValidatingCandidate)

	hash := block.Hash()
	parentHash := block.Header.PrevBlockHash

	if _, bad := s.invalid[hash]; bad {
		return 0, fmt.Errorf("%w: block %s is known to be invalid", database.ErrInvalidBlock, hash)
	}

	exists, err := s.db.HasBlock(hash)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf("%w: %s", database.ErrDuplicateBlock, hash)
	}

	if _, bad := s.invalid[parentHash]; bad {
		s.invalid[hash] = struct{}{}
		return 0, fmt.Errorf("%w: parent %s is known to be invalid", database.ErrInvalidBlock, parentHash)
	}

	parent, err := s.db.GetBlockByHash(parentHash)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return 0, fmt.Errorf("%w: %s", database.ErrUnknownParent, parentHash)
	case err != nil:
		return 0, err
	}

	target, err := s.requiredTarget(parent)
	if err != nil {
		return 0, err
	}

	if err := block.ValidateBlock(parent, target, s.genesis.ChainID, int(s.genesis.TransPerBlock), s.evHandler); err != nil {
		return 0, err
	}

	tip := s.db.Tip()
	if parentHash == tip.Hash {
		if err := s.applyBlock(block); err != nil {
			return 0, err
		}
		return Extended, nil
	}

	parentWork, err := s.db.Work(parentHash)
	if err != nil {
		return 0, err
	}
	work := new(big.Int).Add(parentWork, pow.Work(block.Header.Target))

	// Ties keep the tip that was seen first.
	if work.Cmp(tip.Work) <= 0 {
		s.evHandler("state: processBlock: fork candidate: blk[%d]: work[%s]: tipWork[%s]", block.Header.Number, work, tip.Work)

		if err := s.db.StoreCandidate(block, work); err != nil {
			return 0, s.halt(err)
		}
		return ForkCandidate, nil
	}

	if err := s.reorganize(block); err != nil {
		return 0, err
	}

	return Reorganized, nil
}

// applyBlock writes a block that extends the tip and brings the mempool in
// line with the new state.
func (s *State) applyBlock(block database.Block) error {
	s.setStatus(Applying)

	if err := s.db.ApplyBlock(block); err != nil {
		if errors.Is(err, database.ErrStorageFailure) {
			return s.halt(err)
		}

		// The parent state is fixed, so the block can never apply.
		s.invalid[block.Hash()] = struct{}{}
		return err
	}

	for _, tx := range block.Trans {
		s.evHandler("state: applyBlock: tx[%s] remove from mempool", tx)
		s.mempool.Delete(tx)
	}

	s.pruneMempool()
	s.blockEvent(block)

	return nil
}

// requiredTarget computes the target a child of the parent must carry. The
// retarget window is taken from the parent's own branch.
func (s *State) requiredTarget(parent database.Block) (*big.Int, error) {
	height := parent.Header.Number + 1
	if !s.params.IsRetargetHeight(height) {
		return new(big.Int).Set(parent.Header.Target), nil
	}

	size := int(s.params.RetargetWindow)
	window := make([]pow.Header, 0, size)

	block := parent
	for {
		window = append(window, block.Header.PowHeader())
		if len(window) == size || block.Header.Number == 0 {
			break
		}

		var err error
		block, err = s.db.GetBlockByHash(block.Header.PrevBlockHash)
		if err != nil {
			return nil, fmt.Errorf("retarget window: %w", err)
		}
	}

	slices.Reverse(window)

	return pow.NextTarget(s.params, height, window), nil
}

// pruneMempool drops mempool transactions the current state has made stale.
func (s *State) pruneMempool() {
	removed, err := s.mempool.Prune(s.db)
	if err != nil {
		s.evHandler("state: pruneMempool: WARNING: %s", err)
		return
	}

	if removed > 0 {
		s.evHandler("state: pruneMempool: removed[%d]", removed)
	}
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockTransJSON, err := json.Marshal(block.Trans)
	if err != nil {
		blockTransJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"header":%s,"trans":%s}`, block.Hash(), string(blockHeaderJSON), string(blockTransJSON))
}

// markInvalid records the hashes as invalid so they and their descendants
// are rejected without being validated again.
func (s *State) markInvalid(hashes ...signature.Hash) {
	for _, hash := range hashes {
		s.invalid[hash] = struct{}{}
	}
}
