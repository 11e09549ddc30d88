package database

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/ledger/foundation/blockchain/pow"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// ApplyBlock replays the block against the current state and, only when every
// transaction applies, writes the block, its work, the height index, the
// touched accounts and the new tip in one atomic batch. The block must extend
// the tip and must already have passed ValidateBlock.
func (db *Database) ApplyBlock(block Block) error {
	db.mu.RLock()
	latest := db.latestBlock
	tipWork := db.tipWork
	db.mu.RUnlock()

	hash := block.Hash()
	if block.Header.PrevBlockHash != latest.Hash() || block.Header.Number != latest.Header.Number+1 {
		return fmt.Errorf("%w: block %s does not extend the tip %s", ErrInvalidBlock, hash, latest.Hash())
	}

	view, err := db.View()
	if err != nil {
		return err
	}
	defer view.Release()

	post, err := block.ValidateInternalConsistency(view, db.genesis.MiningReward)
	if err != nil {
		return err
	}

	work := new(big.Int).Add(tipWork, pow.Work(block.Header.Target))

	var batch Batch
	if err := putBlock(&batch, block, work); err != nil {
		return err
	}
	batch.Put(heightKey(block.Header.Number), hash[:])
	for address, account := range post {
		if err := putAccount(&batch, address, account); err != nil {
			return err
		}
	}
	if err := putTip(&batch, hash, block.Header.Number); err != nil {
		return err
	}

	if err := db.storage.Write(&batch); err != nil {
		return fmt.Errorf("%w: apply block %s: %w", ErrStorageFailure, hash, err)
	}

	db.mu.Lock()
	db.latestBlock = block
	db.tipWork = work
	db.mu.Unlock()

	db.evHandler("database: ApplyBlock: applied: blk[%d]: hash[%s]: accounts[%d]", block.Header.Number, hash, len(post))

	return nil
}

// StoreCandidate persists a block that is not on the canonical chain along
// with the cumulative work of its branch. Account state is not touched.
func (db *Database) StoreCandidate(block Block, work *big.Int) error {
	var batch Batch
	if err := putBlock(&batch, block, work); err != nil {
		return err
	}

	if err := db.storage.Write(&batch); err != nil {
		return fmt.Errorf("%w: store candidate %s: %w", ErrStorageFailure, block.Hash(), err)
	}

	db.evHandler("database: StoreCandidate: stored: blk[%d]: hash[%s]: work[%s]", block.Header.Number, block.Hash(), work)

	return nil
}

// Reorganize makes the branch the canonical chain above the fork height. The
// state at the fork point is recomputed from genesis and the branch replayed
// on top of it in memory. Only when every block replays is the switch written
// in one atomic batch. A replay failure is returned as a *BlockError naming
// the failing block and nothing is written.
func (db *Database) Reorganize(forkHeight uint64, branch []Block) error {
	db.mu.RLock()
	latest := db.latestBlock
	db.mu.RUnlock()

	if forkHeight > latest.Header.Number {
		return fmt.Errorf("%w: fork height %d above tip height %d", ErrInvalidBlock, forkHeight, latest.Header.Number)
	}

	forkHash, err := canonicalHash(db.storage, forkHeight)
	if err != nil {
		return err
	}

	accounts, err := db.replayTo(forkHeight)
	if err != nil {
		return err
	}

	work, err := getWork(db.storage, forkHash)
	if err != nil {
		return err
	}

	reward := db.genesis.MiningReward
	parentHash := forkHash
	parentNumber := forkHeight
	works := make([]*big.Int, len(branch))

	for i, block := range branch {
		hash := block.Hash()

		if block.Header.PrevBlockHash != parentHash || block.Header.Number != parentNumber+1 {
			return &BlockError{Hash: hash, Err: fmt.Errorf("%w: branch is not linked", ErrInvalidBlock)}
		}

		post, err := block.ValidateInternalConsistency(accounts, reward)
		if err != nil {
			return &BlockError{Hash: hash, Err: err}
		}

		for address, account := range post {
			accounts[address] = account
		}

		work = new(big.Int).Add(work, pow.Work(block.Header.Target))
		works[i] = work

		parentHash = hash
		parentNumber = block.Header.Number
	}

	// Only the accounts touched by the blocks leaving or joining the canonical
	// chain can differ from what is stored. Any of them missing from the
	// recomputed state only existed because of the detached blocks.
	changed := make(map[Address]struct{})
	for num := forkHeight + 1; num <= latest.Header.Number; num++ {
		block, err := db.GetBlockByNumber(num)
		if err != nil {
			return err
		}
		for _, address := range block.Touched() {
			changed[address] = struct{}{}
		}
	}
	for _, block := range branch {
		for _, address := range block.Touched() {
			changed[address] = struct{}{}
		}
	}

	var batch Batch
	for num := forkHeight + 1; num <= latest.Header.Number; num++ {
		batch.Delete(heightKey(num))
	}
	for i, block := range branch {
		hash := block.Hash()
		if err := putBlock(&batch, block, works[i]); err != nil {
			return err
		}
		batch.Put(heightKey(block.Header.Number), hash[:])
	}
	for address := range changed {
		account, exists := accounts[address]
		if !exists {
			batch.Delete(accountKey(address))
			continue
		}
		if err := putAccount(&batch, address, account); err != nil {
			return err
		}
	}

	newTip := latest
	switch {
	case len(branch) > 0:
		newTip = branch[len(branch)-1]
	default:
		newTip, err = getBlock(db.storage, forkHash)
		if err != nil {
			return err
		}
	}
	if err := putTip(&batch, parentHash, parentNumber); err != nil {
		return err
	}

	if err := db.storage.Write(&batch); err != nil {
		return fmt.Errorf("%w: reorganize to %s: %w", ErrStorageFailure, parentHash, err)
	}

	db.mu.Lock()
	db.latestBlock = newTip
	db.tipWork = work
	db.mu.Unlock()

	db.evHandler("database: Reorganize: switched: fork[%d]: detached[%d]: attached[%d]: tip[%s]", forkHeight, latest.Header.Number-forkHeight, len(branch), parentHash)

	return nil
}

// RevertToHeight drops every canonical block above the height and restores
// the account state as of that height.
func (db *Database) RevertToHeight(height uint64) error {
	return db.Reorganize(height, nil)
}

// Replay folds the canonical chain over the genesis allocation and returns
// the resulting account state.
func (db *Database) Replay() (Accounts, error) {
	return db.replayTo(db.LatestBlock().Header.Number)
}

// replayTo folds the canonical blocks up to and including the height over the
// genesis allocation.
func (db *Database) replayTo(height uint64) (Accounts, error) {
	accounts, err := genesisAccounts(db.genesis)
	if err != nil {
		return nil, err
	}

	parentHash := db.genesisBlock.Hash()
	for num := uint64(1); num <= height; num++ {
		block, err := db.GetBlockByNumber(num)
		if err != nil {
			return nil, err
		}

		if block.Header.PrevBlockHash != parentHash {
			return nil, fmt.Errorf("%w: canonical block %d does not link to its parent", ErrInvariantViolation, num)
		}

		post, err := block.ValidateInternalConsistency(accounts, db.genesis.MiningReward)
		if err != nil {
			return nil, fmt.Errorf("%w: canonical block %d: %w", ErrInvariantViolation, num, err)
		}

		for address, account := range post {
			accounts[address] = account
		}

		parentHash = block.Hash()
	}

	return accounts, nil
}

// IsBlockError reports whether the error came from replaying a specific
// block and returns that block's hash.
func IsBlockError(err error) (signature.Hash, bool) {
	var be *BlockError
	if errors.As(err, &be) {
		return be.Hash, true
	}
	return signature.Hash{}, false
}
