package database

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/merkle"
	"github.com/ardanlabs/ledger/foundation/blockchain/pow"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/rlp"
)

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number        uint64         `json:"number"`          // Height of the block in the chain.
	PrevBlockHash signature.Hash `json:"prev_block_hash"` // Hash of the previous block in the chain.
	TransRoot     signature.Hash `json:"trans_root"`      // Merkle root of the transactions in this block.
	TimeStamp     uint64         `json:"timestamp"`       // Time the block was mined in unix seconds.
	Nonce         uint64         `json:"nonce"`           // Value identified to solve the hash solution.
	Target        *big.Int       `json:"target"`          // The block hash must be less than or equal to this value.
	Beneficiary   Address        `json:"beneficiary"`     // The account receiving the mining reward.
}

// Hash returns the unique hash for the header.
func (h BlockHeader) Hash() signature.Hash {

	// Hashing the header and not the whole block so the chain can be checked
	// with headers alone. The merkle root commits to the transactions.
	data, err := rlp.EncodeToBytes(h)
	if err != nil {
		return signature.ZeroHash
	}

	return signature.Sum(data)
}

// PowHeader returns the part of the header the difficulty schedule uses.
func (h BlockHeader) PowHeader() pow.Header {
	return pow.Header{
		TimeStamp: h.TimeStamp,
		Target:    h.Target,
	}
}

// Block represents a group of transactions batched together.
type Block struct {
	Header BlockHeader `json:"header"`
	Trans  []SignedTx  `json:"trans"`
}

// GenesisBlock constructs the block at height zero for the genesis
// configuration. It has no parent, no transactions and its proof of work is
// never checked.
func GenesisBlock(gen genesis.Genesis) (Block, error) {
	params, err := gen.Params()
	if err != nil {
		return Block{}, err
	}

	b := Block{
		Header: BlockHeader{
			Number:    0,
			TimeStamp: uint64(gen.Date.UTC().Unix()),
			Target:    params.PowLimit,
		},
	}

	return b, nil
}

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	Beneficiary Address
	Target      *big.Int
	PrevBlock   Block
	Trans       []SignedTx
	TimeStamp   uint64
	EvHandler   func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle. A zero timestamp means now.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	ev := args.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	root, err := merkle.RootHash(args.Trans)
	if err != nil {
		return Block{}, err
	}

	// The timestamp needs to move forward from the parent even when the
	// clock says otherwise.
	ts := args.TimeStamp
	if ts == 0 {
		ts = uint64(time.Now().UTC().Unix())
	}
	if ts <= args.PrevBlock.Header.TimeStamp {
		ts = args.PrevBlock.Header.TimeStamp + 1
	}

	nb := Block{
		Header: BlockHeader{
			Number:        args.PrevBlock.Header.Number + 1,
			PrevBlockHash: args.PrevBlock.Hash(),
			TransRoot:     root,
			TimeStamp:     ts,
			Target:        new(big.Int).Set(args.Target),
			Beneficiary:   args.Beneficiary,
		},
		Trans: args.Trans,
	}

	for _, tx := range nb.Trans {
		ev("database: POW: MINING: tx[%s]", tx)
	}

	hdr := nb.Header
	nonce, err := pow.Solve(ctx, nb.Header.Target, func(nonce uint64) signature.Hash {
		hdr.Nonce = nonce
		return hdr.Hash()
	}, ev)
	if err != nil {
		return Block{}, err
	}
	nb.Header.Nonce = nonce

	ev("database: POW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", nb.Header.PrevBlockHash, nb.Hash())

	return nb, nil
}

// Hash returns the unique hash for the Block.
func (b Block) Hash() signature.Hash {
	return b.Header.Hash()
}

// ValidateBlock takes a block and validates it against its parent and the
// target the difficulty schedule requires for it. Every transaction is checked
// for structure and signature. Account state is not consulted.
func (b Block) ValidateBlock(parent Block, target *big.Int, chainID uint16, maxTrans int, evHandler func(v string, args ...any)) error {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	nextNumber := parent.Header.Number + 1
	if b.Header.Number != nextNumber {
		return fmt.Errorf("%w: this block is not the next number, got %d, exp %d", ErrInvalidBlock, b.Header.Number, nextNumber)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if parentHash := parent.Hash(); b.Header.PrevBlockHash != parentHash {
		return fmt.Errorf("%w: parent block hash doesn't match our known parent, got %s, exp %s", ErrInvalidBlock, b.Header.PrevBlockHash, parentHash)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block's timestamp is greater than parent block's timestamp", b.Header.Number)

	parentTime := time.Unix(int64(parent.Header.TimeStamp), 0)
	blockTime := time.Unix(int64(b.Header.TimeStamp), 0)
	if !blockTime.After(parentTime) {
		return fmt.Errorf("%w: block timestamp is before parent block, parent %s, block %s", ErrInvalidBlock, parentTime, blockTime)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block has a beneficiary", b.Header.Number)

	if b.Header.Beneficiary.IsZero() {
		return fmt.Errorf("%w: missing beneficiary", ErrInvalidBlock)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block target is the required target", b.Header.Number)

	if b.Header.Target == nil || b.Header.Target.Cmp(target) != 0 {
		return fmt.Errorf("%w: wrong target, got %v, exp %s", ErrConsensusRejected, b.Header.Target, target)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Header.Number)

	hash := b.Hash()
	if !pow.MeetsTarget(hash, b.Header.Target) {
		return fmt.Errorf("%w: %s does not meet the target", ErrConsensusRejected, hash)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block holds no more than %d transactions", b.Header.Number, maxTrans)

	if len(b.Trans) > maxTrans {
		return fmt.Errorf("%w: too many transactions, got %d, max %d", ErrInvalidBlock, len(b.Trans), maxTrans)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: transactions are unique", b.Header.Number)

	// The header only commits to the merkle root, so a repeated transaction
	// must be rejected here for the block hash to identify one body.
	seen := make(map[signature.Hash]int, len(b.Trans))
	for i, tx := range b.Trans {
		txHash, err := tx.Hash()
		if err != nil {
			return fmt.Errorf("%w: tx[%d]: %w", ErrMalformedTransaction, i, err)
		}

		if j, exists := seen[txHash]; exists {
			return fmt.Errorf("%w: tx[%d] repeats tx[%d] %s", ErrInvalidBlock, i, j, txHash)
		}
		seen[txHash] = i
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: merkle root does match transactions", b.Header.Number)

	root, err := merkle.RootHash(b.Trans)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedTransaction, err)
	}

	if b.Header.TransRoot != root {
		return fmt.Errorf("%w: merkle root does not match transactions, got %s, exp %s", ErrInvalidBlock, root, b.Header.TransRoot)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: transactions are signed", b.Header.Number)

	for i, tx := range b.Trans {
		if err := tx.Validate(chainID); err != nil {
			return fmt.Errorf("tx[%d] %s: %w", i, tx, err)
		}
	}

	return nil
}

// ValidateInternalConsistency replays the block's transactions in order
// against the view and credits the beneficiary with the reward. The view is
// never modified. The post state of every account the block touches is
// returned.
func (b Block) ValidateInternalConsistency(view AccountReader, reward uint64) (Accounts, error) {
	post := make(Accounts)

	read := func(address Address) (Account, error) {
		if account, exists := post[address]; exists {
			return account, nil
		}
		return view.ReadAccount(address)
	}

	for i, tx := range b.Trans {
		from, err := read(tx.From)
		if err != nil {
			return nil, err
		}

		if tx.Nonce != from.Nonce {
			return nil, fmt.Errorf("tx[%d] %s: %w: got %d, exp %d", i, tx, ErrNonceMismatch, tx.Nonce, from.Nonce)
		}

		if tx.Value > from.Balance {
			return nil, fmt.Errorf("tx[%d] %s: %w: bal %d, needed %d", i, tx, ErrDoubleSpend, from.Balance, tx.Value)
		}

		from.Balance -= tx.Value
		from.Nonce++
		post[tx.From] = from

		to, err := read(tx.To)
		if err != nil {
			return nil, err
		}

		if to.Balance > math.MaxUint64-tx.Value {
			return nil, fmt.Errorf("tx[%d] %s: %w: balance overflow", i, tx, ErrMalformedTransaction)
		}

		to.Balance += tx.Value
		post[tx.To] = to
	}

	if reward > 0 {
		bnfc, err := read(b.Header.Beneficiary)
		if err != nil {
			return nil, err
		}

		if bnfc.Balance > math.MaxUint64-reward {
			return nil, fmt.Errorf("%w: reward overflows beneficiary balance", ErrMalformedTransaction)
		}

		bnfc.Balance += reward
		post[b.Header.Beneficiary] = bnfc
	}

	return post, nil
}

// Touched returns every address the block reads or writes.
func (b Block) Touched() []Address {
	seen := make(map[Address]struct{})
	var addrs []Address

	add := func(a Address) {
		if _, exists := seen[a]; exists || a.IsZero() {
			return
		}
		seen[a] = struct{}{}
		addrs = append(addrs, a)
	}

	for _, tx := range b.Trans {
		add(tx.From)
		add(tx.To)
	}
	add(b.Header.Beneficiary)

	return addrs
}
