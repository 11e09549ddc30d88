// Package database handles all the lower level support for maintaining the
// ledger in a key value store: blocks, the canonical height index, the
// cumulative work of every known block, account state and the chain tip.
package database

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/pow"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// schemaVersion identifies the layout of the keyspace.
const schemaVersion byte = 1

// Keyspace of the ledger.
var (
	prefixBlock   = []byte("b")
	prefixWork    = []byte("w")
	prefixHeight  = []byte("h")
	prefixAccount = []byte("a")
	keyTip        = []byte("tip")
	keyVersion    = []byte("version")
)

func blockKey(hash signature.Hash) []byte {
	return append(append([]byte{}, prefixBlock...), hash[:]...)
}

func workKey(hash signature.Hash) []byte {
	return append(append([]byte{}, prefixWork...), hash[:]...)
}

func heightKey(height uint64) []byte {
	key := append([]byte{}, prefixHeight...)
	return binary.BigEndian.AppendUint64(key, height)
}

func accountKey(address Address) []byte {
	return append(append([]byte{}, prefixAccount...), address[:]...)
}

// =============================================================================

// Tip represents the end of the canonical chain.
type Tip struct {
	Hash   signature.Hash
	Height uint64
	Work   *big.Int
}

// tipRecord is what is persisted under the tip key.
type tipRecord struct {
	Hash   signature.Hash
	Height uint64
}

// reader is the read behavior shared by storage and its snapshots.
type reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

// =============================================================================

// Database manages the ledger stored in the key value store.
type Database struct {
	mu sync.RWMutex

	genesis      genesis.Genesis
	genesisBlock Block
	latestBlock  Block
	tipWork      *big.Int

	storage   Storage
	evHandler func(v string, args ...any)
}

// Open constructs a database over the storage. Empty storage is initialized
// with the genesis block and the genesis allocation. Otherwise the tip is
// loaded. No blocks are replayed.
func Open(gen genesis.Genesis, storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	genesisBlock, err := GenesisBlock(gen)
	if err != nil {
		return nil, fmt.Errorf("genesis block: %w", err)
	}

	db := Database{
		genesis:      gen,
		genesisBlock: genesisBlock,
		storage:      storage,
		evHandler:    evHandler,
	}

	version, err := storage.Get(keyVersion)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := db.initialize(); err != nil {
			return nil, err
		}

	case err != nil:
		return nil, fmt.Errorf("%w: read version: %w", ErrStorageFailure, err)

	default:
		if len(version) != 1 || version[0] != schemaVersion {
			return nil, fmt.Errorf("%w: unknown schema version %x", ErrStorageFailure, version)
		}

		if err := db.load(); err != nil {
			return nil, err
		}
	}

	return &db, nil
}

// initialize writes the genesis state into empty storage.
func (db *Database) initialize() error {
	accounts, err := genesisAccounts(db.genesis)
	if err != nil {
		return err
	}

	hash := db.genesisBlock.Hash()
	work := pow.Work(db.genesisBlock.Header.Target)

	var batch Batch
	batch.Put(keyVersion, []byte{schemaVersion})
	if err := putBlock(&batch, db.genesisBlock, work); err != nil {
		return err
	}
	batch.Put(heightKey(0), hash[:])
	for address, account := range accounts {
		if err := putAccount(&batch, address, account); err != nil {
			return err
		}
	}
	if err := putTip(&batch, hash, 0); err != nil {
		return err
	}

	if err := db.storage.Write(&batch); err != nil {
		return fmt.Errorf("%w: write genesis: %w", ErrStorageFailure, err)
	}

	db.evHandler("database: Open: initialized: genesis[%s]: accounts[%d]", hash, len(accounts))

	db.latestBlock = db.genesisBlock
	db.tipWork = work

	return nil
}

// load reads the tip from storage and checks the storage holds this chain.
func (db *Database) load() error {
	data, err := db.storage.Get(keyTip)
	if err != nil {
		return fmt.Errorf("%w: read tip: %w", ErrStorageFailure, err)
	}

	var tip tipRecord
	if err := decode(data, &tip); err != nil {
		return err
	}

	genesisHash, err := canonicalHash(db.storage, 0)
	if err != nil {
		return err
	}

	if genesisHash != db.genesisBlock.Hash() {
		return fmt.Errorf("%w: storage holds a different genesis, got %s, exp %s", ErrInvariantViolation, genesisHash, db.genesisBlock.Hash())
	}

	latestBlock, err := getBlock(db.storage, tip.Hash)
	if err != nil {
		return err
	}

	work, err := getWork(db.storage, tip.Hash)
	if err != nil {
		return err
	}

	db.latestBlock = latestBlock
	db.tipWork = work

	db.evHandler("database: Open: loaded: tip[%s]: height[%d]", tip.Hash, tip.Height)

	return nil
}

// Close closes the underlying storage.
func (db *Database) Close() error {
	return db.storage.Close()
}

// =============================================================================

// Genesis returns the genesis configuration.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// GenesisBlock returns the block at height zero.
func (db *Database) GenesisBlock() Block {
	return db.genesisBlock
}

// LatestBlock returns the block at the tip of the canonical chain.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// Tip returns the hash, height and cumulative work of the canonical chain.
func (db *Database) Tip() Tip {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return Tip{
		Hash:   db.latestBlock.Hash(),
		Height: db.latestBlock.Header.Number,
		Work:   new(big.Int).Set(db.tipWork),
	}
}

// ReadAccount returns the account for the address. Unknown addresses read as
// the zero account.
func (db *Database) ReadAccount(address Address) (Account, error) {
	return readAccount(db.storage, address)
}

// HasBlock reports whether a block with the hash is stored, on any branch.
func (db *Database) HasBlock(hash signature.Hash) (bool, error) {
	ok, err := db.storage.Has(blockKey(hash))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	return ok, nil
}

// GetBlockByHash returns the block with the hash from any branch.
func (db *Database) GetBlockByHash(hash signature.Hash) (Block, error) {
	return getBlock(db.storage, hash)
}

// GetBlockByNumber returns the canonical block at the height.
func (db *Database) GetBlockByNumber(num uint64) (Block, error) {
	hash, err := canonicalHash(db.storage, num)
	if err != nil {
		return Block{}, err
	}

	return getBlock(db.storage, hash)
}

// CanonicalHash returns the hash of the canonical block at the height.
func (db *Database) CanonicalHash(num uint64) (signature.Hash, error) {
	return canonicalHash(db.storage, num)
}

// Work returns the cumulative work of the chain ending at the block.
func (db *Database) Work(hash signature.Hash) (*big.Int, error) {
	return getWork(db.storage, hash)
}

// View returns a consistent read only view of the ledger. The caller must
// call Release when done.
func (db *Database) View() (*View, error) {
	snap, err := db.storage.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot: %w", ErrStorageFailure, err)
	}

	return &View{snap: snap}, nil
}

// =============================================================================

// View provides reads against a snapshot of the ledger.
type View struct {
	snap Snapshot
}

// ReadAccount implements the AccountReader interface.
func (v *View) ReadAccount(address Address) (Account, error) {
	return readAccount(v.snap, address)
}

// Tip returns the hash and height of the tip recorded in the snapshot.
func (v *View) Tip() (signature.Hash, uint64, error) {
	data, err := v.snap.Get(keyTip)
	if err != nil {
		return signature.Hash{}, 0, fmt.Errorf("%w: read tip: %w", ErrStorageFailure, err)
	}

	var tip tipRecord
	if err := decode(data, &tip); err != nil {
		return signature.Hash{}, 0, err
	}

	return tip.Hash, tip.Height, nil
}

// GetBlockByHash returns the block with the hash from any branch stored in
// the snapshot.
func (v *View) GetBlockByHash(hash signature.Hash) (Block, error) {
	return getBlock(v.snap, hash)
}

// GetBlockByNumber returns the canonical block at the height as of the
// snapshot.
func (v *View) GetBlockByNumber(num uint64) (Block, error) {
	hash, err := canonicalHash(v.snap, num)
	if err != nil {
		return Block{}, err
	}

	return getBlock(v.snap, hash)
}

// Release frees the snapshot.
func (v *View) Release() {
	v.snap.Release()
}

// =============================================================================

// genesisAccounts converts the genesis allocation into accounts.
func genesisAccounts(gen genesis.Genesis) (Accounts, error) {
	accounts := make(Accounts)
	for addressStr, balance := range gen.Balances {
		address, err := ToAddress(addressStr)
		if err != nil {
			return nil, fmt.Errorf("genesis balance %q: %w", addressStr, err)
		}
		accounts[address] = Account{Balance: balance}
	}

	return accounts, nil
}

func readAccount(r reader, address Address) (Account, error) {
	data, err := r.Get(accountKey(address))
	switch {
	case errors.Is(err, ErrNotFound):
		return Account{}, nil
	case err != nil:
		return Account{}, fmt.Errorf("%w: read account: %w", ErrStorageFailure, err)
	}

	var account Account
	if err := decode(data, &account); err != nil {
		return Account{}, err
	}

	return account, nil
}

func getBlock(r reader, hash signature.Hash) (Block, error) {
	data, err := r.Get(blockKey(hash))
	switch {
	case errors.Is(err, ErrNotFound):
		return Block{}, fmt.Errorf("block %s: %w", hash, ErrNotFound)
	case err != nil:
		return Block{}, fmt.Errorf("%w: read block: %w", ErrStorageFailure, err)
	}

	var block Block
	if err := decode(data, &block); err != nil {
		return Block{}, err
	}

	return block, nil
}

func getWork(r reader, hash signature.Hash) (*big.Int, error) {
	data, err := r.Get(workKey(hash))
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("work %s: %w", hash, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%w: read work: %w", ErrStorageFailure, err)
	}

	work := new(big.Int)
	if err := decode(data, work); err != nil {
		return nil, err
	}

	return work, nil
}

func canonicalHash(r reader, num uint64) (signature.Hash, error) {
	data, err := r.Get(heightKey(num))
	switch {
	case errors.Is(err, ErrNotFound):
		return signature.Hash{}, fmt.Errorf("height %d: %w", num, ErrNotFound)
	case err != nil:
		return signature.Hash{}, fmt.Errorf("%w: read height: %w", ErrStorageFailure, err)
	}

	if len(data) != signature.HashLength {
		return signature.Hash{}, fmt.Errorf("%w: height %d holds %d bytes", ErrStorageFailure, num, len(data))
	}

	var hash signature.Hash
	copy(hash[:], data)
	return hash, nil
}

func putBlock(batch *Batch, block Block, work *big.Int) error {
	hash := block.Hash()

	data, err := encode(block)
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}

	w, err := encode(work)
	if err != nil {
		return fmt.Errorf("encode work: %w", err)
	}

	batch.Put(blockKey(hash), data)
	batch.Put(workKey(hash), w)

	return nil
}

func putAccount(batch *Batch, address Address, account Account) error {
	data, err := encode(account)
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}

	batch.Put(accountKey(address), data)
	return nil
}

func putTip(batch *Batch, hash signature.Hash, height uint64) error {
	data, err := encode(tipRecord{Hash: hash, Height: height})
	if err != nil {
		return fmt.Errorf("encode tip: %w", err)
	}

	batch.Put(keyTip, data)
	return nil
}
