// Package leveldb implements the ledger storage on top of goleveldb. This is
// the default storage used by the node.
package leveldb

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"go.uber.org/zap"
)

// Storage provides ledger storage backed by a leveldb database.
type Storage struct {
	ldb *leveldb.DB
}

// New opens the leveldb database at the path, creating it if it doesn't
// exist. A corrupted database is recovered.
func New(path string, log *zap.SugaredLogger) (*Storage, error) {
	ldb, err := leveldb.OpenFile(path, nil)

	// If the database is corrupted, attempt to recover.
	if lerrors.IsCorrupted(err) {
		log.Warnw("leveldb corruption detected", "path", path, "ERROR", err)

		ldb, err = leveldb.RecoverFile(path, nil)
		if err != nil {
			return nil, fmt.Errorf("recover: %w", err)
		}

		log.Warnw("leveldb recovered from corruption", "path", path)
	}

	// If the database cannot be opened for any other
	// reason, return the error as-is.
	if err != nil {
		return nil, err
	}

	return &Storage{ldb: ldb}, nil
}

// NewMemory constructs storage that only lives in memory.
func NewMemory() (*Storage, error) {
	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}

	return &Storage{ldb: ldb}, nil
}

// Get returns the value for the key.
func (s *Storage) Get(key []byte) ([]byte, error) {
	return get(s.ldb.Get(key, nil))
}

// Has reports whether the key exists.
func (s *Storage) Has(key []byte) (bool, error) {
	return s.ldb.Has(key, nil)
}

// Write applies every operation of the batch atomically and syncs it to disk.
func (s *Storage) Write(batch *database.Batch) error {
	lb := new(leveldb.Batch)
	for _, op := range batch.Ops() {
		switch {
		case op.Delete:
			lb.Delete(op.Key)
		default:
			lb.Put(op.Key, op.Value)
		}
	}

	return s.ldb.Write(lb, &opt.WriteOptions{Sync: true})
}

// Snapshot returns a consistent view of the database.
func (s *Storage) Snapshot() (database.Snapshot, error) {
	snap, err := s.ldb.GetSnapshot()
	if err != nil {
		return nil, err
	}

	return &snapshot{snap: snap}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.ldb.Close()
}

// =============================================================================

type snapshot struct {
	snap *leveldb.Snapshot
}

func (s *snapshot) Get(key []byte) ([]byte, error) {
	return get(s.snap.Get(key, nil))
}

func (s *snapshot) Has(key []byte) (bool, error) {
	return s.snap.Has(key, nil)
}

func (s *snapshot) Release() {
	s.snap.Release()
}

// get translates the leveldb not found error.
func get(value []byte, err error) ([]byte, error) {
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, database.ErrNotFound
	}

	return value, err
}
