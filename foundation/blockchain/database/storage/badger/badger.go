// Package badger implements the ledger storage on top of badger.
package badger

import (
	"errors"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// Storage provides ledger storage backed by a badger database.
type Storage struct {
	db *badger.DB
}

// New opens the badger database in the directory, creating it if it doesn't
// exist. Writes are synced.
func New(dir string, log *zap.SugaredLogger) (*Storage, error) {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithLogger(logger{log: log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

// NewMemory constructs storage that only lives in memory.
func NewMemory() (*Storage, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Get returns the value for the key.
func (s *Storage) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		value, err = get(txn, key)
		return err
	})

	return value, err
}

// Has reports whether the key exists.
func (s *Storage) Has(key []byte) (bool, error) {
	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		exists, err = has(txn, key)
		return err
	})

	return exists, err
}

// Write applies every operation of the batch in a single transaction.
func (s *Storage) Write(batch *database.Batch) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, op := range batch.Ops() {
			var err error
			switch {
			case op.Delete:
				err = txn.Delete(op.Key)
			default:
				err = txn.Set(op.Key, op.Value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Snapshot returns a consistent view of the database backed by a read only
// transaction.
func (s *Storage) Snapshot() (database.Snapshot, error) {
	return &snapshot{txn: s.db.NewTransaction(false)}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// =============================================================================

type snapshot struct {
	txn *badger.Txn
}

func (s *snapshot) Get(key []byte) ([]byte, error) {
	return get(s.txn, key)
}

func (s *snapshot) Has(key []byte) (bool, error) {
	return has(s.txn, key)
}

func (s *snapshot) Release() {
	s.txn.Discard()
}

func get(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}

	return item.ValueCopy(nil)
}

func has(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	case err != nil:
		return false, err
	}

	return true, nil
}

// =============================================================================

// logger routes badger's log output through zap.
type logger struct {
	log *zap.SugaredLogger
}

func (l logger) Errorf(format string, args ...any) {
	l.log.Errorf("badger: "+format, args...)
}

func (l logger) Warningf(format string, args ...any) {
	l.log.Warnf("badger: "+format, args...)
}

func (l logger) Infof(format string, args ...any) {
	l.log.Infof("badger: "+format, args...)
}

func (l logger) Debugf(format string, args ...any) {
	l.log.Debugf("badger: "+format, args...)
}
