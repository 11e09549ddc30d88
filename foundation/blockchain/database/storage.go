package database

// Storage interface represents the behavior required to be implemented by any
// package providing support for persisting the ledger. Reads of a missing key
// must return ErrNotFound.
type Storage interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Write(batch *Batch) error
	Snapshot() (Snapshot, error)
	Close() error
}

// Snapshot interface represents a consistent read only view of storage at a
// point in time.
type Snapshot interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Release()
}

// =============================================================================

// BatchOp represents a single write inside a batch.
type BatchOp struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Batch collects a set of writes that storage must apply atomically.
type Batch struct {
	ops []BatchOp
}

// Put adds a write of the key and value to the batch.
func (b *Batch) Put(key []byte, value []byte) {
	b.ops = append(b.ops, BatchOp{Key: key, Value: value})
}

// Delete adds a removal of the key to the batch.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, BatchOp{Key: key, Delete: true})
}

// Len returns the number of writes in the batch.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Ops returns the writes in the order they were added.
func (b *Batch) Ops() []BatchOp {
	return b.ops
}
