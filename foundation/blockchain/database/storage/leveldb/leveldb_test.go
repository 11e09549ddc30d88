package leveldb_test

import (
	"path/filepath"
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/leveldb"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStorageCRUD(t *testing.T) {
	s, err := leveldb.NewMemory()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get([]byte("missing"))
	require.ErrorIs(t, err, database.ErrNotFound)

	var batch database.Batch
	batch.Put([]byte("a1"), []byte("one"))
	batch.Put([]byte("a2"), []byte("two"))
	require.NoError(t, s.Write(&batch))

	value, err := s.Get([]byte("a1"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), value)

	exists, err := s.Has([]byte("a2"))
	require.NoError(t, err)
	require.True(t, exists)

	batch = database.Batch{}
	batch.Delete([]byte("a2"))
	batch.Put([]byte("a1"), []byte("uno"))
	require.NoError(t, s.Write(&batch))

	exists, err = s.Has([]byte("a2"))
	require.NoError(t, err)
	require.False(t, exists)

	value, err = s.Get([]byte("a1"))
	require.NoError(t, err)
	require.Equal(t, []byte("uno"), value)
}

func TestStorageSnapshot(t *testing.T) {
	s, err := leveldb.NewMemory()
	require.NoError(t, err)
	defer s.Close()

	var batch database.Batch
	batch.Put([]byte("tip"), []byte("1"))
	require.NoError(t, s.Write(&batch))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	defer snap.Release()

	batch = database.Batch{}
	batch.Put([]byte("tip"), []byte("2"))
	batch.Put([]byte("new"), []byte("x"))
	require.NoError(t, s.Write(&batch))

	value, err := snap.Get([]byte("tip"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value, "snapshot should not see later writes")

	_, err = snap.Get([]byte("new"))
	require.ErrorIs(t, err, database.ErrNotFound)

	value, err = s.Get([]byte("tip"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), value)
}

func TestStorageReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")
	log := zap.NewNop().Sugar()

	s, err := leveldb.New(path, log)
	require.NoError(t, err)

	var batch database.Batch
	batch.Put([]byte("version"), []byte{1})
	require.NoError(t, s.Write(&batch))
	require.NoError(t, s.Close())

	s, err = leveldb.New(path, log)
	require.NoError(t, err)
	defer s.Close()

	value, err := s.Get([]byte("version"))
	require.NoError(t, err)
	require.Equal(t, []byte{1}, value)
}
