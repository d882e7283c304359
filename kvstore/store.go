// Package kvstore provides a thin byte-blob key-value adapter over
// goleveldb, the disk-persistence boundary this toolkit exposes (it does not
// implement chain-state storage or any higher-level schema on top).
package kvstore

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a byte-blob key-value store backed by a LevelDB instance on disk.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if necessary) a LevelDB database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway in-memory database, useful for tests and
// short-lived tooling that never touches disk.
func OpenInMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), &opt.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

// Put stores value under key, overwriting any existing value.
func (s *Store) Put(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key []byte) error {
	return s.db.Delete(key, nil)
}

// Has reports whether key exists.
func (s *Store) Has(key []byte) (bool, error) {
	return s.db.Has(key, nil)
}

// NewIterator returns an iterator over all keys sharing prefix, or the
// whole keyspace if prefix is nil.
func (s *Store) NewIterator(prefix []byte) iterator.Iterator {
	if prefix == nil {
		return s.db.NewIterator(nil, nil)
	}
	return s.db.NewIterator(util.BytesPrefix(prefix), nil)
}

// Batch accumulates writes to be applied atomically.
type Batch struct {
	db    *leveldb.DB
	batch leveldb.Batch
}

// NewBatch returns an empty batch bound to this store.
func (s *Store) NewBatch() *Batch {
	return &Batch{db: s.db}
}

// Put stages a write in the batch.
func (b *Batch) Put(key, value []byte) { b.batch.Put(key, value) }

// Delete stages a deletion in the batch.
func (b *Batch) Delete(key []byte) { b.batch.Delete(key) }

// Write applies all staged operations atomically.
func (b *Batch) Write() error { return b.db.Write(&b.batch, nil) }

// Close releases the underlying LevelDB handle.
func (s *Store) Close() error {
	return s.db.Close()
}
