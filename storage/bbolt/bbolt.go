// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/sessiongate/storage"
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
// A nil options value uses a one second lock timeout so a second process
// fails fast instead of blocking.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	if options == nil {
		options = &bbolt.Options{Timeout: time.Second}
	}
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(_ context.Context, bucket, id string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return (&boltBatchTx{tx: tx}).Put(bucket, id, data)
	})
}

func (s *Store) PutIfAbsent(_ context.Context, bucket, id string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return (&boltBatchTx{tx: tx}).PutIfAbsent(bucket, id, data)
	})
}

func (s *Store) Get(_ context.Context, bucket, id string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("%s/%s: %w", bucket, id, storage.ErrNotFound)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", bucket, id, storage.ErrNotFound)
		}
		// Values are only valid for the life of the transaction.
		out = bytes.Clone(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) List(_ context.Context, bucket string) ([]string, error) {
	ids := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (s *Store) Delete(_ context.Context, bucket, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return (&boltBatchTx{tx: tx}).Delete(bucket, id)
	})
}

func (s *Store) Batch(_ context.Context, fn func(tx storage.BatchTx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltBatchTx{tx: tx})
	})
}

type boltBatchTx struct {
	tx *bbolt.Tx
}

func (btx *boltBatchTx) bucket(name string) (*bbolt.Bucket, error) {
	b, err := btx.tx.CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return nil, fmt.Errorf("bucket %s: %w", name, err)
	}
	return b, nil
}

func (btx *boltBatchTx) Put(bucket, id string, data []byte) error {
	b, err := btx.bucket(bucket)
	if err != nil {
		return err
	}
	return b.Put([]byte(id), bytes.Clone(data))
}

func (btx *boltBatchTx) PutIfAbsent(bucket, id string, data []byte) error {
	b, err := btx.bucket(bucket)
	if err != nil {
		return err
	}
	if b.Get([]byte(id)) != nil {
		return fmt.Errorf("%s/%s: %w", bucket, id, storage.ErrExists)
	}
	return b.Put([]byte(id), bytes.Clone(data))
}

func (btx *boltBatchTx) Delete(bucket, id string) error {
	b := btx.tx.Bucket([]byte(bucket))
	if b == nil || b.Get([]byte(id)) == nil {
		return fmt.Errorf("%s/%s: %w", bucket, id, storage.ErrNotFound)
	}
	return b.Delete([]byte(id))
}
