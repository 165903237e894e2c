// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jmcleod/sessiongate/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string][]byte)}
}

func (r *Repository) Put(_ context.Context, bucket, id string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putLocked(bucket, id, data)
}

func (r *Repository) putLocked(bucket, id string, data []byte) error {
	if _, ok := r.data[bucket]; !ok {
		r.data[bucket] = make(map[string][]byte)
	}
	r.data[bucket][id] = slices.Clone(data)
	return nil
}

func (r *Repository) PutIfAbsent(_ context.Context, bucket, id string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putIfAbsentLocked(bucket, id, data)
}

func (r *Repository) putIfAbsentLocked(bucket, id string, data []byte) error {
	if _, ok := r.data[bucket][id]; ok {
		return fmt.Errorf("%s/%s: %w", bucket, id, storage.ErrExists)
	}
	return r.putLocked(bucket, id, data)
}

func (r *Repository) Get(_ context.Context, bucket, id string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.data[bucket][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, id, storage.ErrNotFound)
	}
	return slices.Clone(data), nil
}

func (r *Repository) List(_ context.Context, bucket string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.data[bucket]))
	for id := range r.data[bucket] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *Repository) Delete(_ context.Context, bucket, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(bucket, id)
}

func (r *Repository) deleteLocked(bucket, id string) error {
	if _, ok := r.data[bucket][id]; !ok {
		return fmt.Errorf("%s/%s: %w", bucket, id, storage.ErrNotFound)
	}
	delete(r.data[bucket], id)
	return nil
}

// Batch executes fn within a batch transaction. On error, all writes are rolled back.
func (r *Repository) Batch(_ context.Context, fn func(tx storage.BatchTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.snapshot()
	if err := fn(&memoryBatchTx{repo: r}); err != nil {
		r.data = snapshot
		return err
	}
	return nil
}

func (r *Repository) snapshot() map[string]map[string][]byte {
	cp := make(map[string]map[string][]byte, len(r.data))
	for bucket, records := range r.data {
		inner := make(map[string][]byte, len(records))
		for id, data := range records {
			inner[id] = data
		}
		cp[bucket] = inner
	}
	return cp
}

type memoryBatchTx struct {
	repo *Repository
}

func (tx *memoryBatchTx) Put(bucket, id string, data []byte) error {
	return tx.repo.putLocked(bucket, id, data)
}

func (tx *memoryBatchTx) PutIfAbsent(bucket, id string, data []byte) error {
	return tx.repo.putIfAbsentLocked(bucket, id, data)
}

func (tx *memoryBatchTx) Delete(bucket, id string) error {
	return tx.repo.deleteLocked(bucket, id)
}
