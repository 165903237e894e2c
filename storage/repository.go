// Package storage provides the storage abstraction layer for member records.
//
// Records are opaque byte slices addressed by (bucket, id). Callers own the
// encoding; backends only guarantee atomicity per call and per Batch.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrExists is returned by PutIfAbsent when the record already exists.
	ErrExists = errors.New("record already exists")
)

// BatchTx provides writes within an atomic transaction.
type BatchTx interface {
	Put(bucket, id string, data []byte) error
	PutIfAbsent(bucket, id string, data []byte) error
	Delete(bucket, id string) error
}

// Repository defines the interface for record storage.
type Repository interface {
	// Put creates or replaces a record.
	Put(ctx context.Context, bucket, id string, data []byte) error
	// PutIfAbsent creates a record, failing with ErrExists if it is present.
	PutIfAbsent(ctx context.Context, bucket, id string, data []byte) error
	// Get returns a copy of the record or ErrNotFound.
	Get(ctx context.Context, bucket, id string) ([]byte, error)
	// List returns the ids in bucket in ascending order.
	List(ctx context.Context, bucket string) ([]string, error)
	// Delete removes a record or returns ErrNotFound.
	Delete(ctx context.Context, bucket, id string) error
	// Batch runs fn atomically. If fn returns an error no write is applied.
	Batch(ctx context.Context, fn func(tx BatchTx) error) error
}
