// Package postgres implements storage.Repository backed by PostgreSQL.
//
// The records table uses a composite primary key (bucket, record_id) that
// mirrors the key space used by the BBolt and in-memory backends.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/sessiongate/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// execer abstracts both *pgxpool.Pool and pgx.Tx for shared statements.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	upsertSQL = `INSERT INTO records (bucket, record_id, data)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (bucket, record_id)
		 DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	insertSQL = `INSERT INTO records (bucket, record_id, data)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (bucket, record_id) DO NOTHING`
	deleteSQL = `DELETE FROM records WHERE bucket = $1 AND record_id = $2`
)

func put(ctx context.Context, q execer, bucket, id string, data []byte) error {
	_, err := q.Exec(ctx, upsertSQL, bucket, id, data)
	return err
}

func putIfAbsent(ctx context.Context, q execer, bucket, id string, data []byte) error {
	tag, err := q.Exec(ctx, insertSQL, bucket, id, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", bucket, id, storage.ErrExists)
	}
	return nil
}

func del(ctx context.Context, q execer, bucket, id string) error {
	tag, err := q.Exec(ctx, deleteSQL, bucket, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", bucket, id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, bucket, id string, data []byte) error {
	return put(ctx, s.pool, bucket, id, data)
}

func (s *Store) PutIfAbsent(ctx context.Context, bucket, id string, data []byte) error {
	return putIfAbsent(ctx, s.pool, bucket, id, data)
}

func (s *Store) Get(ctx context.Context, bucket, id string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM records WHERE bucket = $1 AND record_id = $2`,
		bucket, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) List(ctx context.Context, bucket string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record_id FROM records WHERE bucket = $1 ORDER BY record_id COLLATE "C"`,
		bucket)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *Store) Delete(ctx context.Context, bucket, id string) error {
	return del(ctx, s.pool, bucket, id)
}

func (s *Store) Batch(ctx context.Context, fn func(tx storage.BatchTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgBatchTx{ctx: ctx, tx: tx})
	})
}

type pgBatchTx struct {
	ctx context.Context
	tx  pgx.Tx
}

var _ storage.BatchTx = (*pgBatchTx)(nil)

func (btx *pgBatchTx) Put(bucket, id string, data []byte) error {
	return put(btx.ctx, btx.tx, bucket, id, data)
}

func (btx *pgBatchTx) PutIfAbsent(bucket, id string, data []byte) error {
	return putIfAbsent(btx.ctx, btx.tx, bucket, id, data)
}

func (btx *pgBatchTx) Delete(bucket, id string) error {
	return del(btx.ctx, btx.tx, bucket, id)
}
