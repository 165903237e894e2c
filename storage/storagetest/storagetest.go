// Package storagetest provides a conformance suite shared by every
// storage.Repository implementation.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessiongate/storage"
)

// Run exercises repo against the storage.Repository contract. The
// repository must be empty when Run is called.
func Run(t *testing.T, repo storage.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "members", "m1", []byte("alice")))
		got, err := repo.Get(ctx, "members", "m1")
		require.NoError(t, err)
		assert.Equal(t, []byte("alice"), got)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "members", "m2", []byte("v1")))
		require.NoError(t, repo.Put(ctx, "members", "m2", []byte("v2")))
		got, err := repo.Get(ctx, "members", "m2")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "members", "m3", []byte("orig")))
		got, err := repo.Get(ctx, "members", "m3")
		require.NoError(t, err)
		got[0] = 'X'
		again, err := repo.Get(ctx, "members", "m3")
		require.NoError(t, err)
		assert.Equal(t, []byte("orig"), again)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.Get(ctx, "members", "missing")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)

		_, err = repo.Get(ctx, "no-such-bucket", "x")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("PutIfAbsent", func(t *testing.T) {
		require.NoError(t, repo.PutIfAbsent(ctx, "logins", "alice", []byte("m1")))
		err := repo.PutIfAbsent(ctx, "logins", "alice", []byte("m9"))
		assert.True(t, errors.Is(err, storage.ErrExists), "got %v", err)

		got, err := repo.Get(ctx, "logins", "alice")
		require.NoError(t, err)
		assert.Equal(t, []byte("m1"), got)
	})

	t.Run("List", func(t *testing.T) {
		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, repo.Put(ctx, "list", id, []byte(id)))
		}
		ids, err := repo.List(ctx, "list")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ids)

		ids, err = repo.List(ctx, "empty-bucket")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("BucketsAreIsolated", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "left", "same", []byte("L")))
		require.NoError(t, repo.Put(ctx, "right", "same", []byte("R")))
		l, err := repo.Get(ctx, "left", "same")
		require.NoError(t, err)
		r, err := repo.Get(ctx, "right", "same")
		require.NoError(t, err)
		assert.Equal(t, []byte("L"), l)
		assert.Equal(t, []byte("R"), r)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "del", "d1", []byte("x")))
		require.NoError(t, repo.Delete(ctx, "del", "d1"))
		_, err := repo.Get(ctx, "del", "d1")
		assert.True(t, errors.Is(err, storage.ErrNotFound))

		err = repo.Delete(ctx, "del", "d1")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("BatchCommit", func(t *testing.T) {
		err := repo.Batch(ctx, func(tx storage.BatchTx) error {
			if err := tx.PutIfAbsent("batch-logins", "bob", []byte("b1")); err != nil {
				return err
			}
			return tx.Put("batch-members", "b1", []byte("bob"))
		})
		require.NoError(t, err)

		got, err := repo.Get(ctx, "batch-members", "b1")
		require.NoError(t, err)
		assert.Equal(t, []byte("bob"), got)
		got, err = repo.Get(ctx, "batch-logins", "bob")
		require.NoError(t, err)
		assert.Equal(t, []byte("b1"), got)
	})

	t.Run("BatchRollback", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "batch-logins", "carol", []byte("c0")))

		err := repo.Batch(ctx, func(tx storage.BatchTx) error {
			if err := tx.Put("batch-members", "c1", []byte("carol")); err != nil {
				return err
			}
			return tx.PutIfAbsent("batch-logins", "carol", []byte("c1"))
		})
		assert.True(t, errors.Is(err, storage.ErrExists), "got %v", err)

		_, err = repo.Get(ctx, "batch-members", "c1")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "rolled back write must not be visible")
	})

	t.Run("BatchDelete", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "batch-del", "x", []byte("x")))
		err := repo.Batch(ctx, func(tx storage.BatchTx) error {
			return tx.Delete("batch-del", "x")
		})
		require.NoError(t, err)
		_, err = repo.Get(ctx, "batch-del", "x")
		assert.True(t, errors.Is(err, storage.ErrNotFound))

		err = repo.Batch(ctx, func(tx storage.BatchTx) error {
			return tx.Delete("batch-del", "x")
		})
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("ConcurrentPutIfAbsent", func(t *testing.T) {
		const n = 16
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = repo.PutIfAbsent(ctx, "race", "winner", []byte(fmt.Sprint(i)))
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, storage.ErrExists):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, wins)
	})
}
