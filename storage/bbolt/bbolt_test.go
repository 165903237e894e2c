package bbolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/sessiongate/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "members.db")
	s, err := NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBBoltRepository(t *testing.T) {
	storagetest.Run(t, newTestStore(t))
}

func TestBBoltReopenPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "members.db")

	s, err := NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "members", "m1", []byte("alice")))
	require.NoError(t, s.Close())

	s, err = NewRepositoryFromFile(path, &bbolt.Options{})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "members", "m1")
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), got)
}
