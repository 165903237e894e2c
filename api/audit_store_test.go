package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessiongate/storage/memory"
)

func TestAuditStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	store := newAuditStore(repo)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []auditRecord{
		{Event: AuditLoginSuccess, MemberID: "m1", Time: base},
		{Event: AuditLoginFailure, LoginID: "test", Reason: "invalid credentials", Time: base.Add(time.Second)},
		{Event: AuditLogout, MemberID: "m1", Time: base.Add(2 * time.Second)},
		{Event: AuditLoginSuccess, MemberID: "m2", Time: base.Add(3 * time.Second)},
	}
	for _, rec := range records {
		require.NoError(t, store.append(ctx, rec))
	}

	all, err := ListAuditEntries(ctx, repo, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "m2", all[0].MemberID)
	assert.Equal(t, string(AuditLoginSuccess), all[3].Event)
	assert.True(t, all[0].CreatedAt.After(all[3].CreatedAt))

	mine, err := ListAuditEntries(ctx, repo, AuditFilter{MemberID: "m1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, string(AuditLogout), mine[0].Event)
	assert.Equal(t, string(AuditLoginSuccess), mine[1].Event)

	limited, err := ListAuditEntries(ctx, repo, AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAuditStoreSkipsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	require.NoError(t, repo.Put(ctx, AuditBucket, "zzz", []byte("not json")))
	require.NoError(t, newAuditStore(repo).append(ctx, auditRecord{Event: AuditLogout, MemberID: "m1", Time: time.Now()}))

	entries, err := ListAuditEntries(ctx, repo, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].MemberID)
}

func TestAuditStoreEmpty(t *testing.T) {
	entries, err := ListAuditEntries(context.Background(), memory.NewRepository(), AuditFilter{})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestAuditStoreOutlivesRequestContext(t *testing.T) {
	repo := memory.NewRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, newAuditStore(repo).append(ctx, auditRecord{Event: AuditLogout, Time: time.Now()}))
	entries, err := ListAuditEntries(context.Background(), repo, AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
