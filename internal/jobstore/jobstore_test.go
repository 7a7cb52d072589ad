package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devenwen/callme-gate/internal/domain/job"
	"github.com/devenwen/callme-gate/internal/platform/store"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemory())

	j := job.New("req-1", "GET", "/api/test/echo")
	require.NoError(t, repo.Save(ctx, j, time.Minute))

	loaded, found, err := repo.Load(ctx, "req-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, j.RequestID, loaded.RequestID)
	require.Equal(t, j.Status, loaded.Status)
}

func TestSaveWithZeroTTLFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	repo := NewRepository(s)

	j := job.New("req-1", "GET", "/api/test/echo")
	require.NoError(t, repo.Save(ctx, j, 0))

	ttl, err := s.TTL(ctx, "http_job:req-1")
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, defaultTTL)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemory())

	_, found, err := repo.Load(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDeleteRemovesJob(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemory())

	j := job.New("req-1", "GET", "/api/test/echo")
	require.NoError(t, repo.Save(ctx, j, time.Minute))
	require.NoError(t, repo.Delete(ctx, "req-1"))

	_, found, err := repo.Load(ctx, "req-1")
	require.NoError(t, err)
	require.False(t, found)
}
