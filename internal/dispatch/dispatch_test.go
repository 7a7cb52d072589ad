package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devenwen/callme-gate/internal/platform/logger"
	"github.com/devenwen/callme-gate/internal/platform/store"
	"github.com/devenwen/callme-gate/internal/registry"
	"github.com/devenwen/callme-gate/internal/strategy"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *registry.Registry, store.Client) {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	s := store.NewMemory()
	reg := registry.New(s, log)
	d := NewDispatcher(reg, s, log, strategy.NameRoundRobin)
	return d, reg, s
}

func TestDispatchJobReturnsFalseWithNoRoute(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)

	ok, n, err := d.DispatchJob(ctx, "req-1", "/nope", "GET", strategy.Context{})
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, n)
}

func TestDispatchJobPushesOntoWorkerQueue(t *testing.T) {
	ctx := context.Background()
	d, reg, s := newTestDispatcher(t)

	reg.RegisterRoute(ctx, "/api/test/echo", "GET", "worker-1", "v1", "callme_gate#worker_queue:v1", 5*time.Second, nil)

	ok, n, err := d.DispatchJob(ctx, "req-1", "/api/test/echo", "GET", strategy.Context{RouteID: "GET:/api/test/echo"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "worker-1", n.WorkerID)

	popped, found, err := s.ListBlockingLeftPop(ctx, "callme_gate#worker_queue:v1", 0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "req-1", popped)
}

func TestDispatchJobSkipsOfflineWorkers(t *testing.T) {
	ctx := context.Background()
	d, reg, _ := newTestDispatcher(t)

	reg.RegisterRoute(ctx, "/api/test/echo", "GET", "worker-1", "v1", "q", 5*time.Second, nil)
	reg.UpdateNodeStatus(ctx, "worker-1", "offline")

	ok, _, err := d.DispatchJob(ctx, "req-1", "/api/test/echo", "GET", strategy.Context{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPublishAndWaitForResultRendezvous(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)

	require.NoError(t, d.PublishResult(ctx, "req-1", `{"status":"completed"}`))

	payload, found, err := d.WaitForResult(ctx, "req-1", time.Second)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `{"status":"completed"}`, payload)
}

func TestWaitForResultTimesOutWhenNothingPublished(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)

	_, found, err := d.WaitForResult(ctx, "req-nope", 0)
	require.NoError(t, err)
	require.False(t, found)
}

func TestGenerateRequestIDIsUnique(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	a := d.GenerateRequestID()
	b := d.GenerateRequestID()
	require.NotEqual(t, a, b)
}

func TestSetRouteStrategyOverridesDefault(t *testing.T) {
	ctx := context.Background()
	d, reg, _ := newTestDispatcher(t)

	reg.RegisterRoute(ctx, "/api/test/echo", "GET", "worker-1", "v1", "q1", 5*time.Second, nil)
	reg.RegisterRoute(ctx, "/api/test/echo", "GET", "worker-2", "v2", "q2", 5*time.Second, nil)

	d.SetRouteStrategy("GET:/api/test/echo", strategy.PinnedVersion{PreferredVersion: "v2"})

	ok, n, err := d.DispatchJob(ctx, "req-1", "/api/test/echo", "GET", strategy.Context{RouteID: "GET:/api/test/echo"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "worker-2", n.WorkerID)

	d.ResetRouteStrategy("GET:/api/test/echo")
}
