package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devenwen/callme-gate/internal/domain/node"
	"github.com/devenwen/callme-gate/internal/platform/logger"
	"github.com/devenwen/callme-gate/internal/platform/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return New(store.NewMemory(), log)
}

func TestRegisterRouteCreatesRouteAndNode(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	ok := reg.RegisterRoute(ctx, "/api/test/echo", "GET", "worker-1", "v1", "callme_gate#worker_queue:v1", 5*time.Second, nil)
	require.True(t, ok)

	rt, found := reg.GetRoute(ctx, "/api/test/echo", "GET")
	require.True(t, found)
	require.Contains(t, rt.WorkerNodes, "worker-1")

	n, found := reg.GetNode(ctx, "worker-1")
	require.True(t, found)
	require.Contains(t, n.Routes, "GET:/api/test/echo")
	require.Equal(t, node.StatusOnline, n.Status)
}

func TestRegisterRouteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	for i := 0; i < 3; i++ {
		ok := reg.RegisterRoute(ctx, "/api/test/echo", "GET", "worker-1", "v1", "q", 5*time.Second, nil)
		require.True(t, ok)
	}

	rt, _ := reg.GetRoute(ctx, "/api/test/echo", "GET")
	require.Len(t, rt.WorkerNodes, 1)
}

func TestUnregisterRouteDeletesRouteWhenLastWorkerLeaves(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	reg.RegisterRoute(ctx, "/api/test/echo", "GET", "worker-1", "v1", "q", 5*time.Second, nil)
	ok := reg.UnregisterRoute(ctx, "/api/test/echo", "GET", "worker-1")
	require.True(t, ok)

	_, found := reg.GetRoute(ctx, "/api/test/echo", "GET")
	require.False(t, found)

	n, found := reg.GetNode(ctx, "worker-1")
	require.True(t, found)
	require.NotContains(t, n.Routes, "GET:/api/test/echo")
}

func TestUnregisterRouteKeepsRouteWithRemainingWorkers(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	reg.RegisterRoute(ctx, "/api/test/echo", "GET", "worker-1", "v1", "q1", 5*time.Second, nil)
	reg.RegisterRoute(ctx, "/api/test/echo", "GET", "worker-2", "v1", "q2", 5*time.Second, nil)
	reg.UnregisterRoute(ctx, "/api/test/echo", "GET", "worker-1")

	rt, found := reg.GetRoute(ctx, "/api/test/echo", "GET")
	require.True(t, found)
	require.Len(t, rt.WorkerNodes, 1)
	require.Contains(t, rt.WorkerNodes, "worker-2")
}

func TestUnregisterNodeCascadesToRoutes(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	reg.RegisterRoute(ctx, "/api/test/echo", "GET", "worker-1", "v1", "q", 5*time.Second, nil)
	reg.RegisterRoute(ctx, "/api/test/other", "POST", "worker-1", "v1", "q", 5*time.Second, nil)

	ok := reg.UnregisterNode(ctx, "worker-1")
	require.True(t, ok)

	_, found := reg.GetRoute(ctx, "/api/test/echo", "GET")
	require.False(t, found)
	_, found = reg.GetRoute(ctx, "/api/test/other", "POST")
	require.False(t, found)

	n, found := reg.GetNode(ctx, "worker-1")
	require.True(t, found)
	require.Equal(t, node.StatusOffline, n.Status)
}

func TestNodeHeartbeatPromotesOnline(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	reg.RegisterNode(ctx, "worker-1", "v1", "q", node.StatusError, nil)
	ok := reg.NodeHeartbeat(ctx, "worker-1")
	require.True(t, ok)

	n, _ := reg.GetNode(ctx, "worker-1")
	require.Equal(t, node.StatusOnline, n.Status)
}

func TestCleanInactiveNodesReapsStaleHeartbeats(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	reg.RegisterNode(ctx, "worker-1", "v1", "q", node.StatusOnline, nil)
	nodes := reg.GetAllNodes(ctx)
	nodes["worker-1"].LastHeartbeat = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, reg.storeNodes(ctx, nodes))

	reaped := reg.CleanInactiveNodes(ctx, time.Minute)
	require.Equal(t, 1, reaped)

	n, _ := reg.GetNode(ctx, "worker-1")
	require.Equal(t, node.StatusOffline, n.Status)
}

func TestGetRouteWorkersJoinsNodeRecords(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	reg.RegisterRoute(ctx, "/api/test/echo", "GET", "worker-1", "v1", "q1", 5*time.Second, nil)
	reg.RegisterRoute(ctx, "/api/test/echo", "GET", "worker-2", "v1", "q2", 5*time.Second, nil)

	workers := reg.GetRouteWorkers(ctx, "/api/test/echo", "GET")
	require.Len(t, workers, 2)
}

func TestGetRouteTimeoutDefaultsWhenUnregistered(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	require.Equal(t, 5*time.Second, reg.GetRouteTimeout(ctx, "/nope", "GET"))
}
