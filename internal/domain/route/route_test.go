package route

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRouteIDCanonicalization(t *testing.T) {
	require.Equal(t, "GET:/api/test/echo", RouteID("get", "/api/test/echo"))
	require.Equal(t, "POST:/api/test/echo", RouteID("POST", "/api/test/echo"))
}

func TestNewRouteIDMatchesHelper(t *testing.T) {
	r := New("get", "/api/test/echo", 30*time.Second)
	require.Equal(t, RouteID("get", "/api/test/echo"), r.ID())
	require.Equal(t, "GET", r.Method)
}

func TestAddRemoveWorker(t *testing.T) {
	r := New("GET", "/api/test/echo", time.Second)
	require.False(t, r.HasWorkers())

	r.AddWorker(WorkerDescriptor{WorkerID: "w1", Version: "v1", Queue: "q1"})
	require.True(t, r.HasWorkers())
	require.Contains(t, r.WorkerNodes, "w1")
	require.False(t, r.WorkerNodes["w1"].AddedAt.IsZero())

	r.RemoveWorker("w1")
	require.False(t, r.HasWorkers())
}

func TestVersionsAreSortedAndDeduped(t *testing.T) {
	r := New("GET", "/api/test/echo", time.Second)
	r.AddWorker(WorkerDescriptor{WorkerID: "w1", Version: "v2"})
	r.AddWorker(WorkerDescriptor{WorkerID: "w2", Version: "v1"})
	r.AddWorker(WorkerDescriptor{WorkerID: "w3", Version: "v1"})

	require.Equal(t, []string{"v1", "v2"}, r.Versions())
}

func TestAddWorkerOverwritesOnReRegistration(t *testing.T) {
	r := New("GET", "/api/test/echo", time.Second)
	r.AddWorker(WorkerDescriptor{WorkerID: "w1", Version: "v1", Queue: "q1"})
	r.AddWorker(WorkerDescriptor{WorkerID: "w1", Version: "v2", Queue: "q1"})

	require.Len(t, r.WorkerNodes, 1)
	require.Equal(t, "v2", r.WorkerNodes["w1"].Version)
}
