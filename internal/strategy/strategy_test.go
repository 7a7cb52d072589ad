package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devenwen/callme-gate/internal/domain/node"
)

func workers(ids ...string) []node.Node {
	out := make([]node.Node, len(ids))
	for i, id := range ids {
		out[i] = node.Node{WorkerID: id}
	}
	return out
}

func TestRandomReturnsFalseOnEmpty(t *testing.T) {
	_, ok := Random{}.Select(nil, Context{})
	require.False(t, ok)
}

func TestRandomPicksFromSet(t *testing.T) {
	w := workers("a", "b", "c")
	picked, ok := Random{}.Select(w, Context{})
	require.True(t, ok)
	require.Contains(t, []string{"a", "b", "c"}, picked.WorkerID)
}

func TestRoundRobinCyclesFromFirst(t *testing.T) {
	rr := NewRoundRobin()
	w := workers("a", "b", "c")

	first, ok := rr.Select(w, Context{RouteID: "r1"})
	require.True(t, ok)
	require.Equal(t, "a", first.WorkerID)

	second, _ := rr.Select(w, Context{RouteID: "r1"})
	require.Equal(t, "b", second.WorkerID)

	third, _ := rr.Select(w, Context{RouteID: "r1"})
	require.Equal(t, "c", third.WorkerID)

	fourth, _ := rr.Select(w, Context{RouteID: "r1"})
	require.Equal(t, "a", fourth.WorkerID)
}

func TestRoundRobinIsPerRoute(t *testing.T) {
	rr := NewRoundRobin()
	w := workers("a", "b")

	rr.Select(w, Context{RouteID: "r1"})
	first, _ := rr.Select(w, Context{RouteID: "r2"})
	require.Equal(t, "a", first.WorkerID)
}

func TestLeastInFlightPicksSmallestDiff(t *testing.T) {
	w := []node.Node{
		{WorkerID: "busy", Metrics: node.Metrics{TotalRequests: 10, CompletedRequests: 2}},
		{WorkerID: "idle", Metrics: node.Metrics{TotalRequests: 10, CompletedRequests: 9}},
	}
	picked, ok := LeastInFlight{}.Select(w, Context{})
	require.True(t, ok)
	require.Equal(t, "idle", picked.WorkerID)
}

func TestLeastInFlightTieBreaksFirstSeen(t *testing.T) {
	w := []node.Node{
		{WorkerID: "first", Metrics: node.Metrics{TotalRequests: 5, CompletedRequests: 3}},
		{WorkerID: "second", Metrics: node.Metrics{TotalRequests: 5, CompletedRequests: 3}},
	}
	picked, _ := LeastInFlight{}.Select(w, Context{})
	require.Equal(t, "first", picked.WorkerID)
}

func TestWeightedByLatencySelectsWhenLatencyUnrecorded(t *testing.T) {
	w := []node.Node{{WorkerID: "a"}, {WorkerID: "b"}}
	_, ok := WeightedByLatency{}.Select(w, Context{})
	require.True(t, ok)
}

func TestWeightedByLatencyFavorsFaster(t *testing.T) {
	w := []node.Node{
		{WorkerID: "slow", Metrics: node.Metrics{AvgProcessTimeMs: 1000}},
		{WorkerID: "fast", Metrics: node.Metrics{AvgProcessTimeMs: 1}},
	}
	counts := map[string]int{}
	for i := 0; i < 500; i++ {
		picked, _ := WeightedByLatency{}.Select(w, Context{})
		counts[picked.WorkerID]++
	}
	require.Greater(t, counts["fast"], counts["slow"])
}

func TestPinnedVersionFiltersByRequestVersion(t *testing.T) {
	w := []node.Node{
		{WorkerID: "v1-node", Version: "v1"},
		{WorkerID: "v2-node", Version: "v2"},
	}
	s := PinnedVersion{PreferredVersion: "v1"}

	picked, ok := s.Select(w, Context{Version: "v2"})
	require.True(t, ok)
	require.Equal(t, "v2-node", picked.WorkerID)
}

func TestPinnedVersionUsesConfiguredDefaultWhenNoRequestVersion(t *testing.T) {
	w := []node.Node{
		{WorkerID: "v1-node", Version: "v1"},
		{WorkerID: "v2-node", Version: "v2"},
	}
	s := PinnedVersion{PreferredVersion: "v1"}

	picked, ok := s.Select(w, Context{})
	require.True(t, ok)
	require.Equal(t, "v1-node", picked.WorkerID)
}

func TestPinnedVersionReturnsFalseWhenNoMatch(t *testing.T) {
	w := []node.Node{{WorkerID: "v1-node", Version: "v1"}}
	s := PinnedVersion{PreferredVersion: "v9"}

	_, ok := s.Select(w, Context{})
	require.False(t, ok)
}

func TestPinnedVersionReturnsFalseWhenNoVersionResolved(t *testing.T) {
	w := []node.Node{
		{WorkerID: "v1-node", Version: "v1"},
		{WorkerID: "v2-node", Version: "v2"},
	}
	s := PinnedVersion{}

	_, ok := s.Select(w, Context{})
	require.False(t, ok)
}

func TestFactoryBuildsKnownStrategies(t *testing.T) {
	for _, name := range []string{NameRandom, NameRoundRobin, NameLeastInFlight, NameWeightedByLatency, NamePinnedVersion} {
		s, err := Factory(name)
		require.NoError(t, err)
		require.NotNil(t, s)
	}
}

func TestFactoryRejectsUnknownName(t *testing.T) {
	_, err := Factory("not-a-strategy")
	require.Error(t, err)
}
