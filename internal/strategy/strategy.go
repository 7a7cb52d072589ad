// Package strategy selects which worker node should receive a dispatched
// job, given the set of candidates registered on its route.
package strategy

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/devenwen/callme-gate/internal/domain/node"
)

// Context carries per-request routing hints. RouteID scopes round-robin's
// cursor; Version drives pinned-version selection.
type Context struct {
	RouteID string
	Version string
}

// Strategy picks one worker from a candidate list, or reports false if the
// list is empty or every candidate was filtered out.
type Strategy interface {
	Select(workers []node.Node, reqCtx Context) (node.Node, bool)
}

// Random picks uniformly at random.
type Random struct{}

func (Random) Select(workers []node.Node, _ Context) (node.Node, bool) {
	if len(workers) == 0 {
		return node.Node{}, false
	}
	return workers[rand.Intn(len(workers))], true
}

// RoundRobin keeps a per-route cursor in process memory. It does not
// synchronize across gateway instances.
type RoundRobin struct {
	mu      sync.Mutex
	cursors map[string]int
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{cursors: map[string]int{}}
}

func (s *RoundRobin) Select(workers []node.Node, reqCtx Context) (node.Node, bool) {
	if len(workers) == 0 {
		return node.Node{}, false
	}
	routeID := reqCtx.RouteID
	if routeID == "" {
		routeID = "default"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.cursors[routeID]
	if !ok {
		last = -1
	}
	next := (last + 1) % len(workers)
	s.cursors[routeID] = next
	return workers[next], true
}

// LeastInFlight picks the worker with the smallest
// total_requests - completed_requests, breaking ties by first occurrence.
type LeastInFlight struct{}

func (LeastInFlight) Select(workers []node.Node, _ Context) (node.Node, bool) {
	if len(workers) == 0 {
		return node.Node{}, false
	}
	sorted := make([]node.Node, len(workers))
	copy(sorted, workers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Metrics.InFlight() < sorted[j].Metrics.InFlight()
	})
	return sorted[0], true
}

// WeightedByLatency draws a worker with probability proportional to
// 1/max(avg_process_time_ms, 1). Falls back to uniform random if every
// weight sums to zero or below.
type WeightedByLatency struct{}

func (WeightedByLatency) Select(workers []node.Node, reqCtx Context) (node.Node, bool) {
	if len(workers) == 0 {
		return node.Node{}, false
	}
	weights := make([]float64, len(workers))
	var total float64
	for i, w := range workers {
		avg := w.Metrics.AvgProcessTimeMs
		if avg < 1 {
			avg = 1
		}
		weights[i] = 1.0 / avg
		total += weights[i]
	}
	if total <= 0 {
		return Random{}.Select(workers, reqCtx)
	}

	draw := rand.Float64() * total
	var cumulative float64
	for i, w := range weights {
		cumulative += w
		if draw <= cumulative {
			return workers[i], true
		}
	}
	return workers[len(workers)-1], true
}

// PinnedVersion filters candidates down to a single version, preferring the
// request-supplied version over the strategy's configured default, then
// picks uniformly at random among survivors.
type PinnedVersion struct {
	PreferredVersion string
}

func (s PinnedVersion) Select(workers []node.Node, reqCtx Context) (node.Node, bool) {
	version := s.PreferredVersion
	if reqCtx.Version != "" {
		version = reqCtx.Version
	}

	var survivors []node.Node
	for _, w := range workers {
		if w.Version == version {
			survivors = append(survivors, w)
		}
	}
	if len(survivors) == 0 {
		return node.Node{}, false
	}
	return Random{}.Select(survivors, reqCtx)
}

// Names of the strategies the Factory knows how to build.
const (
	NameRandom            = "random"
	NameRoundRobin        = "round_robin"
	NameLeastInFlight     = "least_in_flight"
	NameWeightedByLatency = "weighted_by_latency"
	NamePinnedVersion     = "pinned_version"
)

// Option configures a strategy built by Factory.
type Option func(*options)

type options struct {
	preferredVersion string
}

// WithPreferredVersion configures PinnedVersion's fallback version.
func WithPreferredVersion(version string) Option {
	return func(o *options) { o.preferredVersion = version }
}

// Factory builds a Strategy by name, mirroring the reference
// RouteStrategyFactory.create_strategy table. Unknown names return an error.
func Factory(name string, opts ...Option) (Strategy, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	switch name {
	case NameRandom:
		return Random{}, nil
	case NameRoundRobin:
		return NewRoundRobin(), nil
	case NameLeastInFlight:
		return LeastInFlight{}, nil
	case NameWeightedByLatency:
		return WeightedByLatency{}, nil
	case NamePinnedVersion:
		return PinnedVersion{PreferredVersion: o.preferredVersion}, nil
	default:
		return nil, fmt.Errorf("strategy: unknown strategy %q", name)
	}
}
