// Package dispatch picks a worker for an inbound job and runs the
// rendezvous handshake that lets the gateway block for that worker's result.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devenwen/callme-gate/internal/domain/node"
	"github.com/devenwen/callme-gate/internal/observability"
	"github.com/devenwen/callme-gate/internal/platform/logger"
	"github.com/devenwen/callme-gate/internal/platform/store"
	"github.com/devenwen/callme-gate/internal/registry"
	"github.com/devenwen/callme-gate/internal/strategy"
)

const jobSyncKeyPrefix = "callme_gate#job_sync:"

// resultTTL bounds how long an unconsumed rendezvous payload lingers, per
// the publish side's own cleanup contract.
const resultTTL = 60 * time.Second

func jobSyncKey(requestID string) string { return jobSyncKeyPrefix + requestID }

// Dispatcher picks a worker for each job and runs the rendezvous handshake
// between an HTTP caller and the worker that serves it.
type Dispatcher struct {
	registry        *registry.Registry
	store           store.Client
	log             *logger.Logger
	defaultStrategy string

	mu         sync.Mutex
	strategies map[string]strategy.Strategy

	metrics *observability.Metrics
}

// SetMetrics attaches a Prometheus metric sink. Safe to call with nil (the
// default), in which case every metric call is a no-op.
func (d *Dispatcher) SetMetrics(m *observability.Metrics) {
	d.metrics = m
}

// NewDispatcher builds a Dispatcher over a registry and store, with a
// configurable default strategy name (e.g. strategy.NameRoundRobin).
func NewDispatcher(reg *registry.Registry, s store.Client, log *logger.Logger, defaultStrategy string) *Dispatcher {
	return &Dispatcher{
		registry:        reg,
		store:           s,
		log:             log,
		defaultStrategy: defaultStrategy,
		strategies:      map[string]strategy.Strategy{},
	}
}

// SetRouteStrategy pins a strategy to a specific route id, overriding
// the dispatcher's default for that route only.
func (d *Dispatcher) SetRouteStrategy(routeID string, s strategy.Strategy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strategies[routeID] = s
}

// ResetRouteStrategy removes a route's override, falling back to the
// dispatcher's default strategy.
func (d *Dispatcher) ResetRouteStrategy(routeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.strategies, routeID)
}

func (d *Dispatcher) strategyFor(routeID string) (strategy.Strategy, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.strategies[routeID]; ok {
		return s, nil
	}
	// Keep the default instance per route so stateful strategies (the
	// round-robin cursor) carry over from one dispatch to the next.
	s, err := strategy.Factory(d.defaultStrategy)
	if err != nil {
		return nil, err
	}
	d.strategies[routeID] = s
	return s, nil
}

// DispatchJob selects a worker for the given path/method and pushes the
// request id onto its queue. It returns (false, nil, nil) when no route or
// no online worker is available, matching the reference "lookup miss is not
// an error" contract.
func (d *Dispatcher) DispatchJob(ctx context.Context, requestID, path, method string, routingCtx strategy.Context) (bool, *node.Node, error) {
	candidates := d.registry.GetRouteWorkers(ctx, path, method)
	if len(candidates) == 0 {
		return false, nil, nil
	}

	online := make([]node.Node, 0, len(candidates))
	for _, n := range candidates {
		if n.Status == node.StatusOnline || n.Status == node.StatusBusy {
			online = append(online, n)
		}
	}
	if len(online) == 0 {
		return false, nil, nil
	}
	// The registry returns workers in map order; sort so a strategy's
	// position-based state (the round-robin cursor) means the same worker
	// from call to call.
	sort.Slice(online, func(i, j int) bool { return online[i].WorkerID < online[j].WorkerID })

	routeID := routingCtx.RouteID
	s, err := d.strategyFor(routeID)
	if err != nil {
		return false, nil, err
	}

	picked, ok := s.Select(online, routingCtx)
	if !ok {
		return false, nil, nil
	}

	if err := d.store.Delete(ctx, jobSyncKey(requestID)); err != nil {
		return false, nil, err
	}
	if err := d.store.ListRightPush(ctx, picked.Queue, requestID); err != nil {
		return false, nil, err
	}
	d.metrics.RecordDispatched()
	return true, &picked, nil
}

// WaitForResult blocks on the job's rendezvous key for up to timeout,
// returning the popped payload or false on timeout.
func (d *Dispatcher) WaitForResult(ctx context.Context, requestID string, timeout time.Duration) (string, bool, error) {
	start := time.Now()
	payload, ok, err := d.store.ListBlockingLeftPop(ctx, jobSyncKey(requestID), timeout)
	if err == nil {
		d.metrics.ObserveRendezvousWait(time.Since(start).Seconds())
		if !ok {
			d.metrics.RecordTimedOut()
		}
	}
	return payload, ok, err
}

// PublishResult pushes a payload onto the job's rendezvous key and sets a
// short TTL so an unconsumed result eventually vacates the store.
func (d *Dispatcher) PublishResult(ctx context.Context, requestID, payload string) error {
	key := jobSyncKey(requestID)
	if err := d.store.ListRightPush(ctx, key, payload); err != nil {
		return err
	}
	return d.store.Expire(ctx, key, resultTTL)
}

// GenerateRequestID returns a fresh UUID for a newly-arrived HTTP request.
func (d *Dispatcher) GenerateRequestID() string {
	return uuid.New().String()
}
