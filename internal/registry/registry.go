// Package registry is the single source of truth for which routes exist and
// which worker nodes serve them. It is backed by the shared store.
package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/devenwen/callme-gate/internal/domain/node"
	"github.com/devenwen/callme-gate/internal/domain/route"
	"github.com/devenwen/callme-gate/internal/mutex"
	"github.com/devenwen/callme-gate/internal/observability"
	"github.com/devenwen/callme-gate/internal/platform/logger"
	"github.com/devenwen/callme-gate/internal/platform/store"
)

const (
	routesKey           = "callme_gate#routes"
	nodesKey            = "callme_gate#nodes"
	routeNodesKeyPrefix = "callme_gate#route_nodes:"
	nodeRoutesKeyPrefix = "callme_gate#node_routes:"

	lockName       = "registry"
	lockTTL        = 5 * time.Second
	lockRetries    = 50
	lockRetryDelay = 20 * time.Millisecond
)

func routeNodesKey(routeID string) string  { return routeNodesKeyPrefix + routeID }
func nodeRoutesKey(workerID string) string { return nodeRoutesKeyPrefix + workerID }

// Registry is one instance per process, constructed over a store.Client.
//
// Every mutation is a load-aggregate / mutate-in-memory / store-back cycle
// against the routesKey and nodesKey blobs. That sequence is not atomic at
// the store level, so every mutating method runs inside a distributed
// "redis_lock:registry" mutex (see internal/mutex) rather than the reference
// design's unguarded racy shape — this closes the gap the reference design
// leaves open across concurrent gateway/worker processes, not just within
// one process.
type Registry struct {
	store   store.Client
	log     *logger.Logger
	metrics *observability.Metrics
}

// New constructs a Registry over the given store.
func New(s store.Client, log *logger.Logger) *Registry {
	return &Registry{store: s, log: log}
}

// SetMetrics attaches a Prometheus metric sink. Safe to call with nil.
func (r *Registry) SetMetrics(m *observability.Metrics) {
	r.metrics = m
}

// withLock runs fn while holding the registry-wide distributed mutex,
// retrying acquisition briefly before giving up.
func (r *Registry) withLock(ctx context.Context, fn func(context.Context) error) bool {
	m := mutex.NewMutex(r.store, lockName, lockTTL, lockRetries, lockRetryDelay)
	err := m.WithLock(ctx, fn)
	r.metrics.RecordMutexAcquisition(lockName, err == nil)
	if err != nil {
		r.log.Error("registry: failed to acquire registry lock", "error", err)
		return false
	}
	return true
}

func (r *Registry) loadRoutes(ctx context.Context) (map[string]*route.Route, error) {
	raw, ok, err := r.store.Get(ctx, routesKey)
	if err != nil {
		return nil, err
	}
	routes := map[string]*route.Route{}
	if !ok || raw == "" {
		return routes, nil
	}
	if err := json.Unmarshal([]byte(raw), &routes); err != nil {
		// Per the store's "tolerate decode failure" contract, a corrupt blob
		// is treated as an empty registry rather than a hard failure.
		r.log.Warn("routes blob failed to decode, treating as empty", "error", err)
		return map[string]*route.Route{}, nil
	}
	return routes, nil
}

func (r *Registry) storeRoutes(ctx context.Context, routes map[string]*route.Route) error {
	raw, err := json.Marshal(routes)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, routesKey, string(raw), 0)
}

func (r *Registry) loadNodes(ctx context.Context) (map[string]*node.Node, error) {
	raw, ok, err := r.store.Get(ctx, nodesKey)
	if err != nil {
		return nil, err
	}
	nodes := map[string]*node.Node{}
	if !ok || raw == "" {
		return nodes, nil
	}
	if err := json.Unmarshal([]byte(raw), &nodes); err != nil {
		r.log.Warn("nodes blob failed to decode, treating as empty", "error", err)
		return map[string]*node.Node{}, nil
	}
	return nodes, nil
}

func (r *Registry) storeNodes(ctx context.Context, nodes map[string]*node.Node) error {
	raw, err := json.Marshal(nodes)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, nodesKey, string(raw), 0)
}

// RegisterRoute idempotently ensures the route exists, inserts the worker
// descriptor, ensures the node exists (online by default), links the route
// onto the node, and mirrors both memberships into their set keys.
func (r *Registry) RegisterRoute(ctx context.Context, path, method, workerID, version, queue string, timeout time.Duration, metadata map[string]string) bool {
	ok := false
	locked := r.withLock(ctx, func(ctx context.Context) error {
		routes, err := r.loadRoutes(ctx)
		if err != nil {
			r.log.Error("register_route: load routes failed", "error", err)
			return nil
		}
		nodes, err := r.loadNodes(ctx)
		if err != nil {
			r.log.Error("register_route: load nodes failed", "error", err)
			return nil
		}

		rid := route.RouteID(method, path)
		rt, exists := routes[rid]
		if !exists {
			if timeout <= 0 {
				timeout = 5 * time.Second
			}
			rt = route.New(method, path, timeout)
			routes[rid] = rt
		}
		rt.AddWorker(route.WorkerDescriptor{
			WorkerID: workerID,
			Version:  version,
			Queue:    queue,
			Metadata: metadata,
		})

		n, exists := nodes[workerID]
		if !exists {
			n = node.New(workerID, version, queue, metadata)
			nodes[workerID] = n
		}
		n.AddRoute(rid)

		if err := r.storeRoutes(ctx, routes); err != nil {
			r.log.Error("register_route: store routes failed", "error", err)
			return nil
		}
		if err := r.storeNodes(ctx, nodes); err != nil {
			r.log.Error("register_route: store nodes failed", "error", err)
			return nil
		}

		if err := r.store.SetAdd(ctx, routeNodesKey(rid), workerID); err != nil {
			r.log.Warn("register_route: mirror route_nodes set failed", "error", err)
		}
		if err := r.store.SetAdd(ctx, nodeRoutesKey(workerID), rid); err != nil {
			r.log.Warn("register_route: mirror node_routes set failed", "error", err)
		}
		ok = true
		return nil
	})
	return locked && ok
}

// UnregisterRoute reverses RegisterRoute for a single worker, deleting the
// route entirely once its last worker is removed. The node record survives
// with the route-id dropped from its own membership.
func (r *Registry) UnregisterRoute(ctx context.Context, path, method, workerID string) bool {
	ok := false
	locked := r.withLock(ctx, func(ctx context.Context) error {
		routes, err := r.loadRoutes(ctx)
		if err != nil {
			r.log.Error("unregister_route: load routes failed", "error", err)
			return nil
		}
		nodes, err := r.loadNodes(ctx)
		if err != nil {
			r.log.Error("unregister_route: load nodes failed", "error", err)
			return nil
		}

		rid := route.RouteID(method, path)
		if rt, exists := routes[rid]; exists {
			rt.RemoveWorker(workerID)
			if !rt.HasWorkers() {
				delete(routes, rid)
			}
		}
		if n, exists := nodes[workerID]; exists {
			n.RemoveRoute(rid)
		}

		if err := r.storeRoutes(ctx, routes); err != nil {
			r.log.Error("unregister_route: store routes failed", "error", err)
			return nil
		}
		if err := r.storeNodes(ctx, nodes); err != nil {
			r.log.Error("unregister_route: store nodes failed", "error", err)
			return nil
		}

		if err := r.store.SetRemove(ctx, routeNodesKey(rid), workerID); err != nil {
			r.log.Warn("unregister_route: mirror route_nodes set failed", "error", err)
		}
		if err := r.store.SetRemove(ctx, nodeRoutesKey(workerID), rid); err != nil {
			r.log.Warn("unregister_route: mirror node_routes set failed", "error", err)
		}
		ok = true
		return nil
	})
	return locked && ok
}

// RegisterNode upserts a node without touching its route associations.
func (r *Registry) RegisterNode(ctx context.Context, workerID, version, queue string, status node.Status, metadata map[string]string) bool {
	ok := false
	locked := r.withLock(ctx, func(ctx context.Context) error {
		nodes, err := r.loadNodes(ctx)
		if err != nil {
			r.log.Error("register_node: load nodes failed", "error", err)
			return nil
		}

		n, exists := nodes[workerID]
		if !exists {
			n = node.New(workerID, version, queue, metadata)
			nodes[workerID] = n
		}
		if status != "" {
			n.Status = status
		}

		if err := r.storeNodes(ctx, nodes); err != nil {
			r.log.Error("register_node: store nodes failed", "error", err)
			return nil
		}
		ok = true
		return nil
	})
	return locked && ok
}

// UnregisterNode flips the node offline and unregisters every route it had
// registered, then drops its node_routes set.
func (r *Registry) UnregisterNode(ctx context.Context, workerID string) bool {
	_, routeIDs, ok := r.snapshotNodeRoutes(ctx, workerID)
	if !ok {
		return false
	}

	if !r.setNodeStatus(ctx, workerID, node.StatusOffline) {
		return false
	}

	for _, rid := range routeIDs {
		method, path, ok := splitRouteID(rid)
		if !ok {
			continue
		}
		r.UnregisterRoute(ctx, path, method, workerID)
	}

	if err := r.store.Delete(ctx, nodeRoutesKey(workerID)); err != nil {
		r.log.Warn("unregister_node: delete node_routes set failed", "error", err)
	}
	return true
}

func (r *Registry) snapshotNodeRoutes(ctx context.Context, workerID string) (*node.Node, []string, bool) {
	nodes, err := r.loadNodes(ctx)
	if err != nil {
		r.log.Error("unregister_node: load nodes failed", "error", err)
		return nil, nil, false
	}
	n, ok := nodes[workerID]
	if !ok {
		return nil, nil, false
	}
	routeIDs := make([]string, 0, len(n.Routes))
	for rid := range n.Routes {
		routeIDs = append(routeIDs, rid)
	}
	return n, routeIDs, true
}

func (r *Registry) setNodeStatus(ctx context.Context, workerID string, status node.Status) bool {
	ok := false
	locked := r.withLock(ctx, func(ctx context.Context) error {
		nodes, err := r.loadNodes(ctx)
		if err != nil {
			r.log.Error("set node status: load nodes failed", "error", err)
			return nil
		}
		n, exists := nodes[workerID]
		if !exists {
			return nil
		}
		n.Status = status
		if err := r.storeNodes(ctx, nodes); err != nil {
			r.log.Error("set node status: store nodes failed", "error", err)
			return nil
		}
		ok = true
		return nil
	})
	return locked && ok
}

// UpdateNodeStatus sets a node's status directly.
func (r *Registry) UpdateNodeStatus(ctx context.Context, workerID string, status node.Status) bool {
	return r.setNodeStatus(ctx, workerID, status)
}

// NodeHeartbeat refreshes a node's LastHeartbeat and promotes it back online
// if it wasn't already.
func (r *Registry) NodeHeartbeat(ctx context.Context, workerID string) bool {
	ok := false
	locked := r.withLock(ctx, func(ctx context.Context) error {
		nodes, err := r.loadNodes(ctx)
		if err != nil {
			r.log.Error("node_heartbeat: load nodes failed", "error", err)
			return nil
		}
		n, exists := nodes[workerID]
		if !exists {
			return nil
		}
		n.Heartbeat()
		if err := r.storeNodes(ctx, nodes); err != nil {
			r.log.Error("node_heartbeat: store nodes failed", "error", err)
			return nil
		}
		ok = true
		return nil
	})
	return locked && ok
}

// GetRoute returns the route for a method/path, if registered.
func (r *Registry) GetRoute(ctx context.Context, path, method string) (*route.Route, bool) {
	routes, err := r.loadRoutes(ctx)
	if err != nil {
		r.log.Error("get_route: load routes failed", "error", err)
		return nil, false
	}
	rt, ok := routes[route.RouteID(method, path)]
	return rt, ok
}

// GetAllRoutes returns every registered route, keyed by route id.
func (r *Registry) GetAllRoutes(ctx context.Context) map[string]*route.Route {
	routes, err := r.loadRoutes(ctx)
	if err != nil {
		r.log.Error("get_all_routes: load routes failed", "error", err)
		return map[string]*route.Route{}
	}
	return routes
}

// GetNode returns a node by worker id, if registered.
func (r *Registry) GetNode(ctx context.Context, workerID string) (*node.Node, bool) {
	nodes, err := r.loadNodes(ctx)
	if err != nil {
		r.log.Error("get_node: load nodes failed", "error", err)
		return nil, false
	}
	n, ok := nodes[workerID]
	return n, ok
}

// GetAllNodes returns every registered node, keyed by worker id.
func (r *Registry) GetAllNodes(ctx context.Context) map[string]*node.Node {
	nodes, err := r.loadNodes(ctx)
	if err != nil {
		r.log.Error("get_all_nodes: load nodes failed", "error", err)
		return map[string]*node.Node{}
	}
	return nodes
}

// CleanInactiveNodes marks every node whose heartbeat is older than maxAge
// as offline and returns how many were reaped.
func (r *Registry) CleanInactiveNodes(ctx context.Context, maxAge time.Duration) int {
	reaped := 0
	r.withLock(ctx, func(ctx context.Context) error {
		nodes, err := r.loadNodes(ctx)
		if err != nil {
			r.log.Error("clean_inactive_nodes: load nodes failed", "error", err)
			return nil
		}

		for _, n := range nodes {
			if !n.IsAlive(maxAge) && n.Status != node.StatusOffline {
				n.Status = node.StatusOffline
				reaped++
			}
		}
		r.metrics.SetActiveNodes(len(nodes))
		if reaped == 0 {
			return nil
		}
		if err := r.storeNodes(ctx, nodes); err != nil {
			r.log.Error("clean_inactive_nodes: store nodes failed", "error", err)
			reaped = 0
			return nil
		}
		r.log.Info("reaped inactive nodes", "count", reaped)
		return nil
	})
	return reaped
}

// GetRouteWorkers returns the live node records for every worker registered
// on a route, used by the dispatcher to build its candidate list.
func (r *Registry) GetRouteWorkers(ctx context.Context, path, method string) []node.Node {
	rt, ok := r.GetRoute(ctx, path, method)
	if !ok {
		return nil
	}
	nodes := r.GetAllNodes(ctx)
	out := make([]node.Node, 0, len(rt.WorkerNodes))
	for workerID := range rt.WorkerNodes {
		if n, ok := nodes[workerID]; ok {
			out = append(out, *n)
		}
	}
	return out
}

// GetRouteTimeout returns the configured timeout for a route, or 5s if the
// route doesn't exist.
func (r *Registry) GetRouteTimeout(ctx context.Context, path, method string) time.Duration {
	rt, ok := r.GetRoute(ctx, path, method)
	if !ok || rt.Timeout <= 0 {
		return 5 * time.Second
	}
	return rt.Timeout
}

func splitRouteID(rid string) (method, path string, ok bool) {
	for i := 0; i < len(rid); i++ {
		if rid[i] == ':' {
			return rid[:i], rid[i+1:], true
		}
	}
	return "", "", false
}
