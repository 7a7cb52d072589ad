// Package route models a registered HTTP route and the set of worker nodes
// willing to serve it.
package route

import (
	"sort"
	"strings"
	"time"
)

// RouteID canonicalizes a method/path pair into the identifier used as the
// registry's map key and in the route_nodes/node_routes set keys.
func RouteID(method, path string) string {
	return strings.ToUpper(method) + ":" + path
}

// WorkerDescriptor is the subset of a Node's identity a Route keeps about
// each worker registered against it, duplicated here so route lookups don't
// require a join against the node registry on the hot dispatch path.
type WorkerDescriptor struct {
	WorkerID string            `json:"worker_id"`
	Version  string            `json:"version"`
	Queue    string            `json:"queue"`
	Metadata map[string]string `json:"metadata,omitempty"`
	AddedAt  time.Time         `json:"added_at"`
}

// Route is the registry's record of one dispatchable endpoint.
type Route struct {
	Path        string                      `json:"path"`
	Method      string                      `json:"method"`
	Timeout     time.Duration               `json:"timeout"`
	WorkerNodes map[string]WorkerDescriptor `json:"worker_nodes"`
}

// New constructs an empty Route for the given method/path.
func New(method, path string, timeout time.Duration) *Route {
	return &Route{
		Path:        path,
		Method:      strings.ToUpper(method),
		Timeout:     timeout,
		WorkerNodes: map[string]WorkerDescriptor{},
	}
}

// ID returns the route's canonical registry key.
func (r *Route) ID() string {
	return RouteID(r.Method, r.Path)
}

// AddWorker registers a worker descriptor against the route, overwriting any
// prior descriptor for the same worker id (re-registration on restart).
func (r *Route) AddWorker(d WorkerDescriptor) {
	if r.WorkerNodes == nil {
		r.WorkerNodes = map[string]WorkerDescriptor{}
	}
	if d.AddedAt.IsZero() {
		d.AddedAt = time.Now().UTC()
	}
	r.WorkerNodes[d.WorkerID] = d
}

// RemoveWorker drops a worker from the route's candidate set.
func (r *Route) RemoveWorker(workerID string) {
	delete(r.WorkerNodes, workerID)
}

// Versions returns the distinct, sorted set of versions among the route's
// registered workers.
func (r *Route) Versions() []string {
	seen := map[string]bool{}
	for _, w := range r.WorkerNodes {
		seen[w.Version] = true
	}
	versions := make([]string, 0, len(seen))
	for v := range seen {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// HasWorkers reports whether any worker is currently registered for the
// route, independent of that worker's liveness.
func (r *Route) HasWorkers() bool {
	return len(r.WorkerNodes) > 0
}
