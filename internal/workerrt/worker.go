// Package workerrt is the worker-side counterpart to the gateway: a single
// long-running process that owns a version-tagged queue, serves whichever
// routes its handlers were registered for, and executes jobs popped off
// that queue one at a time.
package workerrt

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/devenwen/callme-gate/internal/dispatch"
	"github.com/devenwen/callme-gate/internal/domain/job"
	"github.com/devenwen/callme-gate/internal/jobstore"
	"github.com/devenwen/callme-gate/internal/platform/logger"
	"github.com/devenwen/callme-gate/internal/platform/store"
	"github.com/devenwen/callme-gate/internal/registry"
)

const queuePrefix = "callme_gate#worker_queue:"

// Handler is business logic supplied by the embedding application. Its
// return value becomes the job's response_body on success; a returned error
// becomes the job's error_message on failure. The worker knows nothing about
// what a handler does.
type Handler func(ctx context.Context, j *job.HttpJob) (json.RawMessage, error)

type registeredRoute struct {
	path   string
	method string
}

// Worker is one process: one version tag, one queue, one cooperative
// consumer loop.
type Worker struct {
	registry   *registry.Registry
	repo       *jobstore.Repository
	store      store.Client
	dispatcher *dispatch.Dispatcher
	log        *logger.Logger

	version string
	queue   string

	mu       sync.Mutex
	handlers map[string]Handler
	routes   []registeredRoute

	pollTimeout time.Duration
	idleSleep   time.Duration
	doneCh      chan struct{}
	stoppedCh   chan struct{}
}

// Option configures a Worker at construction time.
type Option func(*Worker)

// WithVersion pins a stable worker_version tag instead of a generated one.
func WithVersion(version string) Option {
	return func(w *Worker) { w.version = version }
}

// WithPollTimeout overrides the 1s blocking-pop tick used by the main loop.
func WithPollTimeout(d time.Duration) Option {
	return func(w *Worker) { w.pollTimeout = d }
}

// NewWorker builds a Worker bound to a registry, job repository, and store.
// If no version is supplied via WithVersion, a worker-<8 hex chars> tag is
// generated, matching the reference's "stable tag, either supplied or
// generated" rule.
func NewWorker(reg *registry.Registry, repo *jobstore.Repository, s store.Client, disp *dispatch.Dispatcher, log *logger.Logger, opts ...Option) *Worker {
	w := &Worker{
		registry:    reg,
		repo:        repo,
		store:       s,
		dispatcher:  disp,
		log:         log,
		handlers:    map[string]Handler{},
		pollTimeout: time.Second,
		idleSleep:   500 * time.Millisecond,
		doneCh:      make(chan struct{}),
		stoppedCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.version == "" {
		w.version = "worker-" + randomHex(4)
	}
	w.queue = queuePrefix + w.version
	w.log = w.log.With("component", "WorkerRuntime", "worker_version", w.version)
	return w
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"[:n*2]
	}
	return hex.EncodeToString(buf)
}

// Version returns the worker's stable version tag. worker_id and version
// are intentionally the same value: one process is one version.
func (w *Worker) Version() string { return w.version }

// Queue returns the store key the worker's main loop consumes from.
func (w *Worker) Queue() string { return w.queue }

func handlerKey(method, path string) string { return fmt.Sprintf("%s:%s", method, path) }

// RegisterHandler binds a handler to a method/path and registers the route
// with the registry under this worker's identity. worker_id and version are
// both set to the worker's own version tag.
func (w *Worker) RegisterHandler(ctx context.Context, path, method string, timeout time.Duration, handler Handler) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	w.mu.Lock()
	w.handlers[handlerKey(method, path)] = handler
	w.routes = append(w.routes, registeredRoute{path: path, method: method})
	w.mu.Unlock()

	ok := w.registry.RegisterRoute(ctx, path, method, w.version, w.version, w.queue, timeout, nil)
	if !ok {
		return fmt.Errorf("workerrt: register route %s %s failed", method, path)
	}
	return nil
}

func (w *Worker) handlerFor(method, path string) (Handler, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	h, ok := w.handlers[handlerKey(method, path)]
	return h, ok
}

// Run executes the worker's main loop until ctx is cancelled or Shutdown is
// called. It never exits because of a single bad job: a handler error or
// panic fails that job and the loop moves on; queue, load and save errors
// and any other recovered panic are logged and the loop continues after a
// short sleep.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.stoppedCh)
	w.log.Info("worker runtime started", "queue", w.queue)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker runtime stopping: context cancelled")
			return
		case <-w.doneCh:
			w.log.Info("worker runtime stopping: shutdown requested")
			return
		default:
		}

		if failed := w.tick(ctx); failed {
			time.Sleep(w.idleSleep)
		}
	}
}

// tick runs one iteration of the main loop. It returns true when the
// iteration hit an unexpected error, signalling Run to back off briefly.
func (w *Worker) tick(ctx context.Context) (hadError bool) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("worker loop panic recovered", "panic", r)
			hadError = true
		}
	}()

	requestID, ok, err := w.store.ListBlockingLeftPop(ctx, w.queue, w.pollTimeout)
	if err != nil {
		w.log.Warn("queue pop failed", "error", err)
		return true
	}
	if !ok {
		return false
	}

	j, found, err := w.repo.Load(ctx, requestID)
	if err != nil {
		w.log.Warn("job load failed", "request_id", requestID, "error", err)
		return true
	}
	if !found {
		w.log.Warn("job not found, skipping", "request_id", requestID)
		return false
	}

	j.MarkRunning()
	if err := w.repo.Save(ctx, j, 0); err != nil {
		w.log.Warn("job save (running) failed", "request_id", requestID, "error", err)
		return true
	}

	handler, ok := w.handlerFor(j.Method, j.Path)
	if !ok {
		j.Fail("no handler")
		w.finish(ctx, j)
		return false
	}

	w.invoke(ctx, j, handler)
	return false
}

func (w *Worker) invoke(ctx context.Context, j *job.HttpJob, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("handler panic", "request_id", j.RequestID, "panic", r)
			j.Fail(fmt.Sprintf("panic: %v", r))
			w.finish(ctx, j)
		}
	}()

	body, err := handler(ctx, j)
	if err != nil {
		j.Fail(err.Error())
		w.finish(ctx, j)
		return
	}
	j.Complete(200, map[string]string{"content-type": "application/json"}, body)
	w.finish(ctx, j)
}

func (w *Worker) finish(ctx context.Context, j *job.HttpJob) {
	if err := w.repo.Save(ctx, j, 0); err != nil {
		w.log.Warn("job save (terminal) failed", "request_id", j.RequestID, "error", err)
	}
	raw, err := j.ToJSON()
	if err != nil {
		w.log.Warn("job serialize for publish failed", "request_id", j.RequestID, "error", err)
		return
	}
	if err := w.dispatcher.PublishResult(ctx, j.RequestID, string(raw)); err != nil {
		w.log.Warn("publish result failed", "request_id", j.RequestID, "error", err)
	}
}

// Shutdown stops the main loop, waiting up to 2s for it to exit, then
// unregisters every route this worker had registered.
func (w *Worker) Shutdown(ctx context.Context) {
	close(w.doneCh)

	select {
	case <-w.stoppedCh:
	case <-time.After(2 * time.Second):
		w.log.Warn("worker runtime did not stop within grace period")
	}

	w.mu.Lock()
	routes := append([]registeredRoute(nil), w.routes...)
	w.mu.Unlock()

	for _, rt := range routes {
		w.registry.UnregisterRoute(ctx, rt.path, rt.method, w.version)
	}
	w.log.Info("worker runtime shut down", "routes_unregistered", len(routes))
}
