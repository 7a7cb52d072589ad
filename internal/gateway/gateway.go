// Package gateway is the Gateway Adapter: it turns an inbound HTTP request
// into a dispatched job, blocks for the worker's rendezvous result, and
// renders it back to the caller. It also exposes the administrative
// endpoints over the route registry and job repository.
package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/devenwen/callme-gate/internal/dispatch"
	"github.com/devenwen/callme-gate/internal/domain/job"
	"github.com/devenwen/callme-gate/internal/domain/route"
	"github.com/devenwen/callme-gate/internal/http/response"
	"github.com/devenwen/callme-gate/internal/jobstore"
	"github.com/devenwen/callme-gate/internal/platform/apperrors"
	"github.com/devenwen/callme-gate/internal/platform/logger"
	"github.com/devenwen/callme-gate/internal/registry"
	"github.com/devenwen/callme-gate/internal/strategy"
)

const (
	headerAPIVersion    = "X-Api-Version"
	headerRequestID     = "X-Request-Id"
	headerWorkerID      = "X-Worker-Id"
	headerWorkerVersion = "X-Worker-Version"

	defaultJobTTL = 60 * time.Second
)

// Adapter wires the registry, dispatcher, and job repository onto gin.
type Adapter struct {
	registry *registry.Registry
	disp     *dispatch.Dispatcher
	repo     *jobstore.Repository
	log      *logger.Logger
	jobTTL   time.Duration
}

// NewAdapter builds a Gateway Adapter. jobTTL is the TTL applied to the
// initial job save (spec's "ttl from decorator argument, default 60s");
// a value <= 0 falls back to the default.
func NewAdapter(reg *registry.Registry, disp *dispatch.Dispatcher, repo *jobstore.Repository, log *logger.Logger, jobTTL time.Duration) *Adapter {
	if jobTTL <= 0 {
		jobTTL = defaultJobTTL
	}
	return &Adapter{registry: reg, disp: disp, repo: repo, log: log, jobTTL: jobTTL}
}

// Handle implements the 11-step dispatch algorithm for any method/path the
// registry advertises.
func (a *Adapter) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	method := c.Request.Method
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}

	requestID := a.disp.GenerateRequestID()
	c.Writer.Header().Set(headerRequestID, requestID)
	c.Set("request_id", requestID)

	j := job.New(requestID, method, path)
	j.Headers = flattenHeader(c.Request.Header)
	j.QueryParams = map[string][]string(c.Request.URL.Query())
	if err := a.bindBody(c, j); err != nil {
		response.Error(c, http.StatusInternalServerError, "read_body_failed", err)
		return
	}

	if _, ok := a.registry.GetRoute(ctx, path, method); !ok {
		response.Error(c, http.StatusNotFound, "no_route", errNoRoute(method, path))
		return
	}
	workers := a.registry.GetRouteWorkers(ctx, path, method)
	if len(workers) == 0 {
		response.Error(c, http.StatusNotFound, "no_worker", errNoWorker(method, path))
		return
	}

	if err := a.repo.Save(ctx, j, a.jobTTL); err != nil {
		a.log.Error("gateway: save job failed", "request_id", requestID, "error", err)
		response.Error(c, http.StatusInternalServerError, "save_job_failed", err)
		return
	}

	routingCtx := strategy.Context{RouteID: route.RouteID(method, path)}
	if v := c.Request.Header.Get(headerAPIVersion); v != "" {
		routingCtx.Version = v
	}

	dispatched, worker, err := a.disp.DispatchJob(ctx, requestID, path, method, routingCtx)
	if err != nil {
		a.log.Error("gateway: dispatch failed", "request_id", requestID, "error", err)
		response.Error(c, http.StatusInternalServerError, "dispatch_failed", err)
		return
	}
	if !dispatched {
		response.Error(c, http.StatusNotFound, "no_worker", errNoWorker(method, path))
		return
	}

	timeout := a.registry.GetRouteTimeout(ctx, path, method)
	payload, ok, err := a.disp.WaitForResult(ctx, requestID, timeout)
	if err != nil {
		a.log.Error("gateway: wait for result failed", "request_id", requestID, "error", err)
		response.Error(c, http.StatusInternalServerError, "wait_failed", err)
		return
	}
	if !ok {
		response.Error(c, http.StatusGatewayTimeout, "timeout", errTimeout(requestID))
		return
	}

	result, err := job.FromJSON([]byte(payload))
	if err != nil {
		a.log.Error("gateway: malformed result", "request_id", requestID, "error", err)
		response.Error(c, http.StatusInternalServerError, "malformed_result", err)
		return
	}

	if result.Status == job.StatusFailed {
		response.Error(c, http.StatusInternalServerError, "handler_error", errHandler(result.ErrorMessage))
		return
	}

	c.Writer.Header().Set(headerWorkerID, worker.WorkerID)
	c.Writer.Header().Set(headerWorkerVersion, worker.Version)
	for k, v := range result.ResponseHeaders {
		c.Writer.Header().Set(k, v)
	}

	status := result.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	if len(result.ResponseBody) == 0 {
		response.JSON(c, status, gin.H{"message": "ok", "request_id": requestID})
		return
	}
	c.Data(status, "application/json", result.ResponseBody)
}

func (a *Adapter) bindBody(c *gin.Context, j *job.HttpJob) error {
	if c.Request.Body == nil {
		return nil
	}
	ct := c.Request.Header.Get("Content-Type")
	switch {
	case contentTypeIs(ct, "application/json"):
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return err
		}
		if len(raw) > 0 {
			j.JSONData = json.RawMessage(raw)
		}
	case contentTypeIs(ct, "application/x-www-form-urlencoded"), contentTypeIs(ct, "multipart/form-data"):
		if err := c.Request.ParseForm(); err != nil {
			return err
		}
		form := map[string]string{}
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				form[k] = v[0]
			}
		}
		j.FormData = form
	}
	return nil
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func contentTypeIs(header, want string) bool {
	if header == "" {
		return false
	}
	if i := strings.IndexByte(header, ';'); i >= 0 {
		header = header[:i]
	}
	return strings.EqualFold(strings.TrimSpace(header), want)
}

func errNoRoute(method, path string) error {
	return fmt.Errorf("%w: %s %s", apperrors.ErrNoRoute, method, path)
}

func errNoWorker(method, path string) error {
	return fmt.Errorf("%w: %s %s", apperrors.ErrNoWorker, method, path)
}

func errTimeout(requestID string) error {
	return fmt.Errorf("%w: request %s", apperrors.ErrTimeout, requestID)
}

func errHandler(message string) error {
	if message == "" {
		message = "handler failed"
	}
	return fmt.Errorf("%s", message)
}

func errJobNotFound(requestID string) error {
	return fmt.Errorf("job not found: %s", requestID)
}

func errNodeNotFound(workerID string) error {
	return fmt.Errorf("node not found: %s", workerID)
}
