package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devenwen/callme-gate/internal/domain/job"
	"github.com/devenwen/callme-gate/internal/domain/node"
	"github.com/devenwen/callme-gate/internal/http/response"
)

// Health reports liveness. A long-running gateway process has nothing else
// to check beyond "the process is up and handling requests".
func (a *Adapter) Health(c *gin.Context) {
	response.OK(c, gin.H{"status": "ok"})
}

// ListRoutes returns every registered route, keyed by route id.
func (a *Adapter) ListRoutes(c *gin.Context) {
	routes := a.registry.GetAllRoutes(c.Request.Context())
	response.OK(c, gin.H{"routes": routes})
}

// GetJob returns a persisted job record by request id.
func (a *Adapter) GetJob(c *gin.Context) {
	id := c.Param("id")
	j, ok, err := a.repo.Load(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "load_job_failed", err)
		return
	}
	if !ok {
		response.Error(c, http.StatusNotFound, "job_not_found", errJobNotFound(id))
		return
	}
	response.OK(c, gin.H{"job": j})
}

// CancelJob marks a job cancelled and re-saves it, if still present. The job
// record is exclusively owned by its worker once dequeued (per the
// concurrency model), so cancellation here only affects jobs a worker has
// not yet picked up.
func (a *Adapter) CancelJob(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	j, ok, err := a.repo.Load(ctx, id)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "load_job_failed", err)
		return
	}
	if !ok {
		response.Error(c, http.StatusNotFound, "job_not_found", errJobNotFound(id))
		return
	}
	if j.Status == job.StatusPending {
		j.Cancel()
		if err := a.repo.Save(ctx, j, 0); err != nil {
			response.Error(c, http.StatusInternalServerError, "cancel_job_failed", err)
			return
		}
	}
	response.OK(c, gin.H{"job": j})
}

// ListNodes returns every registered node, keyed by worker id.
func (a *Adapter) ListNodes(c *gin.Context) {
	nodes := a.registry.GetAllNodes(c.Request.Context())
	response.OK(c, gin.H{"nodes": nodes})
}

// GetNode returns a single node by worker id.
func (a *Adapter) GetNode(c *gin.Context) {
	id := c.Param("id")
	n, ok := a.registry.GetNode(c.Request.Context(), id)
	if !ok {
		response.Error(c, http.StatusNotFound, "node_not_found", errNodeNotFound(id))
		return
	}
	response.OK(c, gin.H{"node": n})
}

type setNodeStatusBody struct {
	Status string `json:"status" binding:"required"`
}

// SetNodeStatus updates a node's status directly, e.g. for a manual drain
// before a planned worker shutdown.
func (a *Adapter) SetNodeStatus(c *gin.Context) {
	id := c.Param("id")
	var body setNodeStatusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	status := node.Status(body.Status)
	if !a.registry.UpdateNodeStatus(c.Request.Context(), id, status) {
		response.Error(c, http.StatusNotFound, "node_not_found", errNodeNotFound(id))
		return
	}
	response.OK(c, gin.H{"status": "updated"})
}

// NodeHeartbeat refreshes a node's last-seen timestamp and promotes it back
// online, per the worker runtime's periodic heartbeat call.
func (a *Adapter) NodeHeartbeat(c *gin.Context) {
	id := c.Param("id")
	if !a.registry.NodeHeartbeat(c.Request.Context(), id) {
		response.Error(c, http.StatusNotFound, "node_not_found", errNodeNotFound(id))
		return
	}
	response.OK(c, gin.H{"status": "ok"})
}
