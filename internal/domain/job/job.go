// Package job models the unit of work that flows from the gateway to a
// worker and back: a Job record keyed by request id, mutated exclusively by
// the worker that dequeues it.
package job

import (
	"encoding/json"
	"time"
)

// Status is the Job lifecycle state. Transitions are pending -> running ->
// {completed, failed}, or pending -> cancelled.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is the base record shared by every job type. HttpJob embeds it.
type Job struct {
	RequestID  string    `json:"request_id"`
	Status     Status    `json:"status"`
	CreateTime time.Time `json:"create_time"`
	UpdateTime time.Time `json:"update_time"`
}

// Touch bumps UpdateTime, preserving the UpdateTime >= CreateTime invariant.
func (j *Job) Touch() {
	now := time.Now().UTC()
	if now.Before(j.CreateTime) {
		now = j.CreateTime
	}
	j.UpdateTime = now
}

// HttpJob is the Job extension carried through the gateway/worker fabric.
type HttpJob struct {
	Job

	Method      string              `json:"method"`
	Path        string              `json:"path"`
	Headers     map[string]string   `json:"headers,omitempty"`
	QueryParams map[string][]string `json:"query,omitempty"`
	FormData    map[string]string   `json:"form,omitempty"`
	JSONData    json.RawMessage     `json:"json,omitempty"`

	ResponseStatus  int               `json:"response_status,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    json.RawMessage   `json:"response_body,omitempty"`
	ErrorMessage    string            `json:"error,omitempty"`
}

// New builds a pending HttpJob for a freshly-arrived HTTP request.
func New(requestID, method, path string) *HttpJob {
	now := time.Now().UTC()
	return &HttpJob{
		Job: Job{
			RequestID:  requestID,
			Status:     StatusPending,
			CreateTime: now,
			UpdateTime: now,
		},
		Method: method,
		Path:   path,
	}
}

// MarkRunning transitions pending -> running.
func (h *HttpJob) MarkRunning() {
	h.Status = StatusRunning
	h.Touch()
}

// Complete fills the success response fields and transitions to completed.
// Per the "exactly one of response_* or error_message" invariant, it clears
// any previously-set error message.
func (h *HttpJob) Complete(status int, headers map[string]string, body json.RawMessage) {
	h.ResponseStatus = status
	h.ResponseHeaders = headers
	h.ResponseBody = body
	h.ErrorMessage = ""
	h.Status = StatusCompleted
	h.Touch()
}

// Fail records an error message and transitions to failed, clearing any
// response fields so the terminal-state invariant holds.
func (h *HttpJob) Fail(message string) {
	h.ErrorMessage = message
	h.ResponseStatus = 0
	h.ResponseHeaders = nil
	h.ResponseBody = nil
	h.Status = StatusFailed
	h.Touch()
}

// Cancel transitions pending -> cancelled.
func (h *HttpJob) Cancel() {
	h.Status = StatusCancelled
	h.Touch()
}

// Terminal reports whether the job has reached a terminal status.
func (h *HttpJob) Terminal() bool {
	switch h.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ToJSON serializes the HttpJob with RFC3339 (ISO-8601) timestamps, the
// canonical wire format for http_job:{request_id} and job_sync payloads.
func (h *HttpJob) ToJSON() ([]byte, error) {
	return json.Marshal(h)
}

// FromJSON deserializes a payload produced by ToJSON.
func FromJSON(data []byte) (*HttpJob, error) {
	var h HttpJob
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}
