// Package jobstore persists HttpJob records under the shared store, keyed
// by request id, with a bounded lifetime.
package jobstore

import (
	"context"
	"time"

	"github.com/devenwen/callme-gate/internal/domain/job"
	"github.com/devenwen/callme-gate/internal/platform/store"
)

const jobKeyPrefix = "http_job:"

// defaultTTL is applied whenever a caller saves with ttl<=0, matching the
// reference repository's "expire or 60" behavior: a job record is always
// destroyed by TTL expiry, never left to linger indefinitely just because a
// re-save (e.g. MarkRunning, a terminal-state save, or an admin cancel)
// didn't carry an explicit TTL of its own.
const defaultTTL = 60 * time.Second

func jobKey(requestID string) string { return jobKeyPrefix + requestID }

// Repository is the job store's narrow persistence contract: save, load,
// and delete an HttpJob by request id.
type Repository struct {
	store store.Client
}

// NewRepository builds a Repository over the given store.
func NewRepository(s store.Client) *Repository {
	return &Repository{store: s}
}

// Save serializes the job and writes it with the given TTL. ttl<=0 falls
// back to defaultTTL rather than writing the key with no expiration.
func (r *Repository) Save(ctx context.Context, j *job.HttpJob, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	raw, err := j.ToJSON()
	if err != nil {
		return err
	}
	return r.store.Set(ctx, jobKey(j.RequestID), string(raw), ttl)
}

// Load fetches and deserializes a job by request id.
func (r *Repository) Load(ctx context.Context, requestID string) (*job.HttpJob, bool, error) {
	raw, ok, err := r.store.Get(ctx, jobKey(requestID))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	j, err := job.FromJSON([]byte(raw))
	if err != nil {
		return nil, false, err
	}
	return j, true, nil
}

// Delete removes a job record.
func (r *Repository) Delete(ctx context.Context, requestID string) error {
	return r.store.Delete(ctx, jobKey(requestID))
}
