// Package webhook reconciles asynchronous generation jobs with the
// completion callbacks of the external workers: it correlates each delivery
// with a job, maps the worker status onto the job lifecycle and materializes
// finished content atomically.
package webhook

import (
	"encoding/json"
	"time"

	"contentgen/internal/domain"
	"contentgen/internal/statusmap"
)

// Event is a decoded and validated webhook delivery.
type Event struct {
	Domain         domain.Domain
	ExternalJobID  string
	Status         string
	Mapping        statusmap.Mapping
	Timestamp      time.Time
	Environment    string
	Progress       *int
	Error          string
	UserID         string
	OrganizationID string
	Result         *Result
}

// Result is the domain-neutral form of a completion payload.
type Result struct {
	Title    string
	Summary  string
	Metadata json.RawMessage
	Items    []domain.Artifact
	Raw      json.RawMessage
}

// Outcome describes what processing an event did.
type Outcome struct {
	Job       *domain.Job
	Status    domain.JobStatus
	Duplicate bool
	Ignored   bool
	Reason    string
}
