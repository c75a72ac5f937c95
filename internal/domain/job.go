package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Domain enumerates the content domains that report back through webhooks.
type Domain string

const (
	DomainBook  Domain = "BOOK"
	DomainImage Domain = "IMAGE"
	DomainVideo Domain = "VIDEO"
)

// Domains lists every supported domain in a stable order.
var Domains = []Domain{DomainBook, DomainImage, DomainVideo}

// ParseDomain accepts the canonical name or a lower-case alias.
func ParseDomain(v string) (Domain, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BOOK", "BOOKS":
		return DomainBook, nil
	case "IMAGE", "IMAGES":
		return DomainImage, nil
	case "VIDEO", "VIDEOS":
		return DomainVideo, nil
	}
	return "", fmt.Errorf("%w: unknown domain %q", ErrValidation, v)
}

// Label is the human readable name of the content produced by the domain.
func (d Domain) Label() string {
	switch d {
	case DomainBook:
		return "book"
	case DomainImage:
		return "image set"
	case DomainVideo:
		return "video set"
	}
	return strings.ToLower(string(d))
}

// JobStatus enumerates the canonical job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// IsTerminal reports whether no further lifecycle work happens after the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Correlation records how a webhook event was matched to its job.
type Correlation string

const (
	CorrelationDirect      Correlation = "direct"
	CorrelationAdopted     Correlation = "adopted"
	CorrelationSynthesized Correlation = "synthesized"
)

// Job tracks one asynchronous generation request.
type Job struct {
	ID             string
	Domain         Domain
	ExternalJobID  string
	Status         JobStatus
	Progress       int
	OwnerID        string
	OrganizationID string
	InputData      json.RawMessage
	Result         json.RawMessage
	Error          string
	Correlation    Correlation
	LastEventAt    *time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CanTransition implements the job state machine. Non-terminal jobs may move
// anywhere except back to PENDING from RUNNING. A COMPLETED job only accepts a
// new completion (regeneration); every other move out of a terminal state is
// rejected.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusPending || to == JobStatusRunning || to == JobStatusCompleted || to == JobStatusFailed
	case JobStatusRunning:
		return to == JobStatusRunning || to == JobStatusCompleted || to == JobStatusFailed
	case JobStatusCompleted:
		return to == JobStatusCompleted
	}
	return false
}

// Transition moves the job to the target status if the state machine allows it.
func (j *Job) Transition(to JobStatus) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: job %s %s -> %s", ErrInvalidTransition, j.ID, j.Status, to)
	}
	j.Status = to
	return nil
}

// SupersededBy reports whether an event stamped at eventAt is newer than the
// last event already applied to the job.
func (j *Job) SupersededBy(eventAt time.Time) bool {
	if j.LastEventAt == nil {
		return true
	}
	return eventAt.After(*j.LastEventAt)
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.InputData = append(json.RawMessage(nil), j.InputData...)
	c.Result = append(json.RawMessage(nil), j.Result...)
	c.LastEventAt = cloneTime(j.LastEventAt)
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
