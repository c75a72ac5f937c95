// Package statusmap translates the status vocabularies of the external
// generators into the canonical job lifecycle.
package statusmap

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"contentgen/internal/domain"
)

// ErrUnknownStatus is returned for a status outside the domain vocabulary.
var ErrUnknownStatus = errors.New("unknown status")

// Mapping is the canonical reading of one external status.
type Mapping struct {
	Status   domain.JobStatus
	Progress int
}

func pending() Mapping {
	return Mapping{Status: domain.JobStatusPending}
}

func running(progress int) Mapping {
	return Mapping{Status: domain.JobStatusRunning, Progress: progress}
}

func completed() Mapping {
	return Mapping{Status: domain.JobStatusCompleted, Progress: 100}
}

func failed() Mapping {
	return Mapping{Status: domain.JobStatusFailed}
}

var tables = map[domain.Domain]map[string]Mapping{
	domain.DomainBook: {
		"pending":      pending(),
		"queued":       pending(),
		"initializing": running(10),
		"outlining":    running(25),
		"writing":      running(60),
		"generating":   running(60),
		"formatting":   running(80),
		"saving":       running(90),
		"completed":    completed(),
		"complete":     completed(),
		"done":         completed(),
		"failed":       failed(),
		"error":        failed(),
	},
	domain.DomainImage: {
		"pending":      pending(),
		"queued":       pending(),
		"initializing": running(10),
		"processing":   running(25),
		"generating":   running(60),
		"downloading":  running(75),
		"uploading":    running(90),
		"saving":       running(90),
		"completed":    completed(),
		"succeeded":    completed(),
		"success":      completed(),
		"failed":       failed(),
		"error":        failed(),
	},
	domain.DomainVideo: {
		"pending":      pending(),
		"queued":       pending(),
		"initializing": running(10),
		"generating":   running(25),
		"rendering":    running(50),
		"downloading":  running(60),
		"uploading":    running(90),
		"saving":       running(90),
		"completed":    completed(),
		"succeeded":    completed(),
		"success":      completed(),
		"failed":       failed(),
		"error":        failed(),
		"cancelled":    failed(),
	},
}

// Normalize trims and lower-cases an external status.
func Normalize(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// Map returns the canonical status and default progress of an external status.
func Map(d domain.Domain, status string) (Mapping, error) {
	table, ok := tables[d]
	if !ok {
		return Mapping{}, fmt.Errorf("%w: domain %q", ErrUnknownStatus, d)
	}
	m, ok := table[Normalize(status)]
	if !ok {
		return Mapping{}, fmt.Errorf("%w: %q for %s", ErrUnknownStatus, status, d)
	}
	return m, nil
}

// Vocabulary lists the accepted external statuses of a domain in sorted order.
func Vocabulary(d domain.Domain) []string {
	table := tables[d]
	out := make([]string, 0, len(table))
	for k := range table {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ProgressFor applies an explicit progress report to a mapping. Only RUNNING
// mappings take an override, clamped below completion.
func (m Mapping) ProgressFor(reported *int) int {
	if m.Status != domain.JobStatusRunning || reported == nil {
		return m.Progress
	}
	p := *reported
	if p < 0 {
		p = 0
	}
	if p > 99 {
		p = 99
	}
	return p
}
