package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusCompleted, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusRunning, JobStatusRunning, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusCompleted, JobStatusCompleted, true},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusCompleted, JobStatusRunning, false},
		{JobStatusFailed, JobStatusCompleted, false},
		{JobStatusFailed, JobStatusFailed, false},
		{JobStatusFailed, JobStatusRunning, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestJobTransitionRejectsLeavingTerminal(t *testing.T) {
	job := &Job{ID: "job-1", Status: JobStatusCompleted}
	err := job.Transition(JobStatusFailed)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Status != JobStatusCompleted {
		t.Fatalf("status changed to %s", job.Status)
	}
}

func TestSupersededBy(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	job := &Job{}
	if !job.SupersededBy(now) {
		t.Fatal("job without events should accept any event")
	}
	job.LastEventAt = &now
	if job.SupersededBy(now) {
		t.Fatal("event with equal timestamp must not supersede")
	}
	if !job.SupersededBy(now.Add(time.Second)) {
		t.Fatal("newer event should supersede")
	}
}

func TestParseDomain(t *testing.T) {
	for _, in := range []string{"book", "BOOKS", " Image ", "videos"} {
		if _, err := ParseDomain(in); err != nil {
			t.Fatalf("ParseDomain(%q) error: %v", in, err)
		}
	}
	if _, err := ParseDomain("blog"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
