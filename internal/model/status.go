package model

import (
	"errors"
	"fmt"
	"strings"
)

type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

var JobStatuses = []JobStatus{StatusRunning, StatusCompleted, StatusFailed, StatusScheduled}

var ErrInvalidTransition = errors.New("invalid job status transition")

var allowedTransitions = map[JobStatus]map[JobStatus]bool{
	StatusScheduled: {
		StatusScheduled: true,
		StatusRunning:   true,
		StatusFailed:    true, // cancelled before start
	},
	StatusRunning: {
		StatusRunning:   true,
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusCompleted: {
		StatusCompleted: true,
	},
	StatusFailed: {
		StatusFailed: true,
	},
}

func ParseJobStatus(raw string) (JobStatus, error) {
	v := JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !IsKnownStatus(v) {
		return "", fmt.Errorf("unknown job status %q", raw)
	}
	return v, nil
}

func IsKnownStatus(status JobStatus) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func CanTransition(from, to JobStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionJobStatus(job *JobRecord, to JobStatus) error {
	from := job.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %q -> %q (job_id=%s)", ErrInvalidTransition, from, to, job.ID)
	}
	job.Status = to
	return nil
}
