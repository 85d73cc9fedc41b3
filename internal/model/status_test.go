package model

import (
	"errors"
	"testing"
)

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from JobStatus
		to   JobStatus
	}{
		{StatusScheduled, StatusRunning},
		{StatusScheduled, StatusFailed},
		{StatusRunning, StatusCompleted},
		{StatusRunning, StatusFailed},
		{StatusRunning, StatusRunning},
		{StatusCompleted, StatusCompleted},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from JobStatus
		to   JobStatus
	}{
		{StatusCompleted, StatusRunning},
		{StatusFailed, StatusRunning},
		{StatusRunning, StatusScheduled},
		{StatusScheduled, StatusCompleted},
		{"not_a_state", StatusRunning},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionJobStatus_BlocksIllegalTransition(t *testing.T) {
	job := JobRecord{ID: "job-1", Status: StatusCompleted}

	err := TransitionJobStatus(&job, StatusRunning)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("status changed on illegal transition: %q", job.Status)
	}
}

func TestParseJobStatusAndType(t *testing.T) {
	if s, err := ParseJobStatus(" Running "); err != nil || s != StatusRunning {
		t.Fatalf("ParseJobStatus = %q, %v", s, err)
	}
	if _, err := ParseJobStatus("paused"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if jt, err := ParseJobType("CERT_REVOCATION"); err != nil || jt != JobTypeCertRevocation {
		t.Fatalf("ParseJobType = %q, %v", jt, err)
	}
	if _, err := ParseJobType("reboot"); err == nil {
		t.Fatal("expected error for unknown job type")
	}
}
