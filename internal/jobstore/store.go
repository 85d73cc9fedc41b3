// Package jobstore holds the job collection: an immutable history seed
// plus the jobs created or updated while the process runs.
package jobstore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fleetjobs/internal/clock"
	"fleetjobs/internal/logging"
	"fleetjobs/internal/model"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrHubNotFound = errors.New("hub not part of job")
	ErrJobFinished = errors.New("job already finished")
	ErrInvalidJob  = errors.New("invalid job record")
)

type Options struct {
	Clock  clock.Clock
	Logger logrus.FieldLogger
}

// Store records are deep-copied on the way in and out.
type Store struct {
	mu      sync.RWMutex
	seed    map[string]model.JobRecord
	dynamic map[string]model.JobRecord

	clock clock.Clock
	log   logrus.FieldLogger
}

func New(seed []model.JobRecord, opts Options) (*Store, error) {
	if err := validateHistory(seed); err != nil {
		return nil, fmt.Errorf("seed jobs: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	s := &Store{
		seed:    make(map[string]model.JobRecord, len(seed)),
		dynamic: make(map[string]model.JobRecord),
		clock:   opts.Clock,
		log:     logging.OrDiscard(opts.Logger),
	}
	for _, job := range seed {
		s.seed[job.ID] = job.Clone()
	}
	return s, nil
}

// Upsert inserts job or replaces the record with the same id outright.
// Records whose counters do not add up are rejected.
func (s *Store) Upsert(job model.JobRecord) error {
	if err := validateJob(job); err != nil {
		return fmt.Errorf("upsert job: %w: %v", ErrInvalidJob, err)
	}
	s.mu.Lock()
	_, replaced := s.dynamic[job.ID]
	s.dynamic[job.ID] = job.Clone()
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"status":   job.Status,
		"replaced": replaced,
	}).Debug("job stored")
	return nil
}

func (s *Store) FindByID(id string) (model.JobRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.lookupLocked(id)
	if !ok {
		return model.JobRecord{}, false
	}
	return job.Clone(), true
}

func (s *Store) lookupLocked(id string) (model.JobRecord, bool) {
	if job, ok := s.dynamic[id]; ok {
		return job, true
	}
	job, ok := s.seed[id]
	return job, ok
}

// List returns every job, newest start first, ties by id.
func (s *Store) List() []model.JobRecord {
	s.mu.RLock()
	out := make([]model.JobRecord, 0, len(s.seed)+len(s.dynamic))
	for id, job := range s.seed {
		if _, shadowed := s.dynamic[id]; shadowed {
			continue
		}
		out = append(out, job.Clone())
	}
	for _, job := range s.dynamic {
		out = append(out, job.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ApplyHubUpdate records progress reported by one hub. Hub and job
// counters stay consistent; the job finishes once no device is pending
// and fails if any of its hubs failed.
func (s *Store) ApplyHubUpdate(jobID, hubName string, succeeded, failed int) (model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.lookupLocked(jobID)
	if !ok {
		return model.JobRecord{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if current.Status.Terminal() {
		return model.JobRecord{}, fmt.Errorf("%w: %s is %s", ErrJobFinished, jobID, current.Status)
	}
	job := current.Clone()

	idx := -1
	for i, h := range job.HubProgress {
		if strings.EqualFold(h.HubName, strings.TrimSpace(hubName)) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.JobRecord{}, fmt.Errorf("%w: %s on %s", ErrHubNotFound, hubName, jobID)
	}

	now := s.clock.Now().UTC()
	if job.Status == model.StatusScheduled {
		if err := model.TransitionJobStatus(&job, model.StatusRunning); err != nil {
			return model.JobRecord{}, err
		}
		for i := range job.HubProgress {
			if job.HubProgress[i].Status == model.StatusScheduled {
				job.HubProgress[i].Status = model.StatusRunning
			}
		}
		job.AppendEvent(now, model.SeverityStart, "Job started", "")
	}

	hub := &job.HubProgress[idx]
	hub.Record(succeeded, failed)
	switch {
	case hub.Status == model.StatusCompleted && current.HubProgress[idx].Status != model.StatusCompleted:
		job.AppendEvent(now, model.SeveritySuccess, fmt.Sprintf("Hub %s completed", hub.HubName), countsDetail(hub.Succeeded, hub.Failed))
	case hub.Status == model.StatusFailed && current.HubProgress[idx].Status != model.StatusFailed:
		job.AppendEvent(now, model.SeverityError, fmt.Sprintf("Hub %s failed", hub.HubName), countsDetail(hub.Succeeded, hub.Failed))
	}

	job.RollupDevices()
	if job.Devices.Pending == 0 {
		if err := s.finishLocked(&job, now); err != nil {
			return model.JobRecord{}, err
		}
	}

	s.dynamic[job.ID] = job
	s.log.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"hub":       hub.HubName,
		"succeeded": job.Devices.Succeeded,
		"failed":    job.Devices.Failed,
		"pending":   job.Devices.Pending,
		"status":    job.Status,
	}).Debug("hub progress applied")
	return job.Clone(), nil
}

func (s *Store) finishLocked(job *model.JobRecord, now time.Time) error {
	to := model.StatusCompleted
	severity := model.SeveritySuccess
	for _, h := range job.HubProgress {
		if h.Status == model.StatusFailed {
			to = model.StatusFailed
			severity = model.SeverityError
			break
		}
	}
	if err := model.TransitionJobStatus(job, to); err != nil {
		return err
	}
	job.CompletedAt = &now
	job.AppendEvent(now, severity, "Job "+string(to), countsDetail(job.Devices.Succeeded, job.Devices.Failed))
	s.log.WithFields(logrus.Fields{"job_id": job.ID, "status": to}).Info("job finished")
	return nil
}

func countsDetail(succeeded, failed int) string {
	return fmt.Sprintf("%d succeeded, %d failed", succeeded, failed)
}
