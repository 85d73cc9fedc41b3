// Package groups keeps the saved target groups: named, reusable device
// selections with a cached device count.
package groups

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fleetjobs/internal/clock"
	"fleetjobs/internal/logging"
	"fleetjobs/internal/model"
)

var ErrInvalidGroup = errors.New("invalid group")

// Store lists groups newest first. Every read returns a copy, so a
// caller iterating a listing is unaffected by later creates or deletes.
type Store struct {
	mu     sync.RWMutex
	groups []model.SavedGroup

	clock clock.Clock
	log   logrus.FieldLogger
}

func NewStore(seed []model.SavedGroup, c clock.Clock, log logrus.FieldLogger) *Store {
	if c == nil {
		c = clock.Real()
	}
	return &Store{
		groups: append([]model.SavedGroup(nil), seed...),
		clock:  c,
		log:    logging.OrDiscard(log),
	}
}

func (s *Store) Create(name, conditionText string, deviceCount int) (model.SavedGroup, error) {
	name = strings.TrimSpace(name)
	conditionText = strings.TrimSpace(conditionText)
	if name == "" {
		return model.SavedGroup{}, fmt.Errorf("%w: name is required", ErrInvalidGroup)
	}
	if conditionText == "" {
		return model.SavedGroup{}, fmt.Errorf("%w: condition is required", ErrInvalidGroup)
	}
	if deviceCount < 0 {
		return model.SavedGroup{}, fmt.Errorf("%w: device count must be >= 0, got %d", ErrInvalidGroup, deviceCount)
	}

	g := model.SavedGroup{
		ID:            "grp-" + uuid.NewString(),
		Name:          name,
		ConditionText: conditionText,
		DeviceCount:   deviceCount,
		CreatedAt:     s.clock.Now().UTC(),
	}

	s.mu.Lock()
	next := make([]model.SavedGroup, 0, len(s.groups)+1)
	next = append(next, g)
	next = append(next, s.groups...)
	s.groups = next
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"group_id": g.ID, "devices": deviceCount}).Info("saved group created")
	return g, nil
}

func (s *Store) List() []model.SavedGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.SavedGroup(nil), s.groups...)
}

func (s *Store) FindByID(id string) (model.SavedGroup, bool) {
	id = strings.TrimSpace(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.ID == id {
			return g, true
		}
	}
	return model.SavedGroup{}, false
}

// Delete removes a group by id. Returns false if it was not present.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, g := range s.groups {
		if g.ID != id {
			continue
		}
		next := make([]model.SavedGroup, 0, len(s.groups)-1)
		next = append(next, s.groups[:i]...)
		next = append(next, s.groups[i+1:]...)
		s.groups = next
		s.log.WithField("group_id", id).Info("saved group deleted")
		return true
	}
	return false
}
