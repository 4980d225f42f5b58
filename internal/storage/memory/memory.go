// Package memory is an in-process Store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/internal/storage"
	"github.com/rhyrak/go-allocate/pkg/model"
)

type Store struct {
	mu sync.RWMutex

	attempts     map[string]*model.Attempt
	current      map[string][]model.Placement
	original     map[string][]model.Placement
	enumerations map[string][]enumerate.Row
	artifacts    map[string]map[string][]byte
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		attempts:     make(map[string]*model.Attempt),
		current:      make(map[string][]model.Placement),
		original:     make(map[string][]model.Placement),
		enumerations: make(map[string][]enumerate.Row),
		artifacts:    make(map[string]map[string][]byte),
	}
}

func (s *Store) CreateAttempt(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[a.ID]; ok {
		return errors.Wrap(storage.ErrExists, a.ID)
	}
	cp := *a
	s.attempts[a.ID] = &cp
	return nil
}

func (s *Store) UpdateAttempt(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[a.ID]; !ok {
		return errors.Wrap(storage.ErrNotFound, a.ID)
	}
	cp := *a
	s.attempts[a.ID] = &cp
	return nil
}

func (s *Store) GetAttempt(_ context.Context, id string) (*model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, errors.Wrap(storage.ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ListAttempts(_ context.Context) ([]*model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Attempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func clonePlacements(in []model.Placement) []model.Placement {
	out := make([]model.Placement, len(in))
	for i, p := range in {
		out[i] = model.Placement{
			TargetID:  p.TargetID,
			Units:     append([]int64(nil), p.Units...),
			Resources: append([]int64(nil), p.Resources...),
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

func (s *Store) StorePlacements(_ context.Context, id string, placements []model.Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[id]; !ok {
		return errors.Wrap(storage.ErrNotFound, id)
	}
	s.current[id] = clonePlacements(placements)
	s.original[id] = clonePlacements(placements)
	return nil
}

func (s *Store) Placements(_ context.Context, id string) ([]model.Placement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.attempts[id]; !ok {
		return nil, errors.Wrap(storage.ErrNotFound, id)
	}
	return clonePlacements(s.current[id]), nil
}

// SetCurrent replaces the current placements only, as manual edits do.
func (s *Store) SetCurrent(id string, placements []model.Placement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[id] = clonePlacements(placements)
}

func (s *Store) RevertToOriginal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[id]; !ok {
		return errors.Wrap(storage.ErrNotFound, id)
	}
	s.current[id] = clonePlacements(s.original[id])
	return nil
}

func (s *Store) SaveEnumeration(_ context.Context, id string, rows []enumerate.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enumerations[id] = append([]enumerate.Row(nil), rows...)
	return nil
}

func (s *Store) Enumeration(_ context.Context, id string) ([]enumerate.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.enumerations[id]
	if !ok {
		return nil, errors.Wrapf(storage.ErrNotFound, "enumeration of %s", id)
	}
	return append([]enumerate.Row(nil), rows...), nil
}

func (s *Store) DeleteEnumeration(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.enumerations, id)
	return nil
}

func (s *Store) PurgeEnumerations(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id := range s.enumerations {
		if a, ok := s.attempts[id]; !ok || a.Finished {
			delete(s.enumerations, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) SaveArtifact(_ context.Context, id, format string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifacts[id] == nil {
		s.artifacts[id] = make(map[string][]byte)
	}
	s.artifacts[id][format] = append([]byte(nil), data...)
	return nil
}

func (s *Store) Artifact(_ context.Context, id, format string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.artifacts[id][format]
	if !ok {
		return nil, errors.Wrapf(storage.ErrNotFound, "%s artifact of %s", format, id)
	}
	return append([]byte(nil), data...), nil
}
