package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/model"
)

func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Models:  &memoryModels{data: make(map[string]model.Model)},
		Reports: &memoryReports{data: make(map[string][]model.Report)},
	}
}

type memoryModels struct {
	sync.Mutex

	data map[string]model.Model
}

func (s *memoryModels) Create(_ context.Context, m model.Model) error {
	if m.ID == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[m.ID]; ok {
		return errors.ErrEntityExists
	}
	s.data[m.ID] = m

	return nil
}

func (s *memoryModels) Get(_ context.Context, id string) (model.Model, error) {
	if id == "" {
		return model.Model{}, errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if m, ok := s.data[id]; ok {
		return m, nil
	}

	return model.Model{}, errors.ErrNotFound
}

func (s *memoryModels) Update(_ context.Context, m model.Model) error {
	if m.ID == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[m.ID]; !ok {
		return errors.ErrNotFound
	}
	s.data[m.ID] = m

	return nil
}

// List returns models newest first.
func (s *memoryModels) List(_ context.Context, offset, limit uint64) ([]model.Model, uint64, error) {
	s.Lock()
	defer s.Unlock()

	all := make([]model.Model, 0, len(s.data))
	for _, m := range s.data {
		all = append(all, m)
	}
	slices.SortFunc(all, func(a, b model.Model) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}

		return 1
	})

	total := uint64(len(all))
	if offset >= total {
		return []model.Model{}, total, nil
	}
	end := min(offset+limit, total)

	return all[offset:end], total, nil
}

func (s *memoryModels) Delete(_ context.Context, id string) error {
	if id == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	delete(s.data, id)

	return nil
}

type memoryReports struct {
	sync.Mutex

	data map[string][]model.Report
}

func (s *memoryReports) Append(_ context.Context, r model.Report) error {
	if r.ModelID == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	s.data[r.ModelID] = append(s.data[r.ModelID], r)

	return nil
}

func (s *memoryReports) List(_ context.Context, modelID string) ([]model.Report, error) {
	s.Lock()
	defer s.Unlock()

	return slices.Clone(s.data[modelID]), nil
}

func (s *memoryReports) DeleteByModel(_ context.Context, modelID string) error {
	s.Lock()
	defer s.Unlock()

	delete(s.data, modelID)

	return nil
}
