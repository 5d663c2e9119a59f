package repository

import (
	"context"
	"sync"
	"time"

	"automation-hub/backend/pkg/models"
)

// MemorySystemStore stores systems in memory for local development and tests.
type MemorySystemStore struct {
	mu      sync.RWMutex
	systems map[string]*models.System
}

func NewMemorySystemStore() *MemorySystemStore {
	return &MemorySystemStore{systems: make(map[string]*models.System)}
}

func (s *MemorySystemStore) Create(_ context.Context, system *models.System) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.systems[system.Slug]; ok {
		return ErrSlugExists
	}
	s.systems[system.Slug] = cloneSystem(system)
	return nil
}

func (s *MemorySystemStore) GetBySlug(_ context.Context, slug string) (*models.System, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	system, ok := s.systems[slug]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSystem(system), nil
}

func (s *MemorySystemStore) List(_ context.Context, filter SystemFilter) ([]*models.System, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.System, 0, len(s.systems))
	for _, system := range s.systems {
		if filter.Status != "" && system.Status != filter.Status {
			continue
		}
		if filter.Category != "" && system.Category != filter.Category {
			continue
		}
		out = append(out, cloneSystem(system))
	}
	return out, nil
}

func (s *MemorySystemStore) Update(_ context.Context, system *models.System) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.systems[system.Slug]; !ok {
		return ErrNotFound
	}
	clone := cloneSystem(system)
	clone.UpdatedAt = time.Now().UTC()
	s.systems[system.Slug] = clone
	return nil
}

func (s *MemorySystemStore) Delete(_ context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.systems[slug]; !ok {
		return ErrNotFound
	}
	delete(s.systems, slug)
	return nil
}

func cloneSystem(system *models.System) *models.System {
	if system == nil {
		return nil
	}
	clone := *system
	if system.EndpointURL != nil {
		url := *system.EndpointURL
		clone.EndpointURL = &url
	}
	return &clone
}

// MemoryJobStore stores jobs in memory for local development and tests.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*models.Job)}
}

func (s *MemoryJobStore) Create(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryJobStore) Progress(_ context.Context, id, status string, partial map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if models.TerminalStatus(job.Status) {
		return ErrJobTerminal
	}
	if job.Result == nil {
		job.Result = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		job.Result[k] = v
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryJobStore) Fail(_ context.Context, id, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if models.TerminalStatus(job.Status) {
		return ErrJobTerminal
	}
	job.Status = models.JobStatusFailed
	job.Error = errMsg
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneJob(job *models.Job) *models.Job {
	if job == nil {
		return nil
	}
	clone := *job
	clone.Payload = append([]byte(nil), job.Payload...)
	if job.Result != nil {
		clone.Result = make(map[string]any, len(job.Result))
		for k, v := range job.Result {
			clone.Result[k] = v
		}
	}
	return &clone
}
