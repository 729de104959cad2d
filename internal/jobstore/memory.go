package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a Store kept entirely in process memory. It backs tests
// and the "memory" backend for throwaway runs.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (m *MemoryStore) Create(ctx context.Context, job *Job) error {
	if err := validateForCreate(job); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return ErrDuplicateID
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(job), nil
}

func (m *MemoryStore) ClaimNextPending(ctx context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *Job
	for _, job := range m.jobs {
		if job.Status != StatusPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) ||
			(job.CreatedAt.Equal(oldest.CreatedAt) && job.ID < oldest.ID) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	oldest.Status = StatusProcessing
	oldest.StartedAt = &now
	oldest.UpdatedAt = now
	return cloneJob(oldest), nil
}

func (m *MemoryStore) Update(ctx context.Context, job *Job) error {
	if err := validateForCreate(job); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[job.ID]
	if !ok {
		return nil
	}
	job.CreatedAt = stored.CreatedAt
	job.UpdatedAt = time.Now().UTC()
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		matched = append(matched, cloneJob(job))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (m *MemoryStore) ResetProcessing(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	now := time.Now().UTC()
	for _, job := range m.jobs {
		if job.Status != StatusProcessing {
			continue
		}
		job.Status = StatusPending
		job.StartedAt = nil
		job.UpdatedAt = now
		count++
	}
	return count, nil
}

func (m *MemoryStore) Health(ctx context.Context) (HealthSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var summary HealthSummary
	for _, job := range m.jobs {
		summary.Total++
		switch job.Status {
		case StatusPending:
			summary.Pending++
		case StatusProcessing:
			summary.Processing++
		case StatusCompleted:
			summary.Completed++
		case StatusFailed:
			summary.Failed++
		}
	}
	return summary, nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneJob(job *Job) *Job {
	cp := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		cp.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
