package task

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is the in-memory task registry. Reads return copies, so callers never
// share a *Task with a running worker.
type Store struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	active int
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		tasks: make(map[string]*Task),
		now:   time.Now,
	}
}

// Create inserts t. CreatedAt and UpdatedAt are set when zero.
func (s *Store) Create(t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("task %s: %w", t.ID, ErrDuplicateID)
	}
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	s.tasks[t.ID] = &t
	if !t.Status.IsTerminal() {
		s.active++
	}
	return nil
}

// Get returns a copy of the task.
func (s *Store) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return *t, nil
}

// Update applies mutate atomically and returns the resulting task.
// Terminal tasks are never mutated. Identity fields are restored after
// mutate runs and progress never moves backwards unless the task failed.
func (s *Store) Update(id string, mutate func(*Task)) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if current.Status.IsTerminal() {
		return *current, fmt.Errorf("task %s (%s): %w", id, current.Status, ErrTerminal)
	}

	next := *current
	mutate(&next)

	next.ID = current.ID
	next.URL = current.URL
	next.FormatID = current.FormatID
	next.Quality = current.Quality
	next.CreatedAt = current.CreatedAt
	next.Progress = min(max(next.Progress, 0), maxProgress)
	if next.Status != StatusFailed && next.Progress < current.Progress {
		next.Progress = current.Progress
	}
	next.UpdatedAt = s.now()

	if next.Status.IsTerminal() {
		s.active--
	}
	s.tasks[id] = &next
	return next, nil
}

// Active returns the number of queued or processing tasks.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// List returns copies of all tasks ordered by creation time.
func (s *Store) List() []Task {
	s.mu.RLock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete removes a terminal task and returns its last state.
func (s *Store) Delete(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if !t.Status.IsTerminal() {
		return *t, fmt.Errorf("task %s: %w", id, ErrTaskActive)
	}
	delete(s.tasks, id)
	return *t, nil
}

// EvictTerminal removes terminal tasks last updated before cutoff.
func (s *Store) EvictTerminal(cutoff time.Time) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []Task
	for id, t := range s.tasks {
		if t.Status.IsTerminal() && t.UpdatedAt.Before(cutoff) {
			evicted = append(evicted, *t)
			delete(s.tasks, id)
		}
	}
	return evicted
}

// Counts returns the number of tasks per status.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := Counts{Total: len(s.tasks)}
	for _, t := range s.tasks {
		switch t.Status {
		case StatusQueued:
			c.Queued++
		case StatusProcessing:
			c.Processing++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}
