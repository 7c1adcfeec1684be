package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"vidfetch/internal/media"
	"vidfetch/internal/system"
)

const (
	defaultQuality = "Best Available Quality"
	idAttempts     = 3
)

// Downloader is the media retrieval collaborator run by workers.
type Downloader interface {
	Download(ctx context.Context, req media.Request, report media.ProgressFunc) (media.Result, error)
}

// DownloaderFunc adapts a function to Downloader.
type DownloaderFunc func(ctx context.Context, req media.Request, report media.ProgressFunc) (media.Result, error)

func (f DownloaderFunc) Download(ctx context.Context, req media.Request, report media.ProgressFunc) (media.Result, error) {
	return f(ctx, req, report)
}

// DiskUsageFunc reports how full the filesystem holding path is, in percent.
type DiskUsageFunc func(path string) (float64, error)

// Manager accepts download requests, tracks them in the Store and runs them
// in the background with bounded concurrency.
type Manager struct {
	store       *Store
	layout      Layout
	semaphore   chan struct{}
	maxPending  int
	taskTTL      time.Duration
	diskPressure float64
	youtubeOnly  bool
	startedAt    time.Time

	mu         sync.RWMutex
	downloader Downloader
	baseCtx    context.Context
	diskUsage  DiskUsageFunc

	submitMu  sync.Mutex
	workersWG sync.WaitGroup
}

// NewManager creates a manager with default options suitable for tests.
func NewManager(store *Store, downloader Downloader) *Manager {
	return NewManagerWithOptions(Options{DataDir: "downloads"}, store, downloader)
}

// NewManagerWithOptions creates a manager with provided configuration.
// A nil store is replaced by an empty one.
func NewManagerWithOptions(opts Options, store *Store, downloader Downloader) *Manager {
	if opts.MaxConcurrentTasks <= 0 {
		opts.MaxConcurrentTasks = defaultMaxConcurrent
	}
	if opts.MaxPendingTasks <= 0 {
		opts.MaxPendingTasks = defaultMaxPending
	}
	if opts.MaxPendingTasks < opts.MaxConcurrentTasks {
		opts.MaxPendingTasks = opts.MaxConcurrentTasks
	}
	if opts.TaskTTL <= 0 {
		opts.TaskTTL = defaultTaskTTL
	}
	if opts.DiskPressurePercent <= 0 {
		opts.DiskPressurePercent = defaultDiskPressure
	}
	if store == nil {
		store = NewStore()
	}
	return &Manager{
		store:        store,
		layout:       NewLayout(opts.DataDir),
		semaphore:    make(chan struct{}, opts.MaxConcurrentTasks),
		maxPending:   opts.MaxPendingTasks,
		taskTTL:      opts.TaskTTL,
		diskPressure: opts.DiskPressurePercent,
		youtubeOnly:  opts.YouTubeOnly,
		startedAt:    time.Now(),
		downloader:   downloader,
		baseCtx:      context.Background(),
		diskUsage:    system.DiskUsedPercent,
	}
}

// Submit validates req, records a queued task and starts its worker. It
// returns as soon as the task is stored.
func (m *Manager) Submit(req Request) (Task, error) {
	normalized, err := m.validate(req)
	if err != nil {
		return Task{}, err
	}

	m.submitMu.Lock()
	if m.store.Active() >= m.maxPending {
		m.submitMu.Unlock()
		return Task{}, ErrBusy
	}
	created, err := m.createTask(normalized)
	m.submitMu.Unlock()
	if err != nil {
		return Task{}, err
	}

	log.Info().
		Str("task_id", created.ID).
		Str("url", created.URL).
		Str("format_id", created.FormatID).
		Str("quality", created.Quality).
		Msg("download task created")

	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		m.process(created.ID, normalized)
	}()
	return created, nil
}

// CheckURL trims and validates a media URL against the manager's policy.
func (m *Manager) CheckURL(raw string) (string, error) {
	normalizedURL, err := media.ValidateURL(raw, m.youtubeOnly)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidRequest, media.Describe(err))
	}
	return normalizedURL, nil
}

func (m *Manager) validate(req Request) (Request, error) {
	normalizedURL, err := m.CheckURL(req.URL)
	if err != nil {
		return Request{}, err
	}
	formatID := strings.TrimSpace(req.FormatID)
	if formatID == "" {
		return Request{}, fmt.Errorf("%w: missing format_id", ErrInvalidRequest)
	}
	quality := strings.TrimSpace(req.Quality)
	if quality == "" {
		quality = defaultQuality
	}
	return Request{URL: normalizedURL, FormatID: formatID, Quality: quality}, nil
}

func (m *Manager) createTask(req Request) (Task, error) {
	var lastErr error
	for range idAttempts {
		newTask := Task{
			ID:        uuid.NewString(),
			URL:       req.URL,
			FormatID:  req.FormatID,
			Quality:   req.Quality,
			Status:    StatusQueued,
			Progress:  0,
			Message:   "Task created",
			CreatedAt: time.Now(),
		}
		lastErr = m.store.Create(newTask)
		if lastErr == nil {
			return m.store.Get(newTask.ID)
		}
		if !errors.Is(lastErr, ErrDuplicateID) {
			break
		}
	}
	return Task{}, fmt.Errorf("create task: %w", lastErr)
}

// Get returns the current state of a task.
func (m *Manager) Get(taskID string) (Task, error) {
	return m.store.Get(taskID)
}

// List returns all known tasks, oldest first.
func (m *Manager) List() []Task {
	return m.store.List()
}

// Delete removes a finished task together with its files.
func (m *Manager) Delete(taskID string) (Task, error) {
	removed, err := m.store.Delete(taskID)
	if err != nil {
		return removed, err
	}
	if err := m.layout.RemoveTaskDir(taskID); err != nil {
		log.Warn().Str("task_id", taskID).Err(err).Msg("remove task files failed")
	}
	return removed, nil
}

// Counts returns the number of tasks per status.
func (m *Manager) Counts() Counts {
	return m.store.Counts()
}

// ActiveDownloads is the number of workers currently holding a slot.
func (m *Manager) ActiveDownloads() int {
	return len(m.semaphore)
}

// MaxConcurrent is the number of downloads allowed to run at once.
func (m *Manager) MaxConcurrent() int {
	return cap(m.semaphore)
}

// MaxPending is the limit of queued plus processing tasks.
func (m *Manager) MaxPending() int {
	return m.maxPending
}

// DataDir is the root directory task files are written under.
func (m *Manager) DataDir() string {
	return m.layout.Root()
}

// StartedAt is when the manager was created.
func (m *Manager) StartedAt() time.Time {
	return m.startedAt
}

// IsBusy reports whether new submissions would be rejected.
func (m *Manager) IsBusy() bool {
	return m.store.Active() >= m.maxPending
}

// SetBaseContext sets the context handed to downloads. Cancelling it aborts
// running and queued work; intended for process shutdown only.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// WaitAll blocks until all in-flight task workers finish or the context is done.
// Returns true if all workers finished, false if timed out.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// UseDownloader replaces the media collaborator.
// Not safe for concurrent mutation with running tasks; intended for setup only.
func (m *Manager) UseDownloader(d Downloader) {
	m.mu.Lock()
	m.downloader = d
	m.mu.Unlock()
}

// UseDiskUsage replaces how the janitor measures data dir disk usage.
// Intended for setup only.
func (m *Manager) UseDiskUsage(fn DiskUsageFunc) {
	m.mu.Lock()
	m.diskUsage = fn
	m.mu.Unlock()
}

func (m *Manager) currentDownloader() Downloader {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.downloader
}

func (m *Manager) baseContext() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.baseCtx == nil {
		return context.Background()
	}
	return m.baseCtx
}
