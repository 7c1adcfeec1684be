package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"vidfetch/internal/media"
)

const (
	msgWaiting   = "Waiting for download slot..."
	msgStarting  = "Starting download..."
	msgCompleted = "Download completed successfully!"
	msgFailed    = "Download failed"
	msgShutdown  = "server is shutting down"
	msgInternal  = "internal error during download"
)

// process runs one task to a terminal state. It never leaves the task
// non-terminal unless the record was removed underneath it.
func (m *Manager) process(taskID string, req Request) {
	ctx := m.baseContext()
	if !m.acquireSlot(ctx, taskID) {
		m.failTask(taskID, msgShutdown)
		return
	}
	defer m.releaseSlot()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task_id", taskID).Interface("panic", r).Msg("download worker panicked")
			m.failTask(taskID, msgInternal)
		}
	}()

	if _, err := m.update(taskID, func(t *Task) {
		t.Status = StatusProcessing
		t.Progress = 0
		t.Message = msgStarting
	}); err != nil {
		return
	}

	taskDir, err := m.layout.EnsureTaskDir(taskID)
	if err != nil {
		m.failTask(taskID, "failed to create task dir: "+err.Error())
		return
	}

	downloader := m.currentDownloader()
	if downloader == nil {
		m.failTask(taskID, "no downloader configured")
		return
	}

	result, err := downloader.Download(ctx, media.Request{
		URL:      req.URL,
		FormatID: req.FormatID,
		Quality:  req.Quality,
		DestDir:  taskDir,
	}, func(p media.Progress) {
		m.reportProgress(taskID, p)
	})
	if err != nil {
		log.Warn().Str("task_id", taskID).Err(err).Msg("download failed")
		if rmErr := m.layout.RemoveTaskDir(taskID); rmErr != nil {
			log.Warn().Str("task_id", taskID).Err(rmErr).Msg("cleanup after failure failed")
		}
		m.failTask(taskID, media.Describe(err))
		return
	}

	finished, err := m.update(taskID, func(t *Task) {
		t.Status = StatusCompleted
		t.Progress = maxProgress
		t.Message = msgCompleted
		t.DownloadURL = "/download-file/" + taskID
		t.Filename = result.Filename
		t.FilePath = result.Path
		t.FileSize = humanize.Bytes(uint64(max(result.Size, 0)))
		t.DownloadSpeed = ""
		t.ETA = ""
	})
	if err != nil {
		return
	}
	log.Info().
		Str("task_id", taskID).
		Str("filename", finished.Filename).
		Str("file_size", finished.FileSize).
		Dur("elapsed", finished.UpdatedAt.Sub(finished.CreatedAt)).
		Msg("download completed")
}

// acquireSlot blocks until a download slot is free or ctx is done.
func (m *Manager) acquireSlot(ctx context.Context, taskID string) bool {
	select {
	case m.semaphore <- struct{}{}:
		return true
	default:
	}

	_, _ = m.update(taskID, func(t *Task) { t.Message = msgWaiting })
	log.Debug().Str("task_id", taskID).Msg("waiting for download slot")

	select {
	case m.semaphore <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	if ctx.Err() != nil {
		m.releaseSlot()
		return false
	}
	return true
}

func (m *Manager) releaseSlot() {
	<-m.semaphore
}

func (m *Manager) reportProgress(taskID string, p media.Progress) {
	_, _ = m.update(taskID, func(t *Task) {
		t.Progress = p.Percent
		if p.Message != "" {
			t.Message = p.Message
		}
		if p.TotalBytes > 0 {
			t.DownloadedBytes = p.DownloadedBytes
			t.TotalBytes = p.TotalBytes
		}
		t.DownloadSpeed = p.Speed
		t.ETA = p.ETA
	})
}

// failTask moves the task to failed, keeping its last progress value.
func (m *Manager) failTask(taskID, reason string) {
	if reason == "" {
		reason = msgFailed
	}
	if _, err := m.update(taskID, func(t *Task) {
		t.Status = StatusFailed
		t.Error = reason
		t.Message = msgFailed
		t.DownloadSpeed = ""
		t.ETA = ""
	}); err != nil {
		return
	}
	log.Info().Str("task_id", taskID).Str("error", reason).Msg("download task failed")
}

// update applies mutate through the store. Writes to finished or removed
// tasks are dropped and only logged.
func (m *Manager) update(taskID string, mutate func(*Task)) (Task, error) {
	updated, err := m.store.Update(taskID, mutate)
	switch {
	case err == nil:
	case errors.Is(err, ErrTerminal):
		log.Debug().Str("task_id", taskID).Msg("ignoring update of finished task")
	case errors.Is(err, ErrNotFound):
		log.Warn().Str("task_id", taskID).Msg("task vanished during processing")
	default:
		log.Warn().Str("task_id", taskID).Err(fmt.Errorf("update task: %w", err)).Msg("update failed")
	}
	return updated, err
}
