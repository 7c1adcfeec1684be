package task

import (
	"fmt"
	"os"
	"path/filepath"

	fileutil "vidfetch/internal/file"
)

// Layout resolves where a task's media lives: <dataDir>/tasks/<id>/.
type Layout struct {
	dataDir string
}

func NewLayout(dataDir string) Layout {
	if dataDir == "" {
		dataDir = "downloads"
	}
	return Layout{dataDir: dataDir}
}

// Root is the data dir all task directories live under.
func (l Layout) Root() string {
	return l.dataDir
}

func (l Layout) TaskDir(taskID string) string {
	return filepath.Join(l.dataDir, "tasks", taskID)
}

func (l Layout) EnsureTaskDir(taskID string) (string, error) {
	dir := l.TaskDir(taskID)
	if err := fileutil.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("ensure task dir: %w", err)
	}
	return dir, nil
}

// RemoveTaskDir deletes the task directory and everything in it. A missing
// directory is not an error.
func (l Layout) RemoveTaskDir(taskID string) error {
	if taskID == "" {
		return fmt.Errorf("empty task id: %w", ErrInvalidRequest)
	}
	if err := os.RemoveAll(l.TaskDir(taskID)); err != nil {
		return fmt.Errorf("remove task dir: %w", err)
	}
	return nil
}
