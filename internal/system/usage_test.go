package system

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSample(t *testing.T) {
	u, err := Sample(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Greater(t, u.MemoryPercent, 0.0)
	assert.LessOrEqual(t, u.MemoryPercent, 100.0)
	assert.Greater(t, u.AvailableMemory, uint64(0))
	assert.GreaterOrEqual(t, u.DiskPercent, 0.0)
	assert.LessOrEqual(t, u.DiskPercent, 100.0)
}

func TestSampleMissingPath(t *testing.T) {
	u, err := Sample(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	assert.Zero(t, u.DiskPercent)
	assert.Greater(t, u.MemoryPercent, 0.0)
}

func TestDiskUsedPercent(t *testing.T) {
	pct, err := DiskUsedPercent(t.TempDir())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pct, 0.0)

	_, err = DiskUsedPercent(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
