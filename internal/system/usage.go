// Package system samples host memory and disk usage.
package system

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Usage is a snapshot of host memory and of the filesystem holding a path.
type Usage struct {
	MemoryPercent   float64
	AvailableMemory uint64
	DiskPercent     float64
	AvailableDisk   uint64
}

// Sample reads memory and disk usage for path. A failing source leaves its
// fields zero and is reported in the joined error.
func Sample(ctx context.Context, path string) (Usage, error) {
	var (
		u    Usage
		errs []error
	)
	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory usage: %w", err))
	} else {
		u.MemoryPercent = vm.UsedPercent
		u.AvailableMemory = vm.Available
	}
	if du, err := disk.UsageWithContext(ctx, path); err != nil {
		errs = append(errs, fmt.Errorf("disk usage of %s: %w", path, err))
	} else {
		u.DiskPercent = du.UsedPercent
		u.AvailableDisk = du.Free
	}
	return u, errors.Join(errs...)
}

// DiskUsedPercent returns how full the filesystem holding path is.
func DiskUsedPercent(path string) (float64, error) {
	du, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("disk usage of %s: %w", path, err)
	}
	return du.UsedPercent, nil
}
