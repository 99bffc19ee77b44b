// Package resources reads instantaneous host resource usage through gopsutil.
package resources

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// DefaultDiskPath is the mount point sampled when none is configured.
const DefaultDiskPath = "/"

// Snapshot is one instantaneous read of host resources.
type Snapshot struct {
	CPUPercent        float64
	MemAvailableBytes uint64
	MemPercent        float64
	DiskFreeBytes     uint64
	DiskPercent       float64
}

// Totals holds host capacity figures reported with session records.
type Totals struct {
	CPUCount       int
	MemTotalBytes  uint64
	DiskTotalBytes uint64
}

// Host samples the local machine.
type Host struct {
	diskPath string
	log      *slog.Logger
}

// NewHost returns a Host sampling disk usage at diskPath.
func NewHost(diskPath string, log *slog.Logger) *Host {
	if diskPath == "" {
		diskPath = DefaultDiskPath
	}
	if log == nil {
		log = slog.Default()
	}
	return &Host{diskPath: diskPath, log: log}
}

// Prime takes and discards a CPU sample. The CPU percentage is computed
// against the previous sample, so the first one in a process is meaningless.
func (h *Host) Prime(ctx context.Context) {
	if _, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		h.log.Debug("cpu prime failed", "error", err)
	}
}

// Snapshot reads current usage. Fields whose source query fails stay zero.
func (h *Host) Snapshot(ctx context.Context) Snapshot {
	var s Snapshot
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	} else if err != nil {
		h.log.Debug("cpu sample failed", "error", err)
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemAvailableBytes = vm.Available
		s.MemPercent = memPercent(vm.Total, vm.Available)
	} else {
		h.log.Debug("memory sample failed", "error", err)
	}
	if du, err := disk.UsageWithContext(ctx, h.diskPath); err == nil {
		s.DiskFreeBytes = du.Free
		s.DiskPercent = du.UsedPercent
	} else {
		h.log.Debug("disk sample failed", "path", h.diskPath, "error", err)
	}
	return s
}

// Totals reads logical CPU count, total memory and total disk size.
func (h *Host) Totals(ctx context.Context) Totals {
	var t Totals
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		t.CPUCount = n
	} else {
		h.log.Debug("cpu count failed", "error", err)
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		t.MemTotalBytes = vm.Total
	} else {
		h.log.Debug("memory total failed", "error", err)
	}
	if du, err := disk.UsageWithContext(ctx, h.diskPath); err == nil {
		t.DiskTotalBytes = du.Total
	} else {
		h.log.Debug("disk total failed", "path", h.diskPath, "error", err)
	}
	return t
}

// memPercent is the share of memory that is not available, so that it agrees
// with MemAvailableBytes. gopsutil's UsedPercent leaves reclaimable cache out.
func memPercent(total, available uint64) float64 {
	if total == 0 || available >= total {
		return 0
	}
	return float64(total-available) / float64(total) * 100
}
