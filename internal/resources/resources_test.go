package resources

import (
	"context"
	"testing"
)

func TestSnapshotValuesInRange(t *testing.T) {
	h := NewHost("", nil)
	ctx := context.Background()
	h.Prime(ctx)
	s := h.Snapshot(ctx)
	if s.CPUPercent < 0 || s.CPUPercent > 100 {
		t.Fatalf("cpu percent out of range: %v", s.CPUPercent)
	}
	if s.MemPercent < 0 || s.MemPercent > 100 {
		t.Fatalf("mem percent out of range: %v", s.MemPercent)
	}
	if s.DiskPercent < 0 || s.DiskPercent > 100 {
		t.Fatalf("disk percent out of range: %v", s.DiskPercent)
	}
}

func TestTotalsNonZero(t *testing.T) {
	tot := NewHost(DefaultDiskPath, nil).Totals(context.Background())
	if tot.CPUCount < 1 {
		t.Fatalf("expected at least one cpu, got %d", tot.CPUCount)
	}
	if tot.MemTotalBytes == 0 {
		t.Fatalf("expected non-zero memory total")
	}
	if tot.DiskTotalBytes == 0 {
		t.Fatalf("expected non-zero disk total")
	}
}

func TestSnapshotMissingDiskPathLeavesZero(t *testing.T) {
	h := NewHost("/definitely/not/a/mount/point", nil)
	s := h.Snapshot(context.Background())
	if s.DiskFreeBytes != 0 || s.DiskPercent != 0 {
		t.Fatalf("expected zero disk fields, got %+v", s)
	}
	if s.MemAvailableBytes == 0 {
		t.Fatalf("memory fields should still be populated")
	}
}

func TestMemPercentFromAvailable(t *testing.T) {
	cases := []struct {
		total, available uint64
		want             float64
	}{
		{1000, 250, 75},
		{1000, 1000, 0},
		{1000, 0, 100},
		{0, 0, 0},
		{1000, 1200, 0},
	}
	for _, c := range cases {
		if got := memPercent(c.total, c.available); got != c.want {
			t.Fatalf("memPercent(%d, %d) = %v, want %v", c.total, c.available, got, c.want)
		}
	}
}
