package telemetry

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"resmon/internal/identity"
	"resmon/internal/resources"
)

func TestTestRecordJSONShape(t *testing.T) {
	before := resources.Snapshot{CPUPercent: 10, MemAvailableBytes: 100, MemPercent: 50, DiskFreeBytes: 1000, DiskPercent: 20}
	after := resources.Snapshot{CPUPercent: 30, MemAvailableBytes: 90, MemPercent: 55, DiskFreeBytes: 999, DiskPercent: 21}
	ts := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)
	r := NewTestRecord(ts, "s1", "pkg::TestA", "pass", 1234567*time.Microsecond, before, after, identity.Context{RunID: "7"})

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"event_type", "test_nodeid", "timestamp", "duration_s", "cpu_before", "cpu_after",
		"mem_available_before", "mem_available_after", "mem_percent_before", "mem_percent_after",
		"disk_free_before", "disk_free_after", "disk_percent_before", "disk_percent_after", "gh_run_id", "gh_sha"} {
		if _, ok := m[k]; !ok {
			t.Fatalf("missing key %s in %s", k, data)
		}
	}
	for _, k := range []string{"batch_num", "exit_status", "cpu_count", "mem_total_bytes"} {
		if _, ok := m[k]; ok {
			t.Fatalf("unexpected key %s in %s", k, data)
		}
	}
	if m["duration_s"].(float64) != 1.2346 {
		t.Fatalf("duration_s = %v, want 1.2346", m["duration_s"])
	}
	if m["timestamp"] != "2024-05-01T12:00:00.123456+00:00" {
		t.Fatalf("timestamp = %v", m["timestamp"])
	}
}

func TestSessionEndCarriesZeroExitStatus(t *testing.T) {
	r := NewSessionEnd(time.Now(), "s1", 0, resources.Totals{CPUCount: 4, MemTotalBytes: 8, DiskTotalBytes: 16}, identity.Context{})
	data, _ := json.Marshal(r)
	if !strings.Contains(string(data), `"exit_status":0`) {
		t.Fatalf("exit_status missing: %s", data)
	}
	if !strings.Contains(string(data), `"cpu_count":4`) {
		t.Fatalf("totals missing: %s", data)
	}
	start := NewSessionStart(time.Now(), "s1", resources.Totals{}, identity.Context{})
	data, _ = json.Marshal(start)
	if strings.Contains(string(data), "exit_status") {
		t.Fatalf("session_start must not carry exit_status: %s", data)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rows := []Record{
		NewSessionStart(time.Unix(0, 0), "s1", resources.Totals{CPUCount: 2}, identity.Context{SHA: "abc"}),
		NewTestRecord(time.Unix(1, 0), "s1", "pkg::TestB", "fail", time.Second, resources.Snapshot{}, resources.Snapshot{CPUPercent: 1}, identity.Context{}),
		NewSessionEnd(time.Unix(2, 0), "s1", 1, resources.Totals{}, identity.Context{}),
	}
	rows[1].BatchNum = 3
	for _, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var got Record
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !reflect.DeepEqual(got, r) {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, r)
		}
	}
}

func TestRecordTime(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC)
	r := Record{Timestamp: FormatTime(ts)}
	if !r.Time().Equal(ts) {
		t.Fatalf("Time() = %v, want %v", r.Time(), ts)
	}
	if !(Record{Timestamp: "bogus"}).Time().IsZero() {
		t.Fatalf("expected zero time for malformed timestamp")
	}
}
