// Telemetry record layout shared by every sink
package telemetry

import (
	"math"
	"time"

	"resmon/internal/identity"
	"resmon/internal/resources"
)

// Event types.
const (
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
	EventTest         = "test"
)

// SessionNodeID is the test_nodeid carried by session-level records.
const SessionNodeID = "__session__"

// TimestampLayout renders UTC times as ISO-8601 with microseconds and an explicit offset.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

// Record is one row shipped to a sink. Optional sections are embedded pointers
// so that absent sections are left out of the JSON object entirely.
type Record struct {
	EventType  string `json:"event_type"`
	TestNodeID string `json:"test_nodeid"`
	Timestamp  string `json:"timestamp"`
	SessionID  string `json:"session_id,omitempty"`
	BatchNum   int    `json:"batch_num,omitempty"` // set by Buffer.Flush, starts at 1
	ExitStatus *int   `json:"exit_status,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	*Totals
	*Usage
	identity.Context
}

// Totals is the host capacity section of session records.
type Totals struct {
	CPUCount       int    `json:"cpu_count"`
	MemTotalBytes  uint64 `json:"mem_total_bytes"`
	DiskTotalBytes uint64 `json:"disk_total_bytes"`
}

// Usage is the before/after section of test records.
type Usage struct {
	DurationS          float64 `json:"duration_s"`
	CPUBefore          float64 `json:"cpu_before"`
	CPUAfter           float64 `json:"cpu_after"`
	MemAvailableBefore uint64  `json:"mem_available_before"`
	MemAvailableAfter  uint64  `json:"mem_available_after"`
	MemPercentBefore   float64 `json:"mem_percent_before"`
	MemPercentAfter    float64 `json:"mem_percent_after"`
	DiskFreeBefore     uint64  `json:"disk_free_before"`
	DiskFreeAfter      uint64  `json:"disk_free_after"`
	DiskPercentBefore  float64 `json:"disk_percent_before"`
	DiskPercentAfter   float64 `json:"disk_percent_after"`
}

// Time parses the record timestamp. It returns the zero time when the field is malformed.
func (r Record) Time() time.Time {
	ts, err := time.Parse(TimestampLayout, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// FormatTime renders t in TimestampLayout after converting it to UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// RoundDuration returns d in seconds rounded to four decimal places.
func RoundDuration(d time.Duration) float64 {
	return math.Round(d.Seconds()*1e4) / 1e4
}

func totalsOf(t resources.Totals) *Totals {
	return &Totals{
		CPUCount:       t.CPUCount,
		MemTotalBytes:  t.MemTotalBytes,
		DiskTotalBytes: t.DiskTotalBytes,
	}
}

// NewSessionStart builds the record sent when a test session begins.
func NewSessionStart(now time.Time, sessionID string, totals resources.Totals, id identity.Context) Record {
	return Record{
		EventType:  EventSessionStart,
		TestNodeID: SessionNodeID,
		Timestamp:  FormatTime(now),
		SessionID:  sessionID,
		Totals:     totalsOf(totals),
		Context:    id,
	}
}

// NewSessionEnd builds the record sent when a test session finishes.
func NewSessionEnd(now time.Time, sessionID string, exitStatus int, totals resources.Totals, id identity.Context) Record {
	return Record{
		EventType:  EventSessionEnd,
		TestNodeID: SessionNodeID,
		Timestamp:  FormatTime(now),
		SessionID:  sessionID,
		ExitStatus: &exitStatus,
		Totals:     totalsOf(totals),
		Context:    id,
	}
}

// NewTestRecord builds the record for one completed test.
func NewTestRecord(now time.Time, sessionID, nodeID, outcome string, elapsed time.Duration, before, after resources.Snapshot, id identity.Context) Record {
	return Record{
		EventType:  EventTest,
		TestNodeID: nodeID,
		Timestamp:  FormatTime(now),
		SessionID:  sessionID,
		Outcome:    outcome,
		Usage: &Usage{
			DurationS:          RoundDuration(elapsed),
			CPUBefore:          before.CPUPercent,
			CPUAfter:           after.CPUPercent,
			MemAvailableBefore: before.MemAvailableBytes,
			MemAvailableAfter:  after.MemAvailableBytes,
			MemPercentBefore:   before.MemPercent,
			MemPercentAfter:    after.MemPercent,
			DiskFreeBefore:     before.DiskFreeBytes,
			DiskFreeAfter:      after.DiskFreeBytes,
			DiskPercentBefore:  before.DiskPercent,
			DiskPercentAfter:   after.DiskPercent,
		},
		Context: id,
	}
}
