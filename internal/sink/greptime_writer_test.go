package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"resmon/internal/identity"
	"resmon/internal/logging"
	"resmon/internal/resources"
	"resmon/internal/telemetry"
)

type mockGreptimeClient struct {
	tables []*table.Table
	calls  int
	fail   int
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.calls++
	if m.calls <= m.fail {
		return nil, errors.New("unavailable")
	}
	m.tables = tables
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeWriterSplitsTables(t *testing.T) {
	id := identity.Context{Repository: "org/repo"}
	input := []telemetry.Record{
		telemetry.NewSessionStart(time.Unix(0, 0), "s", resources.Totals{CPUCount: 2}, id),
		telemetry.NewTestRecord(time.Unix(1, 0), "s", "pkg::TestA", "pass", time.Second, resources.Snapshot{}, resources.Snapshot{}, id),
		telemetry.NewTestRecord(time.Unix(2, 0), "s", "pkg::TestB", "fail", time.Second, resources.Snapshot{}, resources.Snapshot{}, id),
	}
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, table: "ci_test_metrics", log: logging.Discard()}
	if err := w.Send(context.Background(), input); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(m.tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(m.tables))
	}
	tests := m.tables[0].GetRows()
	if len(tests.Rows) != 2 {
		t.Fatalf("expected 2 test rows, got %d", len(tests.Rows))
	}
	if got := tests.Rows[1].Values[0].GetStringValue(); got != "pkg::TestB" {
		t.Fatalf("test_nodeid = %s, want pkg::TestB", got)
	}
	sessions := m.tables[1].GetRows()
	if len(sessions.Rows) != 1 {
		t.Fatalf("expected 1 session row, got %d", len(sessions.Rows))
	}
	if got := sessions.Rows[0].Values[0].GetStringValue(); got != telemetry.EventSessionStart {
		t.Fatalf("event_type = %s", got)
	}
}

func TestGreptimeWriterRetriesOnce(t *testing.T) {
	m := &mockGreptimeClient{fail: 1}
	w := &GreptimeDBWriter{client: m, table: "t", log: logging.Discard()}
	if err := w.Send(context.Background(), rows("a")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", m.calls)
	}

	m = &mockGreptimeClient{fail: 5}
	w.client = m
	if err := w.Send(context.Background(), rows("a")); err == nil {
		t.Fatalf("expected error")
	}
	if m.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", m.calls)
	}
}
