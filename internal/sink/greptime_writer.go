package sink

import (
	"context"
	"log/slog"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"resmon/internal/telemetry"
)

// sessionExitUnknown fills exit_status for session_start rows.
const sessionExitUnknown = -1

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes test records to a GreptimeDB table and session
// records to a companion "<table>_sessions" table.
type GreptimeDBWriter struct {
	client greptimeClient
	table  string
	log    *slog.Logger
}

// NewGreptimeDBWriter connects to GreptimeDB over gRPC.
func NewGreptimeDBWriter(host string, port int, database, tableName string, log *slog.Logger) (*GreptimeDBWriter, error) {
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if tableName == "" {
		tableName = DefaultDatasource
	}
	if log == nil {
		log = slog.Default()
	}
	return &GreptimeDBWriter{client: client, table: tableName, log: log}, nil
}

type column struct {
	name  string
	kind  types.ColumnType
	tag   bool
	value func(telemetry.Record) any
}

func str(f func(telemetry.Record) string) func(telemetry.Record) any {
	return func(r telemetry.Record) any { return f(r) }
}

func usage(r telemetry.Record) telemetry.Usage {
	if r.Usage == nil {
		return telemetry.Usage{}
	}
	return *r.Usage
}

func totals(r telemetry.Record) telemetry.Totals {
	if r.Totals == nil {
		return telemetry.Totals{}
	}
	return *r.Totals
}

var identityColumns = []column{
	{name: "gh_repository", kind: types.STRING, tag: true, value: str(func(r telemetry.Record) string { return r.Repository })},
	{name: "gh_ref_name", kind: types.STRING, tag: true, value: str(func(r telemetry.Record) string { return r.RefName })},
	{name: "gh_workflow", kind: types.STRING, tag: true, value: str(func(r telemetry.Record) string { return r.Workflow })},
	{name: "gh_job", kind: types.STRING, tag: true, value: str(func(r telemetry.Record) string { return r.Job })},
	{name: "gh_run_id", kind: types.STRING, value: str(func(r telemetry.Record) string { return r.RunID })},
	{name: "gh_sha", kind: types.STRING, value: str(func(r telemetry.Record) string { return r.SHA })},
	{name: "gh_actor", kind: types.STRING, value: str(func(r telemetry.Record) string { return r.Actor })},
	{name: "gh_run_attempt", kind: types.STRING, value: str(func(r telemetry.Record) string { return r.RunAttempt })},
}

var testColumns = append([]column{
	{name: "test_nodeid", kind: types.STRING, tag: true, value: str(func(r telemetry.Record) string { return r.TestNodeID })},
	{name: "session_id", kind: types.STRING, value: str(func(r telemetry.Record) string { return r.SessionID })},
	{name: "outcome", kind: types.STRING, value: str(func(r telemetry.Record) string { return r.Outcome })},
	{name: "batch_num", kind: types.INT64, value: func(r telemetry.Record) any { return int64(r.BatchNum) }},
	{name: "duration_s", kind: types.FLOAT64, value: func(r telemetry.Record) any { return usage(r).DurationS }},
	{name: "cpu_before", kind: types.FLOAT64, value: func(r telemetry.Record) any { return usage(r).CPUBefore }},
	{name: "cpu_after", kind: types.FLOAT64, value: func(r telemetry.Record) any { return usage(r).CPUAfter }},
	{name: "mem_available_before", kind: types.UINT64, value: func(r telemetry.Record) any { return usage(r).MemAvailableBefore }},
	{name: "mem_available_after", kind: types.UINT64, value: func(r telemetry.Record) any { return usage(r).MemAvailableAfter }},
	{name: "mem_percent_before", kind: types.FLOAT64, value: func(r telemetry.Record) any { return usage(r).MemPercentBefore }},
	{name: "mem_percent_after", kind: types.FLOAT64, value: func(r telemetry.Record) any { return usage(r).MemPercentAfter }},
	{name: "disk_free_before", kind: types.UINT64, value: func(r telemetry.Record) any { return usage(r).DiskFreeBefore }},
	{name: "disk_free_after", kind: types.UINT64, value: func(r telemetry.Record) any { return usage(r).DiskFreeAfter }},
	{name: "disk_percent_before", kind: types.FLOAT64, value: func(r telemetry.Record) any { return usage(r).DiskPercentBefore }},
	{name: "disk_percent_after", kind: types.FLOAT64, value: func(r telemetry.Record) any { return usage(r).DiskPercentAfter }},
}, identityColumns...)

var sessionColumns = append([]column{
	{name: "event_type", kind: types.STRING, tag: true, value: str(func(r telemetry.Record) string { return r.EventType })},
	{name: "session_id", kind: types.STRING, value: str(func(r telemetry.Record) string { return r.SessionID })},
	{name: "exit_status", kind: types.INT64, value: func(r telemetry.Record) any {
		if r.ExitStatus == nil {
			return int64(sessionExitUnknown)
		}
		return int64(*r.ExitStatus)
	}},
	{name: "cpu_count", kind: types.INT64, value: func(r telemetry.Record) any { return int64(totals(r).CPUCount) }},
	{name: "mem_total_bytes", kind: types.UINT64, value: func(r telemetry.Record) any { return totals(r).MemTotalBytes }},
	{name: "disk_total_bytes", kind: types.UINT64, value: func(r telemetry.Record) any { return totals(r).DiskTotalBytes }},
}, identityColumns...)

func buildTable(name string, cols []column, rows []telemetry.Record) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, err
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.kind)
		} else {
			err = tbl.AddFieldColumn(c.name, c.kind)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	for _, r := range rows {
		values := make([]any, 0, len(cols)+1)
		for _, c := range cols {
			values = append(values, c.value(r))
		}
		ts := r.Time()
		if ts.IsZero() {
			ts = time.Now()
		}
		values = append(values, ts)
		if err := tbl.AddRow(values...); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// Send writes rows in a single request, retrying once on failure.
func (w *GreptimeDBWriter) Send(ctx context.Context, rows []telemetry.Record) error {
	var tests, sessions []telemetry.Record
	for _, r := range rows {
		if r.EventType == telemetry.EventTest {
			tests = append(tests, r)
		} else {
			sessions = append(sessions, r)
		}
	}
	var tables []*table.Table
	if len(tests) > 0 {
		tbl, err := buildTable(w.table, testColumns, tests)
		if err != nil {
			return err
		}
		tables = append(tables, tbl)
	}
	if len(sessions) > 0 {
		tbl, err := buildTable(w.table+"_sessions", sessionColumns, sessions)
		if err != nil {
			return err
		}
		tables = append(tables, tbl)
	}
	if len(tables) == 0 {
		return nil
	}
	return withRetry(ctx, w.log, "greptimedb", len(rows), func() error {
		_, err := w.client.Write(ctx, tables...)
		return err
	})
}
