package datasource

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"resmon/internal/identity"
	"resmon/internal/resources"
	"resmon/internal/telemetry"
)

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, "ci_test_metrics"); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "for ci_test_metrics.") {
		t.Fatalf("name not rendered:\n%s", out)
	}
	if !strings.Contains(out, "`timestamp` DateTime64(6) `json:$.timestamp`,") {
		t.Fatalf("timestamp column missing:\n%s", out)
	}
	if !strings.Contains(out, "`gh_run_attempt` String `json:$.gh_run_attempt`\n") {
		t.Fatalf("last column must not carry a trailing comma:\n%s", out)
	}
}

func TestRenderRejectsBadName(t *testing.T) {
	for _, name := range []string{"", "1abc", "has space", "x;drop"} {
		if err := Render(&bytes.Buffer{}, name); err == nil {
			t.Fatalf("expected error for %q", name)
		}
	}
}

// Every key a record can carry must have a column and vice versa.
func TestColumnsCoverRecordFields(t *testing.T) {
	one := 1
	full := telemetry.NewTestRecord(time.Unix(0, 0), "s", "pkg::T", "pass", time.Second,
		resources.Snapshot{}, resources.Snapshot{}, identity.Context{})
	full.BatchNum = 1
	full.ExitStatus = &one
	full.Totals = &telemetry.Totals{}

	b, err := json.Marshal(full)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var keys, cols []string
	for k := range m {
		keys = append(keys, k)
	}
	for _, c := range Columns {
		cols = append(cols, c.Name)
	}
	sort.Strings(keys)
	sort.Strings(cols)
	if !reflect.DeepEqual(keys, cols) {
		t.Fatalf("columns %v\nrecord keys %v", cols, keys)
	}
}
