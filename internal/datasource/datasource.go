// Package datasource renders the Tinybird datasource definition that matches
// the JSON layout of telemetry records.
package datasource

import (
	_ "embed"
	"fmt"
	"io"
	"regexp"
	"text/template"
)

//go:embed ci_test_metrics.datasource.tmpl
var definition string

// Column is one schema entry. Name is both the column and the JSON path.
type Column struct {
	Name string
	Type string
}

// Columns follows the field order of telemetry.Record.
var Columns = []Column{
	{"event_type", "LowCardinality(String)"},
	{"test_nodeid", "String"},
	{"timestamp", "DateTime64(6)"},
	{"session_id", "Nullable(String)"},
	{"batch_num", "Nullable(Int32)"},
	{"exit_status", "Nullable(Int16)"},
	{"outcome", "LowCardinality(Nullable(String))"},
	{"cpu_count", "Nullable(UInt16)"},
	{"mem_total_bytes", "Nullable(UInt64)"},
	{"disk_total_bytes", "Nullable(UInt64)"},
	{"duration_s", "Nullable(Float64)"},
	{"cpu_before", "Nullable(Float32)"},
	{"cpu_after", "Nullable(Float32)"},
	{"mem_available_before", "Nullable(UInt64)"},
	{"mem_available_after", "Nullable(UInt64)"},
	{"mem_percent_before", "Nullable(Float32)"},
	{"mem_percent_after", "Nullable(Float32)"},
	{"disk_free_before", "Nullable(UInt64)"},
	{"disk_free_after", "Nullable(UInt64)"},
	{"disk_percent_before", "Nullable(Float32)"},
	{"disk_percent_after", "Nullable(Float32)"},
	{"gh_run_id", "String"},
	{"gh_sha", "String"},
	{"gh_ref_name", "String"},
	{"gh_workflow", "String"},
	{"gh_job", "String"},
	{"gh_actor", "String"},
	{"gh_repository", "String"},
	{"gh_run_attempt", "String"},
}

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Render writes the definition for the datasource called name.
func Render(w io.Writer, name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid datasource name %q", name)
	}
	funcMap := template.FuncMap{
		"last": func(i int) bool { return i == len(Columns)-1 },
	}
	t, err := template.New("datasource").Funcs(funcMap).Parse(definition)
	if err != nil {
		return err
	}
	return t.Execute(w, struct {
		Name    string
		Columns []Column
	}{name, Columns})
}
