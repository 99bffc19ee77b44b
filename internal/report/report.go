// Package report summarizes recorded telemetry for a terminal.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/reflow/truncate"

	"resmon/internal/telemetry"
)

// DefaultTop is the number of rows shown per ranking.
const DefaultTop = 10

// TestStat is the per-test view used in rankings.
type TestStat struct {
	NodeID    string
	Outcome   string
	DurationS float64
	// MemDropBytes is how much available memory shrank while the test ran.
	MemDropBytes int64
	CPUAfter     float64
}

// Summary aggregates the records of one or more sessions.
type Summary struct {
	Sessions   int
	ExitStatus *int // from the last session_end seen
	Tests      int
	Outcomes   map[string]int
	DurationS  float64
	Totals     *telemetry.Totals
	Slowest    []TestStat
	MemoryHogs []TestStat
}

// Summarize ranks test records by duration and memory drop, keeping at most
// top entries in each ranking.
func Summarize(rows []telemetry.Record, top int) Summary {
	if top < 1 {
		top = DefaultTop
	}
	s := Summary{Outcomes: map[string]int{}}
	var tests []TestStat
	for _, r := range rows {
		switch r.EventType {
		case telemetry.EventSessionStart:
			s.Sessions++
			if r.Totals != nil {
				s.Totals = r.Totals
			}
		case telemetry.EventSessionEnd:
			s.ExitStatus = r.ExitStatus
		case telemetry.EventTest:
			if r.Usage == nil {
				continue
			}
			outcome := r.Outcome
			if outcome == "" {
				outcome = "unknown"
			}
			s.Tests++
			s.Outcomes[outcome]++
			s.DurationS += r.DurationS
			tests = append(tests, TestStat{
				NodeID:       r.TestNodeID,
				Outcome:      outcome,
				DurationS:    r.DurationS,
				MemDropBytes: int64(r.MemAvailableBefore) - int64(r.MemAvailableAfter),
				CPUAfter:     r.CPUAfter,
			})
		}
	}

	s.Slowest = rank(tests, top, func(a, b TestStat) bool { return a.DurationS > b.DurationS })
	s.MemoryHogs = rank(tests, top, func(a, b TestStat) bool { return a.MemDropBytes > b.MemDropBytes })
	return s
}

func rank(tests []TestStat, top int, less func(a, b TestStat) bool) []TestStat {
	out := append([]TestStat(nil), tests...)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	if len(out) > top {
		out = out[:top]
	}
	return out
}

// Options controls rendering.
type Options struct {
	// Width is the terminal width; 0 means 100 columns.
	Width int
	// Color enables styled output.
	Color bool
}

var outcomeOrder = []string{"pass", "fail", "skip"}

// Render writes the summary header followed by the two ranking tables.
func Render(w io.Writer, s Summary, opts Options) error {
	width := opts.Width
	if width <= 0 {
		width = 100
	}
	nameWidth := max(width-50, 20)

	title := lipgloss.NewStyle()
	header := lipgloss.NewStyle().Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	fail := lipgloss.NewStyle()
	if opts.Color {
		title = title.Bold(true)
		header = header.Bold(true).Foreground(lipgloss.Color("12"))
		fail = fail.Foreground(lipgloss.Color("9"))
	}

	var b strings.Builder
	b.WriteString(title.Render(headline(s)))
	b.WriteString("\n")
	if s.Totals != nil {
		fmt.Fprintf(&b, "host: %d cpus, %s memory, %s disk\n",
			s.Totals.CPUCount, formatBytes(int64(s.Totals.MemTotalBytes)), formatBytes(int64(s.Totals.DiskTotalBytes)))
	}

	style := func(stats []TestStat) table.StyleFunc {
		return func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if row >= 0 && row < len(stats) && stats[row].Outcome == "fail" {
				return cell.Inherit(fail)
			}
			return cell
		}
	}
	name := func(id string) string {
		return truncate.StringWithTail(id, uint(nameWidth), "…")
	}

	if len(s.Slowest) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("slowest", "outcome", "duration", "cpu after").
			StyleFunc(style(s.Slowest))
		for _, st := range s.Slowest {
			t.Row(name(st.NodeID), st.Outcome, strconv.FormatFloat(st.DurationS, 'f', 4, 64)+"s", strconv.FormatFloat(st.CPUAfter, 'f', 1, 64)+"%")
		}
		b.WriteString(t.String())
		b.WriteString("\n")
	}
	if len(s.MemoryHogs) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("memory", "outcome", "available drop").
			StyleFunc(style(s.MemoryHogs))
		for _, st := range s.MemoryHogs {
			t.Row(name(st.NodeID), st.Outcome, formatBytes(st.MemDropBytes))
		}
		b.WriteString(t.String())
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func headline(s Summary) string {
	status := "unknown"
	if s.ExitStatus != nil {
		status = strconv.Itoa(*s.ExitStatus)
	}
	parts := make([]string, 0, len(s.Outcomes))
	for _, o := range outcomeOrder {
		parts = append(parts, fmt.Sprintf("%s %d", o, s.Outcomes[o]))
	}
	var extra []string
	for o, n := range s.Outcomes {
		if o != "pass" && o != "fail" && o != "skip" {
			extra = append(extra, fmt.Sprintf("%s %d", o, n))
		}
	}
	sort.Strings(extra)
	parts = append(parts, extra...)
	return fmt.Sprintf("sessions %d, exit status %s, %d tests (%s), %.4fs in tests",
		s.Sessions, status, s.Tests, strings.Join(parts, ", "), s.DurationS)
}

func formatBytes(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%s%d B", sign, n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%s%.1f %ciB", sign, float64(n)/float64(div), "KMGTPE"[exp])
}
