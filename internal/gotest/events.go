// Package gotest adapts the `go test -json` event stream to test lifecycle hooks.
package gotest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Event is one test2json record.
type Event struct {
	Time    time.Time
	Action  string
	Package string  `json:",omitempty"`
	Test    string  `json:",omitempty"`
	Elapsed float64 `json:",omitempty"`
	Output  string  `json:",omitempty"`

	// ImportPath is set on build events, which carry no Package.
	ImportPath string `json:",omitempty"`
}

// Actions emitted by test2json that matter here.
const (
	ActionRun    = "run"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"

	// Compiler output and failures, emitted since Go 1.24.
	ActionBuildOutput = "build-output"
	ActionBuildFail   = "build-fail"
)

// Hooks receives test lifecycle callbacks. *monitor.Coordinator implements it.
// at is the time go test stamped on the event; it is zero when the event
// carried none.
type Hooks interface {
	SessionStart(ctx context.Context)
	PreRun(ctx context.Context, id string, at time.Time)
	PostRun(ctx context.Context, id, outcome string, at time.Time)
	SessionEnd(ctx context.Context, exitStatus int)
}

// NopHooks ignores every callback.
type NopHooks struct{}

func (NopHooks) SessionStart(context.Context)                       {}
func (NopHooks) PreRun(context.Context, string, time.Time)          {}
func (NopHooks) PostRun(context.Context, string, string, time.Time) {}
func (NopHooks) SessionEnd(context.Context, int)                    {}

// NodeID returns the stable identity of a test within a run.
func NodeID(pkg, test string) string {
	return pkg + "::" + test
}

// Options controls how the event stream is echoed.
type Options struct {
	// Out receives the test output. Nil discards it.
	Out io.Writer
	// RawJSON echoes the event stream unchanged instead of the decoded output.
	RawJSON bool
}

// Result summarizes a consumed stream.
type Result struct {
	Tests  int
	Failed bool
}

// ExitStatus mirrors go test: 1 when any package failed, 0 otherwise.
func (r Result) ExitStatus() int {
	if r.Failed {
		return 1
	}
	return 0
}

// Consume reads events from r until EOF, calling PreRun on "run" and PostRun
// on "pass", "fail" and "skip" test events. Compiler output is echoed like
// test output. Lines that are not JSON events are echoed unchanged.
func Consume(ctx context.Context, r io.Reader, hooks Hooks, opts Options) (Result, error) {
	if hooks == nil {
		hooks = NopHooks{}
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	var res Result
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			handleLine(ctx, line, hooks, out, opts.RawJSON, &res)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return res, nil
			}
			return res, fmt.Errorf("read test events: %w", err)
		}
	}
}

func handleLine(ctx context.Context, line []byte, hooks Hooks, out io.Writer, raw bool, res *Result) {
	trimmed := bytes.TrimSpace(line)
	var ev Event
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &ev) != nil || ev.Action == "" {
		out.Write(line)
		return
	}
	if raw {
		out.Write(line)
	} else if ev.Action == ActionOutput || ev.Action == ActionBuildOutput {
		io.WriteString(out, ev.Output)
	}
	switch ev.Action {
	case ActionBuildFail:
		res.Failed = true
	case ActionRun:
		if ev.Test != "" {
			hooks.PreRun(ctx, NodeID(ev.Package, ev.Test), ev.Time)
		}
	case ActionPass, ActionFail, ActionSkip:
		if ev.Test == "" {
			if ev.Action == ActionFail {
				res.Failed = true
			}
			return
		}
		res.Tests++
		hooks.PostRun(ctx, NodeID(ev.Package, ev.Test), ev.Action, ev.Time)
	}
}
