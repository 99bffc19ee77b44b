// Package monitor drives resource telemetry across a test session.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"resmon/internal/identity"
	"resmon/internal/resources"
	"resmon/internal/telemetry"
)

// State is the lifecycle position of a Coordinator.
type State int

const (
	Uninitialized State = iota
	Active
	Finalized
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Active:
		return "active"
	case Finalized:
		return "finalized"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Snapshotter reads host resources.
type Snapshotter interface {
	Prime(ctx context.Context)
	Snapshot(ctx context.Context) resources.Snapshot
	Totals(ctx context.Context) resources.Totals
}

// Stats counts delivery outcomes over a session.
type Stats struct {
	Sent    int
	Dropped int
	Batches int
}

// queueSize bounds the batches waiting for the sender. Hooks block only once
// that many sends are outstanding.
const queueSize = 256

type pending struct {
	before resources.Snapshot
	start  time.Time
}

type delivery struct {
	ctx   context.Context
	rows  []telemetry.Record
	batch bool
}

// Coordinator turns test lifecycle callbacks into telemetry records.
// Callbacks must be made from a single goroutine. Records are delivered in
// order by a sender goroutine, so a slow destination never delays the
// callbacks or the measurements they take.
type Coordinator struct {
	writer    telemetry.Writer
	buffer    *telemetry.Buffer
	batchSize int
	snap      Snapshotter
	identity  *identity.Context
	log       *slog.Logger
	now       func() time.Time
	sessionID string

	state   State
	pending map[string]pending
	queue   chan delivery
	done    chan struct{}

	mu    sync.Mutex
	stats Stats
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBatchSize sets the number of test records per batch.
func WithBatchSize(n int) Option {
	return func(c *Coordinator) { c.batchSize = n }
}

// WithSnapshotter replaces the host snapshotter.
func WithSnapshotter(s Snapshotter) Option {
	return func(c *Coordinator) { c.snap = s }
}

// WithIdentity sets the identity merged into records instead of reading the environment.
func WithIdentity(id identity.Context) Option {
	return func(c *Coordinator) { c.identity = &id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock replaces time.Now. Durations are differences of its readings.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(c *Coordinator) { c.sessionID = id }
}

// New creates a Coordinator delivering through w.
func New(w telemetry.Writer, opts ...Option) *Coordinator {
	c := &Coordinator{
		writer:    guarded{w},
		batchSize: telemetry.DefaultBatchSize,
		log:       slog.Default(),
		now:       time.Now,
		pending:   make(map[string]pending),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.identity == nil {
		id := identity.FromEnv()
		c.identity = &id
	}
	if c.snap == nil {
		c.snap = resources.NewHost(resources.DefaultDiskPath, c.log)
	}
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}
	c.buffer = telemetry.NewBuffer(c.batchSize)
	return c
}

// State returns the lifecycle state.
func (c *Coordinator) State() State { return c.state }

// SessionID returns the id stamped on every record.
func (c *Coordinator) SessionID() string { return c.sessionID }

// Stats returns delivery counters. They are final once SessionEnd returned.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// SessionStart primes CPU sampling, starts the sender and queues the
// session_start record unbuffered.
func (c *Coordinator) SessionStart(ctx context.Context) {
	if c.state != Uninitialized {
		c.log.Debug("session start ignored", "state", c.state)
		return
	}
	c.state = Active
	c.queue = make(chan delivery, queueSize)
	c.done = make(chan struct{})
	go c.send()

	c.snap.Prime(ctx)
	rec := telemetry.NewSessionStart(c.now(), c.sessionID, c.snap.Totals(ctx), *c.identity)
	c.deliver(ctx, []telemetry.Record{rec})
}

// at returns t, or the clock reading when t is zero.
func (c *Coordinator) at(t time.Time) time.Time {
	if t.IsZero() {
		return c.now()
	}
	return t
}

// PreRun records the resource baseline for test id. start is when the test
// began; zero means now.
func (c *Coordinator) PreRun(ctx context.Context, id string, start time.Time) {
	if c.state != Active {
		c.log.Debug("pre-run ignored", "test", id, "state", c.state)
		return
	}
	c.pending[id] = pending{before: c.snap.Snapshot(ctx), start: c.at(start)}
}

// PostRun builds the record for test id and flushes a full batch. Tests
// without a baseline are skipped. end is when the test finished; zero means now.
func (c *Coordinator) PostRun(ctx context.Context, id, outcome string, end time.Time) {
	if c.state != Active {
		c.log.Debug("post-run ignored", "test", id, "state", c.state)
		return
	}
	p, ok := c.pending[id]
	if !ok {
		return
	}
	delete(c.pending, id)
	after := c.snap.Snapshot(ctx)
	end = c.at(end)
	c.buffer.Append(telemetry.NewTestRecord(end, c.sessionID, id, outcome, end.Sub(p.start), p.before, after, *c.identity))
	if c.buffer.ShouldFlush() {
		c.flush(ctx)
	}
}

// SessionEnd flushes the remaining records, queues the session_end record and
// waits until the sender delivered everything.
func (c *Coordinator) SessionEnd(ctx context.Context, exitStatus int) {
	if c.state != Active {
		c.log.Debug("session end ignored", "state", c.state)
		return
	}
	if c.buffer.Len() > 0 {
		c.flush(ctx)
	}
	if len(c.pending) > 0 {
		c.log.Debug("discarding unfinished tests", "count", len(c.pending))
		clear(c.pending)
	}
	rec := telemetry.NewSessionEnd(c.now(), c.sessionID, exitStatus, c.snap.Totals(ctx), *c.identity)
	c.deliver(ctx, []telemetry.Record{rec})
	close(c.queue)
	<-c.done
	c.state = Finalized

	s := c.Stats()
	c.log.Debug("session finalized", "sent", s.Sent, "dropped", s.Dropped, "batches", s.Batches)
}

func (c *Coordinator) flush(ctx context.Context) {
	c.buffer.Flush(ctx, queued{c})
}

func (c *Coordinator) deliver(ctx context.Context, rows []telemetry.Record) {
	c.queue <- delivery{ctx: ctx, rows: rows}
}

// send delivers queued rows in order until the queue is closed.
func (c *Coordinator) send() {
	defer close(c.done)
	for d := range c.queue {
		c.account(d, c.writer.Send(d.ctx, d.rows))
	}
}

// account is the single place where delivery failures are logged and dropped.
func (c *Coordinator) account(d delivery, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.batch {
		c.stats.Batches++
	}
	if err != nil {
		c.stats.Dropped += len(d.rows)
		c.log.Warn("dropping rows", "rows", len(d.rows), "error", err)
		return
	}
	c.stats.Sent += len(d.rows)
}

// queued hands flushed batches to the sender.
type queued struct{ c *Coordinator }

func (q queued) Send(ctx context.Context, rows []telemetry.Record) error {
	q.c.queue <- delivery{ctx: ctx, rows: rows, batch: true}
	return nil
}

// guarded converts a panicking writer into an error.
type guarded struct {
	w telemetry.Writer
}

func (g guarded) Send(ctx context.Context, rows []telemetry.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("writer panic: %v", r)
		}
	}()
	return g.w.Send(ctx, rows)
}
