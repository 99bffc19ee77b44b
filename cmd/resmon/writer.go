package main

import (
	"context"
	"net"
	"strconv"

	"resmon/internal/config"
	"resmon/internal/gotest"
	"resmon/internal/logging"
	"resmon/internal/monitor"
	"resmon/internal/resources"
	"resmon/internal/sink"
	"resmon/internal/telemetry"
)

// newWriter builds the sink selected by cfg. It returns nil when telemetry is off.
func newWriter(ctx context.Context, cfg *config.Config) (telemetry.Writer, error) {
	log := logging.FromContext(ctx)
	switch cfg.Mode() {
	case config.ModeFile:
		return sink.NewFileWriter(cfg.File), nil
	case config.ModeTinybird:
		return sink.NewTinybirdWriter(cfg.Token, cfg.APIURL, cfg.Datasource,
			sink.WithTimeout(cfg.Timeout),
			sink.WithGzip(cfg.Compress),
			sink.WithLogger(log),
		), nil
	case config.ModeGreptime:
		host, port := splitEndpoint(cfg.Greptime.Endpoint, cfg.Greptime.Port)
		return sink.NewGreptimeDBWriter(host, port, cfg.Greptime.Database, cfg.Greptime.Table, log)
	}
	return nil, nil
}

// splitEndpoint accepts "host" or "host:port".
func splitEndpoint(endpoint string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}

// newHooks returns the Coordinator for cfg, or no-op hooks when telemetry is
// off or its destination cannot be set up. The test run goes ahead either way.
func newHooks(ctx context.Context, cfg *config.Config) (gotest.Hooks, *monitor.Coordinator) {
	log := logging.FromContext(ctx)
	w, err := newWriter(ctx, cfg)
	if err != nil {
		log.Warn("telemetry disabled", "destination", cfg.Mode(), "error", err)
		return gotest.NopHooks{}, nil
	}
	if w == nil {
		log.Debug("telemetry off")
		return gotest.NopHooks{}, nil
	}
	c := monitor.New(w,
		monitor.WithBatchSize(cfg.BatchSize),
		monitor.WithSnapshotter(resources.NewHost(cfg.DiskPath, log)),
		monitor.WithLogger(log),
	)
	log.Debug("telemetry on", "destination", cfg.Mode(), "target", target(w), "session", c.SessionID(), "batch_size", cfg.BatchSize)
	return c, c
}

// target names where w delivers, for log lines.
func target(w telemetry.Writer) string {
	switch w := w.(type) {
	case *sink.FileWriter:
		return w.Path()
	case *sink.TinybirdWriter:
		return w.URL()
	}
	return ""
}

func logSummary(ctx context.Context, cfg *config.Config, c *monitor.Coordinator) {
	if c == nil {
		return
	}
	s := c.Stats()
	log := logging.FromContext(ctx)
	if s.Dropped > 0 {
		log.Warn("telemetry incomplete", "destination", cfg.Mode(), "sent", s.Sent, "dropped", s.Dropped)
		return
	}
	log.Info("telemetry delivered", "destination", cfg.Mode(), "records", s.Sent, "batches", s.Batches)
}
