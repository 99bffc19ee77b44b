package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"resmon/internal/telemetry"
)

// Tinybird Events API defaults.
const (
	DefaultAPIURL     = "https://api.tinybird.co"
	DefaultDatasource = "ci_test_metrics"
	DefaultTimeout    = 10 * time.Second
)

// TinybirdWriter posts records to the Tinybird Events API as NDJSON.
type TinybirdWriter struct {
	url    string
	token  string
	client *http.Client
	gzip   bool
	log    *slog.Logger
}

// TinybirdOption customizes a TinybirdWriter.
type TinybirdOption func(*TinybirdWriter)

// WithHTTPClient replaces the HTTP client. Its Timeout bounds each attempt.
func WithHTTPClient(c *http.Client) TinybirdOption {
	return func(w *TinybirdWriter) { w.client = c }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) TinybirdOption {
	return func(w *TinybirdWriter) {
		if d > 0 {
			w.client.Timeout = d
		}
	}
}

// WithGzip enables gzip request bodies.
func WithGzip(enabled bool) TinybirdOption {
	return func(w *TinybirdWriter) { w.gzip = enabled }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) TinybirdOption {
	return func(w *TinybirdWriter) {
		if l != nil {
			w.log = l
		}
	}
}

// NewTinybirdWriter creates a writer for datasource at apiURL.
func NewTinybirdWriter(token, apiURL, datasource string, opts ...TinybirdOption) *TinybirdWriter {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if datasource == "" {
		datasource = DefaultDatasource
	}
	w := &TinybirdWriter{
		url:    strings.TrimRight(apiURL, "/") + "/v0/events?name=" + url.QueryEscape(datasource),
		token:  token,
		client: &http.Client{Timeout: DefaultTimeout},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// URL returns the ingestion endpoint.
func (w *TinybirdWriter) URL() string { return w.url }

// Send posts rows in one request, retrying once on any failure.
func (w *TinybirdWriter) Send(ctx context.Context, rows []telemetry.Record) error {
	if len(rows) == 0 {
		return nil
	}
	body, err := w.encode(rows)
	if err != nil {
		return err
	}
	return withRetry(ctx, w.log, "tinybird", len(rows), func() error {
		return w.post(ctx, body)
	})
}

func (w *TinybirdWriter) encode(rows []telemetry.Record) ([]byte, error) {
	var buf bytes.Buffer
	if !w.gzip {
		if err := writeNDJSON(&buf, rows); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	zw := gzip.NewWriter(&buf)
	if err := writeNDJSON(zw, rows); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress body: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *TinybirdWriter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/x-ndjson")
	if w.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	msg, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return nil
}
