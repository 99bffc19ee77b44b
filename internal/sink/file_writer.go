package sink

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"resmon/internal/telemetry"
)

// FileWriter appends records to a local NDJSON file. The file is opened and
// closed on every Send; existing content is never truncated.
type FileWriter struct {
	path string
}

// NewFileWriter creates a FileWriter for path.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

// Path returns the target file.
func (f *FileWriter) Path() string { return f.path }

// Send appends rows, one JSON object per line. Failures are returned as is.
func (f *FileWriter) Send(_ context.Context, rows []telemetry.Record) error {
	fh, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	bw := bufio.NewWriter(fh)
	if err := writeNDJSON(bw, rows); err != nil {
		fh.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		fh.Close()
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return fh.Close()
}
