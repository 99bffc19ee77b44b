package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"resmon/internal/telemetry"
)

// ReadRecords decodes every NDJSON record from r.
func ReadRecords(r io.Reader) ([]telemetry.Record, error) {
	dec := json.NewDecoder(r)
	var rows []telemetry.Record
	for {
		var row telemetry.Record
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				return rows, nil
			}
			return rows, fmt.Errorf("record %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
}

// ReadRecordsFile opens a file and decodes its records.
func ReadRecordsFile(path string) ([]telemetry.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRecords(f)
}

// Replay sends rows to w in chunks of at most batchSize, preserving order and
// any batch numbers already recorded. It stops at the first failed chunk and
// returns the number of rows delivered before it.
func Replay(ctx context.Context, rows []telemetry.Record, w telemetry.Writer, batchSize int) (int, error) {
	if batchSize < 1 {
		batchSize = telemetry.DefaultBatchSize
	}
	sent := 0
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		if err := w.Send(ctx, rows[start:end]); err != nil {
			return sent, err
		}
		sent = end
	}
	return sent, nil
}
