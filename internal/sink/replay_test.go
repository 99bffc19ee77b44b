package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"resmon/internal/telemetry"
)

type collectWriter struct {
	batches [][]telemetry.Record
	failAt  int
}

func (c *collectWriter) Send(_ context.Context, rows []telemetry.Record) error {
	if c.failAt > 0 && len(c.batches)+1 == c.failAt {
		return errors.New("boom")
	}
	c.batches = append(c.batches, append([]telemetry.Record(nil), rows...))
	return nil
}

func TestReadRecords(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows("a", "b") {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	got, err := ReadRecords(&buf)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(got) != 2 || got[1].TestNodeID != "b" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestReadRecordsMalformed(t *testing.T) {
	got, err := ReadRecords(strings.NewReader(`{"event_type":"test"}` + "\n{oops\n"))
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if len(got) != 1 {
		t.Fatalf("expected records before the error to be kept, got %d", len(got))
	}
}

func TestReplayChunks(t *testing.T) {
	cw := &collectWriter{}
	n, err := Replay(context.Background(), rows("a", "b", "c", "d", "e"), cw, 2)
	if err != nil || n != 5 {
		t.Fatalf("Replay = %d, %v", n, err)
	}
	if len(cw.batches) != 3 || len(cw.batches[2]) != 1 || cw.batches[2][0].TestNodeID != "e" {
		t.Fatalf("unexpected batches: %+v", cw.batches)
	}
}

func TestReplayStopsAtFailure(t *testing.T) {
	cw := &collectWriter{failAt: 2}
	n, err := Replay(context.Background(), rows("a", "b", "c"), cw, 1)
	if err == nil || n != 1 {
		t.Fatalf("Replay = %d, %v", n, err)
	}
}
