package telemetry

import "context"

// DefaultBatchSize is used when a non-positive batch size is configured.
const DefaultBatchSize = 50

// Writer delivers an ordered batch of records.
type Writer interface {
	Send(ctx context.Context, rows []Record) error
}

// Buffer holds pending test records until a batch is full.
// It is not safe for concurrent use.
type Buffer struct {
	size     int
	rows     []Record
	batchNum int
}

// NewBuffer creates a Buffer flushing every size records.
func NewBuffer(size int) *Buffer {
	if size < 1 {
		size = DefaultBatchSize
	}
	return &Buffer{size: size, rows: make([]Record, 0, size)}
}

// Append adds r at the tail.
func (b *Buffer) Append(r Record) {
	b.rows = append(b.rows, r)
}

// ShouldFlush reports whether the buffer reached its batch size.
func (b *Buffer) ShouldFlush() bool {
	return len(b.rows) >= b.size
}

// Len returns the number of pending records.
func (b *Buffer) Len() int { return len(b.rows) }

// BatchNum returns the number of the last flushed batch, 0 before the first flush.
func (b *Buffer) BatchNum() int { return b.batchNum }

// Flush stamps every pending record with the next batch number, hands them to
// w and empties the buffer. The buffer is emptied even when w fails: a failed
// batch is dropped, never re-queued. It returns the number of rows handed over
// and the error from w.
func (b *Buffer) Flush(ctx context.Context, w Writer) (int, error) {
	if len(b.rows) == 0 {
		return 0, nil
	}
	b.batchNum++
	rows := make([]Record, len(b.rows))
	for i := range b.rows {
		rows[i] = b.rows[i]
		rows[i].BatchNum = b.batchNum
	}
	b.rows = b.rows[:0]
	return len(rows), w.Send(ctx, rows)
}
