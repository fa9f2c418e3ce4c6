// Package sink defines the append-only destination for bad-user records.
package sink

import (
	"context"
	"sync"

	"github.com/okian/botspot/internal/domain/model"
)

// Sink is an append-only tabular destination. Appends must be idempotent
// tolerant: upstream emits effectively once, but a crash between emit and
// ack may repeat a row, and that is acceptable downstream.
type Sink interface {
	// Append writes one record. Never overwrites existing rows.
	Append(ctx context.Context, rec model.BadUserRecord) error

	// Close releases the destination.
	Close() error
}

// Memory is an in-process sink for tests and local runs.
type Memory struct {
	mu   sync.Mutex
	rows []model.BadUserRecord
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Append stores the record.
func (m *Memory) Append(_ context.Context, rec model.BadUserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rec)
	return nil
}

// Records returns a copy of everything appended so far.
func (m *Memory) Records() []model.BadUserRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.BadUserRecord(nil), m.rows...)
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
