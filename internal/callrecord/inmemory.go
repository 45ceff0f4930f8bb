package callrecord

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps records in process for local/dev use and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Save(_ context.Context, record Record) (string, error) {
	record = withDefaults(record)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return record.ID, nil
}

// Recent returns up to limit records, oldest first.
func (s *InMemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]Record, 0, limit)
	out = append(out, s.records[len(s.records)-limit:]...)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func withDefaults(record Record) Record {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now().UTC()
	}
	if record.DurationSeconds == 0 && !record.StartedAt.IsZero() {
		record.DurationSeconds = record.EndedAt.Sub(record.StartedAt).Seconds()
	}
	return record
}
