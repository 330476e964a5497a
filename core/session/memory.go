package session

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore keeps records in process memory. A positive ttl expires records not saved for that long.
func NewMemoryStore(ttl time.Duration) Store {
	return &memoryStore{
		records: make(map[string]Record),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Load returns a copy of the record so callers cannot mutate stored history.
func (m *memoryStore) Load(_ context.Context, key string) (Record, error) {
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	if m.expired(rec) {
		m.mu.Lock()
		delete(m.records, key)
		m.mu.Unlock()
		return Record{}, ErrNotFound
	}
	rec.Session = rec.Session.Clone()
	return rec, nil
}

// Save stores a copy of rec and stamps UpdatedAt.
func (m *memoryStore) Save(_ context.Context, key string, rec Record) error {
	rec.Session = rec.Session.Clone()
	rec.UpdatedAt = m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = rec
	return nil
}

// Delete removes the record for key; a missing record is not an error.
func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *memoryStore) expired(rec Record) bool {
	return m.ttl > 0 && m.now().Sub(rec.UpdatedAt) > m.ttl
}
