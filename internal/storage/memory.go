// Package storage holds the in-memory record store and the blob abstraction
// used for file bytes. Records track conversion state; blobs hold the actual
// uploaded and converted payloads.
package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/image2doc/image2doc/internal/model"
)

var (
	// ErrNotFound is exported so callers can compare with errors.Is.
	ErrNotFound = errors.New("file not found")
)

// MemoryStore keeps file records in a map guarded by an RWMutex. Reads vastly
// outnumber writes in the API path, so the read/write split pays off.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]*model.FileRecord
	order []string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string]*model.FileRecord),
	}
}

// Save inserts or replaces a record, stamping CreatedAt on first insert.
func (m *MemoryStore) Save(record *model.FileRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if _, ok := m.files[record.ID]; !ok {
		m.order = append(m.order, record.ID)
	}
	m.files[record.ID] = record
}

// Update applies fn to the record under the write lock so compound
// transitions (status plus progress plus message) stay atomic.
func (m *MemoryStore) Update(id string, fn func(*model.FileRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.files[id]
	if !ok {
		return ErrNotFound
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateStatus updates status and message.
func (m *MemoryStore) UpdateStatus(id string, status model.FileStatus, msg string) error {
	return m.Update(id, func(rec *model.FileRecord) {
		rec.Status = status
		rec.Message = msg
	})
}

// Get returns a copy of the record so callers cannot mutate internal state.
func (m *MemoryStore) Get(id string) (*model.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns copies of every record in insertion order.
func (m *MemoryStore) List() []*model.FileRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.FileRecord, 0, len(m.order))
	for _, id := range m.order {
		if rec, ok := m.files[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Delete removes a record and returns a copy of what was removed.
func (m *MemoryStore) Delete(id string) (*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.files, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return rec.Clone(), nil
}

// Clear removes every record and returns copies of what was removed.
func (m *MemoryStore) Clear() []*model.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.FileRecord, 0, len(m.order))
	for _, id := range m.order {
		if rec, ok := m.files[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	m.files = make(map[string]*model.FileRecord)
	m.order = nil
	return out
}

// Count returns the number of stored records.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
