package stubs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookshelf/internal/models"
	"bookshelf/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu          sync.RWMutex
	collections map[string][]models.Record
	now         func() time.Time
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		collections: make(map[string][]models.Record),
		now:         time.Now,
	}
}

// SetClock overrides the time source used for created/updated dates
func (m *MockDB) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Initialize is a no-op for the mock DB
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// List returns all records of a collection in creation order
func (m *MockDB) List(ctx context.Context, collection string) ([]models.Record, error) {
	return m.Filter(ctx, collection, nil, "")
}

// Filter returns matching records of a collection
func (m *MockDB) Filter(ctx context.Context, collection string, match map[string]any, sortKey string) ([]models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]models.Record, 0, len(m.collections[collection]))
	for _, r := range m.collections[collection] {
		records = append(records, cloneRecord(r))
	}
	return storage.FilterRecords(records, match, sortKey), nil
}

// Create stores a new record
func (m *MockDB) Create(ctx context.Context, collection, createdBy string, fields map[string]any) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	r := models.Record{
		ID:          uuid.NewString(),
		CreatedBy:   createdBy,
		CreatedDate: now,
		UpdatedDate: now,
		Fields:      storage.MergeFields(nil, fields),
	}
	m.collections[collection] = append(m.collections[collection], r)
	return cloneRecord(r), nil
}

// Update merges fields into an existing record
func (m *MockDB) Update(ctx context.Context, collection, id string, fields map[string]any) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.collections[collection] {
		if r.ID != id {
			continue
		}
		r.Fields = storage.MergeFields(r.Fields, fields)
		r.UpdatedDate = m.now().UTC()
		m.collections[collection][i] = r
		return cloneRecord(r), nil
	}
	return models.Record{}, fmt.Errorf("%s %s: %w", collection, id, storage.ErrNotFound)
}

// Delete removes a record
func (m *MockDB) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.collections[collection]
	for i, r := range records {
		if r.ID == id {
			m.collections[collection] = append(records[:i:i], records[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s %s: %w", collection, id, storage.ErrNotFound)
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}

func cloneRecord(r models.Record) models.Record {
	r.Fields = storage.MergeFields(nil, r.Fields)
	return r
}
