package storage

import (
	"testing"
	"time"

	"bookshelf/internal/models"

	"github.com/stretchr/testify/assert"
)

func record(id string, created time.Time, fields map[string]any) models.Record {
	return models.Record{ID: id, CreatedBy: "alice@example.com", CreatedDate: created, UpdatedDate: created, Fields: fields}
}

func TestMatches(t *testing.T) {
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := record("r1", base, map[string]any{
		"status":       "Read",
		"year":         float64(2024),
		"participants": []any{"bob@example.com", "carol@example.com"},
	})

	assert.True(t, Matches(r, nil))
	assert.True(t, Matches(r, map[string]any{"status": "Read"}))
	assert.True(t, Matches(r, map[string]any{"year": 2024}), "numbers compare by value")
	assert.True(t, Matches(r, map[string]any{"created_by": "alice@example.com", "id": "r1"}))
	assert.True(t, Matches(r, map[string]any{"participants": "carol@example.com"}))
	assert.False(t, Matches(r, map[string]any{"participants": "dave@example.com"}))
	assert.False(t, Matches(r, map[string]any{"status": "Reading"}))
	assert.False(t, Matches(r, map[string]any{"missing": "x"}))
}

func TestFilterRecords_Sort(t *testing.T) {
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	records := []models.Record{
		record("a", base, map[string]any{"page_number": 30.0}),
		record("b", base.Add(time.Minute), map[string]any{"page_number": 10.0}),
		record("c", base.Add(2*time.Minute), map[string]any{"page_number": 20.0}),
		record("d", base.Add(3*time.Minute), map[string]any{}),
	}

	asc := FilterRecords(records, nil, "page_number")
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(asc))

	desc := FilterRecords(records, nil, "-page_number")
	assert.Equal(t, []string{"a", "c", "b", "d"}, ids(desc))

	byCreation := FilterRecords(records, nil, "-created_date")
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(byCreation))

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(records), "input order untouched")
}

func TestMergeFields(t *testing.T) {
	merged := MergeFields(
		map[string]any{"a": 1, "b": 2},
		map[string]any{"b": 3, "a": nil, "c": "x"},
	)
	assert.Equal(t, map[string]any{"b": 3, "c": "x"}, merged)
}

func ids(records []models.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
