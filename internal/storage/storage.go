package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"bookshelf/internal/models"
)

// ErrNotFound is returned when a record ID does not exist in a collection
var ErrNotFound = errors.New("record not found")

// Storage is a generic record store over named collections
type Storage interface {
	// List returns every record of the collection
	List(ctx context.Context, collection string) ([]models.Record, error)

	// Filter returns the records whose fields equal every value in match.
	// A list field matches a scalar value when it contains it.
	// sortKey names the field to order by; a leading "-" sorts descending.
	// An empty sortKey keeps creation order.
	Filter(ctx context.Context, collection string, match map[string]any, sortKey string) ([]models.Record, error)

	// Create stores a new record owned by createdBy
	Create(ctx context.Context, collection, createdBy string, fields map[string]any) (models.Record, error)

	// Update merges fields into an existing record. A nil value removes the field.
	Update(ctx context.Context, collection, id string, fields map[string]any) (models.Record, error)

	// Delete removes a record
	Delete(ctx context.Context, collection, id string) error

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// Matches reports whether r satisfies every condition in match
func Matches(r models.Record, match map[string]any) bool {
	for name, want := range match {
		got, ok := r.Field(name)
		if !ok {
			return false
		}
		if !valueMatches(got, want) {
			return false
		}
	}
	return true
}

func valueMatches(got, want any) bool {
	switch list := got.(type) {
	case []any:
		for _, item := range list {
			if equalValues(item, want) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range list {
			if equalValues(item, want) {
				return true
			}
		}
		return false
	}
	return equalValues(got, want)
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// compareValues orders two field values. Missing values sort first.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(stringValue(a), stringValue(b))
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case time.Time:
		return s.UTC().Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(s)
	}
	return fmt.Sprint(v)
}

// SortRecords orders records in place by sortKey ("field" or "-field").
// Ties keep creation order.
func SortRecords(records []models.Record, sortKey string) {
	desc := strings.HasPrefix(sortKey, "-")
	field := strings.TrimPrefix(sortKey, "-")

	sort.SliceStable(records, func(i, j int) bool {
		if field != "" {
			a, _ := records[i].Field(field)
			b, _ := records[j].Field(field)
			if c := compareValues(a, b); c != 0 {
				if desc {
					return c > 0
				}
				return c < 0
			}
		}
		return records[i].CreatedDate.Before(records[j].CreatedDate)
	})
}

// FilterRecords applies Matches and SortRecords to an already fetched
// collection, returning a new slice.
func FilterRecords(records []models.Record, match map[string]any, sortKey string) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if Matches(r, match) {
			out = append(out, r)
		}
	}
	SortRecords(out, sortKey)
	return out
}

// MergeFields returns base with updates applied; nil values delete keys
func MergeFields(base, updates map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(updates))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range updates {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
