// Package library fetches a user's records from the store, runs the reading
// derivations over them and performs the mutations users trigger.
package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/storage"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrForbidden       = errors.New("not allowed for this user")
	ErrGoalChangeLimit = errors.New("reading goal can no longer be changed this year")
)

// Service is safe for concurrent use when the underlying storage is
type Service struct {
	db     storage.Storage
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewService creates a service computing calendar dates in loc
func NewService(db storage.Storage, logger *zap.Logger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		db:     db,
		logger: logger,
		loc:    loc,
		now:    time.Now,
	}
}

// SetClock overrides the wall clock, for tests
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Today returns the current calendar date in the service's time zone
func (s *Service) Today() models.Date {
	return models.DateOf(s.now().In(s.loc))
}

// CurrentYear returns the current calendar year in the service's time zone
func (s *Service) CurrentYear() int {
	return s.Today().Year()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// findOne fetches a record by ID
func (s *Service) findOne(ctx context.Context, collection, id string) (models.Record, error) {
	records, err := s.db.Filter(ctx, collection, map[string]any{"id": id}, "")
	if err != nil {
		return models.Record{}, fmt.Errorf("failed to load %s: %w", collection, err)
	}
	if len(records) == 0 {
		return models.Record{}, fmt.Errorf("%s %s: %w", collection, id, storage.ErrNotFound)
	}
	return records[0], nil
}

func (s *Service) loadBooks(ctx context.Context) ([]models.Book, error) {
	records, err := s.db.List(ctx, models.CollectionBook)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	books := make([]models.Book, 0, len(records))
	for _, r := range records {
		books = append(books, models.BookFromRecord(r))
	}
	return books, nil
}

// loadUserBooks returns the user's books, most recently updated first,
// with timestamps moved into the service's time zone.
func (s *Service) loadUserBooks(ctx context.Context, user models.UserContext) ([]models.UserBook, error) {
	records, err := s.db.Filter(ctx, models.CollectionUserBook, map[string]any{"created_by": user.Email}, "-updated_date")
	if err != nil {
		return nil, fmt.Errorf("failed to list user books: %w", err)
	}
	userBooks := make([]models.UserBook, 0, len(records))
	for _, r := range records {
		ub := models.UserBookFromRecord(r)
		ub.UpdatedDate = ub.UpdatedDate.In(s.loc)
		userBooks = append(userBooks, ub)
	}
	return userBooks, nil
}
