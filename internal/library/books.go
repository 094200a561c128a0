package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/pace"
	"bookshelf/internal/progress"
	"bookshelf/internal/storage"
)

// ShelfEntry is a user book with its catalog entry
type ShelfEntry struct {
	UserBook models.UserBook `json:"user_book"`
	Book     models.Book     `json:"book"`
}

// Shelf returns the user's books, most recently updated first. Entries whose
// book is missing from the catalog are skipped. An empty status returns all.
func (s *Service) Shelf(ctx context.Context, user models.UserContext, status models.ReadingStatus) ([]ShelfEntry, error) {
	userBooks, err := s.loadUserBooks(ctx, user)
	if err != nil {
		return nil, err
	}
	books, err := s.loadBooks(ctx)
	if err != nil {
		return nil, err
	}
	index := progress.IndexBooks(books)

	entries := make([]ShelfEntry, 0, len(userBooks))
	for _, ub := range userBooks {
		if status != "" && ub.Status != status {
			continue
		}
		book, ok := index[ub.BookID]
		if !ok {
			s.logger.Debug("Skipping user book with missing book",
				zap.String("user_book_id", ub.ID),
				zap.String("book_id", ub.BookID),
			)
			continue
		}
		entries = append(entries, ShelfEntry{UserBook: ub, Book: book})
	}
	return entries, nil
}

// NewBook describes a book a user adds to their shelf
type NewBook struct {
	Title     string               `json:"title"`
	Author    string               `json:"author"`
	PageCount int                  `json:"page_count"`
	Genre     string               `json:"genre"`
	Cover     string               `json:"cover"`
	Status    models.ReadingStatus `json:"status"`
}

// AddBook creates a catalog Book and then the user's UserBook for it.
//
// The two writes are not atomic: when the second one fails the Book stays in
// the catalog without an owner. The orphan is logged and the error returned.
func (s *Service) AddBook(ctx context.Context, user models.UserContext, nb NewBook) (ShelfEntry, error) {
	nb.Title = strings.TrimSpace(nb.Title)
	nb.Author = strings.TrimSpace(nb.Author)
	if nb.Title == "" {
		return ShelfEntry{}, invalid("title is required")
	}
	if nb.PageCount < 0 {
		return ShelfEntry{}, invalid("page count must not be negative")
	}
	if nb.Status == "" {
		nb.Status = models.StatusToRead
	}
	if _, ok := models.ParseReadingStatus(string(nb.Status)); !ok {
		return ShelfEntry{}, invalid("unknown status %q", nb.Status)
	}

	book := models.Book{
		Title:     nb.Title,
		Author:    nb.Author,
		PageCount: nb.PageCount,
		Genre:     nb.Genre,
		Cover:     nb.Cover,
	}
	bookRecord, err := s.db.Create(ctx, models.CollectionBook, user.Email, book.Fields())
	if err != nil {
		return ShelfEntry{}, fmt.Errorf("failed to create book: %w", err)
	}
	book = models.BookFromRecord(bookRecord)

	today := s.Today()
	ub := models.UserBook{BookID: book.ID, Status: nb.Status}
	switch nb.Status {
	case models.StatusReading:
		ub.StartDate = today
	case models.StatusRead:
		ub.StartDate = today
		ub.EndDate = today
		ub.CurrentPage = book.PageCount
	}

	ubRecord, err := s.db.Create(ctx, models.CollectionUserBook, user.Email, ub.Fields())
	if err != nil {
		s.logger.Error("Book created without user book",
			zap.Error(err),
			zap.String("book_id", book.ID),
			zap.String("user", user.Email),
		)
		return ShelfEntry{}, fmt.Errorf("failed to create user book for book %s: %w", book.ID, err)
	}

	s.logger.Info("Book added",
		zap.String("book_id", book.ID),
		zap.String("user_book_id", ubRecord.ID),
		zap.String("user", user.Email),
		zap.String("status", string(nb.Status)),
	)
	return ShelfEntry{UserBook: models.UserBookFromRecord(ubRecord), Book: book}, nil
}

// shelfEntry loads one of the user's books
func (s *Service) shelfEntry(ctx context.Context, user models.UserContext, userBookID string) (ShelfEntry, error) {
	r, err := s.findOne(ctx, models.CollectionUserBook, userBookID)
	if err != nil {
		return ShelfEntry{}, err
	}
	if r.CreatedBy != user.Email {
		return ShelfEntry{}, fmt.Errorf("user book %s: %w", userBookID, ErrForbidden)
	}
	ub := models.UserBookFromRecord(r)

	var book models.Book
	bookRecord, err := s.findOne(ctx, models.CollectionBook, ub.BookID)
	switch {
	case err == nil:
		book = models.BookFromRecord(bookRecord)
	case errors.Is(err, storage.ErrNotFound):
		book = models.Book{ID: ub.BookID}
	default:
		return ShelfEntry{}, err
	}
	return ShelfEntry{UserBook: ub, Book: book}, nil
}

func (s *Service) updateUserBook(ctx context.Context, entry ShelfEntry, fields map[string]any) (ShelfEntry, error) {
	r, err := s.db.Update(ctx, models.CollectionUserBook, entry.UserBook.ID, fields)
	if err != nil {
		return ShelfEntry{}, fmt.Errorf("failed to update user book: %w", err)
	}
	entry.UserBook = models.UserBookFromRecord(r)
	return entry, nil
}

// StartBook marks a book as being read, keeping an existing start date
func (s *Service) StartBook(ctx context.Context, user models.UserContext, userBookID string) (ShelfEntry, error) {
	entry, err := s.shelfEntry(ctx, user, userBookID)
	if err != nil {
		return ShelfEntry{}, err
	}
	fields := map[string]any{models.FieldStatus: string(models.StatusReading)}
	if entry.UserBook.StartDate.IsZero() {
		fields[models.FieldStartDate] = s.Today().String()
	}
	return s.updateUserBook(ctx, entry, fields)
}

// FinishBook marks a book read today
func (s *Service) FinishBook(ctx context.Context, user models.UserContext, userBookID string) (ShelfEntry, error) {
	entry, err := s.shelfEntry(ctx, user, userBookID)
	if err != nil {
		return ShelfEntry{}, err
	}
	today := s.Today()
	fields := map[string]any{
		models.FieldStatus:  string(models.StatusRead),
		models.FieldEndDate: today.String(),
	}
	if entry.UserBook.StartDate.IsZero() {
		fields[models.FieldStartDate] = today.String()
	}
	if entry.Book.PageCount > 0 {
		fields[models.FieldCurrentPage] = entry.Book.PageCount
	}
	return s.updateUserBook(ctx, entry, fields)
}

// AbandonBook marks a book abandoned today at the given page and/or
// percentage. At least one of them is required.
func (s *Service) AbandonBook(ctx context.Context, user models.UserContext, userBookID string, page *int, percentage *float64) (ShelfEntry, error) {
	if page == nil && percentage == nil {
		return ShelfEntry{}, invalid("abandon page or percentage is required")
	}
	if page != nil && *page < 0 {
		return ShelfEntry{}, invalid("page must not be negative")
	}
	if percentage != nil && (*percentage < 0 || *percentage > 100) {
		return ShelfEntry{}, invalid("percentage must be between 0 and 100")
	}

	entry, err := s.shelfEntry(ctx, user, userBookID)
	if err != nil {
		return ShelfEntry{}, err
	}

	fields := map[string]any{
		models.FieldStatus:  string(models.StatusAbandoned),
		models.FieldEndDate: s.Today().String(),
	}
	if page != nil {
		fields[models.FieldAbandonPage] = *page
		fields[models.FieldCurrentPage] = *page
	}
	if percentage != nil {
		fields[models.FieldAbandonPercentage] = *percentage
	}
	return s.updateUserBook(ctx, entry, fields)
}

// LogProgress appends a page-position sample and moves the book's current page
func (s *Service) LogProgress(ctx context.Context, user models.UserContext, userBookID string, page int) (models.ReadingProgress, error) {
	if page < 0 {
		return models.ReadingProgress{}, invalid("page must not be negative")
	}
	entry, err := s.shelfEntry(ctx, user, userBookID)
	if err != nil {
		return models.ReadingProgress{}, err
	}
	if entry.Book.PageCount > 0 && page > entry.Book.PageCount {
		return models.ReadingProgress{}, invalid("page %d is past the last page %d", page, entry.Book.PageCount)
	}

	r, err := s.db.Create(ctx, models.CollectionReadingProgress, user.Email, map[string]any{
		models.FieldUserBookID: userBookID,
		models.FieldPageNumber: page,
		models.FieldTimestamp:  s.now().UTC().Format(models.TimestampLayout),
	})
	if err != nil {
		return models.ReadingProgress{}, fmt.Errorf("failed to record progress: %w", err)
	}

	if _, err := s.updateUserBook(ctx, entry, map[string]any{models.FieldCurrentPage: page}); err != nil {
		return models.ReadingProgress{}, err
	}
	return models.ReadingProgressFromRecord(r), nil
}

// PaceEstimate is the extrapolated position in a book being read
type PaceEstimate struct {
	Available    bool    `json:"available"`
	Page         int     `json:"page,omitempty"`
	PagesPerHour float64 `json:"pages_per_hour,omitempty"`
	PageCount    int     `json:"page_count,omitempty"`
}

// EstimatePage extrapolates the current page of a book from its logged samples
func (s *Service) EstimatePage(ctx context.Context, user models.UserContext, userBookID string) (PaceEstimate, error) {
	entry, err := s.shelfEntry(ctx, user, userBookID)
	if err != nil {
		return PaceEstimate{}, err
	}

	records, err := s.db.Filter(ctx, models.CollectionReadingProgress, map[string]any{models.FieldUserBookID: userBookID}, models.FieldTimestamp)
	if err != nil {
		return PaceEstimate{}, fmt.Errorf("failed to list progress: %w", err)
	}
	samples := make([]models.ReadingProgress, 0, len(records))
	for _, r := range records {
		samples = append(samples, models.ReadingProgressFromRecord(r))
	}

	estimate := PaceEstimate{PageCount: entry.Book.PageCount}
	page, ok := pace.EstimateCurrentPage(samples, entry.Book.PageCount, s.now())
	if !ok {
		return estimate, nil
	}
	estimate.Available = true
	estimate.Page = page
	estimate.PagesPerHour, _ = pace.Rate(samples)
	return estimate, nil
}
