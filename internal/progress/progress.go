// Package progress derives yearly reading statistics and goal progress from
// a user's book records.
package progress

import (
	"math"

	"bookshelf/internal/models"
)

const (
	// AbandonThresholdPercent is how far an abandoned book must have been
	// read for it to count toward a goal.
	AbandonThresholdPercent = 50

	// MaxGoalChanges is how many times a yearly goal may be edited.
	MaxGoalChanges = 3
)

// IndexBooks maps books by ID
func IndexBooks(books []models.Book) map[string]models.Book {
	index := make(map[string]models.Book, len(books))
	for _, b := range books {
		index[b.ID] = b
	}
	return index
}

// AbandonedCountsAsRead reports whether an abandoned book was read far
// enough to count as read.
//
// Rules:
// 1. abandon_percentage >= 50 counts
// 2. otherwise abandon_page >= page_count/2 counts, when both are known
// 3. with neither value available the book never counts
func AbandonedCountsAsRead(ub models.UserBook, book models.Book) bool {
	if ub.AbandonPercentage != nil && *ub.AbandonPercentage >= AbandonThresholdPercent {
		return true
	}
	if ub.AbandonPage != nil && book.PageCount > 0 {
		// page >= count/2 without integer division
		return 2*(*ub.AbandonPage) >= book.PageCount
	}
	return false
}

// EffectiveDate returns the date that attributes ub to a reading year.
// ok is false when the record does not count toward any year.
func EffectiveDate(ub models.UserBook, book models.Book) (date models.Date, ok bool) {
	switch ub.Status {
	case models.StatusRead:
		if ub.EndDate.IsZero() {
			return models.Date{}, false
		}
		return ub.EndDate, true
	case models.StatusAbandoned:
		if !AbandonedCountsAsRead(ub, book) {
			return models.Date{}, false
		}
		if !ub.EndDate.IsZero() {
			return ub.EndDate, true
		}
		date = models.DateOf(ub.UpdatedDate)
		return date, !date.IsZero()
	}
	return models.Date{}, false
}

// countsInYear resolves the book of ub and applies the effective-date rule.
// Records referencing a book missing from the index are skipped.
func countsInYear(ub models.UserBook, books map[string]models.Book, year int) (models.Book, bool) {
	book, found := books[ub.BookID]
	if !found {
		return models.Book{}, false
	}
	date, ok := EffectiveDate(ub, book)
	if !ok || date.Year() != year {
		return models.Book{}, false
	}
	return book, true
}

// BooksCompletedInYear counts the user books attributed to year.
func BooksCompletedInYear(userBooks []models.UserBook, books map[string]models.Book, year int) int {
	count := 0
	for _, ub := range userBooks {
		if _, ok := countsInYear(ub, books, year); ok {
			count++
		}
	}
	return count
}

// PagesReadInYear sums page counts of books read in year.
// Abandoned books count as completed but contribute no pages.
func PagesReadInYear(userBooks []models.UserBook, books map[string]models.Book, year int) int {
	pages := 0
	for _, ub := range userBooks {
		if ub.Status != models.StatusRead {
			continue
		}
		if book, ok := countsInYear(ub, books, year); ok {
			pages += book.PageCount
		}
	}
	return pages
}

// GoalProgressPercent returns completed/goalCount as a rounded percentage.
// It is 0 for a missing goal and may exceed 100.
func GoalProgressPercent(completed, goalCount int) int {
	if goalCount <= 0 || completed <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(goalCount) * 100))
}

// ProgressBarWidth clamps a percentage to the displayable 0..100 range
func ProgressBarWidth(percent int) int {
	return max(0, min(percent, 100))
}

// ChangesRemaining returns how many goal edits are left this year
func ChangesRemaining(changesCount int) int {
	return max(0, MaxGoalChanges-changesCount)
}

// YearSummary is the goal panel for one year
type YearSummary struct {
	Year             int  `json:"year"`
	Completed        int  `json:"completed"`
	Pages            int  `json:"pages"`
	GoalCount        int  `json:"goal_count"`
	Percent          int  `json:"percent"`
	BarWidth         int  `json:"bar_width"`
	Exceeded         bool `json:"exceeded"`
	Remaining        int  `json:"remaining"`
	ChangesRemaining int  `json:"changes_remaining"`
	HasGoal          bool `json:"has_goal"`
}

// Summarize computes the YearSummary of year. goal may be nil.
func Summarize(userBooks []models.UserBook, books map[string]models.Book, goal *models.ReadingGoal, year int) YearSummary {
	s := YearSummary{
		Year:             year,
		Completed:        BooksCompletedInYear(userBooks, books, year),
		Pages:            PagesReadInYear(userBooks, books, year),
		ChangesRemaining: MaxGoalChanges,
	}
	if goal == nil {
		return s
	}

	s.HasGoal = goal.GoalCount > 0
	s.GoalCount = goal.GoalCount
	s.ChangesRemaining = ChangesRemaining(goal.ChangesCount)
	s.Percent = GoalProgressPercent(s.Completed, goal.GoalCount)
	s.BarWidth = ProgressBarWidth(s.Percent)
	if s.HasGoal {
		s.Exceeded = s.Completed > goal.GoalCount
		s.Remaining = max(0, goal.GoalCount-s.Completed)
	}
	return s
}
