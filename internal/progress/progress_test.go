package progress

import (
	"testing"
	"time"

	"bookshelf/internal/models"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func date(y int, m time.Month, d int) models.Date { return models.NewDate(y, m, d) }

func TestBooksCompletedInYear_EffectiveDate(t *testing.T) {
	books := IndexBooks([]models.Book{{ID: "b1", PageCount: 300}, {ID: "b2", PageCount: 200}})
	userBooks := []models.UserBook{
		{BookID: "b1", Status: models.StatusRead, EndDate: date(2024, time.January, 1)},
		{BookID: "b2", Status: models.StatusRead, EndDate: date(2024, time.December, 31)},
		{BookID: "b1", Status: models.StatusRead, EndDate: date(2023, time.December, 31)},
		{BookID: "b2", Status: models.StatusRead, EndDate: date(2025, time.January, 1)},
		{BookID: "b1", Status: models.StatusRead},
		{BookID: "b1", Status: models.StatusReading, EndDate: date(2024, time.May, 5)},
		{BookID: "b1", Status: models.StatusToRead},
	}

	assert.Equal(t, 2, BooksCompletedInYear(userBooks, books, 2024))
	assert.Equal(t, 1, BooksCompletedInYear(userBooks, books, 2023))
	assert.Equal(t, 1, BooksCompletedInYear(userBooks, books, 2025))
	assert.Equal(t, 0, BooksCompletedInYear(userBooks, books, 2022))
}

func TestAbandonedCountsAsRead(t *testing.T) {
	book := models.Book{ID: "b1", PageCount: 320}

	testCases := []struct {
		name     string
		userBook models.UserBook
		expected bool
	}{
		{"percentage at threshold", models.UserBook{AbandonPercentage: floatPtr(50)}, true},
		{"percentage below threshold", models.UserBook{AbandonPercentage: floatPtr(49)}, false},
		{"page at exact half", models.UserBook{AbandonPage: intPtr(160)}, true},
		{"page one below half", models.UserBook{AbandonPage: intPtr(159)}, false},
		{"low percentage but page past half", models.UserBook{AbandonPercentage: floatPtr(10), AbandonPage: intPtr(200)}, true},
		{"nothing recorded", models.UserBook{}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.userBook.Status = models.StatusAbandoned
			assert.Equal(t, tc.expected, AbandonedCountsAsRead(tc.userBook, book))
		})
	}
}

func TestAbandonedCountsAsRead_UnknownPageCount(t *testing.T) {
	ub := models.UserBook{Status: models.StatusAbandoned, AbandonPage: intPtr(500)}
	assert.False(t, AbandonedCountsAsRead(ub, models.Book{ID: "b1"}))
}

func TestBooksCompletedInYear_Abandoned(t *testing.T) {
	books := IndexBooks([]models.Book{{ID: "b1", PageCount: 400}})
	userBooks := []models.UserBook{
		// counted via end date
		{BookID: "b1", Status: models.StatusAbandoned, AbandonPercentage: floatPtr(75), EndDate: date(2024, time.March, 3)},
		// counted via updated date
		{BookID: "b1", Status: models.StatusAbandoned, AbandonPage: intPtr(200), UpdatedDate: time.Date(2024, time.July, 1, 10, 0, 0, 0, time.UTC)},
		// end date wins over updated date
		{BookID: "b1", Status: models.StatusAbandoned, AbandonPercentage: floatPtr(90), EndDate: date(2023, time.June, 1), UpdatedDate: time.Date(2024, time.July, 1, 10, 0, 0, 0, time.UTC)},
		// not read far enough
		{BookID: "b1", Status: models.StatusAbandoned, AbandonPage: intPtr(10), EndDate: date(2024, time.March, 3)},
	}

	assert.Equal(t, 2, BooksCompletedInYear(userBooks, books, 2024))
	assert.Equal(t, 1, BooksCompletedInYear(userBooks, books, 2023))
	assert.Equal(t, 0, PagesReadInYear(userBooks, books, 2024), "abandoned books contribute no pages")
}

func TestPagesReadInYear(t *testing.T) {
	books := IndexBooks([]models.Book{{ID: "b1", PageCount: 320}, {ID: "b2", PageCount: 180}})
	userBooks := []models.UserBook{
		{BookID: "b1", Status: models.StatusRead, EndDate: date(2024, time.June, 15)},
		{BookID: "b2", Status: models.StatusRead, EndDate: date(2024, time.August, 2)},
		{BookID: "b2", Status: models.StatusRead, EndDate: date(2023, time.August, 2)},
		{BookID: "b1", Status: models.StatusRead},
	}

	assert.Equal(t, 500, PagesReadInYear(userBooks, books, 2024))
}

func TestMissingBookReferenceIsSkipped(t *testing.T) {
	books := IndexBooks([]models.Book{{ID: "b1", PageCount: 100}})
	userBooks := []models.UserBook{
		{BookID: "b1", Status: models.StatusRead, EndDate: date(2024, time.June, 15)},
		{BookID: "deleted", Status: models.StatusRead, EndDate: date(2024, time.June, 16)},
	}

	assert.Equal(t, 1, BooksCompletedInYear(userBooks, books, 2024))
	assert.Equal(t, 100, PagesReadInYear(userBooks, books, 2024))
}

func TestGoalProgressPercent(t *testing.T) {
	assert.Equal(t, 0, GoalProgressPercent(0, 0))
	assert.Equal(t, 0, GoalProgressPercent(5, 0))
	assert.Equal(t, 0, GoalProgressPercent(5, -3))
	assert.Equal(t, 120, GoalProgressPercent(12, 10))
	assert.Equal(t, 8, GoalProgressPercent(1, 12))
	assert.Equal(t, 33, GoalProgressPercent(1, 3))
	assert.Equal(t, 67, GoalProgressPercent(2, 3))
}

func TestProgressBarWidth(t *testing.T) {
	assert.Equal(t, 100, ProgressBarWidth(120))
	assert.Equal(t, 42, ProgressBarWidth(42))
	assert.Equal(t, 0, ProgressBarWidth(-5))
}

func TestChangesRemaining(t *testing.T) {
	assert.Equal(t, 3, ChangesRemaining(0))
	assert.Equal(t, 1, ChangesRemaining(2))
	assert.Equal(t, 0, ChangesRemaining(3))
	assert.Equal(t, 0, ChangesRemaining(7))
}

func TestSummarize_EndToEnd(t *testing.T) {
	books := IndexBooks([]models.Book{{ID: "b1", Title: "Dune", PageCount: 320}})
	userBooks := []models.UserBook{
		{BookID: "b1", Status: models.StatusRead, EndDate: date(2024, time.June, 15)},
	}
	goal := &models.ReadingGoal{Year: 2024, GoalCount: 12}

	s := Summarize(userBooks, books, goal, 2024)

	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 320, s.Pages)
	assert.Equal(t, 8, s.Percent)
	assert.Equal(t, 8, s.BarWidth)
	assert.Equal(t, 11, s.Remaining)
	assert.False(t, s.Exceeded)
	assert.True(t, s.HasGoal)
	assert.Equal(t, 3, s.ChangesRemaining)
}

func TestSummarize_Exceeded(t *testing.T) {
	books := IndexBooks([]models.Book{{ID: "b1", PageCount: 100}})
	var userBooks []models.UserBook
	for i := 0; i < 12; i++ {
		userBooks = append(userBooks, models.UserBook{BookID: "b1", Status: models.StatusRead, EndDate: date(2024, time.May, i+1)})
	}

	s := Summarize(userBooks, books, &models.ReadingGoal{GoalCount: 10, ChangesCount: 2}, 2024)

	assert.Equal(t, 120, s.Percent)
	assert.Equal(t, 100, s.BarWidth)
	assert.True(t, s.Exceeded)
	assert.Equal(t, 0, s.Remaining)
	assert.Equal(t, 1, s.ChangesRemaining)
}

func TestSummarize_NoGoal(t *testing.T) {
	s := Summarize(nil, nil, nil, 2024)
	assert.False(t, s.HasGoal)
	assert.Equal(t, 0, s.Percent)
	assert.Equal(t, MaxGoalChanges, s.ChangesRemaining)
}

func TestAbandonedCountsAsRead_FractionalPageBelowHalf(t *testing.T) {
	ub := models.UserBookFromRecord(models.Record{Fields: map[string]any{
		models.FieldStatus:      "Abandoned",
		models.FieldAbandonPage: 149.6,
	}})
	book := models.Book{ID: "b1", PageCount: 300}

	assert.False(t, AbandonedCountsAsRead(ub, book))

	ub.AbandonPage = intPtr(150)
	assert.True(t, AbandonedCountsAsRead(ub, book))
}
