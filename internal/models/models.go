package models

import (
	"slices"
	"time"
)

// Collection names in the record store
const (
	CollectionBook                 = "Book"
	CollectionUserBook             = "UserBook"
	CollectionReadingGoal          = "ReadingGoal"
	CollectionReadingProgress      = "ReadingProgress"
	CollectionSharedReading        = "SharedReading"
	CollectionSharedReadingMessage = "SharedReadingMessage"
)

// Record is a schema-less entry of a record store collection.
// ID, CreatedBy, CreatedDate and UpdatedDate are supplied by the store.
type Record struct {
	ID          string         `json:"id"`
	CreatedBy   string         `json:"created_by"`
	CreatedDate time.Time      `json:"created_date"`
	UpdatedDate time.Time      `json:"updated_date"`
	Fields      map[string]any `json:"fields"`
}

// Field returns the named field. The implicit store fields are addressable
// by their record names (id, created_by, created_date, updated_date).
func (r Record) Field(name string) (any, bool) {
	switch name {
	case "id":
		return r.ID, true
	case "created_by":
		return r.CreatedBy, true
	case "created_date":
		return r.CreatedDate, true
	case "updated_date":
		return r.UpdatedDate, true
	}
	v, ok := r.Fields[name]
	return v, ok
}

// UserContext is the already-resolved identity of the current user.
type UserContext struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// ReadingStatus is the state of a user's relationship to a book
type ReadingStatus string

const (
	StatusRead      ReadingStatus = "Read"
	StatusReading   ReadingStatus = "Reading"
	StatusToRead    ReadingStatus = "ToRead"
	StatusAbandoned ReadingStatus = "Abandoned"
	StatusWishlist  ReadingStatus = "Wishlist"
)

// ParseReadingStatus reports whether s names a known status.
func ParseReadingStatus(s string) (ReadingStatus, bool) {
	switch st := ReadingStatus(s); st {
	case StatusRead, StatusReading, StatusToRead, StatusAbandoned, StatusWishlist:
		return st, true
	}
	return "", false
}

// Book is a shared catalog entry
type Book struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	PageCount int    `json:"page_count"`
	Genre     string `json:"genre,omitempty"`
	Cover     string `json:"cover,omitempty"`
}

// UserBook is one user's relationship to one Book.
// Pointer fields are nil when the record does not carry a usable value.
type UserBook struct {
	ID                string        `json:"id"`
	Owner             string        `json:"owner"`
	BookID            string        `json:"book_id"`
	Status            ReadingStatus `json:"status"`
	StartDate         Date          `json:"start_date"`
	EndDate           Date          `json:"end_date"`
	CurrentPage       int           `json:"current_page"`
	AbandonPage       *int          `json:"abandon_page,omitempty"`
	AbandonPercentage *float64      `json:"abandon_percentage,omitempty"`
	Rating            *float64      `json:"rating,omitempty"`
	UpdatedDate       time.Time     `json:"updated_date"`
}

// ReadingGoal is a user's book count target for one year
type ReadingGoal struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	Year         int    `json:"year"`
	GoalCount    int    `json:"goal_count"`
	ChangesCount int    `json:"changes_count"`
}

// ReadingProgress is one page-position sample of a UserBook
type ReadingProgress struct {
	ID         string    `json:"id"`
	UserBookID string    `json:"user_book_id"`
	PageNumber int       `json:"page_number"`
	Timestamp  time.Time `json:"timestamp"`
}

// SharedReadingStatus is cached on the record and recomputed from dates.
type SharedReadingStatus string

const (
	SharedReadingUpcoming  SharedReadingStatus = "Upcoming"
	SharedReadingOngoing   SharedReadingStatus = "Ongoing"
	SharedReadingCompleted SharedReadingStatus = "Completed"
)

// DayPlan assigns a free-text chapter range to one day of a custom plan
type DayPlan struct {
	DayNumber    int    `json:"day_number" toml:"number"`
	ChaptersText string `json:"chapters_text" toml:"chapters"`
}

// SharedReading is a scheduled group read
type SharedReading struct {
	ID             string              `json:"id"`
	Owner          string              `json:"owner"`
	BookID         string              `json:"book_id"`
	Title          string              `json:"title"`
	StartDate      Date                `json:"start_date"`
	EndDate        Date                `json:"end_date"`
	DurationDays   int                 `json:"duration_days"`
	TotalChapters  int                 `json:"total_chapters"`
	ChaptersPerDay int                 `json:"chapters_per_day"`
	UseCustomPlan  bool                `json:"use_custom_plan"`
	CustomPlan     []DayPlan           `json:"custom_plan,omitempty"`
	Participants   []string            `json:"participants"`
	Status         SharedReadingStatus `json:"status"`
}

// IsParticipant reports whether email created or was invited to the reading.
func (s SharedReading) IsParticipant(email string) bool {
	return s.Owner == email || slices.Contains(s.Participants, email)
}

// SharedReadingMessage is a discussion post tied to one day of a reading
type SharedReadingMessage struct {
	ID              string              `json:"id"`
	Author          string              `json:"author"`
	SharedReadingID string              `json:"shared_reading_id"`
	DayNumber       int                 `json:"day_number"`
	Message         string              `json:"message"`
	IsSpoiler       bool                `json:"is_spoiler"`
	Reactions       map[string][]string `json:"reactions,omitempty"`
	CreatedDate     time.Time           `json:"created_date"`
}
