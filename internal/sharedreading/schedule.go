// Package sharedreading derives the schedule of a group read, the current day
// of each participant and which discussion messages they may see.
package sharedreading

import (
	"errors"
	"fmt"
	"sort"

	"bookshelf/internal/models"
)

var (
	ErrInvalidDuration = errors.New("duration must be at least one day")
	ErrInvalidStart    = errors.New("start date is required")
	ErrInvalidPlanDay  = errors.New("custom plan day out of range")
	ErrDuplicatePlan   = errors.New("custom plan day listed twice")
)

// EndDate returns the last day of a reading of durationDays days, counting
// the start date as day 1.
func EndDate(start models.Date, durationDays int) models.Date {
	if durationDays < 1 {
		return start
	}
	return start.AddDays(durationDays - 1)
}

// ChaptersPerDay spreads totalChapters evenly, rounding up.
// Non-positive inputs yield 0.
func ChaptersPerDay(totalChapters, durationDays int) int {
	if totalChapters <= 0 || durationDays <= 0 {
		return 0
	}
	return (totalChapters + durationDays - 1) / durationDays
}

// ScheduleInput is what a user supplies when creating or editing a reading
type ScheduleInput struct {
	StartDate     models.Date
	DurationDays  int
	TotalChapters int
	UseCustomPlan bool
	CustomPlan    []models.DayPlan
}

// Schedule is a validated, derived reading plan
type Schedule struct {
	StartDate      models.Date      `json:"start_date"`
	EndDate        models.Date      `json:"end_date"`
	DurationDays   int              `json:"duration_days"`
	TotalChapters  int              `json:"total_chapters"`
	ChaptersPerDay int              `json:"chapters_per_day"`
	UseCustomPlan  bool             `json:"use_custom_plan"`
	CustomPlan     []models.DayPlan `json:"custom_plan,omitempty"`
}

// Derive validates in and computes the end date and chapter pacing.
// Custom plans are taken as given, sorted by day.
func Derive(in ScheduleInput) (Schedule, error) {
	if in.StartDate.IsZero() {
		return Schedule{}, ErrInvalidStart
	}
	if in.DurationDays < 1 {
		return Schedule{}, ErrInvalidDuration
	}

	s := Schedule{
		StartDate:     in.StartDate,
		EndDate:       EndDate(in.StartDate, in.DurationDays),
		DurationDays:  in.DurationDays,
		TotalChapters: max(0, in.TotalChapters),
		UseCustomPlan: in.UseCustomPlan,
	}

	if !in.UseCustomPlan {
		s.ChaptersPerDay = ChaptersPerDay(s.TotalChapters, s.DurationDays)
		return s, nil
	}

	plan, err := normalizePlan(in.CustomPlan, in.DurationDays)
	if err != nil {
		return Schedule{}, err
	}
	s.CustomPlan = plan
	return s, nil
}

func normalizePlan(plan []models.DayPlan, durationDays int) ([]models.DayPlan, error) {
	seen := make(map[int]bool, len(plan))
	out := make([]models.DayPlan, 0, len(plan))
	for _, day := range plan {
		if day.DayNumber < 1 || day.DayNumber > durationDays {
			return nil, fmt.Errorf("%w: day %d of %d", ErrInvalidPlanDay, day.DayNumber, durationDays)
		}
		if seen[day.DayNumber] {
			return nil, fmt.Errorf("%w: day %d", ErrDuplicatePlan, day.DayNumber)
		}
		seen[day.DayNumber] = true
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayNumber < out[j].DayNumber })
	return out, nil
}

// FromReading rebuilds the schedule stored on a reading record
func FromReading(r models.SharedReading) Schedule {
	s := Schedule{
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		DurationDays:   r.DurationDays,
		TotalChapters:  r.TotalChapters,
		ChaptersPerDay: r.ChaptersPerDay,
		UseCustomPlan:  r.UseCustomPlan,
		CustomPlan:     r.CustomPlan,
	}
	if s.EndDate.IsZero() {
		s.EndDate = EndDate(s.StartDate, s.DurationDays)
	}
	if !s.UseCustomPlan && s.ChaptersPerDay == 0 {
		s.ChaptersPerDay = ChaptersPerDay(s.TotalChapters, s.DurationDays)
	}
	return s
}

// Assignment is the reading portion of one day
type Assignment struct {
	Day          int         `json:"day"`
	Date         models.Date `json:"date"`
	FirstChapter int         `json:"first_chapter,omitempty"`
	LastChapter  int         `json:"last_chapter,omitempty"`
	Chapters     string      `json:"chapters"`
}

// Assignment returns what is to be read on day (1-based). Days past the
// last chapter, or missing from a custom plan, have an empty range.
func (s Schedule) Assignment(day int) Assignment {
	a := Assignment{Day: day, Date: s.StartDate.AddDays(day - 1)}
	if day < 1 || day > s.DurationDays {
		return a
	}

	if s.UseCustomPlan {
		for _, p := range s.CustomPlan {
			if p.DayNumber == day {
				a.Chapters = p.ChaptersText
				break
			}
		}
		return a
	}

	if s.ChaptersPerDay <= 0 {
		return a
	}
	first := (day-1)*s.ChaptersPerDay + 1
	if first > s.TotalChapters {
		return a
	}
	a.FirstChapter = first
	a.LastChapter = min(day*s.ChaptersPerDay, s.TotalChapters)
	if a.FirstChapter == a.LastChapter {
		a.Chapters = fmt.Sprintf("%d", a.FirstChapter)
	} else {
		a.Chapters = fmt.Sprintf("%d-%d", a.FirstChapter, a.LastChapter)
	}
	return a
}

// Assignments returns the assignment of every day in order
func (s Schedule) Assignments() []Assignment {
	out := make([]Assignment, 0, s.DurationDays)
	for day := 1; day <= s.DurationDays; day++ {
		out = append(out, s.Assignment(day))
	}
	return out
}

// CurrentDay returns the 1-based day of the reading on the calendar date
// today, clamped to the reading's days. Day 1 is the start date.
func CurrentDay(today, start models.Date, durationDays int) int {
	if durationDays < 1 {
		return 1
	}
	day := today.DaysSince(start) + 1
	return max(1, min(day, durationDays))
}

// StatusOn derives the status of a reading spanning start..end on today
func StatusOn(today, start, end models.Date) models.SharedReadingStatus {
	switch {
	case today.Before(start):
		return models.SharedReadingUpcoming
	case today.After(end):
		return models.SharedReadingCompleted
	default:
		return models.SharedReadingOngoing
	}
}
