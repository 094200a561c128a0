package library

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/sharedreading"
	"bookshelf/internal/storage"
)

// NewSharedReading describes a group read to schedule
type NewSharedReading struct {
	BookID        string           `json:"book_id"`
	Title         string           `json:"title"`
	StartDate     models.Date      `json:"start_date"`
	DurationDays  int              `json:"duration_days"`
	TotalChapters int              `json:"total_chapters"`
	UseCustomPlan bool             `json:"use_custom_plan"`
	CustomPlan    []models.DayPlan `json:"custom_plan"`
	Participants  []string         `json:"participants"`
}

// ReadingView is a shared reading as seen by one participant today
type ReadingView struct {
	Reading    models.SharedReading     `json:"reading"`
	CurrentDay int                      `json:"current_day"`
	Today      sharedreading.Assignment `json:"today"`
}

// MessageView is a message with its visibility for one viewer.
// Hidden messages carry no text.
type MessageView struct {
	Message    models.SharedReadingMessage `json:"message"`
	Visibility string                      `json:"visibility"`
}

// Discussion is the message board of a reading for one viewer
type Discussion struct {
	ReadingView
	Messages []MessageView `json:"messages"`
}

func (s *Service) view(r models.SharedReading) ReadingView {
	schedule := sharedreading.FromReading(r)
	day := sharedreading.CurrentDay(s.Today(), schedule.StartDate, schedule.DurationDays)
	return ReadingView{
		Reading:    r,
		CurrentDay: day,
		Today:      schedule.Assignment(day),
	}
}

// CreateSharedReading schedules a group read owned by user
func (s *Service) CreateSharedReading(ctx context.Context, user models.UserContext, in NewSharedReading) (ReadingView, error) {
	schedule, err := sharedreading.Derive(sharedreading.ScheduleInput{
		StartDate:     in.StartDate,
		DurationDays:  in.DurationDays,
		TotalChapters: in.TotalChapters,
		UseCustomPlan: in.UseCustomPlan,
		CustomPlan:    in.CustomPlan,
	})
	if err != nil {
		return ReadingView{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	title := strings.TrimSpace(in.Title)
	if in.BookID != "" {
		r, err := s.findOne(ctx, models.CollectionBook, in.BookID)
		switch {
		case err == nil:
			if title == "" {
				title = models.BookFromRecord(r).Title
			}
		case errors.Is(err, storage.ErrNotFound):
			return ReadingView{}, invalid("unknown book %s", in.BookID)
		default:
			return ReadingView{}, err
		}
	}
	if title == "" {
		return ReadingView{}, invalid("title or book is required")
	}

	var participants []string
	for _, p := range in.Participants {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || p == user.Email || slices.Contains(participants, p) {
			continue
		}
		participants = append(participants, p)
	}

	reading := models.SharedReading{
		BookID:         in.BookID,
		Title:          title,
		StartDate:      schedule.StartDate,
		EndDate:        schedule.EndDate,
		DurationDays:   schedule.DurationDays,
		TotalChapters:  schedule.TotalChapters,
		ChaptersPerDay: schedule.ChaptersPerDay,
		UseCustomPlan:  schedule.UseCustomPlan,
		CustomPlan:     schedule.CustomPlan,
		Participants:   participants,
		Status:         sharedreading.StatusOn(s.Today(), schedule.StartDate, schedule.EndDate),
	}

	r, err := s.db.Create(ctx, models.CollectionSharedReading, user.Email, reading.Fields())
	if err != nil {
		return ReadingView{}, fmt.Errorf("failed to create shared reading: %w", err)
	}

	s.logger.Info("Shared reading created",
		zap.String("shared_reading_id", r.ID),
		zap.String("user", user.Email),
		zap.String("start_date", schedule.StartDate.String()),
		zap.Int("duration_days", schedule.DurationDays),
		zap.Int("participants", len(participants)),
	)
	return s.view(models.SharedReadingFromRecord(r)), nil
}

// SharedReadings lists the readings user created or joined. Cached statuses
// that no longer match the dates are rewritten on the way; failures to do so
// are logged and do not fail the listing.
func (s *Service) SharedReadings(ctx context.Context, user models.UserContext) ([]ReadingView, error) {
	records, err := s.db.Filter(ctx, models.CollectionSharedReading, nil, "-"+models.FieldStartDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list shared readings: %w", err)
	}

	today := s.Today()
	var views []ReadingView
	for _, r := range records {
		reading := models.SharedReadingFromRecord(r)
		if !reading.IsParticipant(user.Email) {
			continue
		}

		schedule := sharedreading.FromReading(reading)
		status := sharedreading.StatusOn(today, schedule.StartDate, schedule.EndDate)
		if status != reading.Status {
			if _, err := s.db.Update(ctx, models.CollectionSharedReading, reading.ID, map[string]any{
				models.FieldStatus: string(status),
			}); err != nil {
				s.logger.Warn("Failed to refresh shared reading status",
					zap.Error(err),
					zap.String("shared_reading_id", reading.ID),
				)
			}
			reading.Status = status
		}
		views = append(views, s.view(reading))
	}
	return views, nil
}

// sharedReading loads a reading the user takes part in
func (s *Service) sharedReading(ctx context.Context, user models.UserContext, id string) (models.SharedReading, error) {
	r, err := s.findOne(ctx, models.CollectionSharedReading, id)
	if err != nil {
		return models.SharedReading{}, err
	}
	reading := models.SharedReadingFromRecord(r)
	if !reading.IsParticipant(user.Email) {
		return models.SharedReading{}, fmt.Errorf("shared reading %s: %w", id, ErrForbidden)
	}
	return reading, nil
}

// SharedReading returns one reading the user takes part in
func (s *Service) SharedReading(ctx context.Context, user models.UserContext, id string) (ReadingView, error) {
	reading, err := s.sharedReading(ctx, user, id)
	if err != nil {
		return ReadingView{}, err
	}
	return s.view(reading), nil
}

// Schedule returns every day's assignment of a reading
func (s *Service) Schedule(ctx context.Context, user models.UserContext, id string) ([]sharedreading.Assignment, error) {
	reading, err := s.sharedReading(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return sharedreading.FromReading(reading).Assignments(), nil
}

// DayView returns the assignment of one day of a reading. Day 0 means the
// reading's current day.
func (s *Service) DayView(ctx context.Context, user models.UserContext, id string, day int) (sharedreading.Assignment, error) {
	reading, err := s.sharedReading(ctx, user, id)
	if err != nil {
		return sharedreading.Assignment{}, err
	}
	if day == 0 {
		return s.view(reading).Today, nil
	}
	if day < 1 || day > reading.DurationDays {
		return sharedreading.Assignment{}, invalid("day %d is outside the reading's %d days", day, reading.DurationDays)
	}
	return sharedreading.FromReading(reading).Assignment(day), nil
}

// ImportPlan replaces the reading's schedule with a custom plan given as
// TOML. Only the reading's creator may do this.
func (s *Service) ImportPlan(ctx context.Context, user models.UserContext, id string, document []byte) (ReadingView, error) {
	reading, err := s.sharedReading(ctx, user, id)
	if err != nil {
		return ReadingView{}, err
	}
	if reading.Owner != user.Email {
		return ReadingView{}, fmt.Errorf("import plan: %w", ErrForbidden)
	}

	plan, err := sharedreading.ParsePlanTOML(document)
	if err != nil {
		return ReadingView{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	schedule, err := sharedreading.Derive(sharedreading.ScheduleInput{
		StartDate:     reading.StartDate,
		DurationDays:  reading.DurationDays,
		TotalChapters: reading.TotalChapters,
		UseCustomPlan: true,
		CustomPlan:    plan,
	})
	if err != nil {
		return ReadingView{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	reading.UseCustomPlan = true
	reading.CustomPlan = schedule.CustomPlan
	reading.ChaptersPerDay = 0

	r, err := s.db.Update(ctx, models.CollectionSharedReading, reading.ID, map[string]any{
		models.FieldUseCustomPlan:  true,
		models.FieldCustomPlan:     reading.Fields()[models.FieldCustomPlan],
		models.FieldChaptersPerDay: 0,
	})
	if err != nil {
		return ReadingView{}, fmt.Errorf("failed to save plan: %w", err)
	}

	s.logger.Info("Custom plan imported",
		zap.String("shared_reading_id", reading.ID),
		zap.Int("days", len(schedule.CustomPlan)),
	)
	return s.view(models.SharedReadingFromRecord(r)), nil
}

// PostMessage adds a discussion message for day. Day 0 means the reading's
// current day.
func (s *Service) PostMessage(ctx context.Context, user models.UserContext, readingID string, day int, text string, spoiler bool) (models.SharedReadingMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.SharedReadingMessage{}, invalid("message is empty")
	}
	reading, err := s.sharedReading(ctx, user, readingID)
	if err != nil {
		return models.SharedReadingMessage{}, err
	}
	if day == 0 {
		day = s.view(reading).CurrentDay
	}
	if day < 1 || day > reading.DurationDays {
		return models.SharedReadingMessage{}, invalid("day %d is outside the reading's %d days", day, reading.DurationDays)
	}

	r, err := s.db.Create(ctx, models.CollectionSharedReadingMessage, user.Email, map[string]any{
		models.FieldSharedReadingID: readingID,
		models.FieldDayNumber:       day,
		"message":                   text,
		"is_spoiler":                spoiler,
		models.FieldReactions:       map[string]any{},
	})
	if err != nil {
		return models.SharedReadingMessage{}, fmt.Errorf("failed to post message: %w", err)
	}
	return models.SharedReadingMessageFromRecord(r), nil
}

// Messages returns the reading's messages for day (0 for all days), oldest
// first, with spoilers gated for the viewer. gate must belong to this viewer
// and reading.
func (s *Service) Messages(ctx context.Context, user models.UserContext, readingID string, day int, gate *sharedreading.SpoilerGate) (Discussion, error) {
	reading, err := s.sharedReading(ctx, user, readingID)
	if err != nil {
		return Discussion{}, err
	}
	view := s.view(reading)
	gate.Observe(s.Today(), view.CurrentDay)

	match := map[string]any{models.FieldSharedReadingID: readingID}
	if day > 0 {
		match[models.FieldDayNumber] = day
	}
	records, err := s.db.Filter(ctx, models.CollectionSharedReadingMessage, match, "created_date")
	if err != nil {
		return Discussion{}, fmt.Errorf("failed to list messages: %w", err)
	}

	d := Discussion{ReadingView: view, Messages: make([]MessageView, 0, len(records))}
	for _, r := range records {
		msg := models.SharedReadingMessageFromRecord(r)
		visibility := gate.Visibility(msg, view.CurrentDay)
		if visibility == sharedreading.Hidden {
			msg.Message = ""
		}
		d.Messages = append(d.Messages, MessageView{Message: msg, Visibility: visibility.String()})
	}
	return d, nil
}

// message loads a message of a reading the user takes part in
func (s *Service) message(ctx context.Context, user models.UserContext, messageID string) (models.SharedReadingMessage, error) {
	msg, _, err := s.messageWithReading(ctx, user, messageID)
	return msg, err
}

func (s *Service) messageWithReading(ctx context.Context, user models.UserContext, messageID string) (models.SharedReadingMessage, models.SharedReading, error) {
	r, err := s.findOne(ctx, models.CollectionSharedReadingMessage, messageID)
	if err != nil {
		return models.SharedReadingMessage{}, models.SharedReading{}, err
	}
	msg := models.SharedReadingMessageFromRecord(r)
	reading, err := s.sharedReading(ctx, user, msg.SharedReadingID)
	if err != nil {
		return models.SharedReadingMessage{}, models.SharedReading{}, err
	}
	return msg, reading, nil
}

// RevealMessage shows a spoiler to the viewer before its day has passed.
// The reveal lasts until the next calendar day.
func (s *Service) RevealMessage(ctx context.Context, user models.UserContext, messageID string, gate *sharedreading.SpoilerGate) (models.SharedReadingMessage, error) {
	msg, reading, err := s.messageWithReading(ctx, user, messageID)
	if err != nil {
		return models.SharedReadingMessage{}, err
	}
	gate.Observe(s.Today(), s.view(reading).CurrentDay)
	gate.Reveal(msg)
	return msg, nil
}

// MessageReading returns the reading ID a message belongs to
func (s *Service) MessageReading(ctx context.Context, user models.UserContext, messageID string) (string, error) {
	msg, err := s.message(ctx, user, messageID)
	if err != nil {
		return "", err
	}
	return msg.SharedReadingID, nil
}

// React toggles the user's emoji reaction on a message
func (s *Service) React(ctx context.Context, user models.UserContext, messageID, emoji string) (models.SharedReadingMessage, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return models.SharedReadingMessage{}, invalid("emoji is required")
	}
	msg, err := s.message(ctx, user, messageID)
	if err != nil {
		return models.SharedReadingMessage{}, err
	}

	reactions := sharedreading.ToggleReaction(msg.Reactions, user.Email, emoji)
	r, err := s.db.Update(ctx, models.CollectionSharedReadingMessage, messageID, map[string]any{
		models.FieldReactions: models.ReactionsFieldValue(reactions),
	})
	if err != nil {
		return models.SharedReadingMessage{}, fmt.Errorf("failed to save reaction: %w", err)
	}
	return models.SharedReadingMessageFromRecord(r), nil
}

// DeleteMessage removes a message. Only its author may delete it.
func (s *Service) DeleteMessage(ctx context.Context, user models.UserContext, messageID string) error {
	msg, err := s.message(ctx, user, messageID)
	if err != nil {
		return err
	}
	if msg.Author != user.Email {
		return fmt.Errorf("delete message: %w", ErrForbidden)
	}
	if err := s.db.Delete(ctx, models.CollectionSharedReadingMessage, messageID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}
