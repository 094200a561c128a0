package library

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/progress"
)

// goal returns the user's goal for year, or nil
func (s *Service) goal(ctx context.Context, user models.UserContext, year int) (*models.ReadingGoal, error) {
	records, err := s.db.Filter(ctx, models.CollectionReadingGoal, map[string]any{
		"created_by":     user.Email,
		models.FieldYear: year,
	}, "-updated_date")
	if err != nil {
		return nil, fmt.Errorf("failed to load reading goal: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	goal := models.ReadingGoalFromRecord(records[0])
	return &goal, nil
}

// YearSummary computes the user's goal panel for year
func (s *Service) YearSummary(ctx context.Context, user models.UserContext, year int) (progress.YearSummary, error) {
	userBooks, err := s.loadUserBooks(ctx, user)
	if err != nil {
		return progress.YearSummary{}, err
	}
	books, err := s.loadBooks(ctx)
	if err != nil {
		return progress.YearSummary{}, err
	}
	goal, err := s.goal(ctx, user, year)
	if err != nil {
		return progress.YearSummary{}, err
	}
	return progress.Summarize(userBooks, progress.IndexBooks(books), goal, year), nil
}

// SetGoal creates the user's goal for year or changes it. Changing an
// existing goal uses one of the yearly edits; once none are left the change
// is rejected with ErrGoalChangeLimit. Setting the current value again is a
// no-op.
func (s *Service) SetGoal(ctx context.Context, user models.UserContext, year, count int) (models.ReadingGoal, error) {
	if count < 1 {
		return models.ReadingGoal{}, invalid("goal must be at least one book")
	}
	if year < 1 {
		return models.ReadingGoal{}, invalid("invalid year %d", year)
	}

	existing, err := s.goal(ctx, user, year)
	if err != nil {
		return models.ReadingGoal{}, err
	}

	if existing == nil {
		r, err := s.db.Create(ctx, models.CollectionReadingGoal, user.Email, map[string]any{
			models.FieldYear:         year,
			models.FieldGoalCount:    count,
			models.FieldChangesCount: 0,
		})
		if err != nil {
			return models.ReadingGoal{}, fmt.Errorf("failed to create reading goal: %w", err)
		}
		s.logger.Info("Reading goal created",
			zap.String("user", user.Email),
			zap.Int("year", year),
			zap.Int("goal_count", count),
		)
		return models.ReadingGoalFromRecord(r), nil
	}

	if existing.GoalCount == count {
		return *existing, nil
	}
	if progress.ChangesRemaining(existing.ChangesCount) == 0 {
		return models.ReadingGoal{}, ErrGoalChangeLimit
	}

	r, err := s.db.Update(ctx, models.CollectionReadingGoal, existing.ID, map[string]any{
		models.FieldGoalCount:    count,
		models.FieldChangesCount: existing.ChangesCount + 1,
	})
	if err != nil {
		return models.ReadingGoal{}, fmt.Errorf("failed to update reading goal: %w", err)
	}
	s.logger.Info("Reading goal changed",
		zap.String("user", user.Email),
		zap.Int("year", year),
		zap.Int("goal_count", count),
		zap.Int("changes_count", existing.ChangesCount+1),
	)
	return models.ReadingGoalFromRecord(r), nil
}
