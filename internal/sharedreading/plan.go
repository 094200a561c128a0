package sharedreading

import (
	"fmt"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"bookshelf/internal/models"
)

// ParsePlanTOML reads a custom plan document of the form
//
//	[[day]]
//	number = 1
//	chapters = "1-3"
//
// Ranges are trimmed; day validation happens in Derive.
func ParsePlanTOML(data []byte) ([]models.DayPlan, error) {
	var raw struct {
		Day []models.DayPlan `toml:"day"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if len(raw.Day) == 0 {
		return nil, fmt.Errorf("parse plan: no [[day]] entries")
	}

	plan := make([]models.DayPlan, 0, len(raw.Day))
	for _, d := range raw.Day {
		plan = append(plan, models.DayPlan{
			DayNumber:    d.DayNumber,
			ChaptersText: strings.TrimSpace(d.ChaptersText),
		})
	}
	return plan, nil
}

// ToggleReaction adds emoji to email's reactions, or removes it when it is
// already there. Users left without reactions are dropped. reactions is not
// modified.
func ToggleReaction(reactions map[string][]string, email, emoji string) map[string][]string {
	out := make(map[string][]string, len(reactions)+1)
	for k, v := range reactions {
		out[k] = slices.Clone(v)
	}

	current := out[email]
	if i := slices.Index(current, emoji); i >= 0 {
		current = slices.Delete(current, i, i+1)
	} else {
		current = append(current, emoji)
	}

	if len(current) == 0 {
		delete(out, email)
	} else {
		out[email] = current
	}
	return out
}
