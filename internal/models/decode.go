package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Field names shared by decoders, services and stores
const (
	FieldBookID            = "book_id"
	FieldStatus            = "status"
	FieldStartDate         = "start_date"
	FieldEndDate           = "end_date"
	FieldCurrentPage       = "current_page"
	FieldAbandonPage       = "abandon_page"
	FieldAbandonPercentage = "abandon_percentage"
	FieldYear              = "year"
	FieldGoalCount         = "goal_count"
	FieldChangesCount      = "changes_count"
	FieldUserBookID        = "user_book_id"
	FieldPageNumber        = "page_number"
	FieldTimestamp         = "timestamp"
	FieldSharedReadingID   = "shared_reading_id"
	FieldDayNumber         = "day_number"
	FieldReactions         = "reactions"
	FieldCustomPlan        = "custom_plan"
	FieldUseCustomPlan     = "use_custom_plan"
	FieldChaptersPerDay    = "chapters_per_day"
)

// BookFromRecord decodes a Book record
func BookFromRecord(r Record) Book {
	return Book{
		ID:        r.ID,
		Title:     stringField(r.Fields, "title"),
		Author:    stringField(r.Fields, "author"),
		PageCount: intOrZero(r.Fields, "page_count"),
		Genre:     stringField(r.Fields, "genre"),
		Cover:     stringField(r.Fields, "cover"),
	}
}

// Fields returns the record fields of b
func (b Book) Fields() map[string]any {
	return map[string]any{
		"title":      b.Title,
		"author":     b.Author,
		"page_count": b.PageCount,
		"genre":      b.Genre,
		"cover":      b.Cover,
	}
}

// UserBookFromRecord decodes a UserBook record. Unknown statuses decode
// as the empty status.
func UserBookFromRecord(r Record) UserBook {
	status, _ := ParseReadingStatus(stringField(r.Fields, FieldStatus))
	ub := UserBook{
		ID:          r.ID,
		Owner:       r.CreatedBy,
		BookID:      stringField(r.Fields, FieldBookID),
		Status:      status,
		StartDate:   dateField(r.Fields, FieldStartDate),
		EndDate:     dateField(r.Fields, FieldEndDate),
		CurrentPage: intOrZero(r.Fields, FieldCurrentPage),
		UpdatedDate: r.UpdatedDate,
	}
	if page, ok := intField(r.Fields, FieldAbandonPage); ok {
		ub.AbandonPage = &page
	}
	if pct, ok := numberField(r.Fields, FieldAbandonPercentage); ok {
		ub.AbandonPercentage = &pct
	}
	if rating, ok := numberField(r.Fields, "rating"); ok {
		ub.Rating = &rating
	}
	return ub
}

// Fields returns the record fields of ub. Absent optional values are nil.
func (ub UserBook) Fields() map[string]any {
	fields := map[string]any{
		FieldBookID:            ub.BookID,
		FieldStatus:            string(ub.Status),
		FieldStartDate:         ub.StartDate.String(),
		FieldEndDate:           ub.EndDate.String(),
		FieldCurrentPage:       ub.CurrentPage,
		FieldAbandonPage:       nil,
		FieldAbandonPercentage: nil,
		"rating":               nil,
	}
	if ub.AbandonPage != nil {
		fields[FieldAbandonPage] = *ub.AbandonPage
	}
	if ub.AbandonPercentage != nil {
		fields[FieldAbandonPercentage] = *ub.AbandonPercentage
	}
	if ub.Rating != nil {
		fields["rating"] = *ub.Rating
	}
	return fields
}

// ReadingGoalFromRecord decodes a ReadingGoal record
func ReadingGoalFromRecord(r Record) ReadingGoal {
	return ReadingGoal{
		ID:           r.ID,
		Owner:        r.CreatedBy,
		Year:         intOrZero(r.Fields, FieldYear),
		GoalCount:    intOrZero(r.Fields, FieldGoalCount),
		ChangesCount: intOrZero(r.Fields, FieldChangesCount),
	}
}

// ReadingProgressFromRecord decodes a ReadingProgress record. A missing
// timestamp falls back to the record's creation time.
func ReadingProgressFromRecord(r Record) ReadingProgress {
	ts := timeField(r.Fields, FieldTimestamp)
	if ts.IsZero() {
		ts = r.CreatedDate
	}
	return ReadingProgress{
		ID:         r.ID,
		UserBookID: stringField(r.Fields, FieldUserBookID),
		PageNumber: intOrZero(r.Fields, FieldPageNumber),
		Timestamp:  ts,
	}
}

// SharedReadingFromRecord decodes a SharedReading record
func SharedReadingFromRecord(r Record) SharedReading {
	return SharedReading{
		ID:             r.ID,
		Owner:          r.CreatedBy,
		BookID:         stringField(r.Fields, FieldBookID),
		Title:          stringField(r.Fields, "title"),
		StartDate:      dateField(r.Fields, FieldStartDate),
		EndDate:        dateField(r.Fields, FieldEndDate),
		DurationDays:   intOrZero(r.Fields, "duration_days"),
		TotalChapters:  intOrZero(r.Fields, "total_chapters"),
		ChaptersPerDay: intOrZero(r.Fields, FieldChaptersPerDay),
		UseCustomPlan:  boolField(r.Fields, FieldUseCustomPlan),
		CustomPlan:     planField(r.Fields, FieldCustomPlan),
		Participants:   stringsField(r.Fields, "participants"),
		Status:         SharedReadingStatus(stringField(r.Fields, FieldStatus)),
	}
}

// Fields returns the record fields of s
func (s SharedReading) Fields() map[string]any {
	plan := make([]any, 0, len(s.CustomPlan))
	for _, day := range s.CustomPlan {
		plan = append(plan, map[string]any{
			FieldDayNumber:  day.DayNumber,
			"chapters_text": day.ChaptersText,
		})
	}
	participants := make([]any, 0, len(s.Participants))
	for _, p := range s.Participants {
		participants = append(participants, p)
	}
	return map[string]any{
		FieldBookID:         s.BookID,
		"title":             s.Title,
		FieldStartDate:      s.StartDate.String(),
		FieldEndDate:        s.EndDate.String(),
		"duration_days":     s.DurationDays,
		"total_chapters":    s.TotalChapters,
		FieldChaptersPerDay: s.ChaptersPerDay,
		FieldUseCustomPlan:  s.UseCustomPlan,
		FieldCustomPlan:     plan,
		"participants":      participants,
		FieldStatus:         string(s.Status),
	}
}

// SharedReadingMessageFromRecord decodes a SharedReadingMessage record
func SharedReadingMessageFromRecord(r Record) SharedReadingMessage {
	return SharedReadingMessage{
		ID:              r.ID,
		Author:          r.CreatedBy,
		SharedReadingID: stringField(r.Fields, FieldSharedReadingID),
		DayNumber:       intOrZero(r.Fields, FieldDayNumber),
		Message:         stringField(r.Fields, "message"),
		IsSpoiler:       boolField(r.Fields, "is_spoiler"),
		Reactions:       ReactionsFromValue(r.Fields[FieldReactions]),
		CreatedDate:     r.CreatedDate,
	}
}

// ReactionsFieldValue converts reactions to a JSON-compatible field value
func ReactionsFieldValue(reactions map[string][]string) map[string]any {
	out := make(map[string]any, len(reactions))
	for email, emojis := range reactions {
		list := make([]any, 0, len(emojis))
		for _, e := range emojis {
			list = append(list, e)
		}
		out[email] = list
	}
	return out
}

// ReactionsFromValue decodes a reactions field, dropping malformed entries
func ReactionsFromValue(v any) map[string][]string {
	out := make(map[string][]string)
	switch m := v.(type) {
	case map[string][]string:
		for email, emojis := range m {
			if len(emojis) > 0 {
				out[email] = append([]string(nil), emojis...)
			}
		}
	case map[string]any:
		for email, raw := range m {
			if emojis := toStrings(raw); len(emojis) > 0 {
				out[email] = emojis
			}
		}
	}
	return out
}

func stringField(fields map[string]any, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case ReadingStatus:
		return string(v)
	case SharedReadingStatus:
		return string(v)
	}
	return ""
}

func boolField(fields map[string]any, name string) bool {
	switch v := fields[name].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	}
	return false
}

// numberField decodes a non-negative finite number. Anything else is
// treated as absent.
func numberField(fields map[string]any, name string) (float64, bool) {
	var f float64
	switch v := fields[name].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// intField truncates fractional values: page 149.6 is not yet page 150
func intField(fields map[string]any, name string) (int, bool) {
	f, ok := numberField(fields, name)
	if !ok || f > math.MaxInt32 {
		return 0, false
	}
	return int(math.Trunc(f)), true
}

func intOrZero(fields map[string]any, name string) int {
	n, _ := intField(fields, name)
	return n
}

func dateField(fields map[string]any, name string) Date {
	switch v := fields[name].(type) {
	case Date:
		return v
	case time.Time:
		return DateOf(v)
	case string:
		d, err := ParseDate(v)
		if err != nil {
			return Date{}
		}
		return d
	}
	return Date{}
}

func timeField(fields map[string]any, name string) time.Time {
	switch v := fields[name].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}

func stringsField(fields map[string]any, name string) []string {
	return toStrings(fields[name])
}

func toStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func planField(fields map[string]any, name string) []DayPlan {
	switch list := fields[name].(type) {
	case []DayPlan:
		return append([]DayPlan(nil), list...)
	case []any:
		plan := make([]DayPlan, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			day, ok := intField(m, FieldDayNumber)
			if !ok || day < 1 {
				continue
			}
			plan = append(plan, DayPlan{DayNumber: day, ChaptersText: stringField(m, "chapters_text")})
		}
		return plan
	}
	return nil
}
