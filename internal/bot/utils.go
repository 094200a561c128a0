package bot

import (
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"bookshelf/internal/library"
	"bookshelf/internal/progress"
	"bookshelf/internal/storage"
)

// barCells is the width of the text progress bar
const barCells = 20

// sendMessage sends a message, doing nothing when there is no API (tests)
func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) {
	if b.api == nil {
		return
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("Failed to send message", zap.Error(err), zap.Int64("chat_id", msg.ChatID))
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

// replyError reports a failed action in user terms
func (b *Bot) replyError(chatID int64, action string, err error) {
	switch {
	case errors.Is(err, library.ErrGoalChangeLimit):
		b.reply(chatID, "❌ You have used all goal changes for this year.")
	case errors.Is(err, library.ErrInvalidInput):
		b.reply(chatID, fmt.Sprintf("❌ %s", userMessage(err)))
	case errors.Is(err, library.ErrForbidden), errors.Is(err, storage.ErrNotFound):
		b.reply(chatID, "❌ Not found.")
	default:
		b.logger.Error("Command failed", zap.Error(err), zap.String("action", action), zap.Int64("chat_id", chatID))
		b.reply(chatID, fmt.Sprintf("Error while trying to %s. Please try again.", action))
	}
}

// userMessage strips the sentinel prefix from an invalid input error
func userMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, library.ErrInvalidInput.Error()+": "); i >= 0 {
		msg = msg[i+len(library.ErrInvalidInput.Error())+2:]
	}
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// shelfKeyboard lists books as buttons carrying prefix:userBookID (2 columns)
func shelfKeyboard(entries []library.ShelfEntry, prefix string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var currentRow []tgbotapi.InlineKeyboardButton
	for i, entry := range entries {
		button := tgbotapi.NewInlineKeyboardButtonData(
			entry.Book.Title,
			prefix+entry.UserBook.ID,
		)
		currentRow = append(currentRow, button)

		if len(currentRow) == 2 || i == len(entries)-1 {
			rows = append(rows, currentRow)
			currentRow = []tgbotapi.InlineKeyboardButton{}
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// progressBar renders width (0..100) as a fixed-size bar
func progressBar(width int) string {
	filled := width * barCells / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", barCells-filled)
}

func formatSummary(s progress.YearSummary) string {
	var text strings.Builder
	text.WriteString(fmt.Sprintf("📊 Reading goal %d\n\n", s.Year))
	if !s.HasGoal {
		text.WriteString(fmt.Sprintf("📚 Books read: %d\n📄 Pages read: %d\n\n", s.Completed, s.Pages))
		text.WriteString("No goal set yet. Use /setgoal <books> to set one.")
		return text.String()
	}

	text.WriteString(fmt.Sprintf("%s %d%%\n\n", progressBar(s.BarWidth), s.Percent))
	text.WriteString(fmt.Sprintf("📚 %d of %d books\n", s.Completed, s.GoalCount))
	text.WriteString(fmt.Sprintf("📄 Pages read: %d\n", s.Pages))
	switch {
	case s.Exceeded:
		text.WriteString(fmt.Sprintf("🎉 Goal exceeded by %d!\n", s.Completed-s.GoalCount))
	case s.Remaining == 0:
		text.WriteString("🎉 Goal reached!\n")
	default:
		text.WriteString(fmt.Sprintf("🎯 %d to go\n", s.Remaining))
	}
	text.WriteString(fmt.Sprintf("✏️ Goal changes left: %d", s.ChangesRemaining))
	return text.String()
}

func formatEntry(entry library.ShelfEntry) string {
	ub := entry.UserBook
	line := entry.Book.Title
	if entry.Book.Author != "" {
		line += " · " + entry.Book.Author
	}
	if entry.Book.PageCount > 0 && ub.CurrentPage > 0 {
		line += fmt.Sprintf(" (p. %d/%d)", ub.CurrentPage, entry.Book.PageCount)
	}
	return line
}

func errorIsInvalid(err error) bool {
	return errors.Is(err, library.ErrInvalidInput)
}
