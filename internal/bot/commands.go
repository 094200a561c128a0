package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bookshelf/internal/models"
)

// handleStart shows welcome message and available commands
func (b *Bot) handleStart(message *tgbotapi.Message) {
	text := `Welcome to Bookshelf! 📚

Available commands:
/goal [year] - Show your reading goal progress
/setgoal <books> - Set this year's reading goal
/add - Add a book to your shelf
/shelf - List the books you are reading
/page - Log the page you are on
/finish - Mark a book as read
/abandon - Stop reading a book
/pace - Estimate where you are in a book
/groups - Show your shared readings`

	b.reply(message.Chat.ID, text)
}

// handleGoal shows the goal panel for the current or given year
func (b *Bot) handleGoal(ctx context.Context, user models.UserContext, message *tgbotapi.Message) {
	year := b.service.CurrentYear()
	if arg := strings.TrimSpace(message.CommandArguments()); arg != "" {
		parsed, err := strconv.Atoi(arg)
		if err != nil || parsed < 1900 || parsed > 2100 {
			b.reply(message.Chat.ID, "❌ Invalid year. Please enter a valid year\n\nExample: /goal 2024")
			return
		}
		year = parsed
	}

	summary, err := b.service.YearSummary(ctx, user, year)
	if err != nil {
		b.replyError(message.Chat.ID, "load your goal", err)
		return
	}
	b.reply(message.Chat.ID, formatSummary(summary))
}

// handleSetGoal sets this year's goal from the command argument
func (b *Bot) handleSetGoal(ctx context.Context, user models.UserContext, message *tgbotapi.Message) {
	count, err := strconv.Atoi(strings.TrimSpace(message.CommandArguments()))
	if err != nil || count < 1 {
		b.reply(message.Chat.ID, "Usage: /setgoal <number of books>\n\nExample: /setgoal 24")
		return
	}

	year := b.service.CurrentYear()
	if _, err := b.service.SetGoal(ctx, user, year, count); err != nil {
		b.replyError(message.Chat.ID, "set your goal", err)
		return
	}

	summary, err := b.service.YearSummary(ctx, user, year)
	if err != nil {
		b.replyError(message.Chat.ID, "load your goal", err)
		return
	}
	b.reply(message.Chat.ID, "✅ Goal saved!\n\n"+formatSummary(summary))
}

// handleAddStart initiates the add book conversation
func (b *Bot) handleAddStart(message *tgbotapi.Message) {
	b.setState(message.From.ID, &ConversationState{
		Command: "add",
		Step:    1,
		Data:    make(map[string]interface{}),
	})
	b.reply(message.Chat.ID, "Please enter the book title:")
}

// handleShelf lists the books being read and the ones queued
func (b *Bot) handleShelf(ctx context.Context, user models.UserContext, message *tgbotapi.Message) {
	entries, err := b.service.Shelf(ctx, user, "")
	if err != nil {
		b.replyError(message.Chat.ID, "load your shelf", err)
		return
	}
	if len(entries) == 0 {
		b.reply(message.Chat.ID, "Your shelf is empty. Add a book with /add")
		return
	}

	groups := []struct {
		status models.ReadingStatus
		title  string
	}{
		{models.StatusReading, "📖 Reading"},
		{models.StatusToRead, "📚 To read"},
		{models.StatusRead, "✅ Read"},
	}

	var text strings.Builder
	for _, g := range groups {
		var lines []string
		for _, entry := range entries {
			if entry.UserBook.Status == g.status {
				lines = append(lines, "• "+formatEntry(entry))
			}
		}
		if len(lines) == 0 {
			continue
		}
		text.WriteString(fmt.Sprintf("%s\n%s\n\n", g.title, strings.Join(lines, "\n")))
	}
	if text.Len() == 0 {
		text.WriteString("Nothing in progress. Add a book with /add")
	}
	b.reply(message.Chat.ID, strings.TrimSpace(text.String()))
}

// handlePickBook starts a command that acts on one of the books being read
// by asking which one
func (b *Bot) handlePickBook(ctx context.Context, user models.UserContext, message *tgbotapi.Message, command string) {
	entries, err := b.service.Shelf(ctx, user, models.StatusReading)
	if err != nil {
		b.replyError(message.Chat.ID, "load your shelf", err)
		return
	}
	if command == "finish" || command == "abandon" {
		queued, err := b.service.Shelf(ctx, user, models.StatusToRead)
		if err != nil {
			b.replyError(message.Chat.ID, "load your shelf", err)
			return
		}
		entries = append(entries, queued...)
	}
	if len(entries) == 0 {
		b.reply(message.Chat.ID, "You are not reading anything right now. Add a book with /add")
		return
	}

	b.setState(message.From.ID, &ConversationState{
		Command: command,
		Step:    1,
		Data:    make(map[string]interface{}),
	})

	msg := tgbotapi.NewMessage(message.Chat.ID, "📚 Select a book:")
	msg.ReplyMarkup = shelfKeyboard(entries, command+":")
	b.sendMessage(msg)
}

// handleGroups lists the user's shared readings with today's assignment
func (b *Bot) handleGroups(ctx context.Context, user models.UserContext, message *tgbotapi.Message) {
	views, err := b.service.SharedReadings(ctx, user)
	if err != nil {
		b.replyError(message.Chat.ID, "load your shared readings", err)
		return
	}
	if len(views) == 0 {
		b.reply(message.Chat.ID, "You are not part of any shared reading yet.")
		return
	}

	var text strings.Builder
	text.WriteString("👥 Shared readings\n\n")
	for _, v := range views {
		r := v.Reading
		text.WriteString(fmt.Sprintf("%s (%s)\n", r.Title, r.Status))
		text.WriteString(fmt.Sprintf("   %s - %s\n", r.StartDate, r.EndDate))
		if r.Status == models.SharedReadingOngoing {
			chapters := v.Today.Chapters
			if chapters == "" {
				chapters = "catch up"
			}
			text.WriteString(fmt.Sprintf("   Day %d of %d: %s\n", v.CurrentDay, r.DurationDays, chapters))
		}
		text.WriteString("\n")
	}
	b.reply(message.Chat.ID, strings.TrimSpace(text.String()))
}
