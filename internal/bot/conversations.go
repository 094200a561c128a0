package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bookshelf/internal/library"
	"bookshelf/internal/models"
)

// handleConversation processes multi-step conversations
func (b *Bot) handleConversation(ctx context.Context, user models.UserContext, message *tgbotapi.Message, state *ConversationState) {
	switch state.Command {
	case "add":
		b.handleAddConversation(ctx, user, message, state)
	case "page":
		b.handlePageConversation(ctx, user, message, state)
	case "abandon":
		b.handleAbandonConversation(ctx, user, message, state)
	}

	// Clean up completed conversations
	if state.Step == -1 {
		b.clearState(message.From.ID)
	}
}

// handleAddConversation handles the add book multi-step process
func (b *Bot) handleAddConversation(ctx context.Context, user models.UserContext, message *tgbotapi.Message, state *ConversationState) {
	text := strings.TrimSpace(message.Text)

	switch state.Step {
	case 1: // Waiting for title
		if text == "" {
			b.reply(message.Chat.ID, "Please enter the book title:")
			return
		}
		state.Data["title"] = text
		state.Step = 2
		b.reply(message.Chat.ID, "Who is the author? Send - to skip.")

	case 2: // Waiting for author
		if text == "-" {
			text = ""
		}
		state.Data["author"] = text
		state.Step = 3
		b.reply(message.Chat.ID, "How many pages does it have? Send 0 if you don't know.")

	case 3: // Waiting for page count
		pages, err := strconv.Atoi(text)
		if err != nil || pages < 0 {
			b.reply(message.Chat.ID, "❌ Please enter the number of pages\n\nExample: 320")
			return
		}

		entry, err := b.service.AddBook(ctx, user, library.NewBook{
			Title:     state.Data["title"].(string),
			Author:    state.Data["author"].(string),
			PageCount: pages,
			Status:    models.StatusReading,
		})
		if err != nil {
			b.replyError(message.Chat.ID, "add the book", err)
		} else {
			b.reply(message.Chat.ID, fmt.Sprintf("✅ Added to your shelf!\n\n📚 %s\n\nLog your progress with /page", formatEntry(entry)))
		}
		state.Step = -1 // Mark conversation as complete
	}
}

// handlePageConversation waits for the page number after a book was picked
func (b *Bot) handlePageConversation(ctx context.Context, user models.UserContext, message *tgbotapi.Message, state *ConversationState) {
	if state.Step != 2 {
		return
	}

	page, err := strconv.Atoi(strings.TrimSpace(message.Text))
	if err != nil || page < 0 {
		b.reply(message.Chat.ID, "❌ Please enter a page number\n\nExample: 142")
		return
	}

	userBookID := state.Data["user_book_id"].(string)
	if _, err := b.service.LogProgress(ctx, user, userBookID, page); err != nil {
		b.replyError(message.Chat.ID, "log your page", err)
		if errorIsInvalid(err) {
			// let the user try another number
			return
		}
	} else {
		b.reply(message.Chat.ID, fmt.Sprintf("✅ Page %d logged.", page))
	}
	state.Step = -1
}

// handleAbandonConversation waits for where the book was put down, either
// a page number or a percentage such as 40%
func (b *Bot) handleAbandonConversation(ctx context.Context, user models.UserContext, message *tgbotapi.Message, state *ConversationState) {
	if state.Step != 2 {
		return
	}

	var page *int
	var percentage *float64
	text := strings.TrimSpace(message.Text)
	if strings.HasSuffix(text, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(text, "%")), 64)
		if err != nil {
			b.reply(message.Chat.ID, "❌ Please enter a page number or a percentage\n\nExample: 120 or 40%")
			return
		}
		percentage = &pct
	} else {
		p, err := strconv.Atoi(text)
		if err != nil {
			b.reply(message.Chat.ID, "❌ Please enter a page number or a percentage\n\nExample: 120 or 40%")
			return
		}
		page = &p
	}

	userBookID := state.Data["user_book_id"].(string)
	entry, err := b.service.AbandonBook(ctx, user, userBookID, page, percentage)
	if err != nil {
		b.replyError(message.Chat.ID, "update the book", err)
		if errorIsInvalid(err) {
			return
		}
	} else {
		b.reply(message.Chat.ID, fmt.Sprintf("📕 %s set aside.", entry.Book.Title))
	}
	state.Step = -1
}
