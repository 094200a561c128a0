package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bookshelf/internal/models"
)

// handlePageCallback remembers the picked book and asks for the page
func (b *Bot) handlePageCallback(state *ConversationState, chatID int64, userBookID string) {
	state.Data["user_book_id"] = userBookID
	state.Step = 2
	b.reply(chatID, "📝 Which page are you on?")
}

// handleAbandonCallback remembers the picked book and asks where it stopped
func (b *Bot) handleAbandonCallback(state *ConversationState, chatID int64, userBookID string) {
	state.Data["user_book_id"] = userBookID
	state.Step = 2
	b.reply(chatID, "📝 Where did you stop? Send a page number or a percentage\n\nExample: 120 or 40%")
}

// handleFinishCallback marks the picked book read
func (b *Bot) handleFinishCallback(ctx context.Context, user models.UserContext, state *ConversationState, chatID int64, userBookID string) {
	state.Step = -1

	entry, err := b.service.FinishBook(ctx, user, userBookID)
	if err != nil {
		b.replyError(chatID, "finish the book", err)
		return
	}
	b.logger.Info("Book finished via bot",
		zap.String("user", user.Email),
		zap.String("user_book_id", userBookID),
	)

	text := fmt.Sprintf("🎉 Finished %s!", entry.Book.Title)
	summary, err := b.service.YearSummary(ctx, user, b.service.CurrentYear())
	if err == nil {
		text += "\n\n" + formatSummary(summary)
	}
	b.reply(chatID, text)
}

// handlePaceCallback estimates the current page of the picked book
func (b *Bot) handlePaceCallback(ctx context.Context, user models.UserContext, state *ConversationState, chatID int64, userBookID string) {
	state.Step = -1

	estimate, err := b.service.EstimatePage(ctx, user, userBookID)
	if err != nil {
		b.replyError(chatID, "estimate your pace", err)
		return
	}
	if !estimate.Available {
		b.reply(chatID, "Not enough progress logged yet. Log at least two pages with /page, an hour or more apart.")
		return
	}

	text := fmt.Sprintf("⏱ You read about %.1f pages per hour.\n📖 You are probably around page %d", estimate.PagesPerHour, estimate.Page)
	if estimate.PageCount > 0 {
		text += fmt.Sprintf(" of %d", estimate.PageCount)
	}
	b.reply(chatID, text+".")
}
