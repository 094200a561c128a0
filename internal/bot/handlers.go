package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (b *Bot) state(userID int64) (*ConversationState, bool) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	state, ok := b.states[userID]
	return state, ok
}

func (b *Bot) setState(userID int64, state *ConversationState) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	b.states[userID] = state
}

func (b *Bot) clearState(userID int64) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	delete(b.states, userID)
}

// handleMessage processes a single message
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.reply(message.Chat.ID, "An error occurred while processing your request. Please try again.")
		}
	}()

	userID := message.From.ID
	user := b.users[userID]
	ctx := context.Background()

	// Check if user is in a conversation
	if state, ok := b.state(userID); ok {
		if state.Step == -1 || message.IsCommand() {
			// Finished, or interrupted by a new command
			b.clearState(userID)
		} else {
			b.handleConversation(ctx, user, message, state)
			return
		}
	}

	if !message.IsCommand() {
		return
	}

	switch message.Command() {
	case "start", "help":
		b.handleStart(message)
	case "goal":
		b.handleGoal(ctx, user, message)
	case "setgoal":
		b.handleSetGoal(ctx, user, message)
	case "add":
		b.handleAddStart(message)
	case "shelf":
		b.handleShelf(ctx, user, message)
	case "page":
		b.handlePickBook(ctx, user, message, "page")
	case "finish":
		b.handlePickBook(ctx, user, message, "finish")
	case "abandon":
		b.handlePickBook(ctx, user, message, "abandon")
	case "pace":
		b.handlePickBook(ctx, user, message, "pace")
	case "groups":
		b.handleGroups(ctx, user, message)
	default:
		b.reply(message.Chat.ID, "Unknown command. Use /start to see available commands.")
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	userID := query.From.ID
	user := b.users[userID]
	ctx := context.Background()

	// Answer the callback query to remove loading state
	if b.api != nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
			b.logger.Debug("Failed to answer callback", zap.Error(err))
		}
	}
	if query.Message == nil {
		return
	}

	state, ok := b.state(userID)
	if !ok {
		return
	}

	action, userBookID, found := strings.Cut(query.Data, ":")
	if !found || action != state.Command || state.Step != 1 {
		return
	}

	chatID := query.Message.Chat.ID
	switch action {
	case "page":
		b.handlePageCallback(state, chatID, userBookID)
	case "abandon":
		b.handleAbandonCallback(state, chatID, userBookID)
	case "finish":
		b.handleFinishCallback(ctx, user, state, chatID, userBookID)
	case "pace":
		b.handlePaceCallback(ctx, user, state, chatID, userBookID)
	}

	// Clean up completed conversations
	if state.Step == -1 {
		b.clearState(userID)
	}
}
