package bot

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"bookshelf/internal/library"
	"bookshelf/internal/models"
)

// Bot represents the Telegram bot wrapper
type Bot struct {
	api      *tgbotapi.BotAPI
	service  *library.Service
	users    map[int64]models.UserContext
	states   map[int64]*ConversationState
	statesMu sync.Mutex
	logger   *zap.Logger
}

// ConversationState tracks the state of multi-step commands.
// Step -1 marks a finished conversation.
type ConversationState struct {
	Command string
	Step    int
	Data    map[string]interface{}
}
