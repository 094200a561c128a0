package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"bookshelf/internal/library"
	"bookshelf/internal/models"
)

// NewBot creates a new Telegram bot serving the allow-listed users
func NewBot(token string, service *library.Service, users map[int64]models.UserContext, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created",
		zap.String("bot_username", api.Self.UserName),
		zap.Int("allowed_users", len(users)),
	)

	return newBot(api, service, users, logger), nil
}

func newBot(api *tgbotapi.BotAPI, service *library.Service, users map[int64]models.UserContext, logger *zap.Logger) *Bot {
	return &Bot{
		api:     api,
		service: service,
		users:   users,
		states:  make(map[int64]*ConversationState),
		logger:  logger,
	}
}

// Token returns the bot token, used to verify Mini App init data
func (b *Bot) Token() string {
	if b.api == nil {
		return ""
	}
	return b.api.Token
}

// User resolves a Telegram user ID to an allow-listed identity
func (b *Bot) User(telegramID int64) (models.UserContext, bool) {
	user, ok := b.users[telegramID]
	return user, ok
}
