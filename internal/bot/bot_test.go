package bot

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"bookshelf/internal/library"
	"bookshelf/internal/models"
	"bookshelf/internal/storage/stubs"
)

// Note: We can't easily mock tgbotapi.BotAPI, so tests focus on internal logic
// without actually sending messages to Telegram

const (
	testUserID = int64(123)
	testChatID = int64(456)
)

var testUser = models.UserContext{Email: "reader@example.com", DisplayName: "Reader"}

func newTestBot(t *testing.T) (*Bot, *library.Service) {
	t.Helper()
	db := stubs.NewMockDB()
	if err := db.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	service := library.NewService(db, zap.NewNop(), time.UTC)
	bot := newBot(nil, service, map[int64]models.UserContext{testUserID: testUser}, zap.NewNop())
	return bot, service
}

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: testUserID},
		Chat: &tgbotapi.Chat{ID: testChatID},
		Text: text,
	}
}

func commandMessage(text string) *tgbotapi.Message {
	message := textMessage(text)
	length := len(text)
	for i, c := range text {
		if c == ' ' {
			length = i
			break
		}
	}
	message.Entities = []tgbotapi.MessageEntity{
		{Type: "bot_command", Offset: 0, Length: length},
	}
	return message
}

func TestBot_AddConversation(t *testing.T) {
	bot, service := newTestBot(t)
	ctx := context.Background()

	bot.handleMessage(commandMessage("/add"))

	state, ok := bot.state(testUserID)
	if !ok {
		t.Fatal("Expected conversation state to be created")
	}
	if state.Command != "add" {
		t.Errorf("Expected command 'add', got '%s'", state.Command)
	}

	bot.handleMessage(textMessage("The Name of the Rose"))
	if state.Step != 2 {
		t.Errorf("Expected step 2, got %d", state.Step)
	}

	bot.handleMessage(textMessage("Umberto Eco"))
	if state.Step != 3 {
		t.Errorf("Expected step 3, got %d", state.Step)
	}

	// Invalid page count keeps the conversation on the same step
	bot.handleMessage(textMessage("many"))
	if state.Step != 3 {
		t.Errorf("Expected to stay on step 3, got %d", state.Step)
	}

	bot.handleMessage(textMessage("512"))
	if _, ok := bot.state(testUserID); ok {
		t.Error("Expected conversation state to be cleaned up")
	}

	entries, err := service.Shelf(ctx, testUser, models.StatusReading)
	if err != nil {
		t.Fatalf("Failed to load shelf: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 book on shelf, got %d", len(entries))
	}
	if entries[0].Book.Title != "The Name of the Rose" || entries[0].Book.Author != "Umberto Eco" {
		t.Errorf("Unexpected book: %+v", entries[0].Book)
	}
	if entries[0].Book.PageCount != 512 {
		t.Errorf("Expected 512 pages, got %d", entries[0].Book.PageCount)
	}
}

func TestBot_PageConversation(t *testing.T) {
	bot, service := newTestBot(t)
	ctx := context.Background()

	entry, err := service.AddBook(ctx, testUser, library.NewBook{Title: "Test Book", PageCount: 200, Status: models.StatusReading})
	if err != nil {
		t.Fatalf("Failed to add book: %v", err)
	}

	bot.handleMessage(commandMessage("/page"))
	state, ok := bot.state(testUserID)
	if !ok || state.Command != "page" || state.Step != 1 {
		t.Fatalf("Expected page conversation on step 1, got %+v", state)
	}

	bot.handleCallbackQuery(&tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: testUserID},
		Message: textMessage(""),
		Data:    "page:" + entry.UserBook.ID,
	})
	if state.Step != 2 {
		t.Fatalf("Expected step 2 after picking a book, got %d", state.Step)
	}

	// Past the last page is rejected and can be retried
	bot.handleMessage(textMessage("250"))
	if state.Step != 2 {
		t.Errorf("Expected to stay on step 2, got %d", state.Step)
	}

	bot.handleMessage(textMessage("80"))
	if _, ok := bot.state(testUserID); ok {
		t.Error("Expected conversation state to be cleaned up")
	}

	entries, err := service.Shelf(ctx, testUser, models.StatusReading)
	if err != nil {
		t.Fatalf("Failed to load shelf: %v", err)
	}
	if entries[0].UserBook.CurrentPage != 80 {
		t.Errorf("Expected current page 80, got %d", entries[0].UserBook.CurrentPage)
	}
}

func TestBot_AbandonConversation(t *testing.T) {
	bot, service := newTestBot(t)
	ctx := context.Background()

	entry, err := service.AddBook(ctx, testUser, library.NewBook{Title: "Slow Book", PageCount: 400, Status: models.StatusReading})
	if err != nil {
		t.Fatalf("Failed to add book: %v", err)
	}

	bot.setState(testUserID, &ConversationState{
		Command: "abandon",
		Step:    2,
		Data:    map[string]interface{}{"user_book_id": entry.UserBook.ID},
	})

	bot.handleMessage(textMessage("60%"))
	if _, ok := bot.state(testUserID); ok {
		t.Error("Expected conversation state to be cleaned up")
	}

	entries, err := service.Shelf(ctx, testUser, models.StatusAbandoned)
	if err != nil {
		t.Fatalf("Failed to load shelf: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 abandoned book, got %d", len(entries))
	}
	pct := entries[0].UserBook.AbandonPercentage
	if pct == nil || *pct != 60 {
		t.Errorf("Expected abandon percentage 60, got %v", pct)
	}

	summary, err := service.YearSummary(ctx, testUser, service.CurrentYear())
	if err != nil {
		t.Fatalf("Failed to load summary: %v", err)
	}
	if summary.Completed != 1 {
		t.Errorf("Expected abandoned book past half to count, got %d", summary.Completed)
	}
}

func TestBot_FinishCallback(t *testing.T) {
	bot, service := newTestBot(t)
	ctx := context.Background()

	entry, err := service.AddBook(ctx, testUser, library.NewBook{Title: "Short", PageCount: 90})
	if err != nil {
		t.Fatalf("Failed to add book: %v", err)
	}

	bot.handleMessage(commandMessage("/finish"))
	bot.handleCallbackQuery(&tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: testUserID},
		Message: textMessage(""),
		Data:    "finish:" + entry.UserBook.ID,
	})

	if _, ok := bot.state(testUserID); ok {
		t.Error("Expected conversation state to be cleaned up")
	}
	entries, err := service.Shelf(ctx, testUser, models.StatusRead)
	if err != nil {
		t.Fatalf("Failed to load shelf: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 read book, got %d", len(entries))
	}
}

func TestBot_CallbackForOtherCommandIgnored(t *testing.T) {
	bot, service := newTestBot(t)
	ctx := context.Background()

	entry, err := service.AddBook(ctx, testUser, library.NewBook{Title: "Book", PageCount: 90, Status: models.StatusReading})
	if err != nil {
		t.Fatalf("Failed to add book: %v", err)
	}

	bot.handleMessage(commandMessage("/page"))
	bot.handleCallbackQuery(&tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: testUserID},
		Message: textMessage(""),
		Data:    "finish:" + entry.UserBook.ID,
	})

	state, ok := bot.state(testUserID)
	if !ok || state.Step != 1 {
		t.Errorf("Expected page conversation to stay on step 1, got %+v", state)
	}
	entries, err := service.Shelf(ctx, testUser, models.StatusRead)
	if err != nil {
		t.Fatalf("Failed to load shelf: %v", err)
	}
	if len(entries) != 0 {
		t.Error("Expected stale button to have no effect")
	}
}

func TestBot_SetGoalCommand(t *testing.T) {
	bot, service := newTestBot(t)
	ctx := context.Background()

	bot.handleMessage(commandMessage("/setgoal 30"))

	summary, err := service.YearSummary(ctx, testUser, service.CurrentYear())
	if err != nil {
		t.Fatalf("Failed to load summary: %v", err)
	}
	if !summary.HasGoal || summary.GoalCount != 30 {
		t.Errorf("Expected goal of 30, got %+v", summary)
	}

	// Invalid arguments leave the goal untouched
	bot.handleMessage(commandMessage("/setgoal lots"))
	summary, err = service.YearSummary(ctx, testUser, service.CurrentYear())
	if err != nil {
		t.Fatalf("Failed to load summary: %v", err)
	}
	if summary.GoalCount != 30 || summary.ChangesRemaining != 3 {
		t.Errorf("Expected unchanged goal, got %+v", summary)
	}
}

func TestBot_PanicRecovery(t *testing.T) {
	bot, _ := newTestBot(t)

	// A state that will cause a panic (missing required data)
	bot.setState(testUserID, &ConversationState{
		Command: "page",
		Step:    2,
		Data:    map[string]interface{}{},
	})

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("handleMessage panicked: %v", r)
		}
	}()

	bot.handleMessage(textMessage("12"))
}

func TestBot_CommandAfterCompletion(t *testing.T) {
	bot, _ := newTestBot(t)

	// A completed conversation whose state was not cleaned up
	bot.setState(testUserID, &ConversationState{
		Command: "page",
		Step:    -1,
		Data:    map[string]interface{}{},
	})

	bot.handleMessage(commandMessage("/start"))

	if _, exists := bot.state(testUserID); exists {
		t.Error("Expected state to be cleaned up after processing new command")
	}
}

func TestBot_CommandInterruptsConversation(t *testing.T) {
	bot, _ := newTestBot(t)

	bot.handleMessage(commandMessage("/add"))
	if _, exists := bot.state(testUserID); !exists {
		t.Fatal("Expected conversation state to be created")
	}

	bot.handleMessage(commandMessage("/goal"))
	if _, exists := bot.state(testUserID); exists {
		t.Error("Expected conversation state to be deleted when interrupted by new command")
	}
}

func TestBot_UnauthorizedUserIgnored(t *testing.T) {
	bot, service := newTestBot(t)
	ctx := context.Background()

	message := commandMessage("/setgoal 10")
	message.From = &tgbotapi.User{ID: 999}
	bot.HandleWebhookUpdate(tgbotapi.Update{Message: message})

	summary, err := service.YearSummary(ctx, testUser, service.CurrentYear())
	if err != nil {
		t.Fatalf("Failed to load summary: %v", err)
	}
	if summary.HasGoal {
		t.Error("Expected unauthorized user to change nothing")
	}
	if _, exists := bot.state(999); exists {
		t.Error("Expected no state for unauthorized user")
	}
}

func TestProgressBar(t *testing.T) {
	if got := progressBar(50); got != "██████████░░░░░░░░░░" {
		t.Errorf("Unexpected progress bar: %q", got)
	}
	if got := progressBar(100); got != "████████████████████" {
		t.Errorf("Unexpected full progress bar: %q", got)
	}
}
