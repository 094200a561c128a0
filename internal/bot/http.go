package bot

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"bookshelf/internal/library"
	"bookshelf/internal/models"
	"bookshelf/internal/sharedreading"
	"bookshelf/internal/storage"
)

const (
	// UserIDHeader identifies the user in polling mode (local development)
	UserIDHeader = "X-Telegram-User-ID"

	initDataMaxAge = 24 * time.Hour
	maxBodyBytes   = 1 << 20
)

type userContextKey struct{}

// HTTPServer handles HTTP requests for the Mini App
type HTTPServer struct {
	bot         *Bot
	token       string
	webhookMode bool // If false (polling mode), users are identified by header for easier local dev
	now         func() time.Time

	gatesMu   sync.Mutex
	gates     map[gateKey]*lockedGate
	lastSweep time.Time
}

const (
	// gateIdleTTL is how long an unused spoiler gate is kept. Past it the
	// gate has crossed a calendar day and holds no live early reveals.
	gateIdleTTL = 25 * time.Hour
	// gateSweepInterval bounds how often idle gates are looked for
	gateSweepInterval = time.Hour
)

type gateKey struct {
	viewer    string
	readingID string
}

// lockedGate serializes requests of one viewer on one reading
type lockedGate struct {
	mu       sync.Mutex
	gate     *sharedreading.SpoilerGate
	lastUsed time.Time // guarded by HTTPServer.gatesMu
}

// NewHTTPServer creates a new HTTP server for the Mini App
func NewHTTPServer(bot *Bot, webhookMode bool) *HTTPServer {
	return &HTTPServer{
		bot:         bot,
		token:       bot.Token(),
		webhookMode: webhookMode,
		now:         time.Now,
		gates:       make(map[gateKey]*lockedGate),
	}
}

// Routes builds the router serving the Mini App API, the Telegram webhook
// (in webhook mode) and the health check
func (hs *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	if hs.webhookMode {
		r.Post(WebhookPath, hs.handleWebhook)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(hs.authMiddleware)

		r.Get("/goal", hs.handle(hs.handleGetGoal))
		r.Put("/goal", hs.handle(hs.handlePutGoal))
		r.Get("/shelf", hs.handle(hs.handleShelf))
		r.Post("/books", hs.handle(hs.handleAddBook))

		r.Route("/user-books/{id}", func(r chi.Router) {
			r.Post("/start", hs.handle(hs.handleStartBook))
			r.Post("/finish", hs.handle(hs.handleFinishBook))
			r.Post("/abandon", hs.handle(hs.handleAbandonBook))
			r.Post("/progress", hs.handle(hs.handleLogProgress))
			r.Get("/pace", hs.handle(hs.handlePace))
		})

		r.Route("/shared-readings", func(r chi.Router) {
			r.Get("/", hs.handle(hs.handleListSharedReadings))
			r.Post("/", hs.handle(hs.handleCreateSharedReading))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", hs.handle(hs.handleGetSharedReading))
				r.Get("/schedule", hs.handle(hs.handleSchedule))
				r.Get("/days/{day}", hs.handle(hs.handleDay))
				r.Put("/plan", hs.handle(hs.handleImportPlan))
				r.Get("/messages", hs.handle(hs.handleMessages))
				r.Post("/messages", hs.handle(hs.handlePostMessage))
			})
		})

		r.Route("/messages/{id}", func(r chi.Router) {
			r.Post("/reveal", hs.handle(hs.handleReveal))
			r.Post("/reactions", hs.handle(hs.handleReact))
			r.Delete("/", hs.handle(hs.handleDeleteMessage))
		})
	})

	return r
}

// handleWebhook accepts a Telegram update
func (hs *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&update); err != nil {
		hs.bot.logger.Warn("Failed to decode webhook update", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Process update in background to respond quickly to Telegram
	go hs.bot.HandleWebhookUpdate(update)

	w.WriteHeader(http.StatusOK)
}

// validateTelegramInitData validates the Telegram Mini App initData and
// returns the Telegram user ID it was issued for
func (hs *HTTPServer) validateTelegramInitData(initData string) (int64, error) {
	if initData == "" {
		return 0, fmt.Errorf("missing initData")
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, fmt.Errorf("invalid initData format: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return 0, fmt.Errorf("missing hash in initData")
	}
	values.Del("hash")

	// Create data-check-string
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var dataCheckString strings.Builder
	for i, k := range keys {
		if i > 0 {
			dataCheckString.WriteByte('\n')
		}
		dataCheckString.WriteString(k)
		dataCheckString.WriteByte('=')
		dataCheckString.WriteString(values.Get(k))
	}

	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(hs.token))
	secret := secretKey.Sum(nil)

	h := hmac.New(sha256.New, secret)
	h.Write([]byte(dataCheckString.String()))
	calculatedHash := hex.EncodeToString(h.Sum(nil))

	if !hmac.Equal([]byte(calculatedHash), []byte(hash)) {
		return 0, fmt.Errorf("invalid hash")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("missing auth_date")
	}
	if hs.now().Sub(time.Unix(authDate, 0)) > initDataMaxAge {
		return 0, fmt.Errorf("initData is too old")
	}

	userStr := values.Get("user")
	if userStr == "" {
		return 0, fmt.Errorf("missing user data")
	}
	var userData struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(userStr), &userData); err != nil {
		return 0, fmt.Errorf("invalid user data: %w", err)
	}
	return userData.ID, nil
}

// authMiddleware resolves the calling user. In webhook mode the Telegram
// initData must be valid; in polling mode the user ID header is trusted.
func (hs *HTTPServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var telegramID int64
		if hs.webhookMode {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "tma ") {
				hs.bot.logger.Warn("Missing or invalid authorization header", zap.String("path", r.URL.Path))
				respondError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			id, err := hs.validateTelegramInitData(strings.TrimPrefix(authHeader, "tma "))
			if err != nil {
				hs.bot.logger.Warn("Failed to validate initData",
					zap.Error(err),
					zap.String("remote_addr", r.RemoteAddr),
				)
				respondError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			telegramID = id
		} else {
			id, err := strconv.ParseInt(r.Header.Get(UserIDHeader), 10, 64)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			telegramID = id
		}

		user, ok := hs.bot.User(telegramID)
		if !ok {
			hs.bot.logger.Warn("User not allowed", zap.Int64("user_id", telegramID))
			respondError(w, http.StatusForbidden, "Forbidden")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(r *http.Request) models.UserContext {
	user, _ := r.Context().Value(userContextKey{}).(models.UserContext)
	return user
}

// apiHandler is a handler whose error is turned into a JSON error response
type apiHandler func(w http.ResponseWriter, r *http.Request, user models.UserContext) error

func (hs *HTTPServer) handle(h apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r, userFrom(r))
		if err == nil {
			return
		}

		var bad badRequest
		switch {
		case errors.As(err, &bad):
			respondError(w, http.StatusBadRequest, bad.msg)
		case errors.Is(err, library.ErrInvalidInput):
			respondError(w, http.StatusBadRequest, userMessage(err))
		case errors.Is(err, library.ErrGoalChangeLimit):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, library.ErrForbidden):
			respondError(w, http.StatusForbidden, "Forbidden")
		case errors.Is(err, storage.ErrNotFound):
			respondError(w, http.StatusNotFound, "Not found")
		default:
			hs.bot.logger.Error("Request failed",
				zap.Error(err),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
			respondError(w, http.StatusInternalServerError, "Internal Server Error")
		}
	}
}

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return badRequest{msg: "Invalid request body"}
	}
	return nil
}

func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest{msg: fmt.Sprintf("Invalid %s", name)}
	}
	return v, nil
}

// gate returns the spoiler gate of viewer on a reading, locked. The caller
// must unlock it.
func (hs *HTTPServer) gate(viewer, readingID string) *lockedGate {
	now := hs.now()

	hs.gatesMu.Lock()
	hs.evictIdleGates(now)
	key := gateKey{viewer: viewer, readingID: readingID}
	g, ok := hs.gates[key]
	if !ok {
		g = &lockedGate{gate: sharedreading.NewSpoilerGate(viewer)}
		hs.gates[key] = g
	}
	g.lastUsed = now
	hs.gatesMu.Unlock()

	g.mu.Lock()
	return g
}

// evictIdleGates drops gates unused for gateIdleTTL. Callers hold gatesMu.
func (hs *HTTPServer) evictIdleGates(now time.Time) {
	if now.Sub(hs.lastSweep) < gateSweepInterval {
		return
	}
	hs.lastSweep = now
	for key, g := range hs.gates {
		if now.Sub(g.lastUsed) > gateIdleTTL {
			delete(hs.gates, key)
		}
	}
}

func (hs *HTTPServer) handleGetGoal(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	year, err := intQuery(r, "year", hs.bot.service.CurrentYear())
	if err != nil {
		return err
	}
	summary, err := hs.bot.service.YearSummary(r.Context(), user, year)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, summary)
	return nil
}

// SetGoalRequest represents the request body for setting a goal
type SetGoalRequest struct {
	Year      int `json:"year"`
	GoalCount int `json:"goal_count"`
}

func (hs *HTTPServer) handlePutGoal(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	var req SetGoalRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.Year == 0 {
		req.Year = hs.bot.service.CurrentYear()
	}
	if _, err := hs.bot.service.SetGoal(r.Context(), user, req.Year, req.GoalCount); err != nil {
		return err
	}
	summary, err := hs.bot.service.YearSummary(r.Context(), user, req.Year)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, summary)
	return nil
}

func (hs *HTTPServer) handleShelf(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	var status models.ReadingStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := models.ParseReadingStatus(raw)
		if !ok {
			return badRequest{msg: "Invalid status"}
		}
		status = parsed
	}
	entries, err := hs.bot.service.Shelf(r.Context(), user, status)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, entries)
	return nil
}

func (hs *HTTPServer) handleAddBook(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	var req library.NewBook
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	entry, err := hs.bot.service.AddBook(r.Context(), user, req)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusCreated, entry)
	return nil
}

func (hs *HTTPServer) handleStartBook(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	entry, err := hs.bot.service.StartBook(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, entry)
	return nil
}

func (hs *HTTPServer) handleFinishBook(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	entry, err := hs.bot.service.FinishBook(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, entry)
	return nil
}

// AbandonRequest represents where a book was put down
type AbandonRequest struct {
	Page       *int     `json:"page"`
	Percentage *float64 `json:"percentage"`
}

func (hs *HTTPServer) handleAbandonBook(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	var req AbandonRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	entry, err := hs.bot.service.AbandonBook(r.Context(), user, chi.URLParam(r, "id"), req.Page, req.Percentage)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, entry)
	return nil
}

// ProgressRequest represents a logged page position
type ProgressRequest struct {
	Page int `json:"page"`
}

func (hs *HTTPServer) handleLogProgress(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	var req ProgressRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	sample, err := hs.bot.service.LogProgress(r.Context(), user, chi.URLParam(r, "id"), req.Page)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusCreated, sample)
	return nil
}

func (hs *HTTPServer) handlePace(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	estimate, err := hs.bot.service.EstimatePage(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, estimate)
	return nil
}

func (hs *HTTPServer) handleListSharedReadings(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	views, err := hs.bot.service.SharedReadings(r.Context(), user)
	if err != nil {
		return err
	}
	if views == nil {
		views = []library.ReadingView{}
	}
	respondJSON(w, http.StatusOK, views)
	return nil
}

func (hs *HTTPServer) handleCreateSharedReading(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	var req library.NewSharedReading
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	view, err := hs.bot.service.CreateSharedReading(r.Context(), user, req)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusCreated, view)
	return nil
}

func (hs *HTTPServer) handleGetSharedReading(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	view, err := hs.bot.service.SharedReading(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, view)
	return nil
}

func (hs *HTTPServer) handleSchedule(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	days, err := hs.bot.service.Schedule(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, days)
	return nil
}

func (hs *HTTPServer) handleDay(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if err != nil {
		return badRequest{msg: "Invalid day"}
	}
	assignment, err := hs.bot.service.DayView(r.Context(), user, chi.URLParam(r, "id"), day)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, assignment)
	return nil
}

// handleImportPlan takes a TOML plan document as the request body
func (hs *HTTPServer) handleImportPlan(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	document, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return badRequest{msg: "Invalid request body"}
	}
	view, err := hs.bot.service.ImportPlan(r.Context(), user, chi.URLParam(r, "id"), document)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, view)
	return nil
}

func (hs *HTTPServer) handleMessages(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	day, err := intQuery(r, "day", 0)
	if err != nil {
		return err
	}
	readingID := chi.URLParam(r, "id")

	g := hs.gate(user.Email, readingID)
	defer g.mu.Unlock()

	discussion, err := hs.bot.service.Messages(r.Context(), user, readingID, day, g.gate)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, discussion)
	return nil
}

// PostMessageRequest represents a new discussion message
type PostMessageRequest struct {
	DayNumber int    `json:"day_number"`
	Message   string `json:"message"`
	IsSpoiler bool   `json:"is_spoiler"`
}

func (hs *HTTPServer) handlePostMessage(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	var req PostMessageRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	msg, err := hs.bot.service.PostMessage(r.Context(), user, chi.URLParam(r, "id"), req.DayNumber, req.Message, req.IsSpoiler)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusCreated, msg)
	return nil
}

func (hs *HTTPServer) handleReveal(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	messageID := chi.URLParam(r, "id")
	readingID, err := hs.bot.service.MessageReading(r.Context(), user, messageID)
	if err != nil {
		return err
	}

	g := hs.gate(user.Email, readingID)
	defer g.mu.Unlock()

	msg, err := hs.bot.service.RevealMessage(r.Context(), user, messageID, g.gate)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, msg)
	return nil
}

// ReactionRequest represents an emoji reaction toggle
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

func (hs *HTTPServer) handleReact(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	var req ReactionRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	msg, err := hs.bot.service.React(r.Context(), user, chi.URLParam(r, "id"), req.Emoji)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, msg)
	return nil
}

func (hs *HTTPServer) handleDeleteMessage(w http.ResponseWriter, r *http.Request, user models.UserContext) error {
	if err := hs.bot.service.DeleteMessage(r.Context(), user, chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
