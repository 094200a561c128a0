package bot

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bookshelf/internal/library"
	"bookshelf/internal/models"
	"bookshelf/internal/storage/stubs"
)

const (
	aliceID = int64(1)
	bobID   = int64(2)
)

func newTestServer(t *testing.T, webhookMode bool) (*HTTPServer, *library.Service) {
	t.Helper()
	db := stubs.NewMockDB()
	service := library.NewService(db, zap.NewNop(), time.UTC)
	users := map[int64]models.UserContext{
		aliceID: {Email: "alice@example.com", DisplayName: "Alice"},
		bobID:   {Email: "bob@example.com", DisplayName: "Bob"},
	}
	hs := NewHTTPServer(newBot(nil, service, users, zap.NewNop()), webhookMode)
	return hs, service
}

func do(t *testing.T, h http.Handler, userID int64, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != 0 {
		req.Header.Set(UserIDHeader, fmt.Sprint(userID))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHTTP_Health(t *testing.T) {
	hs, _ := newTestServer(t, false)
	rec := do(t, hs.Routes(), 0, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHTTP_PollingModeIdentity(t *testing.T) {
	hs, _ := newTestServer(t, false)
	h := hs.Routes()

	rec := do(t, h, 0, http.MethodGet, "/api/shelf", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, 42, http.MethodGet, "/api/shelf", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, aliceID, http.MethodGet, "/api/shelf", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTP_GoalAndBooks(t *testing.T) {
	hs, service := newTestServer(t, false)
	h := hs.Routes()
	year := service.CurrentYear()

	rec := do(t, h, aliceID, http.MethodPost, "/api/books", `{"title":"Emma","page_count":320,"status":"Read"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[library.ShelfEntry](t, rec)
	assert.Equal(t, models.StatusRead, entry.UserBook.Status)

	rec = do(t, h, aliceID, http.MethodPut, "/api/goal", `{"goal_count":12}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, aliceID, http.MethodGet, fmt.Sprintf("/api/goal?year=%d", year), "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, summary["completed"])
	assert.EqualValues(t, 320, summary["pages"])
	assert.EqualValues(t, 8, summary["percent"])

	for _, count := range []int{13, 14, 15} {
		rec = do(t, h, aliceID, http.MethodPut, "/api/goal", fmt.Sprintf(`{"goal_count":%d}`, count))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec = do(t, h, aliceID, http.MethodPut, "/api/goal", `{"goal_count":16}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, aliceID, http.MethodPost, "/api/books", `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, aliceID, http.MethodPost, "/api/books", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, aliceID, http.MethodGet, "/api/shelf?status=Lost", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// other users cannot touch alice's books
	rec = do(t, h, bobID, http.MethodPost, "/api/user-books/"+entry.UserBook.ID+"/progress", `{"page":10}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, aliceID, http.MethodGet, "/api/user-books/missing/pace", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_SharedReadingSpoilers(t *testing.T) {
	hs, service := newTestServer(t, false)
	h := hs.Routes()
	today := service.Today()

	body := fmt.Sprintf(`{"title":"Club","start_date":"%s","duration_days":10,"total_chapters":20,"participants":["bob@example.com"]}`, today)
	rec := do(t, h, aliceID, http.MethodPost, "/api/shared-readings", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[library.ReadingView](t, rec)
	assert.Equal(t, 1, view.CurrentDay)
	assert.Equal(t, "1-2", view.Today.Chapters)
	id := view.Reading.ID

	rec = do(t, h, bobID, http.MethodGet, "/api/shared-readings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]library.ReadingView](t, rec), 1)

	rec = do(t, h, aliceID, http.MethodPost, "/api/shared-readings/"+id+"/messages", `{"day_number":1,"message":"Big twist","is_spoiler":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := decode[models.SharedReadingMessage](t, rec)

	rec = do(t, h, bobID, http.MethodGet, "/api/shared-readings/"+id+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[library.Discussion](t, rec)
	require.Len(t, d.Messages, 1)
	assert.Equal(t, "hidden", d.Messages[0].Visibility)
	assert.Empty(t, d.Messages[0].Message.Message)

	rec = do(t, h, bobID, http.MethodPost, "/api/messages/"+msg.ID+"/reveal", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, bobID, http.MethodGet, "/api/shared-readings/"+id+"/messages?day=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d = decode[library.Discussion](t, rec)
	require.Len(t, d.Messages, 1)
	assert.Equal(t, "revealed", d.Messages[0].Visibility)
	assert.Equal(t, "Big twist", d.Messages[0].Message.Message)

	rec = do(t, h, bobID, http.MethodPost, "/api/messages/"+msg.ID+"/reactions", `{"emoji":"🔥"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	reacted := decode[models.SharedReadingMessage](t, rec)
	assert.Equal(t, []string{"🔥"}, reacted.Reactions["bob@example.com"])

	rec = do(t, h, bobID, http.MethodDelete, "/api/messages/"+msg.ID, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, aliceID, http.MethodDelete, "/api/messages/"+msg.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHTTP_ImportPlanAndDays(t *testing.T) {
	hs, service := newTestServer(t, false)
	h := hs.Routes()

	body := fmt.Sprintf(`{"title":"Club","start_date":"%s","duration_days":3,"total_chapters":9}`, service.Today())
	rec := do(t, h, aliceID, http.MethodPost, "/api/shared-readings", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[library.ReadingView](t, rec).Reading.ID

	plan := "[[day]]\nnumber = 1\nchapters = \"Prologue\"\n\n[[day]]\nnumber = 3\nchapters = \"1-9\"\n"
	rec = do(t, h, aliceID, http.MethodPut, "/api/shared-readings/"+id+"/plan", plan)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, aliceID, http.MethodGet, "/api/shared-readings/"+id+"/days/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1-9", decode[map[string]any](t, rec)["chapters"])

	rec = do(t, h, aliceID, http.MethodGet, "/api/shared-readings/"+id+"/days/x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, aliceID, http.MethodPut, "/api/shared-readings/"+id+"/plan", "not toml [")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, bobID, http.MethodGet, "/api/shared-readings/"+id+"/schedule", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// signInitData builds initData the way Telegram signs it
func signInitData(token string, values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(token))
	h := hmac.New(sha256.New, secretKey.Sum(nil))
	h.Write([]byte(strings.Join(lines, "\n")))

	signed := url.Values{}
	for k := range values {
		signed.Set(k, values.Get(k))
	}
	signed.Set("hash", hex.EncodeToString(h.Sum(nil)))
	return signed.Encode()
}

func TestHTTP_WebhookModeInitData(t *testing.T) {
	hs, _ := newTestServer(t, true)
	hs.token = "123:secret"
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	hs.now = func() time.Time { return now }
	h := hs.Routes()

	values := url.Values{}
	values.Set("auth_date", fmt.Sprint(now.Add(-time.Hour).Unix()))
	values.Set("user", `{"id":1,"first_name":"Alice"}`)
	initData := signInitData(hs.token, values)

	request := func(auth string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/shelf", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		// the polling-mode header is ignored in webhook mode
		req.Header.Set(UserIDHeader, fmt.Sprint(aliceID))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, request("tma "+initData))
	assert.Equal(t, http.StatusUnauthorized, request(""))
	assert.Equal(t, http.StatusUnauthorized, request("tma "+strings.Replace(initData, "Alice", "Mallory", 1)))

	hs.now = func() time.Time { return now.Add(48 * time.Hour) }
	assert.Equal(t, http.StatusUnauthorized, request("tma "+initData))

	hs.now = func() time.Time { return now }
	values.Set("user", `{"id":99}`)
	assert.Equal(t, http.StatusForbidden, request("tma "+signInitData(hs.token, values)))
}

func TestHTTP_IdleSpoilerGatesEvicted(t *testing.T) {
	hs, _ := newTestServer(t, false)
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	hs.now = func() time.Time { return now }

	hs.gate("alice@example.com", "r1").mu.Unlock()
	hs.gate("bob@example.com", "r1").mu.Unlock()
	require.Len(t, hs.gates, 2)

	// bob keeps reading, alice goes quiet
	now = now.Add(20 * time.Hour)
	hs.gate("bob@example.com", "r1").mu.Unlock()
	require.Len(t, hs.gates, 2)

	now = now.Add(6 * time.Hour)
	hs.gate("bob@example.com", "r2").mu.Unlock()
	assert.Len(t, hs.gates, 2)
	_, kept := hs.gates[gateKey{viewer: "bob@example.com", readingID: "r1"}]
	assert.True(t, kept)
	_, stillThere := hs.gates[gateKey{viewer: "alice@example.com", readingID: "r1"}]
	assert.False(t, stillThere)
}
