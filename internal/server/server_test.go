package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/bookshelf-web/internal/testutil"
	"github.com/Sternrassler/bookshelf-web/pkg/cache"
	"github.com/Sternrassler/bookshelf-web/pkg/catalog"
	"github.com/Sternrassler/bookshelf-web/pkg/invalidation"
	"github.com/Sternrassler/bookshelf-web/pkg/ledger"
	"github.com/Sternrassler/bookshelf-web/pkg/panel"
	"github.com/Sternrassler/bookshelf-web/pkg/prewarm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	origin *testutil.MockOrigin
	ledger *ledger.Ledger
	server *Server
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()

	origin := testutil.NewMockOrigin()
	t.Cleanup(origin.Close)
	origin.SetBooks(append(testutil.SampleBooks(), testutil.MockBook{ID: "99", Title: "Anonymous Pamphlet"})...)

	l := ledger.NewMemory()
	env := &testEnv{origin: origin, ledger: l}
	env.server = buildServer(t, l, origin.URL(), secret)
	return env
}

func buildServer(t *testing.T, l *ledger.Ledger, originURL, secret string) *Server {
	t.Helper()

	manager, err := cache.NewManager(l, cache.Config{Origin: originURL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	svc := invalidation.New(l, prewarm.New(manager, prewarm.DefaultConfig()), invalidation.Config{
		Origin: originURL,
		Secret: secret,
	})
	catalogClient := catalog.NewClient(manager, catalog.Config{Retry: catalog.RetryConfig{MaxAttempts: 1}})

	srv, err := New(Deps{
		Ledger:       l,
		Catalog:      catalogClient,
		Invalidation: svc,
		Panel:        panel.New(svc, panel.Config{Origin: originURL}),
	})
	require.NoError(t, err)
	return srv
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) keys(t *testing.T) []string {
	t.Helper()
	stats, err := e.ledger.Stats(context.Background())
	require.NoError(t, err)
	return stats.CacheKeys
}

func (e *testEnv) seed(t *testing.T, endpoints ...string) {
	t.Helper()
	for _, ep := range endpoints {
		require.NoError(t, e.ledger.RecordSuccess(context.Background(), e.origin.URL()+ep))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())

	ts, ok := body["timestamp"].(string)
	require.True(t, ok, "timestamp missing: %s", rec.Body.String())
	_, err := time.Parse(time.RFC3339, ts)
	assert.NoError(t, err, "timestamp not RFC3339")
	return body
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bookshelf_http_requests_total")
}

// downStore fails every call.
type downStore struct{}

var errDown = errors.New("connection refused")

func (downStore) Put(context.Context, string, int64) error { return errDown }
func (downStore) Get(context.Context, string) (int64, bool, error) { return 0, false, errDown }
func (downStore) Delete(context.Context, string) error { return errDown }
func (downStore) Clear(context.Context) error { return errDown }
func (downStore) Entries(context.Context) ([]ledger.Entry, error) { return nil, errDown }
func (downStore) Ping(context.Context) error { return errDown }

func TestLedgerDown(t *testing.T) {
	l := ledger.New(downStore{})
	env := &testEnv{ledger: l, server: buildServer(t, l, "https://api.example.com", "")}

	rec := env.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/cache", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Failed to get cache statistics", body["error"])

	rec = env.do(t, http.MethodDelete, "/api/cache?all=true", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestGetCacheStats(t *testing.T) {
	env := newTestEnv(t, "")

	// Rendering the home page records the book list.
	rec := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["totalCacheKeys"])
	assert.Equal(t, []any{env.origin.URL() + "/books"}, data["cacheKeys"])
	assert.NotNil(t, data["oldestCache"])
}

func TestGetCacheStats_EmptyLedger(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/api/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(0), data["totalCacheKeys"])
	assert.Nil(t, data["oldestCache"])
	assert.Nil(t, data["newestCache"])
}

func TestClearCache_NoParamsIsBadRequest(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "/books", "/books/42")

	rec := env.do(t, http.MethodDelete, "/api/cache", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Len(t, env.keys(t), 2, "ledger must be unchanged")
}

func TestClearCache(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "/books", "/books/42")
	key := env.origin.URL() + "/books/42"

	rec := env.do(t, http.MethodDelete, "/api/cache?key="+url.QueryEscape(key)+"&all=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, key, body["key"])
	assert.Equal(t, []string{env.origin.URL() + "/books"}, env.keys(t))

	rec = env.do(t, http.MethodDelete, "/api/cache?all=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "All caches cleared successfully", decode(t, rec)["message"])
	assert.Empty(t, env.keys(t))
}

func TestForceRefresh(t *testing.T) {
	t.Run("empty body clears everything", func(t *testing.T) {
		env := newTestEnv(t, "")
		env.seed(t, "/books", "/books/42")

		rec := env.do(t, http.MethodPost, "/api/cache", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "All data refreshed successfully", decode(t, rec)["message"])
		assert.Empty(t, env.keys(t))
	})

	t.Run("endpoint is cleared and pre-warmed", func(t *testing.T) {
		env := newTestEnv(t, "")

		rec := env.do(t, http.MethodPost, "/api/cache", `{"endpoint":"/books/42"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode(t, rec)
		assert.Equal(t, "/books/42", body["endpoint"])
		assert.Equal(t, true, body["revalidated"])
		assert.Equal(t, []string{env.origin.URL() + "/books/42"}, env.keys(t))
		assert.Equal(t, 1, env.origin.GetCount("/books/42"))
	})

	t.Run("revalidate false", func(t *testing.T) {
		env := newTestEnv(t, "")
		env.seed(t, "/books")

		rec := env.do(t, http.MethodPost, "/api/cache", `{"endpoint":"/books","revalidate":false}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, decode(t, rec)["revalidated"])
		assert.Empty(t, env.keys(t))
		assert.Equal(t, 0, env.origin.GetCount("/books"))
	})

	t.Run("pre-warm failure still succeeds", func(t *testing.T) {
		env := newTestEnv(t, "")
		env.origin.SetResponse("/books", testutil.NewServerErrorResponse())

		rec := env.do(t, http.MethodPost, "/api/cache", `{"endpoint":"/books"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, true, body["success"])
		assert.NotNil(t, body["prewarm"])
	})

	t.Run("malformed body", func(t *testing.T) {
		env := newTestEnv(t, "")
		rec := env.do(t, http.MethodPost, "/api/cache", `{"endpoint":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("relative endpoint", func(t *testing.T) {
		env := newTestEnv(t, "")
		rec := env.do(t, http.MethodPost, "/api/cache", `{"endpoint":"books"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWebhook_Unauthorized(t *testing.T) {
	env := newTestEnv(t, "s3cret")
	env.seed(t, "/books")

	rec := env.do(t, http.MethodPost, "/api/webhook/cache-invalidate", `{"action":"update","resource":"unknown-thing","apiKey":"nope"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decode(t, rec)["error"])
	assert.Len(t, env.keys(t), 1)

	rec = env.do(t, http.MethodPost, "/api/webhook/cache-invalidate", `{"action":"delete","resource":"books","apiKey":"s3cret"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_UnknownResourceClearsAll(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "/books", "/books/42", "/authors/9")

	rec := env.do(t, http.MethodPost, "/api/webhook/cache-invalidate", `{"action":"update","resource":"unknown-thing"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NotContains(t, body, "clearedCaches")
	assert.Equal(t, "unknown-thing", body["resource"])
	assert.Empty(t, env.keys(t))
}

func TestWebhook_BookUpdate(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "/books")

	rec := env.do(t, http.MethodPost, "/api/webhook/cache-invalidate",
		`{"action":"update","resource":"book","resourceId":"42","timestamp":"2026-01-02T12:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(2), body["clearedCaches"])
	assert.Equal(t, "42", body["resourceId"])
	assert.NotEmpty(t, body["eventId"])

	// Both keys come back through the pre-warm.
	assert.ElementsMatch(t, []string{env.origin.URL() + "/books", env.origin.URL() + "/books/42"}, env.keys(t))
}

func TestWebhook_NumericResourceID(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "/books", "/books/42")

	rec := env.do(t, http.MethodPost, "/api/webhook/cache-invalidate", `{"action":"delete","resource":"book","resourceId":42}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, float64(2), body["clearedCaches"])
	assert.Equal(t, "42", body["resourceId"])
	assert.Empty(t, env.keys(t))
}

func TestWebhook_BadPayload(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "/books")

	rec := env.do(t, http.MethodPost, "/api/webhook/cache-invalidate", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/webhook/cache-invalidate", `{"resource":"book","resourceId":"../x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/webhook/cache-invalidate", `{"resource":"book","resourceId":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, env.keys(t), 1)
}

func TestRequestBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "/books", "/books/42")

	padding := strings.Repeat("a", maxRequestBody)

	rec := env.do(t, http.MethodPost, "/api/webhook/cache-invalidate",
		`{"action":"delete","resource":"book","resourceId":"`+padding+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Request body too large", decode(t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/api/cache", `{"endpoint":"/books","note":"`+padding+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Request body too large", decode(t, rec)["error"])

	assert.Len(t, env.keys(t), 2)
}

func TestWebhookHealth(t *testing.T) {
	open := newTestEnv(t, "")
	rec := open.do(t, http.MethodGet, "/api/webhook/cache-invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "disabled", body["authentication"])
	assert.Equal(t, "POST /api/webhook/cache-invalidate", body["endpoints"].(map[string]any)["invalidate"])

	secured := newTestEnv(t, "s3cret")
	rec = secured.do(t, http.MethodGet, "/api/webhook/cache-invalidate", "")
	assert.Equal(t, "enabled", decode(t, rec)["authentication"])
}

func TestPages(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "The Go Programming Language")
	assert.Contains(t, rec.Body.String(), "Katherine Cox-Buday")
	assert.Contains(t, rec.Body.String(), "Unknown Author")
	assert.Contains(t, rec.Body.String(), `href="/book/42"`)

	rec = env.do(t, http.MethodGet, "/book/42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "by Alan Donovan")
	assert.Contains(t, rec.Body.String(), "/book/42/download")

	rec = env.do(t, http.MethodGet, "/book/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Book not found")
}

func TestPages_OriginErrorRendersErrorPage(t *testing.T) {
	env := newTestEnv(t, "")
	env.origin.SetResponse("/books", testutil.NewServerErrorResponse())

	rec := env.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error occurred while fetching books")
	assert.Empty(t, env.keys(t))
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/book/42/download", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://cdn.example.com/files/42.pdf", rec.Header().Get("Location"))

	rec = env.do(t, http.MethodGet, "/book/99/download", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPanel(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, "/books", "/books/42")

	rec := env.do(t, http.MethodGet, "/panel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Active Caches:</strong> 2")
	assert.Contains(t, rec.Body.String(), ".../books/42")

	rec = env.do(t, http.MethodGet, "/panel/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(2), data["totalCacheKeys"])

	form := url.Values{"key": {env.origin.URL() + "/books/42"}}
	req := httptest.NewRequest(http.MethodPost, "/panel/clear", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/panel", rec.Header().Get("Location"))
	assert.Equal(t, []string{env.origin.URL() + "/books"}, env.keys(t))

	rec = env.do(t, http.MethodPost, "/panel/clear", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/panel/clear-all", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, env.keys(t))

	env.seed(t, "/books")
	rec = env.do(t, http.MethodPost, "/panel/force-refresh", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Empty(t, env.keys(t))
}
