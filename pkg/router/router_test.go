package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"webhook-ingest/backend/internal/models"
	"webhook-ingest/backend/pkg/config"
	"webhook-ingest/backend/pkg/di"
	"webhook-ingest/backend/pkg/logger"
	"webhook-ingest/backend/pkg/signature"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "testsecret"

type errorEnvelope struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Env = "test"
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Server.MaxBodySize = 16 << 10
	cfg.Database.URL = "sqlite:///" + filepath.Join(t.TempDir(), "app.db")
	cfg.Database.ConnectRetries = 1
	cfg.Database.Timeout = 5 * time.Second
	cfg.Webhook.Secret = testSecret
	cfg.Webhook.SignatureHeader = "X-Signature"
	cfg.Logging.Level = "error"
	cfg.Testing = true
	return cfg
}

func newTestRouter(t *testing.T, mutate func(cfg *config.Config)) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig(t)
	if mutate != nil {
		mutate(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	container, err := di.New(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	r, err := New(ctx, container)
	require.NoError(t, err)
	r.SetupRoutes()
	return r
}

func payload(id, from, ts, text string) []byte {
	return []byte(`{"message_id":"` + id + `","from":"` + from + `","to":"+1B","ts":"` + ts + `","text":"` + text + `"}`)
}

func postWebhook(r *Router, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("X-Signature", sig)
	}
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func get(r *Router, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func listMessages(t *testing.T, r *Router, query string) models.MessagePage {
	t.Helper()
	w := get(r, "/messages"+query)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page models.MessagePage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	return page
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestWebhookCreatedThenDuplicate(t *testing.T) {
	r := newTestRouter(t, nil)
	body := payload("m1", "+1A", "2025-01-15T10:00:00Z", "Hello")
	sig := signature.Sign(body, testSecret)

	w := postWebhook(r, body, sig)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = postWebhook(r, body, sig)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	page := listMessages(t, r, "")
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "m1", page.Data[0].MessageID)
	assert.Equal(t, "+1A", page.Data[0].From)
	assert.Equal(t, "+1B", page.Data[0].To)
	require.NotNil(t, page.Data[0].Text)
	assert.Equal(t, "Hello", *page.Data[0].Text)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	r := newTestRouter(t, nil)
	body := payload("m1", "+1A", "2025-01-15T10:00:00Z", "Hello")

	for name, sig := range map[string]string{
		"wrong":   "123",
		"missing": "",
		"other":   signature.Sign(body, "othersecret"),
	} {
		t.Run(name, func(t *testing.T) {
			w := postWebhook(r, body, sig)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "INVALID_SIGNATURE", decodeEnvelope(t, w).Error.Code)
		})
	}

	assert.Equal(t, int64(0), listMessages(t, r, "").Total)
}

func TestWebhookValidationError(t *testing.T) {
	r := newTestRouter(t, nil)
	body := payload("m1", "+1A", "2025-01-15T10:00:00+01:00", "Hello")

	w := postWebhook(r, body, signature.Sign(body, testSecret))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	env := decodeEnvelope(t, w)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	var fields []map[string]string
	require.NoError(t, json.Unmarshal(env.Error.Details, &fields))
	require.NotEmpty(t, fields)
	assert.Equal(t, "ts", fields[0]["field"])

	assert.Equal(t, int64(0), listMessages(t, r, "").Total)
}

func TestWebhookPayloadTooLarge(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) { cfg.Server.MaxBodySize = 256 })
	body := payload("m1", "+1A", "2025-01-15T10:00:00Z", strings.Repeat("x", 512))

	w := postWebhook(r, body, signature.Sign(body, testSecret))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decodeEnvelope(t, w).Error.Code)
}

func TestMessagesOrderingAndFilters(t *testing.T) {
	r := newTestRouter(t, nil)
	for _, body := range [][]byte{
		payload("b", "+1A", "2025-01-15T10:00:00Z", "second"),
		payload("a", "+1A", "2025-01-15T10:00:00Z", "first"),
		payload("c", "+1C", "2025-01-15T09:00:00Z", "Early bird"),
	} {
		require.Equal(t, http.StatusOK, postWebhook(r, body, signature.Sign(body, testSecret)).Code)
	}

	page := listMessages(t, r, "")
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 50, page.Limit)
	assert.Equal(t, 0, page.Offset)
	require.Len(t, page.Data, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{page.Data[0].MessageID, page.Data[1].MessageID, page.Data[2].MessageID})

	page = listMessages(t, r, "?from=%2B1A")
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "a", page.Data[0].MessageID)
	assert.Equal(t, "b", page.Data[1].MessageID)

	page = listMessages(t, r, "?since=2025-01-15T10:00:00Z&limit=1&offset=1")
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "b", page.Data[0].MessageID)

	page = listMessages(t, r, "?q=BIRD")
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "c", page.Data[0].MessageID)
}

func TestMessagesInvalidQuery(t *testing.T) {
	r := newTestRouter(t, nil)

	for _, target := range []string{
		"/messages?limit=0",
		"/messages?limit=101",
		"/messages?limit=abc",
		"/messages?offset=-1",
		"/messages?since=yesterday",
	} {
		w := get(r, target)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, target)
		assert.Equal(t, "INVALID_QUERY", decodeEnvelope(t, w).Error.Code, target)
	}
}

func TestStats(t *testing.T) {
	r := newTestRouter(t, nil)

	w := get(r, "/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total_messages":0,"senders_count":0,"messages_per_sender":[],"first_message_ts":null,"last_message_ts":null}`, w.Body.String())

	for _, body := range [][]byte{
		payload("m1", "+1A", "2025-01-15T10:00:00Z", "one"),
		payload("m2", "+1A", "2025-01-15T11:00:00Z", "two"),
		payload("m3", "+1C", "2025-01-15T09:00:00Z", "three"),
	} {
		require.Equal(t, http.StatusOK, postWebhook(r, body, signature.Sign(body, testSecret)).Code)
	}

	w = get(r, "/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.TotalMessages)
	assert.Equal(t, int64(2), stats.SendersCount)
	assert.Equal(t, []models.SenderCount{{From: "+1A", Count: 2}, {From: "+1C", Count: 1}}, stats.MessagesPerSender)
	require.NotNil(t, stats.FirstMessageTs)
	require.NotNil(t, stats.LastMessageTs)
	assert.True(t, stats.FirstMessageTs.Equal(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)))
	assert.True(t, stats.LastMessageTs.Equal(time.Date(2025, 1, 15, 11, 0, 0, 0, time.UTC)))
}

func TestHealthProbes(t *testing.T) {
	r := newTestRouter(t, nil)

	w := get(r, "/health/live")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(r, "/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database"`)
}

func TestReadinessFailsWithoutSecret(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) { cfg.Webhook.Secret = "" })

	assert.Equal(t, http.StatusOK, get(r, "/health/live").Code)

	w := get(r, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"webhook_secret"`)

	body := payload("m1", "+1A", "2025-01-15T10:00:00Z", "Hello")
	assert.Equal(t, http.StatusUnauthorized, postWebhook(r, body, signature.Sign(body, "")).Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := newTestRouter(t, nil)

	w := get(r, "/health/live")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestMetricsAndDocumentRoutes(t *testing.T) {
	r := newTestRouter(t, nil)
	body := payload("m1", "+1A", "2025-01-15T10:00:00Z", "Hello")
	require.Equal(t, http.StatusOK, postWebhook(r, body, signature.Sign(body, testSecret)).Code)

	w := get(r, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "webhook_requests_total")
	assert.Contains(t, w.Body.String(), "http_requests_total")

	w = get(r, "/openapi.yaml")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/webhook")
}

func TestRateLimitReturnsEnvelope(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) {
		cfg.Security.RateLimit = 1
		cfg.Security.RateLimitBurst = 1
	})

	assert.Equal(t, http.StatusOK, get(r, "/health/live").Code)

	w := get(r, "/health/live")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeEnvelope(t, w).Error.Code)
}

func TestOpenAPIValidationRejectsOutOfRangeLimit(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) { cfg.Observability.OpenAPIValidation = true })

	w := get(r, "/messages?limit=500")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_QUERY", decodeEnvelope(t, w).Error.Code)

	assert.Equal(t, http.StatusOK, get(r, "/messages?limit=5").Code)
}
