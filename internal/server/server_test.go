package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubcache/hubcache/internal/testutil"
	"github.com/hubcache/hubcache/pkg/cache"
	"github.com/hubcache/hubcache/pkg/github"
	"github.com/hubcache/hubcache/pkg/pagination"
	"github.com/hubcache/hubcache/pkg/scheduler"
	"github.com/hubcache/hubcache/pkg/store"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func newTestApp(t *testing.T) (*fiber.App, *testutil.MockHub) {
	t.Helper()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	st := store.NewWithClient(setupTestRedis(t), logger)
	cm := cache.NewManager(st, logger)

	sched := scheduler.New(scheduler.Config{
		MinInterval: 0,
		MaxRetries:  3,
		BaseDelay:   time.Millisecond,
		QueueSize:   16,
	}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		sched.Shutdown(ctx)
	})

	mock := testutil.NewMockHub()
	t.Cleanup(mock.Close)

	cfg := github.DefaultConfig("", "hubcache-test/0.1.0")
	cfg.BaseURL = mock.URL()
	hub, err := github.NewClient(cfg)
	require.NoError(t, err)

	engine := pagination.NewEngine(cm, sched, hub, pagination.DefaultTTLConfig(), logger)

	app, err := New(Options{Logger: logger, Engine: engine, Cache: cm})
	require.NoError(t, err)
	return app, mock
}

func doRequest(t *testing.T, app *fiber.App, path string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req)
	require.NoError(t, err, "app.Test error")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, body
}

func seedRepositories(mock *testutil.MockHub, n int) {
	repos := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		repos = append(repos, map[string]any{
			"id": int64(i), "name": fmt.Sprintf("repo-%d", i),
			"full_name": fmt.Sprintf("acme/repo-%d", i),
			"owner":     map[string]any{"login": "acme", "id": int64(1)},
		})
	}
	mock.SetJSON("/repositories", http.StatusOK, repos)
}

func TestHealthz(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doRequest(t, app, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestRepositoryPage_ReturnsFirstPage(t *testing.T) {
	app, mock := newTestApp(t)
	seedRepositories(mock, 25)

	resp, body := doRequest(t, app, "/repositories/full?page=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, fiber.MIMEApplicationJSON, resp.Header.Get(fiber.HeaderContentType))

	var page []map[string]any
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Len(t, page, 10)
}

func TestRepositoryPage_SecondRequestServedFromCache(t *testing.T) {
	app, mock := newTestApp(t)
	seedRepositories(mock, 25)

	doRequest(t, app, "/repositories/full?page=1")
	resp, _ := doRequest(t, app, "/repositories/full?page=1")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, mock.RequestsTo("/repositories"))
}

func TestRepositoryPage_BrokenChainRedirects(t *testing.T) {
	app, mock := newTestApp(t)

	resp, body := doRequest(t, app, "/repositories/full?page=2")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.JSONEq(t, `{"redirect":true,"page":1}`, string(body))
	assert.Equal(t, 0, mock.RequestCount())
}

func TestRepositoryPage_DefaultsToPageOne(t *testing.T) {
	app, mock := newTestApp(t)
	seedRepositories(mock, 5)

	resp, _ := doRequest(t, app, "/repositories/full")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, mock.RequestsTo("/repositories"))
}

func TestRepositoryPage_InvalidPage(t *testing.T) {
	app, mock := newTestApp(t)

	for _, path := range []string{
		"/repositories/full?page=0",
		"/repositories/full?page=abc",
		"/repositories/full?page=-3",
	} {
		resp, _ := doRequest(t, app, path)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
	assert.Equal(t, 0, mock.RequestCount())
}

func TestRepositoryDetail_NotFoundCached(t *testing.T) {
	app, mock := newTestApp(t)

	resp, body := doRequest(t, app, "/repositories/detail/999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Not Found"}`, string(body))

	resp, _ = doRequest(t, app, "/repositories/detail/999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, mock.RequestsTo("/repositories/999"))
}

func TestRepositoryDetail_InvalidID(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doRequest(t, app, "/repositories/detail/abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUserProfile_Success(t *testing.T) {
	app, mock := newTestApp(t)
	mock.SetJSON("/users/octocat", http.StatusOK, map[string]any{
		"id": 583231, "login": "octocat", "followers": 100,
	})

	resp, body := doRequest(t, app, "/user/octocat")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var profile map[string]any
	require.NoError(t, json.Unmarshal(body, &profile))
	assert.Equal(t, "octocat", profile["login"])
}

func TestUserRepositoryPage_OutOfRangeRedirects(t *testing.T) {
	app, mock := newTestApp(t)
	mock.SetJSON("/users/octocat/repos", http.StatusOK, []map[string]any{
		{"id": int64(1), "name": "hello", "full_name": "octocat/hello",
			"owner": map[string]any{"login": "octocat", "id": int64(583231)}},
	})

	resp, _ := doRequest(t, app, "/user/octocat/repos/1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doRequest(t, app, "/user/octocat/repos/9")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.JSONEq(t, `{"redirect":true,"page":1}`, string(body))
	assert.Equal(t, 1, mock.RequestsTo("/users/octocat/repos"))
}

func TestTrending_Success(t *testing.T) {
	app, mock := newTestApp(t)
	mock.SetJSON("/search/repositories", http.StatusOK, map[string]any{
		"items": []map[string]any{{
			"id": int64(5), "name": "hot", "full_name": "x/hot",
			"stargazers_count": 4200,
			"owner":            map[string]any{"login": "x", "id": int64(9)},
		}},
	})

	resp, body := doRequest(t, app, "/trending?period=day&language=go")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Items      []map[string]any `json:"items"`
		TotalPages int              `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Len(t, payload.Items, 1)
	assert.Equal(t, 1, payload.TotalPages)
}

func TestThrottledUpstreamBecomesServiceUnavailable(t *testing.T) {
	app, mock := newTestApp(t)
	mock.SetError("/repositories", http.StatusTooManyRequests, "API rate limit exceeded")

	resp, body := doRequest(t, app, "/repositories/full?page=1")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "rate limited")
}

func TestRequestIDHeader(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doRequest(t, app, "/healthz")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
