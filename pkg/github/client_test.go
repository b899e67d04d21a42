package github

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubcache/hubcache/internal/testutil"
)

func newTestClient(t *testing.T) (*Client, *testutil.MockHub) {
	t.Helper()

	mock := testutil.NewMockHub()
	t.Cleanup(mock.Close)

	cfg := DefaultConfig("test-token", "hubcache-test/0.1.0")
	cfg.BaseURL = mock.URL()

	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client, mock
}

func TestNewClient_RequiresUserAgent(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://localhost"})
	assert.Error(t, err)
}

func TestListRepositories(t *testing.T) {
	client, mock := newTestClient(t)

	var gotSince, gotPerPage string
	mock.SetHandler("/repositories", func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		gotPerPage = r.URL.Query().Get("per_page")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 1, "name": "grit", "full_name": "mojombo/grit",
			 "owner": {"login": "mojombo", "id": 1, "avatar_url": "a", "html_url": "h"},
			 "html_url": "hu", "description": "d", "url": "u",
			 "private": false, "fork": false, "forks_url": "ignored"}
		]`))
	})

	repos, err := client.ListRepositories(context.Background(), 364)
	require.NoError(t, err)

	assert.Equal(t, "364", gotSince)
	assert.Equal(t, "100", gotPerPage)
	require.Len(t, repos, 1)
	assert.Equal(t, int64(1), repos[0].ID)
	assert.Equal(t, "mojombo/grit", repos[0].FullName)
	assert.Equal(t, "mojombo", repos[0].Owner.Login)
}

func TestListRepositories_SetsHeaders(t *testing.T) {
	client, mock := newTestClient(t)

	var gotAuth, gotAccept, gotUA string
	mock.SetHandler("/repositories", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`[]`))
	})

	_, err := client.ListRepositories(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "application/vnd.github.v3+json", gotAccept)
	assert.Equal(t, "hubcache-test/0.1.0", gotUA)
}

func TestGetRepository_NotFound(t *testing.T) {
	client, mock := newTestClient(t)
	mock.SetError("/repositories/999", http.StatusNotFound, "Not Found")

	_, err := client.GetRepository(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.HTTPStatus())
	assert.Equal(t, "Not Found", apiErr.Message)
}

func TestGetUser(t *testing.T) {
	client, mock := newTestClient(t)
	mock.SetJSON("/users/octocat", http.StatusOK, map[string]any{
		"id": 583231, "login": "octocat", "name": "The Octocat",
		"avatar_url": "https://example.invalid/a.png",
		"followers":  100, "following": 9,
		"public_repos": 8, // outside the retained subset
	})

	profile, err := client.GetUser(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Equal(t, "octocat", profile.Login)
	assert.Equal(t, 100, profile.Followers)
}

func TestListUserRepositories(t *testing.T) {
	client, mock := newTestClient(t)
	mock.SetJSON("/users/octocat/repos", http.StatusOK, []map[string]any{
		{"id": 1, "name": "hello", "full_name": "octocat/hello",
			"stargazers_count": 3, "owner": map[string]any{"login": "octocat", "id": 583231}},
		{"id": 2, "name": "world", "full_name": "octocat/world",
			"stargazers_count": 1, "owner": map[string]any{"login": "octocat", "id": 583231}},
	})

	repos, err := client.ListUserRepositories(context.Background(), "octocat")
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "octocat/hello", repos[0].FullName)
	assert.Equal(t, 3, repos[0].StargazersCount)
}

func TestSearchTrending(t *testing.T) {
	client, mock := newTestClient(t)

	var gotQuery, gotSort string
	mock.SetHandler("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotSort = r.URL.Query().Get("sort")
		w.Write([]byte(`{"items": [
			{"id": 5, "name": "hot", "full_name": "x/hot",
			 "stargazers_count": 4200, "forks_count": 17, "language": "Go",
			 "owner": {"login": "x", "id": 9}}
		]}`))
	})

	repos, err := client.SearchTrending(context.Background(), "day", "go")
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "created:>")
	assert.Contains(t, gotQuery, "language:go")
	assert.Equal(t, "stars", gotSort)
	require.Len(t, repos, 1)
	assert.Equal(t, 4200, repos[0].Stars)
	assert.Equal(t, "Go", repos[0].Language)
}

func TestGet_ThrottledStatus(t *testing.T) {
	client, mock := newTestClient(t)
	mock.SetError("/repositories", http.StatusTooManyRequests, "API rate limit exceeded")

	_, err := client.ListRepositories(context.Background(), 0)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 429, apiErr.StatusCode)
}
