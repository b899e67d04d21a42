// Package github provides the upstream source-control hosting API client.
// It performs plain HTTP calls and field filtering; rate limiting and
// retries are the scheduler's concern, caching is the pagination engine's.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubcache_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hubcache_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})
)

// DefaultBaseURL is the production upstream API root.
const DefaultBaseURL = "https://api.github.com"

// listPageSize is the per_page value requested from the upstream; the
// pagination engine slices these results into its own smaller pages.
const listPageSize = 100

// Config holds the client configuration.
type Config struct {
	// BaseURL is the upstream API root (override for tests).
	BaseURL string

	// Token is the personal access token used as a bearer credential.
	// Empty means unauthenticated requests.
	Token string

	// UserAgent identifies this deployment to the upstream (required).
	UserAgent string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(token, userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Token:     token,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
	}
}

// Client calls the upstream API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	logger     zerolog.Logger
}

// NewClient creates an upstream API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		logger:     log.With().Str("component", "github-client").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// ListRepositories fetches one upstream page of the global repository
// listing, continuing after the given record identifier.
func (c *Client) ListRepositories(ctx context.Context, since int64) ([]RepoSummary, error) {
	query := url.Values{
		"since":    {strconv.FormatInt(since, 10)},
		"per_page": {strconv.Itoa(listPageSize)},
	}

	var repos []RepoSummary
	if err := c.get(ctx, "/repositories", query, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// GetRepository fetches a single repository by identifier.
func (c *Client) GetRepository(ctx context.Context, id int64) (*RepoDetail, error) {
	var detail RepoDetail
	if err := c.get(ctx, fmt.Sprintf("/repositories/%d", id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetUser fetches a single account profile.
func (c *Client) GetUser(ctx context.Context, login string) (*UserProfile, error) {
	var profile UserProfile
	if err := c.get(ctx, "/users/"+url.PathEscape(login), nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListUserRepositories fetches the full repository set of one account.
// The upstream returns owner-scoped listings in a single call; slicing
// into pages happens downstream.
func (c *Client) ListUserRepositories(ctx context.Context, login string) ([]OwnedRepo, error) {
	var repos []OwnedRepo
	if err := c.get(ctx, "/users/"+url.PathEscape(login)+"/repos", nil, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// SearchTrending fetches repositories created within the given period,
// ordered by stars. Period is one of "day", "week" or "month"; language
// optionally narrows the search.
func (c *Client) SearchTrending(ctx context.Context, period, language string) ([]TrendingRepo, error) {
	q := "created:>" + trendingSince(period).Format("2006-01-02")
	if language != "" {
		q += " language:" + language
	}

	query := url.Values{
		"q":        {q},
		"sort":     {"stars"},
		"order":    {"desc"},
		"per_page": {strconv.Itoa(listPageSize)},
	}

	var result searchResult
	if err := c.get(ctx, "/search/repositories", query, &result); err != nil {
		return nil, err
	}

	repos := make([]TrendingRepo, 0, len(result.Items))
	for _, item := range result.Items {
		repos = append(repos, TrendingRepo{
			ID:          item.ID,
			Name:        item.Name,
			FullName:    item.FullName,
			Owner:       item.Owner,
			HTMLURL:     item.HTMLURL,
			Description: item.Description,
			URL:         item.URL,
			Stars:       item.StargazersCount,
			Forks:       item.ForksCount,
			Language:    item.Language,
		})
	}
	return repos, nil
}

// trendingSince maps a period name to its search window start.
func trendingSince(period string) time.Time {
	now := time.Now()
	switch period {
	case "day":
		return now.AddDate(0, 0, -1)
	case "month":
		return now.AddDate(0, -1, 0)
	default: // "week" and anything unrecognized
		return now.AddDate(0, 0, -7)
	}
}

// get performs a GET request and decodes the JSON response into v.
// Non-2xx responses become *APIError.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, v any) error {
	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	upstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return fmt.Errorf("upstream request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
			URL:        endpoint,
		}
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("Upstream request error")
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode upstream response %s: %w", endpoint, err)
	}
	return nil
}

// errorMessage extracts the upstream error message, if any.
func errorMessage(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&payload); err != nil {
		return ""
	}
	return payload.Message
}
