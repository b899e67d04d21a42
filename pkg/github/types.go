package github

// The types below retain only a stable, documented subset of the upstream
// record shapes. Decoding into these structs is also the filtering step:
// anything the upstream adds or renames outside this subset never reaches
// the cache, which insulates cached data from upstream schema churn and
// keeps payloads small.

// Owner is the embedded account summary on repository records.
type Owner struct {
	Login     string `json:"login"`
	ID        int64  `json:"id"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

// RepoSummary is one record of the global repository listing.
type RepoSummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Owner       Owner  `json:"owner"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// License is the license summary on repository detail records.
type License struct {
	Name   string `json:"name"`
	SPDXID string `json:"spdx_id"`
}

// RepoDetail is a single repository fetched by identifier.
type RepoDetail struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	FullName         string   `json:"full_name"`
	Description      string   `json:"description"`
	HTMLURL          string   `json:"html_url"`
	Language         string   `json:"language"`
	StargazersCount  int      `json:"stargazers_count"`
	ForksCount       int      `json:"forks_count"`
	SubscribersCount int      `json:"subscribers_count"`
	Visibility       string   `json:"visibility"`
	Archived         bool     `json:"archived"`
	Disabled         bool     `json:"disabled"`
	License          *License `json:"license"`
	Owner            *Owner   `json:"owner"`
}

// OwnedRepo is one record of an owner-scoped repository listing.
type OwnedRepo struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	Description     string `json:"description"`
	HTMLURL         string `json:"html_url"`
	Language        string `json:"language"`
	StargazersCount int    `json:"stargazers_count"`
	ForksCount      int    `json:"forks_count"`
	WatchersCount   int    `json:"watchers_count"`
	Visibility      string `json:"visibility"`
	Archived        bool   `json:"archived"`
	Disabled        bool   `json:"disabled"`
	Owner           Owner  `json:"owner"`
}

// UserProfile is a single account entity.
type UserProfile struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Followers int    `json:"followers"`
	Following int    `json:"following"`
	Location  string `json:"location"`
	Company   string `json:"company"`
	Email     string `json:"email"`
	Blog      string `json:"blog"`
}

// TrendingRepo is one record of a trending search result.
type TrendingRepo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Owner       Owner  `json:"owner"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Stars       int    `json:"stars"`
	Forks       int    `json:"forks"`
	Language    string `json:"language"`
}

// trendingItem mirrors the raw search result shape before normalization.
type trendingItem struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	Owner           Owner  `json:"owner"`
	HTMLURL         string `json:"html_url"`
	Description     string `json:"description"`
	URL             string `json:"url"`
	StargazersCount int    `json:"stargazers_count"`
	ForksCount      int    `json:"forks_count"`
	Language        string `json:"language"`
}

type searchResult struct {
	Items []trendingItem `json:"items"`
}
