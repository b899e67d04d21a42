package cache

import "fmt"

// Cache key builders. The formats are part of the external interface and
// must stay byte-for-byte stable across releases: the routing layer and
// any sibling instances sharing the store derive the same names.

// RepositoryPageKey names one page of the cursor-continued global
// repository listing.
func RepositoryPageKey(page int) string {
	return fmt.Sprintf("repositories_page_%d", page)
}

// RepoDetailKey names a single repository detail entry.
func RepoDetailKey(id int64) string {
	return fmt.Sprintf("detail_repo_%d", id)
}

// UserProfileKey names a user profile entity.
func UserProfileKey(owner string) string {
	return fmt.Sprintf("user_%s", owner)
}

// UserReposPageKey names one page of an owner-scoped repository listing.
func UserReposPageKey(owner string, page int) string {
	return fmt.Sprintf("user_repos_%s_%d", owner, page)
}

// UserReposMaxPageKey names the per-owner max-page counter.
func UserReposMaxPageKey(owner string) string {
	return fmt.Sprintf("user_repos_%s_max_page", owner)
}

// TrendingPageKey names one page of a trending search listing.
// An empty language collapses to "all".
func TrendingPageKey(period, language string, page int) string {
	if language == "" {
		language = "all"
	}
	return fmt.Sprintf("trending_%s_%s_page_%d", period, language, page)
}
