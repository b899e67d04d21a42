package pagination

import (
	"fmt"

	"github.com/hubcache/hubcache/pkg/cache"
	"github.com/hubcache/hubcache/pkg/github"
)

// PageSize is the number of records per cached page.
const PageSize = 10

// splitPages slices records into contiguous pages of the given size.
// Pages are 1-indexed by convention; index i of the result is page i+1.
func splitPages[T any](records []T, size int) [][]T {
	if size <= 0 {
		size = PageSize
	}
	var pages [][]T
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		pages = append(pages, records[start:end])
	}
	return pages
}

// cursorFromPage derives the upstream continuation cursor from a cached
// listing page: the identifier of the page's last record. It is callable
// only on a success envelope holding a non-empty record list; forward
// pagination is impossible without it, which is exactly the condition
// that triggers a redirect to page 1.
func cursorFromPage(env *cache.Envelope) (int64, error) {
	var records []github.RepoSummary
	if err := env.DecodeData(&records); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("cannot derive cursor from empty page")
	}
	return records[len(records)-1].ID, nil
}
