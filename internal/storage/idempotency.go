package storage

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// RecentMerges is a size-bounded, time-windowed cache of completed merges.
// A retried merge request that matches a recent success is answered from
// the cache instead of failing on the already-removed chunk blobs. Entries
// expire after the retention window and the cache never grows past its
// configured size, so it cannot accumulate for the lifetime of the process.
type RecentMerges struct {
	cache *expirable.LRU[string, MergeResult]
}

// DefaultRecentSize and DefaultRecentTTL bound the idempotency window.
const (
	DefaultRecentSize = 1024
	DefaultRecentTTL  = 10 * time.Minute
)

// NewRecentMerges creates the cache. Non-positive size or ttl fall back to
// the defaults.
func NewRecentMerges(size int, ttl time.Duration) *RecentMerges {
	if size <= 0 {
		size = DefaultRecentSize
	}
	if ttl <= 0 {
		ttl = DefaultRecentTTL
	}
	return &RecentMerges{
		cache: expirable.NewLRU[string, MergeResult](size, nil, ttl),
	}
}

// MergeKey identifies one logical merge request.
func MergeKey(userID int64, fileName string, totalChunks int, size int64) string {
	return fmt.Sprintf("%d/%s/%d/%d", userID, fileName, totalChunks, size)
}

// Get returns the cached result for key, if present and unexpired.
func (r *RecentMerges) Get(key string) (MergeResult, bool) {
	return r.cache.Get(key)
}

// Add records a completed merge under key.
func (r *RecentMerges) Add(key string, res MergeResult) {
	r.cache.Add(key, res)
}
