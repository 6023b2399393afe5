package rules

import "time"

// SpecCache caches the list of active specifications so that listing does
// not hit the store on every request.
type SpecCache interface {
	// Get returns the cached records, or nil on a miss or after expiry.
	Get() []*SpecRecord

	// Set stores records in the cache.
	Set(specs []*SpecRecord)

	// Invalidate clears the cache, forcing a refresh on the next Get.
	Invalidate()

	// IsValid reports whether the cache holds unexpired data.
	IsValid() bool
}

// CacheConfig holds configuration for cache behaviour.
type CacheConfig struct {
	// TTL is the time-to-live for cached entries. Zero means entries only
	// go away through Invalidate.
	TTL time.Duration
}

// DefaultCacheConfig invalidates on mutation only.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
