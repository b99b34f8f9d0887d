// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry expiry.
//
// The cache evicts the least recently used entry once it exceeds its
// capacity. With WithTTL, entries also expire a fixed duration after they were
// last written; expired entries are dropped lazily on access or eagerly with
// Purge.
//
// # Usage
//
//	reports := cache.New[string, *compliance.Report](256, cache.WithTTL(24*time.Hour))
//
//	reports.Put("acme|2026-03-01|2026-03-02", report)
//
//	if r, ok := reports.Get("acme|2026-03-01|2026-03-02"); ok {
//		// use r
//	}
//
// An eviction callback observes every entry leaving the cache:
//
//	reports.SetEvictCallback(func(key string, _ *compliance.Report) {
//		log.Debug("report evicted", "key", key)
//	})
//
// All operations are O(1) except Purge and Clear, which are O(n).
package cache
