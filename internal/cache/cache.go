// Package cache holds the in-process lookup caches used in front of the
// catalog store.
package cache

// Cache is a keyed lookup cache.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// Purge drops every entry, used after bulk writes.
	Purge()
	Size() int
}

// Stats counts lookups since the cache was created.
type Stats struct {
	Hits   int64
	Misses int64
}
