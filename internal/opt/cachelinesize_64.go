//go:build syncore_cachelinesize_64

package opt

// CacheLineSize_ is forced by the syncore_cachelinesize_64 build tag.
const CacheLineSize_ = 64
