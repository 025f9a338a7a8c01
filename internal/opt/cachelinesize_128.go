//go:build syncore_cachelinesize_128

package opt

// CacheLineSize_ is forced by the syncore_cachelinesize_128 build tag.
const CacheLineSize_ = 128
