//go:build syncore_cachelinesize_32

package opt

// CacheLineSize_ is forced by the syncore_cachelinesize_32 build tag.
const CacheLineSize_ = 32
