//go:build syncore_cachelinesize_256

package opt

// CacheLineSize_ is forced by the syncore_cachelinesize_256 build tag.
const CacheLineSize_ = 256
