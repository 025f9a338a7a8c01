//go:build race

package opt

// Race_ reports whether the race detector is enabled.
// Stress loops shrink their iteration counts under the detector.
const Race_ = true
