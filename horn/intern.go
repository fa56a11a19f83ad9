package horn

import "sync"

// symbolIntern provides interning of relation and constructor names so the
// many copies produced during analysis and lowering share one backing
// string. Uses sync.Map for lock-free concurrent reads.
type symbolIntern struct {
	cache sync.Map // map[string]string
}

var symbols = &symbolIntern{}

// InternSymbol returns an interned copy of s.
func InternSymbol(s string) string {
	// Fast path: load existing (lock-free)
	if v, ok := symbols.cache.Load(s); ok {
		return v.(string)
	}

	// Slow path: store and return
	actual, _ := symbols.cache.LoadOrStore(s, s)
	return actual.(string)
}

// ClearInterns drops the intern cache. Useful for tests or when memory
// needs to be reclaimed.
func ClearInterns() {
	symbols = &symbolIntern{}
}
