package buffersync

import (
	"cmp"
	"slices"
	"time"
)

// Diagnostics delays.
const (
	defaultDiagnosticDelay = 200 * time.Millisecond
	minDiagnosticDelay     = 300 * time.Millisecond
	maxDiagnosticDelay     = 800 * time.Millisecond
)

// diagnosticDelay grows with the size of the buffer: one millisecond per
// twenty lines, clamped to [300ms, 800ms].
func diagnosticDelay(lineCount int) time.Duration {
	ms := time.Duration((lineCount+19)/20) * time.Millisecond
	return min(max(ms, minDiagnosticDelay), maxDiagnosticDelay)
}

// pendingDiagnostics maps resources to the logical time they were queued.
type pendingDiagnostics struct {
	*ResourceMap[int64]
}

func newPendingDiagnostics(normalize PathNormalizer, config ResourceMapConfig) *pendingDiagnostics {
	return &pendingDiagnostics{ResourceMap: NewResourceMap[int64](normalize, config)}
}

// orderedFileSet returns the queued resources ordered by ascending queue
// time. Ties keep insertion order.
func (p *pendingDiagnostics) orderedFileSet() *ResourceMap[struct{}] {
	entries := p.Entries()
	slices.SortStableFunc(entries, func(a, b ResourceEntry[int64]) int {
		return cmp.Compare(a.Value, b.Value)
	})

	set := newSibling[struct{}](p.ResourceMap)
	for _, e := range entries {
		set.Set(e.Resource, struct{}{})
	}
	return set
}
