package reference

import (
	"errors"
	"sync/atomic"
)

// ErrNotReady is returned before the first snapshot has been published.
var ErrNotReady = errors.New("reference data not loaded")

// Index holds the current Snapshot. It is safe for concurrent use.
//
// Readers call Current once per operation and run every lookup of that
// operation against the returned Snapshot, so a concurrent Replace is
// never observed halfway through.
type Index struct {
	current atomic.Pointer[Snapshot]

	// onReplace is called after each publish; used for metrics.
	onReplace func(*Snapshot)
}

// NewIndex returns an empty Index. onReplace may be nil.
func NewIndex(onReplace func(*Snapshot)) *Index {
	return &Index{onReplace: onReplace}
}

// Replace publishes s as the current snapshot.
func (ix *Index) Replace(s *Snapshot) {
	if s == nil {
		return
	}
	ix.current.Store(s)
	if ix.onReplace != nil {
		ix.onReplace(s)
	}
}

// Current returns the published snapshot, or nil before the first Replace.
// A nil snapshot answers every query with an empty result.
func (ix *Index) Current() *Snapshot {
	return ix.current.Load()
}

// Snapshot is like Current but reports ErrNotReady instead of returning nil.
func (ix *Index) Snapshot() (*Snapshot, error) {
	s := ix.current.Load()
	if s == nil {
		return nil, ErrNotReady
	}
	return s, nil
}

// Ready reports whether a snapshot has been published.
func (ix *Index) Ready() bool {
	return ix.current.Load() != nil
}
