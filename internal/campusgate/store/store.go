// Package store defines the records the gate engine persists and the narrow
// interfaces it consumes them through. Implementations live in the memory
// and sqlite subpackages.
package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyResolved   = errors.New("already resolved")
	ErrIntegrityConflict = errors.New("integrity conflict")
	ErrDuplicate         = errors.New("duplicate record")
)

// Page selects a 1-based page of Size rows.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// Window returns the [lo, hi) slice bounds of p over n items.
func (p Page) Window(n int) (int, int) {
	lo := p.Offset()
	if lo > n {
		lo = n
	}
	hi := lo + p.Size
	if p.Size <= 0 || hi > n {
		hi = n
	}
	return lo, hi
}

// Resolution is the review outcome attached to a violation or vehicle alert.
// It transitions from unresolved to resolved exactly once.
type Resolution struct {
	Resolved   bool
	ResolvedBy string
	ByName     string
	ResolvedAt time.Time
	Notes      string
}
