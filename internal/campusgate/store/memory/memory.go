// Package memory holds mutex-guarded in-memory stores for tests and the
// memory backend. Every method that reads and then writes does so under one
// lock, which gives the same atomicity the sqlite stores get from a
// transaction.
package memory

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
)

// newestFirst orders by t descending, then id ascending.
func newestFirst(at, bt time.Time, aid, bid string) int {
	if c := bt.Compare(at); c != 0 {
		return c
	}
	return strings.Compare(aid, bid)
}

func page[T any](items []T, p store.Page) []T {
	lo, hi := p.Window(len(items))
	return slices.Clone(items[lo:hi])
}

func cloneDetails(d map[string]any) map[string]any {
	if d == nil {
		return map[string]any{}
	}
	return maps.Clone(d)
}
