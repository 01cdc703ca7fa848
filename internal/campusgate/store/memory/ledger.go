package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
)

type Ledger struct {
	mu         sync.Mutex
	violations map[string]store.Violation
	attempts   []store.FailAttempt
}

func NewLedger() *Ledger {
	return &Ledger{violations: make(map[string]store.Violation)}
}

func (l *Ledger) CreateViolation(_ context.Context, v store.Violation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.insertLocked(v)
}

func (l *Ledger) insertLocked(v store.Violation) error {
	if _, ok := l.violations[v.ID]; ok {
		return store.ErrDuplicate
	}
	v.Details = cloneDetails(v.Details)
	l.violations[v.ID] = v
	return nil
}

func (l *Ledger) GetViolation(_ context.Context, id string) (store.Violation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.violations[id]
	if !ok {
		return store.Violation{}, store.ErrNotFound
	}
	v.Details = cloneDetails(v.Details)
	return v, nil
}

func (l *Ledger) ListViolations(_ context.Context, f store.ViolationFilter, p store.Page) ([]store.Violation, int, error) {
	l.mu.Lock()
	var all []store.Violation
	for _, v := range l.violations {
		if f.Match(v) {
			v.Details = cloneDetails(v.Details)
			all = append(all, v)
		}
	}
	l.mu.Unlock()

	slices.SortFunc(all, func(a, b store.Violation) int {
		return newestFirst(a.OccurredAt, b.OccurredAt, a.ID, b.ID)
	})
	return page(all, p), len(all), nil
}

func (l *Ledger) ResolveViolation(_ context.Context, id string, res store.Resolution) (store.Violation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.violations[id]
	if !ok {
		return store.Violation{}, store.ErrNotFound
	}
	if v.Resolution.Resolved {
		return store.Violation{}, store.ErrAlreadyResolved
	}
	res.Resolved = true
	v.Resolution = res
	l.violations[id] = v
	v.Details = cloneDetails(v.Details)
	return v, nil
}

func (l *Ledger) RecordFailedAttempt(
	_ context.Context,
	attempt store.FailAttempt,
	since time.Time,
	build store.BuildViolation,
) (store.Violation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prior := 0
	for _, a := range l.attempts {
		if a.Subject == attempt.Subject && a.GateID == attempt.GateID &&
			!a.AttemptedAt.Before(since) && !a.AttemptedAt.After(attempt.AttemptedAt) {
			prior++
		}
	}

	v := build(prior)
	if err := l.insertLocked(v); err != nil {
		return store.Violation{}, err
	}
	attempt.ViolationID = v.ID
	l.attempts = append(l.attempts, attempt)
	v.Details = cloneDetails(v.Details)
	return v, nil
}

// Attempts returns a copy of every recorded failed attempt.  Test-only helper.
func (l *Ledger) Attempts() []store.FailAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.attempts)
}
