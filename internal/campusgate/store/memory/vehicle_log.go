package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
)

type VehicleLog struct {
	mu      sync.Mutex
	entries map[string]store.VehicleEntry
	alerts  map[string]store.VehicleAlert
}

func NewVehicleLog() *VehicleLog {
	return &VehicleLog{
		entries: make(map[string]store.VehicleEntry),
		alerts:  make(map[string]store.VehicleAlert),
	}
}

// PutEntry stores e as-is, bypassing the one-open-entry check. It is meant
// for seeding and repairing data.
func (l *VehicleLog) PutEntry(e store.VehicleEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[e.ID] = e
}

func (l *VehicleLog) openLocked(plate string) []store.VehicleEntry {
	var open []store.VehicleEntry
	for _, e := range l.entries {
		if e.Plate == plate && e.Open() {
			open = append(open, e)
		}
	}
	return open
}

func (l *VehicleLog) addAlertLocked(a store.VehicleAlert) error {
	if _, ok := l.alerts[a.ID]; ok {
		return store.ErrDuplicate
	}
	a.Details = cloneDetails(a.Details)
	l.alerts[a.ID] = a
	return nil
}

func (l *VehicleLog) RecordEntry(_ context.Context, w store.EntryWrite) (store.EntryOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[w.Entry.ID]; ok {
		return store.EntryOutcome{}, store.ErrDuplicate
	}

	open := l.openLocked(w.Entry.Plate)
	if len(open) > 1 {
		return store.EntryOutcome{}, store.ErrIntegrityConflict
	}

	// Stage every write before applying any so a failure leaves nothing behind.
	var out store.EntryOutcome
	var staged []store.VehicleAlert
	if len(open) == 1 {
		stale := open[0]
		exit := w.Entry.EntryTime
		stale.ExitTime = &exit
		stale.Status = store.EntryFlagged
		stale.Notes = "superseded by re-entry"
		out.Superseded = &stale
		if w.OnStale != nil {
			staged = append(staged, w.OnStale(stale))
		}
	}
	if w.Alert != nil {
		staged = append(staged, *w.Alert)
	}
	for _, a := range staged {
		if _, ok := l.alerts[a.ID]; ok {
			return store.EntryOutcome{}, store.ErrDuplicate
		}
	}

	if out.Superseded != nil {
		l.entries[out.Superseded.ID] = *out.Superseded
	}
	for _, a := range staged {
		_ = l.addAlertLocked(a)
	}
	l.entries[w.Entry.ID] = w.Entry

	out.Entry = w.Entry
	out.Alerts = staged
	return out, nil
}

func (l *VehicleLog) RecordExit(_ context.Context, w store.ExitWrite) (store.ExitOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	open := l.openLocked(w.Plate)
	switch len(open) {
	case 0:
		a := w.OnMissing()
		if err := l.addAlertLocked(a); err != nil {
			return store.ExitOutcome{}, err
		}
		return store.ExitOutcome{Alert: &a}, nil
	case 1:
	default:
		return store.ExitOutcome{}, store.ErrIntegrityConflict
	}

	e := open[0]
	at := w.At
	e.ExitTime = &at
	e.ExitImage = w.Image
	e.Status = store.EntryExited
	l.entries[e.ID] = e
	return store.ExitOutcome{Entry: &e}, nil
}

func (l *VehicleLog) ListEntries(_ context.Context, f store.EntryFilter, p store.Page) ([]store.VehicleEntry, int, error) {
	l.mu.Lock()
	var all []store.VehicleEntry
	for _, e := range l.entries {
		if f.Match(e) {
			all = append(all, e)
		}
	}
	l.mu.Unlock()

	slices.SortFunc(all, func(a, b store.VehicleEntry) int {
		return newestFirst(a.EntryTime, b.EntryTime, a.ID, b.ID)
	})
	return page(all, p), len(all), nil
}

func (l *VehicleLog) ListAlerts(_ context.Context, f store.AlertFilter, p store.Page) ([]store.VehicleAlert, int, error) {
	l.mu.Lock()
	var all []store.VehicleAlert
	for _, a := range l.alerts {
		if f.Match(a) {
			a.Details = cloneDetails(a.Details)
			all = append(all, a)
		}
	}
	l.mu.Unlock()

	slices.SortFunc(all, func(a, b store.VehicleAlert) int {
		return newestFirst(a.At, b.At, a.ID, b.ID)
	})
	return page(all, p), len(all), nil
}

func (l *VehicleLog) ResolveAlert(_ context.Context, id string, res store.Resolution) (store.VehicleAlert, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.alerts[id]
	if !ok {
		return store.VehicleAlert{}, store.ErrNotFound
	}
	if a.Resolution.Resolved {
		return store.VehicleAlert{}, store.ErrAlreadyResolved
	}
	res.Resolved = true
	a.Resolution = res
	l.alerts[id] = a
	a.Details = cloneDetails(a.Details)
	return a, nil
}
