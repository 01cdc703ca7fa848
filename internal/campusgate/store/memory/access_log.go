package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
)

// AccessLog is an in-memory append-only log of granted passages.
type AccessLog struct {
	mu      sync.Mutex
	records []store.AccessLogRecord
}

func NewAccessLog() *AccessLog {
	return &AccessLog{}
}

func (l *AccessLog) RecordAccess(_ context.Context, rec store.AccessLogRecord) error {
	if rec.AccessedAt.IsZero() {
		rec.AccessedAt = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *AccessLog) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.records[:0]
	var deleted int64
	for _, r := range l.records {
		if r.AccessedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	l.records = kept
	return deleted, nil
}

// Records returns a copy of all recorded grants.  Test-only helper.
func (l *AccessLog) Records() []store.AccessLogRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]store.AccessLogRecord, len(l.records))
	copy(out, l.records)
	return out
}
