package store

import (
	"context"
	"time"
)

// AccessLogRecord captures a granted passage for the audit trail.
type AccessLogRecord struct {
	Subject        SubjectRef
	GateID         string
	AccessedAt     time.Time
	CodeUsed       string
	FaceVerified   bool
	FaceConfidence *float64
}

// AccessLog persists grants as an append-only log with time-based retention.
type AccessLog interface {
	RecordAccess(ctx context.Context, rec AccessLogRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
