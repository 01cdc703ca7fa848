package store

import (
	"context"
	"time"
)

type ViolationType string

const (
	ViolationUnauthorizedScan ViolationType = "unauthorized_qr_scan"
	ViolationFaceMismatch     ViolationType = "face_verification_mismatch"
	ViolationMultipleFailures ViolationType = "multiple_fail_attempt"
	ViolationExpiredVisitor   ViolationType = "expired_visitor_qr_code"
)

func ParseViolationType(s string) (ViolationType, bool) {
	switch t := ViolationType(s); t {
	case ViolationUnauthorizedScan, ViolationFaceMismatch, ViolationMultipleFailures, ViolationExpiredVisitor:
		return t, true
	}
	return "", false
}

// Violation is an access anomaly. Everything except Resolution is fixed at
// creation. Subject is zero for scans that matched nobody.
type Violation struct {
	ID         string
	Type       ViolationType
	Subject    SubjectRef
	GateID     string
	OccurredAt time.Time
	Details    map[string]any
	Resolution Resolution
}

// FailAttempt is one failed face verification. Append-only.
type FailAttempt struct {
	ID          string
	Subject     SubjectRef
	GateID      string
	AttemptedAt time.Time
	Confidence  float64
	ViolationID string
}

// ViolationFilter fields are ANDed; zero values do not filter.
type ViolationFilter struct {
	Type        ViolationType
	SubjectKind SubjectKind
	GateID      string
	From        *time.Time
	To          *time.Time
	Resolved    *bool
}

// Match reports whether v passes every set field of f.
func (f ViolationFilter) Match(v Violation) bool {
	if f.Type != "" && v.Type != f.Type {
		return false
	}
	if f.SubjectKind != "" && v.Subject.Kind != f.SubjectKind {
		return false
	}
	if f.GateID != "" && v.GateID != f.GateID {
		return false
	}
	if f.From != nil && v.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && v.OccurredAt.After(*f.To) {
		return false
	}
	if f.Resolved != nil && v.Resolution.Resolved != *f.Resolved {
		return false
	}
	return true
}

// BuildViolation receives the number of failures already recorded for the
// same subject and gate inside the window and returns the violation to store
// alongside the new attempt.
type BuildViolation func(prior int) Violation

// Ledger is the authoritative record of violations and failed attempts.
type Ledger interface {
	CreateViolation(ctx context.Context, v Violation) error
	GetViolation(ctx context.Context, id string) (Violation, error)
	// ListViolations orders by OccurredAt descending then ID ascending and
	// returns the page together with the unpaged total.
	ListViolations(ctx context.Context, f ViolationFilter, page Page) ([]Violation, int, error)
	// ResolveViolation returns ErrNotFound or ErrAlreadyResolved without
	// touching the record.
	ResolveViolation(ctx context.Context, id string, res Resolution) (Violation, error)
	// RecordFailedAttempt counts attempts for the same subject and gate with
	// AttemptedAt in [since, attempt.AttemptedAt], builds the violation from
	// that count and writes both records in one transaction.
	RecordFailedAttempt(ctx context.Context, attempt FailAttempt, since time.Time, build BuildViolation) (Violation, error)
}
