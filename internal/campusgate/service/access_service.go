package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/broadcast"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/types"
)

const (
	msgGranted          = "Access granted"
	msgVisitorValid     = "Visitor pass valid"
	msgInvalidCode      = "Invalid or tampered QR code"
	msgVisitorExpired   = "Visitor pass has expired"
	msgGateNotAllowed   = "This gate is not in the allowed gates list for this visitor"
	msgFaceVerified     = "Face verification successful"
	msgFaceMismatch     = "Face does not match enrolled photo"
	msgVisitorFaceCheck = "visitors do not require face verification"
)

var ErrMissingMatcher = errors.New("face matcher is not configured")

// AccessService decides QR scans and face verifications.
type AccessService struct {
	base
	resolver *Resolver
}

func NewAccessService(d Deps) *AccessService {
	b := newBase(d)
	return &AccessService{base: b, resolver: NewResolver(d.Directory)}
}

// ScanCode resolves a scanned QR code at a gate. Denials that produce a
// violation are successful decisions, not errors.
func (s *AccessService) ScanCode(ctx context.Context, req types.ScanRequest) (_ types.AccessDecision, err error) {
	ctx, span := startSpan(ctx, "AccessService.ScanCode")
	defer func() { endSpan(span, err) }()

	code := strings.TrimSpace(req.QRCode)
	if code == "" {
		return types.AccessDecision{}, invalid("qrCode", "is required")
	}
	gate, err := s.gates.Require(ctx, req.GateID)
	if err != nil {
		return types.AccessDecision{}, err
	}
	at := s.eventTime(req.ScanTimestamp)
	span.SetAttributes(attribute.String("gate.id", gate.ID))

	subject, found, err := s.resolver.Resolve(ctx, code)
	if err != nil {
		return types.AccessDecision{}, err
	}
	if !found {
		return s.unauthorizedScan(ctx, code, gate.ID, at)
	}
	span.SetAttributes(attribute.String("subject.kind", string(subject.Ref.Kind)))

	if !subject.Active() {
		s.Metrics.Decision("scan", "denied")
		return types.AccessDecision{
			SubjectType: string(subject.Ref.Kind),
			Message:     inactiveMessage(subject.Ref.Kind),
		}, nil
	}

	if subject.Ref.Kind == store.KindVisitor {
		return s.visitorScan(ctx, subject, code, gate.ID, at)
	}

	s.Metrics.Decision("scan", "granted")
	return types.AccessDecision{
		Valid:                    true,
		AccessGranted:            true,
		SubjectType:              string(subject.Ref.Kind),
		Subject:                  subjectInfo(subject, ""),
		Message:                  msgGranted,
		RequiresFaceVerification: true,
	}, nil
}

func (s *AccessService) unauthorizedScan(ctx context.Context, code, gateID string, at time.Time) (types.AccessDecision, error) {
	v := store.Violation{
		ID:         newViolationID(),
		Type:       store.ViolationUnauthorizedScan,
		GateID:     gateID,
		OccurredAt: at,
		Details: map[string]any{
			"scannedQrCode": code,
			"reason":        msgInvalidCode,
		},
	}
	if err := s.createViolation(ctx, v); err != nil {
		return types.AccessDecision{}, err
	}
	s.Metrics.Decision("scan", "violation")

	persisted := false
	return types.AccessDecision{
		Message:          msgInvalidCode,
		ViolationType:    string(v.Type),
		ViolationID:      v.ID,
		SubjectPersisted: &persisted,
	}, nil
}

func (s *AccessService) visitorScan(ctx context.Context, visitor store.Subject, code, gateID string, at time.Time) (types.AccessDecision, error) {
	deny := types.AccessDecision{SubjectType: string(store.KindVisitor)}

	switch {
	case !at.Before(visitor.ValidUntil):
		v := store.Violation{
			ID:         newViolationID(),
			Type:       store.ViolationExpiredVisitor,
			Subject:    visitor.Ref,
			GateID:     gateID,
			OccurredAt: at,
			Details: map[string]any{
				"validUntil": visitor.ValidUntil.Format(time.RFC3339),
				"scannedAt":  at.Format(time.RFC3339),
				"reason":     msgVisitorExpired,
			},
		}
		if err := s.createViolation(ctx, v); err != nil {
			return types.AccessDecision{}, err
		}
		s.Metrics.Decision("scan", "violation")
		persisted := true
		deny.Message = msgVisitorExpired
		deny.ViolationType = string(v.Type)
		deny.ViolationID = v.ID
		deny.SubjectPersisted = &persisted
		deny.Subject = subjectInfo(visitor, "")
		return deny, nil

	case at.Before(visitor.ValidFrom):
		s.Metrics.Decision("scan", "denied")
		deny.Message = "Visitor pass not valid until " + visitor.ValidFrom.Format(time.RFC3339)
		return deny, nil

	case !visitor.AllowsGate(gateID):
		s.Metrics.Decision("scan", "denied")
		deny.Message = msgGateNotAllowed
		return deny, nil
	}

	hostName := ""
	if host, err := s.Directory.GetSubject(ctx, store.SubjectRef{Kind: store.KindStaff, ID: visitor.HostID}); err == nil {
		hostName = host.Name
	}

	s.recordAccess(ctx, store.AccessLogRecord{
		Subject:    visitor.Ref,
		GateID:     gateID,
		AccessedAt: at,
		CodeUsed:   code,
	})
	s.Metrics.Decision("scan", "granted")
	return types.AccessDecision{
		Valid:         true,
		AccessGranted: true,
		SubjectType:   string(store.KindVisitor),
		Subject:       subjectInfo(visitor, hostName),
		Message:       msgVisitorValid,
	}, nil
}

// VerifyFace scores a face sample for a student or staff member who passed
// the QR scan. A failed match records a FailAttempt and a violation in one
// unit; the violation escalates to multiple_fail_attempt once the number of
// failures for the same subject and gate inside the window reaches the
// threshold.
func (s *AccessService) VerifyFace(ctx context.Context, req types.FaceVerifyRequest) (_ types.FaceDecision, err error) {
	ctx, span := startSpan(ctx, "AccessService.VerifyFace")
	defer func() { endSpan(span, err) }()

	ref, sample, err := s.parseFaceRequest(req)
	if err != nil {
		return types.FaceDecision{}, err
	}
	gate, err := s.gates.Require(ctx, req.GateID)
	if err != nil {
		return types.FaceDecision{}, err
	}
	at := s.eventTime(req.ScanTimestamp)
	span.SetAttributes(
		attribute.String("gate.id", gate.ID),
		attribute.String("subject.kind", string(ref.Kind)),
	)

	subject, err := s.Directory.GetSubject(ctx, ref)
	if err != nil {
		return types.FaceDecision{}, classify("get subject", err)
	}
	if !subject.Active() {
		s.Metrics.Decision("face", "denied")
		return types.FaceDecision{
			Message: inactiveMessage(ref.Kind),
			Subject: subjectSnapshot(subject),
		}, nil
	}

	matcher := s.Matcher
	if matcher == nil {
		return types.FaceDecision{}, classify("face match", ErrMissingMatcher)
	}
	raw, err := matcher.Match(ctx, ref, sample)
	if err != nil {
		return types.FaceDecision{}, classify("face match", err)
	}
	// The threshold applies to the raw score; only reported values are rounded.
	confidence := round2(raw)

	if raw >= s.Policy.FaceThreshold {
		s.recordAccess(ctx, store.AccessLogRecord{
			Subject:        ref,
			GateID:         gate.ID,
			AccessedAt:     at,
			CodeUsed:       subject.Code,
			FaceVerified:   true,
			FaceConfidence: &confidence,
		})
		s.Metrics.Decision("face", "granted")
		return types.FaceDecision{
			Verified:      true,
			Confidence:    confidence,
			AccessGranted: true,
			Message:       msgFaceVerified,
		}, nil
	}

	return s.failedFace(ctx, subject, gate.ID, at, confidence)
}

func (s *AccessService) parseFaceRequest(req types.FaceVerifyRequest) (store.SubjectRef, []byte, error) {
	v := &ValidationError{}
	kind, ok := store.ParseSubjectKind(strings.TrimSpace(req.SubjectType))
	switch {
	case !ok:
		v.add("subjectType", "must be student or staff")
	case kind == store.KindVisitor:
		v.add("subjectType", msgVisitorFaceCheck)
	}
	id := strings.TrimSpace(req.SubjectID)
	if id == "" {
		v.add("subjectId", "is required")
	}
	sample, err := decodeImage(req.FaceImage)
	if err != nil {
		v.add("faceImage", "%v", err)
	}
	if err := v.err(); err != nil {
		return store.SubjectRef{}, nil, err
	}
	return store.SubjectRef{Kind: kind, ID: id}, sample, nil
}

func (s *AccessService) failedFace(ctx context.Context, subject store.Subject, gateID string, at time.Time, confidence float64) (types.FaceDecision, error) {
	ref := subject.Ref
	unlock, err := s.lock(ctx, fmt.Sprintf("fail:%s:%s:%s", ref.Kind, ref.ID, gateID))
	if err != nil {
		return types.FaceDecision{}, err
	}
	defer unlock()

	count := 0
	build := func(prior int) store.Violation {
		count = prior + 1
		v := store.Violation{
			ID:         newViolationID(),
			Type:       store.ViolationFaceMismatch,
			Subject:    ref,
			GateID:     gateID,
			OccurredAt: at,
			Details: map[string]any{
				"confidence":         confidence,
				"failedAttemptCount": count,
				"reason":             msgFaceMismatch,
			},
		}
		if count >= s.Policy.FailThreshold {
			v.Type = store.ViolationMultipleFailures
			v.Details["timeWindow"] = s.Policy.FailWindow.String()
		}
		return v
	}
	attempt := store.FailAttempt{
		ID:          newID("fa_", 16),
		Subject:     ref,
		GateID:      gateID,
		AttemptedAt: at,
		Confidence:  confidence,
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	v, err := s.Ledger.RecordFailedAttempt(wctx, attempt, at.Add(-s.Policy.FailWindow), build)
	if err != nil {
		return types.FaceDecision{}, classify("record failed attempt", err)
	}
	s.Metrics.Violation(string(v.Type))
	s.Metrics.Decision("face", "violation")
	s.publish(broadcast.TypeViolationAlert, violationEventData(v, subject.Name))

	out := types.FaceDecision{
		Confidence:             confidence,
		ViolationType:          string(v.Type),
		ViolationID:            v.ID,
		SubjectPersisted:       true,
		CapturedImagePersisted: true,
		Subject:                subjectSnapshot(subject),
		Message:                msgFaceMismatch,
		FailedAttemptCount:     count,
	}
	if v.Type == store.ViolationMultipleFailures {
		lockout := at.Add(s.Policy.Lockout)
		out.LockoutUntil = &lockout
		out.Message = fmt.Sprintf("Access blocked: %d+ verification failures in %s",
			s.Policy.FailThreshold, humanDuration(s.Policy.FailWindow))
	}
	return out, nil
}

func (s *AccessService) createViolation(ctx context.Context, v store.Violation) error {
	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	if err := s.Ledger.CreateViolation(wctx, v); err != nil {
		return classify("create violation", err)
	}
	s.Metrics.Violation(string(v.Type))
	s.publish(broadcast.TypeViolationAlert, violationEventData(v, ""))
	return nil
}

func inactiveMessage(kind store.SubjectKind) string {
	switch kind {
	case store.KindStudent:
		return "Student enrollment is not active"
	case store.KindStaff:
		return "Staff employment is not active"
	default:
		return "Visitor pass is not active"
	}
}

func subjectInfo(s store.Subject, hostName string) *types.SubjectInfo {
	info := &types.SubjectInfo{
		ID:       s.Ref.ID,
		Type:     string(s.Ref.Kind),
		Name:     s.Name,
		PhotoURL: s.PhotoURL,
		Status:   s.Status,
	}
	if s.Ref.Kind == store.KindVisitor {
		from, until := s.ValidFrom, s.ValidUntil
		info.Purpose = s.Purpose
		info.HostName = hostName
		info.ValidFrom = &from
		info.ValidUntil = &until
	}
	return info
}

func subjectSnapshot(s store.Subject) *types.SubjectInfo {
	return &types.SubjectInfo{ID: s.Ref.ID, Type: string(s.Ref.Kind), Name: s.Name}
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("is required")
	}
	if strings.HasPrefix(raw, "data:") {
		_, payload, ok := strings.Cut(raw, ",")
		if !ok {
			return nil, errors.New("malformed data URL")
		}
		raw = payload
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errors.New("must be base64 encoded")
	}
	return b, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
