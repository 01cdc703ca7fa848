package service

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/types"
)

func newViolationID() string { return newID("vio_", 10) }

// violationEventData is the broadcast payload for a newly stored violation.
func violationEventData(v store.Violation, subjectName string) map[string]any {
	data := map[string]any{
		"id":         v.ID,
		"type":       string(v.Type),
		"gateId":     v.GateID,
		"occurredAt": v.OccurredAt.Format(time.RFC3339Nano),
		"details":    maps.Clone(v.Details),
	}
	if !v.Subject.IsZero() {
		data["subjectType"] = string(v.Subject.Kind)
		data["subjectId"] = v.Subject.ID
		if subjectName != "" {
			data["subjectName"] = subjectName
		}
	}
	return data
}

// ViolationService lists and resolves violations.
type ViolationService struct {
	base
}

func NewViolationService(d Deps) *ViolationService {
	return &ViolationService{base: newBase(d)}
}

func (s *ViolationService) filter(q types.ViolationQuery) (store.ViolationFilter, error) {
	var f store.ViolationFilter
	v := &ValidationError{}
	if t := strings.TrimSpace(q.Type); t != "" {
		vt, ok := store.ParseViolationType(t)
		if !ok {
			v.add("type", "unknown violation type %q", t)
		}
		f.Type = vt
	}
	if k := strings.TrimSpace(q.SubjectType); k != "" {
		kind, ok := store.ParseSubjectKind(k)
		if !ok {
			v.add("subjectType", "unknown subject type %q", k)
		}
		f.SubjectKind = kind
	}
	if q.StartDate != nil && q.EndDate != nil && q.StartDate.After(*q.EndDate) {
		v.add("startDate", "must not be after endDate")
	}
	f.GateID = strings.TrimSpace(q.GateID)
	f.From, f.To, f.Resolved = q.StartDate, q.EndDate, q.Resolved
	return f, v.err()
}

// List returns one page of violations, newest first, with gate names and
// subject snapshots filled in.
func (s *ViolationService) List(ctx context.Context, q types.ViolationQuery) (_ types.ViolationList, err error) {
	ctx, span := startSpan(ctx, "ViolationService.List")
	defer func() { endSpan(span, err) }()

	f, ferr := s.filter(q)
	page, perr := s.page(q.PageQuery)
	if err := mergeValidation(ferr, perr); err != nil {
		return types.ViolationList{}, err
	}

	items, total, err := s.Ledger.ListViolations(ctx, f, page)
	if err != nil {
		return types.ViolationList{}, classify("list violations", err)
	}
	gateNames, err := s.gates.names(ctx)
	if err != nil {
		return types.ViolationList{}, err
	}

	subjects := make(map[store.SubjectRef]*types.ViolationSubject)
	out := types.ViolationList{
		Violations: make([]types.ViolationView, 0, len(items)),
		Pagination: types.NewPagination(page.Number, page.Size, total),
	}
	for _, v := range items {
		view := violationView(v, gateNames)
		if !v.Subject.IsZero() {
			snap, ok := subjects[v.Subject]
			if !ok {
				snap, err = s.snapshot(ctx, v.Subject)
				if err != nil {
					return types.ViolationList{}, err
				}
				subjects[v.Subject] = snap
			}
			view.Subject = snap
		}
		out.Violations = append(out.Violations, view)
	}
	return out, nil
}

// Resolve marks a violation reviewed. A violation is resolved at most once;
// later calls fail with ErrAlreadyResolved and leave the record unchanged.
func (s *ViolationService) Resolve(ctx context.Context, id string, actor types.Actor, notes string) (_ types.ViolationView, err error) {
	ctx, span := startSpan(ctx, "ViolationService.Resolve")
	defer func() { endSpan(span, err) }()

	id = strings.TrimSpace(id)
	if id == "" {
		return types.ViolationView{}, invalid("id", "is required")
	}
	res := store.Resolution{
		ResolvedBy: actor.ID,
		ByName:     actor.Name,
		ResolvedAt: s.Clock.Now(),
		Notes:      strings.TrimSpace(notes),
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	v, err := s.Ledger.ResolveViolation(wctx, id, res)
	if err != nil {
		return types.ViolationView{}, classify("resolve violation", err)
	}

	gateNames, err := s.gates.names(ctx)
	if err != nil {
		return types.ViolationView{}, err
	}
	view := violationView(v, gateNames)
	if !v.Subject.IsZero() {
		if view.Subject, err = s.snapshot(ctx, v.Subject); err != nil {
			return types.ViolationView{}, err
		}
	}
	return view, nil
}

// snapshot returns nil for subjects that no longer exist.
func (s *ViolationService) snapshot(ctx context.Context, ref store.SubjectRef) (*types.ViolationSubject, error) {
	subj, err := s.Directory.GetSubject(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get subject", err)
	}
	return &types.ViolationSubject{ID: subj.Ref.ID, Name: subj.Name, PhotoURL: subj.PhotoURL}, nil
}

func violationView(v store.Violation, gateNames map[string]string) types.ViolationView {
	view := types.ViolationView{
		ID:         v.ID,
		Type:       string(v.Type),
		GateID:     v.GateID,
		GateName:   gateNames[v.GateID],
		OccurredAt: v.OccurredAt,
		Details:    maps.Clone(v.Details),
		Resolution: resolutionView(v.Resolution),
	}
	if view.Details == nil {
		view.Details = map[string]any{}
	}
	if !v.Subject.IsZero() {
		kind := string(v.Subject.Kind)
		view.SubjectType = &kind
	}
	return view
}

// mergeValidation folds several ValidationErrors into one. Any other error
// is returned as is.
func mergeValidation(errs ...error) error {
	merged := &ValidationError{}
	for _, err := range errs {
		if err == nil {
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		merged.Fields = append(merged.Fields, ve.Fields...)
	}
	return merged.err()
}
