package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/types"
)

// VisitorService issues and lists visitor passes.
type VisitorService struct {
	base
}

func NewVisitorService(d Deps) *VisitorService {
	return &VisitorService{base: newBase(d)}
}

// CreatePass validates and stores a visitor pass. Every broken rule is
// reported in a single ValidationError.
func (s *VisitorService) CreatePass(ctx context.Context, actor types.Actor, req types.VisitorPassRequest) (_ types.VisitorPass, err error) {
	ctx, span := startSpan(ctx, "VisitorService.CreatePass")
	defer func() { endSpan(span, err) }()

	now := s.Clock.Now()
	v := &ValidationError{}

	name := strings.TrimSpace(req.VisitorName)
	if name == "" {
		v.add("visitorName", "is required")
	}
	if strings.TrimSpace(req.Purpose) == "" {
		v.add("purpose", "is required")
	}
	email := strings.TrimSpace(req.VisitorEmail)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			v.add("visitorEmail", "is not a valid email address")
		}
	}

	from, until := req.ValidFrom.UTC(), req.ValidUntil.UTC()
	switch {
	case req.ValidFrom.IsZero():
		v.add("validFrom", "is required")
	case from.Before(now.Add(-s.Policy.VisitorBackdate)):
		v.add("validFrom", "cannot be more than %s in the past", s.Policy.VisitorBackdate)
	}
	switch {
	case req.ValidUntil.IsZero():
		v.add("validUntil", "is required")
	case !req.ValidFrom.IsZero() && !until.After(from):
		v.add("validUntil", "must be after validFrom")
	case !req.ValidFrom.IsZero() && until.Sub(from) > s.Policy.VisitorMaxDuration:
		v.add("validUntil", "pass cannot be valid for more than %s", s.Policy.VisitorMaxDuration)
	}

	host, err := s.host(ctx, req.HostEmployeeID, v)
	if err != nil {
		return types.VisitorPass{}, err
	}

	allGates, err := s.Directory.ListGates(ctx)
	if err != nil {
		return types.VisitorPass{}, classify("list gates", err)
	}
	allowed := dedupe(req.AllowedGates)
	for _, g := range allowed {
		if !slices.ContainsFunc(allGates, func(x store.Gate) bool { return x.ID == g }) {
			v.add("allowedGates", "unknown gate %q", g)
		}
	}

	if err := v.err(); err != nil {
		return types.VisitorPass{}, err
	}

	id := newID("vis_pass_", 10)
	visitor := store.Subject{
		Ref:          store.SubjectRef{Kind: store.KindVisitor, ID: id},
		Name:         name,
		Email:        email,
		Phone:        strings.TrimSpace(req.VisitorPhone),
		PhotoURL:     strings.TrimSpace(req.PhotoURL),
		Status:       store.StatusActive,
		Code:         fmt.Sprintf("QR-VIS-%d-%s", now.Year(), strings.ToUpper(id)),
		Company:      strings.TrimSpace(req.Company),
		Purpose:      strings.TrimSpace(req.Purpose),
		HostID:       host.Ref.ID,
		ValidFrom:    from,
		ValidUntil:   until,
		AllowedGates: allowed,
		CreatedAt:    now,
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	if err := s.Visitors.CreateVisitor(wctx, visitor); err != nil {
		return types.VisitorPass{}, classify("create visitor", err)
	}
	s.Logger.Info("visitor pass created", "pass", id, "host", host.Ref.ID, "by", actor.ID)

	pass := passView(visitor, host, allGates)
	if actor.ID != "" {
		pass.CreatedBy = &actor
	}
	return pass, nil
}

// host resolves the host staff member, adding to v when the id is missing,
// unknown or not active.
func (s *VisitorService) host(ctx context.Context, id string, v *ValidationError) (store.Subject, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		v.add("hostEmployeeId", "is required")
		return store.Subject{}, nil
	}
	host, err := s.Directory.GetSubject(ctx, store.SubjectRef{Kind: store.KindStaff, ID: id})
	switch {
	case errors.Is(err, store.ErrNotFound):
		v.add("hostEmployeeId", "host employee %q not found", id)
	case err != nil:
		return store.Subject{}, classify("get host", err)
	case !host.Active():
		v.add("hostEmployeeId", "host employee %q is not active", id)
	}
	return host, nil
}

// ListPasses returns visitor passes, newest first.
func (s *VisitorService) ListPasses(ctx context.Context, q types.PageQuery) (_ types.VisitorPassList, err error) {
	ctx, span := startSpan(ctx, "VisitorService.ListPasses")
	defer func() { endSpan(span, err) }()

	page, err := s.page(q)
	if err != nil {
		return types.VisitorPassList{}, err
	}
	items, total, err := s.Visitors.ListVisitors(ctx, page)
	if err != nil {
		return types.VisitorPassList{}, classify("list visitors", err)
	}
	allGates, err := s.Directory.ListGates(ctx)
	if err != nil {
		return types.VisitorPassList{}, classify("list gates", err)
	}

	hosts := make(map[string]store.Subject)
	out := types.VisitorPassList{
		Visitors:   make([]types.VisitorPass, 0, len(items)),
		Pagination: types.NewPagination(page.Number, page.Size, total),
	}
	for _, visitor := range items {
		host, ok := hosts[visitor.HostID]
		if !ok {
			host, err = s.Directory.GetSubject(ctx, store.SubjectRef{Kind: store.KindStaff, ID: visitor.HostID})
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return types.VisitorPassList{}, classify("get host", err)
			}
			host.Ref.ID = visitor.HostID
			hosts[visitor.HostID] = host
		}
		out.Visitors = append(out.Visitors, passView(visitor, host, allGates))
	}
	return out, nil
}

// passView renders a pass. An empty allow-list lists every gate.
func passView(visitor, host store.Subject, allGates []store.Gate) types.VisitorPass {
	gates := make([]types.GateInfo, 0, len(allGates))
	for _, g := range allGates {
		if visitor.AllowsGate(g.ID) {
			gates = append(gates, types.GateInfo{ID: g.ID, Name: g.Name})
		}
	}
	return types.VisitorPass{
		PassID:       visitor.Ref.ID,
		VisitorName:  visitor.Name,
		VisitorEmail: visitor.Email,
		VisitorPhone: visitor.Phone,
		Company:      visitor.Company,
		Purpose:      visitor.Purpose,
		Host: types.HostInfo{
			EmployeeID: host.Ref.ID,
			Name:       host.Name,
			Email:      host.Email,
		},
		ValidFrom:    visitor.ValidFrom,
		ValidUntil:   visitor.ValidUntil,
		AllowedGates: gates,
		QRCode:       types.QRCodeInfo{Content: visitor.Code},
		CreatedAt:    visitor.CreatedAt,
	}
}

func dedupe(ids []string) []string {
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
