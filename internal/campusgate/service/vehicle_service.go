package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/broadcast"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/types"
)

const (
	reasonUnregistered  = "Vehicle not registered in system"
	reasonExitNoEntry   = "Exit without entry - no matching entry record found"
	reasonEntryNoExit   = "Entry without exit - previous entry superseded"
	msgEntryLogged      = "Vehicle entry logged successfully"
	msgEntryUnknown     = "Unknown vehicle - alert created"
	msgEntrySuperseding = "Vehicle entry logged - previous entry without exit flagged"
	msgExitLogged       = "Vehicle exit logged successfully"
)

// NormalizePlate trims, uppercases and collapses inner whitespace.
func NormalizePlate(plate string) string {
	return strings.Join(strings.Fields(strings.ToUpper(plate)), " ")
}

// VehicleService registers vehicles and reconciles entry and exit scans.
type VehicleService struct {
	base
}

func NewVehicleService(d Deps) *VehicleService {
	return &VehicleService{base: newBase(d)}
}

func (s *VehicleService) Register(ctx context.Context, req types.RegisterVehicleRequest) (_ types.VehicleView, err error) {
	ctx, span := startSpan(ctx, "VehicleService.Register")
	defer func() { endSpan(span, err) }()

	v := &ValidationError{}
	plate := NormalizePlate(req.LicensePlate)
	if plate == "" {
		v.add("licensePlate", "is required")
	}
	owner, ok := store.ParseSubjectKind(strings.TrimSpace(req.OwnerType))
	if !ok {
		v.add("ownerType", "must be student, staff or visitor")
	}
	ownerName := strings.TrimSpace(req.OwnerName)
	if ownerName == "" {
		v.add("ownerName", "is required")
	}
	vt := store.VehicleCar
	if raw := strings.TrimSpace(req.VehicleType); raw != "" {
		if vt, ok = store.ParseVehicleType(raw); !ok {
			v.add("vehicleType", "unknown vehicle type %q", raw)
		}
	}
	if err := v.err(); err != nil {
		return types.VehicleView{}, err
	}

	vehicle := store.Vehicle{
		ID:           newID("veh_", 12),
		Plate:        plate,
		OwnerKind:    owner,
		OwnerID:      strings.TrimSpace(req.OwnerID),
		OwnerName:    ownerName,
		Type:         vt,
		Color:        strings.TrimSpace(req.Color),
		Make:         strings.TrimSpace(req.Make),
		Model:        strings.TrimSpace(req.Model),
		RegisteredAt: s.Clock.Now(),
	}
	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	err = s.Fleet.RegisterVehicle(wctx, vehicle)
	if errors.Is(err, store.ErrDuplicate) {
		return types.VehicleView{}, invalid("licensePlate", "vehicle %s is already registered", plate)
	}
	if err != nil {
		return types.VehicleView{}, classify("register vehicle", err)
	}
	return vehicleView(vehicle), nil
}

func (s *VehicleService) List(ctx context.Context, q types.PageQuery) (types.VehicleList, error) {
	page, err := s.page(q)
	if err != nil {
		return types.VehicleList{}, err
	}
	items, total, err := s.Fleet.ListVehicles(ctx, page)
	if err != nil {
		return types.VehicleList{}, classify("list vehicles", err)
	}
	out := types.VehicleList{
		Vehicles:   make([]types.VehicleView, 0, len(items)),
		Total:      total,
		Pagination: types.NewPagination(page.Number, page.Size, total),
	}
	for _, v := range items {
		out.Vehicles = append(out.Vehicles, vehicleView(v))
	}
	return out, nil
}

// LogEntry records a vehicle arriving. Unregistered plates are let in and
// raise an unknown_vehicle alert. A plate that never exited has its open
// entry flagged and a vehicle_mismatch alert raised in the same unit.
func (s *VehicleService) LogEntry(ctx context.Context, req types.VehicleEntryRequest) (_ types.EntryResult, err error) {
	ctx, span := startSpan(ctx, "VehicleService.LogEntry")
	defer func() { endSpan(span, err) }()

	plate := NormalizePlate(req.LicensePlate)
	if plate == "" {
		return types.EntryResult{}, invalid("licensePlate", "is required")
	}
	gate, err := s.gates.Require(ctx, req.GateID)
	if err != nil {
		return types.EntryResult{}, err
	}
	at := s.eventTime(req.Timestamp)
	span.SetAttributes(attribute.String("vehicle.plate", plate), attribute.String("gate.id", gate.ID))

	unlock, err := s.lock(ctx, "plate:"+plate)
	if err != nil {
		return types.EntryResult{}, err
	}
	defer unlock()

	vehicle, err := s.Fleet.GetVehicleByPlate(ctx, plate)
	registered := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return types.EntryResult{}, classify("get vehicle", err)
	}

	image := strings.TrimSpace(req.EntryImagePath)
	w := store.EntryWrite{
		Entry: store.VehicleEntry{
			ID:         newID("ve_", 16),
			Plate:      plate,
			VehicleID:  vehicle.ID,
			GateID:     gate.ID,
			EntryTime:  at,
			EntryImage: image,
			Status:     store.EntryEntered,
		},
	}
	if !registered {
		w.Alert = &store.VehicleAlert{
			ID:     newID("va_", 16),
			Plate:  plate,
			At:     at,
			Type:   store.AlertUnknownVehicle,
			GateID: gate.ID,
			Image:  image,
			Details: map[string]any{
				"reason":  reasonUnregistered,
				"entryId": w.Entry.ID,
			},
		}
	}
	w.OnStale = func(stale store.VehicleEntry) store.VehicleAlert {
		return store.VehicleAlert{
			ID:     newID("va_", 16),
			Plate:  plate,
			At:     at,
			Type:   store.AlertVehicleMismatch,
			GateID: gate.ID,
			Image:  image,
			Details: map[string]any{
				"reason":            reasonEntryNoExit,
				"entryId":           w.Entry.ID,
				"supersededEntryId": stale.ID,
			},
		}
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	out, err := s.Vehicles.RecordEntry(wctx, w)
	if err != nil {
		return types.EntryResult{}, classify("record entry", err)
	}
	for _, a := range out.Alerts {
		s.alertRaised(a)
	}

	res := types.EntryResult{
		EntryID:      out.Entry.ID,
		LicensePlate: plate,
		Registered:   registered,
		EntryTime:    out.Entry.EntryTime,
		Status:       string(out.Entry.Status),
		AlertCreated: len(out.Alerts) > 0,
		Message:      msgEntryLogged,
	}
	if registered {
		id := vehicle.ID
		res.VehicleID = &id
	}
	if out.Superseded != nil {
		res.SupersededEntryID = out.Superseded.ID
		res.Message = msgEntrySuperseding
	}
	if w.Alert != nil {
		id := w.Alert.ID
		res.AlertID = &id
		res.Message = msgEntryUnknown
	} else if len(out.Alerts) > 0 {
		id := out.Alerts[0].ID
		res.AlertID = &id
	}
	s.Metrics.Decision("vehicle_entry", entryOutcome(registered, out.Superseded != nil))
	return res, nil
}

func entryOutcome(registered, superseded bool) string {
	switch {
	case superseded:
		return "superseded"
	case !registered:
		return "unregistered"
	}
	return "entered"
}

// LogExit closes the plate's open entry. With no open entry it stores a
// vehicle_mismatch alert and returns *NoEntryFoundError; nothing else is
// changed.
func (s *VehicleService) LogExit(ctx context.Context, req types.VehicleExitRequest) (_ types.ExitResult, err error) {
	ctx, span := startSpan(ctx, "VehicleService.LogExit")
	defer func() { endSpan(span, err) }()

	plate := NormalizePlate(req.LicensePlate)
	if plate == "" {
		return types.ExitResult{}, invalid("licensePlate", "is required")
	}
	gate, err := s.gates.Require(ctx, req.GateID)
	if err != nil {
		return types.ExitResult{}, err
	}
	at := s.eventTime(req.Timestamp)
	span.SetAttributes(attribute.String("vehicle.plate", plate), attribute.String("gate.id", gate.ID))

	unlock, err := s.lock(ctx, "plate:"+plate)
	if err != nil {
		return types.ExitResult{}, err
	}
	defer unlock()

	image := strings.TrimSpace(req.ExitImagePath)
	w := store.ExitWrite{
		Plate:  plate,
		GateID: gate.ID,
		At:     at,
		Image:  image,
		OnMissing: func() store.VehicleAlert {
			return store.VehicleAlert{
				ID:      newID("va_", 16),
				Plate:   plate,
				At:      at,
				Type:    store.AlertVehicleMismatch,
				GateID:  gate.ID,
				Image:   image,
				Details: map[string]any{"reason": reasonExitNoEntry},
			}
		},
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	out, err := s.Vehicles.RecordExit(wctx, w)
	if err != nil {
		return types.ExitResult{}, classify("record exit", err)
	}
	if out.Alert != nil {
		s.alertRaised(*out.Alert)
		s.Metrics.Decision("vehicle_exit", "no_entry")
		return types.ExitResult{}, &NoEntryFoundError{Plate: plate, AlertID: out.Alert.ID}
	}

	e := out.Entry
	s.Metrics.Decision("vehicle_exit", "exited")
	return types.ExitResult{
		EntryID:      e.ID,
		LicensePlate: plate,
		EntryTime:    e.EntryTime,
		ExitTime:     *e.ExitTime,
		Duration:     stayDuration(e.ExitTime.Sub(e.EntryTime)),
		Status:       string(e.Status),
		Message:      msgExitLogged,
	}, nil
}

// stayDuration renders d as "<h>h <m>m", truncating seconds.
func stayDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func (s *VehicleService) alertRaised(a store.VehicleAlert) {
	s.Metrics.VehicleAlert(string(a.Type))
	s.publish(broadcast.TypeVehicleAlert, map[string]any{
		"id":           a.ID,
		"alertType":    string(a.Type),
		"licensePlate": a.Plate,
		"gateId":       a.GateID,
		"timestamp":    a.At.Format(time.RFC3339Nano),
		"details":      maps.Clone(a.Details),
	})
}

func (s *VehicleService) ListEntries(ctx context.Context, q types.EntryQuery) (types.EntryList, error) {
	v := &ValidationError{}
	f := store.EntryFilter{Plate: NormalizePlate(q.Plate), OpenOnly: q.Open}
	if raw := strings.TrimSpace(q.Status); raw != "" {
		st, ok := store.ParseEntryStatus(raw)
		if !ok {
			v.add("status", "unknown entry status %q", raw)
		}
		f.Status = st
	}
	page, perr := s.page(q.PageQuery)
	if err := mergeValidation(v.err(), perr); err != nil {
		return types.EntryList{}, err
	}

	items, total, err := s.Vehicles.ListEntries(ctx, f, page)
	if err != nil {
		return types.EntryList{}, classify("list entries", err)
	}
	out := types.EntryList{
		Entries:    make([]types.EntryView, 0, len(items)),
		Pagination: types.NewPagination(page.Number, page.Size, total),
	}
	for _, e := range items {
		view := types.EntryView{
			ID:           e.ID,
			LicensePlate: e.Plate,
			GateID:       e.GateID,
			EntryTime:    e.EntryTime,
			ExitTime:     e.ExitTime,
			Status:       string(e.Status),
			Notes:        e.Notes,
		}
		if e.VehicleID != "" {
			id := e.VehicleID
			view.VehicleID = &id
		}
		out.Entries = append(out.Entries, view)
	}
	return out, nil
}

func (s *VehicleService) ListAlerts(ctx context.Context, q types.AlertQuery) (types.AlertList, error) {
	v := &ValidationError{}
	f := store.AlertFilter{Resolved: q.Resolved}
	if raw := strings.TrimSpace(q.Type); raw != "" {
		t, ok := store.ParseAlertType(raw)
		if !ok {
			v.add("type", "unknown alert type %q", raw)
		}
		f.Type = t
	}
	page, perr := s.page(q.PageQuery)
	if err := mergeValidation(v.err(), perr); err != nil {
		return types.AlertList{}, err
	}

	items, total, err := s.Vehicles.ListAlerts(ctx, f, page)
	if err != nil {
		return types.AlertList{}, classify("list alerts", err)
	}
	out := types.AlertList{
		Alerts:     make([]types.AlertView, 0, len(items)),
		Pagination: types.NewPagination(page.Number, page.Size, total),
	}
	for _, a := range items {
		out.Alerts = append(out.Alerts, alertView(a))
	}
	return out, nil
}

// ResolveAlert follows the same once-only rule as violations.
func (s *VehicleService) ResolveAlert(ctx context.Context, id string, actor types.Actor, notes string) (types.AlertView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.AlertView{}, invalid("id", "is required")
	}
	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	a, err := s.Vehicles.ResolveAlert(wctx, id, store.Resolution{
		ResolvedBy: actor.ID,
		ByName:     actor.Name,
		ResolvedAt: s.Clock.Now(),
		Notes:      strings.TrimSpace(notes),
	})
	if err != nil {
		return types.AlertView{}, classify("resolve alert", err)
	}
	return alertView(a), nil
}

func vehicleView(v store.Vehicle) types.VehicleView {
	return types.VehicleView{
		ID:           v.ID,
		LicensePlate: v.Plate,
		OwnerType:    string(v.OwnerKind),
		OwnerID:      v.OwnerID,
		OwnerName:    v.OwnerName,
		VehicleType:  string(v.Type),
		Color:        v.Color,
		Make:         v.Make,
		Model:        v.Model,
		RegisteredAt: v.RegisteredAt,
	}
}

func alertView(a store.VehicleAlert) types.AlertView {
	details := maps.Clone(a.Details)
	if details == nil {
		details = map[string]any{}
	}
	return types.AlertView{
		ID:           a.ID,
		LicensePlate: a.Plate,
		Timestamp:    a.At,
		AlertType:    string(a.Type),
		GateID:       a.GateID,
		Image:        a.Image,
		Details:      details,
		Resolution:   resolutionView(a.Resolution),
	}
}
