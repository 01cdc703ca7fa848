package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	sqlitestore "github.com/BrandonDHaskell/campusgate/internal/campusgate/store/sqlite"
)

// ═══════════════════════════════════════════════════════════════════════════
// Directory
// ═══════════════════════════════════════════════════════════════════════════

func TestDirectory_FindByCode_PerKind(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	seedStudent(t, conn, "stu_1", "QR-SHARED", "active")
	seedStaff(t, conn, "stf_1", "QR-STAFF", "on_leave")
	d := sqlitestore.NewDirectory(conn, w)
	ctx := context.Background()

	s, err := d.FindByCode(ctx, store.KindStudent, "QR-SHARED")
	if err != nil {
		t.Fatalf("FindByCode student: %v", err)
	}
	if s.Ref != (store.SubjectRef{Kind: store.KindStudent, ID: "stu_1"}) || !s.Active() {
		t.Errorf("unexpected student %+v", s)
	}

	if _, err := d.FindByCode(ctx, store.KindStaff, "QR-SHARED"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for staff lookup, got %v", err)
	}

	staff, err := d.GetSubject(ctx, store.SubjectRef{Kind: store.KindStaff, ID: "stf_1"})
	if err != nil {
		t.Fatalf("GetSubject: %v", err)
	}
	if staff.Active() {
		t.Error("on_leave staff must not be active")
	}
}

func TestDirectory_CreateVisitor_WithAllowedGates(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	seedGate(t, conn, "gate_main")
	seedGate(t, conn, "gate_east")
	seedStaff(t, conn, "stf_host", "QR-HOST", "active")
	d := sqlitestore.NewDirectory(conn, w)
	ctx := context.Background()

	v := store.Subject{
		Ref:          store.SubjectRef{Kind: store.KindVisitor, ID: "vis_pass_1"},
		Name:         "Guest",
		Status:       store.StatusActive,
		Code:         "QR-VIS-2026-VIS_PASS_1",
		HostID:       "stf_host",
		ValidFrom:    t0,
		ValidUntil:   t0.Add(8 * time.Hour),
		AllowedGates: []string{"gate_east", "gate_main"},
		CreatedAt:    t0,
	}
	if err := d.CreateVisitor(ctx, v); err != nil {
		t.Fatalf("CreateVisitor: %v", err)
	}
	if err := d.CreateVisitor(ctx, v); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate on second insert, got %v", err)
	}

	got, err := d.FindByCode(ctx, store.KindVisitor, v.Code)
	if err != nil {
		t.Fatalf("FindByCode visitor: %v", err)
	}
	if len(got.AllowedGates) != 2 || got.AllowedGates[0] != "gate_east" {
		t.Errorf("unexpected allowed gates %v", got.AllowedGates)
	}
	if !got.ValidUntil.Equal(v.ValidUntil) || got.HostID != "stf_host" {
		t.Errorf("unexpected visitor %+v", got)
	}
	if got.AllowsGate("gate_parking") {
		t.Error("allow-list must be closed")
	}

	list, total, err := d.ListVisitors(ctx, store.Page{Number: 1, Size: 10})
	if err != nil {
		t.Fatalf("ListVisitors: %v", err)
	}
	if total != 1 || len(list[0].AllowedGates) != 2 {
		t.Errorf("unexpected visitor list %+v", list)
	}
}

func TestDirectory_GetGate(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	seedGate(t, conn, "gate_main")
	d := sqlitestore.NewDirectory(conn, w)

	g, err := d.GetGate(context.Background(), "gate_main")
	if err != nil {
		t.Fatalf("GetGate: %v", err)
	}
	if g.Status != store.GateOnline {
		t.Errorf("expected default status online, got %q", g.Status)
	}
	if _, err := d.GetGate(context.Background(), "gate_nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Fleet
// ═══════════════════════════════════════════════════════════════════════════

func TestFleet_RegisterRejectsDuplicatePlate(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	f := sqlitestore.NewFleet(conn, w)
	ctx := context.Background()

	v := store.Vehicle{
		ID: "veh_1", Plate: "ABC-123", OwnerKind: store.KindStaff, OwnerName: "Owner",
		Type: store.VehicleCar, RegisteredAt: t0,
	}
	if err := f.RegisterVehicle(ctx, v); err != nil {
		t.Fatalf("RegisterVehicle: %v", err)
	}
	v.ID = "veh_2"
	if err := f.RegisterVehicle(ctx, v); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := f.GetVehicleByPlate(ctx, "ABC-123")
	if err != nil {
		t.Fatalf("GetVehicleByPlate: %v", err)
	}
	if got.ID != "veh_1" || got.Type != store.VehicleCar {
		t.Errorf("unexpected vehicle %+v", got)
	}

	_, total, err := f.ListVehicles(ctx, store.Page{Number: 1, Size: 10})
	if err != nil {
		t.Fatalf("ListVehicles: %v", err)
	}
	if total != 1 {
		t.Errorf("expected 1 vehicle, got %d", total)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// AccessLog
// ═══════════════════════════════════════════════════════════════════════════

func TestAccessLog_RecordAndPrune(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	seedGate(t, conn, "gate_main")
	l := sqlitestore.NewAccessLog(conn, w)
	ctx := context.Background()

	conf := 0.91
	subj := store.SubjectRef{Kind: store.KindStudent, ID: "stu_1"}
	for _, at := range []time.Time{t0.AddDate(0, 0, -40), t0.AddDate(0, 0, -1)} {
		if err := l.RecordAccess(ctx, store.AccessLogRecord{
			Subject: subj, GateID: "gate_main", AccessedAt: at, FaceVerified: true, FaceConfidence: &conf,
		}); err != nil {
			t.Fatalf("RecordAccess: %v", err)
		}
	}

	deleted, err := l.PruneOlderThan(ctx, t0.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 pruned row, got %d", deleted)
	}

	var remaining int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM access_logs`).Scan(&remaining); err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 1 {
		t.Errorf("expected 1 remaining row, got %d", remaining)
	}
}
