package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	sqlitestore "github.com/BrandonDHaskell/campusgate/internal/campusgate/store/sqlite"
)

func newTestVehicleLog(t *testing.T) *sqlitestore.VehicleLog {
	t.Helper()
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	seedGate(t, conn, "gate_main")
	return sqlitestore.NewVehicleLog(conn, w)
}

func entryFor(id, plate string, at time.Time) store.VehicleEntry {
	return store.VehicleEntry{
		ID: id, Plate: plate, GateID: "gate_main", EntryTime: at, Status: store.EntryEntered,
	}
}

func missingAlert(id, plate string, at time.Time) func() store.VehicleAlert {
	return func() store.VehicleAlert {
		return store.VehicleAlert{
			ID: id, Plate: plate, At: at, Type: store.AlertVehicleMismatch, GateID: "gate_main",
			Details: map[string]any{"reason": "Exit without entry"},
		}
	}
}

func TestVehicleLog_EntryThenExit(t *testing.T) {
	l := newTestVehicleLog(t)
	ctx := context.Background()

	out, err := l.RecordEntry(ctx, store.EntryWrite{
		Entry: entryFor("ve_1", "ABC-123", t0),
		Alert: &store.VehicleAlert{
			ID: "va_1", Plate: "ABC-123", At: t0, Type: store.AlertUnknownVehicle, GateID: "gate_main",
			Details: map[string]any{"entryId": "ve_1"},
		},
	})
	if err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}
	if out.Superseded != nil || len(out.Alerts) != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}

	exitAt := t0.Add(2*time.Hour + 15*time.Minute)
	exit, err := l.RecordExit(ctx, store.ExitWrite{
		Plate: "ABC-123", GateID: "gate_main", At: exitAt, Image: "exit.jpg",
		OnMissing: missingAlert("va_x", "ABC-123", exitAt),
	})
	if err != nil {
		t.Fatalf("RecordExit: %v", err)
	}
	if exit.Entry == nil || exit.Alert != nil {
		t.Fatalf("expected closed entry, got %+v", exit)
	}
	if exit.Entry.Status != store.EntryExited || !exit.Entry.ExitTime.Equal(exitAt) {
		t.Errorf("unexpected closed entry %+v", exit.Entry)
	}

	// Second exit finds nothing and raises a mismatch alert.
	second, err := l.RecordExit(ctx, store.ExitWrite{
		Plate: "ABC-123", GateID: "gate_main", At: exitAt.Add(time.Minute),
		OnMissing: missingAlert("va_2", "ABC-123", exitAt.Add(time.Minute)),
	})
	if err != nil {
		t.Fatalf("second RecordExit: %v", err)
	}
	if second.Entry != nil || second.Alert == nil || second.Alert.ID != "va_2" {
		t.Fatalf("expected mismatch alert, got %+v", second)
	}

	entries, total, err := l.ListEntries(ctx, store.EntryFilter{Plate: "ABC-123"}, store.Page{Number: 1, Size: 10})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if total != 1 || entries[0].Status != store.EntryExited {
		t.Errorf("second exit must not mutate entries, got %+v", entries)
	}

	mismatch := store.AlertFilter{Type: store.AlertVehicleMismatch}
	alerts, total, err := l.ListAlerts(ctx, mismatch, store.Page{Number: 1, Size: 10})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if total != 1 || alerts[0].Details["reason"] != "Exit without entry" {
		t.Errorf("unexpected alerts %+v", alerts)
	}
}

func TestVehicleLog_ReentrySupersedesOpenEntry(t *testing.T) {
	l := newTestVehicleLog(t)
	ctx := context.Background()

	if _, err := l.RecordEntry(ctx, store.EntryWrite{Entry: entryFor("ve_1", "XYZ-9", t0)}); err != nil {
		t.Fatalf("first RecordEntry: %v", err)
	}

	again := t0.Add(time.Hour)
	out, err := l.RecordEntry(ctx, store.EntryWrite{
		Entry: entryFor("ve_2", "XYZ-9", again),
		OnStale: func(stale store.VehicleEntry) store.VehicleAlert {
			return store.VehicleAlert{
				ID: "va_stale", Plate: stale.Plate, At: again, Type: store.AlertVehicleMismatch,
				GateID: "gate_main", Details: map[string]any{"staleEntryId": stale.ID},
			}
		},
	})
	if err != nil {
		t.Fatalf("second RecordEntry: %v", err)
	}
	if out.Superseded == nil || out.Superseded.ID != "ve_1" || out.Superseded.Status != store.EntryFlagged {
		t.Fatalf("expected ve_1 flagged, got %+v", out.Superseded)
	}
	if len(out.Alerts) != 1 || out.Alerts[0].ID != "va_stale" {
		t.Fatalf("expected stale alert, got %+v", out.Alerts)
	}

	open, total, err := l.ListEntries(ctx, store.EntryFilter{OpenOnly: true}, store.Page{Number: 1, Size: 10})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if total != 1 || open[0].ID != "ve_2" {
		t.Errorf("expected only ve_2 open, got %+v", open)
	}
}

func TestVehicleLog_ResolveAlert(t *testing.T) {
	l := newTestVehicleLog(t)
	ctx := context.Background()

	if _, err := l.RecordExit(ctx, store.ExitWrite{
		Plate: "NOPE-1", GateID: "gate_main", At: t0, OnMissing: missingAlert("va_1", "NOPE-1", t0),
	}); err != nil {
		t.Fatalf("RecordExit: %v", err)
	}

	got, err := l.ResolveAlert(ctx, "va_1", store.Resolution{ResolvedBy: "adm_1", ResolvedAt: t0.Add(time.Minute)})
	if err != nil {
		t.Fatalf("ResolveAlert: %v", err)
	}
	if !got.Resolution.Resolved {
		t.Error("expected resolved alert")
	}

	if _, err := l.ResolveAlert(ctx, "va_1", store.Resolution{ResolvedBy: "adm_1"}); !errors.Is(err, store.ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
	if _, err := l.ResolveAlert(ctx, "va_404", store.Resolution{ResolvedBy: "adm_1"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	resolved := true
	_, total, err := l.ListAlerts(ctx, store.AlertFilter{Resolved: &resolved}, store.Page{Number: 1, Size: 10})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if total != 1 {
		t.Errorf("expected 1 resolved alert, got %d", total)
	}
}

func TestVehicleLog_TwoOpenEntriesConflict(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	seedGate(t, conn, "gate_main")
	l := sqlitestore.NewVehicleLog(conn, w)

	// Rows written before the partial unique index existed.
	mustExec(t, conn, `DROP INDEX ux_vehicle_entries_open`)
	for i, id := range []string{"ve_1", "ve_2"} {
		mustExec(t, conn,
			`INSERT INTO vehicle_entries(entry_id, license_plate, gate_id, entry_time_ms, status) VALUES (?, 'ABC-123', 'gate_main', ?, 'entered')`,
			id, t0.Add(time.Duration(i)*time.Minute).UnixMilli())
	}

	_, err := l.RecordExit(context.Background(), store.ExitWrite{
		Plate: "ABC-123", GateID: "gate_main", At: t0.Add(time.Hour),
		OnMissing: missingAlert("va_x", "ABC-123", t0.Add(time.Hour)),
	})
	if !errors.Is(err, store.ErrIntegrityConflict) {
		t.Fatalf("RecordExit: got %v, want ErrIntegrityConflict", err)
	}

	var open int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM vehicle_entries WHERE exit_time_ms IS NULL`).Scan(&open); err != nil {
		t.Fatalf("count open: %v", err)
	}
	if open != 2 {
		t.Errorf("conflict must roll back, %d open entries remain", open)
	}
	var alerts int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM vehicle_alerts`).Scan(&alerts); err != nil {
		t.Fatalf("count alerts: %v", err)
	}
	if alerts != 0 {
		t.Errorf("conflict must not store an alert, got %d", alerts)
	}
}
