package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/broadcast"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/face"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/service"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store/memory"
	"github.com/BrandonDHaskell/campusgate/internal/clock"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// recordingBroadcaster keeps every event it is asked to deliver.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (r *recordingBroadcaster) Broadcast(evt broadcast.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return 1
}

func (r *recordingBroadcaster) Events() []broadcast.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]broadcast.Event(nil), r.events...)
}

type fixture struct {
	dir      *memory.Directory
	ledger   *memory.Ledger
	fleet    *memory.Fleet
	vehicles *memory.VehicleLog
	access   *memory.AccessLog
	clock    *clock.FakeClock
	bc       *recordingBroadcaster
}

// newFixture seeds two gates, an active student and staff member, a
// suspended student and a visitor allowed only at gate_main whose pass runs
// from t0-1h to t0+4h.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:      memory.NewDirectory(),
		ledger:   memory.NewLedger(),
		fleet:    memory.NewFleet(),
		vehicles: memory.NewVehicleLog(),
		access:   memory.NewAccessLog(),
		clock:    clock.Fake(t0),
		bc:       &recordingBroadcaster{},
	}
	f.dir.PutGate(store.Gate{ID: "gate_main", Name: "Main Gate", Location: "North"})
	f.dir.PutGate(store.Gate{ID: "gate_east", Name: "East Gate", Location: "East"})

	f.dir.PutSubject(store.Subject{
		Ref:    store.SubjectRef{Kind: store.KindStudent, ID: "stu_1"},
		Name:   "Ada Student",
		Status: store.StatusActive,
		Code:   "QR-STU-1",
	})
	f.dir.PutSubject(store.Subject{
		Ref:    store.SubjectRef{Kind: store.KindStudent, ID: "stu_2"},
		Name:   "Suspended Student",
		Status: "suspended",
		Code:   "QR-STU-2",
	})
	f.dir.PutSubject(store.Subject{
		Ref:    store.SubjectRef{Kind: store.KindStaff, ID: "stf_1"},
		Name:   "Grace Host",
		Email:  "grace@campus.edu",
		Status: store.StatusActive,
		Code:   "QR-STF-1",
	})
	f.dir.PutSubject(store.Subject{
		Ref:    store.SubjectRef{Kind: store.KindStaff, ID: "stf_2"},
		Name:   "On Leave",
		Status: "on_leave",
		Code:   "QR-STF-2",
	})
	f.dir.PutSubject(store.Subject{
		Ref:          store.SubjectRef{Kind: store.KindVisitor, ID: "vis_1"},
		Name:         "Vera Visitor",
		Status:       store.StatusActive,
		Code:         "QR-VIS-1",
		Purpose:      "Interview",
		HostID:       "stf_1",
		ValidFrom:    t0.Add(-time.Hour),
		ValidUntil:   t0.Add(4 * time.Hour),
		AllowedGates: []string{"gate_main"},
	})
	return f
}

func (f *fixture) deps(m face.Matcher) service.Deps {
	return service.Deps{
		Directory:   f.dir,
		Visitors:    f.dir,
		Ledger:      f.ledger,
		Fleet:       f.fleet,
		Vehicles:    f.vehicles,
		AccessLog:   f.access,
		Matcher:     m,
		Broadcaster: f.bc,
		Clock:       f.clock,
		Policy:      service.DefaultPolicy(),
	}
}

func (f *fixture) violations(t *testing.T) []store.Violation {
	t.Helper()
	items, _, err := f.ledger.ListViolations(context.Background(), store.ViolationFilter{}, store.Page{Number: 1, Size: 1000})
	if err != nil {
		t.Fatalf("ListViolations: %v", err)
	}
	return items
}

func (f *fixture) alerts(t *testing.T) []store.VehicleAlert {
	t.Helper()
	items, _, err := f.vehicles.ListAlerts(context.Background(), store.AlertFilter{}, store.Page{Number: 1, Size: 1000})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	return items
}

// validationFields returns the fields named by a *service.ValidationError,
// failing the test for any other error.
func validationFields(t *testing.T, err error) []string {
	t.Helper()
	var ve *service.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	fields := make([]string, len(ve.Fields))
	for i, fe := range ve.Fields {
		fields[i] = fe.Field
	}
	return fields
}

func hasField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
