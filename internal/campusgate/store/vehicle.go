package store

import (
	"context"
	"time"
)

type VehicleType string

const (
	VehicleCar        VehicleType = "car"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleTruck      VehicleType = "truck"
	VehicleVan        VehicleType = "van"
	VehicleBus        VehicleType = "bus"
	VehicleOther      VehicleType = "other"
)

func ParseVehicleType(s string) (VehicleType, bool) {
	switch t := VehicleType(s); t {
	case VehicleCar, VehicleMotorcycle, VehicleTruck, VehicleVan, VehicleBus, VehicleOther:
		return t, true
	}
	return "", false
}

type Vehicle struct {
	ID           string
	Plate        string
	OwnerKind    SubjectKind
	OwnerID      string
	OwnerName    string
	Type         VehicleType
	Color        string
	Make         string
	Model        string
	RegisteredAt time.Time
}

type EntryStatus string

const (
	EntryEntered EntryStatus = "entered"
	EntryExited  EntryStatus = "exited"
	EntryFlagged EntryStatus = "flagged"
)

func ParseEntryStatus(s string) (EntryStatus, bool) {
	switch st := EntryStatus(s); st {
	case EntryEntered, EntryExited, EntryFlagged:
		return st, true
	}
	return "", false
}

// VehicleEntry is one stay on campus. An entry is open while ExitTime is nil;
// a plate has at most one open entry.
type VehicleEntry struct {
	ID         string
	Plate      string
	VehicleID  string
	GateID     string
	EntryTime  time.Time
	EntryImage string
	ExitTime   *time.Time
	ExitImage  string
	Status     EntryStatus
	Notes      string
}

func (e VehicleEntry) Open() bool { return e.ExitTime == nil }

type AlertType string

const (
	AlertUnknownVehicle  AlertType = "unknown_vehicle"
	AlertVehicleMismatch AlertType = "vehicle_mismatch"
)

func ParseAlertType(s string) (AlertType, bool) {
	switch t := AlertType(s); t {
	case AlertUnknownVehicle, AlertVehicleMismatch:
		return t, true
	}
	return "", false
}

type VehicleAlert struct {
	ID         string
	Plate      string
	At         time.Time
	Type       AlertType
	GateID     string
	Image      string
	Details    map[string]any
	Resolution Resolution
}

type EntryFilter struct {
	Plate    string
	Status   EntryStatus
	OpenOnly bool
}

func (f EntryFilter) Match(e VehicleEntry) bool {
	if f.Plate != "" && e.Plate != f.Plate {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.OpenOnly && !e.Open() {
		return false
	}
	return true
}

type AlertFilter struct {
	Type     AlertType
	Resolved *bool
}

func (f AlertFilter) Match(a VehicleAlert) bool {
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.Resolved != nil && a.Resolution.Resolved != *f.Resolved {
		return false
	}
	return true
}

// EntryWrite is the unit written by RecordEntry. Alert, when set, is stored
// with the entry. OnStale builds the alert raised for an open entry the new
// one supersedes.
type EntryWrite struct {
	Entry   VehicleEntry
	Alert   *VehicleAlert
	OnStale func(stale VehicleEntry) VehicleAlert
}

type EntryOutcome struct {
	Entry      VehicleEntry
	Superseded *VehicleEntry
	Alerts     []VehicleAlert
}

// ExitWrite closes the open entry for Plate. OnMissing builds the alert
// stored when there is none.
type ExitWrite struct {
	Plate     string
	GateID    string
	At        time.Time
	Image     string
	OnMissing func() VehicleAlert
}

// ExitOutcome holds the closed entry, or the alert raised when no open entry
// existed. Exactly one of the two is set.
type ExitOutcome struct {
	Entry *VehicleEntry
	Alert *VehicleAlert
}

// Fleet is the vehicle registry.
type Fleet interface {
	GetVehicleByPlate(ctx context.Context, plate string) (Vehicle, error)
	// RegisterVehicle returns ErrDuplicate when the plate is taken.
	RegisterVehicle(ctx context.Context, v Vehicle) error
	ListVehicles(ctx context.Context, page Page) ([]Vehicle, int, error)
}

// VehicleLog reconciles entry and exit scans. Each Record call runs the
// read of open entries and the writes it implies as one atomic unit.
type VehicleLog interface {
	RecordEntry(ctx context.Context, w EntryWrite) (EntryOutcome, error)
	// RecordExit returns ErrIntegrityConflict when more than one open entry
	// exists for the plate.
	RecordExit(ctx context.Context, w ExitWrite) (ExitOutcome, error)
	ListEntries(ctx context.Context, f EntryFilter, page Page) ([]VehicleEntry, int, error)
	ListAlerts(ctx context.Context, f AlertFilter, page Page) ([]VehicleAlert, int, error)
	ResolveAlert(ctx context.Context, id string, res Resolution) (VehicleAlert, error)
}
