package store

import (
	"context"
	"time"
)

type SubjectKind string

const (
	KindStudent SubjectKind = "student"
	KindStaff   SubjectKind = "staff"
	KindVisitor SubjectKind = "visitor"
)

func ParseSubjectKind(s string) (SubjectKind, bool) {
	switch k := SubjectKind(s); k {
	case KindStudent, KindStaff, KindVisitor:
		return k, true
	}
	return "", false
}

// SubjectRef identifies exactly one subject of exactly one kind.
type SubjectRef struct {
	Kind SubjectKind
	ID   string
}

func (r SubjectRef) IsZero() bool { return r.Kind == "" && r.ID == "" }

const StatusActive = "active"

// Subject is the read model for students, staff and visitors. Visitor-only
// fields are zero for the other kinds.
type Subject struct {
	Ref      SubjectRef
	Name     string
	Email    string
	Phone    string
	PhotoURL string
	Status   string
	Code     string

	Company      string
	Purpose      string
	HostID       string
	ValidFrom    time.Time
	ValidUntil   time.Time
	AllowedGates []string

	CreatedAt time.Time
}

func (s Subject) Active() bool { return s.Status == StatusActive }

// AllowsGate reports whether a visitor's allow-list admits gateID. An empty
// list admits every gate.
func (s Subject) AllowsGate(gateID string) bool {
	if len(s.AllowedGates) == 0 {
		return true
	}
	for _, g := range s.AllowedGates {
		if g == gateID {
			return true
		}
	}
	return false
}

type GateStatus string

const (
	GateOnline      GateStatus = "online"
	GateOffline     GateStatus = "offline"
	GateMaintenance GateStatus = "maintenance"
)

type Gate struct {
	ID       string
	Name     string
	Location string
	Status   GateStatus
}

// Directory is the read side of the subject and gate registries.
type Directory interface {
	FindByCode(ctx context.Context, kind SubjectKind, code string) (Subject, error)
	GetSubject(ctx context.Context, ref SubjectRef) (Subject, error)
	GetGate(ctx context.Context, gateID string) (Gate, error)
	ListGates(ctx context.Context) ([]Gate, error)
}

// VisitorStore persists visitor passes.
type VisitorStore interface {
	CreateVisitor(ctx context.Context, v Subject) error
	ListVisitors(ctx context.Context, page Page) ([]Subject, int, error)
}
