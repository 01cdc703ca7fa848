package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
)

type Directory struct {
	mu       sync.RWMutex
	subjects map[store.SubjectRef]store.Subject
	byCode   map[store.SubjectKind]map[string]store.SubjectRef
	gates    map[string]store.Gate
}

func NewDirectory() *Directory {
	return &Directory{
		subjects: make(map[store.SubjectRef]store.Subject),
		byCode:   make(map[store.SubjectKind]map[string]store.SubjectRef),
		gates:    make(map[string]store.Gate),
	}
}

// PutSubject inserts or replaces a student, staff member or visitor.
func (d *Directory) PutSubject(s store.Subject) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.putLocked(s)
}

func (d *Directory) putLocked(s store.Subject) {
	s.AllowedGates = slices.Clone(s.AllowedGates)
	d.subjects[s.Ref] = s
	codes := d.byCode[s.Ref.Kind]
	if codes == nil {
		codes = make(map[string]store.SubjectRef)
		d.byCode[s.Ref.Kind] = codes
	}
	codes[s.Code] = s.Ref
}

func (d *Directory) PutGate(g store.Gate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if g.Status == "" {
		g.Status = store.GateOnline
	}
	d.gates[g.ID] = g
}

func (d *Directory) FindByCode(_ context.Context, kind store.SubjectKind, code string) (store.Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ref, ok := d.byCode[kind][code]
	if !ok {
		return store.Subject{}, store.ErrNotFound
	}
	return d.copyLocked(ref), nil
}

func (d *Directory) GetSubject(_ context.Context, ref store.SubjectRef) (store.Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.subjects[ref]; !ok {
		return store.Subject{}, store.ErrNotFound
	}
	return d.copyLocked(ref), nil
}

func (d *Directory) copyLocked(ref store.SubjectRef) store.Subject {
	s := d.subjects[ref]
	s.AllowedGates = slices.Clone(s.AllowedGates)
	return s
}

func (d *Directory) GetGate(_ context.Context, gateID string) (store.Gate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.gates[gateID]
	if !ok {
		return store.Gate{}, store.ErrNotFound
	}
	return g, nil
}

func (d *Directory) ListGates(_ context.Context) ([]store.Gate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]store.Gate, 0, len(d.gates))
	for _, g := range d.gates {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b store.Gate) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (d *Directory) CreateVisitor(_ context.Context, v store.Subject) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subjects[v.Ref]; ok {
		return store.ErrDuplicate
	}
	if _, ok := d.byCode[store.KindVisitor][v.Code]; ok {
		return store.ErrDuplicate
	}
	d.putLocked(v)
	return nil
}

func (d *Directory) ListVisitors(_ context.Context, p store.Page) ([]store.Subject, int, error) {
	d.mu.RLock()
	var all []store.Subject
	for ref := range d.subjects {
		if ref.Kind == store.KindVisitor {
			all = append(all, d.copyLocked(ref))
		}
	}
	d.mu.RUnlock()

	slices.SortFunc(all, func(a, b store.Subject) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.Ref.ID, b.Ref.ID)
	})
	return page(all, p), len(all), nil
}
