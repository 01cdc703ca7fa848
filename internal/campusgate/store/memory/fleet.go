package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
)

type Fleet struct {
	mu      sync.RWMutex
	byPlate map[string]store.Vehicle
}

func NewFleet() *Fleet {
	return &Fleet{byPlate: make(map[string]store.Vehicle)}
}

func (f *Fleet) GetVehicleByPlate(_ context.Context, plate string) (store.Vehicle, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.byPlate[plate]
	if !ok {
		return store.Vehicle{}, store.ErrNotFound
	}
	return v, nil
}

func (f *Fleet) RegisterVehicle(_ context.Context, v store.Vehicle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byPlate[v.Plate]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range f.byPlate {
		if existing.ID == v.ID {
			return store.ErrDuplicate
		}
	}
	f.byPlate[v.Plate] = v
	return nil
}

func (f *Fleet) ListVehicles(_ context.Context, p store.Page) ([]store.Vehicle, int, error) {
	f.mu.RLock()
	all := make([]store.Vehicle, 0, len(f.byPlate))
	for _, v := range f.byPlate {
		all = append(all, v)
	}
	f.mu.RUnlock()

	slices.SortFunc(all, func(a, b store.Vehicle) int {
		return newestFirst(a.RegisteredAt, b.RegisteredAt, a.ID, b.ID)
	})
	return page(all, p), len(all), nil
}
