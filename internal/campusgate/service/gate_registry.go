package service

import (
	"context"
	"errors"
	"strings"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/types"
)

type GateRegistry struct {
	dir store.Directory
}

func NewGateRegistry(dir store.Directory) *GateRegistry {
	return &GateRegistry{dir: dir}
}

// Require returns the gate or ErrInvalidGate. Gate status is reported, not
// enforced.
func (r *GateRegistry) Require(ctx context.Context, gateID string) (store.Gate, error) {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return store.Gate{}, ErrInvalidGate
	}
	g, err := r.dir.GetGate(ctx, gateID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Gate{}, ErrInvalidGate
	}
	if err != nil {
		return store.Gate{}, classify("get gate", err)
	}
	return g, nil
}

func (r *GateRegistry) List(ctx context.Context) (types.GateList, error) {
	gates, err := r.dir.ListGates(ctx)
	if err != nil {
		return types.GateList{}, classify("list gates", err)
	}
	out := types.GateList{Gates: make([]types.GateView, 0, len(gates))}
	for _, g := range gates {
		out.Gates = append(out.Gates, types.GateView{
			ID:       g.ID,
			Name:     g.Name,
			Location: g.Location,
			Status:   string(g.Status),
		})
	}
	return out, nil
}

func (r *GateRegistry) names(ctx context.Context) (map[string]string, error) {
	gates, err := r.dir.ListGates(ctx)
	if err != nil {
		return nil, classify("list gates", err)
	}
	m := make(map[string]string, len(gates))
	for _, g := range gates {
		m[g.ID] = g.Name
	}
	return m, nil
}
