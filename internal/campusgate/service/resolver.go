package service

import (
	"context"
	"errors"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
)

// resolveOrder is the lookup precedence when a code exists in more than one
// registry.
var resolveOrder = []store.SubjectKind{store.KindStudent, store.KindStaff, store.KindVisitor}

type Resolver struct {
	dir store.Directory
}

func NewResolver(dir store.Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve maps a scanned code to its subject. found is false when no
// registry knows the code.
func (r *Resolver) Resolve(ctx context.Context, code string) (subject store.Subject, found bool, err error) {
	for _, kind := range resolveOrder {
		s, err := r.dir.FindByCode(ctx, kind, code)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return store.Subject{}, false, classify("find "+string(kind)+" by code", err)
		}
		return s, true, nil
	}
	return store.Subject{}, false, nil
}
