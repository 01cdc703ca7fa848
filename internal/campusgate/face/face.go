// Package face provides the confidence source behind face verification. The
// random matcher is a stand-in; real deployments plug a matcher in through
// the Matcher interface.
package face

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
)

// Matcher scores how well sample matches the enrolled face of subject, in
// [0, 1].
type Matcher interface {
	Match(ctx context.Context, subject store.SubjectRef, sample []byte) (float64, error)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(ctx context.Context, subject store.SubjectRef, sample []byte) (float64, error)

func (f MatcherFunc) Match(ctx context.Context, subject store.SubjectRef, sample []byte) (float64, error) {
	return f(ctx, subject, sample)
}

// Random returns uniform scores in [Min, Max].
type Random struct {
	Min, Max float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{Min: 0.3, Max: 0.98, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *Random) Match(ctx context.Context, _ store.SubjectRef, _ []byte) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	v := r.Min + r.rng.Float64()*(r.Max-r.Min)
	r.mu.Unlock()
	return v, nil
}

// Static always returns the same score.
type Static float64

func (s Static) Match(context.Context, store.SubjectRef, []byte) (float64, error) {
	return float64(s), nil
}
