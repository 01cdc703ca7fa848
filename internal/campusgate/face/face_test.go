package face_test

import (
	"context"
	"math"
	"testing"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/face"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
)

func TestRandom_StaysInRangeUnrounded(t *testing.T) {
	m := face.NewRandom(42)
	ref := store.SubjectRef{Kind: store.KindStudent, ID: "stu_1"}

	fractional := 0
	for i := 0; i < 500; i++ {
		v, err := m.Match(context.Background(), ref, nil)
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		if v < 0.3 || v > 0.98 {
			t.Fatalf("score %v out of range", v)
		}
		if math.Abs(v*100-math.Round(v*100)) > 1e-9 {
			fractional++
		}
	}
	// Callers compare the raw score against the threshold.
	if fractional == 0 {
		t.Fatal("expected unrounded scores")
	}
}

func TestRandom_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := face.NewRandom(1).Match(ctx, store.SubjectRef{}, nil); err == nil {
		t.Fatal("expected context error")
	}
}
