// Package service implements the gate-access decisions: QR scans, face
// verification with escalation, visitor passes, the violation ledger and
// vehicle movement reconciliation.
package service

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/broadcast"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/face"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/types"
	"github.com/BrandonDHaskell/campusgate/internal/clock"
	"github.com/BrandonDHaskell/campusgate/internal/keylock"
	"github.com/BrandonDHaskell/campusgate/internal/metrics"
)

var tracer = otel.Tracer("github.com/BrandonDHaskell/campusgate/internal/campusgate/service")

// Policy holds the tunable decision parameters.
type Policy struct {
	FaceThreshold      float64
	FailWindow         time.Duration
	FailThreshold      int
	Lockout            time.Duration
	VisitorMaxDuration time.Duration
	VisitorBackdate    time.Duration
	DefaultPageSize    int
	MaxPageSize        int
	WriteTimeout       time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		FaceThreshold:      0.75,
		FailWindow:         5 * time.Minute,
		FailThreshold:      3,
		Lockout:            10 * time.Minute,
		VisitorMaxDuration: 24 * time.Hour,
		VisitorBackdate:    time.Hour,
		DefaultPageSize:    20,
		MaxPageSize:        100,
		WriteTimeout:       5 * time.Second,
	}
}

// Broadcaster fans events out to live observers without blocking.
type Broadcaster interface {
	Broadcast(evt broadcast.Event) int
}

// Deps are the collaborators shared by every service. Directory, Ledger,
// Fleet and Vehicles are required by the services that use them; the rest
// fall back to working defaults.
type Deps struct {
	Directory store.Directory
	Visitors  store.VisitorStore
	Ledger    store.Ledger
	Fleet     store.Fleet
	Vehicles  store.VehicleLog
	AccessLog store.AccessLog

	Matcher     face.Matcher
	Broadcaster Broadcaster
	Locker      keylock.Locker
	Clock       clock.Clock
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Policy      Policy
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(broadcast.Event) int { return 0 }

// base carries the plumbing every service shares.
type base struct {
	Deps
	gates *GateRegistry
}

func newBase(d Deps) base {
	def := DefaultPolicy()
	if d.Policy.FaceThreshold <= 0 {
		d.Policy.FaceThreshold = def.FaceThreshold
	}
	if d.Policy.FailWindow <= 0 {
		d.Policy.FailWindow = def.FailWindow
	}
	if d.Policy.FailThreshold <= 0 {
		d.Policy.FailThreshold = def.FailThreshold
	}
	if d.Policy.Lockout <= 0 {
		d.Policy.Lockout = def.Lockout
	}
	if d.Policy.VisitorMaxDuration <= 0 {
		d.Policy.VisitorMaxDuration = def.VisitorMaxDuration
	}
	if d.Policy.VisitorBackdate < 0 {
		d.Policy.VisitorBackdate = def.VisitorBackdate
	}
	if d.Policy.MaxPageSize <= 0 {
		d.Policy.MaxPageSize = def.MaxPageSize
	}
	if d.Policy.DefaultPageSize <= 0 || d.Policy.DefaultPageSize > d.Policy.MaxPageSize {
		d.Policy.DefaultPageSize = min(def.DefaultPageSize, d.Policy.MaxPageSize)
	}
	if d.Policy.WriteTimeout <= 0 {
		d.Policy.WriteTimeout = def.WriteTimeout
	}
	if d.Broadcaster == nil {
		d.Broadcaster = nopBroadcaster{}
	}
	if d.Locker == nil {
		d.Locker = keylock.NewLocal()
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return base{Deps: d, gates: NewGateRegistry(d.Directory)}
}

// writeContext detaches a write from the caller's cancellation so a client
// that goes away after the decision cannot roll it back.
func (b *base) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), b.Policy.WriteTimeout)
}

// eventTime returns ts in UTC, or the clock's now when ts is unset.
func (b *base) eventTime(ts time.Time) time.Time {
	if ts.IsZero() {
		return b.Clock.Now()
	}
	return ts.UTC()
}

func (b *base) page(q types.PageQuery) (store.Page, error) {
	v := &ValidationError{}
	if q.Page < 0 {
		v.add("page", "must be at least 1")
	}
	if q.Limit < 0 || q.Limit > b.Policy.MaxPageSize {
		v.add("limit", "must be between 1 and %d", b.Policy.MaxPageSize)
	}
	if err := v.err(); err != nil {
		return store.Page{}, err
	}
	p := store.Page{Number: q.Page, Size: q.Limit}
	if p.Number == 0 {
		p.Number = 1
	}
	if p.Size == 0 {
		p.Size = b.Policy.DefaultPageSize
	}
	return p, nil
}

func (b *base) lock(ctx context.Context, key string) (keylock.Unlock, error) {
	unlock, err := b.Locker.Lock(ctx, key)
	if err != nil {
		return nil, classify("lock "+key, err)
	}
	return unlock, nil
}

func (b *base) publish(eventType string, data map[string]any) {
	n := b.Broadcaster.Broadcast(broadcast.NewEvent(eventType, b.Clock.Now(), data))
	b.Logger.Debug("alert broadcast", "type", eventType, "observers", n)
}

func (b *base) recordAccess(ctx context.Context, rec store.AccessLogRecord) {
	if b.AccessLog == nil {
		return
	}
	wctx, cancel := b.writeContext(ctx)
	defer cancel()
	if err := b.AccessLog.RecordAccess(wctx, rec); err != nil {
		b.Metrics.AccessLogFailure()
		b.Logger.Warn("access log write failed",
			"subject", string(rec.Subject.Kind)+":"+rec.Subject.ID, "gate", rec.GateID, "error", err)
	}
}

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// newID returns prefix followed by n random hex characters (n <= 32).
func newID(prefix string, n int) string {
	u := uuid.New()
	return prefix + hex.EncodeToString(u[:])[:n]
}

func resolutionView(r store.Resolution) types.Resolution {
	out := types.Resolution{Resolved: r.Resolved}
	if !r.Resolved {
		return out
	}
	at := r.ResolvedAt
	out.ResolvedAt = &at
	out.ResolvedBy = &types.Actor{ID: r.ResolvedBy, Name: r.ByName}
	if r.Notes != "" {
		notes := r.Notes
		out.Notes = &notes
	}
	return out
}
