// Package broadcast fans alert events out to live observers. Delivery is
// best-effort: an observer that cannot take a frame immediately is dropped
// and closed, and the publisher never waits.
package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BrandonDHaskell/campusgate/internal/metrics"
)

var (
	ErrObserverFull   = errors.New("observer buffer full")
	ErrObserverClosed = errors.New("observer closed")
	ErrHubClosed      = errors.New("broadcast hub closed")
)

// Observer receives frames. Deliver must not block. Close releases the
// observer and must be safe to call more than once.
type Observer interface {
	Deliver(f *Frame) error
	Close()
}

type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	observers map[Observer]struct{}
	closed    bool
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:    logger.With("component", "broadcast"),
		metrics:   m,
		observers: make(map[Observer]struct{}),
	}
}

// Subscribe registers o. Registering the same observer twice is a no-op.
func (h *Hub) Subscribe(o Observer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.observers[o] = struct{}{}
	h.metrics.SetObservers(len(h.observers))
	return nil
}

// Unsubscribe removes and closes o if it is registered.
func (h *Hub) Unsubscribe(o Observer) {
	h.mu.Lock()
	_, ok := h.observers[o]
	if ok {
		delete(h.observers, o)
		h.metrics.SetObservers(len(h.observers))
	}
	h.mu.Unlock()
	if ok {
		o.Close()
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Broadcast serializes evt once and offers it to every observer. It returns
// how many observers accepted the frame.
func (h *Hub) Broadcast(evt Event) int {
	frame, err := NewFrame(evt)
	if err != nil {
		h.logger.Error("alert not broadcast", "type", evt.Type, "error", err)
		return 0
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0
	}
	targets := make([]Observer, 0, len(h.observers))
	for o := range h.observers {
		targets = append(targets, o)
	}
	h.mu.Unlock()

	delivered := 0
	var failed []Observer
	for _, o := range targets {
		if err := deliver(o, frame); err != nil {
			h.logger.Warn("dropping alert observer", "type", evt.Type, "error", err)
			failed = append(failed, o)
			continue
		}
		delivered++
		h.metrics.FrameDelivered()
	}

	for _, o := range failed {
		h.Unsubscribe(o)
		h.metrics.ObserverDropped()
	}
	return delivered
}

func deliver(o Observer, f *Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer deliver panic: %v", r)
		}
	}()
	return o.Deliver(f)
}

// Close stops the hub and closes every observer. Later Subscribe calls fail
// and Broadcast becomes a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	all := make([]Observer, 0, len(h.observers))
	for o := range h.observers {
		all = append(all, o)
	}
	clear(h.observers)
	h.metrics.SetObservers(0)
	h.mu.Unlock()

	for _, o := range all {
		o.Close()
	}
}
