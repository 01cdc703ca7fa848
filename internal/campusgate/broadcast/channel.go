package broadcast

import "sync"

const DefaultBuffer = 32

// ChannelObserver buffers frames on a channel for a single reader, such as a
// websocket pump. The channel is closed when the observer is.
type ChannelObserver struct {
	mu     sync.Mutex
	ch     chan *Frame
	closed bool
}

func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &ChannelObserver{ch: make(chan *Frame, buffer)}
}

func (o *ChannelObserver) C() <-chan *Frame { return o.ch }

func (o *ChannelObserver) Deliver(f *Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrObserverClosed
	}
	select {
	case o.ch <- f:
		return nil
	default:
		return ErrObserverFull
	}
}

func (o *ChannelObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}
