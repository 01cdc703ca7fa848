package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	QueueSize    int
	WriteTimeout time.Duration
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaObserver forwards frames to a Kafka topic keyed by event type. Deliver
// only enqueues; a background goroutine does the writes.
type KafkaObserver struct {
	writer  kafkaWriter
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	queue  chan *Frame
	closed bool

	closeOnce sync.Once
	done      chan struct{}

	dropped atomic.Int64
}

func NewKafkaObserver(cfg KafkaConfig, logger *slog.Logger) (*KafkaObserver, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaObserver(w, cfg.QueueSize, cfg.WriteTimeout, logger), nil
}

func newKafkaObserver(w kafkaWriter, queueSize int, timeout time.Duration, logger *slog.Logger) *KafkaObserver {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &KafkaObserver{
		writer:  w,
		timeout: timeout,
		logger:  logger.With("component", "kafka_observer"),
		queue:   make(chan *Frame, queueSize),
		done:    make(chan struct{}),
	}
	go o.loop()
	return o
}

// Deliver enqueues f. When the queue is full the frame is dropped rather
// than the observer, so a slow broker costs alerts but never disables the
// export.
func (o *KafkaObserver) Deliver(f *Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrObserverClosed
	}
	select {
	case o.queue <- f:
	default:
		n := o.dropped.Add(1)
		o.logger.Error("kafka queue full, alert not exported",
			"type", f.Event.Type, "queue", cap(o.queue), "dropped_total", n)
	}
	return nil
}

// Dropped reports how many frames were discarded on a full queue.
func (o *KafkaObserver) Dropped() int64 { return o.dropped.Load() }

func (o *KafkaObserver) loop() {
	defer close(o.done)
	for f := range o.queue {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		err := o.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(f.Event.Type),
			Value: f.JSON(),
			Time:  f.Event.Timestamp,
		})
		cancel()
		if err != nil {
			o.logger.Warn("kafka write failed", "type", f.Event.Type, "error", err)
		}
	}
}

// Close flushes queued frames, then closes the writer.
func (o *KafkaObserver) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.queue)
		o.mu.Unlock()

		<-o.done
		if err := o.writer.Close(); err != nil {
			o.logger.Warn("kafka writer close", "error", err)
		}
	})
}
