// Package events provides the in-process publish/subscribe bus that carries
// real-time updates (new cough events, detection results, notifications) to
// connected listeners. Delivery is best effort: no persistence, no replay,
// slow subscribers lose messages rather than block publishers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/swarahealth/coughwatch-go/internal/logging"
	"github.com/swarahealth/coughwatch-go/internal/observability"
)

// Topics published on the bus.
const (
	TopicCoughEventNew            = "cough_event:new"
	TopicCoughDetectionComplete   = "cough_event:detection_complete"
	TopicNotificationNew          = "cough_notification:new"
	TopicNotificationAcknowledged = "cough_notification:acknowledged"
	TopicDeviceStatus             = "device:status"
)

// Message is a single bus event with a JSON-serializable payload.
type Message struct {
	Topic     string    `json:"topic"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds event bus configuration.
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns the default event bus configuration.
func DefaultConfig() *Config {
	return &Config{
		BufferSize: 1024,
		Workers:    2,
	}
}

// BusStats contains runtime statistics for monitoring.
type BusStats struct {
	Published   uint64
	Delivered   uint64
	DroppedFull uint64 // publish buffer was full
	DroppedSlow uint64 // a subscriber channel was full
}

type subscriber struct {
	id string
	ch chan Message
}

// Bus fans published messages out to all current subscribers. Construct one
// with NewBus and inject it into the services that publish or listen; there
// is deliberately no process-global instance.
type Bus struct {
	in         chan Message
	bufferSize int

	subscribers map[string]*subscriber
	subMu       sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	published   atomic.Uint64
	delivered   atomic.Uint64
	droppedFull atomic.Uint64
	droppedSlow atomic.Uint64

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewBus creates and starts an event bus with the given configuration.
func NewBus(config *Config) *Bus {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		in:          make(chan Message, config.BufferSize),
		bufferSize:  config.BufferSize,
		subscribers: make(map[string]*subscriber),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logging.ForService("events"),
	}

	workers := config.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.run()
	}

	return b
}

// SetMetrics attaches Prometheus counters to the bus. Call before the
// first Publish.
func (b *Bus) SetMetrics(m *observability.Metrics) {
	b.metrics = m
}

func (b *Bus) recordDrop() {
	if b.metrics != nil {
		b.metrics.RecordBusDrop()
	}
}

// Publish queues a message for delivery to all subscribers. It never blocks;
// when the buffer is full the message is dropped and counted.
func (b *Bus) Publish(topic string, payload any) bool {
	msg := Message{
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	select {
	case b.in <- msg:
		b.published.Add(1)
		return true
	case <-b.ctx.Done():
		return false
	default:
		b.droppedFull.Add(1)
		b.recordDrop()
		b.logger.Warn("event bus buffer full, dropping message", "topic", topic)
		return false
	}
}

// Subscribe registers a listener and returns its channel together with an
// unsubscribe function. The channel is closed on unsubscribe or shutdown.
func (b *Bus) Subscribe() (<-chan Message, func()) {
	sub := &subscriber{
		id: uuid.New().String(),
		ch: make(chan Message, 64),
	}

	b.subMu.Lock()
	b.subscribers[sub.id] = sub
	count := len(b.subscribers)
	b.subMu.Unlock()

	b.logger.Debug("subscriber added", "id", sub.id, "total", count)

	unsubscribe := func() {
		b.subMu.Lock()
		if _, ok := b.subscribers[sub.id]; ok {
			delete(b.subscribers, sub.id)
			close(sub.ch)
		}
		b.subMu.Unlock()
	}

	return sub.ch, unsubscribe
}

// SubscriberCount returns the number of currently connected subscribers.
func (b *Bus) SubscriberCount() int {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subscribers)
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() BusStats {
	return BusStats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		DroppedFull: b.droppedFull.Load(),
		DroppedSlow: b.droppedSlow.Load(),
	}
}

// Shutdown stops the workers and closes all subscriber channels. Messages
// still queued when the context expires are discarded.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.subMu.Lock()
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.subMu.Unlock()

	return nil
}

// run is the worker loop fanning messages out to subscribers.
func (b *Bus) run() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case msg := <-b.in:
			b.deliver(msg)
		}
	}
}

// deliver sends one message to every subscriber without blocking. A full
// subscriber channel counts as a slow-consumer drop.
func (b *Bus) deliver(msg Message) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- msg:
			b.delivered.Add(1)
		default:
			b.droppedSlow.Add(1)
			b.recordDrop()
		}
	}
}
