package events

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/muurk/printhost/internal/logging"
)

// DefaultBufferSize is the queue length of a subscription
const DefaultBufferSize = 16

// Bus fans events out to in-process subscribers. Publish never blocks: a
// subscriber whose queue is full misses the event.
type Bus struct {
	log *zap.Logger

	published *prometheus.CounterVec
	dropped   prometheus.Counter

	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// BusOption configures a Bus
type BusOption func(*Bus)

// WithBusLogger sets the logger
func WithBusLogger(log *zap.Logger) BusOption {
	return func(b *Bus) {
		b.log = log
	}
}

// NewBus creates a bus without subscribers
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs: make(map[chan Event]struct{}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "printhost",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events published on the in-process bus by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "printhost",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Event deliveries skipped because a subscriber was full.",
		}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logging.Named("events")
	}
	return b
}

// Collectors returns the bus counters for registration
func (b *Bus) Collectors() []prometheus.Collector {
	return []prometheus.Collector{b.published, b.dropped}
}

// Subscribe returns a channel receiving every later event and a function
// that cancels the subscription and closes the channel
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscriptions
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish implements Publisher
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.published.WithLabelValues(string(e.Type)).Inc()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Inc()
			b.log.Warn("Subscriber queue full, dropping event", zap.String("type", string(e.Type)))
		}
	}
	return nil
}
