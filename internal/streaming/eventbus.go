package streaming

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

const subscriberBuffer = 100

// EventBus distributes engagement events to local subscribers and, when
// connected, to NATS.
type EventBus struct {
	nats   *NATSPublisher
	logger *logger.Logger

	mu          sync.RWMutex
	subscribers map[string]*subscriber
	nextID      int
	closed      bool

	published atomic.Int64
	dropped   atomic.Int64
}

type subscriber struct {
	ch     chan *models.EngagementEvent
	filter *Subscription
}

// EventBusStats is a point-in-time view of bus activity
type EventBusStats struct {
	Subscribers   int   `json:"subscribers"`
	Published     int64 `json:"published"`
	Dropped       int64 `json:"dropped"`
	NATSConnected bool  `json:"natsConnected"`
}

// NewEventBus creates a new event bus. nats may be nil.
func NewEventBus(nats *NATSPublisher, log *logger.Logger) *EventBus {
	return &EventBus{
		nats:        nats,
		logger:      log.WithComponent("event-bus"),
		subscribers: make(map[string]*subscriber),
	}
}

// Publish sends an event to NATS and every matching local subscriber.
// NATS failures are logged; local delivery never blocks.
func (eb *EventBus) Publish(ctx context.Context, event *models.EngagementEvent) error {
	if eb.nats != nil && eb.nats.IsConnected() {
		if err := eb.nats.PublishEngagement(ctx, event); err != nil {
			eb.logger.Warn().Err(err).Msg("failed to publish to NATS, using local broadcast only")
		}
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return nil
	}
	eb.published.Add(1)

	for id, sub := range eb.subscribers {
		if !sub.filter.Matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			eb.dropped.Add(1)
			eb.logger.Debug().Str("subscriber", id).Msg("subscriber channel full, dropping event")
		}
	}

	return nil
}

// PublishEngagement lets the bus stand in wherever an event publisher is expected
func (eb *EventBus) PublishEngagement(ctx context.Context, event *models.EngagementEvent) error {
	return eb.Publish(ctx, event)
}

// Subscribe registers a local subscriber. The returned function removes it
// and closes the channel; it is safe to call more than once.
func (eb *EventBus) Subscribe(sub *Subscription) (<-chan *models.EngagementEvent, func()) {
	eb.mu.Lock()
	eb.nextID++
	id := strconv.Itoa(eb.nextID)
	ch := make(chan *models.EngagementEvent, subscriberBuffer)
	if eb.closed {
		close(ch)
		eb.mu.Unlock()
		return ch, func() {}
	}
	eb.subscribers[id] = &subscriber{ch: ch, filter: sub}
	eb.mu.Unlock()

	eb.logger.Debug().Str("subscriber_id", id).Msg("new subscriber")

	unsubscribe := func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		if _, ok := eb.subscribers[id]; ok {
			close(ch)
			delete(eb.subscribers, id)
			eb.logger.Debug().Str("subscriber_id", id).Msg("subscriber removed")
		}
	}

	return ch, unsubscribe
}

// SubscribeRemote consumes events from NATS, including those published by
// other instances. The channel closes when ctx is done.
func (eb *EventBus) SubscribeRemote(ctx context.Context, sub *Subscription) (<-chan *models.EngagementEvent, error) {
	if eb.nats == nil {
		return nil, ErrNATSNotConnected
	}
	return eb.nats.Subscribe(ctx, sub)
}

// SubscriberCount returns the number of active subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// NATSConnected reports whether events are also leaving the process
func (eb *EventBus) NATSConnected() bool {
	return eb.nats != nil && eb.nats.IsConnected()
}

// Stats returns bus counters
func (eb *EventBus) Stats() EventBusStats {
	return EventBusStats{
		Subscribers:   eb.SubscriberCount(),
		Published:     eb.published.Load(),
		Dropped:       eb.dropped.Load(),
		NATSConnected: eb.NATSConnected(),
	}
}

// Close closes every subscriber channel and the NATS connection
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.closed = true
	for id, sub := range eb.subscribers {
		close(sub.ch)
		delete(eb.subscribers, id)
	}

	if eb.nats != nil {
		eb.nats.Close()
	}
}
