package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrAlreadySubscribed = errors.New("already subscribed")

// EventBus relays room events between broadcaster instances over Redis
// pub/sub. Events carry their origin and an instance ignores its own.
type EventBus struct {
	client     redis.UniversalClient
	instanceID string
	channel    string
	logger     *zap.SugaredLogger

	mu     sync.Mutex
	pubsub *redis.PubSub
	ready  chan struct{}
}

var _ ports.RoomFanout = (*EventBus)(nil)

func NewEventBus(
	client redis.UniversalClient,
	instanceID string,
	channel string,
	logger *zap.SugaredLogger,
) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    channel,
		logger:     logger,
		ready:      make(chan struct{}),
	}
}

func (eb *EventBus) Publish(ctx context.Context, event domain.RoomEvent) error {
	event.Origin = eb.instanceID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published room event",
		"type", event.Type,
		"room", event.Room,
	)
	return nil
}

// Ready is closed once Subscribe has a confirmed subscription.
func (eb *EventBus) Ready() <-chan struct{} {
	return eb.ready
}

// Subscribe delivers remote events to handler until ctx is done or the bus
// is closed.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(domain.RoomEvent)) error {
	eb.mu.Lock()
	if eb.pubsub != nil {
		eb.mu.Unlock()
		return ErrAlreadySubscribed
	}
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	eb.pubsub = pubsub
	eb.mu.Unlock()
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eb.channel, err)
	}
	close(eb.ready)
	eb.logger.Infow("subscribed to room events", "channel", eb.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event domain.RoomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal room event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			if event.Origin == eb.instanceID {
				continue
			}

			handler(event)
		}
	}
}

func (eb *EventBus) Close() error {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
