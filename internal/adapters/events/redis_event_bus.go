package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
	redisclient "github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/clients/redis"
)

const subscriberBuffer = 16

type pubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisEventBus implements the EventBus interface using Redis Pub/Sub.
// One Redis subscription per channel is fanned out to every local subscriber.
type RedisEventBus struct {
	client        pubSubClient
	subscriptions map[string]*redis.PubSub
	subscribers   map[string]map[chan *entities.IndexEvent]struct{}
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	return newRedisEventBus(client.Client())
}

func newRedisEventBus(client pubSubClient) *RedisEventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:        client,
		subscriptions: make(map[string]*redis.PubSub),
		subscribers:   make(map[string]map[chan *entities.IndexEvent]struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Publish publishes an event to all subscribers
func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.IndexEvent) error {
	if event == nil {
		return errors.New("event is nil")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := b.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().Str("channel", channel).Str("event_id", event.ID).Int64("receivers", receivers).Msg("Published event")
	return nil
}

// Subscribe returns a channel of events that stays open until ctx is done or
// the bus is closed.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.IndexEvent, error) {
	if b.ctx.Err() != nil {
		return nil, errors.New("event bus is closed")
	}

	b.mu.Lock()
	if _, exists := b.subscriptions[channel]; !exists {
		pubsub := b.client.Subscribe(b.ctx, channel)
		b.subscriptions[channel] = pubsub
		go b.receiveMessages(channel, pubsub)
	}
	eventChan := b.addSubscriberLocked(channel)
	subscriberCount := len(b.subscribers[channel])
	b.mu.Unlock()

	log.Info().Str("channel", channel).Int("subscribers", subscriberCount).Msg("Subscribed to channel")

	go func() {
		select {
		case <-ctx.Done():
		case <-b.ctx.Done():
		}
		b.removeSubscriber(channel, eventChan)
	}()

	return eventChan, nil
}

func (b *RedisEventBus) addSubscriberLocked(channel string) chan *entities.IndexEvent {
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.IndexEvent]struct{})
	}
	eventChan := make(chan *entities.IndexEvent, subscriberBuffer)
	b.subscribers[channel][eventChan] = struct{}{}
	return eventChan
}

// receiveMessages receives messages from Redis and broadcasts them to subscribers
func (b *RedisEventBus) receiveMessages(channel string, pubsub *redis.PubSub) {
	defer func() {
		if err := b.cleanupChannel(channel); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("Failed to cleanup channel")
		}
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.dispatch(channel, msg.Payload)
		}
	}
}

// dispatch decodes one payload and hands it to every subscriber of channel.
// Subscribers that are not keeping up miss the event.
func (b *RedisEventBus) dispatch(channel, payload string) int {
	var event entities.IndexEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("Failed to unmarshal event")
		return 0
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for subscriber := range b.subscribers[channel] {
		ev := event
		select {
		case subscriber <- &ev:
			delivered++
		default:
			log.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("Subscriber channel full, skipping event")
		}
	}
	return delivered
}

func (b *RedisEventBus) removeSubscriber(channel string, eventChan chan *entities.IndexEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.subscribers[channel]
	if !exists {
		return
	}
	if _, ok := subscribers[eventChan]; !ok {
		return
	}

	delete(subscribers, eventChan)
	close(eventChan)

	if len(subscribers) == 0 {
		delete(b.subscribers, channel)
		if pubsub, ok := b.subscriptions[channel]; ok {
			_ = pubsub.Close()
			delete(b.subscriptions, channel)
			log.Info().Str("channel", channel).Msg("Closed subscription to channel")
		}
	}
}

func (b *RedisEventBus) cleanupChannel(channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, exists := b.subscribers[channel]; exists {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}

	if pubsub, ok := b.subscriptions[channel]; ok {
		delete(b.subscriptions, channel)
		if err := pubsub.Close(); err != nil {
			return fmt.Errorf("failed to close subscription %s: %w", channel, err)
		}
		log.Info().Str("channel", channel).Msg("Closed subscription to channel")
	}

	return nil
}

// Unsubscribe unsubscribes from a channel
func (b *RedisEventBus) Unsubscribe(ctx context.Context, channel string) error {
	if err := b.cleanupChannel(channel); err != nil {
		return err
	}
	log.Info().Str("channel", channel).Msg("Unsubscribed from channel")
	return nil
}

// Close closes the event bus and all subscriptions
func (b *RedisEventBus) Close() error {
	b.cancel()

	b.mu.RLock()
	channels := make([]string, 0, len(b.subscribers))
	for channel := range b.subscribers {
		channels = append(channels, channel)
	}
	b.mu.RUnlock()

	var errs []error
	for _, channel := range channels {
		if err := b.cleanupChannel(channel); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing event bus: %w", errors.Join(errs...))
	}

	log.Info().Msg("Event bus closed")
	return nil
}
