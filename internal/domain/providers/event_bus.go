package providers

import (
	"context"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.IndexEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.IndexEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannelIndexUpdates carries index rebuild notifications between replicas
const EventChannelIndexUpdates = "carechat:index:updates"
