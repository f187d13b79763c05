// Package ports defines the interfaces the application layer depends on,
// decoupling it from concrete infrastructure.
package ports

import (
	"context"

	"stratus-backend/domain/events"
)

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}
