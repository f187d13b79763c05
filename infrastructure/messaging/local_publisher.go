// Package messaging provides the event publisher implementations: an
// EventBridge publisher for deployed environments and a local publisher
// that only logs, used in development and when events are disabled.
package messaging

import (
	"context"

	"stratus-backend/application/ports"
	"stratus-backend/domain/events"

	"go.uber.org/zap"
)

// LocalPublisher logs events instead of sending them to a bus.
type LocalPublisher struct {
	logger *zap.Logger
}

// NewLocalPublisher creates a publisher that records events in the log only.
func NewLocalPublisher(logger *zap.Logger) ports.EventPublisher {
	return &LocalPublisher{logger: logger}
}

// Publish logs a single event.
func (p *LocalPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	p.logger.Debug("event published locally",
		zap.String("eventType", event.GetEventType()),
		zap.String("aggregateID", event.GetAggregateID()),
	)
	return nil
}

// PublishBatch logs each event in the batch.
func (p *LocalPublisher) PublishBatch(ctx context.Context, domainEvents []events.DomainEvent) error {
	for _, event := range domainEvents {
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
