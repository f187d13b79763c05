package agents

import (
	"context"

	"stratus-backend/application/ports"
	"stratus-backend/domain/cache"
	"stratus-backend/domain/events"

	"go.uber.org/zap"
)

// Request is an externally-triggered refresh demand: a type discriminator
// plus a mapping of scope-identifying fields (account, region, name). The
// transport that delivers it is not this package's concern.
type Request struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// Dispatcher routes on-demand requests to the agent set. Agents are
// registered at startup from configuration; the first agent that handles
// both the request type and its scope answers.
type Dispatcher struct {
	agents    []OnDemandAgent
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher over the given on-demand agents.
func NewDispatcher(onDemand []OnDemandAgent, publisher ports.EventPublisher, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		agents:    onDemand,
		publisher: publisher,
		logger:    logger,
	}
}

// Dispatch finds the agent for a request and runs its targeted refresh.
// No matching agent returns (nil, nil): the request belongs to a scope
// this process does not cover, which is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, store cache.Store, req Request) (*OnDemandResult, error) {
	for _, agent := range d.agents {
		if !agent.Handles(req.Type) {
			continue
		}
		result, err := agent.Handle(ctx, store, req.Data)
		if err != nil {
			d.logger.Error("on-demand refresh failed",
				zap.String("request_type", req.Type),
				zap.String("agent_type", agent.AgentType()),
				zap.Error(err),
			)
			return nil, err
		}
		if result == nil {
			// Scope mismatch: some other instance of this agent kind owns
			// the request's scope.
			continue
		}

		d.logger.Info("processed on-demand refresh",
			zap.String("request_type", req.Type),
			zap.String("agent_type", result.SourceAgentType),
		)
		if d.publisher != nil {
			authoritative := make([]string, len(result.AuthoritativeTypes))
			for i, ns := range result.AuthoritativeTypes {
				authoritative[i] = string(ns)
			}
			event := events.NewOnDemandProcessedEvent(req.Type, result.SourceAgentType, authoritative)
			if err := d.publisher.Publish(ctx, event); err != nil {
				d.logger.Warn("failed to publish on-demand event", zap.Error(err))
			}
		}
		return result, nil
	}

	d.logger.Debug("no agent claimed on-demand request",
		zap.String("request_type", req.Type),
	)
	return nil, nil
}
