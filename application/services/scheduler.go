// Package services contains the application services that drive the cache:
// the refresh scheduler that runs caching agents periodically.
package services

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"stratus-backend/application/agents"
	"stratus-backend/application/ports"
	"stratus-backend/domain/cache"
	"stratus-backend/domain/events"
	"stratus-backend/pkg/errors"
	"stratus-backend/pkg/observability"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SchedulerConfig holds the refresh loop knobs.
type SchedulerConfig struct {
	// Interval between the start of one run and the next, per agent.
	Interval time.Duration
	// Jitter is the maximum random delay added to each cycle so agents
	// for many scopes do not stampede the source together.
	Jitter time.Duration
	// Timeout bounds one run, fetch included, so a stalled source cannot
	// starve the scheduler.
	Timeout time.Duration
	// MaxConcurrent bounds how many agents run at once.
	MaxConcurrent int
}

// sizer is implemented by store backends that can report partition sizes
// cheaply; the scheduler uses it to keep the cache size gauge current.
type sizer interface {
	Len(ns cache.Namespace) int
}

// Scheduler runs every configured agent on its own jittered cycle.
// Agents are independent: no ordering holds between different agents, and
// a failing one never affects the others or previously cached data.
type Scheduler struct {
	agents    []agents.Agent
	store     cache.Store
	publisher ports.EventPublisher
	metrics   *observability.Collector
	logger    *zap.Logger

	interval atomic.Int64
	jitter   time.Duration
	timeout  time.Duration
	sem      chan struct{}
}

// NewScheduler creates a scheduler over the configured agent set.
func NewScheduler(
	agentSet []agents.Agent,
	store cache.Store,
	publisher ports.EventPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
	cfg SchedulerConfig,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	s := &Scheduler{
		agents:    agentSet,
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		jitter:    cfg.Jitter,
		timeout:   cfg.Timeout,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
	}
	s.interval.Store(int64(cfg.Interval))
	return s
}

// SetInterval changes the refresh interval. Running cycles finish on the
// old interval; the next sleep picks up the new one. Wired to the config
// watcher.
func (s *Scheduler) SetInterval(interval time.Duration) {
	s.interval.Store(int64(interval))
	s.logger.Info("refresh interval updated", zap.Duration("interval", interval))
}

// Run executes all agent loops until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting refresh scheduler",
		zap.Int("agents", len(s.agents)),
		zap.Duration("interval", time.Duration(s.interval.Load())),
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, agent := range s.agents {
		agent := agent
		g.Go(func() error {
			s.runLoop(ctx, agent)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, agent agents.Agent) {
	// Initial splay so all agents do not fire at startup simultaneously.
	if !s.sleep(ctx, s.splay()) {
		return
	}

	for {
		s.runOnce(ctx, agent)
		if !s.sleep(ctx, time.Duration(s.interval.Load())+s.splay()) {
			return
		}
	}
}

func (s *Scheduler) splay() time.Duration {
	if s.jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(s.jitter)))
}

// sleep waits for d or until the context is done, reporting whether the
// loop should continue.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) runOnce(ctx context.Context, agent agents.Agent) {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return
	}

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := agent.LoadData(runCtx, s.store)
	elapsed := time.Since(start)

	if err != nil {
		s.observeFailure(ctx, agent, err, elapsed)
		return
	}

	if s.metrics != nil {
		s.metrics.ObserveAgentRun(result.AgentType, "success", elapsed)
		for ns, count := range result.Counts {
			s.metrics.EntitiesWritten.WithLabelValues(result.AgentType, string(ns)).Add(float64(count))
		}
		if result.Evicted > 0 {
			s.metrics.EntitiesEvicted.WithLabelValues(result.AgentType).Add(float64(result.Evicted))
		}
		if sized, ok := s.store.(sizer); ok {
			for _, ns := range result.Namespaces {
				s.metrics.CacheSize.WithLabelValues(string(ns)).Set(float64(sized.Len(ns)))
			}
		}
	}

	s.logger.Info("agent refresh completed",
		zap.String("agent_type", result.AgentType),
		zap.String("run_id", result.RunID),
		zap.Int("evicted", result.Evicted),
		zap.Duration("elapsed", elapsed),
	)

	if s.publisher != nil {
		namespaces := make([]string, len(result.Namespaces))
		for i, ns := range result.Namespaces {
			namespaces[i] = string(ns)
		}
		counts := make(map[string]int, len(result.Counts))
		for ns, count := range result.Counts {
			counts[string(ns)] = count
		}
		event := events.NewNamespaceRefreshedEvent(result.AgentType, result.RunID, namespaces, counts, result.Evicted)
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish refresh event", zap.Error(err))
		}
	}
}

func (s *Scheduler) observeFailure(ctx context.Context, agent agents.Agent, err error, elapsed time.Duration) {
	agentType := agent.AgentType()
	if s.metrics != nil {
		s.metrics.ObserveAgentRun(agentType, "error", elapsed)
		if errors.IsFetchFailed(err) {
			s.metrics.FetchFailures.WithLabelValues(agentType).Inc()
		}
	}

	if errors.IsFetchFailed(err) {
		// The run aborted before merge; the store is untouched and the
		// next cycle retries.
		s.logger.Warn("agent fetch failed, will retry next cycle",
			zap.String("agent_type", agentType),
			zap.Error(err),
		)
	} else {
		s.logger.Error("agent refresh failed",
			zap.String("agent_type", agentType),
			zap.Error(err),
		)
	}

	if s.publisher != nil {
		event := events.NewRefreshFailedEvent(agentType, err.Error())
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish refresh failure event", zap.Error(err))
		}
	}
}
