package cloud

import (
	"context"
	"time"

	appErrors "stratus-backend/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig holds configuration for the source circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a default configuration for the source
// circuit breaker
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// BreakerSource wraps a ResourceSource with a circuit breaker so a stalled
// or erroring provider trips open instead of being hammered every cycle.
// While the breaker is open, calls fail fast with FetchFailed; the run
// aborts before merge and the store is left untouched.
type BreakerSource struct {
	inner   ResourceSource
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewBreakerSource wraps a source with a circuit breaker.
func NewBreakerSource(inner ResourceSource, config BreakerConfig, logger *zap.Logger) *BreakerSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("source circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerSource{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

func execList(b *BreakerSource, call func() ([]Resource, error)) ([]Resource, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return call()
	})
	if err != nil {
		return nil, wrapBreakerErr(err)
	}
	return out.([]Resource), nil
}

func execGet(b *BreakerSource, call func() (*Resource, error)) (*Resource, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return call()
	})
	if err != nil {
		return nil, wrapBreakerErr(err)
	}
	return out.(*Resource), nil
}

func wrapBreakerErr(err error) error {
	switch err {
	case gobreaker.ErrOpenState:
		return appErrors.NewFetchFailed("source circuit breaker is open", err)
	case gobreaker.ErrTooManyRequests:
		return appErrors.NewFetchFailed("source circuit breaker is half-open and saturated", err)
	}
	if appErrors.IsFetchFailed(err) {
		return err
	}
	return appErrors.NewFetchFailed("source call failed", err)
}

// ListClusters delegates through the breaker.
func (b *BreakerSource) ListClusters(ctx context.Context, provider, account string) ([]Resource, error) {
	return execList(b, func() ([]Resource, error) {
		return b.inner.ListClusters(ctx, provider, account)
	})
}

// GetCluster delegates through the breaker.
func (b *BreakerSource) GetCluster(ctx context.Context, provider, account, name string) (*Resource, error) {
	return execGet(b, func() (*Resource, error) {
		return b.inner.GetCluster(ctx, provider, account, name)
	})
}

// ListSecurityGroups delegates through the breaker.
func (b *BreakerSource) ListSecurityGroups(ctx context.Context, provider, account, region string) ([]Resource, error) {
	return execList(b, func() ([]Resource, error) {
		return b.inner.ListSecurityGroups(ctx, provider, account, region)
	})
}

// GetSecurityGroup delegates through the breaker.
func (b *BreakerSource) GetSecurityGroup(ctx context.Context, provider, account, region, name string) (*Resource, error) {
	return execGet(b, func() (*Resource, error) {
		return b.inner.GetSecurityGroup(ctx, provider, account, region, name)
	})
}

var _ ResourceSource = (*BreakerSource)(nil)
