// Package di wires the application together with google/wire.
package di

import (
	"context"
	"fmt"

	"stratus-backend/application/agents"
	"stratus-backend/application/ports"
	"stratus-backend/application/queries"
	"stratus-backend/application/services"
	"stratus-backend/domain/cache"
	appconfig "stratus-backend/infrastructure/config"
	"stratus-backend/infrastructure/cloud"
	"stratus-backend/infrastructure/dynamostore"
	"stratus-backend/infrastructure/memstore"
	"stratus-backend/infrastructure/messaging"
	ebpublisher "stratus-backend/infrastructure/messaging/eventbridge"
	"stratus-backend/interfaces/http/rest"
	"stratus-backend/interfaces/http/rest/handlers"
	"stratus-backend/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config      *appconfig.Config
	Logger      *zap.Logger
	Store       cache.Store
	Source      cloud.ResourceSource
	Publisher   ports.EventPublisher
	Agents      []agents.Agent
	Dispatcher  *agents.Dispatcher
	Scheduler   *services.Scheduler
	ReadService *queries.ApplicationReadService
	Metrics     *observability.Collector
	Router      *rest.Router
}

// ProvideLogger builds the zap logger for the configured environment.
func ProvideLogger(cfg *appconfig.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	zapCfg.Level = level

	return zapCfg.Build()
}

// ProvideAWSConfig loads the shared AWS client configuration.
func ProvideAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
}

// ProvideDynamoDBClient creates the DynamoDB client, honoring a local
// endpoint override.
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *appconfig.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
}

// ProvideEventBridgeClient creates the EventBridge client.
func ProvideEventBridgeClient(awsCfg aws.Config, cfg *appconfig.Config) *eventbridge.Client {
	return eventbridge.NewFromConfig(awsCfg, func(o *eventbridge.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
}

// ProvideStore selects the store backend from configuration.
func ProvideStore(cfg *appconfig.Config, client *dynamodb.Client, logger *zap.Logger) (cache.Store, error) {
	switch cfg.Cache.Provider {
	case "memory":
		var opts []memstore.Option
		if cfg.Cache.StrictAuthority {
			opts = append(opts, memstore.WithStrictAuthority())
		}
		return memstore.New(logger, opts...), nil
	case "dynamodb":
		var opts []dynamostore.Option
		if cfg.Cache.StrictAuthority {
			opts = append(opts, dynamostore.WithStrictAuthority())
		}
		return dynamostore.New(client, cfg.Cache.Table, logger, opts...), nil
	default:
		return nil, fmt.Errorf("unknown cache provider %q", cfg.Cache.Provider)
	}
}

// ProvidePublisher selects the event publisher. With events disabled the
// local publisher only logs.
func ProvidePublisher(cfg *appconfig.Config, client *eventbridge.Client, logger *zap.Logger) ports.EventPublisher {
	if !cfg.Events.Enabled {
		return messaging.NewLocalPublisher(logger)
	}
	return ebpublisher.NewPublisher(client, cfg.Events.BusName, cfg.Events.Source, logger)
}

// ProvideSource builds the inventory gateway client behind a circuit
// breaker.
func ProvideSource(cfg *appconfig.Config, logger *zap.Logger) cloud.ResourceSource {
	httpSource := cloud.NewHTTPSource(cfg.Source.BaseURL, cfg.Source.Timeout, logger)
	return cloud.NewBreakerSource(httpSource, cloud.DefaultBreakerConfig("inventory-gateway"), logger)
}

// ProvideAgents builds the agent set from the configured accounts: one
// cluster agent per account and one security group agent per account
// region.
func ProvideAgents(cfg *appconfig.Config, source cloud.ResourceSource, logger *zap.Logger) []agents.Agent {
	var out []agents.Agent
	for _, account := range cfg.Accounts {
		out = append(out, agents.NewClusterCachingAgent(agents.Scope{
			Provider: account.Provider,
			Account:  account.Name,
		}, source, logger))

		for _, region := range account.Regions {
			out = append(out, agents.NewSecurityGroupCachingAgent(agents.Scope{
				Provider: account.Provider,
				Account:  account.Name,
				Region:   region,
			}, source, logger))
		}
	}
	return out
}

// ProvideDispatcher registers every agent with the on-demand capability.
func ProvideDispatcher(agentSet []agents.Agent, publisher ports.EventPublisher, logger *zap.Logger) *agents.Dispatcher {
	var onDemand []agents.OnDemandAgent
	for _, agent := range agentSet {
		if od, ok := agent.(agents.OnDemandAgent); ok {
			onDemand = append(onDemand, od)
		}
	}
	return agents.NewDispatcher(onDemand, publisher, logger)
}

// ProvideScheduler builds the refresh scheduler.
func ProvideScheduler(
	agentSet []agents.Agent,
	store cache.Store,
	publisher ports.EventPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
	cfg *appconfig.Config,
) *services.Scheduler {
	return services.NewScheduler(agentSet, store, publisher, metrics, logger, services.SchedulerConfig{
		Interval:      cfg.Refresh.Interval,
		Jitter:        cfg.Refresh.Jitter,
		Timeout:       cfg.Refresh.Timeout,
		MaxConcurrent: cfg.Refresh.MaxConcurrent,
	})
}

// ProvideReadService builds the application read view.
func ProvideReadService(store cache.Store, logger *zap.Logger) *queries.ApplicationReadService {
	return queries.NewApplicationReadService(store, logger)
}

// ProvideCollector builds the metrics collector, nil when disabled.
func ProvideCollector(cfg *appconfig.Config) *observability.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewCollector("stratus")
}

// ProvideRouter assembles the HTTP router.
func ProvideRouter(
	readService *queries.ApplicationReadService,
	store cache.Store,
	dispatcher *agents.Dispatcher,
	metrics *observability.Collector,
	cfg *appconfig.Config,
	logger *zap.Logger,
) *rest.Router {
	appHandler := handlers.NewApplicationHandler(readService, logger)
	cacheHandler := handlers.NewCacheHandler(store, dispatcher, metrics, logger)
	return rest.NewRouter(appHandler, cacheHandler, metrics, cfg.Environment, cfg.Metrics.Path, logger)
}
