// The lambda binary serves the read API from the shared DynamoDB-backed
// cache. Refresh runs in the long-lived server deployment; this function
// only reads what the agents wrote.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"stratus-backend/infrastructure/config"
	"stratus-backend/infrastructure/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Global variables for Lambda lifecycle management
var (
	// chiLambda wraps the Chi router for AWS Lambda integration
	chiLambda *chiadapter.ChiLambdaV2

	// container holds the dependency injection container
	container *di.Container

	// coldStart tracks whether this is a cold start invocation
	coldStart = true

	// coldStartTime records when the cold start began
	coldStartTime time.Time
)

// init runs during cold start
func init() {
	coldStartTime = time.Now()
	log.Println("Lambda cold start initiated")

	// Initialize context with timeout to prevent hanging
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Load configuration. Lambda deployments usually configure through
	// environment variables alone; CONFIG_PATH points at a bundled file when
	// one is shipped with the function.
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// The Lambda reads the cache the server deployment populates, so the
	// memory store would always be empty here.
	if cfg.Cache.Provider != "dynamodb" {
		log.Fatalf("lambda requires the dynamodb cache provider, got %q", cfg.Cache.Provider)
	}

	// Initialize dependency container
	container, err = di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	chiLambda = chiadapter.NewV2(container.Router.Setup().(*chi.Mux))

	container.Logger.Info("Lambda initialized",
		zap.Duration("cold_start_duration", time.Since(coldStartTime)),
	)
}

// Handler processes API Gateway v2 requests
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if coldStart {
		container.Logger.Info("First invocation after cold start",
			zap.Duration("since_init", time.Since(coldStartTime)),
		)
		coldStart = false
	}

	return chiLambda.ProxyWithContextV2(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
