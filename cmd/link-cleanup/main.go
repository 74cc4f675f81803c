// Package main implements the Lambda that purges links when an entity is deleted.
// It is triggered by EventBridge "entity.deleted" events.
package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-xray-sdk-go/xray"

	"linkgraph/infrastructure/config"
	"linkgraph/infrastructure/di"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{ServiceVersion: "1.0.0"}); err != nil {
			log.Printf("Failed to configure X-Ray: %v", err)
		}
	}

	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()

	h := newHandler(container.LinkService, container.Logger)
	if container.MetricsPublisher != nil {
		h.flush = func(ctx context.Context) {
			flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := container.MetricsPublisher.Flush(flushCtx); err != nil {
				log.Printf("Failed to flush metrics: %v", err)
			}
		}
	}

	lambda.Start(h.Handle)
}
