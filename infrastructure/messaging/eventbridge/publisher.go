package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"linkgraph/domain/events"
)

// API is the subset of the EventBridge client the publisher uses.
type API interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

const (
	// EventBridge accepts at most 10 entries per PutEvents call
	batchSize = 10

	maxAttempts = 3
)

// Publisher implements ports.EventPublisher on an EventBridge bus.
type Publisher struct {
	client       API
	eventBusName string
	source       string
	backoff      time.Duration
	logger       *zap.Logger
}

// NewPublisher creates a publisher for eventBusName. An empty source uses events.Source.
func NewPublisher(client API, eventBusName, source string, logger *zap.Logger) *Publisher {
	if source == "" {
		source = events.Source
	}
	return &Publisher{
		client:       client,
		eventBusName: eventBusName,
		source:       source,
		backoff:      100 * time.Millisecond,
		logger:       logger.Named("eventbridge"),
	}
}

// Publish sends a single event to EventBridge
func (p *Publisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return p.PublishBatch(ctx, []events.DomainEvent{event})
}

// PublishBatch sends events in chunks of ten, retrying entries EventBridge rejected.
func (p *Publisher) PublishBatch(ctx context.Context, domainEvents []events.DomainEvent) error {
	for i := 0; i < len(domainEvents); i += batchSize {
		end := i + batchSize
		if end > len(domainEvents) {
			end = len(domainEvents)
		}
		if err := p.publishChunk(ctx, domainEvents[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publishChunk(ctx context.Context, domainEvents []events.DomainEvent) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(domainEvents))
	for _, event := range domainEvents {
		detail, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("Failed to marshal event",
				zap.String("eventType", event.GetEventType()),
				zap.Error(err),
			)
			continue
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(event.GetEventType()),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(event.GetTimestamp()),
			Resources: []string{
				fmt.Sprintf("linkgraph:%s:%s", event.GetTenantID(), event.GetAggregateID()),
			},
		})
	}

	backoff := p.backoff
	for attempt := 1; len(entries) > 0; attempt++ {
		out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
		if err != nil {
			return fmt.Errorf("failed to publish events to EventBridge: %w", err)
		}
		if out.FailedEntryCount == 0 {
			p.logger.Debug("Events published",
				zap.Int("count", len(entries)),
				zap.String("eventBus", p.eventBusName),
			)
			return nil
		}

		var retry []types.PutEventsRequestEntry
		for i, result := range out.Entries {
			if result.ErrorCode == nil || i >= len(entries) {
				continue
			}
			p.logger.Warn("Event rejected",
				zap.String("detailType", aws.ToString(entries[i].DetailType)),
				zap.String("errorCode", aws.ToString(result.ErrorCode)),
				zap.String("errorMessage", aws.ToString(result.ErrorMessage)),
				zap.Int("attempt", attempt),
			)
			retry = append(retry, entries[i])
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("%d events failed to publish after %d attempts", len(retry), attempt)
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
		entries = retry
	}
	return nil
}
