package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	"linkgraph/domain/core/entities"
	"linkgraph/pkg/common"
)

// EntityDeletedDetailType is the EventBridge detail-type this Lambda consumes.
const EntityDeletedDetailType = "entity.deleted"

// EntityDeletedDetail is the detail of an entity.deleted event.
type EntityDeletedDetail struct {
	TenantID   string `json:"tenantId"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	UserID     string `json:"userId,omitempty"`
	// HardDelete removes the links instead of deactivating them.
	HardDelete bool `json:"hardDelete,omitempty"`
}

type linkPurger interface {
	DeleteEntityLinks(ctx context.Context, ref entities.EntityRef, soft bool) (int, error)
}

type handler struct {
	purger linkPurger
	logger *zap.Logger
	flush  func(context.Context)
}

func newHandler(purger linkPurger, logger *zap.Logger) *handler {
	return &handler{
		purger: purger,
		logger: logger.Named("link_cleanup"),
	}
}

// Handle purges the links of the deleted entity. Other detail types are ignored.
func (h *handler) Handle(ctx context.Context, event events.CloudWatchEvent) error {
	if h.flush != nil {
		defer h.flush(ctx)
	}

	if event.DetailType != EntityDeletedDetailType {
		h.logger.Debug("Skipping event", zap.String("detailType", event.DetailType), zap.String("eventID", event.ID))
		return nil
	}

	var detail EntityDeletedDetail
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		h.logger.Error("Failed to unmarshal event detail",
			zap.String("eventID", event.ID),
			zap.ByteString("detail", event.Detail),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal event detail: %w", err)
	}
	if detail.TenantID == "" || detail.EntityType == "" || detail.EntityID == "" {
		return fmt.Errorf("missing required fields: tenantId=%q entityType=%q entityId=%q",
			detail.TenantID, detail.EntityType, detail.EntityID)
	}

	ref := entities.NewEntityRef(entities.EntityType(detail.EntityType), detail.EntityID, detail.TenantID)
	requestID := event.ID
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		requestID = lc.AwsRequestID
	}
	ctx = common.EnrichContext(ctx, detail.TenantID, detail.UserID, requestID)
	logger := h.logger.With(metadataFields(common.ExtractMetadata(ctx))...)

	count, err := h.purger.DeleteEntityLinks(ctx, ref, !detail.HardDelete)
	if err != nil {
		logger.Error("Failed to purge entity links",
			zap.String("entity", ref.String()),
			zap.Error(err),
		)
		return fmt.Errorf("cleanup failed for %s: %w", ref, err)
	}

	logger.Info("Entity links purged",
		zap.String("eventID", event.ID),
		zap.String("entity", ref.String()),
		zap.Int("count", count),
		zap.Bool("hard", detail.HardDelete),
	)
	return nil
}

func metadataFields(meta common.ContextMetadata) []zap.Field {
	fields := []zap.Field{
		zap.String("requestID", meta.RequestID),
		zap.String("tenantID", meta.TenantID),
	}
	if meta.UserID != "" {
		fields = append(fields, zap.String("userID", meta.UserID))
	}
	return fields
}
