package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"linkgraph/application/ports"
	"linkgraph/domain/core/entities"
	"linkgraph/pkg/utils"
)

// API is the subset of the DynamoDB client used by the repository.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

const (
	batchWriteSize  = 25
	batchGetSize    = 100
	maxBatchRetries = 3
)

// LinkRepository implements ports.LinkRepository on a single DynamoDB table.
type LinkRepository struct {
	client        API
	tableName     string
	outgoingIndex string
	incomingIndex string
	logger        *zap.Logger
	now           func() time.Time
}

var (
	_ ports.LinkRepository     = (*LinkRepository)(nil)
	_ ports.EntitySummaryStore = (*LinkRepository)(nil)
)

// NewLinkRepository creates a new LinkRepository
func NewLinkRepository(client API, tableName string, logger *zap.Logger) *LinkRepository {
	return &LinkRepository{
		client:        client,
		tableName:     tableName,
		outgoingIndex: defaultOutgoingIndex,
		incomingIndex: defaultIncomingIndex,
		logger:        logger.Named("dynamodb_links"),
		now:           utils.UTCNow,
	}
}

// WithIndexNames overrides the names of the outgoing (GSI1) and incoming (GSI2)
// indexes. Empty names keep the defaults.
func (r *LinkRepository) WithIndexNames(outgoing, incoming string) *LinkRepository {
	if outgoing != "" {
		r.outgoingIndex = outgoing
	}
	if incoming != "" {
		r.incomingIndex = incoming
	}
	return r
}

// Create stores a new link; an existing item with the same id is an error.
func (r *LinkRepository) Create(ctx context.Context, link *entities.EntityLink) error {
	item, err := marshalLink(link)
	if err != nil {
		return err
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("link %s already exists: %w", link.ID, err)
		}
		return classify("PutItem", err)
	}

	r.logger.Debug("Link saved",
		zap.String("linkID", link.ID),
		zap.String("tenantID", link.TenantID),
		zap.String("kind", string(link.Kind)),
	)
	return nil
}

// Update applies patch and returns the stored link, or nil when it does not exist.
func (r *LinkRepository) Update(ctx context.Context, id, tenantID string, patch entities.LinkPatch) (*entities.EntityLink, error) {
	update := expression.Set(expression.Name("UpdatedAt"), expression.Value(utils.FormatTimestamp(r.now())))
	if patch.Kind != nil {
		update = update.
			Set(expression.Name("Kind"), expression.Value(string(*patch.Kind))).
			Set(expression.Name("GSI1SK"), expression.Value(kindSK(*patch.Kind, id))).
			Set(expression.Name("GSI2SK"), expression.Value(kindSK(*patch.Kind, id)))
	}
	if patch.Note != nil {
		update = update.Set(expression.Name("Note"), expression.Value(*patch.Note))
	}
	if patch.Metadata != nil {
		update = update.Set(expression.Name("Metadata"), expression.Value(patch.Metadata))
	}
	if patch.Active != nil {
		update = update.Set(expression.Name("Active"), expression.Value(*patch.Active))
	}

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       itemKey(tenantPK(tenantID), linkSK(id)),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, nil
		}
		return nil, classify("UpdateItem", err)
	}

	return unmarshalLink(out.Attributes)
}

func (r *LinkRepository) Delete(ctx context.Context, id, tenantID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(tenantPK(tenantID), linkSK(id)),
	})
	return classify("DeleteItem", err)
}

func (r *LinkRepository) FindByID(ctx context.Context, id, tenantID string) (*entities.EntityLink, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            itemKey(tenantPK(tenantID), linkSK(id)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classify("GetItem", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	return unmarshalLink(out.Item)
}

// FindByEntity queries the outgoing and/or incoming index for ref and joins
// endpoint summaries.
func (r *LinkRepository) FindByEntity(ctx context.Context, ref entities.EntityRef, query ports.EntityLinkQuery) ([]*entities.EntityLinkWithDetails, error) {
	direction := query.Direction.OrDefault(entities.DirectionBoth)

	var links []*entities.EntityLink
	if direction != entities.DirectionIncoming {
		out, err := r.queryIndex(ctx, r.outgoingIndex, "GSI1PK", "GSI1SK", fromPK(ref), query)
		if err != nil {
			return nil, err
		}
		links = append(links, out...)
	}
	if direction != entities.DirectionOutgoing {
		in, err := r.queryIndex(ctx, r.incomingIndex, "GSI2PK", "GSI2SK", toPK(ref), query)
		if err != nil {
			return nil, err
		}
		links = append(links, in...)
	}

	links = dedupeAndSort(links)
	summaries, err := r.loadSummaries(ctx, ref.TenantID, links)
	if err != nil {
		// Display data is best effort.
		r.logger.Warn("Failed to load entity summaries", zap.String("tenantID", ref.TenantID), zap.Error(err))
	}

	out := make([]*entities.EntityLinkWithDetails, 0, len(links))
	for _, link := range links {
		details := entities.WithMinimalDetails(link)
		if s, ok := summaries[summarySK(link.FromType, link.FromID)]; ok {
			details.FromEntity = &s
		}
		if s, ok := summaries[summarySK(link.ToType, link.ToID)]; ok {
			details.ToEntity = &s
		}
		out = append(out, details)
	}
	return out, nil
}

func (r *LinkRepository) queryIndex(ctx context.Context, index, pkName, skName, pk string, query ports.EntityLinkQuery) ([]*entities.EntityLink, error) {
	keyCond := expression.Key(pkName).Equal(expression.Value(pk))
	if len(query.Kinds) == 1 {
		keyCond = keyCond.And(expression.Key(skName).BeginsWith(kindPrefix(query.Kinds[0])))
	}

	var filters []expression.ConditionBuilder
	if !query.IncludeInactive {
		filters = append(filters, expression.Name("Active").Equal(expression.Value(true)))
	}
	if len(query.Kinds) > 1 {
		operands := make([]expression.OperandBuilder, 0, len(query.Kinds))
		for _, k := range query.Kinds {
			operands = append(operands, expression.Value(string(k)))
		}
		filters = append(filters, expression.Name("Kind").In(operands[0], operands[1:]...))
	}

	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	if filter, ok := combine(filters); ok {
		builder = builder.WithFilter(filter)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	return r.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, 0)
}

// FindByCriteria scans the tenant partition with server-side filters.
func (r *LinkRepository) FindByCriteria(ctx context.Context, criteria ports.LinkCriteria) ([]*entities.EntityLink, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(tenantPK(criteria.TenantID))).
		And(expression.Key("SK").BeginsWith("LINK#"))

	var filters []expression.ConditionBuilder
	if criteria.FromType != "" {
		filters = append(filters, expression.Name("FromType").Equal(expression.Value(string(criteria.FromType))))
	}
	if criteria.ToType != "" {
		filters = append(filters, expression.Name("ToType").Equal(expression.Value(string(criteria.ToType))))
	}
	if criteria.Kind != "" {
		filters = append(filters, expression.Name("Kind").Equal(expression.Value(string(criteria.Kind))))
	}
	if criteria.Active != nil {
		filters = append(filters, expression.Name("Active").Equal(expression.Value(*criteria.Active)))
	}

	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	if filter, ok := combine(filters); ok {
		builder = builder.WithFilter(filter)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	links, err := r.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, criteria.Limit)
	if err != nil {
		return nil, err
	}
	return dedupeAndSort(links), nil
}

func (r *LinkRepository) LinkExists(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind) (bool, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(fromPK(from))).
		And(expression.Key("GSI1SK").BeginsWith(kindPrefix(kind)))
	filter := expression.And(
		expression.Name("ToType").Equal(expression.Value(string(to.Type))),
		expression.Name("ToID").Equal(expression.Value(to.ID)),
		expression.Name("Active").Equal(expression.Value(true)),
	)

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return false, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.outgoingIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Select:                    types.SelectCount,
	}
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return false, classify("Query", err)
		}
		if out.Count > 0 {
			return true, nil
		}
		if len(out.LastEvaluatedKey) == 0 {
			return false, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// CreateMany writes links in batches of 25. The write is not atomic across batches.
func (r *LinkRepository) CreateMany(ctx context.Context, links []*entities.EntityLink) error {
	requests := make([]types.WriteRequest, 0, len(links))
	for _, link := range links {
		item, err := marshalLink(link)
		if err != nil {
			return err
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	return r.batchWrite(ctx, requests)
}

// DeleteMany removes the ids that exist and reports how many there were.
func (r *LinkRepository) DeleteMany(ctx context.Context, ids []string, tenantID string) (int, error) {
	keys := make([]map[string]types.AttributeValue, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, itemKey(tenantPK(tenantID), linkSK(id)))
	}

	existing, err := r.batchGet(ctx, keys, "PK, SK")
	if err != nil {
		return 0, err
	}

	requests := make([]types.WriteRequest, 0, len(existing))
	for _, item := range existing {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{"PK": item["PK"], "SK": item["SK"]}},
		})
	}
	if err := r.batchWrite(ctx, requests); err != nil {
		return 0, err
	}
	return len(requests), nil
}

// UpsertEntitySummary records display data joined into FindByEntity results.
func (r *LinkRepository) UpsertEntitySummary(ctx context.Context, tenantID string, summary entities.EntitySummary) error {
	item, err := attributevalue.MarshalMap(newSummaryItem(tenantID, summary))
	if err != nil {
		return fmt.Errorf("failed to marshal entity summary: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return classify("PutItem", err)
}

func (r *LinkRepository) query(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]*entities.EntityLink, error) {
	var links []*entities.EntityLink
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, classify("Query", err)
		}
		for _, item := range out.Items {
			link, err := unmarshalLink(item)
			if err != nil {
				return nil, err
			}
			links = append(links, link)
			if limit > 0 && len(links) == limit {
				return links, nil
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return links, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (r *LinkRepository) loadSummaries(ctx context.Context, tenantID string, links []*entities.EntityLink) (map[string]entities.EntitySummary, error) {
	keys := make([]map[string]types.AttributeValue, 0, len(links)*2)
	seen := make(map[string]bool)
	for _, link := range links {
		for _, sk := range []string{summarySK(link.FromType, link.FromID), summarySK(link.ToType, link.ToID)} {
			if !seen[sk] {
				seen[sk] = true
				keys = append(keys, itemKey(tenantPK(tenantID), sk))
			}
		}
	}

	items, err := r.batchGet(ctx, keys, "")
	if err != nil {
		return nil, err
	}

	summaries := make(map[string]entities.EntitySummary, len(items))
	for _, av := range items {
		var item summaryItem
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity summary: %w", err)
		}
		summaries[item.SK] = item.toEntity()
	}
	return summaries, nil
}

func (r *LinkRepository) batchGet(ctx context.Context, keys []map[string]types.AttributeValue, projection string) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for start := 0; start < len(keys); start += batchGetSize {
		end := start + batchGetSize
		if end > len(keys) {
			end = len(keys)
		}

		request := types.KeysAndAttributes{Keys: keys[start:end]}
		if projection != "" {
			request.ProjectionExpression = aws.String(projection)
		}
		pending := map[string]types.KeysAndAttributes{r.tableName: request}

		for retry := 0; len(pending) > 0; retry++ {
			if retry > maxBatchRetries {
				return nil, fmt.Errorf("failed to read %d keys after %d retries", len(pending[r.tableName].Keys), maxBatchRetries)
			}
			if retry > 0 {
				if err := backoff(ctx, retry); err != nil {
					return nil, err
				}
			}
			out, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
			if err != nil {
				return nil, classify("BatchGetItem", err)
			}
			items = append(items, out.Responses[r.tableName]...)
			pending = nil
			if left, ok := out.UnprocessedKeys[r.tableName]; ok && len(left.Keys) > 0 {
				pending = map[string]types.KeysAndAttributes{r.tableName: left}
			}
		}
	}
	return items, nil
}

func (r *LinkRepository) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	for start := 0; start < len(requests); start += batchWriteSize {
		end := start + batchWriteSize
		if end > len(requests) {
			end = len(requests)
		}

		unprocessed := requests[start:end]
		for retry := 0; len(unprocessed) > 0; retry++ {
			if retry > maxBatchRetries {
				return fmt.Errorf("failed to process %d items after %d retries", len(unprocessed), maxBatchRetries)
			}
			if retry > 0 {
				if err := backoff(ctx, retry); err != nil {
					return err
				}
			}
			out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{r.tableName: unprocessed},
			})
			if err != nil {
				return classify("BatchWriteItem", err)
			}
			unprocessed = out.UnprocessedItems[r.tableName]
			if len(unprocessed) > 0 {
				r.logger.Debug("Found unprocessed items, retrying",
					zap.Int("unprocessedCount", len(unprocessed)),
					zap.Int("retry", retry+1),
				)
			}
		}
	}
	return nil
}

func backoff(ctx context.Context, retry int) error {
	d := time.Duration(retry*retry+1) * 100 * time.Millisecond
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func combine(conds []expression.ConditionBuilder) (expression.ConditionBuilder, bool) {
	switch len(conds) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return conds[0], true
	default:
		return expression.And(conds[0], conds[1], conds[2:]...), true
	}
}

func dedupeAndSort(links []*entities.EntityLink) []*entities.EntityLink {
	seen := make(map[string]bool, len(links))
	out := links[:0]
	for _, link := range links {
		if seen[link.ID] {
			continue
		}
		seen[link.ID] = true
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
