package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// CounterAPI is the subset of the DynamoDB client used by WindowLimiter.
type CounterAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// WindowLimiter counts events per key in fixed windows stored in DynamoDB, so
// every Lambda instance shares the same budget. Counter items expire through
// the table's TTL attribute an hour after their window closes.
type WindowLimiter struct {
	client    CounterAPI
	tableName string
	limit     int
	window    time.Duration
	now       func() time.Time
}

type windowCounter struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Count     int    `dynamodbav:"Count"`
	WindowEnd string `dynamodbav:"WindowEnd"`
	TTL       int64  `dynamodbav:"TTL"`
}

// NewWindowLimiter allows perSecond events per key, counted over window.
func NewWindowLimiter(client CounterAPI, tableName string, perSecond float64, window time.Duration) *WindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	limit := int(math.Ceil(perSecond * window.Seconds()))
	if limit < 1 {
		limit = 1
	}
	return &WindowLimiter{
		client:    client,
		tableName: tableName,
		limit:     limit,
		window:    window,
		now:       time.Now,
	}
}

// Limit is the number of events allowed per window.
func (l *WindowLimiter) Limit() int { return l.limit }

func (l *WindowLimiter) counterKey(key string, now time.Time) (map[string]types.AttributeValue, time.Time) {
	start := now.Truncate(l.window)
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "RATELIMIT#" + key},
		"SK": &types.AttributeValueMemberS{Value: "WINDOW#" + strconv.FormatInt(start.Unix(), 10)},
	}, start.Add(l.window)
}

// Allow increments the counter of the current window unless it is full.
// Storage errors are returned with allowed set to true.
func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	itemKey, windowEnd := l.counterKey(key, l.now())

	out, err := l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(l.tableName),
		Key:                 itemKey,
		UpdateExpression:    aws.String("SET #count = if_not_exists(#count, :zero) + :one, WindowEnd = :end, #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_not_exists(#count) OR #count < :limit"),
		ExpressionAttributeNames: map[string]string{
			"#count": "Count",
			"#ttl":   "TTL",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero":  &types.AttributeValueMemberN{Value: "0"},
			":one":   &types.AttributeValueMemberN{Value: "1"},
			":limit": &types.AttributeValueMemberN{Value: strconv.Itoa(l.limit)},
			":end":   &types.AttributeValueMemberS{Value: windowEnd.UTC().Format(time.RFC3339)},
			":ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(windowEnd.Add(time.Hour).Unix(), 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return true, fmt.Errorf("rate limiter unavailable: %w", err)
	}

	var counter windowCounter
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return true, fmt.Errorf("failed to decode rate limit counter: %w", err)
	}
	return counter.Count <= l.limit, nil
}

// Remaining reports how many events key may still spend in the current window.
func (l *WindowLimiter) Remaining(ctx context.Context, key string) (int, error) {
	itemKey, _ := l.counterKey(key, l.now())

	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.tableName),
		Key:            itemKey,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	if out.Item == nil {
		return l.limit, nil
	}

	var counter windowCounter
	if err := attributevalue.UnmarshalMap(out.Item, &counter); err != nil {
		return 0, fmt.Errorf("failed to decode rate limit counter: %w", err)
	}
	if remaining := l.limit - counter.Count; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}
