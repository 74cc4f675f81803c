package dynamodb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"linkgraph/application/ports"
	"linkgraph/domain/core/entities"
	pkgerrors "linkgraph/pkg/errors"
)

// fakeAPI answers each call with the matching func and records the inputs.
type fakeAPI struct {
	putItem        func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	getItem        func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	updateItem     func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	deleteItem     func(*dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error)
	query          func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	batchWriteItem func(*dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error)
	batchGetItem   func(*dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error)

	queries     []*dynamodb.QueryInput
	batchWrites []*dynamodb.BatchWriteItemInput
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return f.putItem(in)
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return f.getItem(in)
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return f.updateItem(in)
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return f.deleteItem(in)
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	// Copy so later pagination does not rewrite the recorded input.
	recorded := *in
	f.queries = append(f.queries, &recorded)
	return f.query(in)
}

func (f *fakeAPI) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.batchWrites = append(f.batchWrites, in)
	return f.batchWriteItem(in)
}

func (f *fakeAPI) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	return f.batchGetItem(in)
}

const testTable = "links-test"

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newRepo(api *fakeAPI) *LinkRepository {
	return NewLinkRepository(api, testTable, zap.NewNop())
}

func task(id string) entities.EntityRef {
	return entities.NewEntityRef(entities.EntityTypeTask, id, "acme")
}

func sampleLink(id string, from, to entities.EntityRef) *entities.EntityLink {
	return entities.NewEntityLink(id, from, to, entities.LinkKindDependsOn, "", nil, "user-1", created)
}

func mustItem(t *testing.T, link *entities.EntityLink) map[string]types.AttributeValue {
	t.Helper()
	item, err := marshalLink(link)
	require.NoError(t, err)
	return item
}

func TestLinkRepository_Create(t *testing.T) {
	var got *dynamodb.PutItemInput
	api := &fakeAPI{putItem: func(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		got = in
		return &dynamodb.PutItemOutput{}, nil
	}}
	link := sampleLink("l-1", task("a"), task("b"))

	require.NoError(t, newRepo(api).Create(context.Background(), link))

	require.NotNil(t, got)
	assert.Equal(t, testTable, aws.ToString(got.TableName))
	assert.Contains(t, aws.ToString(got.ConditionExpression), "attribute_not_exists")
	assert.Equal(t, &types.AttributeValueMemberS{Value: "TENANT#acme#FROM#task#a"}, got.Item["GSI1PK"])
}

func TestLinkRepository_CreateErrors(t *testing.T) {
	link := sampleLink("l-1", task("a"), task("b"))

	t.Run("existing id", func(t *testing.T) {
		api := &fakeAPI{putItem: func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
		}}
		err := newRepo(api).Create(context.Background(), link)
		assert.ErrorContains(t, err, "already exists")
		assert.False(t, pkgerrors.IsRetryable(err))
	})

	t.Run("throttled", func(t *testing.T) {
		api := &fakeAPI{putItem: func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "ThrottlingException"}
		}}
		err := newRepo(api).Create(context.Background(), link)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsRetryable(err))
	})
}

func TestLinkRepository_FindByID(t *testing.T) {
	link := sampleLink("l-1", task("a"), task("b"))
	api := &fakeAPI{getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		assert.True(t, aws.ToBool(in.ConsistentRead))
		if keyString(in.Key) == "TENANT#acme|LINK#l-1" {
			return &dynamodb.GetItemOutput{Item: mustItem(t, link)}, nil
		}
		return &dynamodb.GetItemOutput{}, nil
	}}
	repo := newRepo(api)

	got, err := repo.FindByID(context.Background(), "l-1", "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, link.To(), got.To())

	missing, err := repo.FindByID(context.Background(), "l-2", "acme")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLinkRepository_Update(t *testing.T) {
	t.Run("kind change rewrites sort keys", func(t *testing.T) {
		var got *dynamodb.UpdateItemInput
		updated := sampleLink("l-1", task("a"), task("b"))
		updated.Kind = entities.LinkKindBlocks
		api := &fakeAPI{updateItem: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			got = in
			return &dynamodb.UpdateItemOutput{Attributes: mustItem(t, updated)}, nil
		}}
		kind := entities.LinkKindBlocks

		link, err := newRepo(api).Update(context.Background(), "l-1", "acme", entities.LinkPatch{Kind: &kind})
		require.NoError(t, err)
		assert.Equal(t, entities.LinkKindBlocks, link.Kind)

		require.NotNil(t, got)
		assert.Equal(t, types.ReturnValueAllNew, got.ReturnValues)
		assert.Contains(t, aws.ToString(got.ConditionExpression), "attribute_exists")
		values := make([]string, 0, len(got.ExpressionAttributeValues))
		for _, v := range got.ExpressionAttributeValues {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				values = append(values, s.Value)
			}
		}
		assert.Contains(t, values, "KIND#blocks#LINK#l-1")
	})

	t.Run("missing link", func(t *testing.T) {
		api := &fakeAPI{updateItem: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{}
		}}
		note := "x"
		link, err := newRepo(api).Update(context.Background(), "l-9", "acme", entities.LinkPatch{Note: &note})
		require.NoError(t, err)
		assert.Nil(t, link)
	})
}

func TestLinkRepository_FindByEntity(t *testing.T) {
	ab := sampleLink("l-1", task("a"), task("b"))
	ca := sampleLink("l-2", task("c"), task("a"))
	ca.CreatedAt = created.Add(-time.Minute)

	api := &fakeAPI{
		query: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			switch aws.ToString(in.IndexName) {
			case "out-idx":
				return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{mustItem(t, ab)}}, nil
			case "in-idx":
				return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{mustItem(t, ca), mustItem(t, ab)}}, nil
			}
			t.Fatalf("unexpected index %q", aws.ToString(in.IndexName))
			return nil, nil
		},
		batchGetItem: func(in *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
			item := newSummaryItem("acme", entities.EntitySummary{ID: "b", Type: entities.EntityTypeTask, Title: "Write docs"})
			av, err := attributevalue.MarshalMap(item)
			require.NoError(t, err)
			return &dynamodb.BatchGetItemOutput{
				Responses: map[string][]map[string]types.AttributeValue{testTable: {av}},
			}, nil
		},
	}
	repo := newRepo(api).WithIndexNames("out-idx", "in-idx")

	links, err := repo.FindByEntity(context.Background(), task("a"), ports.EntityLinkQuery{})
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "l-2", links[0].ID, "ordered by creation time")
	assert.Equal(t, "l-1", links[1].ID)
	assert.Equal(t, "Write docs", links[1].ToEntity.Title)
	assert.Equal(t, "a", links[1].FromEntity.ID, "missing summaries fall back to minimal details")

	require.Len(t, api.queries, 2)
	assert.NotNil(t, api.queries[0].FilterExpression, "inactive links are filtered out")

	api.queries = nil
	_, err = repo.FindByEntity(context.Background(), task("a"), ports.EntityLinkQuery{
		Direction:       entities.DirectionOutgoing,
		IncludeInactive: true,
	})
	require.NoError(t, err)
	require.Len(t, api.queries, 1)
	assert.Equal(t, "out-idx", aws.ToString(api.queries[0].IndexName))
	assert.Nil(t, api.queries[0].FilterExpression)
}

func TestLinkRepository_LinkExistsPaginates(t *testing.T) {
	calls := 0
	api := &fakeAPI{query: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		calls++
		assert.Equal(t, types.SelectCount, in.Select)
		if calls == 1 {
			return &dynamodb.QueryOutput{Count: 0, LastEvaluatedKey: itemKey("TENANT#acme", "LINK#x")}, nil
		}
		assert.NotEmpty(t, in.ExclusiveStartKey)
		return &dynamodb.QueryOutput{Count: 1}, nil
	}}

	exists, err := newRepo(api).LinkExists(context.Background(), task("a"), task("b"), entities.LinkKindDependsOn)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 2, calls)
}

func TestLinkRepository_CreateManyRetriesUnprocessed(t *testing.T) {
	links := make([]*entities.EntityLink, 0, 30)
	for i := 0; i < 30; i++ {
		links = append(links, sampleLink(fmt.Sprintf("l-%d", i), task("a"), task("b")))
	}

	retried := false
	api := &fakeAPI{batchWriteItem: func(in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
		requests := in.RequestItems[testTable]
		if len(requests) == batchWriteSize && !retried {
			retried = true
			return &dynamodb.BatchWriteItemOutput{
				UnprocessedItems: map[string][]types.WriteRequest{testTable: requests[:2]},
			}, nil
		}
		return &dynamodb.BatchWriteItemOutput{}, nil
	}}

	require.NoError(t, newRepo(api).CreateMany(context.Background(), links))

	sizes := make([]int, 0, len(api.batchWrites))
	for _, w := range api.batchWrites {
		sizes = append(sizes, len(w.RequestItems[testTable]))
	}
	assert.Equal(t, []int{25, 2, 5}, sizes)
}

func TestLinkRepository_DeleteMany(t *testing.T) {
	var requested []map[string]types.AttributeValue
	api := &fakeAPI{
		batchGetItem: func(in *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
			request := in.RequestItems[testTable]
			requested = request.Keys
			assert.Equal(t, "PK, SK", aws.ToString(request.ProjectionExpression))
			return &dynamodb.BatchGetItemOutput{
				Responses: map[string][]map[string]types.AttributeValue{
					testTable: {itemKey("TENANT#acme", "LINK#l-1")},
				},
			}, nil
		},
		batchWriteItem: func(in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}

	n, err := newRepo(api).DeleteMany(context.Background(), []string{"l-1", "l-2", "l-1"}, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, requested, 2, "duplicate ids are read once")

	require.Len(t, api.batchWrites, 1)
	writes := api.batchWrites[0].RequestItems[testTable]
	require.Len(t, writes, 1)
	require.NotNil(t, writes[0].DeleteRequest)
	assert.Equal(t, "TENANT#acme|LINK#l-1", keyString(writes[0].DeleteRequest.Key))
}

func TestLinkRepository_UpsertEntitySummary(t *testing.T) {
	var got *dynamodb.PutItemInput
	api := &fakeAPI{putItem: func(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		got = in
		return &dynamodb.PutItemOutput{}, nil
	}}

	err := newRepo(api).UpsertEntitySummary(context.Background(), "acme", entities.EntitySummary{
		ID: "p-1", Type: entities.EntityTypeProject, Title: "Launch",
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.ConditionExpression)
	assert.Equal(t, "TENANT#acme|ENTITY#project#p-1", keyString(got.Item))
	assert.Equal(t, &types.AttributeValueMemberS{Value: recordTypeSummary}, got.Item["EntityType"])
}
