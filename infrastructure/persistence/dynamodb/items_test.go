package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkgraph/domain/core/entities"
	pkgerrors "linkgraph/pkg/errors"
)

func TestKeyLayout(t *testing.T) {
	ref := entities.NewEntityRef(entities.EntityTypeTask, "t-1", "acme")

	assert.Equal(t, "TENANT#acme", tenantPK("acme"))
	assert.Equal(t, "LINK#l-1", linkSK("l-1"))
	assert.Equal(t, "TENANT#acme#FROM#task#t-1", fromPK(ref))
	assert.Equal(t, "TENANT#acme#TO#task#t-1", toPK(ref))
	assert.Equal(t, "KIND#blocks#LINK#l-1", kindSK(entities.LinkKindBlocks, "l-1"))
	assert.Equal(t, "ENTITY#project#p-9", summarySK(entities.EntityTypeProject, "p-9"))
	assert.Equal(t, "TENANT#acme|LINK#l-1", keyString(itemKey(tenantPK("acme"), linkSK("l-1"))))
}

func TestMarshalLink(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.UTC)
	link := entities.NewEntityLink("l-1",
		entities.NewEntityRef(entities.EntityTypeTask, "t-1", "acme"),
		entities.NewEntityRef(entities.EntityTypeProject, "p-1", "acme"),
		entities.LinkKindChildOf, "sprint 4", map[string]interface{}{"source": "import"}, "user-1", created)

	item, err := marshalLink(link)
	require.NoError(t, err)

	str := func(name string) string {
		v, ok := item[name].(*types.AttributeValueMemberS)
		require.True(t, ok, "attribute %s", name)
		return v.Value
	}
	assert.Equal(t, "TENANT#acme", str("PK"))
	assert.Equal(t, "LINK#l-1", str("SK"))
	assert.Equal(t, "TENANT#acme#FROM#task#t-1", str("GSI1PK"))
	assert.Equal(t, "TENANT#acme#TO#project#p-1", str("GSI2PK"))
	assert.Equal(t, "KIND#child_of#LINK#l-1", str("GSI1SK"))
	assert.Equal(t, str("GSI1SK"), str("GSI2SK"))
	assert.Equal(t, recordTypeLink, str("EntityType"))

	got, err := unmarshalLink(item)
	require.NoError(t, err)
	assert.Equal(t, link.ID, got.ID)
	assert.Equal(t, link.From(), got.From())
	assert.Equal(t, link.To(), got.To())
	assert.Equal(t, link.Kind, got.Kind)
	assert.Equal(t, "sprint 4", got.Note)
	assert.Equal(t, "import", got.Metadata["source"])
	assert.True(t, got.Active)
	assert.True(t, created.Equal(got.CreatedAt))
}

func TestUnmarshalLink_BadTimestamp(t *testing.T) {
	item, err := marshalLink(entities.NewEntityLink("l-1",
		entities.NewEntityRef(entities.EntityTypeTask, "a", "acme"),
		entities.NewEntityRef(entities.EntityTypeTask, "b", "acme"),
		entities.LinkKindRelates, "", nil, "", time.Now()))
	require.NoError(t, err)
	item["CreatedAt"] = &types.AttributeValueMemberS{Value: "yesterday"}

	_, err = unmarshalLink(item)
	assert.ErrorContains(t, err, "invalid CreatedAt")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException", Fault: smithy.FaultClient}, true},
		{"throughput", &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"}, true},
		{"server fault", &smithy.GenericAPIError{Code: "Whatever", Fault: smithy.FaultServer}, true},
		{"validation", &smithy.GenericAPIError{Code: "ValidationException", Fault: smithy.FaultClient}, false},
		{"plain", errors.New("boom"), false},
		{"wrapped throttling", fmt.Errorf("op: %w", &smithy.GenericAPIError{Code: "ThrottlingException"}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("Query", tt.err)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Contains(t, err.Error(), "dynamodb Query")
			assert.Equal(t, tt.retryable, pkgerrors.IsRetryable(err))
			assert.Equal(t, tt.retryable, pkgerrors.IsRetryable(pkgerrors.Wrap(err, "storage failed")))
		})
	}

	assert.NoError(t, classify("Query", nil))
}

func TestDedupeAndSort(t *testing.T) {
	at := func(s int) time.Time { return time.Date(2024, 1, 1, 0, 0, s, 0, time.UTC) }
	a := &entities.EntityLink{ID: "a", CreatedAt: at(2)}
	b := &entities.EntityLink{ID: "b", CreatedAt: at(1)}
	c := &entities.EntityLink{ID: "c", CreatedAt: at(2)}

	out := dedupeAndSort([]*entities.EntityLink{a, c, b, a})
	ids := make([]string, 0, len(out))
	for _, l := range out {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}

func TestBackoff_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, backoff(ctx, 3), context.Canceled)
}
