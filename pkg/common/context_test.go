package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnrichContext(t *testing.T) {
	ctx := EnrichContext(context.Background(), "acme", "user-1", "req-9")

	tenantID, ok := GetTenantID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "acme", tenantID)

	assert.Equal(t, ContextMetadata{UserID: "user-1", RequestID: "req-9", TenantID: "acme"}, ExtractMetadata(ctx))
}

func TestEmptyValuesAreMissing(t *testing.T) {
	ctx := WithUserID(context.Background(), "")
	_, ok := GetUserID(ctx)
	assert.False(t, ok)

	_, ok = GetRequestID(context.Background())
	assert.False(t, ok)
	assert.Equal(t, ContextMetadata{}, ExtractMetadata(ctx))
}
