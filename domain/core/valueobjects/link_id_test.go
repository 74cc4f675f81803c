package valueobjects

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLinkID(t *testing.T) {
	id := NewLinkID()
	parsed, err := uuid.Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.False(t, id.IsZero())
	assert.False(t, id.Equals(NewLinkID()))
}

func TestNewLinkIDFromString(t *testing.T) {
	raw := uuid.NewString()
	id, err := NewLinkIDFromString(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, id.String())

	_, err = NewLinkIDFromString("")
	assert.Error(t, err)
	_, err = NewLinkIDFromString("not-a-uuid")
	assert.Error(t, err)

	assert.True(t, IsValidLinkID(raw))
	assert.False(t, IsValidLinkID("42"))
}

func TestLinkID_JSON(t *testing.T) {
	id := NewLinkID()
	data, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded LinkID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, id.Equals(decoded))

	assert.Error(t, json.Unmarshal([]byte(`42`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &decoded))
}
