package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkKind_IsDependencyClass(t *testing.T) {
	for _, k := range []LinkKind{LinkKindDependsOn, LinkKindBlocks, LinkKindParentOf, LinkKindChildOf} {
		assert.True(t, k.IsDependencyClass(), k)
	}
	for _, k := range []LinkKind{LinkKindRelates, LinkKindReferences, LinkKindDuplicates, LinkKindTriggers} {
		assert.False(t, k.IsDependencyClass(), k)
	}
}

func TestDependencyKinds(t *testing.T) {
	kinds := DependencyKinds()
	assert.ElementsMatch(t, []LinkKind{LinkKindDependsOn, LinkKindBlocks, LinkKindParentOf, LinkKindChildOf}, kinds)

	kinds[0] = LinkKindRelates
	assert.Contains(t, DependencyKinds(), LinkKindDependsOn, "callers get a copy")
}

func TestEntityTypeAndKindValidity(t *testing.T) {
	assert.Len(t, AllEntityTypes(), 17)
	assert.Len(t, AllLinkKinds(), 14)
	assert.True(t, EntityTypeWikiPage.IsValid())
	assert.False(t, EntityType("spaceship").IsValid())
	assert.True(t, LinkKindCollaboratesWith.IsValid())
	assert.False(t, LinkKind("likes").IsValid())

	types := AllEntityTypes()
	types[0] = "mutated"
	assert.Equal(t, EntityTypeTask, AllEntityTypes()[0])
}

func TestDirection(t *testing.T) {
	assert.True(t, DirectionBoth.IsValid())
	assert.False(t, Direction("sideways").IsValid())
	assert.Equal(t, DirectionOutgoing, Direction("").OrDefault(DirectionOutgoing))
	assert.Equal(t, DirectionIncoming, DirectionIncoming.OrDefault(DirectionOutgoing))
}

func TestEntityRef(t *testing.T) {
	a := NewEntityRef(EntityTypeTask, "1", "acme")
	b := NewEntityRef(EntityTypeTask, "1", "other")

	assert.Equal(t, "task:1", a.Key())
	assert.Equal(t, "acme/task:1", a.String())
	assert.True(t, a.SameEntity(b))
	assert.False(t, a.SameEntity(NewEntityRef(EntityTypeProject, "1", "acme")))
}

func TestNewEntityLink(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	from := NewEntityRef(EntityTypeTask, "t1", "acme")
	to := NewEntityRef(EntityTypeProject, "p1", "acme")
	metadata := map[string]interface{}{"weight": 3}

	link := NewEntityLink("id-1", from, to, LinkKindChildOf, "note", metadata, "u1", now)

	assert.True(t, link.Active)
	assert.Equal(t, "acme", link.TenantID)
	assert.Equal(t, from, link.From())
	assert.Equal(t, to, link.To())
	assert.Equal(t, now, link.CreatedAt)
	assert.Equal(t, now, link.UpdatedAt)
	assert.True(t, link.Touches(to))
	assert.Equal(t, to, link.Other(from))
	assert.Equal(t, from, link.Other(to))

	metadata["weight"] = 9
	assert.Equal(t, 3, link.Metadata["weight"], "metadata is copied on construction")
}

func TestEntityLink_ApplyAndClone(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	link := NewEntityLink("id-1",
		NewEntityRef(EntityTypeTask, "t1", "acme"),
		NewEntityRef(EntityTypeTask, "t2", "acme"),
		LinkKindRelates, "", map[string]interface{}{"a": 1}, "", created)

	clone := link.Clone()
	clone.Metadata["a"] = 2
	assert.Equal(t, 1, link.Metadata["a"])

	kind := LinkKindBlocks
	note := "blocked on review"
	active := false
	later := created.Add(time.Hour)
	link.Apply(LinkPatch{Kind: &kind, Note: &note, Active: &active}, later)

	assert.Equal(t, LinkKindBlocks, link.Kind)
	assert.Equal(t, note, link.Note)
	assert.False(t, link.Active)
	assert.Equal(t, map[string]interface{}{"a": 1}, link.Metadata)
	assert.Equal(t, later, link.UpdatedAt)
	assert.Equal(t, created, link.CreatedAt)

	var nilLink *EntityLink
	assert.Nil(t, nilLink.Clone())
}

func TestLinkPatch_IsEmpty(t *testing.T) {
	assert.True(t, LinkPatch{}.IsEmpty())
	active := true
	assert.False(t, LinkPatch{Active: &active}.IsEmpty())
	assert.False(t, LinkPatch{Metadata: map[string]interface{}{}}.IsEmpty())
}

func TestWithMinimalDetails(t *testing.T) {
	link := NewEntityLink("id-1",
		NewEntityRef(EntityTypeTask, "t1", "acme"),
		NewEntityRef(EntityTypeDocument, "d1", "acme"),
		LinkKindReferences, "", nil, "", time.Now())

	details := WithMinimalDetails(link)
	require.NotNil(t, details.FromEntity)
	require.NotNil(t, details.ToEntity)
	assert.Equal(t, EntitySummary{ID: "t1", Type: EntityTypeTask}, *details.FromEntity)
	assert.Equal(t, EntitySummary{ID: "d1", Type: EntityTypeDocument}, *details.ToEntity)
	assert.Equal(t, link.ID, details.ID)
}
