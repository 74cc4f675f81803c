// Package repotest holds the behaviour every ports.LinkRepository must share.
package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkgraph/application/ports"
	"linkgraph/domain/core/entities"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) ports.LinkRepository

const tenant = "acme"

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ref(t entities.EntityType, id string) entities.EntityRef {
	return entities.NewEntityRef(t, id, tenant)
}

func task(id string) entities.EntityRef {
	return ref(entities.EntityTypeTask, id)
}

// newLink builds a link created n seconds after base with a stable id.
func newLink(n int, from, to entities.EntityRef, kind entities.LinkKind) *entities.EntityLink {
	id := fmt.Sprintf("0190f3b2-7d4a-7c3e-9a1b-%012d", n)
	return entities.NewEntityLink(id, from, to, kind, "", nil, "user-1", base.Add(time.Duration(n)*time.Second))
}

// Run exercises newRepo against the repository contract.
func Run(t *testing.T, newRepo Factory) {
	t.Run("create and find by id", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		link := newLink(1, task("a"), task("b"), entities.LinkKindDependsOn)
		link.Note = "schema first"
		link.Metadata = map[string]interface{}{"source": "import"}

		require.NoError(t, repo.Create(ctx, link))

		got, err := repo.FindByID(ctx, link.ID, tenant)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, link.ID, got.ID)
		assert.Equal(t, link.From(), got.From())
		assert.Equal(t, link.To(), got.To())
		assert.Equal(t, link.Kind, got.Kind)
		assert.Equal(t, "schema first", got.Note)
		assert.Equal(t, "import", got.Metadata["source"])
		assert.True(t, got.Active)
		assert.Equal(t, "user-1", got.CreatedBy)
		assert.True(t, link.CreatedAt.Equal(got.CreatedAt))

		missing, err := repo.FindByID(ctx, "0190f3b2-7d4a-7c3e-9a1b-999999999999", tenant)
		require.NoError(t, err)
		assert.Nil(t, missing)

		other, err := repo.FindByID(ctx, link.ID, "globex")
		require.NoError(t, err)
		assert.Nil(t, other, "lookups are tenant scoped")

		assert.Error(t, repo.Create(ctx, link), "ids are unique per tenant")
	})

	t.Run("update", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		link := newLink(1, task("a"), task("b"), entities.LinkKindRelates)
		require.NoError(t, repo.Create(ctx, link))

		kind := entities.LinkKindBlocks
		note := "reviewed"
		inactive := false
		updated, err := repo.Update(ctx, link.ID, tenant, entities.LinkPatch{Kind: &kind, Note: &note, Active: &inactive})
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, entities.LinkKindBlocks, updated.Kind)
		assert.Equal(t, "reviewed", updated.Note)
		assert.False(t, updated.Active)

		got, err := repo.FindByID(ctx, link.ID, tenant)
		require.NoError(t, err)
		assert.Equal(t, entities.LinkKindBlocks, got.Kind)
		assert.False(t, got.Active)

		absent, err := repo.Update(ctx, "0190f3b2-7d4a-7c3e-9a1b-999999999999", tenant, entities.LinkPatch{Note: &note})
		require.NoError(t, err)
		assert.Nil(t, absent)
	})

	t.Run("find by entity", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		ab := newLink(1, task("a"), task("b"), entities.LinkKindDependsOn)
		ca := newLink(2, task("c"), task("a"), entities.LinkKindRelates)
		bc := newLink(3, task("b"), task("c"), entities.LinkKindRelates)
		gone := newLink(4, task("a"), task("d"), entities.LinkKindRelates)
		gone.Active = false
		for _, l := range []*entities.EntityLink{ab, ca, bc, gone} {
			require.NoError(t, repo.Create(ctx, l))
		}

		both, err := repo.FindByEntity(ctx, task("a"), ports.EntityLinkQuery{})
		require.NoError(t, err)
		require.Len(t, both, 2)
		assert.Equal(t, ab.ID, both[0].ID, "ordered by creation")
		assert.Equal(t, ca.ID, both[1].ID)
		require.NotNil(t, both[0].ToEntity)
		assert.Equal(t, "b", both[0].ToEntity.ID)

		out, err := repo.FindByEntity(ctx, task("a"), ports.EntityLinkQuery{Direction: entities.DirectionOutgoing})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, ab.ID, out[0].ID)

		in, err := repo.FindByEntity(ctx, task("a"), ports.EntityLinkQuery{Direction: entities.DirectionIncoming})
		require.NoError(t, err)
		require.Len(t, in, 1)
		assert.Equal(t, ca.ID, in[0].ID)

		all, err := repo.FindByEntity(ctx, task("a"), ports.EntityLinkQuery{IncludeInactive: true})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		kinds, err := repo.FindByEntity(ctx, task("a"), ports.EntityLinkQuery{Kinds: []entities.LinkKind{entities.LinkKindDependsOn, entities.LinkKindBlocks}})
		require.NoError(t, err)
		require.Len(t, kinds, 1)
		assert.Equal(t, ab.ID, kinds[0].ID)

		// same id, different type
		project, err := repo.FindByEntity(ctx, ref(entities.EntityTypeProject, "a"), ports.EntityLinkQuery{})
		require.NoError(t, err)
		assert.Empty(t, project)
	})

	t.Run("entity summaries", func(t *testing.T) {
		repo := newRepo(t)
		store, ok := repo.(ports.EntitySummaryStore)
		if !ok {
			t.Skip("repository keeps no entity summaries")
		}
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newLink(1, task("a"), task("b"), entities.LinkKindRelates)))
		require.NoError(t, store.UpsertEntitySummary(ctx, tenant, entities.EntitySummary{ID: "b", Type: entities.EntityTypeTask, Title: "Write docs"}))
		require.NoError(t, store.UpsertEntitySummary(ctx, tenant, entities.EntitySummary{ID: "b", Type: entities.EntityTypeTask, Title: "Write the docs", Status: "open"}))

		links, err := repo.FindByEntity(ctx, task("a"), ports.EntityLinkQuery{})
		require.NoError(t, err)
		require.Len(t, links, 1)
		require.NotNil(t, links[0].ToEntity)
		assert.Equal(t, "Write the docs", links[0].ToEntity.Title)
		assert.Equal(t, "open", links[0].ToEntity.Status)
		require.NotNil(t, links[0].FromEntity)
		assert.Equal(t, "a", links[0].FromEntity.ID)
	})

	t.Run("find by criteria", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		doc := ref(entities.EntityTypeDocument, "d1")
		links := []*entities.EntityLink{
			newLink(1, task("a"), doc, entities.LinkKindReferences),
			newLink(2, task("b"), doc, entities.LinkKindReferences),
			newLink(3, task("a"), task("b"), entities.LinkKindRelates),
			newLink(4, doc, task("a"), entities.LinkKindAttachedTo),
		}
		links[1].Active = false
		for _, l := range links {
			require.NoError(t, repo.Create(ctx, l))
		}

		active := true
		found, err := repo.FindByCriteria(ctx, ports.LinkCriteria{TenantID: tenant, FromType: entities.EntityTypeTask, ToType: entities.EntityTypeDocument, Active: &active})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, links[0].ID, found[0].ID)

		found, err = repo.FindByCriteria(ctx, ports.LinkCriteria{TenantID: tenant, Kind: entities.LinkKindReferences})
		require.NoError(t, err)
		assert.Len(t, found, 2)

		found, err = repo.FindByCriteria(ctx, ports.LinkCriteria{TenantID: tenant, Limit: 3})
		require.NoError(t, err)
		require.Len(t, found, 3)
		assert.Equal(t, links[2].ID, found[2].ID)

		found, err = repo.FindByCriteria(ctx, ports.LinkCriteria{TenantID: "globex"})
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("link exists", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		link := newLink(1, task("a"), task("b"), entities.LinkKindBlocks)
		require.NoError(t, repo.Create(ctx, link))

		exists, err := repo.LinkExists(ctx, task("a"), task("b"), entities.LinkKindBlocks)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.LinkExists(ctx, task("b"), task("a"), entities.LinkKindBlocks)
		require.NoError(t, err)
		assert.False(t, exists)

		inactive := false
		_, err = repo.Update(ctx, link.ID, tenant, entities.LinkPatch{Active: &inactive})
		require.NoError(t, err)
		exists, err = repo.LinkExists(ctx, task("a"), task("b"), entities.LinkKindBlocks)
		require.NoError(t, err)
		assert.False(t, exists, "only active links count")
	})

	t.Run("create many", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		first := newLink(1, task("a"), task("b"), entities.LinkKindRelates)
		require.NoError(t, repo.CreateMany(ctx, []*entities.EntityLink{
			first,
			newLink(2, task("b"), task("c"), entities.LinkKindRelates),
		}))

		// a batch holding a stored id is rejected as a whole
		err := repo.CreateMany(ctx, []*entities.EntityLink{
			newLink(3, task("c"), task("d"), entities.LinkKindRelates),
			first,
		})
		assert.Error(t, err)

		found, err := repo.FindByCriteria(ctx, ports.LinkCriteria{TenantID: tenant})
		require.NoError(t, err)
		assert.Len(t, found, 2)

		require.NoError(t, repo.CreateMany(ctx, nil))
	})

	t.Run("delete", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		links := []*entities.EntityLink{
			newLink(1, task("a"), task("b"), entities.LinkKindRelates),
			newLink(2, task("b"), task("c"), entities.LinkKindRelates),
			newLink(3, task("c"), task("d"), entities.LinkKindRelates),
		}
		for _, l := range links {
			require.NoError(t, repo.Create(ctx, l))
		}

		require.NoError(t, repo.Delete(ctx, links[0].ID, tenant))
		got, err := repo.FindByID(ctx, links[0].ID, tenant)
		require.NoError(t, err)
		assert.Nil(t, got)

		n, err := repo.DeleteMany(ctx, []string{links[1].ID, links[0].ID, "0190f3b2-7d4a-7c3e-9a1b-999999999999"}, tenant)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = repo.DeleteMany(ctx, []string{links[2].ID}, "globex")
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		n, err = repo.DeleteMany(ctx, nil, tenant)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}
