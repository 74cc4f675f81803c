package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkgraph/domain/config"
	"linkgraph/domain/core/entities"
	"linkgraph/infrastructure/persistence/memory"
	pkgerrors "linkgraph/pkg/errors"
)

func TestGetEntityGraph_TerminatesOnCycles(t *testing.T) {
	s, _ := newTestService(t)
	mustCreate(t, s, taskRef("a"), taskRef("b"), entities.LinkKindRelates)
	mustCreate(t, s, taskRef("b"), taskRef("c"), entities.LinkKindRelates)
	mustCreate(t, s, taskRef("c"), taskRef("a"), entities.LinkKindRelates)
	mustCreate(t, s, taskRef("c"), taskRef("d"), entities.LinkKindRelates)

	graph, err := s.GetEntityGraph(context.Background(), taskRef("a"), 5, GraphOptions{})

	require.NoError(t, err)
	assert.Equal(t, taskRef("a"), graph.Root)
	assert.Len(t, graph.Nodes, 4)
	assert.Len(t, graph.Edges, 4)
	assert.Equal(t, 5, graph.Depth)
	assert.False(t, graph.Truncated)
}

func TestGetEntityGraph_Depth(t *testing.T) {
	s, _ := newTestService(t)
	mustCreate(t, s, taskRef("a"), taskRef("b"), entities.LinkKindRelates)
	mustCreate(t, s, taskRef("b"), taskRef("c"), entities.LinkKindRelates)
	mustCreate(t, s, taskRef("d"), taskRef("a"), entities.LinkKindRelates)

	graph, err := s.GetEntityGraph(context.Background(), taskRef("a"), 1, GraphOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []entities.EntityRef{taskRef("a"), taskRef("b"), taskRef("d")}, graph.Nodes)
	assert.Len(t, graph.Edges, 2)

	graph, err = s.GetEntityGraph(context.Background(), taskRef("a"), 1, GraphOptions{Direction: entities.DirectionOutgoing})
	require.NoError(t, err)
	assert.Equal(t, []entities.EntityRef{taskRef("a"), taskRef("b")}, graph.Nodes)

	// non-positive depths fall back to the default, large ones are capped
	graph, err = s.GetEntityGraph(context.Background(), taskRef("a"), 0, GraphOptions{})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultDomainConfig().DefaultGraphDepth, graph.Depth)
	assert.Len(t, graph.Nodes, 4)

	graph, err = s.GetEntityGraph(context.Background(), taskRef("a"), 100, GraphOptions{})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultDomainConfig().MaxGraphDepth, graph.Depth)
}

func TestGetEntityGraph_NodeBudget(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxTraversalNodes = 2
	s := NewLinkService(memory.NewLinkRepository(), nil, nil, cfg, nil)
	mustCreate(t, s, taskRef("a"), taskRef("b"), entities.LinkKindRelates)
	mustCreate(t, s, taskRef("a"), taskRef("c"), entities.LinkKindRelates)
	mustCreate(t, s, taskRef("b"), taskRef("d"), entities.LinkKindRelates)

	graph, err := s.GetEntityGraph(context.Background(), taskRef("a"), 3, GraphOptions{})

	require.NoError(t, err)
	assert.True(t, graph.Truncated)
	assert.Len(t, graph.Nodes, 3)
}

func TestGetEntityGraph_IsolatedEntity(t *testing.T) {
	s, _ := newTestService(t)

	graph, err := s.GetEntityGraph(context.Background(), taskRef("lonely"), 2, GraphOptions{})

	require.NoError(t, err)
	assert.Equal(t, []entities.EntityRef{taskRef("lonely")}, graph.Nodes)
	assert.Empty(t, graph.Edges)
}

func TestFindPath(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	ab := mustCreate(t, s, taskRef("a"), taskRef("b"), entities.LinkKindDependsOn)
	bc := mustCreate(t, s, taskRef("b"), taskRef("c"), entities.LinkKindDependsOn)
	mustCreate(t, s, taskRef("c"), taskRef("d"), entities.LinkKindRelates)

	path, err := s.FindPath(ctx, taskRef("a"), taskRef("c"), PathOptions{})
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, ab.ID, path[0].ID)
	assert.Equal(t, bc.ID, path[1].ID)

	path, err = s.FindPath(ctx, taskRef("a"), taskRef("d"), PathOptions{Kinds: []entities.LinkKind{entities.LinkKindDependsOn}})
	require.NoError(t, err)
	assert.NotNil(t, path)
	assert.Empty(t, path)

	path, err = s.FindPath(ctx, taskRef("a"), taskRef("d"), PathOptions{MaxDepth: 2})
	require.NoError(t, err)
	assert.Empty(t, path)

	path, err = s.FindPath(ctx, taskRef("c"), taskRef("a"), PathOptions{})
	require.NoError(t, err)
	assert.Empty(t, path, "outgoing by default")

	path, err = s.FindPath(ctx, taskRef("c"), taskRef("a"), PathOptions{Direction: entities.DirectionIncoming})
	require.NoError(t, err)
	assert.Len(t, path, 2)

	path, err = s.FindPath(ctx, taskRef("a"), taskRef("a"), PathOptions{})
	require.NoError(t, err)
	assert.Empty(t, path)

	_, err = s.FindPath(ctx, taskRef("a"), entities.NewEntityRef(entities.EntityTypeTask, "c", "globex"), PathOptions{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTenantMismatch))
}

func TestValidateNoCycle(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	mustCreate(t, s, taskRef("a"), taskRef("b"), entities.LinkKindParentOf)
	mustCreate(t, s, taskRef("x"), taskRef("y"), entities.LinkKindDependsOn)
	mustCreate(t, s, taskRef("z"), taskRef("y"), entities.LinkKindBlocks)

	tests := []struct {
		name string
		from string
		to   string
		kind entities.LinkKind
		want bool
	}{
		{"reverse parent", "b", "a", entities.LinkKindParentOf, false},
		{"child against stored parent", "b", "a", entities.LinkKindChildOf, false},
		{"parallel child", "a", "b", entities.LinkKindChildOf, true},
		{"dependency against stored parent", "b", "a", entities.LinkKindDependsOn, false},
		{"reverse dependency", "y", "x", entities.LinkKindDependsOn, false},
		{"parent against stored dependency", "y", "x", entities.LinkKindParentOf, false},
		{"blocks alongside dependency", "x", "y", entities.LinkKindBlocks, true},
		{"dependency alongside blocks", "z", "y", entities.LinkKindDependsOn, true},
		{"against stored blocks", "y", "z", entities.LinkKindDependsOn, false},
		{"fresh dependency", "x", "z", entities.LinkKindDependsOn, true},
		{"non dependency kind", "b", "a", entities.LinkKindRelates, true},
		{"self", "a", "a", entities.LinkKindDependsOn, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := s.ValidateNoCycle(ctx, taskRef(tt.from), taskRef(tt.to), tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	_, err := s.ValidateNoCycle(ctx, taskRef("a"), entities.NewEntityRef(entities.EntityTypeTask, "b", "globex"), entities.LinkKindParentOf)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTenantMismatch))
}

func TestValidateNoCycle_MixedKindChain(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	mustCreate(t, s, taskRef("a"), taskRef("b"), entities.LinkKindDependsOn)
	mustCreate(t, s, taskRef("b"), taskRef("c"), entities.LinkKindBlocks)
	mustCreate(t, s, taskRef("c"), taskRef("d"), entities.LinkKindChildOf)

	for _, kind := range entities.DependencyKinds() {
		ok, err := s.ValidateNoCycle(ctx, taskRef("d"), taskRef("a"), kind)
		require.NoError(t, err)
		assert.False(t, ok, kind)
	}

	ok, err := s.ValidateNoCycle(ctx, taskRef("a"), taskRef("d"), entities.LinkKindParentOf)
	require.NoError(t, err)
	assert.True(t, ok, "shortcut along the chain")
}

func TestValidateNoCycle_IgnoresInactiveLinks(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	link := mustCreate(t, s, taskRef("a"), taskRef("b"), entities.LinkKindDependsOn)
	require.NoError(t, s.DeleteLink(ctx, link.ID, tenant, true))

	ok, err := s.ValidateNoCycle(ctx, taskRef("b"), taskRef("a"), entities.LinkKindDependsOn)

	require.NoError(t, err)
	assert.True(t, ok)
}
