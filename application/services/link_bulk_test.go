package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"linkgraph/application/ports/mocks"
	"linkgraph/domain/config"
	"linkgraph/domain/core/entities"
	"linkgraph/domain/events"
	pkgerrors "linkgraph/pkg/errors"
)

func mixedBatch() []entities.LinkRequest {
	invoice := entities.NewEntityRef(entities.EntityTypeInvoice, "inv-1", tenant)
	return []entities.LinkRequest{
		{From: taskRef("a"), To: taskRef("b"), Kind: entities.LinkKindDependsOn},
		{From: taskRef("a"), To: invoice, Kind: entities.LinkKindAssignedTo},
		{From: taskRef("b"), To: taskRef("c"), Kind: entities.LinkKindRelates, Note: "same epic"},
		{From: taskRef("a"), To: taskRef("b"), Kind: entities.LinkKindDependsOn},
		{From: taskRef("b"), To: taskRef("a"), Kind: entities.LinkKindDependsOn},
		{
			From: entities.NewEntityRef(entities.EntityTypeTask, "a", "globex"),
			To:   entities.NewEntityRef(entities.EntityTypeTask, "b", "globex"),
			Kind: entities.LinkKindRelates,
		},
	}
}

func failureCodes(failures []BulkFailure) map[int]pkgerrors.Code {
	out := make(map[int]pkgerrors.Code, len(failures))
	for _, f := range failures {
		out[f.Index] = f.Code
	}
	return out
}

func TestCreateBulkLinks_PartialFailure(t *testing.T) {
	s, repo := newTestService(t)

	result, err := s.CreateBulkLinks(context.Background(), mixedBatch(), tenant, BulkCreateOptions{AllowPartialFailure: true})

	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	assert.Equal(t, "b", result.Created[0].ToID)
	assert.Equal(t, "c", result.Created[1].ToID)
	assert.Equal(t, "same epic", result.Created[1].Note)
	assert.Equal(t, map[int]pkgerrors.Code{
		1: pkgerrors.CodeInvalidLinkKind,
		3: pkgerrors.CodeDuplicateLink,
		4: pkgerrors.CodeCircularDependency,
		5: pkgerrors.CodeTenantMismatch,
	}, failureCodes(result.Failures))
	assert.Equal(t, 2, repo.Len())
}

func TestCreateBulkLinks_AllOrNothing(t *testing.T) {
	s, repo := newTestService(t)

	result, err := s.CreateBulkLinks(context.Background(), mixedBatch(), tenant, BulkCreateOptions{})

	assert.Nil(t, result)
	linkErr := pkgerrors.AsLinkError(err)
	require.NotNil(t, linkErr)
	assert.Equal(t, pkgerrors.CodeValidationFailed, linkErr.Code)
	assert.Contains(t, linkErr.Details, "failures")
	assert.Equal(t, 0, repo.Len())
}

func TestCreateBulkLinks_Batched(t *testing.T) {
	publisher := new(mocks.MockEventPublisher)
	publisher.On("PublishBatch", mock.Anything, mock.MatchedBy(func(evs []events.DomainEvent) bool {
		return len(evs) == 3 && evs[0].GetEventType() == events.TypeLinkCreated
	})).Return(nil).Once()
	s, repo := newTestService(t, WithEventPublisher(publisher))
	links := []entities.LinkRequest{
		{From: taskRef("a"), To: taskRef("b"), Kind: entities.LinkKindParentOf},
		{From: taskRef("b"), To: taskRef("c"), Kind: entities.LinkKindParentOf},
		{From: taskRef("c"), To: taskRef("d"), Kind: entities.LinkKindParentOf},
	}

	result, err := s.CreateBulkLinks(context.Background(), links, tenant, BulkCreateOptions{BatchSize: 2, Concurrency: 2})

	require.NoError(t, err)
	require.Len(t, result.Created, 3)
	for i, link := range result.Created {
		assert.Equal(t, links[i].To.ID, link.ToID)
	}
	assert.Empty(t, result.Failures)
	assert.Equal(t, 3, repo.Len())
	publisher.AssertExpectations(t)
}

func TestCreateBulkLinks_BatchWriteFallsBackToSingleWrites(t *testing.T) {
	repo := new(mocks.MockLinkRepository)
	repo.On("LinkExists", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	repo.On("CreateMany", mock.Anything, mock.Anything).Return(errors.New("batch rejected"))
	repo.On("Create", mock.Anything, mock.MatchedBy(func(l *entities.EntityLink) bool { return l.ToID == "b" })).Return(nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(l *entities.EntityLink) bool { return l.ToID == "c" })).Return(errors.New("item rejected"))
	s := NewLinkService(repo, nil, nil, nil, nil)
	links := []entities.LinkRequest{
		{From: taskRef("a"), To: taskRef("b"), Kind: entities.LinkKindRelates},
		{From: taskRef("a"), To: taskRef("c"), Kind: entities.LinkKindRelates},
	}

	result, err := s.CreateBulkLinks(context.Background(), links, tenant, BulkCreateOptions{AllowPartialFailure: true, BatchSize: 2})

	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "b", result.Created[0].ToID)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Index)
	assert.Equal(t, pkgerrors.CodeValidationFailed, result.Failures[0].Code)

	_, err = s.CreateBulkLinks(context.Background(), links, tenant, BulkCreateOptions{BatchSize: 2})
	assert.Error(t, err)
	repo.AssertNumberOfCalls(t, "CreateMany", 2)
}

func TestCreateBulkLinks_Limits(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxBulkItems = 2
	s := NewLinkService(nil, nil, nil, cfg, nil)
	links := make([]entities.LinkRequest, 3)

	_, err := s.CreateBulkLinks(context.Background(), links, tenant, BulkCreateOptions{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidationFailed))

	_, err = s.CreateBulkLinks(context.Background(), nil, "", BulkCreateOptions{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidEntityType))

	result, err := s.CreateBulkLinks(context.Background(), nil, tenant, BulkCreateOptions{})
	require.NoError(t, err)
	assert.NotNil(t, result.Created)
	assert.Empty(t, result.Created)
}

func TestDeleteBulkLinks(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	ab := mustCreate(t, s, taskRef("a"), taskRef("b"), entities.LinkKindRelates)
	bc := mustCreate(t, s, taskRef("b"), taskRef("c"), entities.LinkKindRelates)
	keep := mustCreate(t, s, taskRef("c"), taskRef("d"), entities.LinkKindRelates)
	unknown := "0190f3b2-7d4a-7c3e-9a1b-000000000000"

	result, err := s.DeleteBulkLinks(ctx, []string{ab.ID, "not-an-id", unknown, bc.ID, ab.ID}, tenant, false, BulkDeleteOptions{})

	require.NoError(t, err)
	assert.Equal(t, []string{ab.ID, bc.ID}, result.Deleted)
	assert.Equal(t, map[int]pkgerrors.Code{
		1: pkgerrors.CodeValidationFailed,
		2: pkgerrors.CodeEntityNotFound,
	}, failureCodes(result.Failures))
	assert.Equal(t, unknown, result.Failures[1].ID)
	assert.Equal(t, 1, repo.Len())

	links, err := s.GetEntityLinks(ctx, taskRef("c"), EntityLinksOptions{})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, keep.ID, links[0].ID)
}

func TestDeleteBulkLinks_Soft(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()
	ab := mustCreate(t, s, taskRef("a"), taskRef("b"), entities.LinkKindRelates)
	bc := mustCreate(t, s, taskRef("b"), taskRef("c"), entities.LinkKindRelates)

	result, err := s.DeleteBulkLinks(ctx, []string{ab.ID, bc.ID}, tenant, true, BulkDeleteOptions{Concurrency: 2})

	require.NoError(t, err)
	assert.Equal(t, []string{ab.ID, bc.ID}, result.Deleted)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 2, repo.Len())
	for _, id := range result.Deleted {
		link, err := s.GetLink(ctx, id, tenant)
		require.NoError(t, err)
		assert.False(t, link.Active)
	}
}

func TestDeleteBulkLinks_StorageFailureClearsCache(t *testing.T) {
	link := entities.NewEntityLink("0190f3b2-7d4a-7c3e-9a1b-000000000001", taskRef("a"), taskRef("b"), entities.LinkKindRelates, "", nil, "", fixedNow())
	repo := new(mocks.MockLinkRepository)
	repo.On("FindByID", mock.Anything, link.ID, tenant).Return(link, nil)
	repo.On("DeleteMany", mock.Anything, []string{link.ID}, tenant).Return(0, errors.New("table offline"))
	linkCache := new(mocks.MockCache)
	linkCache.On("Clear", mock.Anything).Return(nil).Once()
	s := NewLinkService(repo, nil, linkCache, nil, nil)

	result, err := s.DeleteBulkLinks(context.Background(), []string{link.ID}, tenant, false, BulkDeleteOptions{})

	assert.Nil(t, result)
	assert.Error(t, err)
	linkCache.AssertExpectations(t)
}
