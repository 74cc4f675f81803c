// Package mocks provides testify mocks of the application ports.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"linkgraph/application/ports"
	"linkgraph/domain/core/entities"
	"linkgraph/domain/events"
)

// MockLinkRepository mocks ports.LinkRepository.
type MockLinkRepository struct {
	mock.Mock
}

func (m *MockLinkRepository) Create(ctx context.Context, link *entities.EntityLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockLinkRepository) Update(ctx context.Context, id, tenantID string, patch entities.LinkPatch) (*entities.EntityLink, error) {
	args := m.Called(ctx, id, tenantID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.EntityLink), args.Error(1)
}

func (m *MockLinkRepository) Delete(ctx context.Context, id, tenantID string) error {
	args := m.Called(ctx, id, tenantID)
	return args.Error(0)
}

func (m *MockLinkRepository) FindByID(ctx context.Context, id, tenantID string) (*entities.EntityLink, error) {
	args := m.Called(ctx, id, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.EntityLink), args.Error(1)
}

func (m *MockLinkRepository) FindByEntity(ctx context.Context, ref entities.EntityRef, query ports.EntityLinkQuery) ([]*entities.EntityLinkWithDetails, error) {
	args := m.Called(ctx, ref, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.EntityLinkWithDetails), args.Error(1)
}

func (m *MockLinkRepository) FindByCriteria(ctx context.Context, criteria ports.LinkCriteria) ([]*entities.EntityLink, error) {
	args := m.Called(ctx, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.EntityLink), args.Error(1)
}

func (m *MockLinkRepository) LinkExists(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind) (bool, error) {
	args := m.Called(ctx, from, to, kind)
	return args.Bool(0), args.Error(1)
}

func (m *MockLinkRepository) CreateMany(ctx context.Context, links []*entities.EntityLink) error {
	args := m.Called(ctx, links)
	return args.Error(0)
}

func (m *MockLinkRepository) DeleteMany(ctx context.Context, ids []string, tenantID string) (int, error) {
	args := m.Called(ctx, ids, tenantID)
	return args.Int(0), args.Error(1)
}

// MockCache mocks ports.Cache.
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) (interface{}, bool) {
	args := m.Called(ctx, key)
	return args.Get(0), args.Bool(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl int) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCache) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockEventPublisher mocks ports.EventPublisher.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishBatch(ctx context.Context, evs []events.DomainEvent) error {
	args := m.Called(ctx, evs)
	return args.Error(0)
}

// MockRateLimiter mocks ports.RateLimiter.
type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

var (
	_ ports.LinkRepository = (*MockLinkRepository)(nil)
	_ ports.Cache          = (*MockCache)(nil)
	_ ports.EventPublisher = (*MockEventPublisher)(nil)
	_ ports.RateLimiter    = (*MockRateLimiter)(nil)
)
