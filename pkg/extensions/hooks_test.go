package extensions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookManager_ExecuteInOrder(t *testing.T) {
	m := NewHookManager()
	var order []int
	m.Register(HookBeforeLinkCreate, func(ctx context.Context, data HookData) error {
		order = append(order, 1)
		return nil
	})
	m.Register(HookBeforeLinkCreate, func(ctx context.Context, data HookData) error {
		order = append(order, 2)
		assert.Equal(t, "acme", data.TenantID)
		return nil
	})

	require.NoError(t, m.Execute(context.Background(), HookBeforeLinkCreate, HookData{TenantID: "acme"}))
	assert.Equal(t, []int{1, 2}, order)
	assert.True(t, m.Has(HookBeforeLinkCreate))
	assert.False(t, m.Has(HookAfterLinkDelete))
}

func TestHookManager_StopsAtFirstError(t *testing.T) {
	m := NewHookManager()
	veto := errors.New("frozen project")
	called := false
	m.Register(HookBeforeLinkCreate, func(context.Context, HookData) error { return veto })
	m.Register(HookBeforeLinkCreate, func(context.Context, HookData) error {
		called = true
		return nil
	})

	err := m.Execute(context.Background(), HookBeforeLinkCreate, HookData{})
	assert.ErrorIs(t, err, veto)
	assert.Contains(t, err.Error(), "before_link_create")
	assert.False(t, called)
}

func TestHookManager_NilIsNoop(t *testing.T) {
	var m *HookManager
	assert.False(t, m.Has(HookCacheHit))
	assert.NoError(t, m.Execute(context.Background(), HookCacheHit, HookData{}))
	assert.NotPanics(t, func() { m.ExecuteAsync(context.Background(), HookCacheHit, HookData{}) })
}

func TestHookManager_ExecuteAsync(t *testing.T) {
	m := NewHookManager()
	var wg sync.WaitGroup
	wg.Add(2)
	m.Register(HookCacheInvalidation, func(ctx context.Context, data HookData) error {
		defer wg.Done()
		assert.NoError(t, ctx.Err(), "hooks outlive the caller's context")
		return errors.New("ignored")
	})
	m.Register(HookCacheInvalidation, func(context.Context, HookData) error {
		defer wg.Done()
		panic("ignored too")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.ExecuteAsync(ctx, HookCacheInvalidation, HookData{Operation: "clear"})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async hooks did not run")
	}
}

func TestHookManager_Clear(t *testing.T) {
	m := NewHookManager()
	noop := func(context.Context, HookData) error { return nil }
	m.Register(HookCacheHit, noop)
	m.Register(HookCacheMiss, noop)

	m.Clear(HookCacheHit)
	assert.False(t, m.Has(HookCacheHit))
	assert.True(t, m.Has(HookCacheMiss))

	m.ClearAll()
	assert.False(t, m.Has(HookCacheMiss))
}
