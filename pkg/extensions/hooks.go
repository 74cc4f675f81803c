package extensions

import (
	"context"
	"fmt"
	"sync"
)

// HookPoint represents a point in the link lifecycle where hooks can be registered
type HookPoint string

const (
	// Link lifecycle hooks
	HookBeforeLinkCreate HookPoint = "before_link_create"
	HookAfterLinkCreate  HookPoint = "after_link_create"
	HookAfterLinkUpdate  HookPoint = "after_link_update"
	HookAfterLinkDelete  HookPoint = "after_link_delete"

	// Cache operations
	HookCacheMiss         HookPoint = "cache_miss"
	HookCacheHit          HookPoint = "cache_hit"
	HookCacheInvalidation HookPoint = "cache_invalidation"
)

// Hook represents a function that can be executed at a hook point
type Hook func(ctx context.Context, data HookData) error

// HookData represents data passed to hooks
type HookData struct {
	TenantID  string                 `json:"tenant_id"`
	LinkID    string                 `json:"link_id,omitempty"`
	Operation string                 `json:"operation"`
	UserID    string                 `json:"user_id,omitempty"`
	CacheKey  string                 `json:"cache_key,omitempty"`
	Before    interface{}            `json:"before,omitempty"`
	After     interface{}            `json:"after,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// HookManager manages hooks for extension points
type HookManager struct {
	hooks map[HookPoint][]Hook
	mu    sync.RWMutex
}

// NewHookManager creates a new hook manager
func NewHookManager() *HookManager {
	return &HookManager{
		hooks: make(map[HookPoint][]Hook),
	}
}

// Register registers a hook for a specific hook point
func (m *HookManager) Register(point HookPoint, hook Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks[point] = append(m.hooks[point], hook)
}

// Has reports whether any hook is registered at point.
func (m *HookManager) Has(point HookPoint) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hooks[point]) > 0
}

// Execute runs the hooks at point in registration order and stops at the first error.
func (m *HookManager) Execute(ctx context.Context, point HookPoint, data HookData) error {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	hooks := m.hooks[point]
	m.mu.RUnlock()

	for i, hook := range hooks {
		if err := hook(ctx, data); err != nil {
			return fmt.Errorf("hook %d at %s failed: %w", i, point, err)
		}
	}

	return nil
}

// ExecuteAsync runs the hooks at point in the background; errors and panics are dropped.
// Hooks see ctx values but not its cancellation.
func (m *HookManager) ExecuteAsync(ctx context.Context, point HookPoint, data HookData) {
	if m == nil {
		return
	}
	m.mu.RLock()
	hooks := m.hooks[point]
	m.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, hook := range hooks {
		go func(h Hook) {
			defer func() { _ = recover() }()
			_ = h(detached, data)
		}(hook)
	}
}

// Clear removes all hooks for a specific hook point
func (m *HookManager) Clear(point HookPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.hooks, point)
}

// ClearAll removes all registered hooks
func (m *HookManager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = make(map[HookPoint][]Hook)
}
