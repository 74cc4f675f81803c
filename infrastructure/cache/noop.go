package cache

import "context"

// NoopCache never stores anything; every Get misses.
type NoopCache struct{}

func NewNoopCache() *NoopCache { return &NoopCache{} }

func (*NoopCache) Get(context.Context, string) (interface{}, bool) { return nil, false }

func (*NoopCache) Set(context.Context, string, interface{}, int) error { return nil }

func (*NoopCache) Delete(context.Context, string) error { return nil }

func (*NoopCache) Clear(context.Context) error { return nil }
