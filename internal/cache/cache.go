package cache

import (
	"context"
	"time"
)

// ResponseCache holds proxied upstream responses for a short TTL so repeated
// dashboard reads do not hit INVU for every request.
type ResponseCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type NoopResponseCache struct{}

func (NoopResponseCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopResponseCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}
