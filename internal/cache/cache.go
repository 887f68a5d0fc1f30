package cache

import (
	"context"
	"time"

	"dinedesk/backend/internal/domain"
)

// StatusCache holds register status snapshots keyed by StatusKey.
type StatusCache interface {
	Get(ctx context.Context, key string) (*domain.RegisterStatus, bool, error)
	Set(ctx context.Context, key string, value *domain.RegisterStatus, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

func StatusKey(restaurantID string, staffID string) string {
	return "register-status:" + restaurantID + ":" + staffID
}

type NoopStatusCache struct{}

func (NoopStatusCache) Get(_ context.Context, _ string) (*domain.RegisterStatus, bool, error) {
	return nil, false, nil
}

func (NoopStatusCache) Set(_ context.Context, _ string, _ *domain.RegisterStatus, _ time.Duration) error {
	return nil
}

func (NoopStatusCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
