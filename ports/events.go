package ports

import (
	"context"

	"github.com/layer-3/gatekeeper/core"
)

// EventPublisher publishes session lifecycle events to other instances
type EventPublisher interface {
	PublishLogout(ctx context.Context, principalID string) error
	PublishRefreshRejected(ctx context.Context, principalID string, reason core.Reason) error
}
