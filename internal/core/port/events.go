package port

import (
	"context"

	"github.com/Wittle-South-LLC/olsnet/internal/core/domain"
)

// EventPublisher emits account lifecycle events for downstream consumers.
// Publishing is best-effort; failures are logged, never surfaced to callers.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishUserDeleted(ctx context.Context, event domain.UserDeletedEvent) error
}
