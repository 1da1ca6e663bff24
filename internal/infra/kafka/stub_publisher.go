package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/Wittle-South-LLC/olsnet/internal/core/domain"
	"github.com/Wittle-South-LLC/olsnet/internal/core/port"
)

// StubEventPublisher logs events instead of producing them. Used when no
// Kafka brokers are configured, which is the default for local development.
type StubEventPublisher struct {
	logger *zap.Logger
}

func NewStubEventPublisher(logger *zap.Logger) *StubEventPublisher {
	return &StubEventPublisher{logger: logger}
}

func (p *StubEventPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logger.Info("event skipped, no brokers configured",
		zap.String("event_type", "account.user.registered"),
		zap.String("user_id", event.UserID))
	return nil
}

func (p *StubEventPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.logger.Info("event skipped, no brokers configured",
		zap.String("event_type", "account.password.reset.requested"),
		zap.String("user_id", event.UserID))
	return nil
}

func (p *StubEventPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logger.Info("event skipped, no brokers configured",
		zap.String("event_type", "account.password.changed"),
		zap.String("user_id", event.UserID))
	return nil
}

func (p *StubEventPublisher) PublishUserDeleted(_ context.Context, event domain.UserDeletedEvent) error {
	p.logger.Info("event skipped, no brokers configured",
		zap.String("event_type", "account.user.deleted"),
		zap.String("user_id", event.UserID))
	return nil
}

var _ port.EventPublisher = (*StubEventPublisher)(nil)
