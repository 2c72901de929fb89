package handler

import (
	"context"

	"github.com/iliyamo/cinema-ticket-booking/internal/queue"
)

// EventPublisher is the outbound side of the message broker.  Handlers log
// publish failures and carry on.
type EventPublisher interface {
	PublishOrderConfirmed(ctx context.Context, ev queue.OrderConfirmedEvent) error
	PublishPasswordReset(ctx context.Context, ev queue.PasswordResetRequestedEvent) error
}
