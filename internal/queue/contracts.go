package queue

import (
	"context"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
)

// Producer hands slow-path generation work to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message domain.QueueMessage) error
}

// Consumer receives generation work and executes handlers.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error
}
