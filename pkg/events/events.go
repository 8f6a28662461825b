package events

import (
	"context"

	"github.com/fvkry/custody/pkg/models"
)

// Publisher delivers domain events to whatever is listening off-ledger.
type Publisher interface {
	// Publish emits one event. Called only after the originating state
	// transition has committed.
	Publish(ctx context.Context, event models.Event) error
}

// NoOpPublisher is a publisher that does nothing.
type NoOpPublisher struct{}

// Publish does nothing.
func (p *NoOpPublisher) Publish(ctx context.Context, event models.Event) error {
	return nil
}
