package chains

import (
	"context"

	"github.com/fairraffle/go-rafflebridge/pkg/eventprocessor"
)

// ListenerStack contains the components projecting one contract's events
// into the mirror.
type ListenerStack struct {
	EventProcessor eventprocessor.EventProcessor
	// Close gracefully closes all the stack components.
	Close func(ctx context.Context) error
}
