package newsletter

import "context"

// QueueService is the interface that wraps the event bus between the
// subscribe handler and the stats aggregator.
type QueueService interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Consume(ctx context.Context, topic string) (<-chan []byte, error)
}
