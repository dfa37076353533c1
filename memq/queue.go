// Package memq is the in-process queue used when no AMQP broker is
// configured. Good enough for a single-instance deployment; events are lost
// on restart.
package memq

import (
	"context"
	"sync"
)

const topicBuffer = 256

// QueueService routes published messages to one consumer per topic.
type QueueService struct {
	mu     sync.Mutex
	topics map[string]chan []byte
}

func New() *QueueService {
	return &QueueService{
		topics: make(map[string]chan []byte),
	}
}

func (s *QueueService) topic(name string) chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.topics[name]
	if !ok {
		ch = make(chan []byte, topicBuffer)
		s.topics[name] = ch
	}

	return ch
}

// Publish never blocks: when the consumer lags behind the buffer the message
// is dropped, matching the fire-and-forget contract of the stats path.
func (s *QueueService) Publish(_ context.Context, topic string, body []byte) error {
	select {
	case s.topic(topic) <- body:
	default:
	}

	return nil
}

func (s *QueueService) Consume(ctx context.Context, topic string) (<-chan []byte, error) {
	in := s.topic(topic)
	messages := make(chan []byte)

	go func() {
		defer close(messages)

		for {
			select {
			case <-ctx.Done():
				return
			case body := <-in:
				select {
				case <-ctx.Done():
					return
				case messages <- body:
				}
			}
		}
	}()

	return messages, nil
}
