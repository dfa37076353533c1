package newsletter

import "time"

// TopicSubscriberCreated carries SubscriberCreatedEvent payloads.
const TopicSubscriberCreated = "subscriber.created"

// SubscriberCreatedEvent is published when a brand-new subscriber record is
// created. Resubscribes do not publish it.
type SubscriberCreatedEvent struct {
	Email     string    `json:"email"`
	Interests []string  `json:"interests"`
	CreatedAt time.Time `json:"createdAt"`
}
