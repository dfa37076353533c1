package newsletter

import "context"

// MarketingService is the interface that wraps the external marketing-list
// provider. AddContact returns the provider-assigned contact id, which is
// stored on the subscriber record and used for later removal.
type MarketingService interface {
	AddContact(ctx context.Context, email string, interests []string) (string, error)
	RemoveContact(ctx context.Context, contactID string) error
}
