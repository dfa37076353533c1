package bolt

import (
	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	"github.com/go-errors/errors"

	"github.com/caribhq/newsletter"
)

type subscriberService struct {
	db *DB
}

// NewSubscriberService returns a storm-backed subscriber store. The unique
// index on Email makes a racing duplicate create fail with a conflict instead
// of producing a second record.
func NewSubscriberService(db *DB) newsletter.SubscriberService {
	return &subscriberService{
		db: db,
	}
}

// FindByEmail finds a subscriber by normalized email
func (ss *subscriberService) FindByEmail(email string) (*newsletter.Subscriber, error) {
	var s newsletter.Subscriber
	if err := ss.db.stormDB.One("Email", email, &s); err != nil {
		return nil, storeError("bolt.FindByEmail", err)
	}

	return &s, nil
}

// FindByConfirmToken finds the pending subscriber holding the confirmation token
func (ss *subscriberService) FindByConfirmToken(token string) (*newsletter.Subscriber, error) {
	if token == "" {
		// the confirm token index holds "" for every non-pending record
		return nil, &newsletter.Error{Code: newsletter.ErrNotFound, Op: "bolt.FindByConfirmToken", Message: "token not found"}
	}

	var s newsletter.Subscriber
	if err := ss.db.stormDB.Select(q.Eq("ConfirmToken", token), q.Eq("Status", newsletter.StatusPending)).First(&s); err != nil {
		return nil, storeError("bolt.FindByConfirmToken", err)
	}

	return &s, nil
}

// FindByUnsubscribeToken finds a subscriber by its long-lived unsubscribe token
func (ss *subscriberService) FindByUnsubscribeToken(token string) (*newsletter.Subscriber, error) {
	if token == "" {
		return nil, &newsletter.Error{Code: newsletter.ErrNotFound, Op: "bolt.FindByUnsubscribeToken", Message: "token not found"}
	}

	var s newsletter.Subscriber
	if err := ss.db.stormDB.One("UnsubscribeToken", token, &s); err != nil {
		return nil, storeError("bolt.FindByUnsubscribeToken", err)
	}

	return &s, nil
}

// Insert saves a brand-new subscriber
func (ss *subscriberService) Insert(s *newsletter.Subscriber) error {
	if err := ss.db.stormDB.Save(s); err != nil {
		if errors.Is(err, storm.ErrAlreadyExists) {
			return &newsletter.Error{Code: newsletter.ErrConflict, Op: "bolt.Insert", Message: "email is already subscribed", Err: err}
		}
		return errors.Errorf("failed to save: %v", err)
	}

	return nil
}

// Update saves a mutated subscriber record in place
func (ss *subscriberService) Update(s *newsletter.Subscriber) error {
	if err := ss.db.stormDB.Save(s); err != nil {
		return errors.Errorf("failed to update %s: %v", s.ID, err)
	}

	return nil
}

// CountByStatus counts subscribers in the given status
func (ss *subscriberService) CountByStatus(status string) (int, error) {
	count, err := ss.db.stormDB.Select(q.Eq("Status", status)).Count(new(newsletter.Subscriber))
	if err != nil {
		return 0, errors.Errorf("failed to count by status: %v", err)
	}

	return count, nil
}

// List returns subscribers matching the filter, ordered by id. The interest
// filter is applied after the fetch: storm cannot match inside a slice field.
func (ss *subscriberService) List(f newsletter.SubscriberFilter) ([]newsletter.Subscriber, error) {
	var matchers []q.Matcher
	if f.Status != "" {
		matchers = append(matchers, q.Eq("Status", f.Status))
	}
	if f.AfterID != "" {
		matchers = append(matchers, q.Gt("ID", f.AfterID))
	}

	var all []newsletter.Subscriber
	if err := ss.db.stormDB.Select(matchers...).OrderBy("ID").Find(&all); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Errorf("failed to list: %v", err)
	}

	var out []newsletter.Subscriber
	for _, s := range all {
		if f.Interest != "" && !s.HasInterest(f.Interest) {
			continue
		}
		out = append(out, s)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}

	return out, nil
}

func storeError(op string, err error) error {
	if errors.Is(err, storm.ErrNotFound) {
		return &newsletter.Error{Code: newsletter.ErrNotFound, Op: op, Message: "subscriber not found", Err: err}
	}
	return &newsletter.Error{Code: newsletter.ErrInternal, Op: op, Err: err}
}
