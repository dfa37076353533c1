package newsletter

import (
	"net/mail"
	"sort"
	"strings"
	"time"
)

// Subscriber statuses
const (
	StatusPending      = "pending"
	StatusActive       = "active"
	StatusUnsubscribed = "unsubscribed"
)

// Interests a subscriber can pick on the signup form
const (
	InterestAutomation   = "automation"
	InterestAI           = "ai"
	InterestDataAnalysis = "data-analysis"
)

// DefaultSource is recorded when the signup form does not say where it came from.
const DefaultSource = "website"

var validInterests = map[string]struct{}{
	InterestAutomation:   {},
	InterestAI:           {},
	InterestDataAnalysis: {},
}

// Interests returns every valid interest value.
func Interests() []string {
	return []string{InterestAutomation, InterestAI, InterestDataAnalysis}
}

// Metadata is optional client context captured at subscribe time.
type Metadata struct {
	UserAgent string `json:"userAgent,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	Page      string `json:"page,omitempty"`
}

// Subscriber represents one email address on the newsletter list.
// ConfirmToken is present only while Status is pending; UnsubscribeToken is
// minted once at creation and survives resubscribe cycles.
type Subscriber struct {
	ID                 string     `storm:"id" json:"id"`
	Email              string     `storm:"unique" json:"email"`
	Interests          []string   `json:"interests"`
	Status             string     `storm:"index" json:"status"`
	ConfirmToken       string     `storm:"index" json:"-"`
	UnsubscribeToken   string     `storm:"unique" json:"-"`
	SubscribedAt       time.Time  `json:"subscribedAt"`
	ConfirmedAt        *time.Time `json:"confirmedAt,omitempty"`
	UnsubscribedAt     *time.Time `json:"unsubscribedAt,omitempty"`
	MarketingContactID string     `json:"-"`
	Source             string     `json:"source"`
	Metadata           *Metadata  `json:"metadata,omitempty"`
}

// HasInterest reports whether the subscriber picked the given interest.
func (s *Subscriber) HasInterest(interest string) bool {
	for _, i := range s.Interests {
		if i == interest {
			return true
		}
	}
	return false
}

// SubscriberFilter narrows a List call. AfterID is the cursor: only records
// with an id greater than it are returned. Limit <= 0 means no limit.
type SubscriberFilter struct {
	Status   string
	Interest string
	AfterID  string
	Limit    int
}

// SubscriberService is the interface that wraps subscriber persistence.
// Lookups that match nothing return an *Error with code ErrNotFound; Insert
// returns an *Error with code ErrConflict when the normalized email is
// already taken.
type SubscriberService interface {
	FindByEmail(email string) (*Subscriber, error)
	FindByConfirmToken(token string) (*Subscriber, error)
	FindByUnsubscribeToken(token string) (*Subscriber, error)
	Insert(s *Subscriber) error
	Update(s *Subscriber) error
	CountByStatus(status string) (int, error)
	List(f SubscriberFilter) ([]Subscriber, error)
}

// NormalizeEmail trims and lower-cases an email address. Every lookup and
// write goes through the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail reports whether the address is a plain, syntactically valid
// email (no display name, no group syntax).
func ValidateEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " \t") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	if addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at:], ".")
}

// NormalizeInterests lower-cases, de-duplicates and validates the submitted
// interest set. An empty or unknown set is rejected.
func NormalizeInterests(interests []string) ([]string, error) {
	seen := make(map[string]struct{}, len(interests))
	var out []string
	for _, raw := range interests {
		i := strings.ToLower(strings.TrimSpace(raw))
		if i == "" {
			continue
		}
		if _, ok := validInterests[i]; !ok {
			return nil, &Error{Code: ErrInvalid, Message: "unknown interest: " + i}
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	if len(out) == 0 {
		return nil, &Error{Code: ErrInvalid, Message: "at least one interest is required"}
	}
	sort.Strings(out)
	return out, nil
}

// SubscribeRequest is the body of POST /subscribe.
type SubscribeRequest struct {
	Email     string    `json:"email"`
	Interests []string  `json:"interests"`
	Source    string    `json:"source,omitempty"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// SubscribeResponse is the body of a successful subscribe call.
type SubscribeResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	Pending           bool   `json:"pending,omitempty"`
	AlreadySubscribed bool   `json:"alreadySubscribed,omitempty"`
}
