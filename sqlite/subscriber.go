package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/caribhq/newsletter"
)

const subscriberColumns = "id, email, interests, status, confirm_token, unsubscribe_token, " +
	"subscribed_at, confirmed_at, unsubscribed_at, marketing_contact_id, source, metadata"

type subscriberService struct {
	db *DB
}

// NewSubscriberService returns a sqlite-backed subscriber store. The UNIQUE
// constraint on email makes a racing duplicate create fail with a conflict
// instead of producing a second row.
func NewSubscriberService(db *DB) newsletter.SubscriberService {
	return &subscriberService{
		db: db,
	}
}

// FindByEmail finds a subscriber by normalized email
func (ss *subscriberService) FindByEmail(email string) (*newsletter.Subscriber, error) {
	return ss.findOne("sqlite.FindByEmail",
		"SELECT "+subscriberColumns+" FROM subscribers WHERE email = ?", email)
}

// FindByConfirmToken finds the pending subscriber holding the confirmation token
func (ss *subscriberService) FindByConfirmToken(token string) (*newsletter.Subscriber, error) {
	if token == "" {
		return nil, &newsletter.Error{Code: newsletter.ErrNotFound, Op: "sqlite.FindByConfirmToken", Message: "token not found"}
	}

	return ss.findOne("sqlite.FindByConfirmToken",
		"SELECT "+subscriberColumns+" FROM subscribers WHERE confirm_token = ? AND status = ?",
		token, newsletter.StatusPending)
}

// FindByUnsubscribeToken finds a subscriber by its long-lived unsubscribe token
func (ss *subscriberService) FindByUnsubscribeToken(token string) (*newsletter.Subscriber, error) {
	if token == "" {
		return nil, &newsletter.Error{Code: newsletter.ErrNotFound, Op: "sqlite.FindByUnsubscribeToken", Message: "token not found"}
	}

	return ss.findOne("sqlite.FindByUnsubscribeToken",
		"SELECT "+subscriberColumns+" FROM subscribers WHERE unsubscribe_token = ?", token)
}

// Insert saves a brand-new subscriber
func (ss *subscriberService) Insert(s *newsletter.Subscriber) error {
	interests, metadata, err := marshalFields(s)
	if err != nil {
		return err
	}

	_, err = ss.db.sqlDB.Exec(
		"INSERT INTO subscribers ("+subscriberColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.ID, s.Email, interests, s.Status, nullString(s.ConfirmToken), s.UnsubscribeToken,
		s.SubscribedAt, nullTime(s.ConfirmedAt), nullTime(s.UnsubscribedAt),
		nullString(s.MarketingContactID), s.Source, metadata)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return &newsletter.Error{Code: newsletter.ErrConflict, Op: "sqlite.Insert", Message: "email is already subscribed", Err: err}
		}
		return fmt.Errorf("failed to insert: %w", err)
	}

	return nil
}

// Update saves a mutated subscriber record in place
func (ss *subscriberService) Update(s *newsletter.Subscriber) error {
	interests, metadata, err := marshalFields(s)
	if err != nil {
		return err
	}

	_, err = ss.db.sqlDB.Exec(
		"UPDATE subscribers SET email = ?, interests = ?, status = ?, confirm_token = ?, "+
			"unsubscribe_token = ?, subscribed_at = ?, confirmed_at = ?, unsubscribed_at = ?, "+
			"marketing_contact_id = ?, source = ?, metadata = ? WHERE id = ?",
		s.Email, interests, s.Status, nullString(s.ConfirmToken), s.UnsubscribeToken,
		s.SubscribedAt, nullTime(s.ConfirmedAt), nullTime(s.UnsubscribedAt),
		nullString(s.MarketingContactID), s.Source, metadata, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", s.ID, err)
	}

	return nil
}

// CountByStatus counts subscribers in the given status
func (ss *subscriberService) CountByStatus(status string) (int, error) {
	var count int
	if err := ss.db.sqlDB.QueryRow("SELECT COUNT(*) FROM subscribers WHERE status = ?", status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count by status: %w", err)
	}

	return count, nil
}

// List returns subscribers matching the filter, ordered by id. The interest
// filter is applied after the fetch: interests live in a JSON column.
func (ss *subscriberService) List(f newsletter.SubscriberFilter) ([]newsletter.Subscriber, error) {
	query := "SELECT " + subscriberColumns + " FROM subscribers"
	var conds []string
	var args []interface{}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.AfterID != "" {
		conds = append(conds, "id > ?")
		args = append(args, f.AfterID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows, err := ss.db.sqlDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list: %w", err)
	}
	defer rows.Close()

	var out []newsletter.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if f.Interest != "" && !s.HasInterest(f.Interest) {
			continue
		}
		out = append(out, *s)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}

	return out, rows.Err()
}

func (ss *subscriberService) findOne(op, query string, args ...interface{}) (*newsletter.Subscriber, error) {
	s, err := scanSubscriber(ss.db.sqlDB.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &newsletter.Error{Code: newsletter.ErrNotFound, Op: op, Message: "subscriber not found", Err: err}
		}
		return nil, &newsletter.Error{Code: newsletter.ErrInternal, Op: op, Err: err}
	}

	return s, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscriber(row scanner) (*newsletter.Subscriber, error) {
	var (
		s                newsletter.Subscriber
		interests        string
		confirmToken     sql.NullString
		confirmedAt      sql.NullTime
		unsubscribedAt   sql.NullTime
		marketingContact sql.NullString
		metadata         sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Email, &interests, &s.Status, &confirmToken, &s.UnsubscribeToken,
		&s.SubscribedAt, &confirmedAt, &unsubscribedAt, &marketingContact, &s.Source, &metadata); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(interests), &s.Interests); err != nil {
		return nil, fmt.Errorf("failed to decode interests: %w", err)
	}
	s.ConfirmToken = confirmToken.String
	s.MarketingContactID = marketingContact.String
	if confirmedAt.Valid {
		t := confirmedAt.Time
		s.ConfirmedAt = &t
	}
	if unsubscribedAt.Valid {
		t := unsubscribedAt.Time
		s.UnsubscribedAt = &t
	}
	if metadata.Valid && metadata.String != "" {
		var m newsletter.Metadata
		if err := json.Unmarshal([]byte(metadata.String), &m); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
		s.Metadata = &m
	}

	return &s, nil
}

func marshalFields(s *newsletter.Subscriber) (interests string, metadata interface{}, err error) {
	b, err := json.Marshal(s.Interests)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode interests: %w", err)
	}
	interests = string(b)

	if s.Metadata == nil {
		return interests, nil, nil
	}
	m, err := json.Marshal(s.Metadata)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	return interests, string(m), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
