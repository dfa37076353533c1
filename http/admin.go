package http

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/caribhq/newsletter"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

func (s *Server) adminOnly(next appHandler) appHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.Config.Admin.Token == "" || !ok ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.Config.Admin.Token)) != 1 {
			return NewError(nil, http.StatusUnauthorized, "invalid admin token")
		}
		return next(w, r)
	}
}

type statsResponse struct {
	Pending      int                    `json:"pending"`
	Active       int                    `json:"active"`
	Unsubscribed int                    `json:"unsubscribed"`
	Daily        []newsletter.DailyStat `json:"daily"`
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) error {
	pending, err := s.SubscriberService.CountByStatus(newsletter.StatusPending)
	if err != nil {
		return err
	}
	active, err := s.SubscriberService.CountByStatus(newsletter.StatusActive)
	if err != nil {
		return err
	}
	unsubscribed, err := s.SubscriberService.CountByStatus(newsletter.StatusUnsubscribed)
	if err != nil {
		return err
	}

	daily, err := s.StatsService.Recent(30)
	if err != nil {
		return err
	}

	writeJSONResponse(w, http.StatusOK, &statsResponse{
		Pending:      pending,
		Active:       active,
		Unsubscribed: unsubscribed,
		Daily:        daily,
	})

	return nil
}

type subscriberListResponse struct {
	Subscribers []newsletter.Subscriber `json:"subscribers"`
	NextCursor  string                  `json:"nextCursor,omitempty"`
}

func (s *Server) listSubscribersHandler(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	filter := newsletter.SubscriberFilter{
		Status:   q.Get("status"),
		Interest: q.Get("interest"),
		AfterID:  q.Get("after"),
		Limit:    defaultPageLimit,
	}

	switch filter.Status {
	case "", newsletter.StatusPending, newsletter.StatusActive, newsletter.StatusUnsubscribed:
	default:
		return NewError(nil, http.StatusBadRequest, fmt.Sprintf("unknown status: %s", filter.Status))
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return NewError(err, http.StatusBadRequest, "limit must be a positive integer")
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
		filter.Limit = limit
	}

	subscribers, err := s.SubscriberService.List(filter)
	if err != nil {
		return err
	}

	resp := &subscriberListResponse{
		Subscribers: subscribers,
	}
	if len(subscribers) == filter.Limit {
		resp.NextCursor = subscribers[len(subscribers)-1].ID
	}
	writeJSONResponse(w, http.StatusOK, resp)

	return nil
}

func (s *Server) sendNewsletterHandler(w http.ResponseWriter, r *http.Request) error {
	var req newsletter.NewsletterIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return NewError(err, http.StatusBadRequest, "invalid request body")
	}
	if req.Subject == "" || req.Body == "" {
		return NewError(nil, http.StatusBadRequest, "subject and body are required")
	}

	subscribers, err := s.SubscriberService.List(newsletter.SubscriberFilter{
		Status: newsletter.StatusActive,
	})
	if err != nil {
		return err
	}

	go s.NewsletterService.SendNewsletter(subscribers, req.Subject, req.Body)

	writeJSONResponse(w, http.StatusAccepted, &messageResponse{
		Success: true,
		Message: fmt.Sprintf("Sending newsletter to %d subscribers.", len(subscribers)),
	})

	return nil
}
