package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"
	uuid "github.com/satori/go.uuid"

	"github.com/caribhq/newsletter"
	"github.com/caribhq/newsletter/pkg/token"
)

const (
	confirmationMessage = "A confirmation email has been sent to %s. Click the link in the email to activate your subscription. Check your spam folder if you don't see it within a couple of minutes."
	resendMessage       = "Your subscription is still pending. We sent the confirmation email again - check your inbox."
	updatedMessage      = "Your subscription preferences have been updated."
)

// subscribeHandler drives the signup state machine: create a pending record
// for a new email, resend the confirmation while pending, replace interests
// while active, and restart the confirmation cycle after an unsubscribe.
func (s *Server) subscribeHandler(w http.ResponseWriter, r *http.Request) error {
	var req newsletter.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return NewError(err, http.StatusBadRequest, "Invalid request body.")
	}

	email := newsletter.NormalizeEmail(req.Email)
	if !newsletter.ValidateEmail(email) {
		return NewError(nil, http.StatusBadRequest, "A valid email address is required.")
	}
	interests, err := newsletter.NormalizeInterests(req.Interests)
	if err != nil {
		return err
	}

	logger := hlog.FromRequest(r)

	sub, err := s.SubscriberService.FindByEmail(email)
	switch {
	case err == nil:
		return s.subscribeExisting(w, r, sub, interests)
	case newsletter.ErrorCode(err) == newsletter.ErrNotFound:
	default:
		return err
	}

	source := req.Source
	if source == "" {
		source = newsletter.DefaultSource
	}
	sub = &newsletter.Subscriber{
		ID:               uuid.NewV4().String(),
		Email:            email,
		Interests:        interests,
		Status:           newsletter.StatusPending,
		ConfirmToken:     token.New(),
		UnsubscribeToken: token.New(),
		SubscribedAt:     time.Now().UTC(),
		Source:           source,
		Metadata:         req.Metadata,
	}

	logger.Info().Str("email", email).Msg("saving new subscriber")
	if err := s.SubscriberService.Insert(sub); err != nil {
		if newsletter.ErrorCode(err) != newsletter.ErrConflict {
			return err
		}
		// lost a create race: another request inserted this email between
		// the lookup and the write. Continue on the stored record.
		existing, ferr := s.SubscriberService.FindByEmail(email)
		if ferr != nil {
			return ferr
		}
		return s.subscribeExisting(w, r, existing, interests)
	}

	s.publishSubscriberCreated(r, sub)
	s.bestEffort(r, "send confirmation email", func() error {
		return s.NewsletterService.SendConfirmationEmail(sub.Email, sub.ConfirmToken)
	})

	writeJSONResponse(w, http.StatusOK, &newsletter.SubscribeResponse{
		Success: true,
		Message: fmt.Sprintf(confirmationMessage, sub.Email),
		Pending: true,
	})

	return nil
}

func (s *Server) subscribeExisting(w http.ResponseWriter, r *http.Request, sub *newsletter.Subscriber, interests []string) error {
	logger := hlog.FromRequest(r)

	switch sub.Status {
	case newsletter.StatusPending:
		// same confirm token, no new record
		logger.Info().Str("email", sub.Email).Msg("resending confirmation email")
		s.bestEffort(r, "resend confirmation email", func() error {
			return s.NewsletterService.SendConfirmationEmail(sub.Email, sub.ConfirmToken)
		})
		writeJSONResponse(w, http.StatusOK, &newsletter.SubscribeResponse{
			Success: true,
			Message: resendMessage,
			Pending: true,
		})

	case newsletter.StatusActive:
		sub.Interests = interests
		if err := s.SubscriberService.Update(sub); err != nil {
			return err
		}
		writeJSONResponse(w, http.StatusOK, &newsletter.SubscribeResponse{
			Success:           true,
			Message:           updatedMessage,
			AlreadySubscribed: true,
		})

	default:
		// unsubscribed: restart the confirmation cycle with a fresh confirm
		// token; the unsubscribe token is stable for the record's lifetime
		sub.Status = newsletter.StatusPending
		sub.Interests = interests
		sub.ConfirmToken = token.New()
		sub.SubscribedAt = time.Now().UTC()
		sub.UnsubscribedAt = nil
		if err := s.SubscriberService.Update(sub); err != nil {
			return err
		}
		logger.Info().Str("email", sub.Email).Msg("resubscribing former subscriber")
		s.bestEffort(r, "send confirmation email", func() error {
			return s.NewsletterService.SendConfirmationEmail(sub.Email, sub.ConfirmToken)
		})
		writeJSONResponse(w, http.StatusOK, &newsletter.SubscribeResponse{
			Success: true,
			Message: fmt.Sprintf(confirmationMessage, sub.Email),
			Pending: true,
		})
	}

	return nil
}

func (s *Server) publishSubscriberCreated(r *http.Request, sub *newsletter.Subscriber) {
	if s.QueueService == nil {
		return
	}
	s.bestEffort(r, "publish subscriber created event", func() error {
		body, err := json.Marshal(newsletter.SubscriberCreatedEvent{
			Email:     sub.Email,
			Interests: sub.Interests,
			CreatedAt: sub.SubscribedAt,
		})
		if err != nil {
			return err
		}
		return s.QueueService.Publish(r.Context(), newsletter.TopicSubscriberCreated, body)
	})
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	//nolint:errcheck
	json.NewEncoder(w).Encode(response)
}
