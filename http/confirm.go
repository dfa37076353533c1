package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/caribhq/newsletter"
)

const (
	confirmedMessage    = "Your subscription is confirmed. Welcome aboard!"
	invalidTokenMessage = "This confirmation link is invalid or has already been used."
)

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) confirmHandler(w http.ResponseWriter, r *http.Request) error {
	confirmToken := r.URL.Query().Get("token")
	if confirmToken == "" {
		return NewError(nil, http.StatusBadRequest, "token is required")
	}

	sub, err := s.SubscriberService.FindByConfirmToken(confirmToken)
	if err != nil {
		if newsletter.ErrorCode(err) == newsletter.ErrNotFound {
			// a wrong token and an already-used one are indistinguishable
			// on purpose: the response must not leak subscription state
			return NewError(err, http.StatusNotFound, invalidTokenMessage)
		}
		return err
	}

	now := time.Now().UTC()
	sub.Status = newsletter.StatusActive
	sub.ConfirmedAt = &now
	sub.ConfirmToken = ""
	if err := s.SubscriberService.Update(sub); err != nil {
		return err
	}

	if s.MarketingService != nil {
		s.bestEffort(r, "add contact to marketing list", func() error {
			contactID, err := s.MarketingService.AddContact(r.Context(), sub.Email, sub.Interests)
			if err != nil {
				return err
			}
			sub.MarketingContactID = contactID
			return s.SubscriberService.Update(sub)
		})
	}

	s.bestEffort(r, "send welcome email", func() error {
		return s.NewsletterService.SendWelcomeEmail(sub.Email, sub.UnsubscribeToken)
	})

	if wantsHTML(r) && s.Config.Newsletter.Pages.Confirmed != "" {
		http.Redirect(w, r, s.Config.Newsletter.Pages.Confirmed, http.StatusFound)
		return nil
	}
	writeJSONResponse(w, http.StatusOK, &messageResponse{
		Success: true,
		Message: confirmedMessage,
	})

	return nil
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
