package http

import (
	"net/http"
	"time"

	"github.com/caribhq/newsletter"
)

const (
	unsubscribedMessage     = "You have been unsubscribed. Sorry to see you go."
	invalidUnsubscribeToken = "This unsubscribe link is invalid."
)

func (s *Server) unsubscribeHandler(w http.ResponseWriter, r *http.Request) error {
	unsubscribeToken := r.URL.Query().Get("token")
	if unsubscribeToken == "" {
		return NewError(nil, http.StatusBadRequest, "token is required")
	}

	sub, err := s.SubscriberService.FindByUnsubscribeToken(unsubscribeToken)
	if err != nil {
		if newsletter.ErrorCode(err) == newsletter.ErrNotFound {
			return NewError(err, http.StatusNotFound, invalidUnsubscribeToken)
		}
		return err
	}

	if sub.Status != newsletter.StatusUnsubscribed {
		now := time.Now().UTC()
		sub.Status = newsletter.StatusUnsubscribed
		sub.UnsubscribedAt = &now
		sub.ConfirmToken = ""
		if err := s.SubscriberService.Update(sub); err != nil {
			return err
		}

		if s.MarketingService != nil && sub.MarketingContactID != "" {
			s.bestEffort(r, "remove contact from marketing list", func() error {
				return s.MarketingService.RemoveContact(r.Context(), sub.MarketingContactID)
			})
		}

		s.bestEffort(r, "send goodbye email", func() error {
			return s.NewsletterService.SendGoodbyeEmail(sub.Email)
		})
	}

	if wantsHTML(r) && s.Config.Newsletter.Pages.Unsubscribed != "" {
		http.Redirect(w, r, s.Config.Newsletter.Pages.Unsubscribed, http.StatusFound)
		return nil
	}
	writeJSONResponse(w, http.StatusOK, &messageResponse{
		Success: true,
		Message: unsubscribedMessage,
	})

	return nil
}
