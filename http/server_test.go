package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	tmock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/caribhq/newsletter"
	"github.com/caribhq/newsletter/mock"
)

var cfg *newsletter.Config

func TestMain(m *testing.M) {
	viper.SetConfigType("yaml")
	var yamlConfig = []byte(`
http:
  baseurl: https://carib.example.com

newsletter:
  from: hello@carib.example.com
  pages:
    confirmed: https://carib.example.com/subscription/confirmed
    unsubscribed: https://carib.example.com/subscription/goodbye

admin:
  token: test-admin-token

ratelimit:
  rps: 100
  burst: 100
`)
	if err := viper.ReadConfig(bytes.NewBuffer(yamlConfig)); err != nil {
		log.Fatal(err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatal(err)
	}

	os.Exit(m.Run())
}

type testServer struct {
	*Server
	subscribers *mock.SubscriberService
	newsletters *mock.NewsletterService
	marketing   *mock.MarketingService
	stats       *mock.StatsService
	queue       *mock.QueueService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s, err := NewServer(cfg)
	require.NoError(t, err)

	ts := &testServer{
		Server:      s,
		subscribers: new(mock.SubscriberService),
		newsletters: new(mock.NewsletterService),
		marketing:   new(mock.MarketingService),
		stats:       new(mock.StatsService),
		queue:       new(mock.QueueService),
	}
	s.SubscriberService = ts.subscribers
	s.NewsletterService = ts.newsletters
	s.MarketingService = ts.marketing
	s.StatsService = ts.stats
	s.QueueService = ts.queue

	return ts
}

func notFoundErr() error {
	return &newsletter.Error{Code: newsletter.ErrNotFound, Message: "subscriber not found"}
}

func subscribeBody(t *testing.T, email string, interests ...string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(newsletter.SubscribeRequest{Email: email, Interests: interests})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestSubscribeHandler(t *testing.T) {
	t.Parallel()

	const email = "foo@gmail.com"

	t.Run("new subscriber", func(t *testing.T) {
		ts := newTestServer(t)
		ts.subscribers.On("FindByEmail", email).Return(nil, notFoundErr())
		ts.subscribers.On("Insert", tmock.MatchedBy(func(sub *newsletter.Subscriber) bool {
			return sub.Email == email &&
				sub.Status == newsletter.StatusPending &&
				len(sub.ConfirmToken) == 32 &&
				len(sub.UnsubscribeToken) == 32 &&
				sub.Source == newsletter.DefaultSource
		})).Return(nil)
		ts.queue.On("Publish", tmock.Anything, newsletter.TopicSubscriberCreated, tmock.Anything).Return(nil)
		ts.newsletters.On("SendConfirmationEmail", email, tmock.Anything).Return(nil)

		req := httptest.NewRequest(http.MethodPost, "/subscribe", subscribeBody(t, email, newsletter.InterestAI))
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp newsletter.SubscribeResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Success)
		assert.True(t, resp.Pending)
		assert.Contains(t, resp.Message, email)
		ts.subscribers.AssertExpectations(t)
		ts.queue.AssertExpectations(t)
		ts.newsletters.AssertExpectations(t)
	})

	t.Run("pending resends same token", func(t *testing.T) {
		ts := newTestServer(t)
		pending := &newsletter.Subscriber{
			ID:           "id-1",
			Email:        email,
			Status:       newsletter.StatusPending,
			ConfirmToken: "existing-confirm-token",
		}
		ts.subscribers.On("FindByEmail", email).Return(pending, nil)
		ts.newsletters.On("SendConfirmationEmail", email, "existing-confirm-token").Return(nil)

		req := httptest.NewRequest(http.MethodPost, "/subscribe", subscribeBody(t, email, newsletter.InterestAI))
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp newsletter.SubscribeResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Pending)
		ts.subscribers.AssertNotCalled(t, "Insert", tmock.Anything)
		ts.subscribers.AssertNotCalled(t, "Update", tmock.Anything)
		ts.newsletters.AssertExpectations(t)
	})

	t.Run("active updates interests", func(t *testing.T) {
		ts := newTestServer(t)
		active := &newsletter.Subscriber{
			ID:        "id-2",
			Email:     email,
			Status:    newsletter.StatusActive,
			Interests: []string{newsletter.InterestAI},
		}
		ts.subscribers.On("FindByEmail", email).Return(active, nil)
		ts.subscribers.On("Update", tmock.MatchedBy(func(sub *newsletter.Subscriber) bool {
			return sub.Status == newsletter.StatusActive &&
				assert.ObjectsAreEqual([]string{newsletter.InterestAutomation, newsletter.InterestDataAnalysis}, sub.Interests)
		})).Return(nil)

		req := httptest.NewRequest(http.MethodPost, "/subscribe",
			subscribeBody(t, email, newsletter.InterestDataAnalysis, newsletter.InterestAutomation))
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp newsletter.SubscribeResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.AlreadySubscribed)
		assert.False(t, resp.Pending)
		ts.subscribers.AssertExpectations(t)
		ts.newsletters.AssertNotCalled(t, "SendConfirmationEmail", tmock.Anything, tmock.Anything)
	})

	t.Run("unsubscribed restarts confirmation", func(t *testing.T) {
		ts := newTestServer(t)
		then := time.Now().UTC().Add(-24 * time.Hour)
		former := &newsletter.Subscriber{
			ID:               "id-3",
			Email:            email,
			Status:           newsletter.StatusUnsubscribed,
			UnsubscribeToken: "stable-unsubscribe-token",
			UnsubscribedAt:   &then,
		}
		ts.subscribers.On("FindByEmail", email).Return(former, nil)
		ts.subscribers.On("Update", tmock.MatchedBy(func(sub *newsletter.Subscriber) bool {
			return sub.Status == newsletter.StatusPending &&
				len(sub.ConfirmToken) == 32 &&
				sub.UnsubscribeToken == "stable-unsubscribe-token" &&
				sub.UnsubscribedAt == nil
		})).Return(nil)
		ts.newsletters.On("SendConfirmationEmail", email, tmock.Anything).Return(nil)

		req := httptest.NewRequest(http.MethodPost, "/subscribe", subscribeBody(t, email, newsletter.InterestAI))
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp newsletter.SubscribeResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Pending)
		ts.subscribers.AssertExpectations(t)
		ts.newsletters.AssertExpectations(t)
	})

	t.Run("lost insert race falls back to stored record", func(t *testing.T) {
		ts := newTestServer(t)
		stored := &newsletter.Subscriber{
			ID:           "id-4",
			Email:        email,
			Status:       newsletter.StatusPending,
			ConfirmToken: "winner-confirm-token",
		}
		ts.subscribers.On("FindByEmail", email).Return(nil, notFoundErr()).Once()
		ts.subscribers.On("Insert", tmock.Anything).
			Return(&newsletter.Error{Code: newsletter.ErrConflict, Message: "email is already subscribed"})
		ts.subscribers.On("FindByEmail", email).Return(stored, nil).Once()
		ts.newsletters.On("SendConfirmationEmail", email, "winner-confirm-token").Return(nil)

		req := httptest.NewRequest(http.MethodPost, "/subscribe", subscribeBody(t, email, newsletter.InterestAI))
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		ts.subscribers.AssertExpectations(t)
		ts.newsletters.AssertExpectations(t)
	})

	t.Run("invalid email", func(t *testing.T) {
		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/subscribe", subscribeBody(t, "not-an-email", newsletter.InterestAI))
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		ts.subscribers.AssertNotCalled(t, "FindByEmail", tmock.Anything)
	})

	t.Run("no interests", func(t *testing.T) {
		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/subscribe", subscribeBody(t, email))
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown interest", func(t *testing.T) {
		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/subscribe", subscribeBody(t, email, "blockchain"))
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestConfirmHandler(t *testing.T) {
	t.Parallel()

	t.Run("activates pending subscriber", func(t *testing.T) {
		ts := newTestServer(t)
		pending := &newsletter.Subscriber{
			ID:               "id-1",
			Email:            "foo@gmail.com",
			Status:           newsletter.StatusPending,
			ConfirmToken:     "confirm-token",
			UnsubscribeToken: "unsubscribe-token",
		}
		ts.subscribers.On("FindByConfirmToken", "confirm-token").Return(pending, nil)
		ts.subscribers.On("Update", tmock.MatchedBy(func(sub *newsletter.Subscriber) bool {
			return sub.Status == newsletter.StatusActive &&
				sub.ConfirmToken == "" &&
				sub.ConfirmedAt != nil
		})).Return(nil)
		ts.marketing.On("AddContact", tmock.Anything, "foo@gmail.com", tmock.Anything).Return("contact-42", nil)
		ts.newsletters.On("SendWelcomeEmail", "foo@gmail.com", "unsubscribe-token").Return(nil)

		req := httptest.NewRequest(http.MethodGet, "/confirm?token=confirm-token", nil)
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp messageResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "contact-42", pending.MarketingContactID)
		ts.subscribers.AssertExpectations(t)
		ts.marketing.AssertExpectations(t)
		ts.newsletters.AssertExpectations(t)
	})

	t.Run("browser gets redirect", func(t *testing.T) {
		ts := newTestServer(t)
		pending := &newsletter.Subscriber{
			ID:           "id-2",
			Email:        "foo@gmail.com",
			Status:       newsletter.StatusPending,
			ConfirmToken: "confirm-token",
		}
		ts.subscribers.On("FindByConfirmToken", "confirm-token").Return(pending, nil)
		ts.subscribers.On("Update", tmock.Anything).Return(nil)
		ts.marketing.On("AddContact", tmock.Anything, tmock.Anything, tmock.Anything).Return("contact-1", nil)
		ts.newsletters.On("SendWelcomeEmail", tmock.Anything, tmock.Anything).Return(nil)

		req := httptest.NewRequest(http.MethodGet, "/confirm?token=confirm-token", nil)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, cfg.Newsletter.Pages.Confirmed, w.Header().Get("Location"))
	})

	t.Run("missing token", func(t *testing.T) {
		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodGet, "/confirm", nil)
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown or used token", func(t *testing.T) {
		ts := newTestServer(t)
		ts.subscribers.On("FindByConfirmToken", "gone").Return(nil, notFoundErr())

		req := httptest.NewRequest(http.MethodGet, "/confirm?token=gone", nil)
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		ts.subscribers.AssertNotCalled(t, "Update", tmock.Anything)
	})
}

func TestUnsubscribeHandler(t *testing.T) {
	t.Parallel()

	t.Run("unsubscribes active subscriber", func(t *testing.T) {
		ts := newTestServer(t)
		active := &newsletter.Subscriber{
			ID:                 "id-1",
			Email:              "foo@gmail.com",
			Status:             newsletter.StatusActive,
			UnsubscribeToken:   "unsubscribe-token",
			MarketingContactID: "contact-42",
		}
		ts.subscribers.On("FindByUnsubscribeToken", "unsubscribe-token").Return(active, nil)
		ts.subscribers.On("Update", tmock.MatchedBy(func(sub *newsletter.Subscriber) bool {
			return sub.Status == newsletter.StatusUnsubscribed && sub.UnsubscribedAt != nil
		})).Return(nil)
		ts.marketing.On("RemoveContact", tmock.Anything, "contact-42").Return(nil)
		ts.newsletters.On("SendGoodbyeEmail", "foo@gmail.com").Return(nil)

		req := httptest.NewRequest(http.MethodGet, "/unsubscribe?token=unsubscribe-token", nil)
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		ts.subscribers.AssertExpectations(t)
		ts.marketing.AssertExpectations(t)
		ts.newsletters.AssertExpectations(t)
	})

	t.Run("repeated unsubscribe is a no-op", func(t *testing.T) {
		ts := newTestServer(t)
		then := time.Now().UTC().Add(-time.Hour)
		gone := &newsletter.Subscriber{
			ID:               "id-2",
			Email:            "foo@gmail.com",
			Status:           newsletter.StatusUnsubscribed,
			UnsubscribeToken: "unsubscribe-token",
			UnsubscribedAt:   &then,
		}
		ts.subscribers.On("FindByUnsubscribeToken", "unsubscribe-token").Return(gone, nil)

		req := httptest.NewRequest(http.MethodGet, "/unsubscribe?token=unsubscribe-token", nil)
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, then, *gone.UnsubscribedAt)
		ts.subscribers.AssertNotCalled(t, "Update", tmock.Anything)
		ts.newsletters.AssertNotCalled(t, "SendGoodbyeEmail", tmock.Anything)
	})

	t.Run("unknown token", func(t *testing.T) {
		ts := newTestServer(t)
		ts.subscribers.On("FindByUnsubscribeToken", "nope").Return(nil, notFoundErr())

		req := httptest.NewRequest(http.MethodGet, "/unsubscribe?token=nope", nil)
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdminEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("missing token", func(t *testing.T) {
		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("stats", func(t *testing.T) {
		ts := newTestServer(t)
		ts.subscribers.On("CountByStatus", newsletter.StatusPending).Return(3, nil)
		ts.subscribers.On("CountByStatus", newsletter.StatusActive).Return(12, nil)
		ts.subscribers.On("CountByStatus", newsletter.StatusUnsubscribed).Return(1, nil)
		ts.stats.On("Recent", 30).Return([]newsletter.DailyStat{
			{Date: "2026-08-31", TotalSubscriptions: 2, ByInterest: map[string]int{newsletter.InterestAI: 2}},
		}, nil)

		req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
		req.Header.Set("Authorization", "Bearer test-admin-token")
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp statsResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 3, resp.Pending)
		assert.Equal(t, 12, resp.Active)
		assert.Equal(t, 1, resp.Unsubscribed)
		require.Len(t, resp.Daily, 1)
		assert.Equal(t, 2, resp.Daily[0].TotalSubscriptions)
	})

	t.Run("list subscribers with cursor", func(t *testing.T) {
		ts := newTestServer(t)
		page := make([]newsletter.Subscriber, 2)
		page[0] = newsletter.Subscriber{ID: "id-1", Email: "a@gmail.com", Status: newsletter.StatusActive}
		page[1] = newsletter.Subscriber{ID: "id-2", Email: "b@gmail.com", Status: newsletter.StatusActive}
		ts.subscribers.On("List", newsletter.SubscriberFilter{
			Status: newsletter.StatusActive,
			Limit:  2,
		}).Return(page, nil)

		req := httptest.NewRequest(http.MethodGet, "/admin/subscribers?status=active&limit=2", nil)
		req.Header.Set("Authorization", "Bearer test-admin-token")
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp subscriberListResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Len(t, resp.Subscribers, 2)
		assert.Equal(t, "id-2", resp.NextCursor)
	})

	t.Run("list rejects unknown status", func(t *testing.T) {
		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodGet, "/admin/subscribers?status=banned", nil)
		req.Header.Set("Authorization", "Bearer test-admin-token")
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("send newsletter", func(t *testing.T) {
		ts := newTestServer(t)
		active := []newsletter.Subscriber{
			{ID: "id-1", Email: "a@gmail.com", Status: newsletter.StatusActive},
		}
		ts.subscribers.On("List", newsletter.SubscriberFilter{Status: newsletter.StatusActive}).Return(active, nil)

		sent := make(chan struct{})
		ts.newsletters.On("SendNewsletter", active, "August issue", "<p>Hi</p>").
			Run(func(tmock.Arguments) { close(sent) }).Return()

		body, err := json.Marshal(newsletter.NewsletterIssueRequest{Subject: "August issue", Body: "<p>Hi</p>"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/admin/newsletter", bytes.NewBuffer(body))
		req.Header.Set("Authorization", "Bearer test-admin-token")
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		require.Equal(t, http.StatusAccepted, w.Code)
		select {
		case <-sent:
		case <-time.After(time.Second):
			t.Fatal("newsletter was not dispatched")
		}
		assert.Contains(t, w.Body.String(), "1 subscribers")
	})

	t.Run("send newsletter requires subject and body", func(t *testing.T) {
		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/admin/newsletter", strings.NewReader(`{"subject":"x"}`))
		req.Header.Set("Authorization", "Bearer test-admin-token")
		w := httptest.NewRecorder()
		ts.serveHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSubscribeRateLimit(t *testing.T) {
	t.Parallel()

	limited := *cfg
	limited.RateLimit.RPS = 1
	limited.RateLimit.Burst = 1
	s, err := NewServer(&limited)
	require.NoError(t, err)

	subscribers := new(mock.SubscriberService)
	subscribers.On("FindByEmail", tmock.Anything).Return(nil, notFoundErr())
	subscribers.On("Insert", tmock.Anything).Return(nil)
	s.SubscriberService = subscribers
	newsletters := new(mock.NewsletterService)
	newsletters.On("SendConfirmationEmail", tmock.Anything, tmock.Anything).Return(nil)
	s.NewsletterService = newsletters

	first := httptest.NewRequest(http.MethodPost, "/subscribe", subscribeBody(t, "foo@gmail.com", newsletter.InterestAI))
	w := httptest.NewRecorder()
	s.serveHTTP(w, first)
	require.Equal(t, http.StatusOK, w.Code)

	second := httptest.NewRequest(http.MethodPost, "/subscribe", subscribeBody(t, "bar@gmail.com", newsletter.InterestAI))
	w = httptest.NewRecorder()
	s.serveHTTP(w, second)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, fmt.Sprintf("%d", retryAfterSecs), w.Header().Get("Retry-After"))
}

func TestHealthCheckHandler(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	ts.serveHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
