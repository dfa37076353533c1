package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/caribhq/newsletter"
)

// NewsletterService is a mock implementation of newsletter.NewsletterService
type NewsletterService struct {
	mock.Mock
}

func (m *NewsletterService) SendConfirmationEmail(to, token string) error {
	args := m.Called(to, token)
	return args.Error(0)
}

func (m *NewsletterService) SendWelcomeEmail(to, unsubscribeToken string) error {
	args := m.Called(to, unsubscribeToken)
	return args.Error(0)
}

func (m *NewsletterService) SendGoodbyeEmail(to string) error {
	args := m.Called(to)
	return args.Error(0)
}

func (m *NewsletterService) SendStatsReport(to string, stats []newsletter.DailyStat) error {
	args := m.Called(to, stats)
	return args.Error(0)
}

func (m *NewsletterService) SendNewsletter(subscribers []newsletter.Subscriber, subject, body string) {
	m.Called(subscribers, subject, body)
}

// MarketingService is a mock implementation of newsletter.MarketingService
type MarketingService struct {
	mock.Mock
}

func (m *MarketingService) AddContact(ctx context.Context, email string, interests []string) (string, error) {
	args := m.Called(ctx, email, interests)
	return args.String(0), args.Error(1)
}

func (m *MarketingService) RemoveContact(ctx context.Context, contactID string) error {
	args := m.Called(ctx, contactID)
	return args.Error(0)
}

// StatsService is a mock implementation of newsletter.StatsService
type StatsService struct {
	mock.Mock
}

func (m *StatsService) RecordSignup(date string, interests []string) error {
	args := m.Called(date, interests)
	return args.Error(0)
}

func (m *StatsService) Recent(n int) ([]newsletter.DailyStat, error) {
	args := m.Called(n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]newsletter.DailyStat), args.Error(1)
}

// QueueService is a mock implementation of newsletter.QueueService
type QueueService struct {
	mock.Mock
}

func (m *QueueService) Publish(ctx context.Context, topic string, body []byte) error {
	args := m.Called(ctx, topic, body)
	return args.Error(0)
}

func (m *QueueService) Consume(ctx context.Context, topic string) (<-chan []byte, error) {
	args := m.Called(ctx, topic)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan []byte), args.Error(1)
}
