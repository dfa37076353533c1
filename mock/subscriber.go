package mock

import (
	"github.com/stretchr/testify/mock"

	"github.com/caribhq/newsletter"
)

// SubscriberService is a mock implementation of newsletter.SubscriberService
type SubscriberService struct {
	mock.Mock
}

func (m *SubscriberService) FindByEmail(email string) (*newsletter.Subscriber, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*newsletter.Subscriber), args.Error(1)
}

func (m *SubscriberService) FindByConfirmToken(token string) (*newsletter.Subscriber, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*newsletter.Subscriber), args.Error(1)
}

func (m *SubscriberService) FindByUnsubscribeToken(token string) (*newsletter.Subscriber, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*newsletter.Subscriber), args.Error(1)
}

func (m *SubscriberService) Insert(s *newsletter.Subscriber) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *SubscriberService) Update(s *newsletter.Subscriber) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *SubscriberService) CountByStatus(status string) (int, error) {
	args := m.Called(status)
	return args.Int(0), args.Error(1)
}

func (m *SubscriberService) List(f newsletter.SubscriberFilter) ([]newsletter.Subscriber, error) {
	args := m.Called(f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]newsletter.Subscriber), args.Error(1)
}
