// Package stats reacts to subscriber-created events and keeps the per-day
// signup counters. It runs outside the request path: a failure here never
// affects a subscribe call.
package stats

import (
	"context"
	"encoding/json"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/caribhq/newsletter"
)

// Aggregator consumes subscriber-created events and increments DailyStat
// counters.
type Aggregator struct {
	queue  newsletter.QueueService
	stats  newsletter.StatsService
	logger zerolog.Logger
}

func NewAggregator(queue newsletter.QueueService, stats newsletter.StatsService, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		queue:  queue,
		stats:  stats,
		logger: logger,
	}
}

// Run subscribes to the event topic and processes events until ctx is
// canceled. It returns once the subscription is established.
func (a *Aggregator) Run(ctx context.Context) error {
	messages, err := a.queue.Consume(ctx, newsletter.TopicSubscriberCreated)
	if err != nil {
		return err
	}

	go func() {
		for body := range messages {
			a.handle(body)
		}
	}()

	return nil
}

func (a *Aggregator) handle(body []byte) {
	var event newsletter.SubscriberCreatedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		a.logger.Warn().Err(err).Msg("dropping malformed subscriber event")
		return
	}

	date := event.CreatedAt.UTC().Format(newsletter.StatDateLayout)
	if err := a.stats.RecordSignup(date, event.Interests); err != nil {
		a.logger.Error().Err(err).Str("date", date).Msg("failed to record signup")
		sentry.CaptureException(err)
	}
}
