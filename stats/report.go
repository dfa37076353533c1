package stats

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/caribhq/newsletter"
)

const reportWindowDays = 7

// Reporter mails the recent signup counters to the admin address on a cron
// schedule.
type Reporter struct {
	cron       *cron.Cron
	spec       string
	to         string
	stats      newsletter.StatsService
	newsletter newsletter.NewsletterService
	logger     zerolog.Logger
}

func NewReporter(spec, to string, stats newsletter.StatsService, ns newsletter.NewsletterService, logger zerolog.Logger) *Reporter {
	return &Reporter{
		cron:       cron.New(),
		spec:       spec,
		to:         to,
		stats:      stats,
		newsletter: ns,
		logger:     logger,
	}
}

// Start registers the schedule and starts the cron loop.
func (r *Reporter) Start() error {
	if _, err := r.cron.AddFunc(r.spec, r.send); err != nil {
		return err
	}
	r.cron.Start()

	return nil
}

// Stop halts the cron loop; a send already in flight finishes.
func (r *Reporter) Stop() {
	r.cron.Stop()
}

func (r *Reporter) send() {
	stats, err := r.stats.Recent(reportWindowDays)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to load stats for report")
		return
	}
	if len(stats) == 0 {
		r.logger.Info().Msg("no signups in report window, skipping report")
		return
	}

	if err := r.newsletter.SendStatsReport(r.to, stats); err != nil {
		r.logger.Error().Err(err).Msg("failed to send stats report")
	}
}
