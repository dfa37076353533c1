package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/caribhq/newsletter"
	"github.com/caribhq/newsletter/bolt"
	"github.com/caribhq/newsletter/http"
	"github.com/caribhq/newsletter/marketing"
	"github.com/caribhq/newsletter/memq"
	"github.com/caribhq/newsletter/rabbitmq"
	"github.com/caribhq/newsletter/smtp"
	"github.com/caribhq/newsletter/sqlite"
	"github.com/caribhq/newsletter/stats"
)

func main() {
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}

	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("db.type", "bolt")
	viper.SetDefault("db.path", "newsletter.db")

	var config *newsletter.Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatal(err)
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn: config.Sentry.DSN,
	}); err != nil {
		log.Fatalf("sentry.Init: %v", err)
	}
	defer sentry.Flush(2 * time.Second)

	a := newApp(config)

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		_ = a.Close()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	<-ctx.Done()

	if err := a.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	config     *newsletter.Config
	db         newsletter.Database
	queue      newsletter.QueueService
	reporter   *stats.Reporter
	httpServer *http.Server
}

func newApp(config *newsletter.Config) *app {
	httpServer, err := http.NewServer(config)
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
	return &app{
		config:     config,
		httpServer: httpServer,
	}
}

func (a *app) Run(ctx context.Context) error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	var (
		subscriberService newsletter.SubscriberService
		statsService      newsletter.StatsService
	)
	switch a.config.DB.Type {
	case "sqlite":
		db := sqlite.NewDB(a.config.DB.Path)
		if err := db.Open(); err != nil {
			return err
		}
		a.db = db
		subscriberService = sqlite.NewSubscriberService(db)
		statsService = sqlite.NewStatsService(db)
	default:
		db := bolt.NewDB(a.config.DB.Path)
		if err := db.Open(); err != nil {
			return err
		}
		a.db = db
		subscriberService = bolt.NewSubscriberService(db)
		statsService = bolt.NewStatsService(db)
	}

	if a.config.AMQP.URL != "" {
		queue, err := rabbitmq.NewQueueService(a.config.AMQP.URL)
		if err != nil {
			return err
		}
		a.queue = queue
	} else {
		a.queue = memq.New()
	}

	a.httpServer.Addr = a.config.HTTP.Addr

	if err := a.httpServer.Open(); err != nil {
		return err
	}

	a.httpServer.SubscriberService = subscriberService
	a.httpServer.StatsService = statsService
	a.httpServer.QueueService = a.queue
	a.httpServer.NewsletterService = smtp.NewNewsletterService(a.config, a.httpServer.URL())

	if client := marketing.NewClient(a.config); client.Configured() {
		a.httpServer.MarketingService = client
	}

	aggregator := stats.NewAggregator(a.queue, statsService, logger)
	if err := aggregator.Run(ctx); err != nil {
		return err
	}

	if a.config.Stats.Report.Cron.Spec != "" && a.config.Admin.Email != "" {
		a.reporter = stats.NewReporter(
			a.config.Stats.Report.Cron.Spec,
			a.config.Admin.Email,
			statsService,
			a.httpServer.NewsletterService,
			logger,
		)
		if err := a.reporter.Start(); err != nil {
			return err
		}
	}

	logger.Info().Str("addr", a.config.HTTP.Addr).Str("db", a.config.DB.Type).Msg("newsletterd is up")

	return nil
}

func (a *app) Close() error {
	if a.reporter != nil {
		a.reporter.Stop()
	}

	if q, ok := a.queue.(*rabbitmq.QueueService); ok {
		if err := q.Close(); err != nil {
			return err
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Close(); err != nil {
			return err
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return err
		}
	}

	return nil
}
