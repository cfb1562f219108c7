package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/phishdrill-backend/internal/app"
	"github.com/unclebandit/phishdrill-backend/internal/config"
	"github.com/unclebandit/phishdrill-backend/internal/logger"
	"github.com/unclebandit/phishdrill-backend/internal/queue"
)

// The worker runs the scheduler and the high-click consumer without the HTTP
// surface. Several workers may run at once; campaign locks keep dispatch
// single-flight when they share Redis.
func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the YAML config file")
	once := flag.Bool("once", false, "run a single scheduler tick and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format).WithField("worker_id", uuid.NewString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once, log); err != nil {
		log.WithError(err).Fatal("worker failed")
	}
	log.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, once bool, log logrus.FieldLogger) error {
	stores, closeStores, err := app.OpenStores(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeStores()

	locker, closeLocker, err := app.OpenLocker(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	var clicks queue.Queue
	if cfg.Queue.AMQPURL != "" {
		q, closeQueue, err := app.OpenClickQueue(cfg.Queue, log)
		if err != nil {
			return err
		}
		defer closeQueue()
		clicks = q
	}

	services := app.NewServices(cfg, stores, app.Deps{Clicks: clicks, Locker: locker}, log)

	if once {
		res := services.Scheduler.Tick(ctx)
		log.WithFields(logrus.Fields{
			"started":   res.Started,
			"completed": res.Completed,
			"failed":    res.Failed,
		}).Info("tick finished")
		return nil
	}

	if clicks != nil {
		if err := queue.StartClickSubscriber(clicks, services.Analytics, log); err != nil {
			return err
		}
		log.WithField("topic", queue.TopicCampaignClicks).Info("consuming click events")
	} else {
		log.Info("AMQP_URL not set, high-click alerts are evaluated by the server")
	}

	services.Scheduler.Start(ctx)
	log.Info("worker running")
	<-ctx.Done()

	log.Info("shutting down worker")
	services.Scheduler.Stop()
	return nil
}
