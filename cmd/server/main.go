// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/phishdrill-backend/internal/app"
	"github.com/unclebandit/phishdrill-backend/internal/config"
	"github.com/unclebandit/phishdrill-backend/internal/logger"
	"github.com/unclebandit/phishdrill-backend/internal/queue"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := app.OpenStores(ctx, cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open storage")
	}
	defer closeStores()

	locker, closeLocker, err := app.OpenLocker(ctx, cfg.Redis, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer closeLocker()

	clicks, closeQueue, err := app.OpenClickQueue(cfg.Queue, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to queue")
	}
	defer closeQueue()

	services := app.NewServices(cfg, stores, app.Deps{Clicks: clicks, Locker: locker}, log)

	if err := queue.StartClickSubscriber(clicks, services.Analytics, log); err != nil {
		log.WithError(err).Fatal("failed to start click subscriber")
	}

	if cfg.Scheduler.Disabled {
		log.Info("scheduler disabled; run cmd/worker to dispatch campaigns")
	} else {
		services.Scheduler.Start(ctx)
		defer services.Scheduler.Stop()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      services.Router(cfg, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
