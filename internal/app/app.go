// Package app wires configuration, storage and services together for the
// server, worker and seeder commands.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/phishdrill-backend/internal/config"
	"github.com/unclebandit/phishdrill-backend/internal/controller"
	"github.com/unclebandit/phishdrill-backend/internal/db"
	"github.com/unclebandit/phishdrill-backend/internal/handler"
	"github.com/unclebandit/phishdrill-backend/internal/mailer"
	"github.com/unclebandit/phishdrill-backend/internal/pkg/distlock"
	"github.com/unclebandit/phishdrill-backend/internal/queue"
	"github.com/unclebandit/phishdrill-backend/internal/repository"
	"github.com/unclebandit/phishdrill-backend/internal/repository/memory"
	"github.com/unclebandit/phishdrill-backend/internal/service"
)

// Stores is one storage backend seen through the repository contracts.
type Stores struct {
	Campaigns repository.CampaignStore
	Targets   repository.TargetStore
	Events    repository.EventStore
	Employees repository.EmployeeStore
}

func PostgresStores(conn *sql.DB) Stores {
	return Stores{
		Campaigns: &repository.CampaignRepository{DB: conn},
		Targets:   &repository.TargetRepository{DB: conn},
		Events:    &repository.EventRepository{DB: conn},
		Employees: &repository.EmployeeRepository{DB: conn},
	}
}

func MemoryStores(s *memory.Store) Stores {
	return Stores{
		Campaigns: s.Campaigns,
		Targets:   s.Targets,
		Events:    s.Events,
		Employees: s.Employees,
	}
}

// OpenStores connects the configured driver and applies the schema for
// Postgres. The returned close func is never nil.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, log logrus.FieldLogger) (Stores, func() error, error) {
	switch cfg.Driver {
	case "memory":
		log.Warn("using in-memory storage; data is lost on restart")
		return MemoryStores(memory.NewStore()), func() error { return nil }, nil
	case "postgres", "":
		conn, err := db.Open(ctx, cfg, log)
		if err != nil {
			return Stores{}, nil, err
		}
		if err := db.Migrate(ctx, conn); err != nil {
			conn.Close()
			return Stores{}, nil, err
		}
		return PostgresStores(conn), conn.Close, nil
	default:
		return Stores{}, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenLocker returns a Redis-backed locker when an address is configured and
// an in-process one otherwise.
func OpenLocker(ctx context.Context, cfg config.RedisConfig, log logrus.FieldLogger) (distlock.Locker, func() error, error) {
	if cfg.Addr == "" {
		log.Info("REDIS_ADDR not set, campaign locks are process-local")
		return distlock.NewLocalLocker(), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	log.WithField("redis_addr", cfg.Addr).Info("connected to redis")
	return distlock.NewLocker(client), client.Close, nil
}

// OpenClickQueue returns the durable AMQP queue when configured, otherwise
// an in-process queue.
func OpenClickQueue(cfg config.QueueConfig, log logrus.FieldLogger) (queue.Queue, func() error, error) {
	if cfg.AMQPURL == "" {
		return queue.NewInMemoryQueue(log), func() error { return nil }, nil
	}
	q, err := queue.DialAMQP(cfg.AMQPURL, log)
	if err != nil {
		return nil, nil, err
	}
	return q, q.Close, nil
}

// Deps are the collaborators that differ between processes and tests.
type Deps struct {
	Transports mailer.Factory
	Clicks     queue.Queue
	Locker     distlock.Locker
	Now        func() time.Time
}

type Services struct {
	Templates  *service.TemplateCatalog
	Allowlist  *service.AllowlistService
	Targets    *service.TargetService
	Recorder   *service.EventRecorder
	Campaigns  *service.CampaignService
	Dispatcher *service.Dispatcher
	Analytics  *service.AnalyticsService
	Tracking   *service.TrackingService
	Scheduler  *service.Scheduler
}

func NewServices(cfg *config.Config, stores Stores, deps Deps, log logrus.FieldLogger) *Services {
	if deps.Transports == nil {
		deps.Transports = mailer.NewFactory(log)
	}
	if deps.Locker == nil {
		deps.Locker = distlock.NewLocalLocker()
	}

	s := &Services{Templates: service.NewTemplateCatalog()}
	s.Allowlist = service.NewAllowlistService(stores.Employees, cfg.Safety.DoNotSendDomains, log)
	s.Targets = &service.TargetService{
		Targets:   stores.Targets,
		Allowlist: s.Allowlist,
		Tokens:    service.SHA256TokenGenerator{},
	}
	s.Recorder = &service.EventRecorder{
		Events: stores.Events,
		Salt:   cfg.Safety.IPHashSalt,
		Now:    deps.Now,
	}
	s.Campaigns = &service.CampaignService{
		Campaigns: stores.Campaigns,
		Targets:   s.Targets,
		Templates: s.Templates,
		Locker:    deps.Locker,
		Now:       deps.Now,
		Log:       log.WithField("component", "campaigns"),
	}
	s.Dispatcher = &service.Dispatcher{
		Campaigns:   stores.Campaigns,
		Targets:     stores.Targets,
		Recorder:    s.Recorder,
		Templates:   s.Templates,
		Transports:  deps.Transports,
		TrackingURL: cfg.Server.PublicTrackingURL(),
		DefaultFrom: cfg.Mail.From,
		DebriefURL:  cfg.Mail.DebriefURL,
		Log:         log.WithField("component", "dispatcher"),
	}
	s.Analytics = &service.AnalyticsService{
		Campaigns:   stores.Campaigns,
		Recorder:    s.Recorder,
		Transports:  deps.Transports,
		DefaultFrom: cfg.Mail.From,
		Log:         log.WithField("component", "analytics"),
	}
	s.Tracking = &service.TrackingService{
		Targets:  stores.Targets,
		Recorder: s.Recorder,
		Clicks:   deps.Clicks,
		Notifier: s.Analytics,
		Log:      log.WithField("component", "tracking"),
	}
	s.Scheduler = &service.Scheduler{
		Campaigns:  stores.Campaigns,
		Dispatcher: s.Dispatcher,
		Locker:     deps.Locker,
		Interval:   cfg.Scheduler.Interval(),
		Now:        deps.Now,
		Log:        log.WithField("component", "scheduler"),
	}
	return s
}

// Router builds the HTTP surface over the services.
func (s *Services) Router(cfg *config.Config, log logrus.FieldLogger) *chi.Mux {
	api := &controller.API{
		Campaigns: &controller.CampaignController{
			CampaignService:  s.Campaigns,
			AnalyticsService: s.Analytics,
			Recorder:         s.Recorder,
			Log:              log,
		},
		Allowlist: &controller.AllowlistController{Allowlist: s.Allowlist, Log: log},
		Templates: &controller.TemplateController{Templates: s.Templates},
	}
	tracking := handler.NewTrackingHandler(s.Tracking, cfg.Mail.DebriefURL, log)

	return controller.SetupRoutes(api, tracking, controller.RouterOptions{
		AdminOrigin:        cfg.Server.AdminOrigin,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		Log:                log,
	})
}
