package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
	"github.com/unclebandit/phishdrill-backend/internal/mailer"
	"github.com/unclebandit/phishdrill-backend/internal/model"
	"github.com/unclebandit/phishdrill-backend/internal/pkg/distlock"
	"github.com/unclebandit/phishdrill-backend/internal/repository"
	"github.com/unclebandit/phishdrill-backend/internal/repository/memory"
	"github.com/unclebandit/phishdrill-backend/internal/service"
)

const trackingURL = "https://track.corp.example"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeTransport records every message and fails for selected recipients.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []mailer.Message
	failFor map[string]bool
}

func (f *fakeTransport) Send(_ context.Context, m mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[m.To] {
		return appErrors.NewTransport(m.To, errors.New("550 mailbox unavailable"))
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeTransport) failTo(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor == nil {
		f.failFor = map[string]bool{}
	}
	f.failFor[email] = true
}

func (f *fakeTransport) messages() []mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mailer.Message(nil), f.sent...)
}

func (f *fakeTransport) sentTo(email string) []mailer.Message {
	var out []mailer.Message
	for _, m := range f.messages() {
		if m.To == email {
			out = append(out, m)
		}
	}
	return out
}

// failingTargetStore rejects every ReplaceTargets the way the Postgres store
// reports a failed transaction.
type failingTargetStore struct {
	repository.TargetStore
	err error
}

func (s *failingTargetStore) ReplaceTargets(context.Context, int, []model.CampaignTarget) error {
	return appErrors.NewIntegrity("replace targets", s.err)
}

type fixture struct {
	ctx       context.Context
	clock     *testClock
	store     *memory.Store
	transport *fakeTransport
	locker    *distlock.LocalLocker

	allowlist  *service.AllowlistService
	targets    *service.TargetService
	recorder   *service.EventRecorder
	campaigns  *service.CampaignService
	dispatcher *service.Dispatcher
	analytics  *service.AnalyticsService
	tracking   *service.TrackingService
	scheduler  *service.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()

	f := &fixture{
		ctx:       context.Background(),
		clock:     &testClock{now: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)},
		store:     memory.NewStore(),
		transport: &fakeTransport{},
	}
	factory := func(*model.Campaign) mailer.Transport { return f.transport }

	f.allowlist = service.NewAllowlistService(f.store.Employees, []string{"gmail.com", "yahoo.com", "outlook.com", "hotmail.com"}, log)
	f.targets = &service.TargetService{
		Targets:   f.store.Targets,
		Allowlist: f.allowlist,
		Tokens:    service.SHA256TokenGenerator{},
	}
	f.recorder = &service.EventRecorder{Events: f.store.Events, Salt: "pepper", Now: f.clock.Now}
	templates := service.NewTemplateCatalog()
	f.locker = distlock.NewLocalLocker()
	f.campaigns = &service.CampaignService{
		Campaigns: f.store.Campaigns,
		Targets:   f.targets,
		Templates: templates,
		Locker:    f.locker,
		Now:       f.clock.Now,
		Log:       log,
	}
	f.dispatcher = &service.Dispatcher{
		Campaigns:   f.store.Campaigns,
		Targets:     f.store.Targets,
		Recorder:    f.recorder,
		Templates:   templates,
		Transports:  factory,
		TrackingURL: trackingURL,
		DefaultFrom: "security-training@example.com",
		DebriefURL:  "https://intranet/security-awareness",
		Log:         log,
	}
	f.analytics = &service.AnalyticsService{
		Campaigns:   f.store.Campaigns,
		Recorder:    f.recorder,
		Transports:  factory,
		DefaultFrom: "security-training@example.com",
		Log:         log,
	}
	f.tracking = &service.TrackingService{
		Targets:  f.store.Targets,
		Recorder: f.recorder,
		Log:      log,
	}
	f.scheduler = &service.Scheduler{
		Campaigns:  f.store.Campaigns,
		Dispatcher: f.dispatcher,
		Locker:     f.locker,
		Interval:   10 * time.Millisecond,
		Now:        f.clock.Now,
		Log:        log,
	}
	return f
}

func (f *fixture) seedEmployees(t *testing.T, employees ...model.Employee) {
	t.Helper()
	res, err := f.allowlist.Upsert(f.ctx, employees)
	require.NoError(t, err)
	require.Empty(t, res.Rejected)
}

func (f *fixture) seedStaff(t *testing.T) {
	f.seedEmployees(t,
		model.Employee{Email: "alice@corp.example", Name: "Alice", Department: "Finance"},
		model.Employee{Email: "bob@corp.example", Name: "Bob", Department: "Engineering"},
		model.Employee{Email: "carol@corp.example"},
		model.Employee{Email: "dan@corp.example", Name: "Dan", Department: "Sales"},
	)
}

func (f *fixture) createCampaign(t *testing.T, in service.CampaignInput) *model.Campaign {
	t.Helper()
	if in.Name == "" {
		in.Name = "Q2 drill"
	}
	if in.TemplateKey == "" {
		in.TemplateKey = "login-mimic"
	}
	c, err := f.campaigns.CreateCampaign(f.ctx, in)
	require.NoError(t, err)
	return c
}

func (f *fixture) reload(t *testing.T, id int) *model.Campaign {
	t.Helper()
	c, err := f.store.Campaigns.GetByID(f.ctx, id)
	require.NoError(t, err)
	return c
}

func timePtr(t time.Time) *time.Time { return &t }
