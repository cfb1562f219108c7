package service

import (
    "context"
    "fmt"
    "runtime/debug"
    "sync"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/unclebandit/phishdrill-backend/internal/model"
    "github.com/unclebandit/phishdrill-backend/internal/pkg/distlock"
    "github.com/unclebandit/phishdrill-backend/internal/repository"
)

const defaultLockTTL = 10 * time.Minute

func campaignLockKey(id int) string {
    return fmt.Sprintf("campaign:%d", id)
}

// CampaignDispatcher is what the scheduler needs from the Dispatcher.
type CampaignDispatcher interface {
    DispatchCampaign(ctx context.Context, campaignID int) (DispatchResult, error)
    SendDebrief(ctx context.Context, campaignID int) (DispatchResult, error)
}

// Scheduler promotes campaigns on time: approved and due ones start running
// and are dispatched, running ones past their end time are debriefed and
// completed. Each campaign is processed under its own lock.
type Scheduler struct {
    Campaigns  repository.CampaignStore
    Dispatcher CampaignDispatcher
    Locker     distlock.Locker
    Interval   time.Duration
    LockTTL    time.Duration
    Now        func() time.Time
    Log        logrus.FieldLogger

    mu   sync.Mutex
    stop chan struct{}
    done chan struct{}
}

// TickResult lists the campaigns a tick moved forward.
type TickResult struct {
    Started   []int
    Completed []int
    Failed    []int
}

func (s *Scheduler) now() time.Time {
    if s.Now != nil {
        return s.Now()
    }
    return time.Now()
}

// Tick runs one pass. An error or panic on one campaign is logged and does
// not stop the others.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
    var result TickResult
    now := s.now()

    due, err := s.Campaigns.ListDueForDispatch(ctx, now)
    if err != nil {
        s.Log.WithError(err).Error("scheduler: listing due campaigns failed")
    }
    for _, c := range due {
        moved, err := s.withCampaign(ctx, c.ID, "dispatch", func() (bool, error) {
            return s.start(ctx, c.ID, now)
        })
        switch {
        case err != nil:
            result.Failed = append(result.Failed, c.ID)
        case moved:
            result.Started = append(result.Started, c.ID)
        }
    }

    ended, err := s.Campaigns.ListDueForCompletion(ctx, now)
    if err != nil {
        s.Log.WithError(err).Error("scheduler: listing ended campaigns failed")
    }
    for _, c := range ended {
        moved, err := s.withCampaign(ctx, c.ID, "complete", func() (bool, error) {
            return s.complete(ctx, c.ID, now)
        })
        switch {
        case err != nil:
            result.Failed = append(result.Failed, c.ID)
        case moved:
            result.Completed = append(result.Completed, c.ID)
        }
    }
    return result
}

func (s *Scheduler) start(ctx context.Context, id int, now time.Time) (bool, error) {
    won, err := s.Campaigns.PromoteToRunning(ctx, id, now)
    if err != nil || !won {
        return false, err
    }
    if _, err := s.Dispatcher.DispatchCampaign(ctx, id); err != nil {
        return true, err
    }
    return true, nil
}

func (s *Scheduler) complete(ctx context.Context, id int, now time.Time) (bool, error) {
    c, err := s.Campaigns.GetByID(ctx, id)
    if err != nil {
        return false, err
    }
    if c.Status != model.StatusRunning || !c.HasEnded(now) {
        return false, nil
    }
    if _, err := s.Dispatcher.SendDebrief(ctx, id); err != nil {
        return false, err
    }
    return s.Campaigns.MarkCompleted(ctx, id, now)
}

// withCampaign runs fn under the campaign's lock, turning a panic into an error.
func (s *Scheduler) withCampaign(ctx context.Context, id int, action string, fn func() (bool, error)) (moved bool, err error) {
    log := s.Log.WithFields(logrus.Fields{"campaign_id": id, "action": action})

    ttl := s.LockTTL
    if ttl == 0 {
        ttl = defaultLockTTL
    }
    lock := s.Locker.NewLock(campaignLockKey(id), ttl)
    acquired, err := lock.Acquire(ctx)
    if err != nil {
        log.WithError(err).Error("scheduler: lock unavailable")
        return false, err
    }
    if !acquired {
        log.Debug("scheduler: campaign busy elsewhere")
        return false, nil
    }
    defer func() {
        if rerr := lock.Release(context.Background()); rerr != nil {
            log.WithError(rerr).Warn("scheduler: lock release failed")
        }
    }()

    defer func() {
        if r := recover(); r != nil {
            err = fmt.Errorf("panic: %v", r)
            log.WithField("stack", string(debug.Stack())).Error("scheduler: recovered from panic")
        }
    }()

    moved, err = fn()
    if err != nil {
        log.WithError(err).Error("scheduler: campaign step failed")
        return moved, err
    }
    if moved {
        log.Info("scheduler: campaign advanced")
    }
    return moved, nil
}

// Start ticks every Interval until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
    s.mu.Lock()
    if s.stop != nil {
        s.mu.Unlock()
        return
    }
    s.stop = make(chan struct{})
    s.done = make(chan struct{})
    stop, done := s.stop, s.done
    s.mu.Unlock()

    interval := s.Interval
    if interval <= 0 {
        interval = time.Minute
    }

    go func() {
        defer close(done)
        ticker := time.NewTicker(interval)
        defer ticker.Stop()

        s.Log.WithField("interval", interval.String()).Info("scheduler started")
        for {
            select {
            case <-ctx.Done():
                return
            case <-stop:
                return
            case <-ticker.C:
                s.Tick(ctx)
            }
        }
    }()
}

// Stop ends the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
    s.mu.Lock()
    stop, done := s.stop, s.done
    s.stop = nil
    s.mu.Unlock()

    if stop == nil {
        return
    }
    close(stop)
    <-done
    s.Log.Info("scheduler stopped")
}
