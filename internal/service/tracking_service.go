package service

import (
    "context"

    "github.com/sirupsen/logrus"

    appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
    "github.com/unclebandit/phishdrill-backend/internal/logger"
    "github.com/unclebandit/phishdrill-backend/internal/model"
    "github.com/unclebandit/phishdrill-backend/internal/queue"
    "github.com/unclebandit/phishdrill-backend/internal/repository"
)

// TrackingService records recipient interactions. Storage failures are
// logged and swallowed so the recipient always gets a response.
type TrackingService struct {
    Targets  repository.TargetStore
    Recorder *EventRecorder
    Clicks   queue.Queue
    Notifier queue.HighClickNotifier
    Log      logrus.FieldLogger
}

func (s *TrackingService) resolve(ctx context.Context, token, action string) *model.CampaignTarget {
    t, err := s.Targets.FindByToken(ctx, token)
    if err != nil {
        if !appErrors.IsNotFound(err) {
            s.Log.WithField("action", action).WithError(err).Error("token lookup failed")
        }
        return nil
    }
    return t
}

func (s *TrackingService) record(ctx context.Context, t *model.CampaignTarget, eventType model.EventType, origin string, simulated bool) bool {
    if _, err := s.Recorder.Record(ctx, t.CampaignID, t.Email, eventType, origin, simulated); err != nil {
        s.Log.WithFields(logrus.Fields{
            "campaign_id": t.CampaignID,
            "email":       logger.RedactEmail(t.Email),
            "event":       eventType,
        }).WithError(err).Error("failed to record event")
        return false
    }
    return true
}

// Open records an open for a known token.
func (s *TrackingService) Open(ctx context.Context, token, origin string) {
    if t := s.resolve(ctx, token, "open"); t != nil {
        s.record(ctx, t, model.EventOpened, origin, false)
    }
}

// Click records a click and hands the high-click check off to the queue. It
// returns the target, or nil when the token is unknown.
func (s *TrackingService) Click(ctx context.Context, token, origin string) *model.CampaignTarget {
    t := s.resolve(ctx, token, "click")
    if t == nil {
        return nil
    }
    if s.record(ctx, t, model.EventClicked, origin, false) {
        s.publishClick(t.CampaignID)
    }
    return t
}

func (s *TrackingService) publishClick(campaignID int) {
    if s.Clicks != nil {
        err := s.Clicks.Publish(queue.TopicCampaignClicks, queue.ClickEvent{CampaignID: campaignID})
        if err == nil {
            return
        }
        s.Log.WithField("campaign_id", campaignID).WithError(err).Warn("click publish failed, evaluating inline")
    }
    if s.Notifier == nil {
        return
    }
    go func() {
        if err := s.Notifier.NotifyHighClicks(context.Background(), campaignID); err != nil {
            s.Log.WithField("campaign_id", campaignID).WithError(err).Error("high-click evaluation failed")
        }
    }()
}

// Landing resolves the target a landing page is bound to.
func (s *TrackingService) Landing(ctx context.Context, token string) *model.CampaignTarget {
    return s.resolve(ctx, token, "landing")
}

// Submit records a simulated credential entry. Submitted form values are
// never passed in, let alone stored.
func (s *TrackingService) Submit(ctx context.Context, token, origin string) *model.CampaignTarget {
    t := s.resolve(ctx, token, "submit")
    if t == nil {
        return nil
    }
    s.record(ctx, t, model.EventSubmitted, origin, true)
    return t
}
