package service

import (
    "context"
    "fmt"
    "html"

    "github.com/sirupsen/logrus"

    "github.com/unclebandit/phishdrill-backend/internal/logger"
    "github.com/unclebandit/phishdrill-backend/internal/mailer"
    "github.com/unclebandit/phishdrill-backend/internal/model"
    "github.com/unclebandit/phishdrill-backend/internal/repository"
)

// HighClickThreshold is the click-through ratio that alerts the manager.
const HighClickThreshold = 0.5

// AnalyticsService derives campaign funnels from the event log.
type AnalyticsService struct {
    Campaigns   repository.CampaignStore
    Recorder    *EventRecorder
    Transports  mailer.Factory
    DefaultFrom string
    Log         logrus.FieldLogger
}

// ComputeAnalytics turns per-type counts into the funnel.
func ComputeAnalytics(counts map[model.EventType]int) model.Analytics {
    a := model.Analytics{
        Delivered: counts[model.EventDelivered],
        Opened:    counts[model.EventOpened],
        Clicked:   counts[model.EventClicked],
        Submitted: counts[model.EventSubmitted],
    }
    if a.Delivered > 0 {
        a.OpenRate = float64(a.Opened) / float64(a.Delivered)
        a.ClickRate = float64(a.Clicked) / float64(a.Delivered)
    }
    if a.Clicked > 0 {
        a.SubmitRate = float64(a.Submitted) / float64(a.Clicked)
    }
    return a
}

func (s *AnalyticsService) Analytics(ctx context.Context, campaignID int) (*model.Analytics, error) {
    if _, err := s.Campaigns.GetByID(ctx, campaignID); err != nil {
        return nil, err
    }
    counts, err := s.Recorder.Aggregate(ctx, campaignID)
    if err != nil {
        return nil, err
    }
    a := ComputeAnalytics(counts)
    return &a, nil
}

// NotifyHighClicks alerts the campaign manager once the click ratio reaches
// HighClickThreshold. The latch is taken before sending, so at most one alert
// goes out per campaign even if the send fails. Campaigns without a manager
// address are skipped and left unlatched.
func (s *AnalyticsService) NotifyHighClicks(ctx context.Context, campaignID int) error {
    c, err := s.Campaigns.GetByID(ctx, campaignID)
    if err != nil {
        return err
    }
    if c.NotifiedHighClicks || c.ManagerEmail == "" {
        return nil
    }

    counts, err := s.Recorder.Aggregate(ctx, campaignID)
    if err != nil {
        return err
    }
    delivered, clicked := counts[model.EventDelivered], counts[model.EventClicked]
    if delivered == 0 || float64(clicked)/float64(delivered) < HighClickThreshold {
        return nil
    }

    won, err := s.Campaigns.MarkHighClicksNotified(ctx, campaignID)
    if err != nil || !won {
        return err
    }

    log := s.Log.WithFields(logrus.Fields{
        "campaign_id": campaignID,
        "manager":     logger.RedactEmail(c.ManagerEmail),
        "clicked":     clicked,
        "delivered":   delivered,
    })
    from := c.FromEmail
    if from == "" {
        from = s.DefaultFrom
    }
    if err := s.Transports(c).Send(ctx, BuildHighClickAlert(c, from)); err != nil {
        log.WithError(err).Error("high-click alert failed; not retried")
        return nil
    }
    log.Info("high-click alert sent")
    return nil
}

// BuildHighClickAlert is the message sent to the campaign manager.
func BuildHighClickAlert(c *model.Campaign, from string) mailer.Message {
    return mailer.Message{
        To:      c.ManagerEmail,
        From:    from,
        Subject: fmt.Sprintf("[Awareness] High click-through alert for campaign %s", c.Name),
        Text:    "More than 50% of recipients clicked the simulation email. Please follow up with your team for additional coaching.",
        HTML: fmt.Sprintf(
            "<p>More than 50%% of recipients clicked the simulation email for <strong>%s</strong>.</p>"+
                "<p>Please follow up with your team for additional coaching.</p>",
            html.EscapeString(c.Name),
        ),
    }
}
