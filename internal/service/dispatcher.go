package service

import (
    "context"
    "fmt"
    "html"
    "strings"

    "github.com/sirupsen/logrus"

    appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
    "github.com/unclebandit/phishdrill-backend/internal/logger"
    "github.com/unclebandit/phishdrill-backend/internal/mailer"
    "github.com/unclebandit/phishdrill-backend/internal/model"
    "github.com/unclebandit/phishdrill-backend/internal/repository"
)

const continueLinkLabel = "Access secure page"

// Dispatcher sends simulation and debrief emails for a campaign.
type Dispatcher struct {
    Campaigns  repository.CampaignStore
    Targets    repository.TargetStore
    Recorder   *EventRecorder
    Templates  *TemplateCatalog
    Transports mailer.Factory

    TrackingURL string
    DefaultFrom string
    DebriefURL  string
    Log         logrus.FieldLogger
}

// DispatchResult counts per-recipient outcomes of one send pass.
type DispatchResult struct {
    Attempted int `json:"attempted"`
    Delivered int `json:"delivered"`
    Failed    int `json:"failed"`
}

func (d *Dispatcher) from(c *model.Campaign) string {
    if c.FromEmail != "" {
        return c.FromEmail
    }
    return d.DefaultFrom
}

// BuildSimulationMessage renders the template for one target and appends the
// open pixel and the continue link carrying its token.
func BuildSimulationMessage(c *model.Campaign, t model.CampaignTarget, tpl model.Template, trackingURL, from string) mailer.Message {
    base := strings.TrimRight(trackingURL, "/")
    body := RenderTemplate(tpl.Body, t.Name, t.Department)
    clickURL := fmt.Sprintf("%s/track/click/%s", base, t.Token)
    pixel := fmt.Sprintf(`<img src="%s/track/open/%s.gif" alt="" width="1" height="1" style="display:none;"/>`, base, t.Token)

    htmlBody := strings.ReplaceAll(html.EscapeString(body), "\n", "<br/>")
    return mailer.Message{
        To:      t.Email,
        From:    from,
        Subject: c.Subject,
        Text:    fmt.Sprintf("%s\n\n%s: %s", body, continueLinkLabel, clickURL),
        HTML:    fmt.Sprintf(`<p>%s</p><p><a href="%s">%s</a></p>%s`, htmlBody, clickURL, continueLinkLabel, pixel),
    }
}

// BuildDebriefMessage is the wrap-up sent to every target after the campaign ends.
func BuildDebriefMessage(c *model.Campaign, to, from, debriefURL string) mailer.Message {
    name := html.EscapeString(c.Name)
    return mailer.Message{
        To:      to,
        From:    from,
        Subject: "Security Simulation Debrief: " + c.Name,
        Text: fmt.Sprintf(
            "This message is a debrief for the internal phishing awareness simulation \"%s\". "+
                "The exercise is complete, and no action is required. Review the learning resources at %s.",
            c.Name, debriefURL,
        ),
        HTML: fmt.Sprintf(
            "<p>This message is a debrief for the internal phishing awareness simulation <strong>%s</strong>. "+
                "The exercise is complete, and no action is required.</p>"+
                `<p>Review the learning resources at <a href="%s">our security awareness page</a>.</p>`,
            name, html.EscapeString(debriefURL),
        ),
    }
}

// DispatchCampaign sends the simulation to every target of the campaign.
// A missing campaign or template is a logged no-op. A failed send is logged
// and skipped; the target stays undelivered and is not retried.
func (d *Dispatcher) DispatchCampaign(ctx context.Context, campaignID int) (DispatchResult, error) {
    var result DispatchResult
    log := d.Log.WithField("campaign_id", campaignID)

    c, err := d.Campaigns.GetByID(ctx, campaignID)
    if err != nil {
        if appErrors.IsNotFound(err) {
            log.Warn("dispatch skipped: campaign not found")
            return result, nil
        }
        return result, err
    }
    tpl, ok := d.Templates.FindByKey(c.TemplateKey)
    if !ok {
        log.WithField("template_key", c.TemplateKey).Warn("dispatch skipped: template not found")
        return result, nil
    }

    targets, err := d.Targets.ListByCampaign(ctx, campaignID)
    if err != nil {
        return result, appErrors.NewIntegrity("list targets", err)
    }

    transport := d.Transports(c)
    from := d.from(c)
    for _, t := range targets {
        result.Attempted++
        tlog := log.WithField("email", logger.RedactEmail(t.Email))

        msg := BuildSimulationMessage(c, t, tpl, d.TrackingURL, from)
        if err := transport.Send(ctx, msg); err != nil {
            result.Failed++
            tlog.WithError(err).Warn("simulation send failed")
            continue
        }

        result.Delivered++
        if _, err := d.Recorder.Record(ctx, campaignID, t.Email, model.EventDelivered, "", false); err != nil {
            tlog.WithError(err).Error("failed to record delivered event")
        }
        if err := d.Targets.MarkDelivered(ctx, t.ID); err != nil {
            tlog.WithError(err).Error("failed to mark target delivered")
        }
    }

    log.WithFields(logrus.Fields{
        "attempted": result.Attempted,
        "delivered": result.Delivered,
        "failed":    result.Failed,
    }).Info("campaign dispatched")
    return result, nil
}

// SendDebrief sends the wrap-up to every target, delivered or not. No events
// are recorded.
func (d *Dispatcher) SendDebrief(ctx context.Context, campaignID int) (DispatchResult, error) {
    var result DispatchResult
    log := d.Log.WithField("campaign_id", campaignID)

    c, err := d.Campaigns.GetByID(ctx, campaignID)
    if err != nil {
        return result, err
    }
    targets, err := d.Targets.ListByCampaign(ctx, campaignID)
    if err != nil {
        return result, appErrors.NewIntegrity("list targets", err)
    }

    transport := d.Transports(c)
    from := d.from(c)
    for _, t := range targets {
        result.Attempted++
        if err := transport.Send(ctx, BuildDebriefMessage(c, t.Email, from, d.DebriefURL)); err != nil {
            result.Failed++
            log.WithField("email", logger.RedactEmail(t.Email)).WithError(err).Warn("debrief send failed")
            continue
        }
        result.Delivered++
    }

    log.WithFields(logrus.Fields{
        "attempted": result.Attempted,
        "failed":    result.Failed,
    }).Info("debrief sent")
    return result, nil
}
