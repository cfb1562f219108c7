// internal/service/campaign_service.go
package service

import (
    "context"
    "strings"
    "time"

    "github.com/sirupsen/logrus"

    appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
    "github.com/unclebandit/phishdrill-backend/internal/model"
    "github.com/unclebandit/phishdrill-backend/internal/pkg/distlock"
    "github.com/unclebandit/phishdrill-backend/internal/repository"
)

// CampaignService drives a campaign through draft, scheduled, running and
// completed. Status never moves backward.
type CampaignService struct {
    Campaigns repository.CampaignStore
    Targets   *TargetService
    Templates *TemplateCatalog
    // Locker guards edits against the scheduler. It must be the same
    // Locker the Scheduler uses.
    Locker distlock.Locker
    Now    func() time.Time
    Log    logrus.FieldLogger
}

// CampaignInput is what an operator supplies to create a campaign.
type CampaignInput struct {
    Name          string
    TemplateKey   string
    Subject       string
    Recipients    []string
    ScheduledTime *time.Time
    EndTime       *time.Time
    FromEmail     string
    ManagerEmail  string
    SMTPHost      string
    SMTPPort      int
    SMTPUser      string
    SMTPPass      string
}

// CampaignPatch is a partial edit. Nil fields are left unchanged; a non-nil
// Recipients replaces the whole target list.
type CampaignPatch struct {
    Name          *string
    TemplateKey   *string
    Subject       *string
    Recipients    []string
    ScheduledTime *time.Time
    EndTime       *time.Time
    EnableSending *bool
    FromEmail     *string
    ManagerEmail  *string
    SMTPHost      *string
    SMTPPort      *int
    SMTPUser      *string
    SMTPPass      *string
}

func (s *CampaignService) now() time.Time {
    if s.Now != nil {
        return s.Now()
    }
    return time.Now()
}

// CreateCampaign validates the template and recipients, then stores the
// campaign and its targets. It starts unapproved with sending disabled.
func (s *CampaignService) CreateCampaign(ctx context.Context, in CampaignInput) (*model.Campaign, error) {
    if strings.TrimSpace(in.Name) == "" {
        return nil, appErrors.NewValidation("campaign name is required")
    }
    tpl, ok := s.Templates.FindByKey(in.TemplateKey)
    if !ok {
        return nil, appErrors.NewValidation("invalid template", in.TemplateKey)
    }
    employees, err := s.Targets.Resolve(ctx, in.Recipients)
    if err != nil {
        return nil, err
    }

    c := &model.Campaign{
        Name:          strings.TrimSpace(in.Name),
        Subject:       strings.TrimSpace(in.Subject),
        TemplateKey:   in.TemplateKey,
        ScheduledTime: in.ScheduledTime,
        EndTime:       in.EndTime,
        SMTPHost:      in.SMTPHost,
        SMTPPort:      in.SMTPPort,
        SMTPUser:      in.SMTPUser,
        SMTPPass:      in.SMTPPass,
        FromEmail:     in.FromEmail,
        ManagerEmail:  strings.TrimSpace(in.ManagerEmail),
        Status:        model.StatusDraft,
    }
    if c.Subject == "" {
        c.Subject = tpl.Subject
    }
    if c.ScheduledTime != nil {
        c.Status = model.StatusScheduled
    }

    if err := s.Campaigns.Create(ctx, c); err != nil {
        return nil, err
    }
    if _, err := s.Targets.Replace(ctx, c.ID, employees); err != nil {
        s.Log.WithField("campaign_id", c.ID).WithError(err).Error("campaign created without targets")
        return nil, err
    }

    s.Log.WithFields(logrus.Fields{
        "campaign_id": c.ID,
        "status":      c.Status,
        "recipients":  len(employees),
    }).Info("campaign created")
    return c, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, id int) (*model.Campaign, error) {
    return s.Campaigns.GetByID(ctx, id)
}

// ListCampaigns returns every campaign, newest first, with recipient counts.
func (s *CampaignService) ListCampaigns(ctx context.Context) ([]model.CampaignSummary, error) {
    return s.Campaigns.List(ctx)
}

func (s *CampaignService) ListTargets(ctx context.Context, id int) ([]model.CampaignTarget, error) {
    if _, err := s.Campaigns.GetByID(ctx, id); err != nil {
        return nil, err
    }
    return s.Targets.ListTargets(ctx, id)
}

func errNotEditable() error {
    return appErrors.NewValidation("cannot edit running or completed campaigns")
}

// lockCampaign takes the per-campaign lock the scheduler also takes. The
// returned release func is never nil.
func (s *CampaignService) lockCampaign(ctx context.Context, id int) (func(), error) {
    if s.Locker == nil {
        return func() {}, nil
    }
    lock := s.Locker.NewLock(campaignLockKey(id), defaultLockTTL)
    acquired, err := lock.Acquire(ctx)
    if err != nil {
        return nil, err
    }
    if !acquired {
        return nil, appErrors.NewValidation("campaign is being processed, try again shortly")
    }
    return func() {
        if err := lock.Release(context.Background()); err != nil {
            s.Log.WithField("campaign_id", id).WithError(err).Warn("campaign lock release failed")
        }
    }, nil
}

// UpdateCampaign applies an edit while the campaign is draft or scheduled.
// The template and recipients are validated before anything is written.
// Status is left alone, even when the scheduled time changes. The field
// update and the target replacement run under the campaign lock, so the
// scheduler never dispatches tokens that are about to be replaced.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id int, p CampaignPatch) (*model.Campaign, error) {
    release, err := s.lockCampaign(ctx, id)
    if err != nil {
        return nil, err
    }
    defer release()

    c, err := s.Campaigns.GetByID(ctx, id)
    if err != nil {
        return nil, err
    }
    if !c.IsEditable() {
        return nil, errNotEditable()
    }

    next := *c
    applyPatch(&next, p)

    if strings.TrimSpace(next.Name) == "" {
        return nil, appErrors.NewValidation("campaign name is required")
    }
    tpl, ok := s.Templates.FindByKey(next.TemplateKey)
    if !ok {
        return nil, appErrors.NewValidation("invalid template", next.TemplateKey)
    }
    if strings.TrimSpace(next.Subject) == "" {
        next.Subject = tpl.Subject
    }

    var employees []model.Employee
    if p.Recipients != nil {
        if employees, err = s.Targets.Resolve(ctx, p.Recipients); err != nil {
            return nil, err
        }
    }

    ok, err = s.Campaigns.Update(ctx, &next)
    if err != nil {
        return nil, err
    }
    if !ok {
        // lost a race with the scheduler or a deletion
        if _, err := s.Campaigns.GetByID(ctx, id); err != nil {
            return nil, err
        }
        return nil, errNotEditable()
    }

    if p.Recipients != nil {
        if _, err := s.Targets.Replace(ctx, id, employees); err != nil {
            return nil, err
        }
    }
    return s.Campaigns.GetByID(ctx, id)
}

func applyPatch(c *model.Campaign, p CampaignPatch) {
    if p.Name != nil {
        c.Name = strings.TrimSpace(*p.Name)
    }
    if p.TemplateKey != nil {
        c.TemplateKey = *p.TemplateKey
    }
    if p.Subject != nil {
        c.Subject = strings.TrimSpace(*p.Subject)
    }
    if p.ScheduledTime != nil {
        c.ScheduledTime = p.ScheduledTime
    }
    if p.EndTime != nil {
        c.EndTime = p.EndTime
    }
    if p.EnableSending != nil {
        c.EnableSending = *p.EnableSending
    }
    if p.FromEmail != nil {
        c.FromEmail = *p.FromEmail
    }
    if p.ManagerEmail != nil {
        c.ManagerEmail = strings.TrimSpace(*p.ManagerEmail)
    }
    if p.SMTPHost != nil {
        c.SMTPHost = *p.SMTPHost
    }
    if p.SMTPPort != nil {
        c.SMTPPort = *p.SMTPPort
    }
    if p.SMTPUser != nil {
        c.SMTPUser = *p.SMTPUser
    }
    if p.SMTPPass != nil {
        c.SMTPPass = *p.SMTPPass
    }
}

// Approve marks the campaign approved without changing its status.
// Completed campaigns cannot be approved.
func (s *CampaignService) Approve(ctx context.Context, id int) (*model.Campaign, error) {
    ok, err := s.Campaigns.Approve(ctx, id)
    if err != nil {
        return nil, err
    }
    c, err := s.Campaigns.GetByID(ctx, id)
    if err != nil {
        return nil, err
    }
    if !ok {
        return nil, appErrors.NewValidation("completed campaigns cannot be approved")
    }

    s.Log.WithField("campaign_id", id).Info("campaign approved")
    return c, nil
}

// QueueSend schedules an approved campaign for the next scheduler tick. A
// scheduled time in the future is pulled forward to now; one already due is kept.
func (s *CampaignService) QueueSend(ctx context.Context, id int) (*model.Campaign, error) {
    c, err := s.Campaigns.GetByID(ctx, id)
    if err != nil {
        return nil, err
    }
    if err := checkQueueable(c); err != nil {
        return nil, err
    }

    ok, err := s.Campaigns.QueueSend(ctx, id, s.now())
    if err != nil {
        return nil, err
    }
    if c, err = s.Campaigns.GetByID(ctx, id); err != nil {
        return nil, err
    }
    if !ok {
        if err := checkQueueable(c); err != nil {
            return nil, err
        }
        return nil, appErrors.NewValidation("campaign could not be queued")
    }

    s.Log.WithField("campaign_id", id).Info("campaign queued for sending")
    return c, nil
}

func checkQueueable(c *model.Campaign) error {
    if !c.Approval {
        return appErrors.NewValidation("campaign must be approved before sending")
    }
    if !c.IsEditable() {
        return appErrors.NewValidation("campaign is already running or completed")
    }
    return nil
}
