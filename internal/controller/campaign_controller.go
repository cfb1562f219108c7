// internal/controller/campaign_controller.go
package controller

import (
    "bytes"
    "net/http"
    "strconv"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/sirupsen/logrus"

    appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
    "github.com/unclebandit/phishdrill-backend/internal/pkg/httputil"
    "github.com/unclebandit/phishdrill-backend/internal/service"
)

type CampaignController struct {
    CampaignService  *service.CampaignService
    AnalyticsService *service.AnalyticsService
    Recorder         *service.EventRecorder
    Log              logrus.FieldLogger
}

type createCampaignRequest struct {
    Name          string     `json:"name" validate:"required,max=200"`
    TemplateKey   string     `json:"template_key" validate:"required"`
    Subject       string     `json:"subject" validate:"max=300"`
    Recipients    []string   `json:"recipients"`
    ScheduledTime *time.Time `json:"scheduled_time"`
    EndTime       *time.Time `json:"end_time"`
    FromEmail     string     `json:"from_email" validate:"omitempty,email"`
    ManagerEmail  string     `json:"manager_email" validate:"omitempty,email"`
    SMTPHost      string     `json:"smtp_host" validate:"omitempty,hostname_rfc1123"`
    SMTPPort      int        `json:"smtp_port" validate:"omitempty,min=1,max=65535"`
    SMTPUser      string     `json:"smtp_user"`
    SMTPPass      string     `json:"smtp_pass"`
}

// updateCampaignRequest carries only the fields present in the body. Approval
// is not editable here; it has its own endpoint.
type updateCampaignRequest struct {
    Name          *string    `json:"name" validate:"omitempty,max=200"`
    TemplateKey   *string    `json:"template_key"`
    Subject       *string    `json:"subject" validate:"omitempty,max=300"`
    Recipients    []string   `json:"recipients"`
    ScheduledTime *time.Time `json:"scheduled_time"`
    EndTime       *time.Time `json:"end_time"`
    EnableSending *bool      `json:"enable_sending"`
    FromEmail     *string    `json:"from_email"`
    ManagerEmail  *string    `json:"manager_email"`
    SMTPHost      *string    `json:"smtp_host"`
    SMTPPort      *int       `json:"smtp_port" validate:"omitempty,min=1,max=65535"`
    SMTPUser      *string    `json:"smtp_user"`
    SMTPPass      *string    `json:"smtp_pass"`
}

func campaignID(r *http.Request) (int, error) {
    id, err := strconv.Atoi(chi.URLParam(r, "id"))
    if err != nil || id <= 0 {
        return 0, appErrors.NewValidation("invalid campaign id", chi.URLParam(r, "id"))
    }
    return id, nil
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
    var body createCampaignRequest
    if !httputil.Decode(w, r, &body) {
        return
    }
    if err := httputil.ValidateStruct(body); err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    campaign, err := c.CampaignService.CreateCampaign(r.Context(), service.CampaignInput{
        Name:          body.Name,
        TemplateKey:   body.TemplateKey,
        Subject:       body.Subject,
        Recipients:    body.Recipients,
        ScheduledTime: body.ScheduledTime,
        EndTime:       body.EndTime,
        FromEmail:     body.FromEmail,
        ManagerEmail:  body.ManagerEmail,
        SMTPHost:      body.SMTPHost,
        SMTPPort:      body.SMTPPort,
        SMTPUser:      body.SMTPUser,
        SMTPPass:      body.SMTPPass,
    })
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    httputil.Created(w, campaign)
}

// ListCampaigns returns every campaign, newest first, with its recipient count.
func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
    campaigns, err := c.CampaignService.ListCampaigns(r.Context())
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    httputil.OK(w, campaigns)
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
    id, err := campaignID(r)
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    campaign, err := c.CampaignService.GetCampaign(r.Context(), id)
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    httputil.OK(w, campaign)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
    id, err := campaignID(r)
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    var body updateCampaignRequest
    if !httputil.Decode(w, r, &body) {
        return
    }
    if err := httputil.ValidateStruct(body); err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    campaign, err := c.CampaignService.UpdateCampaign(r.Context(), id, service.CampaignPatch{
        Name:          body.Name,
        TemplateKey:   body.TemplateKey,
        Subject:       body.Subject,
        Recipients:    body.Recipients,
        ScheduledTime: body.ScheduledTime,
        EndTime:       body.EndTime,
        EnableSending: body.EnableSending,
        FromEmail:     body.FromEmail,
        ManagerEmail:  body.ManagerEmail,
        SMTPHost:      body.SMTPHost,
        SMTPPort:      body.SMTPPort,
        SMTPUser:      body.SMTPUser,
        SMTPPass:      body.SMTPPass,
    })
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    httputil.OK(w, campaign)
}

func (c *CampaignController) ApproveCampaign(w http.ResponseWriter, r *http.Request) {
    id, err := campaignID(r)
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    campaign, err := c.CampaignService.Approve(r.Context(), id)
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    httputil.OK(w, campaign)
}

// SendCampaign queues an approved campaign for the next scheduler tick.
// Delivery itself happens in the scheduler, not in this request.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
    id, err := campaignID(r)
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    campaign, err := c.CampaignService.QueueSend(r.Context(), id)
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    httputil.OK(w, map[string]interface{}{
        "message":  "Campaign queued for sending",
        "campaign": campaign,
    })
}

func (c *CampaignController) ListTargets(w http.ResponseWriter, r *http.Request) {
    id, err := campaignID(r)
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    targets, err := c.CampaignService.ListTargets(r.Context(), id)
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    httputil.OK(w, targets)
}

func (c *CampaignController) Analytics(w http.ResponseWriter, r *http.Request) {
    id, err := campaignID(r)
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    analytics, err := c.AnalyticsService.Analytics(r.Context(), id)
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    httputil.OK(w, analytics)
}

// ExportResults streams the campaign's events as a CSV attachment.
func (c *CampaignController) ExportResults(w http.ResponseWriter, r *http.Request) {
    id, err := campaignID(r)
    if err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }
    if _, err := c.CampaignService.GetCampaign(r.Context(), id); err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    var buf bytes.Buffer
    if err := c.Recorder.Export(r.Context(), id, &buf); err != nil {
        httputil.WriteError(w, c.Log, err)
        return
    }

    w.Header().Set("Content-Type", "text/csv; charset=utf-8")
    w.Header().Set("Content-Disposition", `attachment; filename="campaign-results.csv"`)
    w.WriteHeader(http.StatusOK)
    w.Write(buf.Bytes())
}
