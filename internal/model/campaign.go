// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
    StatusDraft     CampaignStatus = "draft"
    StatusScheduled CampaignStatus = "scheduled"
    StatusRunning   CampaignStatus = "running"
    StatusCompleted CampaignStatus = "completed"
)

// EditableStatuses are the states in which campaign fields and recipients may change.
var EditableStatuses = []CampaignStatus{StatusDraft, StatusScheduled}

type Campaign struct {
    ID                 int            `db:"id" json:"id"`
    Name               string         `db:"name" json:"name"`
    Subject            string         `db:"subject" json:"subject"`
    TemplateKey        string         `db:"template_key" json:"template_key"`
    ScheduledTime      *time.Time     `db:"scheduled_time" json:"scheduled_time,omitempty"`
    EndTime            *time.Time     `db:"end_time" json:"end_time,omitempty"`
    Approval           bool           `db:"approval" json:"approval"`
    EnableSending      bool           `db:"enable_sending" json:"enable_sending"`
    SMTPHost           string         `db:"smtp_host" json:"smtp_host"`
    SMTPPort           int            `db:"smtp_port" json:"smtp_port,omitempty"`
    SMTPUser           string         `db:"smtp_user" json:"smtp_user"`
    SMTPPass           string         `db:"smtp_pass" json:"-"`
    FromEmail          string         `db:"from_email" json:"from_email"`
    ManagerEmail       string         `db:"manager_email" json:"manager_email"`
    NotifiedHighClicks bool           `db:"notified_high_clicks" json:"notified_high_clicks"`
    Status             CampaignStatus `db:"status" json:"status"`
    CreatedAt          time.Time      `db:"created_at" json:"created_at"`
    UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// IsEditable reports whether the campaign still accepts edits.
func (c *Campaign) IsEditable() bool {
    for _, st := range EditableStatuses {
        if c.Status == st {
            return true
        }
    }
    return false
}

func (c *Campaign) IsTerminal() bool {
    return c.Status == StatusCompleted
}

// IsDue reports whether the scheduled send time has arrived.
func (c *Campaign) IsDue(now time.Time) bool {
    return c.ScheduledTime != nil && !c.ScheduledTime.After(now)
}

// HasEnded reports whether the end time has passed.
func (c *Campaign) HasEnded(now time.Time) bool {
    return c.EndTime != nil && !c.EndTime.After(now)
}

// CampaignSummary is a campaign as listed in the operator console.
type CampaignSummary struct {
    Campaign
    RecipientCount int `json:"recipient_count"`
}
