// internal/model/campaign_event.go
package model

import "time"

type EventType string

const (
    EventDelivered EventType = "delivered"
    EventOpened    EventType = "opened"
    EventClicked   EventType = "clicked"
    EventSubmitted EventType = "submitted"
)

type CampaignEvent struct {
    ID             int       `db:"id" json:"id"`
    CampaignID     int       `db:"campaign_id" json:"campaign_id"`
    Email          string    `db:"email" json:"email"`
    EventType      EventType `db:"event_type" json:"event_type"`
    Timestamp      time.Time `db:"timestamp" json:"timestamp"`
    IPHash         *string   `db:"ip_hash" json:"ip_hash,omitempty"`
    SimulatedEntry bool      `db:"simulated_entry" json:"simulated_entry"`
}

// Analytics is the funnel for one campaign, derived from its events at read time.
type Analytics struct {
    Delivered  int     `json:"delivered"`
    Opened     int     `json:"opened"`
    Clicked    int     `json:"clicked"`
    Submitted  int     `json:"submitted"`
    OpenRate   float64 `json:"openRate"`
    ClickRate  float64 `json:"clickRate"`
    SubmitRate float64 `json:"submitRate"`
}
