// internal/model/campaign_target.go
package model

// CampaignTarget is one recipient's tracked instance within a campaign.
// Name and department are copied from the allowlist when the target is created.
type CampaignTarget struct {
    ID         int    `db:"id" json:"id"`
    CampaignID int    `db:"campaign_id" json:"campaign_id"`
    Email      string `db:"email" json:"email"`
    Name       string `db:"name" json:"name"`
    Department string `db:"department" json:"department"`
    Token      string `db:"token" json:"token"`
    Delivered  bool   `db:"delivered" json:"delivered"`
}
