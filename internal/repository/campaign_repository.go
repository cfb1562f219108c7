package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
    "github.com/unclebandit/phishdrill-backend/internal/model"
)

// CampaignStore persists campaigns. Every status change is a conditional
// update that reports whether this caller performed the transition.
type CampaignStore interface {
    Create(ctx context.Context, c *model.Campaign) error
    GetByID(ctx context.Context, id int) (*model.Campaign, error)
    List(ctx context.Context) ([]model.CampaignSummary, error)

    // Update writes the editable fields while the campaign is still draft or scheduled.
    Update(ctx context.Context, c *model.Campaign) (bool, error)
    Approve(ctx context.Context, id int) (bool, error)
    QueueSend(ctx context.Context, id int, now time.Time) (bool, error)

    PromoteToRunning(ctx context.Context, id int, now time.Time) (bool, error)
    MarkCompleted(ctx context.Context, id int, now time.Time) (bool, error)
    ListDueForDispatch(ctx context.Context, now time.Time) ([]model.Campaign, error)
    ListDueForCompletion(ctx context.Context, now time.Time) ([]model.Campaign, error)

    MarkHighClicksNotified(ctx context.Context, id int) (bool, error)
}

type CampaignRepository struct {
    DB *sql.DB
}

const campaignColumns = `id, name, subject, template_key, scheduled_time, end_time, approval,
    enable_sending, smtp_host, smtp_port, smtp_user, smtp_pass, from_email, manager_email,
    notified_high_clicks, status, created_at, updated_at`

type rowScanner interface {
    Scan(dest ...any) error
}

func scanCampaign(row rowScanner, c *model.Campaign, extra ...any) error {
    dest := []any{
        &c.ID, &c.Name, &c.Subject, &c.TemplateKey, &c.ScheduledTime, &c.EndTime, &c.Approval,
        &c.EnableSending, &c.SMTPHost, &c.SMTPPort, &c.SMTPUser, &c.SMTPPass, &c.FromEmail,
        &c.ManagerEmail, &c.NotifiedHighClicks, &c.Status, &c.CreatedAt, &c.UpdatedAt,
    }
    return row.Scan(append(dest, extra...)...)
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
    now := time.Now()
    c.CreatedAt = now
    c.UpdatedAt = now
    if c.Status == "" {
        c.Status = model.StatusDraft
    }
    query := `
        INSERT INTO campaigns (name, subject, template_key, scheduled_time, end_time, approval,
            enable_sending, smtp_host, smtp_port, smtp_user, smtp_pass, from_email, manager_email,
            notified_high_clicks, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
        RETURNING id
    `
    err := r.DB.QueryRowContext(ctx, query,
        c.Name, c.Subject, c.TemplateKey, c.ScheduledTime, c.EndTime, c.Approval,
        c.EnableSending, c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPass, c.FromEmail, c.ManagerEmail,
        c.NotifiedHighClicks, c.Status, c.CreatedAt, c.UpdatedAt,
    ).Scan(&c.ID)
    if err != nil {
        return fmt.Errorf("insert campaign: %w", err)
    }
    return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
    query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
    var c model.Campaign
    if err := scanCampaign(r.DB.QueryRowContext(ctx, query, id), &c); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, appErrors.NewCampaignNotFound(id)
        }
        return nil, fmt.Errorf("get campaign %d: %w", id, err)
    }
    return &c, nil
}

// List returns every campaign, newest first, with its recipient count.
func (r *CampaignRepository) List(ctx context.Context) ([]model.CampaignSummary, error) {
    query := `
        SELECT ` + campaignColumns + `,
            (SELECT COUNT(*) FROM campaign_targets t WHERE t.campaign_id = campaigns.id)
        FROM campaigns
        ORDER BY created_at DESC, id DESC
    `
    rows, err := r.DB.QueryContext(ctx, query)
    if err != nil {
        return nil, fmt.Errorf("list campaigns: %w", err)
    }
    defer rows.Close()

    campaigns := []model.CampaignSummary{}
    for rows.Next() {
        var s model.CampaignSummary
        if err := scanCampaign(rows, &s.Campaign, &s.RecipientCount); err != nil {
            return nil, err
        }
        campaigns = append(campaigns, s)
    }
    return campaigns, rows.Err()
}

func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign) (bool, error) {
    query := `
        UPDATE campaigns
        SET name=$1, subject=$2, template_key=$3, scheduled_time=$4, end_time=$5,
            enable_sending=$6, smtp_host=$7, smtp_port=$8, smtp_user=$9, smtp_pass=$10,
            from_email=$11, manager_email=$12, updated_at=NOW()
        WHERE id=$13 AND status IN ('draft', 'scheduled')
    `
    res, err := r.DB.ExecContext(ctx, query,
        c.Name, c.Subject, c.TemplateKey, c.ScheduledTime, c.EndTime,
        c.EnableSending, c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPass,
        c.FromEmail, c.ManagerEmail, c.ID,
    )
    return applied(res, err, "update campaign")
}

// ====================== Lifecycle ======================

func (r *CampaignRepository) Approve(ctx context.Context, id int) (bool, error) {
    query := `UPDATE campaigns SET approval=TRUE, updated_at=NOW() WHERE id=$1 AND status <> 'completed'`
    res, err := r.DB.ExecContext(ctx, query, id)
    return applied(res, err, "approve campaign")
}

// QueueSend moves an approved draft or scheduled campaign to scheduled and
// pulls a future or missing send time forward to now.
func (r *CampaignRepository) QueueSend(ctx context.Context, id int, now time.Time) (bool, error) {
    query := `
        UPDATE campaigns
        SET status='scheduled',
            scheduled_time = CASE
                WHEN scheduled_time IS NULL OR scheduled_time > $2 THEN $2
                ELSE scheduled_time
            END,
            updated_at=$2
        WHERE id=$1 AND approval AND status IN ('draft', 'scheduled')
    `
    res, err := r.DB.ExecContext(ctx, query, id, now)
    return applied(res, err, "queue campaign")
}

func (r *CampaignRepository) PromoteToRunning(ctx context.Context, id int, now time.Time) (bool, error) {
    query := `
        UPDATE campaigns SET status='running', updated_at=$2
        WHERE id=$1 AND approval AND status IN ('draft', 'scheduled')
          AND scheduled_time IS NOT NULL AND scheduled_time <= $2
    `
    res, err := r.DB.ExecContext(ctx, query, id, now)
    return applied(res, err, "promote campaign")
}

func (r *CampaignRepository) MarkCompleted(ctx context.Context, id int, now time.Time) (bool, error) {
    query := `
        UPDATE campaigns SET status='completed', updated_at=$2
        WHERE id=$1 AND status='running' AND end_time IS NOT NULL AND end_time <= $2
    `
    res, err := r.DB.ExecContext(ctx, query, id, now)
    return applied(res, err, "complete campaign")
}

func (r *CampaignRepository) ListDueForDispatch(ctx context.Context, now time.Time) ([]model.Campaign, error) {
    query := `
        SELECT ` + campaignColumns + ` FROM campaigns
        WHERE approval AND status IN ('draft', 'scheduled')
          AND scheduled_time IS NOT NULL AND scheduled_time <= $1
        ORDER BY scheduled_time, id
    `
    return r.listWhere(ctx, query, now)
}

func (r *CampaignRepository) ListDueForCompletion(ctx context.Context, now time.Time) ([]model.Campaign, error) {
    query := `
        SELECT ` + campaignColumns + ` FROM campaigns
        WHERE status='running' AND end_time IS NOT NULL AND end_time <= $1
        ORDER BY end_time, id
    `
    return r.listWhere(ctx, query, now)
}

// MarkHighClicksNotified flips the latch. Only one caller ever sees true.
func (r *CampaignRepository) MarkHighClicksNotified(ctx context.Context, id int) (bool, error) {
    query := `UPDATE campaigns SET notified_high_clicks=TRUE WHERE id=$1 AND notified_high_clicks=FALSE`
    res, err := r.DB.ExecContext(ctx, query, id)
    return applied(res, err, "latch high-click notification")
}

func (r *CampaignRepository) listWhere(ctx context.Context, query string, args ...any) ([]model.Campaign, error) {
    rows, err := r.DB.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, fmt.Errorf("list campaigns: %w", err)
    }
    defer rows.Close()

    campaigns := []model.Campaign{}
    for rows.Next() {
        var c model.Campaign
        if err := scanCampaign(rows, &c); err != nil {
            return nil, err
        }
        campaigns = append(campaigns, c)
    }
    return campaigns, rows.Err()
}

func applied(res sql.Result, err error, op string) (bool, error) {
    if err != nil {
        return false, fmt.Errorf("%s: %w", op, err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, fmt.Errorf("%s: %w", op, err)
    }
    return n > 0, nil
}

var _ CampaignStore = (*CampaignRepository)(nil)
