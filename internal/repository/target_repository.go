package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"

    "github.com/lib/pq"

    appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
    "github.com/unclebandit/phishdrill-backend/internal/model"
)

// TargetStore persists the per-recipient instances of a campaign.
type TargetStore interface {
    // ReplaceTargets deletes every target of the campaign and inserts targets
    // atomically. Inserted rows get their IDs filled in.
    ReplaceTargets(ctx context.Context, campaignID int, targets []model.CampaignTarget) error
    ListByCampaign(ctx context.Context, campaignID int) ([]model.CampaignTarget, error)
    CountDelivered(ctx context.Context, campaignID int) (int, error)
    FindByToken(ctx context.Context, token string) (*model.CampaignTarget, error)
    MarkDelivered(ctx context.Context, id int) error
}

type TargetRepository struct {
    DB *sql.DB
}

const uniqueViolation = "23505"

func (r *TargetRepository) ReplaceTargets(ctx context.Context, campaignID int, targets []model.CampaignTarget) error {
    tx, err := r.DB.BeginTx(ctx, nil)
    if err != nil {
        return appErrors.NewIntegrity("replace targets", err)
    }
    defer tx.Rollback()

    if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_targets WHERE campaign_id=$1`, campaignID); err != nil {
        return appErrors.NewIntegrity("replace targets", err)
    }

    query := `
        INSERT INTO campaign_targets (campaign_id, email, name, department, token, delivered)
        VALUES ($1, $2, $3, $4, $5, FALSE)
        RETURNING id
    `
    for i := range targets {
        t := &targets[i]
        t.CampaignID = campaignID
        t.Delivered = false
        if err := tx.QueryRowContext(ctx, query, campaignID, t.Email, t.Name, t.Department, t.Token).Scan(&t.ID); err != nil {
            var pqErr *pq.Error
            if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
                return appErrors.NewIntegrity("issue token", fmt.Errorf("token collision for %s: %w", t.Email, err))
            }
            return appErrors.NewIntegrity("replace targets", err)
        }
    }

    if err := tx.Commit(); err != nil {
        return appErrors.NewIntegrity("replace targets", err)
    }
    return nil
}

func (r *TargetRepository) ListByCampaign(ctx context.Context, campaignID int) ([]model.CampaignTarget, error) {
    query := `
        SELECT id, campaign_id, email, name, department, token, delivered
        FROM campaign_targets
        WHERE campaign_id=$1
        ORDER BY id
    `
    rows, err := r.DB.QueryContext(ctx, query, campaignID)
    if err != nil {
        return nil, fmt.Errorf("list targets: %w", err)
    }
    defer rows.Close()

    targets := []model.CampaignTarget{}
    for rows.Next() {
        var t model.CampaignTarget
        if err := rows.Scan(&t.ID, &t.CampaignID, &t.Email, &t.Name, &t.Department, &t.Token, &t.Delivered); err != nil {
            return nil, err
        }
        targets = append(targets, t)
    }
    return targets, rows.Err()
}

func (r *TargetRepository) CountDelivered(ctx context.Context, campaignID int) (int, error) {
    var count int
    err := r.DB.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM campaign_targets WHERE campaign_id=$1 AND delivered`, campaignID,
    ).Scan(&count)
    if err != nil {
        return 0, fmt.Errorf("count delivered: %w", err)
    }
    return count, nil
}

// FindByToken resolves a tracking token. Unknown tokens yield a NotFoundError.
func (r *TargetRepository) FindByToken(ctx context.Context, token string) (*model.CampaignTarget, error) {
    query := `
        SELECT id, campaign_id, email, name, department, token, delivered
        FROM campaign_targets
        WHERE token=$1
    `
    var t model.CampaignTarget
    err := r.DB.QueryRowContext(ctx, query, token).Scan(
        &t.ID, &t.CampaignID, &t.Email, &t.Name, &t.Department, &t.Token, &t.Delivered,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, appErrors.NewNotFound("target", "token")
        }
        return nil, fmt.Errorf("find target by token: %w", err)
    }
    return &t, nil
}

func (r *TargetRepository) MarkDelivered(ctx context.Context, id int) error {
    _, err := r.DB.ExecContext(ctx, `UPDATE campaign_targets SET delivered=TRUE WHERE id=$1`, id)
    if err != nil {
        return fmt.Errorf("mark target %d delivered: %w", id, err)
    }
    return nil
}

var _ TargetStore = (*TargetRepository)(nil)
