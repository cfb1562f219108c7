package repository

import (
    "context"
    "database/sql"
    "fmt"

    "github.com/unclebandit/phishdrill-backend/internal/model"
)

// EventStore is the append-only interaction log.
type EventStore interface {
    Record(ctx context.Context, e *model.CampaignEvent) error
    CountByType(ctx context.Context, campaignID int) (map[model.EventType]int, error)
    ListByCampaign(ctx context.Context, campaignID int) ([]model.CampaignEvent, error)
}

type EventRepository struct {
    DB *sql.DB
}

func (r *EventRepository) Record(ctx context.Context, e *model.CampaignEvent) error {
    query := `
        INSERT INTO campaign_events (campaign_id, email, event_type, timestamp, ip_hash, simulated_entry)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
    err := r.DB.QueryRowContext(ctx, query,
        e.CampaignID, e.Email, e.EventType, e.Timestamp, e.IPHash, e.SimulatedEntry,
    ).Scan(&e.ID)
    if err != nil {
        return fmt.Errorf("record %s event: %w", e.EventType, err)
    }
    return nil
}

// CountByType returns the number of events per type. Every type is present, zero if unseen.
func (r *EventRepository) CountByType(ctx context.Context, campaignID int) (map[model.EventType]int, error) {
    query := `SELECT event_type, COUNT(*) FROM campaign_events WHERE campaign_id=$1 GROUP BY event_type`
    rows, err := r.DB.QueryContext(ctx, query, campaignID)
    if err != nil {
        return nil, fmt.Errorf("count events: %w", err)
    }
    defer rows.Close()

    counts := map[model.EventType]int{
        model.EventDelivered: 0,
        model.EventOpened:    0,
        model.EventClicked:   0,
        model.EventSubmitted: 0,
    }
    for rows.Next() {
        var eventType model.EventType
        var count int
        if err := rows.Scan(&eventType, &count); err != nil {
            return nil, err
        }
        counts[eventType] = count
    }
    return counts, rows.Err()
}

// ListByCampaign returns the campaign's events oldest first.
func (r *EventRepository) ListByCampaign(ctx context.Context, campaignID int) ([]model.CampaignEvent, error) {
    query := `
        SELECT id, campaign_id, email, event_type, timestamp, ip_hash, simulated_entry
        FROM campaign_events
        WHERE campaign_id=$1
        ORDER BY timestamp ASC, id ASC
    `
    rows, err := r.DB.QueryContext(ctx, query, campaignID)
    if err != nil {
        return nil, fmt.Errorf("list events: %w", err)
    }
    defer rows.Close()

    events := []model.CampaignEvent{}
    for rows.Next() {
        var e model.CampaignEvent
        if err := rows.Scan(&e.ID, &e.CampaignID, &e.Email, &e.EventType, &e.Timestamp, &e.IPHash, &e.SimulatedEntry); err != nil {
            return nil, err
        }
        events = append(events, e)
    }
    return events, rows.Err()
}

var _ EventStore = (*EventRepository)(nil)
