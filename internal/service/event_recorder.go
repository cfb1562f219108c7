package service

import (
    "context"
    "crypto/sha256"
    "encoding/csv"
    "encoding/hex"
    "fmt"
    "io"
    "strconv"
    "time"

    "github.com/unclebandit/phishdrill-backend/internal/model"
    "github.com/unclebandit/phishdrill-backend/internal/repository"
)

// ExportHeader is the first row of a campaign results export.
var ExportHeader = []string{"email", "event_type", "timestamp", "simulated_entry"}

// EventRecorder appends interaction events. Raw client addresses are never stored.
type EventRecorder struct {
    Events repository.EventStore
    Salt   string
    Now    func() time.Time
}

func (r *EventRecorder) now() time.Time {
    if r.Now != nil {
        return r.Now()
    }
    return time.Now()
}

// HashOrigin returns the hex digest stored in place of a client address, or
// nil when there is no address.
func (r *EventRecorder) HashOrigin(origin string) *string {
    if origin == "" {
        return nil
    }
    sum := sha256.Sum256([]byte(r.Salt + origin))
    h := hex.EncodeToString(sum[:])
    return &h
}

// Record appends one event. origin is empty for events the service generates
// itself. simulatedEntry only sticks on submitted events.
func (r *EventRecorder) Record(ctx context.Context, campaignID int, email string, eventType model.EventType, origin string, simulatedEntry bool) (*model.CampaignEvent, error) {
    e := &model.CampaignEvent{
        CampaignID:     campaignID,
        Email:          email,
        EventType:      eventType,
        Timestamp:      r.now().UTC(),
        IPHash:         r.HashOrigin(origin),
        SimulatedEntry: simulatedEntry && eventType == model.EventSubmitted,
    }
    if err := r.Events.Record(ctx, e); err != nil {
        return nil, err
    }
    return e, nil
}

func (r *EventRecorder) Aggregate(ctx context.Context, campaignID int) (map[model.EventType]int, error) {
    return r.Events.CountByType(ctx, campaignID)
}

// Export writes the campaign's events as CSV, oldest first.
func (r *EventRecorder) Export(ctx context.Context, campaignID int, w io.Writer) error {
    events, err := r.Events.ListByCampaign(ctx, campaignID)
    if err != nil {
        return err
    }

    cw := csv.NewWriter(w)
    if err := cw.Write(ExportHeader); err != nil {
        return err
    }
    for _, e := range events {
        row := []string{
            e.Email,
            string(e.EventType),
            e.Timestamp.UTC().Format(time.RFC3339),
            strconv.FormatBool(e.SimulatedEntry),
        }
        if err := cw.Write(row); err != nil {
            return fmt.Errorf("write export row: %w", err)
        }
    }
    cw.Flush()
    return cw.Error()
}
