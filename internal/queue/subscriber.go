package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// TopicCampaignClicks carries one message per recorded click.
const TopicCampaignClicks = "campaign_clicks"

type ClickEvent struct {
	CampaignID int `json:"campaign_id"`
}

// HighClickNotifier evaluates the high-click alert rule for a campaign.
type HighClickNotifier interface {
	NotifyHighClicks(ctx context.Context, campaignID int) error
}

// StartClickSubscriber runs the high-click rule for every click published on q.
func StartClickSubscriber(q Queue, notifier HighClickNotifier, log logrus.FieldLogger) error {
	err := q.Subscribe(TopicCampaignClicks, func(payload any) error {
		event, err := decodeClickEvent(payload)
		if err != nil {
			log.WithError(err).Warn("dropping malformed click event")
			return nil // no retry
		}
		return notifier.NotifyHighClicks(context.Background(), event.CampaignID)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicCampaignClicks, err)
	}
	return nil
}

func decodeClickEvent(payload any) (ClickEvent, error) {
	switch v := payload.(type) {
	case ClickEvent:
		return v, nil
	case *ClickEvent:
		if v == nil {
			return ClickEvent{}, fmt.Errorf("nil click event")
		}
		return *v, nil
	case json.RawMessage:
		var e ClickEvent
		if err := json.Unmarshal(v, &e); err != nil {
			return ClickEvent{}, err
		}
		return e, nil
	default:
		return ClickEvent{}, fmt.Errorf("unexpected payload type %T", payload)
	}
}
