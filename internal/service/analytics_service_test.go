package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/phishdrill-backend/internal/model"
	"github.com/unclebandit/phishdrill-backend/internal/queue"
	"github.com/unclebandit/phishdrill-backend/internal/service"
)

func TestComputeAnalytics(t *testing.T) {
	tests := []struct {
		name   string
		counts map[model.EventType]int
		want   model.Analytics
	}{
		{
			name:   "empty",
			counts: map[model.EventType]int{},
			want:   model.Analytics{},
		},
		{
			name:   "clicks without delivery",
			counts: map[model.EventType]int{model.EventClicked: 2, model.EventSubmitted: 1},
			want:   model.Analytics{Clicked: 2, Submitted: 1, SubmitRate: 0.5},
		},
		{
			name: "typical funnel",
			counts: map[model.EventType]int{
				model.EventDelivered: 4, model.EventOpened: 3, model.EventClicked: 2, model.EventSubmitted: 1,
			},
			want: model.Analytics{
				Delivered: 4, Opened: 3, Clicked: 2, Submitted: 1,
				OpenRate: 0.75, ClickRate: 0.5, SubmitRate: 0.5,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.ComputeAnalytics(tt.counts))
		})
	}
}

func TestClickRateWithinBounds(t *testing.T) {
	for delivered := 1; delivered <= 5; delivered++ {
		for clicked := 0; clicked <= delivered; clicked++ {
			a := service.ComputeAnalytics(map[model.EventType]int{
				model.EventDelivered: delivered,
				model.EventClicked:   clicked,
			})
			assert.GreaterOrEqual(t, a.ClickRate, 0.0)
			assert.LessOrEqual(t, a.ClickRate, 1.0)
		}
	}
}

func TestAnalyticsUnknownCampaign(t *testing.T) {
	f := newFixture(t)
	_, err := f.analytics.Analytics(f.ctx, 77)
	assert.Error(t, err)
}

func dispatchedCampaign(t *testing.T, f *fixture, manager string) *model.Campaign {
	t.Helper()
	f.seedStaff(t)
	c := f.createCampaign(t, service.CampaignInput{
		Recipients:   []string{"alice@corp.example", "bob@corp.example", "carol@corp.example", "dan@corp.example"},
		ManagerEmail: manager,
	})
	_, err := f.dispatcher.DispatchCampaign(f.ctx, c.ID)
	require.NoError(t, err)
	return c
}

func alertsTo(f *fixture, manager string) int {
	n := 0
	for _, m := range f.transport.sentTo(manager) {
		if m.Subject == "[Awareness] High click-through alert for campaign Q2 drill" {
			n++
		}
	}
	return n
}

func TestNotifyHighClicksAtMostOnceUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	c := dispatchedCampaign(t, f, "manager@corp.example")

	for i := 0; i < 3; i++ {
		_, err := f.recorder.Record(f.ctx, c.ID, "alice@corp.example", model.EventClicked, "", false)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.analytics.NotifyHighClicks(context.Background(), c.ID))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, alertsTo(f, "manager@corp.example"))
	assert.True(t, f.reload(t, c.ID).NotifiedHighClicks)
}

func TestNotifyHighClicksBelowThreshold(t *testing.T) {
	f := newFixture(t)
	c := dispatchedCampaign(t, f, "manager@corp.example")

	_, err := f.recorder.Record(f.ctx, c.ID, "alice@corp.example", model.EventClicked, "", false)
	require.NoError(t, err)
	require.NoError(t, f.analytics.NotifyHighClicks(f.ctx, c.ID))

	assert.Zero(t, alertsTo(f, "manager@corp.example"))
	assert.False(t, f.reload(t, c.ID).NotifiedHighClicks)
}

func TestNotifyHighClicksWithoutManagerDoesNotLatch(t *testing.T) {
	f := newFixture(t)
	c := dispatchedCampaign(t, f, "")

	for i := 0; i < 4; i++ {
		f.recorder.Record(f.ctx, c.ID, "alice@corp.example", model.EventClicked, "", false)
	}
	require.NoError(t, f.analytics.NotifyHighClicks(f.ctx, c.ID))

	assert.False(t, f.reload(t, c.ID).NotifiedHighClicks)
	for _, m := range f.transport.messages() {
		assert.NotContains(t, m.Subject, "High click-through")
	}
}

func TestNotifyHighClicksSendFailureKeepsLatch(t *testing.T) {
	f := newFixture(t)
	c := dispatchedCampaign(t, f, "manager@corp.example")
	f.transport.failTo("manager@corp.example")

	for i := 0; i < 2; i++ {
		f.recorder.Record(f.ctx, c.ID, "bob@corp.example", model.EventClicked, "", false)
	}
	require.NoError(t, f.analytics.NotifyHighClicks(f.ctx, c.ID))
	assert.True(t, f.reload(t, c.ID).NotifiedHighClicks)

	f.transport.failFor = nil
	require.NoError(t, f.analytics.NotifyHighClicks(f.ctx, c.ID))
	assert.Zero(t, alertsTo(f, "manager@corp.example"), "no second attempt after the latch")
}

func TestTrackingClickTriggersAlertThroughQueue(t *testing.T) {
	f := newFixture(t)
	c := dispatchedCampaign(t, f, "manager@corp.example")

	log, _ := test.NewNullLogger()
	q := queue.NewInMemoryQueue(log)
	require.NoError(t, queue.StartClickSubscriber(q, f.analytics, log))
	f.tracking.Clicks = q

	targets, _ := f.targets.ListTargets(f.ctx, c.ID)
	for _, tg := range targets[:2] {
		require.NotNil(t, f.tracking.Click(f.ctx, tg.Token, "192.0.2.10"))
	}
	q.Wait()

	assert.Equal(t, 1, alertsTo(f, "manager@corp.example"))
	a, err := f.analytics.Analytics(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.5, a.ClickRate)
}

func TestTrackingUnknownToken(t *testing.T) {
	f := newFixture(t)

	f.tracking.Open(f.ctx, "missing", "192.0.2.10")
	assert.Nil(t, f.tracking.Click(f.ctx, "missing", "192.0.2.10"))
	assert.Nil(t, f.tracking.Landing(f.ctx, "missing"))
	assert.Nil(t, f.tracking.Submit(f.ctx, "missing", "192.0.2.10"))
}
