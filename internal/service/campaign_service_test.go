package service_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
	"github.com/unclebandit/phishdrill-backend/internal/model"
	"github.com/unclebandit/phishdrill-backend/internal/service"
)

func strPtr(s string) *string { return &s }

func TestCreateCampaignInitialState(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)

	draft := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example"}})
	assert.Equal(t, model.StatusDraft, draft.Status)
	assert.Equal(t, "Action Required: Verify Your Account Access", draft.Subject)
	assert.False(t, draft.Approval)
	assert.False(t, draft.EnableSending)

	at := f.clock.Now().Add(time.Hour)
	scheduled := f.createCampaign(t, service.CampaignInput{
		Subject:       "Custom subject",
		Recipients:    []string{"alice@corp.example"},
		ScheduledTime: &at,
	})
	assert.Equal(t, model.StatusScheduled, scheduled.Status)
	assert.Equal(t, "Custom subject", scheduled.Subject)
}

func TestCreateCampaignValidationLeavesNoState(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)

	_, err := f.campaigns.CreateCampaign(f.ctx, service.CampaignInput{
		Name:        "bad template",
		TemplateKey: "nope",
		Recipients:  []string{"alice@corp.example"},
	})
	assert.True(t, appErrors.IsValidation(err))

	_, err = f.campaigns.CreateCampaign(f.ctx, service.CampaignInput{
		Name:        "bad recipient",
		TemplateKey: "login-mimic",
		Recipients:  []string{"ghost@corp.example"},
	})
	assert.True(t, appErrors.IsValidation(err))

	list, err := f.campaigns.ListCampaigns(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListCampaignsCountsRecipients(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)
	first := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example"}})
	second := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example", "bob@corp.example"}})

	list, err := f.campaigns.ListCampaigns(f.ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, 2, list[0].RecipientCount)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestUpdateCampaignWhileEditable(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)
	c := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example"}})

	at := f.clock.Now().Add(2 * time.Hour)
	updated, err := f.campaigns.UpdateCampaign(f.ctx, c.ID, service.CampaignPatch{
		Name:          strPtr("Renamed"),
		TemplateKey:   strPtr("package-delivery"),
		Subject:       strPtr(""),
		ScheduledTime: &at,
		Recipients:    []string{"bob@corp.example", "carol@corp.example"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "Package Arrival Confirmation Needed", updated.Subject)
	assert.Equal(t, model.StatusDraft, updated.Status, "editing the schedule does not change status")

	targets, _ := f.targets.ListTargets(f.ctx, c.ID)
	require.Len(t, targets, 2)
	assert.Equal(t, "bob@corp.example", targets[0].Email)
}

func TestUpdateCampaignValidatesBeforeWriting(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)
	c := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example"}})

	_, err := f.campaigns.UpdateCampaign(f.ctx, c.ID, service.CampaignPatch{
		Name:       strPtr("Should not stick"),
		Recipients: []string{"someone@gmail.com"},
	})
	require.True(t, appErrors.IsValidation(err))

	assert.Equal(t, "Q2 drill", f.reload(t, c.ID).Name)
	targets, _ := f.targets.ListTargets(f.ctx, c.ID)
	require.Len(t, targets, 1)
	assert.Equal(t, "alice@corp.example", targets[0].Email)
}

func TestEditLockOnceRunning(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)
	past := f.clock.Now().Add(-time.Minute)
	c := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example"}, ScheduledTime: &past})

	_, err := f.campaigns.Approve(f.ctx, c.ID)
	require.NoError(t, err)
	f.scheduler.Tick(f.ctx)
	require.Equal(t, model.StatusRunning, f.reload(t, c.ID).Status)

	before, _ := f.targets.ListTargets(f.ctx, c.ID)

	_, err = f.campaigns.UpdateCampaign(f.ctx, c.ID, service.CampaignPatch{
		Name:       strPtr("late change"),
		Recipients: []string{"bob@corp.example"},
	})
	assert.True(t, appErrors.IsValidation(err))

	after := f.reload(t, c.ID)
	assert.Equal(t, "Q2 drill", after.Name)
	current, _ := f.targets.ListTargets(f.ctx, c.ID)
	assert.Equal(t, before[0].Token, current[0].Token)
}

func TestUpdateCampaignRespectsCampaignLock(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)
	past := f.clock.Now().Add(-time.Minute)
	c := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example"}, ScheduledTime: &past})
	before, _ := f.targets.ListTargets(f.ctx, c.ID)

	// the scheduler holds the campaign while it promotes and dispatches
	held := f.locker.NewLock(fmt.Sprintf("campaign:%d", c.ID), time.Minute)
	acquired, err := held.Acquire(f.ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = f.campaigns.UpdateCampaign(f.ctx, c.ID, service.CampaignPatch{
		Name:       strPtr("mid-dispatch edit"),
		Recipients: []string{"bob@corp.example"},
	})
	require.True(t, appErrors.IsValidation(err))
	assert.Equal(t, "Q2 drill", f.reload(t, c.ID).Name)
	current, _ := f.targets.ListTargets(f.ctx, c.ID)
	require.Len(t, current, 1)
	assert.Equal(t, before[0].Token, current[0].Token)

	require.NoError(t, held.Release(f.ctx))

	_, err = f.campaigns.UpdateCampaign(f.ctx, c.ID, service.CampaignPatch{
		Recipients: []string{"bob@corp.example"},
	})
	require.NoError(t, err)

	// the edit released the lock, so the scheduler can take the campaign
	_, err = f.campaigns.Approve(f.ctx, c.ID)
	require.NoError(t, err)
	result := f.scheduler.Tick(f.ctx)
	assert.Equal(t, []int{c.ID}, result.Started)
	require.Len(t, f.transport.sentTo("bob@corp.example"), 1)
	assert.Empty(t, f.transport.sentTo("alice@corp.example"))
}

func TestUpdateUnknownCampaign(t *testing.T) {
	f := newFixture(t)

	_, err := f.campaigns.UpdateCampaign(f.ctx, 404, service.CampaignPatch{Name: strPtr("x")})
	assert.True(t, appErrors.IsNotFound(err))
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)
	c := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example"}})

	approved, err := f.campaigns.Approve(f.ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, approved.Approval)
	assert.Equal(t, model.StatusDraft, approved.Status)

	_, err = f.campaigns.Approve(f.ctx, 999)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestApproveCompletedCampaignFails(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)
	now := f.clock.Now()
	c := f.createCampaign(t, service.CampaignInput{
		Recipients:    []string{"alice@corp.example"},
		ScheduledTime: timePtr(now.Add(-time.Hour)),
		EndTime:       timePtr(now.Add(-time.Minute)),
	})
	_, err := f.campaigns.Approve(f.ctx, c.ID)
	require.NoError(t, err)

	f.scheduler.Tick(f.ctx)
	f.scheduler.Tick(f.ctx)
	require.Equal(t, model.StatusCompleted, f.reload(t, c.ID).Status)

	_, err = f.campaigns.Approve(f.ctx, c.ID)
	assert.True(t, appErrors.IsValidation(err))
}

func TestQueueSend(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)
	future := f.clock.Now().Add(24 * time.Hour)
	c := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example"}, ScheduledTime: &future})

	_, err := f.campaigns.QueueSend(f.ctx, c.ID)
	assert.True(t, appErrors.IsValidation(err), "unapproved campaigns cannot be queued")

	_, err = f.campaigns.Approve(f.ctx, c.ID)
	require.NoError(t, err)

	queued, err := f.campaigns.QueueSend(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, queued.Status)
	require.NotNil(t, queued.ScheduledTime)
	assert.True(t, queued.ScheduledTime.Equal(f.clock.Now()), "future schedule is pulled forward")
}

func TestQueueSendKeepsPastSchedule(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)
	c := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example"}})
	_, err := f.campaigns.Approve(f.ctx, c.ID)
	require.NoError(t, err)

	past := f.clock.Now().Add(-30 * time.Minute)
	_, err = f.campaigns.UpdateCampaign(f.ctx, c.ID, service.CampaignPatch{ScheduledTime: &past})
	require.NoError(t, err)

	queued, err := f.campaigns.QueueSend(f.ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, queued.ScheduledTime.Equal(past))
}

func TestQueueSendRunningCampaignFails(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)
	c := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example"}})
	_, err := f.campaigns.Approve(f.ctx, c.ID)
	require.NoError(t, err)
	_, err = f.campaigns.QueueSend(f.ctx, c.ID)
	require.NoError(t, err)
	f.scheduler.Tick(f.ctx)

	_, err = f.campaigns.QueueSend(f.ctx, c.ID)
	assert.True(t, appErrors.IsValidation(err))
	assert.Equal(t, model.StatusRunning, f.reload(t, c.ID).Status)
}
