package service_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
	"github.com/unclebandit/phishdrill-backend/internal/service"
)

func TestSetTargetsReissuesTokens(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)
	c := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example", "bob@corp.example"}})

	before, err := f.targets.ListTargets(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, before, 2)

	after, err := f.targets.SetTargets(f.ctx, c.ID, []string{"alice@corp.example", "bob@corp.example"})
	require.NoError(t, err)
	require.Len(t, after, 2)

	for i := range before {
		assert.NotEqual(t, before[i].Token, after[i].Token)
		_, err := f.targets.FindByToken(f.ctx, before[i].Token)
		assert.True(t, appErrors.IsNotFound(err), "old token must stop resolving")

		got, err := f.targets.FindByToken(f.ctx, after[i].Token)
		require.NoError(t, err)
		assert.Equal(t, after[i].Email, got.Email)
	}
}

func TestSetTargetsRejectsDeniedDomainAtomically(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)
	c := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example"}})
	original, _ := f.targets.ListTargets(f.ctx, c.ID)

	_, err := f.targets.SetTargets(f.ctx, c.ID, []string{"bob@corp.example", "someone@gmail.com"})
	require.Error(t, err)

	var verr *appErrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"gmail.com"}, verr.Items)
	assert.Contains(t, err.Error(), "gmail.com")

	current, _ := f.targets.ListTargets(f.ctx, c.ID)
	assert.Equal(t, original, current)
}

func TestResolveNamesUnknownRecipients(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)

	_, err := f.targets.Resolve(f.ctx, []string{"alice@corp.example", "ghost@corp.example"})
	var verr *appErrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"ghost@corp.example"}, verr.Items)
}

func TestResolveNormalizesAndDeduplicates(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)

	employees, err := f.targets.Resolve(f.ctx, []string{" ALICE@corp.example", "alice@corp.example", "", "bob@corp.example"})
	require.NoError(t, err)
	require.Len(t, employees, 2)
	assert.Equal(t, "alice@corp.example", employees[0].Email)
	assert.Equal(t, "Finance", employees[0].Department)
}

func TestResolveEmptyList(t *testing.T) {
	f := newFixture(t)

	_, err := f.targets.Resolve(f.ctx, nil)
	assert.True(t, appErrors.IsValidation(err))
}

func TestReplaceStorageFailureIsIntegrityError(t *testing.T) {
	f := newFixture(t)
	f.seedStaff(t)
	c := f.createCampaign(t, service.CampaignInput{Recipients: []string{"alice@corp.example"}})

	targets := &service.TargetService{
		Targets:   &failingTargetStore{TargetStore: f.store.Targets, err: errors.New("disk full")},
		Allowlist: f.allowlist,
		Tokens:    service.SHA256TokenGenerator{},
	}
	_, err := targets.SetTargets(f.ctx, c.ID, []string{"bob@corp.example"})
	assert.True(t, appErrors.IsIntegrity(err))

	current, _ := f.targets.ListTargets(f.ctx, c.ID)
	require.Len(t, current, 1)
	assert.Equal(t, "alice@corp.example", current[0].Email)
}
