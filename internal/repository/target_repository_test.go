package repository_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
	"github.com/unclebandit/phishdrill-backend/internal/model"
	"github.com/unclebandit/phishdrill-backend/internal/repository"
)

var targetCols = []string{"id", "campaign_id", "email", "name", "department", "token", "delivered"}

func TestTargetRepository_ReplaceTargets(t *testing.T) {
	db, mock := newMock(t)
	repo := &repository.TargetRepository{DB: db}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM campaign_targets WHERE campaign_id=$1")).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO campaign_targets")).
		WithArgs(5, "a@corp.example", "A", "Ops", "tok-a").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO campaign_targets")).
		WithArgs(5, "b@corp.example", "B", "Finance", "tok-b").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectCommit()

	targets := []model.CampaignTarget{
		{Email: "a@corp.example", Name: "A", Department: "Ops", Token: "tok-a"},
		{Email: "b@corp.example", Name: "B", Department: "Finance", Token: "tok-b"},
	}
	require.NoError(t, repo.ReplaceTargets(context.Background(), 5, targets))

	assert.Equal(t, 11, targets[0].ID)
	assert.Equal(t, 12, targets[1].ID)
	assert.Equal(t, 5, targets[1].CampaignID)
}

func TestTargetRepository_ReplaceTargetsTokenCollisionRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := &repository.TargetRepository{DB: db}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM campaign_targets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO campaign_targets").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := repo.ReplaceTargets(context.Background(), 5, []model.CampaignTarget{{Email: "a@corp.example", Token: "dup"}})
	require.Error(t, err)
	assert.True(t, appErrors.IsIntegrity(err))
	assert.Contains(t, err.Error(), "issue token")
}

func TestTargetRepository_FindByToken(t *testing.T) {
	db, mock := newMock(t)
	repo := &repository.TargetRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE token=$1")).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(targetCols).AddRow(1, 5, "a@corp.example", "A", "Ops", "abc", true))

	target, err := repo.FindByToken(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "a@corp.example", target.Email)
	assert.True(t, target.Delivered)
}

func TestTargetRepository_FindByTokenUnknown(t *testing.T) {
	db, mock := newMock(t)
	repo := &repository.TargetRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE token=$1")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByToken(context.Background(), "nope")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestTargetRepository_CountDeliveredAndMark(t *testing.T) {
	db, mock := newMock(t)
	repo := &repository.TargetRepository{DB: db}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE campaign_targets SET delivered=TRUE WHERE id=$1")).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE campaign_id=$1 AND delivered")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	require.NoError(t, repo.MarkDelivered(context.Background(), 3))
	n, err := repo.CountDelivered(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
