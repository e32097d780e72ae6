package onboarding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/internal/testkit"
	"github.com/aldoetobex/clearinsure-backend/pkg/database/dbtest"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
)

func TestInsurerApprovalBindsCompany(t *testing.T) {
	db := dbtest.New(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	company := testkit.Company(t, db, "Britam")
	admin := testkit.Account(t, db, models.RoleAdmin)
	ins := testkit.Account(t, db, models.RoleInsurer)

	req, err := svc.Submit(ctx, ins, "STF-001", company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)

	dir := principals.NewDirectory(db)
	state, err := dir.OnboardingState(ctx, ins)
	require.NoError(t, err)
	assert.Equal(t, principals.OnboardingPending, state)

	reviewed, err := svc.Review(ctx, admin.ID, models.RoleInsurer, req.ID, Decision{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, admin.ID, *reviewed.ReviewedBy)

	got, err := dir.Resolve(ctx, ins.Identity)
	require.NoError(t, err)
	assert.True(t, got.Approved)
	require.NotNil(t, got.AffiliationID)
	assert.Equal(t, company.ID, *got.AffiliationID)
	assert.Equal(t, "STF-001", got.StaffID)
	assert.NotNil(t, got.ApprovalDate)
}

func TestReviewedRequestIsTerminal(t *testing.T) {
	db := dbtest.New(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	body := testkit.Body(t, db, "IRA")
	admin := testkit.Account(t, db, models.RoleAdmin)
	reg := testkit.Account(t, db, models.RoleRegulator)

	req, err := svc.Submit(ctx, reg, "REG-9", body.ID)
	require.NoError(t, err)

	_, err = svc.Review(ctx, admin.ID, models.RoleRegulator, req.ID, Decision{Approve: false, Reason: "staff id not recognised"})
	require.NoError(t, err)

	_, err = svc.Review(ctx, admin.ID, models.RoleRegulator, req.ID, Decision{Approve: true})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))

	var stored models.RegulatorRequest
	require.NoError(t, db.First(&stored, "id = ?", req.ID).Error)
	assert.Equal(t, models.RequestRejected, stored.Status)
	assert.Equal(t, "staff id not recognised", stored.RejectionReason)

	var r models.Regulator
	require.NoError(t, db.First(&r, "id = ?", reg.ID).Error)
	assert.False(t, r.Approved)

	state, err := principals.NewDirectory(db).OnboardingState(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, principals.OnboardingRejected, state)
}

func TestRejectionNeedsReason(t *testing.T) {
	db := dbtest.New(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	company := testkit.Company(t, db, "CIC")
	ins := testkit.Account(t, db, models.RoleInsurer)
	req, err := svc.Submit(ctx, ins, "S1", company.ID)
	require.NoError(t, err)

	_, err = svc.Review(ctx, testkit.Account(t, db, models.RoleAdmin).ID, models.RoleInsurer, req.ID, Decision{Reason: "  "})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestOnlyOnePendingRequest(t *testing.T) {
	db := dbtest.New(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	company := testkit.Company(t, db, "APA")
	ins := testkit.Account(t, db, models.RoleInsurer)

	_, err := svc.Submit(ctx, ins, "S1", company.ID)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, ins, "S1", company.ID)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestSubmitRejectsInactiveCompany(t *testing.T) {
	db := dbtest.New(t)
	svc := NewService(db, nil, nil)

	company := testkit.Company(t, db, "Madison")
	require.NoError(t, db.Model(company).Update("active", false).Error)

	_, err := svc.Submit(context.Background(), testkit.Account(t, db, models.RoleInsurer), "S1", company.ID)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestListFiltersByStatus(t *testing.T) {
	db := dbtest.New(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	company := testkit.Company(t, db, "Jubilee")
	admin := testkit.Account(t, db, models.RoleAdmin)
	first, err := svc.Submit(ctx, testkit.Account(t, db, models.RoleInsurer), "S1", company.ID)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, testkit.Account(t, db, models.RoleInsurer), "S2", company.ID)
	require.NoError(t, err)
	_, err = svc.Review(ctx, admin.ID, models.RoleInsurer, first.ID, Decision{Approve: true})
	require.NoError(t, err)

	pending, total, err := svc.List(ctx, models.RoleInsurer, models.RequestPending, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, pending, 1)
	assert.Equal(t, "Jubilee", pending[0].AffiliationName)
	assert.NotEmpty(t, pending[0].Username)
}
