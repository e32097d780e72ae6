package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aldoetobex/clearinsure-backend/internal/testkit"
	"github.com/aldoetobex/clearinsure-backend/pkg/config"
	"github.com/aldoetobex/clearinsure-backend/pkg/database/dbtest"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
)

func cfg() config.SeedConfig {
	return config.SeedConfig{
		AdminUsername:    "admin",
		AdminEmail:       " Admin@ClearInsure.com ",
		AdminPassword:    "s3cret-pass",
		AdminStaffID:     "ADMIN001",
		Companies:        []string{"Jubilee", "CIC", " Jubilee ", ""},
		RegulatoryBodies: []string{"IRA"},
		DefaultRates:     true,
	}
}

func TestRunCreatesReferenceData(t *testing.T) {
	db := dbtest.New(t)

	res, err := Run(context.Background(), db, cfg(), nil)
	require.NoError(t, err)
	assert.True(t, res.Admin)
	assert.Equal(t, 2, res.Companies)
	assert.Equal(t, 1, res.RegulatoryBodies)
	assert.Equal(t, 8, res.Rates)

	var admin models.Admin
	require.NoError(t, db.Where("username = ?", "admin").Take(&admin).Error)
	assert.Equal(t, "admin@clearinsure.com", admin.Email)
	assert.True(t, admin.Active)
	require.NotNil(t, admin.StaffID)
	assert.Equal(t, "ADMIN001", *admin.StaffID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("s3cret-pass")))

	var registry int64
	db.Model(&models.PrincipalIdentity{}).Where("email = ?", "admin@clearinsure.com").Count(&registry)
	assert.EqualValues(t, 1, registry)
}

func TestRunIsIdempotent(t *testing.T) {
	db := dbtest.New(t)
	existing := testkit.Company(t, db, "CIC")
	require.NoError(t, db.Create(&models.PremiumRate{CompanyID: existing.ID, CoverType: models.CoverPSV, Active: true}).Error)

	first, err := Run(context.Background(), db, cfg(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Companies)
	assert.Equal(t, 7, first.Rates)

	c := cfg()
	c.AdminPassword = ""
	second, err := Run(context.Background(), db, c, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{}, second)

	var psv models.PremiumRate
	require.NoError(t, db.Where("company_id = ? AND cover_type = ?", existing.ID, models.CoverPSV).Take(&psv).Error)
	assert.True(t, psv.PSVBusRate.IsZero())
}

func TestRunNeedsAdminPassword(t *testing.T) {
	db := dbtest.New(t)
	c := cfg()
	c.AdminPassword = ""

	_, err := Run(context.Background(), db, c, nil)
	require.ErrorIs(t, err, ErrAdminPassword)

	var n int64
	db.Model(&models.Company{}).Count(&n)
	assert.Zero(t, n)
}

func TestRunSkipsRatesWhenDisabled(t *testing.T) {
	db := dbtest.New(t)
	c := cfg()
	c.DefaultRates = false

	res, err := Run(context.Background(), db, c, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Rates)
}
