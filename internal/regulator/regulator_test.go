package regulator

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/internal/testkit"
	"github.com/aldoetobex/clearinsure-backend/pkg/database/dbtest"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
)

func claim(t *testing.T, db *gorm.DB, p *models.Policy, ins *principals.Principal, number string, status models.ClaimStatus, risk models.FraudRisk) *models.Claim {
	t.Helper()
	c := models.Claim{
		ClaimNumber: number, PolicyID: p.ID, CompanyID: p.CompanyID, FiledBy: ins.ID,
		AccidentDate:        models.DateOf(time.Now().AddDate(0, 0, -2)),
		AccidentLocation:    "Thika Road",
		AccidentDescription: "Rear-ended at the lights, driver reachable on 0712 345 678 and ID 23456789",
		EstimatedLoss:       decimal.NewFromInt(120000),
		Status:              status,
		FraudRisk:           risk,
	}
	require.NoError(t, db.Create(&c).Error)
	return &c
}

type world struct {
	db       *gorm.DB
	jubilee  *models.Company
	cic      *models.Company
	policies []*models.Policy
}

func build(t *testing.T) world {
	t.Helper()
	db := dbtest.New(t)
	jubilee := testkit.Company(t, db, "Jubilee")
	cic := testkit.Company(t, db, "CIC")
	a := testkit.Insurer(t, db, jubilee.ID)
	b := testkit.Insurer(t, db, cic.ID)

	active := testkit.Policy(t, db, a, func(p *models.Policy) { p.PremiumAmount = decimal.NewFromInt(40000) })
	expired := testkit.Policy(t, db, a, func(p *models.Policy) {
		p.EffectiveDate = models.DateOf(time.Now().AddDate(-1, -1, 0))
		p.ExpiryDate = models.DateOf(time.Now().AddDate(0, -1, 0))
	})
	cancelled := testkit.Policy(t, db, b, func(p *models.Policy) { p.Status = models.PolicyCancelled })

	claim(t, db, active, a, "CL-0001", models.ClaimUnderReview, models.FraudRiskHigh)
	claim(t, db, expired, a, "CL-0002", models.ClaimApproved, models.FraudRiskLow)
	claim(t, db, cancelled, b, "CL-0003", models.ClaimRejected, "")
	return world{db: db, jubilee: jubilee, cic: cic, policies: []*models.Policy{active, expired, cancelled}}
}

func TestPoliciesAreMasked(t *testing.T) {
	w := build(t)
	svc := NewService(w.db)
	ctx := context.Background()

	items, total, err := svc.ListPolicies(ctx, PolicyFilter{Page: 1, Size: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	for _, p := range items {
		assert.Equal(t, "h***@example.com", p.EmailAddress)
		assert.Equal(t, "*****678", p.NationalID)
		assert.NotContains(t, p.PhoneNumber, "712345678")
		assert.NotEmpty(t, p.CompanyName)
	}

	items, total, err = svc.ListPolicies(ctx, PolicyFilter{CompanyID: &w.jubilee.ID, Status: models.PolicyExpired, Page: 1, Size: 10})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, w.policies[1].PolicyNumber, items[0].PolicyNumber)
	assert.Equal(t, models.PolicyExpired, items[0].Status)

	got, err := svc.GetPolicy(ctx, w.policies[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "CIC", got.CompanyName)
	assert.Equal(t, models.PolicyCancelled, got.Status)
}

func TestClaimsAreRedacted(t *testing.T) {
	w := build(t)
	svc := NewService(w.db)

	items, total, err := svc.ListClaims(context.Background(), ClaimFilter{Page: 1, Size: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	for _, c := range items {
		assert.NotContains(t, c.AccidentDescription, "0712 345 678")
		assert.NotContains(t, c.AccidentDescription, "23456789")
		assert.NotEmpty(t, c.PolicyNumber)
	}

	items, _, err = svc.ListClaims(context.Background(), ClaimFilter{CompanyID: &w.cic.ID, Page: 1, Size: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "CL-0003", items[0].ClaimNumber)
}

func TestSummaryPerCompany(t *testing.T) {
	w := build(t)
	out, err := NewService(w.db).Summary(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)

	cic, jubilee := out[0], out[1]
	assert.Equal(t, "CIC", cic.CompanyName)
	assert.EqualValues(t, 1, cic.CancelledPolicies)
	assert.EqualValues(t, 1, cic.RejectedClaims)
	assert.EqualValues(t, 1, cic.Insurers)

	assert.EqualValues(t, 1, jubilee.ActivePolicies)
	assert.EqualValues(t, 1, jubilee.ExpiredPolicies)
	assert.Equal(t, "40000", jubilee.ActivePremium.String())
	assert.EqualValues(t, 1, jubilee.OpenClaims)
	assert.EqualValues(t, 1, jubilee.ApprovedClaims)
	assert.EqualValues(t, 1, jubilee.HighRiskClaims)
}

func TestRegulatorEndpoints(t *testing.T) {
	w := build(t)
	h := NewHandler(NewService(w.db))
	app := fiber.New()
	app.Get("/regulator/policies", h.ListPolicies)
	app.Get("/regulator/claims", h.ListClaims)
	app.Get("/regulator/summary", h.Summary)

	get := func(path string) (int, map[string]any) {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
		require.NoError(t, err)
		raw, _ := io.ReadAll(resp.Body)
		out := map[string]any{}
		_ = json.Unmarshal(raw, &out)
		return resp.StatusCode, out
	}

	status, body := get("/regulator/policies?status=Active")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, body = get("/regulator/policies?company_id=nope")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["errors"], "company_id")

	status, _ = get("/regulator/claims?status=Closed")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = get("/regulator/claims?status=Under%20Review")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, _ = get("/regulator/summary")
	assert.Equal(t, fiber.StatusOK, status)
}
