package requests

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/internal/auth"
	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/internal/testkit"
	"github.com/aldoetobex/clearinsure-backend/pkg/database/dbtest"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	insurer  *principals.Principal
	customer *principals.Principal
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := dbtest.New(t)
	return fixture{
		db:       db,
		svc:      NewService(db, nil, nil),
		insurer:  testkit.Insurer(t, db, testkit.Company(t, db, "Jubilee").ID),
		customer: testkit.Account(t, db, models.RoleCustomer),
	}
}

// expiringIn creates a policy owned by the customer that expires in days.
func (f fixture) expiringIn(t *testing.T, days int) *models.Policy {
	t.Helper()
	return testkit.Policy(t, f.db, f.insurer, func(p *models.Policy) {
		p.EmailAddress = f.customer.Email
		p.ExpiryDate = models.DateOf(time.Now()).AddDate(0, 0, days)
		p.EffectiveDate = p.ExpiryDate.AddDate(-1, 0, 0)
	})
}

func approve() Decision             { return Decision{Approve: true} }
func reject(reason string) Decision { return Decision{Reason: reason} }

func TestRenewalWindow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	far := f.expiringIn(t, 45)
	_, err := f.svc.RequestRenewal(ctx, f.customer, far.ID, "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))

	near := f.expiringIn(t, 10)
	r, err := f.svc.RequestRenewal(ctx, f.customer, near.ID, "same cover please")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, r.Status)
	assert.Equal(t, near.ExpiryDate.AddDate(0, 0, 1), r.NewEffectiveDate)
	assert.Equal(t, near.ExpiryDate.AddDate(0, 0, 365), r.NewExpiryDate)
	assert.True(t, near.PremiumAmount.Equal(r.CurrentPremium))

	_, err = f.svc.RequestRenewal(ctx, f.customer, near.ID, "")
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	today := f.expiringIn(t, 0)
	_, err = f.svc.RequestRenewal(ctx, f.customer, today.ID, "")
	assert.NoError(t, err)

	lapsed := f.expiringIn(t, -1)
	_, err = f.svc.RequestRenewal(ctx, f.customer, lapsed.ID, "")
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))
}

func TestRenewalNeedsOwnActivePolicy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	other := testkit.Policy(t, f.db, f.insurer, func(p *models.Policy) {
		p.ExpiryDate = models.DateOf(time.Now()).AddDate(0, 0, 5)
	})
	_, err := f.svc.RequestRenewal(ctx, f.customer, other.ID, "")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	cancelled := f.expiringIn(t, 5)
	require.NoError(t, f.db.Model(cancelled).Update("status", models.PolicyCancelled).Error)
	_, err = f.svc.RequestRenewal(ctx, f.customer, cancelled.ID, "")
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))
}

func TestRenewalApprovalMutatesPolicyInPlace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.expiringIn(t, 7)

	r, err := f.svc.RequestRenewal(ctx, f.customer, p.ID, "")
	require.NoError(t, err)

	d := approve()
	d.Premium = decimal.NewNullDecimal(decimal.Zero)
	_, err = f.svc.ReviewRenewal(ctx, f.insurer, r.ID, d)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	d.Premium = decimal.NewNullDecimal(decimal.RequireFromString("61000"))
	out, err := f.svc.ReviewRenewal(ctx, f.insurer, r.ID, d)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, out.Status)
	require.True(t, out.ApprovedPremium.Valid)
	assert.True(t, decimal.RequireFromString("61000").Equal(out.ApprovedPremium.Decimal))

	var stored models.Policy
	require.NoError(t, f.db.First(&stored, "id = ?", p.ID).Error)
	assert.Equal(t, p.PolicyNumber, stored.PolicyNumber)
	assert.Equal(t, r.NewEffectiveDate.Format("2006-01-02"), stored.EffectiveDate.Format("2006-01-02"))
	assert.Equal(t, r.NewExpiryDate.Format("2006-01-02"), stored.ExpiryDate.Format("2006-01-02"))
	assert.Equal(t, models.PolicyActive, stored.Status)
	assert.True(t, decimal.RequireFromString("61000").Equal(stored.PremiumAmount))
	assert.NotNil(t, stored.RenewedAt)

	var n int64
	f.db.Model(&models.Policy{}).Count(&n)
	assert.EqualValues(t, 1, n)

	_, err = f.svc.ReviewRenewal(ctx, f.insurer, r.ID, approve())
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))
}

func TestRenewalOfCancelledPolicyIsRefusedAtReview(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.expiringIn(t, 3)
	r, err := f.svc.RequestRenewal(ctx, f.customer, p.ID, "")
	require.NoError(t, err)

	require.NoError(t, f.db.Model(p).Update("status", models.PolicyCancelled).Error)
	_, err = f.svc.ReviewRenewal(ctx, f.insurer, r.ID, approve())
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))

	var stored models.PolicyRenewalRequest
	require.NoError(t, f.db.First(&stored, "id = ?", r.ID).Error)
	assert.Equal(t, models.RequestPending, stored.Status)
}

func TestCancellationRequestFlow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.expiringIn(t, 200)

	_, err := f.svc.RequestCancellation(ctx, f.customer, p.ID, " ")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	r, err := f.svc.RequestCancellation(ctx, f.customer, p.ID, "Sold the car")
	require.NoError(t, err)
	_, err = f.svc.RequestCancellation(ctx, f.customer, p.ID, "again")
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	other := testkit.Insurer(t, f.db, testkit.Company(t, f.db, "CIC").ID)
	_, err = f.svc.ReviewCancellation(ctx, other, r.ID, approve())
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, err = f.svc.ReviewCancellation(ctx, f.insurer, r.ID, reject(""))
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	out, err := f.svc.ReviewCancellation(ctx, f.insurer, r.ID, approve())
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, out.Status)

	var stored models.Policy
	require.NoError(t, f.db.First(&stored, "id = ?", p.ID).Error)
	assert.Equal(t, models.PolicyCancelled, stored.Status)
	require.NotNil(t, stored.CancelledBy)
	assert.Equal(t, f.insurer.ID, *stored.CancelledBy)
	assert.Equal(t, "Sold the car", stored.CancellationReason)

	_, err = f.svc.RequestCancellation(ctx, f.customer, p.ID, "once more")
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))
	_, err = f.svc.RequestRenewal(ctx, f.customer, p.ID, "")
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))
}

func TestRejectedCancellationAllowsNewRequest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.expiringIn(t, 90)

	r, err := f.svc.RequestCancellation(ctx, f.customer, p.ID, "Too expensive")
	require.NoError(t, err)
	out, err := f.svc.ReviewCancellation(ctx, f.insurer, r.ID, reject("Premium already paid for the term"))
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, out.Status)
	assert.Equal(t, "Premium already paid for the term", out.RejectionReason)

	var stored models.Policy
	require.NoError(t, f.db.First(&stored, "id = ?", p.ID).Error)
	assert.Equal(t, models.PolicyActive, stored.Status)

	_, err = f.svc.RequestCancellation(ctx, f.customer, p.ID, "Still too expensive")
	assert.NoError(t, err)
}

func TestTransferredPolicyRefusesFormerHolderRequests(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.expiringIn(t, 20)

	cancel, err := f.svc.RequestCancellation(ctx, f.customer, p.ID, "Selling <b>the car</b>")
	require.NoError(t, err)
	assert.Equal(t, "Selling the car", cancel.Reason)
	renew, err := f.svc.RequestRenewal(ctx, f.customer, p.ID, "")
	require.NoError(t, err)

	buyer := testkit.Account(t, f.db, models.RoleCustomer)
	access, err := f.svc.RequestAccess(ctx, buyer, p.PolicyNumber, "Bought the vehicle")
	require.NoError(t, err)
	_, err = f.svc.ReviewAccess(ctx, f.insurer, access.ID, approve())
	require.NoError(t, err)

	_, err = f.svc.ReviewCancellation(ctx, f.insurer, cancel.ID, approve())
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))
	_, err = f.svc.ReviewRenewal(ctx, f.insurer, renew.ID, approve())
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))

	var stored models.Policy
	require.NoError(t, f.db.First(&stored, "id = ?", p.ID).Error)
	assert.Equal(t, models.PolicyActive, stored.Status)
	assert.Equal(t, buyer.Email, stored.EmailAddress)
	assert.Equal(t, p.ExpiryDate.Format("2006-01-02"), stored.ExpiryDate.Format("2006-01-02"))

	out, err := f.svc.ReviewCancellation(ctx, f.insurer, cancel.ID, reject("<i>Policy transferred</i>"))
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, out.Status)
	assert.Equal(t, "Policy transferred", out.RejectionReason)
}

func TestAccessRequestTransfersOwnership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := testkit.Policy(t, f.db, f.insurer, func(p *models.Policy) { p.EmailAddress = "previous.owner@example.com" })

	found, err := f.svc.SearchPolicy(ctx, f.customer, strings.ToLower(p.PolicyNumber))
	require.NoError(t, err)
	assert.Equal(t, "Jubilee", found.CompanyName)
	assert.Equal(t, "p***@example.com", found.HolderEmail)
	assert.False(t, found.Owned)

	_, err = f.svc.RequestAccess(ctx, f.customer, p.PolicyNumber, "")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	_, err = f.svc.RequestAccess(ctx, f.customer, "CO-9999", "mine")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	r, err := f.svc.RequestAccess(ctx, f.customer, p.PolicyNumber, "Bought the vehicle")
	require.NoError(t, err)
	_, err = f.svc.RequestAccess(ctx, f.customer, p.PolicyNumber, "again")
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	found, err = f.svc.SearchPolicy(ctx, f.customer, p.PolicyNumber)
	require.NoError(t, err)
	assert.True(t, found.PendingRequest)

	_, err = f.svc.ReviewAccess(ctx, f.insurer, r.ID, approve())
	require.NoError(t, err)

	var stored models.Policy
	require.NoError(t, f.db.First(&stored, "id = ?", p.ID).Error)
	assert.Equal(t, f.customer.Email, stored.EmailAddress)

	_, err = f.svc.RequestAccess(ctx, f.customer, p.PolicyNumber, "again")
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	_, err = f.svc.ReviewAccess(ctx, f.insurer, r.ID, reject("late"))
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))
}

func TestListsAreScoped(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.expiringIn(t, 12)
	_, err := f.svc.RequestRenewal(ctx, f.customer, p.ID, "")
	require.NoError(t, err)

	mine, err := f.svc.List(ctx, Query{Kind: KindRenewal, CustomerID: &f.customer.ID, Page: 1, Size: 10})
	require.NoError(t, err)
	page := mine.(models.Page[models.PolicyRenewalRequest])
	require.EqualValues(t, 1, page.Total)
	require.NotNil(t, page.Items[0].Policy)
	assert.Equal(t, p.PolicyNumber, page.Items[0].Policy.PolicyNumber)
	assert.Empty(t, page.Items[0].Policy.NationalID)

	company := *f.insurer.AffiliationID
	queue, err := f.svc.List(ctx, Query{Kind: KindRenewal, CompanyID: &company, Status: models.RequestPending, Page: 1, Size: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, queue.(models.Page[models.PolicyRenewalRequest]).Total)

	other := testkit.Company(t, f.db, "APA").ID
	empty, err := f.svc.List(ctx, Query{Kind: KindRenewal, CompanyID: &other, Page: 1, Size: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 0, empty.(models.Page[models.PolicyRenewalRequest]).Total)
}

/* ================================= HTTP ================================= */

func newApp(f fixture, p *principals.Principal) *fiber.App {
	h := NewHandler(f.svc)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(nil)})
	app.Use(func(c *fiber.Ctx) error {
		auth.SetPrincipal(c, p)
		return c.Next()
	})
	app.Post("/customer/requests/renewal", h.RequestRenewal)
	app.Get("/customer/requests/:kind", h.ListMine)
	app.Get("/insurer/requests/:kind", h.Queue)
	app.Post("/insurer/requests/:kind/:id/review", h.Review)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestRenewalEndpoints(t *testing.T) {
	f := setup(t)
	p := f.expiringIn(t, 45)
	cust, ins := newApp(f, f.customer), newApp(f, f.insurer)

	status, body := do(t, cust, "POST", "/customer/requests/renewal", `{"policy_id":"`+p.ID.String()+`"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.EqualValues(t, 45, body["details"].(map[string]any)["days_until_expiry"])

	near := f.expiringIn(t, 10)
	status, body = do(t, cust, "POST", "/customer/requests/renewal", `{"policy_id":"`+near.ID.String()+`"}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	id := body["id"].(string)

	status, body = do(t, ins, "GET", "/insurer/requests/renewal", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, _ = do(t, ins, "GET", "/insurer/requests/refund", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = do(t, ins, "POST", "/insurer/requests/renewal/"+id+"/review", `{"decision":"reject"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["errors"], "reason")

	status, body = do(t, ins, "POST", "/insurer/requests/renewal/"+id+"/review", `{"decision":"approve","premium":" 58000 "}`)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "approved", body["status"])

	status, body = do(t, ins, "GET", "/insurer/requests/renewal", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, body["total"])

	status, body = do(t, cust, "GET", "/customer/requests/renewal?status=approved", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])
}
