package policies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
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
	"github.com/aldoetobex/clearinsure-backend/internal/storage"
	"github.com/aldoetobex/clearinsure-backend/internal/testkit"
	"github.com/aldoetobex/clearinsure-backend/pkg/database/dbtest"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
)

func newService(t *testing.T, db *gorm.DB) (*Service, *storage.Local) {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return NewService(Params{DB: db, Store: store}), store
}

func application(reg string, eff time.Time) Application {
	return Application{
		PolicyType:         models.CoverComprehensive,
		EffectiveDate:      eff,
		PremiumAmount:      decimal.RequireFromString("45000"),
		InsuredName:        "John Otieno",
		NationalID:         "23456789",
		PhoneNumber:        "+254700000001",
		EmailAddress:       "John@Example.com",
		RegistrationNumber: reg,
		MakeModel:          "Mazda Demio",
		YearOfManufacture:  2016,
		SumInsured:         decimal.RequireFromString("900000"),
	}
}

func TestCreateNumbersAndDatesPolicy(t *testing.T) {
	db := dbtest.New(t)
	svc, _ := newService(t, db)
	ins := testkit.Insurer(t, db, testkit.Company(t, db, "Jubilee").ID)

	eff := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	p, err := svc.Create(context.Background(), ins, application("kaa 100a", eff), nil)
	require.NoError(t, err)

	assert.Equal(t, "CO-0001", p.PolicyNumber)
	assert.Equal(t, "2025-03-10", p.ExpiryDate.Format("2006-01-02"))
	assert.Equal(t, "KAA 100A", p.RegistrationNumber)
	assert.Equal(t, "john@example.com", p.EmailAddress)
	assert.Equal(t, models.PolicyActive, p.Status)
	assert.Equal(t, ins.ID, p.CreatedBy)

	tpo := application("KAA 101A", eff)
	tpo.PolicyType = models.CoverThirdPartyFireTheft
	p2, err := svc.Create(context.Background(), ins, tpo, nil)
	require.NoError(t, err)
	assert.Equal(t, "TO-0001", p2.PolicyNumber)

	again, err := svc.Create(context.Background(), ins, application("KAA 102A", eff), nil)
	require.NoError(t, err)
	assert.Equal(t, "CO-0002", again.PolicyNumber)
}

func TestCreateRejectsSecondActivePolicyForVehicle(t *testing.T) {
	db := dbtest.New(t)
	svc, _ := newService(t, db)
	ctx := context.Background()
	ins := testkit.Insurer(t, db, testkit.Company(t, db, "Britam").ID)
	other := testkit.Insurer(t, db, testkit.Company(t, db, "CIC").ID)

	today := time.Now()
	first, err := svc.Create(ctx, ins, application("KBZ 555Q", today), nil)
	require.NoError(t, err)

	_, err = svc.Create(ctx, other, application(" kbz  555q ", today), nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), first.PolicyNumber)

	var n int64
	require.NoError(t, db.Model(&models.Policy{}).Where("registration_number = ?", "KBZ 555Q").Count(&n).Error)
	assert.Equal(t, int64(1), n)

	_, err = svc.Cancel(ctx, ins, first.ID, "sold vehicle")
	require.NoError(t, err)
	_, err = svc.Create(ctx, other, application("KBZ 555Q", today), nil)
	assert.NoError(t, err)
}

func TestExpiredPolicyDoesNotBlockRegistration(t *testing.T) {
	db := dbtest.New(t)
	svc, _ := newService(t, db)
	ins := testkit.Insurer(t, db, testkit.Company(t, db, "APA").ID)

	testkit.Policy(t, db, ins, func(p *models.Policy) {
		p.RegistrationNumber = "KCA 001A"
		p.EffectiveDate = models.DateOf(time.Now().AddDate(-2, 0, 0))
		p.ExpiryDate = models.DateOf(time.Now().AddDate(-1, 0, -1))
	})

	_, err := svc.Create(context.Background(), ins, application("KCA 001A", time.Now()), nil)
	assert.NoError(t, err)
}

func TestCancelTransitions(t *testing.T) {
	db := dbtest.New(t)
	svc, _ := newService(t, db)
	ctx := context.Background()
	ins := testkit.Insurer(t, db, testkit.Company(t, db, "Madison").ID)

	active := testkit.Policy(t, db, ins, nil)
	_, err := svc.Cancel(ctx, ins, active.ID, "  ")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	res, err := svc.Cancel(ctx, ins, active.ID, "customer request")
	require.NoError(t, err)
	assert.False(t, res.AlreadyCancelled)
	assert.Equal(t, models.PolicyCancelled, res.Policy.Status)
	require.NotNil(t, res.Policy.CancelledBy)
	assert.Equal(t, ins.ID, *res.Policy.CancelledBy)

	res, err = svc.Cancel(ctx, ins, active.ID, "again")
	require.NoError(t, err)
	assert.True(t, res.AlreadyCancelled)
	assert.Equal(t, "customer request", res.Policy.CancellationReason)

	expired := testkit.Policy(t, db, ins, func(p *models.Policy) {
		p.ExpiryDate = models.DateOf(time.Now().AddDate(0, 0, -3))
	})
	_, err = svc.Cancel(ctx, ins, expired.ID, "late")
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))

	foreign := testkit.Insurer(t, db, testkit.Company(t, db, "Other").ID)
	_, err = svc.Cancel(ctx, foreign, testkit.Policy(t, db, ins, nil).ID, "x")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestListFiltersDerivedStatus(t *testing.T) {
	db := dbtest.New(t)
	svc, _ := newService(t, db)
	ins := testkit.Insurer(t, db, testkit.Company(t, db, "Jubilee").ID)

	testkit.Policy(t, db, ins, nil)
	testkit.Policy(t, db, ins, func(p *models.Policy) { p.ExpiryDate = models.DateOf(time.Now().AddDate(0, 0, -1)) })
	testkit.Policy(t, db, ins, func(p *models.Policy) { p.Status = models.PolicyCancelled })

	for status, want := range map[models.PolicyStatus]int64{
		models.PolicyActive: 1, models.PolicyExpired: 1, models.PolicyCancelled: 1, "": 3,
	} {
		items, total, err := svc.ListCompany(context.Background(), *ins.AffiliationID, Filter{Status: status, Page: 1, Size: 10})
		require.NoError(t, err)
		assert.Equal(t, want, total, status)
		for _, it := range items {
			if status != "" {
				assert.Equal(t, status, it.EffectiveStatus)
			}
		}
	}
}

func TestCreateFromQuoteMarksConverted(t *testing.T) {
	db := dbtest.New(t)
	svc, _ := newService(t, db)
	ins := testkit.Insurer(t, db, testkit.Company(t, db, "CIC").ID)

	q := models.Quote{
		QuoteNumber: "QT-0001", CompanyID: *ins.AffiliationID, CreatedBy: ins.ID,
		CoverType: models.CoverComprehensive, VehicleValue: decimal.NewFromInt(900000),
		BasePremium: decimal.NewFromInt(36000), AddOnsTotal: decimal.Zero, TotalPremium: decimal.NewFromInt(36000),
		ValidUntil: time.Now().AddDate(0, 0, 30), Status: models.QuoteSent,
	}
	require.NoError(t, db.Create(&q).Error)

	app := application("KDA 777D", time.Now())
	app.QuoteID = &q.ID
	p, err := svc.Create(context.Background(), ins, app, nil)
	require.NoError(t, err)

	var got models.Quote
	require.NoError(t, db.First(&got, "id = ?", q.ID).Error)
	assert.Equal(t, models.QuoteConverted, got.Status)
	require.NotNil(t, got.PolicyID)
	assert.Equal(t, p.ID, *got.PolicyID)

	app.RegistrationNumber = "KDA 778D"
	_, err = svc.Create(context.Background(), ins, app, nil)
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))
}

func photoUploads(t *testing.T, slots ...string) []storage.Upload {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, s := range slots {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+s+`"; filename="`+s+`.jpg"`)
		h.Set("Content-Type", "image/jpeg")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, _ = part.Write([]byte("jpeg"))
	}
	require.NoError(t, w.Close())
	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	ups, _ := storage.PhotosFromForm(form, 1<<20)
	return ups
}

func TestCreateStoresPhotosUnderFinalKeys(t *testing.T) {
	db := dbtest.New(t)
	svc, store := newService(t, db)
	ins := testkit.Insurer(t, db, testkit.Company(t, db, "Britam").ID)

	p, err := svc.Create(context.Background(), ins, application("KDD 123D", time.Now()), photoUploads(t, "front_view", "odometer"))
	require.NoError(t, err)
	require.Len(t, p.Photos, 2)

	for _, ph := range p.Photos {
		rc, err := store.Open(context.Background(), ph.Key)
		require.NoError(t, err, ph.Key)
		rc.Close()
	}
}

func TestFailedCreateDiscardsStagedPhotos(t *testing.T) {
	db := dbtest.New(t)
	svc, _ := newService(t, db)
	ins := testkit.Insurer(t, db, testkit.Company(t, db, "Britam").ID)
	existing := testkit.Policy(t, db, ins, nil)

	_, err := svc.Create(context.Background(), ins, application(existing.RegistrationNumber, time.Now()), photoUploads(t, "front_view"))
	require.Error(t, err)

	var n int64
	require.NoError(t, db.Model(&models.PolicyPhoto{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestAttachPhotosReplacesSlot(t *testing.T) {
	db := dbtest.New(t)
	svc, store := newService(t, db)
	ctx := context.Background()
	ins := testkit.Insurer(t, db, testkit.Company(t, db, "APA").ID)
	p := testkit.Policy(t, db, ins, nil)

	first, err := svc.AttachPhotos(ctx, ins, p.ID, photoUploads(t, "dashboard"))
	require.NoError(t, err)
	second, err := svc.AttachPhotos(ctx, ins, p.ID, photoUploads(t, "dashboard"))
	require.NoError(t, err)

	var rows []models.PolicyPhoto
	require.NoError(t, db.Where("policy_id = ?", p.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, second[0].Key, rows[0].Key)

	_, err = store.Open(ctx, first[0].Key)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.AttachPhotos(ctx, ins, p.ID, nil)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

/* ============================ HTTP surface ============================== */

func newApp(t *testing.T, db *gorm.DB, p *principals.Principal) *fiber.App {
	t.Helper()
	svc, _ := newService(t, db)
	h := NewHandler(svc, 10)

	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(nil)})
	app.Use(func(c *fiber.Ctx) error {
		auth.SetPrincipal(c, p)
		return c.Next()
	})
	app.Post("/insurer/policies", h.Create)
	app.Get("/insurer/policies", h.ListCompany)
	app.Post("/insurer/policies/:id/cancel", h.Cancel)
	app.Get("/customer/policies", h.ListOwned)
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

func TestCreateEndpoint(t *testing.T) {
	db := dbtest.New(t)
	ins := testkit.Insurer(t, db, testkit.Company(t, db, "Jubilee").ID)
	app := newApp(t, db, ins)

	status, body := do(t, app, "POST", "/insurer/policies", `{"policy_type":"Boat","registration_number":"K@@"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
	errs := body["errors"].(map[string]any)
	for _, f := range []string{"policy_type", "registration_number", "effective_date", "premium_amount", "insured_name"} {
		assert.Contains(t, errs, f)
	}

	payload := `{"policy_type":"PSV","effective_date":"` + time.Now().Format("2006-01-02") + `",
		"premium_amount":"12000","insured_name":"Matatu Sacco","national_id":"1234",
		"phone_number":"+254711111111","email_address":"sacco@example.com",
		"registration_number":"kbx 900z","make_model":"Nissan Civilian","year_of_manufacture":2015,
		"sum_insured":"2500000"}`
	status, body = do(t, app, "POST", "/insurer/policies", payload)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "PS-0001", body["policy_number"])
	assert.Equal(t, "Active", body["effective_status"])

	status, body = do(t, app, "POST", "/insurer/policies", payload)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["code"])

	status, body = do(t, app, "GET", "/insurer/policies?status=Active", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, _ = do(t, app, "GET", "/insurer/policies?status=Lapsed", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCreateAcceptsPaddedAmounts(t *testing.T) {
	db := dbtest.New(t)
	ins := testkit.Insurer(t, db, testkit.Company(t, db, "Jubilee").ID)
	app := newApp(t, db, ins)

	payload := `{"policy_type":"Comprehensive","effective_date":"` + time.Now().Format("2006-01-02") + `",
		"premium_amount":" 12000","insured_name":"Amina Wanjiru","national_id":"5678",
		"phone_number":"+254722222222","email_address":"amina@example.com",
		"registration_number":"KCD 410M","make_model":"Toyota Axio","year_of_manufacture":2017,
		"sum_insured":"1200000 ","excess":" ","quote_id":" not-a-uuid"}`
	status, body := do(t, app, "POST", "/insurer/policies", payload)
	require.Equal(t, fiber.StatusBadRequest, status, body)
	assert.Contains(t, body["errors"], "quote_id")

	payload = strings.Replace(payload, `,"quote_id":" not-a-uuid"`, "", 1)
	status, body = do(t, app, "POST", "/insurer/policies", payload)
	require.Equal(t, fiber.StatusCreated, status, body)
	premium, err := decimal.NewFromString(fmt.Sprint(body["premium_amount"]))
	require.NoError(t, err)
	assert.True(t, premium.Equal(decimal.NewFromInt(12000)), body["premium_amount"])
	assert.Equal(t, []any{}, body["rejected_photos"])
}

func TestCreateReportsRejectedPhotos(t *testing.T) {
	db := dbtest.New(t)
	ins := testkit.Insurer(t, db, testkit.Company(t, db, "Madison").ID)
	app := newApp(t, db, ins)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"policy_type": "Third-Party Only", "effective_date": time.Now().Format("2006-01-02"),
		"premium_amount": "7500", "insured_name": "Peter Kamau", "national_id": "9012",
		"phone_number": "+254733333333", "email_address": "peter@example.com",
		"registration_number": "KDE 221P", "make_model": "Subaru Forester",
		"year_of_manufacture": "2014", "sum_insured": "800000",
	} {
		require.NoError(t, w.WriteField(k, v))
	}
	for slot, ct := range map[string]string{"front_view": "image/jpeg", "rear_view": "text/plain"} {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+slot+`"; filename="`+slot+`.bin"`)
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, _ = part.Write([]byte("bytes"))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/insurer/policies", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var out CreatePolicyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Photos, 1)
	assert.Equal(t, "front_view", out.Photos[0].Slot)
	require.Len(t, out.RejectedPhotos, 1)
	assert.Equal(t, "rear_view", out.RejectedPhotos[0].Slot)
	assert.Equal(t, "file type not allowed", out.RejectedPhotos[0].Error)
}

func TestCustomerSeesPoliciesByEmail(t *testing.T) {
	db := dbtest.New(t)
	ins := testkit.Insurer(t, db, testkit.Company(t, db, "CIC").ID)
	cust := testkit.Account(t, db, models.RoleCustomer)
	testkit.Policy(t, db, ins, func(p *models.Policy) { p.EmailAddress = cust.Email })
	testkit.Policy(t, db, ins, nil)

	status, body := do(t, newApp(t, db, cust), "GET", "/customer/policies", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])
}
