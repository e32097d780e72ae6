package quotes

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
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
	"github.com/aldoetobex/clearinsure-backend/pkg/premium"
	"github.com/aldoetobex/clearinsure-backend/pkg/redis"
)

type memDrafts struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  time.Duration
}

func newMemDrafts() *memDrafts { return &memDrafts{data: map[string][]byte{}} }

func (m *memDrafts) SaveDraft(_ context.Context, owner string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[owner], m.ttl = payload, ttl
	return nil
}

func (m *memDrafts) TakeDraft(_ context.Context, owner string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[owner]
	if !ok {
		return nil, redis.ErrNotFound
	}
	delete(m.data, owner)
	return v, nil
}

func setup(t *testing.T) (*gorm.DB, *Service, *memDrafts, *principals.Principal) {
	t.Helper()
	db := dbtest.New(t)
	company := testkit.Company(t, db, "Jubilee")
	testkit.Rates(t, db, company.ID)
	drafts := newMemDrafts()
	return db, NewService(Params{DB: db, Drafts: drafts}), drafts, testkit.Insurer(t, db, company.ID)
}

func comprehensive(value string) premium.Input {
	return premium.Input{
		CoverType:    models.CoverComprehensive,
		VehicleValue: decimal.RequireFromString(value),
		AddOns:       premium.AddOns{PoliticalViolence: true, RoadRescue: true},
	}
}

func TestCalculateKeepsReadOnceDraft(t *testing.T) {
	_, svc, drafts, ins := setup(t)
	ctx := context.Background()

	b, err := svc.Calculate(ctx, ins, comprehensive("1000000"))
	require.NoError(t, err)
	assert.Equal(t, "55000", b.BasePremium.String())
	assert.Equal(t, "3850", b.AddOnsTotal.String())
	assert.Equal(t, "58850", b.TotalPremium.String())
	assert.Equal(t, DraftTTL, drafts.ttl)

	d, err := svc.ConsumeDraft(ctx, ins)
	require.NoError(t, err)
	assert.True(t, b.TotalPremium.Equal(d.TotalPremium))
	assert.Equal(t, models.CoverComprehensive, d.CoverType)

	_, err = svc.ConsumeDraft(ctx, ins)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestCalculateNeedsActiveRate(t *testing.T) {
	db, svc, _, ins := setup(t)
	require.NoError(t, db.Model(&models.PremiumRate{}).
		Where("company_id = ? AND cover_type = ?", *ins.AffiliationID, models.CoverPSV).
		Update("active", false).Error)

	_, err := svc.Calculate(context.Background(), ins, premium.Input{CoverType: models.CoverPSV, UseCategory: "bus"})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestSaveIssuesNumberedQuote(t *testing.T) {
	_, svc, _, ins := setup(t)
	ctx := context.Background()

	q, err := svc.Save(ctx, ins, Issue{CustomerName: " Amina ", CustomerEmail: "Amina@Example.com", Input: comprehensive("800000")})
	require.NoError(t, err)
	assert.Equal(t, "QT-0001", q.QuoteNumber)
	assert.Equal(t, "Amina", q.CustomerName)
	assert.Equal(t, "amina@example.com", q.CustomerEmail)
	assert.Equal(t, models.QuoteSent, q.EffectiveStatus)
	assert.Equal(t, "47080", q.TotalPremium.String())
	assert.WithinDuration(t, time.Now().Add(QuoteValidity), q.ValidUntil, time.Minute)

	q2, err := svc.Save(ctx, ins, Issue{CustomerName: "B", Input: premium.Input{CoverType: models.CoverThirdPartyOnly}})
	require.NoError(t, err)
	assert.Equal(t, "QT-0002", q2.QuoteNumber)

	items, total, err := svc.List(ctx, *ins.AffiliationID, "", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)

	got, err := svc.Get(ctx, *ins.AffiliationID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.QuoteNumber, got.QuoteNumber)

	other := testkit.Company(t, dbFrom(svc), "CIC")
	_, err = svc.Get(ctx, other.ID, q.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func dbFrom(s *Service) *gorm.DB { return s.db }

func TestExpiredQuoteIsDerived(t *testing.T) {
	db, svc, _, ins := setup(t)
	ctx := context.Background()
	q, err := svc.Save(ctx, ins, Issue{CustomerName: "Old", Input: comprehensive("500000")})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(QuoteValidity + time.Hour) }
	got, err := svc.Get(ctx, *ins.AffiliationID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuoteExpired, got.EffectiveStatus)

	var stored models.Quote
	require.NoError(t, db.First(&stored, "id = ?", q.ID).Error)
	assert.Equal(t, models.QuoteSent, stored.Status)
}

func TestUpsertRate(t *testing.T) {
	db, svc, _, ins := setup(t)
	ctx := context.Background()
	admin := testkit.Account(t, db, models.RoleAdmin)
	company := *ins.AffiliationID

	bad := models.PremiumRate{
		CompanyID: company, CoverType: models.CoverComprehensive,
		ComprehensiveMinRate: decimal.NewFromInt(4), ComprehensiveMaxRate: decimal.NewFromInt(6),
		ComprehensiveDefaultRate: decimal.NewFromInt(9), Active: true,
	}
	_, err := svc.UpsertRate(ctx, admin, bad)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	good := bad
	good.ComprehensiveDefaultRate = decimal.NewFromInt(5)
	out, err := svc.UpsertRate(ctx, admin, good)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(out.ComprehensiveDefaultRate))

	rates, err := svc.ListRates(ctx, &company)
	require.NoError(t, err)
	assert.Len(t, rates, 4)

	b, err := svc.Calculate(ctx, ins, premium.Input{CoverType: models.CoverComprehensive, VehicleValue: decimal.NewFromInt(1000000)})
	require.NoError(t, err)
	assert.Equal(t, "50000", b.TotalPremium.String())

	missing := good
	missing.CompanyID = testkit.Body(t, db, "IRA").ID
	_, err = svc.UpsertRate(ctx, admin, missing)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

/* ================================= HTTP ================================= */

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

func TestQuoteEndpoints(t *testing.T) {
	_, svc, _, ins := setup(t)
	h := NewHandler(svc)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(nil)})
	app.Use(func(c *fiber.Ctx) error {
		auth.SetPrincipal(c, ins)
		return c.Next()
	})
	app.Post("/insurer/quotes/calculate", h.Calculate)
	app.Get("/insurer/quotes/draft", h.Draft)
	app.Post("/insurer/quotes", h.Save)
	app.Get("/insurer/quotes", h.List)

	status, body := do(t, app, "POST", "/insurer/quotes/calculate", `{"cover_type":"Boat","vehicle_value":"-1"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["errors"], "cover_type")
	assert.Contains(t, body["errors"], "vehicle_value")

	status, body = do(t, app, "POST", "/insurer/quotes/calculate", `{"cover_type":"PSV","vehicle_value":" 0 ","use_category":"Matatu 14 seater"}`)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "70000", body["base_premium"])

	status, body = do(t, app, "GET", "/insurer/quotes/draft", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "PSV", body["cover_type"])
	status, _ = do(t, app, "GET", "/insurer/quotes/draft", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = do(t, app, "POST", "/insurer/quotes", `{"cover_type":"Third-Party Only","vehicle_value":" 0","customer_name":"Otieno"}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "QT-0001", body["quote_number"])

	status, body = do(t, app, "GET", "/insurer/quotes?status=Sent", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])
	status, _ = do(t, app, "GET", "/insurer/quotes?status=Draft", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}
