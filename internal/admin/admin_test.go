package admin

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aldoetobex/clearinsure-backend/internal/auth"
	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/internal/testkit"
	"github.com/aldoetobex/clearinsure-backend/pkg/database/dbtest"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func TestEditUserKeepsIdentitiesUnique(t *testing.T) {
	db := dbtest.New(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	admin := testkit.Account(t, db, models.RoleAdmin)
	first := testkit.Account(t, db, models.RoleCustomer)
	second := testkit.Account(t, db, models.RoleInsurer)

	_, err := svc.EditUser(ctx, admin, second.Identity, UserEdit{Email: ptr(strings.ToUpper(first.Email))})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	_, err = svc.EditUser(ctx, admin, second.Identity, UserEdit{Username: ptr(first.Username)})
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	out, err := svc.EditUser(ctx, admin, first.Identity, UserEdit{Email: ptr(first.Email), Username: ptr("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", out.Username)

	var reg models.PrincipalIdentity
	require.NoError(t, db.First(&reg, "principal_id = ?", first.ID).Error)
	assert.Equal(t, "renamed", reg.Username)

	_, err = svc.EditUser(ctx, admin, second.Identity, UserEdit{Password: ptr("new-secret-1"), StaffID: ptr("INS-77")})
	require.NoError(t, err)
	p, err := principals.NewDirectory(db).Resolve(ctx, second.Identity)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("new-secret-1")))
	assert.Equal(t, "INS-77", p.StaffID)

	_, err = svc.EditUser(ctx, admin, principals.Identity{Role: models.RoleCustomer, ID: second.ID}, UserEdit{Username: ptr("ghost")})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestSetActive(t *testing.T) {
	db := dbtest.New(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	admin := testkit.Account(t, db, models.RoleAdmin)
	customer := testkit.Account(t, db, models.RoleCustomer)

	out, err := svc.SetActive(ctx, admin, customer.Identity, false)
	require.NoError(t, err)
	assert.False(t, out.Active)

	out, err = svc.SetActive(ctx, admin, customer.Identity, true)
	require.NoError(t, err)
	assert.True(t, out.Active)

	_, err = svc.SetActive(ctx, admin, admin.Identity, false)
	assert.Equal(t, apperr.CodeStateConflict, apperr.CodeOf(err))

	var events int64
	db.Model(&models.LifecycleEvent{}).Where("entity_id = ?", customer.ID).Count(&events)
	assert.EqualValues(t, 2, events)
}

func TestReferenceData(t *testing.T) {
	db := dbtest.New(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	admin := testkit.Account(t, db, models.RoleAdmin)

	c, err := svc.CreateRef(ctx, admin, RefCompanies, "  Britam ")
	require.NoError(t, err)
	assert.Equal(t, "Britam", c.Name)
	assert.True(t, c.Active)

	_, err = svc.CreateRef(ctx, admin, RefCompanies, "Britam")
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	_, err = svc.CreateRef(ctx, admin, RefBodies, "Britam")
	require.NoError(t, err, "names are unique per list")

	toggled, err := svc.ToggleRef(ctx, admin, RefCompanies, c.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Active)

	list, err := svc.ListRefs(ctx, RefCompanies)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Active)

	_, err = svc.ToggleRef(ctx, admin, RefBodies, c.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func readCSV(t *testing.T, raw string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExport(t *testing.T) {
	db := dbtest.New(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	company := testkit.Company(t, db, "Jubilee")
	ins := testkit.Insurer(t, db, company.ID)
	testkit.Policy(t, db, ins, nil)
	testkit.Policy(t, db, ins, func(p *models.Policy) { p.Status = models.PolicyCancelled })

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, ExportSummary, &buf))
	summary := map[string]string{}
	for _, r := range readCSV(t, buf.String())[1:] {
		summary[r[0]] = r[1]
	}
	assert.Equal(t, "1", summary["insurers"])
	assert.Equal(t, "1", summary["policies_active"])
	assert.Equal(t, "1", summary["policies_cancelled"])
	assert.Equal(t, "0", summary["claims_pending"])

	buf.Reset()
	require.NoError(t, svc.Export(ctx, ExportPolicies, &buf))
	rows := readCSV(t, buf.String())
	require.Len(t, rows, 3)
	assert.Equal(t, "policy_number", rows[0][0])
	assert.Equal(t, "Jubilee", rows[1][2])

	buf.Reset()
	require.NoError(t, svc.Export(ctx, ExportCompanies, &buf))
	rows = readCSV(t, buf.String())
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Jubilee", "true", "1", "2", "0"}, rows[1][:5])

	buf.Reset()
	require.NoError(t, svc.Export(ctx, ExportUsers, &buf))
	assert.Len(t, readCSV(t, buf.String()), 2)

	assert.Equal(t, "clearinsure_claims_20260102_030405.csv",
		ExportFilename(ExportClaims, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

/* ================================= HTTP ================================= */

func request(t *testing.T, app *fiber.App, method, path, body string) (*result, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return &result{Status: resp.StatusCode, Header: resp.Header.Get, Body: string(raw)}, out
}

type result struct {
	Status int
	Header func(string) string
	Body   string
}

func TestAdminEndpoints(t *testing.T) {
	db := dbtest.New(t)
	admin := testkit.Account(t, db, models.RoleAdmin)
	customer := testkit.Account(t, db, models.RoleCustomer)
	h := NewHandler(NewService(db, nil))

	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(nil)})
	app.Use(func(c *fiber.Ctx) error {
		auth.SetPrincipal(c, admin)
		return c.Next()
	})
	app.Get("/admin/users/:role", h.ListUsers)
	app.Put("/admin/users/:role/:id/active", h.SetActive)
	app.Post("/admin/refs/:kind", h.CreateRef)
	app.Get("/admin/export", h.Export)

	resp, body := request(t, app, "GET", "/admin/users/customer", "")
	require.Equal(t, fiber.StatusOK, resp.Status)
	assert.EqualValues(t, 1, body["total"])

	resp, _ = request(t, app, "GET", "/admin/users/lawyer", "")
	assert.Equal(t, fiber.StatusNotFound, resp.Status)

	resp, body = request(t, app, "PUT", "/admin/users/customer/"+customer.ID.String()+"/active", `{}`)
	require.Equal(t, fiber.StatusBadRequest, resp.Status)
	assert.Contains(t, body["errors"], "active")

	resp, body = request(t, app, "PUT", "/admin/users/customer/"+customer.ID.String()+"/active", `{"active":false}`)
	require.Equal(t, fiber.StatusOK, resp.Status)
	assert.Equal(t, false, body["active"])

	resp, _ = request(t, app, "POST", "/admin/refs/companies", `{"name":"Madison"}`)
	assert.Equal(t, fiber.StatusCreated, resp.Status)
	resp, body = request(t, app, "POST", "/admin/refs/companies", `{"name":"Madison"}`)
	assert.Equal(t, fiber.StatusConflict, resp.Status)
	assert.Equal(t, "CONFLICT", body["code"])
	resp, _ = request(t, app, "POST", "/admin/refs/vendors", `{"name":"X"}`)
	assert.Equal(t, fiber.StatusNotFound, resp.Status)

	resp, _ = request(t, app, "GET", "/admin/export?type=companies", "")
	require.Equal(t, fiber.StatusOK, resp.Status)
	assert.True(t, strings.HasPrefix(resp.Header("Content-Type"), "text/csv"))
	assert.Contains(t, resp.Header("Content-Disposition"), "clearinsure_companies_")
	assert.Contains(t, resp.Body, "Madison")

	resp, body = request(t, app, "GET", "/admin/export?type=payments", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.Status)
	assert.Contains(t, body["errors"], "type")
}
