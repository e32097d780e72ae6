package files

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
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

type signer struct{ storage.ObjectStore }

func (signer) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.test/sign/" + key, nil
}

func as(role models.Role, email string, company *uuid.UUID) *principals.Principal {
	return &principals.Principal{
		Identity: principals.Identity{Role: role, ID: uuid.New()},
		Email:    email, Active: true, Approved: true, AffiliationID: company,
	}
}

func pending(role models.Role, affiliation *uuid.UUID) *principals.Principal {
	p := as(role, "new@example.com", affiliation)
	p.Approved = false
	return p
}

type fixture struct {
	db      *gorm.DB
	store   *storage.Local
	company uuid.UUID
	photo   models.PolicyPhoto
	doc     models.ClaimDocument
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := dbtest.New(t)
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	company := testkit.Company(t, db, "Jubilee")
	ins := testkit.Insurer(t, db, company.ID)
	policy := testkit.Policy(t, db, ins, nil)

	key := storage.ObjectKey("policy", policy.ID, "front", "front.jpg")
	require.NoError(t, store.Put(context.Background(), key, strings.NewReader("jpeg-bytes"), "image/jpeg", 10))
	photo := models.PolicyPhoto{PolicyID: policy.ID, Slot: "front", Key: key, Mime: "image/jpeg", Size: 10, OriginalName: "front.jpg"}
	require.NoError(t, db.Create(&photo).Error)

	cl := models.Claim{
		ClaimNumber: "CL-0001", PolicyID: policy.ID, CompanyID: company.ID, FiledBy: ins.ID,
		AccidentDate: models.DateOf(time.Now()), AccidentLocation: "Westlands",
		AccidentDescription: "Side swipe", Status: models.ClaimPending,
	}
	require.NoError(t, db.Create(&cl).Error)
	docKey := storage.ObjectKey("claim", cl.ID, "police_abstract", "abstract.pdf")
	require.NoError(t, store.Put(context.Background(), docKey, strings.NewReader("%PDF"), "application/pdf", 4))
	doc := models.ClaimDocument{ClaimID: cl.ID, Slot: "police_abstract", Key: docKey, Mime: "application/pdf", Size: 4, OriginalName: "abstract.pdf"}
	require.NoError(t, db.Create(&doc).Error)

	return fixture{db: db, store: store, company: company.ID, photo: photo, doc: doc}
}

func TestScopeDecidesWhoSeesFiles(t *testing.T) {
	f := setup(t)
	svc := NewService(f.db, f.store, 0)
	ctx := context.Background()
	other := uuid.New()

	cases := []struct {
		name string
		p    *principals.Principal
		ok   bool
	}{
		{"admin", as(models.RoleAdmin, "root@example.com", nil), true},
		{"regulator", as(models.RoleRegulator, "ira@example.com", &other), true},
		{"company insurer", as(models.RoleInsurer, "a@jubilee.test", &f.company), true},
		{"other insurer", as(models.RoleInsurer, "b@cic.test", &other), false},
		{"holder", as(models.RoleCustomer, "Holder@Example.com", nil), true},
		{"stranger", as(models.RoleCustomer, "someone@example.com", nil), false},
		{"pending regulator", pending(models.RoleRegulator, nil), false},
		{"unapproved regulator with body", pending(models.RoleRegulator, &other), false},
		{"pending insurer", pending(models.RoleInsurer, &f.company), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, target := range []struct {
				kind Kind
				id   uuid.UUID
			}{{KindPhoto, f.photo.ID}, {KindDocument, f.doc.ID}} {
				d, err := svc.Open(ctx, tc.p, target.kind, target.id)
				if !tc.ok {
					assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
					continue
				}
				require.NoError(t, err)
				require.NotNil(t, d.Body)
				_ = d.Body.Close()
			}
		})
	}

	_, err := svc.Open(ctx, as(models.RoleAdmin, "root@example.com", nil), KindPhoto, f.doc.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestSigningStoreReturnsLink(t *testing.T) {
	f := setup(t)
	svc := NewService(f.db, signer{f.store}, 90*time.Second)

	d, err := svc.Open(context.Background(), as(models.RoleAdmin, "root@example.com", nil), KindDocument, f.doc.ID)
	require.NoError(t, err)
	assert.Nil(t, d.Body)
	assert.Equal(t, "https://storage.test/sign/"+f.doc.Key, d.URL)
	assert.Equal(t, 90*time.Second, d.ExpiresIn)
}

func TestDownloadEndpoint(t *testing.T) {
	f := setup(t)
	holder := as(models.RoleCustomer, "holder@example.com", nil)

	serve := func(svc *Service) *fiber.App {
		app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(nil)})
		app.Use(func(c *fiber.Ctx) error {
			auth.SetPrincipal(c, holder)
			return c.Next()
		})
		app.Get("/files/:kind/:id", NewHandler(svc).Get)
		return app
	}

	app := serve(NewService(f.db, f.store, 0))
	resp, err := app.Test(httptest.NewRequest("GET", "/files/photos/"+f.photo.ID.String(), nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "jpeg-bytes", string(raw))

	resp, err = app.Test(httptest.NewRequest("GET", "/files/videos/"+f.photo.ID.String(), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	app = serve(NewService(f.db, signer{f.store}, time.Minute))
	resp, err = app.Test(httptest.NewRequest("GET", "/files/documents/"+f.doc.ID.String(), nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var link LinkResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&link))
	assert.Equal(t, 60, link.ExpiresIn)
	assert.Contains(t, link.URL, f.doc.Key)
}

func TestDownloadNeedsApproval(t *testing.T) {
	f := setup(t)
	reg := pending(models.RoleRegulator, nil)

	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(nil)})
	app.Use(func(c *fiber.Ctx) error {
		auth.SetPrincipal(c, reg)
		return c.Next()
	})
	app.Get("/files/:kind/:id", auth.RequireApproved(principals.NewDirectory(f.db)), NewHandler(NewService(f.db, f.store, 0)).Get)

	resp, err := app.Test(httptest.NewRequest("GET", "/files/documents/"+f.doc.ID.String(), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.NotContains(t, string(raw), "%PDF")
}
