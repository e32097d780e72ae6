// Package testkit builds the rows package tests need: companies,
// principals in every role, and policies.
package testkit

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/premium"
)

const Password = "password123"

var n atomic.Int64

func next() int64 { return n.Add(1) }

func Company(t *testing.T, db *gorm.DB, name string) *models.Company {
	t.Helper()
	c := models.Company{Name: name, Active: true}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("create company: %v", err)
	}
	return &c
}

func Body(t *testing.T, db *gorm.DB, name string) *models.RegulatoryBody {
	t.Helper()
	b := models.RegulatoryBody{Name: name, Active: true}
	if err := db.Create(&b).Error; err != nil {
		t.Fatalf("create regulatory body: %v", err)
	}
	return &b
}

// Account creates an active principal of role with a unique username.
func Account(t *testing.T, db *gorm.DB, role models.Role) *principals.Principal {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	i := next()
	p, err := principals.Create(context.Background(), db, principals.NewAccount{
		Role:         role,
		Username:     fmt.Sprintf("%s%d", role, i),
		Email:        fmt.Sprintf("%s%d@example.com", role, i),
		PasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("create %s: %v", role, err)
	}
	return p
}

// Insurer creates an insurer already approved into companyID.
func Insurer(t *testing.T, db *gorm.DB, companyID uuid.UUID) *principals.Principal {
	t.Helper()
	p := Account(t, db, models.RoleInsurer)
	now := time.Now()
	if err := db.Model(&models.Insurer{}).Where("id = ?", p.ID).Updates(map[string]any{
		"approved": true, "company_id": companyID, "approval_date": now, "staff_id": "INS-" + p.ID.String()[:6],
	}).Error; err != nil {
		t.Fatalf("approve insurer: %v", err)
	}
	p.Approved, p.AffiliationID, p.ApprovalDate = true, &companyID, &now
	return p
}

// Regulator creates a regulator already approved into bodyID.
func Regulator(t *testing.T, db *gorm.DB, bodyID uuid.UUID) *principals.Principal {
	t.Helper()
	p := Account(t, db, models.RoleRegulator)
	now := time.Now()
	if err := db.Model(&models.Regulator{}).Where("id = ?", p.ID).Updates(map[string]any{
		"approved": true, "regulatory_body_id": bodyID, "approval_date": now,
	}).Error; err != nil {
		t.Fatalf("approve regulator: %v", err)
	}
	p.Approved, p.AffiliationID, p.ApprovalDate = true, &bodyID, &now
	return p
}

// Policy inserts an Active policy directly, bypassing numbering.
func Policy(t *testing.T, db *gorm.DB, insurer *principals.Principal, mutate func(*models.Policy)) *models.Policy {
	t.Helper()
	i := next()
	eff := models.DateOf(time.Now().AddDate(0, -1, 0))
	p := models.Policy{
		PolicyNumber:       fmt.Sprintf("FX-%04d", i),
		PolicyType:         models.CoverComprehensive,
		CompanyID:          *insurer.AffiliationID,
		CreatedBy:          insurer.ID,
		EffectiveDate:      eff,
		ExpiryDate:         eff.AddDate(1, 0, 0),
		PremiumAmount:      decimal.NewFromInt(55000),
		InsuredName:        "Jane Wanjiku",
		NationalID:         "12345678",
		PhoneNumber:        "+254712345678",
		EmailAddress:       "holder@example.com",
		RegistrationNumber: fmt.Sprintf("KAA %03dX", i%1000),
		MakeModel:          "Toyota Axio",
		YearOfManufacture:  2018,
		SumInsured:         decimal.NewFromInt(1000000),
		Status:             models.PolicyActive,
	}
	if mutate != nil {
		mutate(&p)
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("create policy: %v", err)
	}
	return &p
}

// Rates seeds the default rate card for companyID.
func Rates(t *testing.T, db *gorm.DB, companyID uuid.UUID) {
	t.Helper()
	for _, r := range premium.DefaultRates() {
		r.CompanyID = companyID
		if err := db.Create(&r).Error; err != nil {
			t.Fatalf("seed rate: %v", err)
		}
	}
}
