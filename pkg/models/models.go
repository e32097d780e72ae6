package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

/* =============================== Enums ================================== */

// Role tags every principal. It is carried on the session identity so that
// guards and redirects never need to inspect concrete types.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleCustomer  Role = "customer"
	RoleInsurer   Role = "insurer"
	RoleRegulator Role = "regulator"
)

// Roles lists the principal variants in the fixed login lookup order.
var Roles = []Role{RoleAdmin, RoleCustomer, RoleInsurer, RoleRegulator}

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleCustomer, RoleInsurer, RoleRegulator:
		return true
	}
	return false
}

// SelfSignup reports whether the role may be created through public signup.
func (r Role) SelfSignup() bool {
	return r == RoleCustomer || r == RoleInsurer || r == RoleRegulator
}

// RequestStatus is shared by onboarding and customer requests.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// CoverType doubles as the policy type and the premium rate key.
type CoverType string

const (
	CoverComprehensive       CoverType = "Comprehensive"
	CoverThirdPartyOnly      CoverType = "Third-Party Only"
	CoverThirdPartyFireTheft CoverType = "Third-Party Fire & Theft"
	CoverPSV                 CoverType = "PSV"
)

var CoverTypes = []CoverType{CoverComprehensive, CoverThirdPartyOnly, CoverThirdPartyFireTheft, CoverPSV}

func (c CoverType) IsValid() bool {
	for _, v := range CoverTypes {
		if v == c {
			return true
		}
	}
	return false
}

// NumberPrefix is the policy number prefix for the cover type.
func (c CoverType) NumberPrefix() string {
	switch c {
	case CoverComprehensive:
		return "CO"
	case CoverThirdPartyOnly, CoverThirdPartyFireTheft:
		return "TO"
	case CoverPSV:
		return "PS"
	}
	return "PO"
}

// PolicyStatus. Only Active and Cancelled are stored; Expired is derived.
type PolicyStatus string

const (
	PolicyActive    PolicyStatus = "Active"
	PolicyExpired   PolicyStatus = "Expired"
	PolicyCancelled PolicyStatus = "Cancelled"
)

type ClaimStatus string

const (
	ClaimPending     ClaimStatus = "Pending"
	ClaimUnderReview ClaimStatus = "Under Review"
	ClaimApproved    ClaimStatus = "Approved"
	ClaimRejected    ClaimStatus = "Rejected"
)

func (s ClaimStatus) Terminal() bool {
	return s == ClaimApproved || s == ClaimRejected
}

type FraudRisk string

const (
	FraudRiskLow    FraudRisk = "Low"
	FraudRiskMedium FraudRisk = "Medium"
	FraudRiskHigh   FraudRisk = "High"
)

// QuoteStatus. Expired is derived from ValidUntil.
type QuoteStatus string

const (
	QuoteSent      QuoteStatus = "Sent"
	QuoteConverted QuoteStatus = "Converted"
	QuoteExpired   QuoteStatus = "Expired"
)

/* =============================== Base =================================== */

type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

/* ============================= Principals =============================== */

// PrincipalIdentity is the cross-role registry. Username and email are unique
// across all four principal tables because every principal owns one row here.
type PrincipalIdentity struct {
	Base
	Role        Role      `gorm:"type:varchar(20);not null" json:"role"`
	PrincipalID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"principal_id"`
	Username    string    `gorm:"not null;uniqueIndex" json:"username"`
	Email       string    `gorm:"not null;uniqueIndex" json:"email"`
}

type Admin struct {
	Base
	Username     string  `gorm:"not null;uniqueIndex" json:"username"`
	Email        string  `gorm:"not null;uniqueIndex" json:"email"`
	PasswordHash string  `gorm:"not null" json:"-"`
	StaffID      *string `gorm:"uniqueIndex" json:"staff_id,omitempty"`
	Active       bool    `gorm:"not null" json:"active"`
}

type Customer struct {
	Base
	Username     string `gorm:"not null;uniqueIndex" json:"username"`
	Email        string `gorm:"not null;uniqueIndex" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Active       bool   `gorm:"not null" json:"active"`
}

type Insurer struct {
	Base
	Username     string     `gorm:"not null;uniqueIndex" json:"username"`
	Email        string     `gorm:"not null;uniqueIndex" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	StaffID      string     `json:"staff_id"`
	Active       bool       `gorm:"not null" json:"active"`
	Approved     bool       `gorm:"not null" json:"approved"`
	CompanyID    *uuid.UUID `gorm:"type:uuid;index" json:"company_id,omitempty"`
	ApprovalDate *time.Time `json:"approval_date,omitempty"`

	Company *Company `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
}

type Regulator struct {
	Base
	Username         string     `gorm:"not null;uniqueIndex" json:"username"`
	Email            string     `gorm:"not null;uniqueIndex" json:"email"`
	PasswordHash     string     `gorm:"not null" json:"-"`
	StaffID          string     `json:"staff_id"`
	Active           bool       `gorm:"not null" json:"active"`
	Approved         bool       `gorm:"not null" json:"approved"`
	RegulatoryBodyID *uuid.UUID `gorm:"type:uuid;index" json:"regulatory_body_id,omitempty"`
	ApprovalDate     *time.Time `json:"approval_date,omitempty"`

	RegulatoryBody *RegulatoryBody `gorm:"foreignKey:RegulatoryBodyID" json:"regulatory_body,omitempty"`
}

/* ============================ Reference data ============================ */

type Company struct {
	Base
	Name   string `gorm:"not null;uniqueIndex" json:"name"`
	Active bool   `gorm:"not null" json:"active"`
}

type RegulatoryBody struct {
	Base
	Name   string `gorm:"not null;uniqueIndex" json:"name"`
	Active bool   `gorm:"not null" json:"active"`
}

/* ============================== Onboarding ============================== */

type InsurerRequest struct {
	Base
	InsurerID       uuid.UUID     `gorm:"type:uuid;not null;index;uniqueIndex:ux_insurer_requests_pending,where:status = 'pending'" json:"insurer_id"`
	StaffID         string        `gorm:"not null" json:"staff_id"`
	CompanyID       uuid.UUID     `gorm:"type:uuid;not null" json:"company_id"`
	Status          RequestStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ReviewedBy      *uuid.UUID    `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time    `json:"reviewed_at,omitempty"`
	RejectionReason string        `gorm:"type:text" json:"rejection_reason,omitempty"`

	Insurer *Insurer `gorm:"foreignKey:InsurerID" json:"insurer,omitempty"`
	Company *Company `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
}

type RegulatorRequest struct {
	Base
	RegulatorID      uuid.UUID     `gorm:"type:uuid;not null;index;uniqueIndex:ux_regulator_requests_pending,where:status = 'pending'" json:"regulator_id"`
	StaffID          string        `gorm:"not null" json:"staff_id"`
	RegulatoryBodyID uuid.UUID     `gorm:"type:uuid;not null" json:"regulatory_body_id"`
	Status           RequestStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ReviewedBy       *uuid.UUID    `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time    `json:"reviewed_at,omitempty"`
	RejectionReason  string        `gorm:"type:text" json:"rejection_reason,omitempty"`

	Regulator      *Regulator      `gorm:"foreignKey:RegulatorID" json:"regulator,omitempty"`
	RegulatoryBody *RegulatoryBody `gorm:"foreignKey:RegulatoryBodyID" json:"regulatory_body,omitempty"`
}

/* ================================ Policy ================================ */

type Policy struct {
	Base
	PolicyNumber string     `gorm:"not null;uniqueIndex" json:"policy_number"`
	PolicyType   CoverType  `gorm:"type:varchar(40);not null" json:"policy_type"`
	CompanyID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"company_id"`
	CreatedBy    uuid.UUID  `gorm:"type:uuid;not null" json:"created_by"`
	QuoteID      *uuid.UUID `gorm:"type:uuid" json:"quote_id,omitempty"`

	EffectiveDate time.Time       `gorm:"type:date;not null" json:"effective_date"`
	ExpiryDate    time.Time       `gorm:"type:date;not null;index" json:"expiry_date"`
	PremiumAmount decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"premium_amount"`
	PaymentMode   string          `json:"payment_mode"`

	// Policyholder. EmailAddress is how customers are matched to policies.
	InsuredName   string     `gorm:"not null" json:"insured_name"`
	NationalID    string     `json:"national_id"`
	KRAPin        string     `gorm:"column:kra_pin" json:"kra_pin,omitempty"`
	DateOfBirth   *time.Time `gorm:"type:date" json:"date_of_birth,omitempty"`
	PhoneNumber   string     `json:"phone_number"`
	EmailAddress  string     `gorm:"not null;index" json:"email_address"`
	PostalAddress string     `json:"postal_address,omitempty"`

	// Vehicle
	RegistrationNumber string `gorm:"not null;index" json:"registration_number"`
	MakeModel          string `json:"make_model"`
	YearOfManufacture  int    `json:"year_of_manufacture"`
	ChassisNumber      string `json:"chassis_number"`
	EngineNumber       string `json:"engine_number"`
	BodyType           string `json:"body_type"`
	Color              string `json:"color"`
	SeatingCapacity    int    `json:"seating_capacity"`
	UseCategory        string `json:"use_category"`

	// Coverage & add-ons
	SumInsured         decimal.Decimal `gorm:"type:numeric(14,2)" json:"sum_insured"`
	Excess             decimal.Decimal `gorm:"type:numeric(14,2)" json:"excess"`
	PoliticalViolence  bool            `json:"political_violence"`
	WindscreenCover    bool            `json:"windscreen_cover"`
	PassengerLiability bool            `json:"passenger_liability"`
	RoadRescue         bool            `json:"road_rescue"`

	Status             PolicyStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	CancelledBy        *uuid.UUID   `gorm:"type:uuid" json:"cancelled_by,omitempty"`
	CancellationDate   *time.Time   `json:"cancellation_date,omitempty"`
	CancellationReason string       `gorm:"type:text" json:"cancellation_reason,omitempty"`
	RenewedAt          *time.Time   `json:"renewed_at,omitempty"`

	Photos  []PolicyPhoto `gorm:"constraint:OnDelete:CASCADE" json:"photos,omitempty"`
	Company *Company      `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
}

// EffectiveStatus classifies the policy at read time. A stored Active policy
// whose expiry date lies before today is Expired.
func (p *Policy) EffectiveStatus(now time.Time) PolicyStatus {
	if p.Status == PolicyCancelled {
		return PolicyCancelled
	}
	if p.ExpiryDate.Before(DateOf(now)) {
		return PolicyExpired
	}
	return PolicyActive
}

// DaysUntilExpiry counts calendar days from now's date to the expiry date.
func (p *Policy) DaysUntilExpiry(now time.Time) int {
	return int(DateOf(p.ExpiryDate).Sub(DateOf(now)).Hours() / 24)
}

type PolicyPhoto struct {
	Base
	PolicyID     uuid.UUID `gorm:"type:uuid;not null;index" json:"policy_id"`
	Slot         string    `gorm:"type:varchar(40);not null" json:"slot"`
	Key          string    `gorm:"not null" json:"key"`
	Mime         string    `gorm:"not null" json:"mime"`
	Size         int64     `gorm:"not null" json:"size"`
	OriginalName string    `json:"original_name"`
}

/* ================================ Claim ================================= */

type Claim struct {
	Base
	ClaimNumber string    `gorm:"not null;uniqueIndex" json:"claim_number"`
	PolicyID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"policy_id"`
	CompanyID   uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id"`
	FiledBy     uuid.UUID `gorm:"type:uuid;not null" json:"filed_by"`

	AccidentDate        time.Time       `gorm:"type:date;not null" json:"accident_date"`
	AccidentTime        string          `json:"accident_time,omitempty"`
	AccidentLocation    string          `gorm:"not null" json:"accident_location"`
	AccidentDescription string          `gorm:"type:text;not null" json:"accident_description"`
	PoliceReportNumber  string          `json:"police_report_number,omitempty"`
	PoliceStation       string          `json:"police_station,omitempty"`
	WitnessName         string          `json:"witness_name,omitempty"`
	WitnessPhone        string          `json:"witness_phone,omitempty"`
	WitnessStatement    string          `gorm:"type:text" json:"witness_statement,omitempty"`
	DamageDescription   string          `gorm:"type:text" json:"damage_description,omitempty"`
	EstimatedLoss       decimal.Decimal `gorm:"type:numeric(14,2)" json:"estimated_loss"`
	ThirdPartyInvolved  bool            `json:"third_party_involved"`
	ThirdPartyDetails   string          `gorm:"type:text" json:"third_party_details,omitempty"`

	Status      ClaimStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ReviewedBy  *uuid.UUID  `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time  `json:"reviewed_at,omitempty"`
	ReviewNotes string      `gorm:"type:text" json:"review_notes,omitempty"`

	FraudCheckPerformed bool       `gorm:"not null" json:"fraud_check_performed"`
	FraudScore          *int       `json:"fraud_score,omitempty"`
	FraudRisk           FraudRisk  `gorm:"type:varchar(10)" json:"fraud_risk,omitempty"`
	FraudReport         string     `gorm:"type:text" json:"fraud_report,omitempty"`
	FraudCheckedAt      *time.Time `json:"fraud_checked_at,omitempty"`

	// Approval and rejection keep their own audit columns.
	ApprovedBy      *uuid.UUID `gorm:"type:uuid" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedBy      *uuid.UUID `gorm:"type:uuid" json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason,omitempty"`

	Policy    *Policy         `gorm:"foreignKey:PolicyID" json:"policy,omitempty"`
	Documents []ClaimDocument `gorm:"constraint:OnDelete:CASCADE" json:"documents,omitempty"`
}

type DecisionKind string

const (
	DecisionApproved DecisionKind = "approved"
	DecisionRejected DecisionKind = "rejected"
)

// ClaimDecision is the final adjudication of a claim.
type ClaimDecision struct {
	Kind   DecisionKind `json:"kind"`
	By     uuid.UUID    `json:"by"`
	At     time.Time    `json:"at"`
	Reason string       `json:"reason,omitempty"`
}

// Decision returns nil until the claim reaches a terminal state.
func (c *Claim) Decision() *ClaimDecision {
	switch c.Status {
	case ClaimApproved:
		if c.ApprovedBy == nil || c.ApprovedAt == nil {
			return nil
		}
		return &ClaimDecision{Kind: DecisionApproved, By: *c.ApprovedBy, At: *c.ApprovedAt}
	case ClaimRejected:
		if c.RejectedBy == nil || c.RejectedAt == nil {
			return nil
		}
		return &ClaimDecision{Kind: DecisionRejected, By: *c.RejectedBy, At: *c.RejectedAt, Reason: c.RejectionReason}
	}
	return nil
}

type ClaimDocument struct {
	Base
	ClaimID      uuid.UUID `gorm:"type:uuid;not null;index" json:"claim_id"`
	Slot         string    `gorm:"type:varchar(40);not null" json:"slot"`
	Key          string    `gorm:"not null" json:"key"`
	Mime         string    `gorm:"not null" json:"mime"`
	Size         int64     `gorm:"not null" json:"size"`
	OriginalName string    `json:"original_name"`
}

/* =========================== Customer requests ========================== */

type CustomerMonitoredPolicy struct {
	Base
	CustomerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_monitor_customer_policy" json:"customer_id"`
	PolicyID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_monitor_customer_policy" json:"policy_id"`

	Policy *Policy `gorm:"foreignKey:PolicyID" json:"policy,omitempty"`
}

// RequestReview is the insurer decision shared by customer requests.
type RequestReview struct {
	Status          RequestStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ReviewedBy      *uuid.UUID    `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time    `json:"reviewed_at,omitempty"`
	RejectionReason string        `gorm:"type:text" json:"rejection_reason,omitempty"`
}

func (r *RequestReview) Review() *RequestReview { return r }

type PolicyAccessRequest struct {
	Base
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_access_requests_pending,where:status = 'pending'" json:"customer_id"`
	PolicyID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_access_requests_pending,where:status = 'pending'" json:"policy_id"`
	CompanyID  uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id"`
	Reason     string    `gorm:"type:text;not null" json:"reason"`
	RequestReview

	Policy *Policy `gorm:"foreignKey:PolicyID" json:"policy,omitempty"`
}

type PolicyCancellationRequest struct {
	Base
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_cancellation_requests_pending,where:status = 'pending'" json:"customer_id"`
	PolicyID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_cancellation_requests_pending,where:status = 'pending'" json:"policy_id"`
	CompanyID  uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id"`
	Reason     string    `gorm:"type:text;not null" json:"reason"`
	RequestReview

	Policy *Policy `gorm:"foreignKey:PolicyID" json:"policy,omitempty"`
}

type PolicyRenewalRequest struct {
	Base
	CustomerID        uuid.UUID           `gorm:"type:uuid;not null;index" json:"customer_id"`
	PolicyID          uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:ux_renewal_requests_pending,where:status = 'pending'" json:"policy_id"`
	CompanyID         uuid.UUID           `gorm:"type:uuid;not null;index" json:"company_id"`
	CurrentExpiryDate time.Time           `gorm:"type:date;not null" json:"current_expiry_date"`
	NewEffectiveDate  time.Time           `gorm:"type:date;not null" json:"new_effective_date"`
	NewExpiryDate     time.Time           `gorm:"type:date;not null" json:"new_expiry_date"`
	CurrentPremium    decimal.Decimal     `gorm:"type:numeric(14,2);not null" json:"current_premium"`
	ApprovedPremium   decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"approved_premium"`
	Notes             string              `gorm:"type:text" json:"notes,omitempty"`
	RequestReview

	Policy *Policy `gorm:"foreignKey:PolicyID" json:"policy,omitempty"`
}

/* ============================ Quotes & rates ============================= */

type Quote struct {
	Base
	QuoteNumber        string          `gorm:"not null;uniqueIndex" json:"quote_number"`
	CompanyID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id"`
	CreatedBy          uuid.UUID       `gorm:"type:uuid;not null" json:"created_by"`
	CustomerName       string          `json:"customer_name"`
	CustomerEmail      string          `gorm:"index" json:"customer_email"`
	CoverType          CoverType       `gorm:"type:varchar(40);not null" json:"cover_type"`
	VehicleValue       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"vehicle_value"`
	UseCategory        string          `json:"use_category"`
	PoliticalViolence  bool            `json:"political_violence"`
	WindscreenCover    bool            `json:"windscreen_cover"`
	PassengerLiability bool            `json:"passenger_liability"`
	RoadRescue         bool            `json:"road_rescue"`
	BasePremium        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"base_premium"`
	AddOnsTotal        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"add_ons_total"`
	TotalPremium       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_premium"`
	ValidUntil         time.Time       `gorm:"not null" json:"valid_until"`
	Status             QuoteStatus     `gorm:"type:varchar(20);not null" json:"status"`
	PolicyID           *uuid.UUID      `gorm:"type:uuid" json:"policy_id,omitempty"`
}

// EffectiveStatus reports Expired for an unconverted quote past ValidUntil.
func (q *Quote) EffectiveStatus(now time.Time) QuoteStatus {
	if q.Status == QuoteSent && now.After(q.ValidUntil) {
		return QuoteExpired
	}
	return q.Status
}

type PremiumRate struct {
	Base
	CompanyID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_premium_rates_company_cover" json:"company_id"`
	CoverType CoverType `gorm:"type:varchar(40);not null;uniqueIndex:ux_premium_rates_company_cover" json:"cover_type"`

	ComprehensiveMinRate     decimal.Decimal `gorm:"column:comprehensive_min_rate;type:numeric(8,3)" json:"comprehensive_min_rate"`
	ComprehensiveMaxRate     decimal.Decimal `gorm:"column:comprehensive_max_rate;type:numeric(8,3)" json:"comprehensive_max_rate"`
	ComprehensiveDefaultRate decimal.Decimal `gorm:"column:comprehensive_default_rate;type:numeric(8,3)" json:"comprehensive_default_rate"`
	TPOFlatRate              decimal.Decimal `gorm:"column:tpo_flat_rate;type:numeric(14,2)" json:"tpo_flat_rate"`
	TPFTBaseRate             decimal.Decimal `gorm:"column:tpft_base_rate;type:numeric(14,2)" json:"tpft_base_rate"`
	TPFTPercentage           decimal.Decimal `gorm:"column:tpft_percentage;type:numeric(8,3)" json:"tpft_percentage"`
	PSVTaxiRate              decimal.Decimal `gorm:"column:psv_taxi_rate;type:numeric(14,2)" json:"psv_taxi_rate"`
	PSVMatatu14Rate          decimal.Decimal `gorm:"column:psv_matatu_14_rate;type:numeric(14,2)" json:"psv_matatu_14_rate"`
	PSVMatatu25Rate          decimal.Decimal `gorm:"column:psv_matatu_25_rate;type:numeric(14,2)" json:"psv_matatu_25_rate"`
	PSVBusRate               decimal.Decimal `gorm:"column:psv_bus_rate;type:numeric(14,2)" json:"psv_bus_rate"`
	Active                   bool            `gorm:"not null" json:"active"`
}

/* ============================= Bookkeeping ============================== */

// NumberSequence backs policy, claim and quote numbering.
type NumberSequence struct {
	Prefix    string `gorm:"primaryKey;type:varchar(10)"`
	LastValue int64  `gorm:"not null"`
}

// LifecycleEvent is an audit entry for status changes on any aggregate.
type LifecycleEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Entity    string    `gorm:"type:varchar(40);not null;index:idx_lifecycle_entity" json:"entity"`
	EntityID  uuid.UUID `gorm:"type:uuid;not null;index:idx_lifecycle_entity" json:"entity_id"`
	ActorID   uuid.UUID `gorm:"type:uuid;not null;index" json:"actor_id"`
	ActorRole Role      `gorm:"type:varchar(20);not null" json:"actor_role"`
	Action    string    `gorm:"type:varchar(50);not null" json:"action"`
	OldStatus string    `gorm:"type:varchar(20)" json:"old_status,omitempty"`
	NewStatus string    `gorm:"type:varchar(20)" json:"new_status,omitempty"`
	Reason    string    `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (e *LifecycleEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// All returns every model in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&PrincipalIdentity{}, &Admin{}, &Company{}, &RegulatoryBody{},
		&Customer{}, &Insurer{}, &Regulator{},
		&InsurerRequest{}, &RegulatorRequest{},
		&Quote{}, &PremiumRate{},
		&Policy{}, &PolicyPhoto{},
		&Claim{}, &ClaimDocument{},
		&CustomerMonitoredPolicy{}, &PolicyAccessRequest{},
		&PolicyCancellationRequest{}, &PolicyRenewalRequest{},
		&NumberSequence{}, &LifecycleEvent{},
	}
}

/* ================================ Dates ================================= */

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
