package policies

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/clearinsure-backend/internal/auth"
	"github.com/aldoetobex/clearinsure-backend/internal/storage"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
	"github.com/aldoetobex/clearinsure-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

const dateLayout = "2006-01-02"

// Policy application. Sent as multipart/form-data when photos are attached
// (one file per slot field, e.g. front_view), or as JSON without photos.
type CreatePolicyRequest struct {
	PolicyType    string `json:"policy_type" form:"policy_type" validate:"required,covertype"`
	EffectiveDate string `json:"effective_date" form:"effective_date" validate:"required,datetime=2006-01-02"`
	PremiumAmount string `json:"premium_amount" form:"premium_amount" validate:"required,money"`
	PaymentMode   string `json:"payment_mode" form:"payment_mode" validate:"omitempty,oneof=Annual Semi-Annual Quarterly Monthly"`

	InsuredName   string `json:"insured_name" form:"insured_name" validate:"required,max=120"`
	NationalID    string `json:"national_id" form:"national_id" validate:"required,max=20"`
	KRAPin        string `json:"kra_pin" form:"kra_pin" validate:"omitempty,max=20"`
	DateOfBirth   string `json:"date_of_birth" form:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	PhoneNumber   string `json:"phone_number" form:"phone_number" validate:"required,phone"`
	EmailAddress  string `json:"email_address" form:"email_address" validate:"required,email,max=120"`
	PostalAddress string `json:"postal_address" form:"postal_address" validate:"omitempty,max=200"`

	RegistrationNumber string `json:"registration_number" form:"registration_number" validate:"required,regplate"`
	MakeModel          string `json:"make_model" form:"make_model" validate:"required,max=80"`
	YearOfManufacture  int    `json:"year_of_manufacture" form:"year_of_manufacture" validate:"required,gte=1950,lte=2100"`
	ChassisNumber      string `json:"chassis_number" form:"chassis_number" validate:"omitempty,max=40"`
	EngineNumber       string `json:"engine_number" form:"engine_number" validate:"omitempty,max=40"`
	BodyType           string `json:"body_type" form:"body_type" validate:"omitempty,max=40"`
	Color              string `json:"color" form:"color" validate:"omitempty,max=30"`
	SeatingCapacity    int    `json:"seating_capacity" form:"seating_capacity" validate:"omitempty,gte=1,lte=100"`
	UseCategory        string `json:"use_category" form:"use_category" validate:"omitempty,max=60"`

	SumInsured         string `json:"sum_insured" form:"sum_insured" validate:"required,money"`
	Excess             string `json:"excess" form:"excess" validate:"omitempty,money"`
	PoliticalViolence  bool   `json:"political_violence" form:"political_violence"`
	WindscreenCover    bool   `json:"windscreen_cover" form:"windscreen_cover"`
	PassengerLiability bool   `json:"passenger_liability" form:"passenger_liability"`
	RoadRescue         bool   `json:"road_rescue" form:"road_rescue"`

	QuoteID string `json:"quote_id" form:"quote_id" validate:"omitempty,uuid"`
}

// Request body for cancellation
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// Created policy. Photos that failed the size or type checks are listed
// and were not stored.
type CreatePolicyResponse struct {
	View
	RejectedPhotos []storage.Rejected `json:"rejected_photos"`
}

// Result of a photo upload
type PhotoUploadResponse struct {
	Success  bool                 `json:"success"`
	Results  []models.PolicyPhoto `json:"results"`
	Rejected []storage.Rejected   `json:"rejected"`
}

func (in CreatePolicyRequest) application(conv *validation.Values) Application {
	eff, _ := time.Parse(dateLayout, in.EffectiveDate)
	app := Application{
		PolicyType:         models.CoverType(in.PolicyType),
		EffectiveDate:      eff,
		PremiumAmount:      conv.Money("premium_amount", in.PremiumAmount),
		PaymentMode:        in.PaymentMode,
		InsuredName:        in.InsuredName,
		NationalID:         in.NationalID,
		KRAPin:             in.KRAPin,
		PhoneNumber:        in.PhoneNumber,
		EmailAddress:       in.EmailAddress,
		PostalAddress:      in.PostalAddress,
		RegistrationNumber: in.RegistrationNumber,
		MakeModel:          in.MakeModel,
		YearOfManufacture:  in.YearOfManufacture,
		ChassisNumber:      in.ChassisNumber,
		EngineNumber:       in.EngineNumber,
		BodyType:           in.BodyType,
		Color:              in.Color,
		SeatingCapacity:    in.SeatingCapacity,
		UseCategory:        in.UseCategory,
		SumInsured:         conv.Money("sum_insured", in.SumInsured),
		PoliticalViolence:  in.PoliticalViolence,
		WindscreenCover:    in.WindscreenCover,
		PassengerLiability: in.PassengerLiability,
		RoadRescue:         in.RoadRescue,
		Excess:             conv.OptionalMoney("excess", in.Excess),
	}
	if in.DateOfBirth != "" {
		dob, _ := time.Parse(dateLayout, in.DateOfBirth)
		app.DateOfBirth = &dob
	}
	if in.QuoteID != "" {
		id := conv.UUID("quote_id", in.QuoteID)
		app.QuoteID = &id
	}
	return app
}

type Handler struct {
	svc      *Service
	maxBytes int64
}

func NewHandler(svc *Service, maxUploadMB int) *Handler {
	return &Handler{svc: svc, maxBytes: int64(maxUploadMB) << 20}
}

func parseFilter(c *fiber.Ctx) (Filter, error) {
	page, size := utils.ParsePage(c)
	f := Filter{Search: c.Query("q"), Page: page, Size: size}
	switch st := models.PolicyStatus(c.Query("status")); st {
	case "", models.PolicyActive, models.PolicyExpired, models.PolicyCancelled:
		f.Status = st
	default:
		return f, apperr.New(apperr.CodeValidation, "unknown policy status").
			WithDetails(map[string][]string{"status": {"Value is not allowed"}})
	}
	return f, nil
}

func policyID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, notFound()
	}
	return id, nil
}

/* =============================== Insurer ================================ */

// @Summary      Create policy
// @Description  Insurer issues a policy for their company. Rejected with 409 when the vehicle already holds an active policy.
// @Tags         policies
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Accept       json
// @Produce      json
// @Param        payload     body      CreatePolicyRequest  true   "Policy application"
// @Param        front_view  formData  file                 false  "Photo slot (any of the 11 named slots)"
// @Success      201  {object}  CreatePolicyResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "active policy exists for vehicle"
// @Router       /insurer/policies [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreatePolicyRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.RegistrationNumber = validation.NormalizePlate(in.RegistrationNumber)
	in.PolicyType = strings.TrimSpace(in.PolicyType)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var conv validation.Values
	app := in.application(&conv)
	if errs := conv.Errors(); errs != nil {
		return validation.Respond(c, errs)
	}

	var photos []storage.Upload
	rejected := []storage.Rejected{}
	if form, err := c.MultipartForm(); err == nil {
		var bad []storage.Rejected
		photos, bad = storage.PhotosFromForm(form, h.maxBytes)
		rejected = append(rejected, bad...)
	}

	out, err := h.svc.Create(c.UserContext(), auth.MustPrincipal(c), app, photos)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(CreatePolicyResponse{View: *out, RejectedPhotos: rejected})
}

// @Summary      List company policies
// @Tags         policies
// @Security     BearerAuth
// @Produce      json
// @Param        status    query  string  false  "Active | Expired | Cancelled"
// @Param        q         query  string  false  "Policy number, registration or insured name"
// @Param        page      query  int     false  "Page number"
// @Param        pageSize  query  int     false  "Page size (max 50)"
// @Success      200  {object}  models.Page[View]
// @Router       /insurer/policies [get]
func (h *Handler) ListCompany(c *fiber.Ctx) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListCompany(c.UserContext(), auth.MustAffiliation(c), f)
	if err != nil {
		return err
	}
	return c.JSON(utils.PageOf(f.Page, f.Size, total, items))
}

// @Summary      Company policy detail
// @Tags         policies
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Policy ID (UUID)"
// @Success      200  {object}  View
// @Failure      404  {object}  models.ErrorResponse
// @Router       /insurer/policies/{id} [get]
func (h *Handler) GetCompany(c *fiber.Ctx) error {
	id, err := policyID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GetCompany(c.UserContext(), auth.MustAffiliation(c), id)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Cancel policy
// @Description  Active policies become Cancelled. Cancelling again reports already_cancelled; Expired policies return 422.
// @Tags         policies
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "Policy ID (UUID)"
// @Param        payload  body  CancelRequest  true  "Reason"
// @Success      200  {object}  CancelResult
// @Failure      404  {object}  models.ErrorResponse
// @Failure      422  {object}  models.ErrorResponse
// @Router       /insurer/policies/{id}/cancel [post]
func (h *Handler) Cancel(c *fiber.Ctx) error {
	id, err := policyID(c)
	if err != nil {
		return err
	}
	var in CancelRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	out, err := h.svc.Cancel(c.UserContext(), auth.MustPrincipal(c), id, in.Reason)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Upload policy photos
// @Description  Adds photos to named slots; a new file replaces the slot's previous photo. Unknown fields are ignored.
// @Tags         policies
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id          path      string  true   "Policy ID (UUID)"
// @Param        front_view  formData  file    false  "Photo slot (any of the 11 named slots)"
// @Success      201  {object}  PhotoUploadResponse
// @Failure      400  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /insurer/policies/{id}/photos [post]
func (h *Handler) UploadPhotos(c *fiber.Ctx) error {
	id, err := policyID(c)
	if err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form required")
	}
	photos, rejected := storage.PhotosFromForm(form, h.maxBytes)
	rows, err := h.svc.AttachPhotos(c.UserContext(), auth.MustPrincipal(c), id, photos)
	if err != nil {
		return err
	}
	if rejected == nil {
		rejected = []storage.Rejected{}
	}
	return c.Status(fiber.StatusCreated).JSON(PhotoUploadResponse{Success: true, Results: rows, Rejected: rejected})
}

/* =============================== Customer =============================== */

// @Summary      My policies
// @Description  Policies whose holder email matches the customer's email
// @Tags         customer
// @Security     BearerAuth
// @Produce      json
// @Param        status    query  string  false  "Active | Expired | Cancelled"
// @Param        page      query  int     false  "Page number"
// @Param        pageSize  query  int     false  "Page size (max 50)"
// @Success      200  {object}  models.Page[View]
// @Router       /customer/policies [get]
func (h *Handler) ListOwned(c *fiber.Ctx) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListOwned(c.UserContext(), auth.MustPrincipal(c).Email, f)
	if err != nil {
		return err
	}
	return c.JSON(utils.PageOf(f.Page, f.Size, total, items))
}

// @Summary      My policy detail
// @Tags         customer
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Policy ID (UUID)"
// @Success      200  {object}  View
// @Failure      404  {object}  models.ErrorResponse
// @Router       /customer/policies/{id} [get]
func (h *Handler) GetOwned(c *fiber.Ctx) error {
	id, err := policyID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GetOwned(c.UserContext(), auth.MustPrincipal(c).Email, id)
	if err != nil {
		return err
	}
	return c.JSON(out)
}
