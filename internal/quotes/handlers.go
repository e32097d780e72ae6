package quotes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/clearinsure-backend/internal/auth"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/premium"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
	"github.com/aldoetobex/clearinsure-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for the premium calculator
type CalculateRequest struct {
	CoverType          string `json:"cover_type" validate:"required,covertype"`
	VehicleValue       string `json:"vehicle_value" validate:"required,money"`
	UseCategory        string `json:"use_category" validate:"max=60"`
	PoliticalViolence  bool   `json:"political_violence"`
	WindscreenCover    bool   `json:"windscreen_cover"`
	PassengerLiability bool   `json:"passenger_liability"`
	RoadRescue         bool   `json:"road_rescue"`
}

func (in CalculateRequest) input(conv *validation.Values) premium.Input {
	return premium.Input{
		CoverType:    models.CoverType(in.CoverType),
		VehicleValue: conv.Money("vehicle_value", in.VehicleValue),
		UseCategory:  in.UseCategory,
		AddOns: premium.AddOns{
			PoliticalViolence:  in.PoliticalViolence,
			WindscreenCover:    in.WindscreenCover,
			PassengerLiability: in.PassengerLiability,
			RoadRescue:         in.RoadRescue,
		},
	}
}

// Request body for issuing a quote
type SaveQuoteRequest struct {
	CalculateRequest
	CustomerName  string `json:"customer_name" validate:"required,max=120"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
}

// Request body for an admin rate upsert. Percentages are per hundred.
type RateRequest struct {
	CoverType                string `json:"cover_type" validate:"required,covertype"`
	ComprehensiveMinRate     string `json:"comprehensive_min_rate" validate:"omitempty,money"`
	ComprehensiveMaxRate     string `json:"comprehensive_max_rate" validate:"omitempty,money"`
	ComprehensiveDefaultRate string `json:"comprehensive_default_rate" validate:"omitempty,money"`
	TPOFlatRate              string `json:"tpo_flat_rate" validate:"omitempty,money"`
	TPFTBaseRate             string `json:"tpft_base_rate" validate:"omitempty,money"`
	TPFTPercentage           string `json:"tpft_percentage" validate:"omitempty,money"`
	PSVTaxiRate              string `json:"psv_taxi_rate" validate:"omitempty,money"`
	PSVMatatu14Rate          string `json:"psv_matatu_14_rate" validate:"omitempty,money"`
	PSVMatatu25Rate          string `json:"psv_matatu_25_rate" validate:"omitempty,money"`
	PSVBusRate               string `json:"psv_bus_rate" validate:"omitempty,money"`
	Active                   *bool  `json:"active"`
}

func (in RateRequest) rate(companyID uuid.UUID, conv *validation.Values) models.PremiumRate {
	active := in.Active == nil || *in.Active
	return models.PremiumRate{
		CompanyID:                companyID,
		CoverType:                models.CoverType(in.CoverType),
		ComprehensiveMinRate:     conv.OptionalMoney("comprehensive_min_rate", in.ComprehensiveMinRate),
		ComprehensiveMaxRate:     conv.OptionalMoney("comprehensive_max_rate", in.ComprehensiveMaxRate),
		ComprehensiveDefaultRate: conv.OptionalMoney("comprehensive_default_rate", in.ComprehensiveDefaultRate),
		TPOFlatRate:              conv.OptionalMoney("tpo_flat_rate", in.TPOFlatRate),
		TPFTBaseRate:             conv.OptionalMoney("tpft_base_rate", in.TPFTBaseRate),
		TPFTPercentage:           conv.OptionalMoney("tpft_percentage", in.TPFTPercentage),
		PSVTaxiRate:              conv.OptionalMoney("psv_taxi_rate", in.PSVTaxiRate),
		PSVMatatu14Rate:          conv.OptionalMoney("psv_matatu_14_rate", in.PSVMatatu14Rate),
		PSVMatatu25Rate:          conv.OptionalMoney("psv_matatu_25_rate", in.PSVMatatu25Rate),
		PSVBusRate:               conv.OptionalMoney("psv_bus_rate", in.PSVBusRate),
		Active:                   active,
	}
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

/* =============================== Insurer ================================ */

// @Summary      Calculate premium
// @Description  Prices a cover against the company's rate card. The result is kept for 30 minutes as a one-time prefill draft.
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CalculateRequest  true  "Calculator inputs"
// @Success      200  {object}  premium.Breakdown
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse  "no rate for cover type"
// @Router       /insurer/quotes/calculate [post]
func (h *Handler) Calculate(c *fiber.Ctx) error {
	var in CalculateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	var conv validation.Values
	input := in.input(&conv)
	if errs := conv.Errors(); errs != nil {
		return validation.Respond(c, errs)
	}
	out, err := h.svc.Calculate(c.UserContext(), auth.MustPrincipal(c), input)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Take calculation draft
// @Description  Returns the last calculation and clears it.
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  premium.Breakdown
// @Failure      404  {object}  models.ErrorResponse
// @Router       /insurer/quotes/draft [get]
func (h *Handler) Draft(c *fiber.Ctx) error {
	out, err := h.svc.ConsumeDraft(c.UserContext(), auth.MustPrincipal(c))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Issue quote
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  SaveQuoteRequest  true  "Quote"
// @Success      201  {object}  View
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /insurer/quotes [post]
func (h *Handler) Save(c *fiber.Ctx) error {
	var in SaveQuoteRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	var conv validation.Values
	input := in.input(&conv)
	if errs := conv.Errors(); errs != nil {
		return validation.Respond(c, errs)
	}
	out, err := h.svc.Save(c.UserContext(), auth.MustPrincipal(c), Issue{
		CustomerName: in.CustomerName, CustomerEmail: in.CustomerEmail, Input: input,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// @Summary      List quotes
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        status    query  string  false  "Sent | Converted | Expired"
// @Param        page      query  int     false  "Page number"
// @Param        pageSize  query  int     false  "Page size (max 50)"
// @Success      200  {object}  models.Page[View]
// @Router       /insurer/quotes [get]
func (h *Handler) List(c *fiber.Ctx) error {
	status := models.QuoteStatus(c.Query("status"))
	switch status {
	case "", models.QuoteSent, models.QuoteConverted, models.QuoteExpired:
	default:
		return validation.Respond(c, validation.Field("status", "Value is not allowed"))
	}
	page, size := utils.ParsePage(c)
	items, total, err := h.svc.List(c.UserContext(), auth.MustAffiliation(c), status, page, size)
	if err != nil {
		return err
	}
	return c.JSON(utils.PageOf(page, size, total, items))
}

// @Summary      Quote detail
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Quote ID (UUID)"
// @Success      200  {object}  View
// @Failure      404  {object}  models.ErrorResponse
// @Router       /insurer/quotes/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.New(apperr.CodeNotFound, "quote not found")
	}
	out, err := h.svc.Get(c.UserContext(), auth.MustAffiliation(c), id)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Company rate card
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  models.PremiumRate
// @Router       /insurer/rates [get]
func (h *Handler) CompanyRates(c *fiber.Ctx) error {
	company := auth.MustAffiliation(c)
	out, err := h.svc.ListRates(c.UserContext(), &company)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

/* ================================ Admin ================================= */

// @Summary      List premium rates
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        company_id  query  string  false  "Company ID (UUID)"
// @Success      200  {array}  models.PremiumRate
// @Router       /admin/rates [get]
func (h *Handler) AdminRates(c *fiber.Ctx) error {
	var company *uuid.UUID
	if raw := c.Query("company_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return validation.Respond(c, validation.Field("company_id", "Invalid UUID format"))
		}
		company = &id
	}
	out, err := h.svc.ListRates(c.UserContext(), company)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Set premium rate
// @Description  Creates or replaces the company's rate for one cover type.
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        companyId  path  string       true  "Company ID (UUID)"
// @Param        payload    body  RateRequest  true  "Rate"
// @Success      200  {object}  models.PremiumRate
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/rates/{companyId} [put]
func (h *Handler) UpsertRate(c *fiber.Ctx) error {
	company, err := uuid.Parse(c.Params("companyId"))
	if err != nil {
		return apperr.New(apperr.CodeNotFound, "company not found")
	}
	var in RateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	var conv validation.Values
	rate := in.rate(company, &conv)
	if errs := conv.Errors(); errs != nil {
		return validation.Respond(c, errs)
	}
	out, err := h.svc.UpsertRate(c.UserContext(), auth.MustPrincipal(c), rate)
	if err != nil {
		return err
	}
	return c.JSON(out)
}
