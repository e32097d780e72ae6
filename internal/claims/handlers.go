package claims

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/clearinsure-backend/internal/auth"
	"github.com/aldoetobex/clearinsure-backend/internal/storage"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
	"github.com/aldoetobex/clearinsure-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Claim filing. Multipart when documents are attached (one file per slot
// field, e.g. police_abstract), JSON otherwise.
type FileClaimRequest struct {
	PolicyID            string `json:"policy_id" form:"policy_id" validate:"required,uuid"`
	AccidentDate        string `json:"accident_date" form:"accident_date" validate:"required,datetime=2006-01-02"`
	AccidentTime        string `json:"accident_time" form:"accident_time" validate:"omitempty,datetime=15:04"`
	AccidentLocation    string `json:"accident_location" form:"accident_location" validate:"required,max=200"`
	AccidentDescription string `json:"accident_description" form:"accident_description" validate:"required,max=4000"`
	PoliceReportNumber  string `json:"police_report_number" form:"police_report_number" validate:"omitempty,max=60"`
	PoliceStation       string `json:"police_station" form:"police_station" validate:"omitempty,max=120"`
	WitnessName         string `json:"witness_name" form:"witness_name" validate:"omitempty,max=120"`
	WitnessPhone        string `json:"witness_phone" form:"witness_phone" validate:"omitempty,phone"`
	WitnessStatement    string `json:"witness_statement" form:"witness_statement" validate:"omitempty,max=4000"`
	DamageDescription   string `json:"damage_description" form:"damage_description" validate:"omitempty,max=4000"`
	EstimatedLoss       string `json:"estimated_loss" form:"estimated_loss" validate:"required,money"`
	ThirdPartyInvolved  bool   `json:"third_party_involved" form:"third_party_involved"`
	ThirdPartyDetails   string `json:"third_party_details" form:"third_party_details" validate:"omitempty,max=4000"`
}

// Request body for starting a review
type ReviewRequest struct {
	Notes string `json:"notes" validate:"max=4000"`
}

// Request body for rejection
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

func (in FileClaimRequest) filing(conv *validation.Values) Filing {
	date, _ := time.Parse("2006-01-02", in.AccidentDate)
	return Filing{
		AccidentDate:        date,
		AccidentTime:        in.AccidentTime,
		AccidentLocation:    in.AccidentLocation,
		AccidentDescription: in.AccidentDescription,
		PoliceReportNumber:  in.PoliceReportNumber,
		PoliceStation:       in.PoliceStation,
		WitnessName:         in.WitnessName,
		WitnessPhone:        in.WitnessPhone,
		WitnessStatement:    in.WitnessStatement,
		DamageDescription:   in.DamageDescription,
		EstimatedLoss:       conv.Money("estimated_loss", in.EstimatedLoss),
		ThirdPartyInvolved:  in.ThirdPartyInvolved,
		ThirdPartyDetails:   in.ThirdPartyDetails,
	}
}

// Filed claim. Documents that failed the size or type checks are listed and
// were not stored.
type FileClaimResponse struct {
	View
	RejectedDocuments []storage.Rejected `json:"rejected_documents"`
}

type Handler struct {
	svc      *Service
	maxBytes int64
}

func NewHandler(svc *Service, maxUploadMB int) *Handler {
	return &Handler{svc: svc, maxBytes: int64(maxUploadMB) << 20}
}

func claimID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, notFound()
	}
	return id, nil
}

/* =============================== Insurer ================================ */

// @Summary      File claim
// @Description  One claim per policy. A second filing returns 409 with the existing claim number.
// @Tags         claims
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Accept       json
// @Produce      json
// @Param        payload          body      FileClaimRequest  true   "Claim details"
// @Param        police_abstract  formData  file              false  "Document slot (any of the 11 named slots)"
// @Success      201  {object}  FileClaimResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "claim already exists"
// @Router       /insurer/claims [post]
func (h *Handler) File(c *fiber.Ctx) error {
	var in FileClaimRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var conv validation.Values
	policyID := conv.UUID("policy_id", in.PolicyID)
	filing := in.filing(&conv)
	if errs := conv.Errors(); errs != nil {
		return validation.Respond(c, errs)
	}

	var docs []storage.Upload
	rejected := []storage.Rejected{}
	if form, err := c.MultipartForm(); err == nil {
		var bad []storage.Rejected
		docs, bad = storage.DocumentsFromForm(form, h.maxBytes)
		rejected = append(rejected, bad...)
	}

	out, err := h.svc.File(c.UserContext(), auth.MustPrincipal(c), policyID, filing, docs)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(FileClaimResponse{View: *out, RejectedDocuments: rejected})
}

// @Summary      List company claims
// @Tags         claims
// @Security     BearerAuth
// @Produce      json
// @Param        status    query  string  false  "Pending | Under Review | Approved | Rejected"
// @Param        page      query  int     false  "Page number"
// @Param        pageSize  query  int     false  "Page size (max 50)"
// @Success      200  {object}  models.Page[View]
// @Router       /insurer/claims [get]
func (h *Handler) ListCompany(c *fiber.Ctx) error {
	status := models.ClaimStatus(c.Query("status"))
	switch status {
	case "", models.ClaimPending, models.ClaimUnderReview, models.ClaimApproved, models.ClaimRejected:
	default:
		return validation.Respond(c, validation.Field("status", "Value is not allowed"))
	}
	page, size := utils.ParsePage(c)
	items, total, err := h.svc.ListCompany(c.UserContext(), auth.MustAffiliation(c), status, page, size)
	if err != nil {
		return err
	}
	return c.JSON(utils.PageOf(page, size, total, items))
}

// @Summary      Claim detail
// @Tags         claims
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Claim ID (UUID)"
// @Success      200  {object}  View
// @Failure      404  {object}  models.ErrorResponse
// @Router       /insurer/claims/{id} [get]
func (h *Handler) GetCompany(c *fiber.Ctx) error {
	id, err := claimID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GetCompany(c.UserContext(), auth.MustAffiliation(c), id)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Start review
// @Description  Pending → Under Review
// @Tags         claims
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true   "Claim ID (UUID)"
// @Param        payload  body  ReviewRequest  false  "Review notes"
// @Success      200  {object}  View
// @Failure      422  {object}  models.ErrorResponse
// @Router       /insurer/claims/{id}/review [post]
func (h *Handler) Review(c *fiber.Ctx) error {
	id, err := claimID(c)
	if err != nil {
		return err
	}
	var in ReviewRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.ErrBadRequest
		}
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	out, err := h.svc.Review(c.UserContext(), auth.MustPrincipal(c), id, in.Notes)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Run fraud check
// @Description  Only for claims Under Review. Required before approval.
// @Tags         claims
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Claim ID (UUID)"
// @Success      200  {object}  View
// @Failure      422  {object}  models.ErrorResponse
// @Router       /insurer/claims/{id}/fraud-check [post]
func (h *Handler) FraudCheck(c *fiber.Ctx) error {
	id, err := claimID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.FraudCheck(c.UserContext(), auth.MustPrincipal(c), id)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Approve claim
// @Tags         claims
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Claim ID (UUID)"
// @Success      200  {object}  View
// @Failure      422  {object}  models.ErrorResponse  "not under review or fraud check missing"
// @Router       /insurer/claims/{id}/approve [post]
func (h *Handler) Approve(c *fiber.Ctx) error {
	id, err := claimID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Approve(c.UserContext(), auth.MustPrincipal(c), id)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Reject claim
// @Tags         claims
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "Claim ID (UUID)"
// @Param        payload  body  RejectRequest  true  "Reason"
// @Success      200  {object}  View
// @Failure      422  {object}  models.ErrorResponse
// @Router       /insurer/claims/{id}/reject [post]
func (h *Handler) Reject(c *fiber.Ctx) error {
	id, err := claimID(c)
	if err != nil {
		return err
	}
	var in RejectRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	out, err := h.svc.Reject(c.UserContext(), auth.MustPrincipal(c), id, in.Reason)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

/* =============================== Customer =============================== */

// @Summary      My claims
// @Description  Claims on policies held under the customer's email
// @Tags         customer
// @Security     BearerAuth
// @Produce      json
// @Param        page      query  int  false  "Page number"
// @Param        pageSize  query  int  false  "Page size (max 50)"
// @Success      200  {object}  models.Page[View]
// @Router       /customer/claims [get]
func (h *Handler) ListOwned(c *fiber.Ctx) error {
	page, size := utils.ParsePage(c)
	items, total, err := h.svc.ListOwned(c.UserContext(), auth.MustPrincipal(c).Email, page, size)
	if err != nil {
		return err
	}
	return c.JSON(utils.PageOf(page, size, total, items))
}
