package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /signup
type SignupRequest struct {
	Role     string `json:"role" validate:"required,oneof=customer insurer regulator"`
	Username string `json:"username" validate:"required,min=3,max=40"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	// Optional for insurers and regulators; collected again on onboarding
	StaffID string `json:"staff_id" validate:"omitempty,staffid"`
}

// Request body for /login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
}

// Standard auth response
type AuthResponse struct {
	Token string      `json:"token"`
	Role  models.Role `json:"role"`
	Home  string      `json:"home"`
}

// Profile response for /me
type ProfileResponse struct {
	ID            uuid.UUID   `json:"id"`
	Identity      string      `json:"identity"`
	Role          models.Role `json:"role"`
	Username      string      `json:"username"`
	Email         string      `json:"email"`
	StaffID       string      `json:"staff_id,omitempty"`
	Active        bool        `json:"active"`
	Approved      bool        `json:"approved"`
	AffiliationID *uuid.UUID  `json:"affiliation_id,omitempty"`
	Onboarding    string      `json:"onboarding"`
	Home          string      `json:"home"`
	CreatedAt     time.Time   `json:"created_at"`
}

/* ============================== Handler ================================= */

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func authResponse(s *Session) AuthResponse {
	return AuthResponse{Token: s.Token, Role: s.Principal.Role, Home: principals.Home[s.Principal.Role]}
}

/* =============================== Signup ================================= */

// @Summary      Sign up
// @Description  Register a customer, insurer or regulator. Insurers and regulators must complete onboarding before using the portal.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  SignupRequest  true  "Signup payload"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "username or email already exists"
// @Router       /auth/signup [post]
func (h *Handler) Signup(c *fiber.Ctx) error {
	var in SignupRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	in.Email = principals.NormalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	sess, err := h.svc.Signup(c.UserContext(), SignupInput{
		Role:     models.Role(in.Role),
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
		StaffID:  strings.TrimSpace(in.StaffID),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(authResponse(sess))
}

/* ================================ Login ================================= */

// @Summary      Login
// @Description  Authenticate and receive a JWT. Disabled accounts get 403 ACCOUNT_DISABLED.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Failure      403      {object}  models.ErrorResponse
// @Failure      429      {object}  models.ErrorResponse
// @Router       /auth/login [post]
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = principals.NormalizeEmail(in.Email)

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	sess, err := h.svc.Login(c.UserContext(), in.Email, in.Password, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(authResponse(sess))
}

/* ================================= Me =================================== */

// @Summary      Current principal
// @Description  Profile, onboarding state and home route of the authenticated principal
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  ProfileResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /auth/me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	prof, err := h.svc.Me(c.UserContext(), MustIdentity(c))
	if err != nil {
		return err
	}
	p := prof.Principal
	return c.JSON(ProfileResponse{
		ID:            p.ID,
		Identity:      p.Identity.String(),
		Role:          p.Role,
		Username:      p.Username,
		Email:         p.Email,
		StaffID:       p.StaffID,
		Active:        p.Active,
		Approved:      p.Approved,
		AffiliationID: p.AffiliationID,
		Onboarding:    prof.Onboarding,
		Home:          prof.Home,
		CreatedAt:     p.CreatedAt,
	})
}
