package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/logger"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
)

/* ============================== JWT Claims ============================== */

// Claims represents the JWT payload we issue and expect.
type Claims struct {
	Sub  string `json:"sub"`  // tagged identity: "<role>_<uuid>"
	Role string `json:"role"` // admin | customer | insurer | regulator
	jwt.RegisteredClaims
}

// Tokens signs and verifies session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for id.
func (t *Tokens) Issue(id principals.Identity) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub:  id.String(),
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse validates tokenStr and returns its identity.
func (t *Tokens) Parse(tokenStr string) (principals.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(tk *jwt.Token) (any, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return principals.Identity{}, errors.New("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return principals.Identity{}, errors.New("invalid claims")
	}
	id, err := principals.ParseIdentity(claims.Sub)
	if err != nil {
		return principals.Identity{}, err
	}
	if string(id.Role) != claims.Role {
		return principals.Identity{}, errors.New("role mismatch")
	}
	return id, nil
}

/* ============================== Locals keys ============================= */

const (
	localIdentity  = "identity"
	localPrincipal = "principal"
	localUserID    = "userID"
	localRole      = "role"
)

// SetIdentity stores id on the request. RequireAuth and tests use it.
func SetIdentity(c *fiber.Ctx, id principals.Identity) {
	c.Locals(localIdentity, id)
	c.Locals(localUserID, id.ID.String())
	c.Locals(localRole, string(id.Role))
}

/* ============================== Middleware ============================== */

// RequireAuth validates a Bearer JWT and injects the identity into the context.
func RequireAuth(tokens *Tokens, logg *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return apperr.New(apperr.CodeUnauthorized, "missing bearer token")
		}
		id, err := tokens.Parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return apperr.New(apperr.CodeUnauthorized, "invalid or expired token")
		}
		SetIdentity(c, id)
		if logg != nil {
			c.SetUserContext(logg.WithFields(c.UserContext(), map[string]any{
				"principal": id.String(),
				"role":      string(id.Role),
			}))
		}
		return c.Next()
	}
}

// MustIdentity reads the authenticated identity or panics (programming error).
func MustIdentity(c *fiber.Ctx) principals.Identity {
	if v, ok := c.Locals(localIdentity).(principals.Identity); ok {
		return v
	}
	panic(errors.New("identity not in context"))
}

// MustUserID reads the authenticated principal id.
func MustUserID(c *fiber.Ctx) uuid.UUID {
	return MustIdentity(c).ID
}

// MustRole reads the authenticated role.
func MustRole(c *fiber.Ctx) models.Role {
	return MustIdentity(c).Role
}

// RequireRole ensures the authenticated principal has one of roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := MustRole(c)
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return apperr.Newf(apperr.CodeForbidden, "role %s may not access %s", role, c.Path())
	}
}

// RequireActive loads the principal and rejects disabled accounts.
func RequireActive(dir *principals.Directory) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := dir.Resolve(c.UserContext(), MustIdentity(c))
		if err != nil {
			return err
		}
		if !p.Active {
			return apperr.New(apperr.CodeAccountDisabled, "your account has been disabled")
		}
		c.Locals(localPrincipal, p)
		return c.Next()
	}
}

// RequireApproved gates insurers and regulators on completed onboarding.
// details.onboarding tells the client whether to show the request form
// (no_request, rejected) or the pending placeholder.
func RequireApproved(dir *principals.Directory) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := MustPrincipal(c)
		if !p.NeedsApproval() || (p.Approved && p.AffiliationID != nil) {
			return c.Next()
		}
		state, err := dir.OnboardingState(c.UserContext(), p)
		if err != nil {
			return err
		}
		return apperr.New(apperr.CodeApprovalRequired, "your account is awaiting approval").
			WithDetails(fiber.Map{"onboarding": state})
	}
}

// MustPrincipal returns the principal loaded by RequireActive.
func MustPrincipal(c *fiber.Ctx) *principals.Principal {
	if v, ok := c.Locals(localPrincipal).(*principals.Principal); ok {
		return v
	}
	panic(errors.New("principal not in context"))
}

// SetPrincipal stores p on the request. Used by tests.
func SetPrincipal(c *fiber.Ctx, p *principals.Principal) {
	SetIdentity(c, p.Identity)
	c.Locals(localPrincipal, p)
}

// MustAffiliation returns the approved principal's company or regulatory body.
func MustAffiliation(c *fiber.Ctx) uuid.UUID {
	p := MustPrincipal(c)
	if p.AffiliationID == nil {
		panic(errors.New("principal has no affiliation"))
	}
	return *p.AffiliationID
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusTooManyRequests:
		return "RATE_LIMIT_EXCEEDED"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorHandler returns a global Fiber error handler with a consistent JSON
// shape. Typed service errors keep their code; 5xx causes are logged, never
// returned.
func ErrorHandler(logg *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if typed := apperr.As(err); typed != nil {
			meta := apperr.MetadataFor(typed.Code())
			if meta.HTTPStatus >= fiber.StatusInternalServerError && logg != nil {
				logg.Error(c.UserContext(), "request failed", err)
			}
			resp := models.ErrorResponse{
				Error:   true,
				Message: apperr.PublicMessage(err),
				Code:    string(typed.Code()),
			}
			if meta.DetailsAllowed {
				resp.Details = typed.Details()
			}
			return c.Status(meta.HTTPStatus).JSON(resp)
		}

		// Defaults
		code := fiber.StatusInternalServerError
		msg := "Internal Server Error"

		// Fiber errors carry status codes
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			if strings.TrimSpace(fe.Message) != "" {
				msg = fe.Message
			}
		}
		if code >= fiber.StatusInternalServerError && logg != nil {
			logg.Error(c.UserContext(), "request failed", err)
		}

		return c.Status(code).JSON(models.ErrorResponse{
			Code:    httpCodeToString(code),
			Error:   true,
			Message: msg,
		})
	}
}
