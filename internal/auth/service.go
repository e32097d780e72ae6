package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/pkg/config"
	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/logger"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/redis"
)

// Service implements signup, login and profile lookup.
type Service struct {
	db      *gorm.DB
	dir     *principals.Directory
	tokens  *Tokens
	limiter redis.RateLimiter
	limits  config.AuthRateLimitConfig
	logg    *logger.Logger
}

type ServiceParams struct {
	DB      *gorm.DB
	Tokens  *Tokens
	Limiter redis.RateLimiter // optional
	Limits  config.AuthRateLimitConfig
	Logger  *logger.Logger
}

func NewService(p ServiceParams) *Service {
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		db:      p.DB,
		dir:     principals.NewDirectory(p.DB),
		tokens:  p.Tokens,
		limiter: p.Limiter,
		limits:  p.Limits,
		logg:    logg,
	}
}

func (s *Service) Directory() *principals.Directory { return s.dir }

type SignupInput struct {
	Role     models.Role
	Username string
	Email    string
	Password string
	StaffID  string
}

type Session struct {
	Token     string
	Principal *principals.Principal
}

// Signup creates a customer, insurer or regulator account. Username and
// email must be unused across every role.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	if !in.Role.SelfSignup() {
		return nil, apperr.Newf(apperr.CodeValidation, "role %q cannot sign up", in.Role).
			WithDetails(map[string][]string{"role": {"Value is not allowed"}})
	}

	existing, err := s.dir.FindByEmailOrUsername(ctx, in.Email, in.Username, nil)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, duplicateErr(existing, in.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "hash password")
	}

	var p *principals.Principal
	err = database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		p, err = principals.Create(ctx, tx, principals.NewAccount{
			Role:         in.Role,
			Username:     in.Username,
			Email:        in.Email,
			PasswordHash: string(hash),
			StaffID:      in.StaffID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(p.Identity)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "issue token")
	}
	s.logg.Info(s.logg.WithField(ctx, "principal", p.Identity.String()), "principal signed up")
	return &Session{Token: token, Principal: p}, nil
}

func duplicateErr(existing *models.PrincipalIdentity, email string) error {
	field := "username"
	if existing.Email == principals.NormalizeEmail(email) {
		field = "email"
	}
	return apperr.Newf(apperr.CodeConflict, "%s already in use", field).
		WithDetails(map[string]string{"field": field})
}

// Login authenticates by email and password. Disabled accounts are reported
// separately from bad credentials.
func (s *Service) Login(ctx context.Context, email, password, ip string) (*Session, error) {
	email = principals.NormalizeEmail(email)
	if err := s.checkRate(ctx, email, ip); err != nil {
		return nil, err
	}

	p, err := s.dir.FindForLogin(ctx, email)
	if err != nil {
		return nil, err
	}
	if p == nil || bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid email or password")
	}
	if !p.Active {
		return nil, apperr.New(apperr.CodeAccountDisabled, "your account has been disabled, contact an administrator")
	}

	token, err := s.tokens.Issue(p.Identity)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "issue token")
	}
	return &Session{Token: token, Principal: p}, nil
}

func (s *Service) checkRate(ctx context.Context, email, ip string) error {
	if s.limiter == nil {
		return nil
	}
	window := s.limits.LoginWindow
	if window <= 0 {
		window = time.Minute
	}
	scopes := []struct {
		key   string
		limit int
	}{
		{"login:email:" + email, s.limits.LoginEmailLimit},
		{"login:ip:" + ip, s.limits.LoginIPLimit},
	}
	for _, sc := range scopes {
		if sc.limit <= 0 {
			continue
		}
		ok, _, err := s.limiter.FixedWindowAllow(ctx, sc.key, int64(sc.limit), window)
		if err != nil {
			// limiter outage must not lock everyone out
			s.logg.Error(ctx, "login rate limiter unavailable", err)
			return nil
		}
		if !ok {
			return apperr.New(apperr.CodeRateLimit, fmt.Sprintf("too many login attempts, retry in %s", window))
		}
	}
	return nil
}

// Profile is the /me payload.
type Profile struct {
	Principal  *principals.Principal
	Onboarding string
	Home       string
}

func (s *Service) Me(ctx context.Context, id principals.Identity) (*Profile, error) {
	p, err := s.dir.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	state, err := s.dir.OnboardingState(ctx, p)
	if err != nil {
		return nil, err
	}
	return &Profile{Principal: p, Onboarding: state, Home: principals.Home[p.Role]}, nil
}
