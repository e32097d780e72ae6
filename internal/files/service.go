// Package files hands out stored policy photos and claim documents to the
// principals allowed to see them.
package files

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/internal/storage"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
)

// Kind is the attachment table a file id refers to.
type Kind string

const (
	KindPhoto    Kind = "photos"
	KindDocument Kind = "documents"
)

func ParseKind(v string) (Kind, bool) {
	switch Kind(v) {
	case KindPhoto, KindDocument:
		return Kind(v), true
	}
	return "", false
}

type Service struct {
	db    *gorm.DB
	store storage.ObjectStore
	ttl   time.Duration
	now   func() time.Time
}

func NewService(db *gorm.DB, store storage.ObjectStore, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{db: db, store: store, ttl: ttl, now: time.Now}
}

// Attachment is a stored file with the policy it hangs off.
type Attachment struct {
	Key          string
	Mime         string
	Size         int64
	OriginalName string
	CompanyID    uuid.UUID
	HolderEmail  string
}

// Download is either a signed URL or an open stream, never both.
type Download struct {
	URL       string
	ExpiresIn time.Duration
	Body      io.ReadCloser
	File      *Attachment
}

func notFound() error { return apperr.New(apperr.CodeNotFound, "file not found") }

func (s *Service) load(ctx context.Context, kind Kind, id uuid.UUID) (*Attachment, error) {
	db := s.db.WithContext(ctx)
	var a Attachment
	var err error
	switch kind {
	case KindPhoto:
		err = db.Table("policy_photos").
			Select("policy_photos.key, policy_photos.mime, policy_photos.size, policy_photos.original_name, policies.company_id, policies.email_address AS holder_email").
			Joins("JOIN policies ON policies.id = policy_photos.policy_id").
			Where("policy_photos.id = ?", id).Take(&a).Error
	case KindDocument:
		err = db.Table("claim_documents").
			Select("claim_documents.key, claim_documents.mime, claim_documents.size, claim_documents.original_name, claims.company_id, policies.email_address AS holder_email").
			Joins("JOIN claims ON claims.id = claim_documents.claim_id").
			Joins("JOIN policies ON policies.id = claims.policy_id").
			Where("claim_documents.id = ?", id).Take(&a).Error
	default:
		return nil, notFound()
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load file")
	}
	return &a, nil
}

// canSee reports whether p may read a file attached to a's policy. Admins see
// every file and approved regulators see the whole market. Insurers are
// limited to their company and customers to policies registered to their
// email.
func canSee(p *principals.Principal, a *Attachment) bool {
	if p.NeedsApproval() && (!p.Approved || p.AffiliationID == nil) {
		return false
	}
	switch p.Role {
	case models.RoleAdmin, models.RoleRegulator:
		return true
	case models.RoleInsurer:
		return *p.AffiliationID == a.CompanyID
	case models.RoleCustomer:
		return principals.NormalizeEmail(p.Email) == principals.NormalizeEmail(a.HolderEmail)
	}
	return false
}

// Open authorizes p for the file and returns a signed URL, or a stream when
// the store cannot sign. Files outside p's scope are reported as missing.
func (s *Service) Open(ctx context.Context, p *principals.Principal, kind Kind, id uuid.UUID) (*Download, error) {
	a, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !canSee(p, a) {
		return nil, notFound()
	}

	if opener, ok := s.store.(storage.Opener); ok {
		body, err := opener.Open(ctx, a.Key)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFound()
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeDependency, err, "open file")
		}
		return &Download{Body: body, File: a}, nil
	}

	url, err := s.store.SignedURL(ctx, a.Key, s.ttl)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDependency, err, "sign file url")
	}
	return &Download{URL: url, ExpiresIn: s.ttl, File: a}, nil
}
