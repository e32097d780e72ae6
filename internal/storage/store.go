// Package storage keeps policy photos and claim documents in an object store
// and moves them out of staging once the owning rows are committed.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aldoetobex/clearinsure-backend/pkg/config"
	"github.com/aldoetobex/clearinsure-backend/pkg/logger"
)

// ObjectStore is the minimal surface the upload flows need.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string, size int64) error
	Move(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Opener is implemented by stores that can stream an object back directly.
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

var ErrNotFound = errors.New("object not found")

// New picks the store named by cfg.Driver.
func New(cfg config.StorageConfig) (ObjectStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "supabase":
		return NewSupabase(cfg), nil
	case "local", "":
		return NewLocal(cfg.RootDir)
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
}

/* ================================ Slots ================================= */

// PolicyPhotoSlots are the vehicle angles a policy may carry, one file each.
var PolicyPhotoSlots = []string{
	"front_view", "rear_view", "left_side", "right_side",
	"front_left", "front_right", "rear_left", "rear_right",
	"dashboard", "odometer", "chassis_number",
}

// ClaimDocumentSlots are the supporting documents a claim may carry.
var ClaimDocumentSlots = []string{
	"claim_form", "police_abstract", "driving_license", "logbook",
	"national_id", "repair_estimate", "accident_photos", "damage_photos",
	"witness_statement", "medical_report", "other_supporting",
}

var (
	photoTypes    = []string{"image/jpeg", "image/png", "image/webp"}
	documentTypes = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}
)

// Upload is one accepted multipart file bound to its slot.
type Upload struct {
	Slot   string
	Header *multipart.FileHeader
	Mime   string
}

// Rejected reports a file in a known slot that failed size or type checks.
type Rejected struct {
	Slot  string `json:"slot"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// PhotosFromForm picks files for known photo slots. Fields outside the slot
// set are ignored.
func PhotosFromForm(form *multipart.Form, maxBytes int64) ([]Upload, []Rejected) {
	return fromForm(form, PolicyPhotoSlots, photoTypes, maxBytes)
}

// DocumentsFromForm picks files for known claim document slots.
func DocumentsFromForm(form *multipart.Form, maxBytes int64) ([]Upload, []Rejected) {
	return fromForm(form, ClaimDocumentSlots, documentTypes, maxBytes)
}

func fromForm(form *multipart.Form, slots, allowed []string, maxBytes int64) ([]Upload, []Rejected) {
	var (
		ok  []Upload
		bad []Rejected
	)
	if form == nil {
		return nil, nil
	}
	for _, slot := range slots {
		files := form.File[slot]
		if len(files) == 0 {
			continue
		}
		fh := files[0]
		ct := fh.Header.Get("Content-Type")
		if ct == "" || ct == "application/octet-stream" {
			ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename)))
		}
		if i := strings.Index(ct, ";"); i >= 0 {
			ct = strings.TrimSpace(ct[:i])
		}
		switch {
		case fh.Size <= 0:
			bad = append(bad, Rejected{Slot: slot, Name: fh.Filename, Error: "empty file"})
		case maxBytes > 0 && fh.Size > maxBytes:
			bad = append(bad, Rejected{Slot: slot, Name: fh.Filename, Error: fmt.Sprintf("max %dMB per file", maxBytes>>20)})
		case !contains(allowed, ct):
			bad = append(bad, Rejected{Slot: slot, Name: fh.Filename, Error: "file type not allowed"})
		default:
			ok = append(ok, Upload{Slot: slot, Header: fh, Mime: ct})
		}
	}
	return ok, bad
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

/* ================================= Keys ================================= */

const stagingPrefix = "staging"

// ObjectKey builds {kind}/{entityID}/{slot}_{uuid}{ext}.
func ObjectKey(kind string, entityID uuid.UUID, slot, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(kind, entityID.String(), fmt.Sprintf("%s_%s%s", slot, uuid.NewString(), ext))
}

func stagingKey(key string) string { return path.Join(stagingPrefix, key) }

/* =============================== Staging ================================ */

// Batch uploads files under a staging prefix while the database transaction
// is open. Promote moves them to their final keys after commit; Discard
// removes them after a rollback.
type Batch struct {
	store ObjectStore
	logg  *logger.Logger
	keys  []string
}

func NewBatch(store ObjectStore, logg *logger.Logger) *Batch {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Batch{store: store, logg: logg}
}

// Stage uploads u to the staging copy of key.
func (b *Batch) Stage(ctx context.Context, key string, u Upload) error {
	f, err := u.Header.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", u.Slot, err)
	}
	defer f.Close()

	if err := b.store.Put(ctx, stagingKey(key), f, u.Mime, u.Header.Size); err != nil {
		return err
	}
	b.keys = append(b.keys, key)
	return nil
}

// Keys returns the final keys staged so far.
func (b *Batch) Keys() []string { return append([]string(nil), b.keys...) }

// Promote moves every staged object to its final key. Failures are logged
// and returned; the rows are already committed.
func (b *Batch) Promote(ctx context.Context) error {
	var errs []error
	for _, key := range b.keys {
		if err := b.store.Move(ctx, stagingKey(key), key); err != nil {
			b.logg.Error(b.logg.WithField(ctx, "object_key", key), "promote staged object", err)
			errs = append(errs, err)
		}
	}
	b.keys = nil
	return errors.Join(errs...)
}

// Discard deletes every staged object.
func (b *Batch) Discard(ctx context.Context) {
	for _, key := range b.keys {
		if err := b.store.Delete(ctx, stagingKey(key)); err != nil {
			b.logg.Warn(b.logg.WithField(ctx, "object_key", key), "discard staged object: "+err.Error())
		}
	}
	b.keys = nil
}
