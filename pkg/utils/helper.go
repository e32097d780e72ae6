package utils

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event describes one lifecycle transition for the audit trail.
type Event struct {
	Entity    string
	EntityID  uuid.UUID
	ActorID   uuid.UUID
	ActorRole models.Role
	Action    string
	OldStatus string
	NewStatus string
	Reason    string
}

// LogEvent inserts an audit record into lifecycle_events. Callers pass their
// transaction so the entry commits or rolls back with the change itself.
// Errors are ignored on purpose (best-effort logging).
func LogEvent(ctx context.Context, db *gorm.DB, ev Event) {
	_ = db.WithContext(ctx).Create(&models.LifecycleEvent{
		Entity:    ev.Entity,
		EntityID:  ev.EntityID,
		ActorID:   ev.ActorID,
		ActorRole: ev.ActorRole,
		Action:    ev.Action,
		OldStatus: ev.OldStatus,
		NewStatus: ev.NewStatus,
		Reason:    ev.Reason,
		CreatedAt: time.Now(),
	}).Error
}

// ParsePage reads ?page and ?pageSize with sane bounds.
func ParsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

// PageOf wraps items in the list envelope. Items is never null.
func PageOf[T any](page, size int, total int64, items []T) models.Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if size > 0 {
		pages = int(math.Ceil(float64(total) / float64(size)))
	}
	return models.Page[T]{Page: page, PageSize: size, Total: total, Pages: pages, Items: items}
}

// Paginate applies offset/limit for page and size.
func Paginate(page, size int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((page - 1) * size).Limit(size)
	}
}
