// Package sequence hands out gap-free document numbers (CO-0001, CL-0001)
// from a counter row locked inside the caller's transaction.
package sequence

import (
	"fmt"

	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ClaimPrefix = "CL"
	QuotePrefix = "QT"
)

// Next increments the counter for prefix and returns the new value. It must
// run inside tx so the number is released if the caller rolls back.
func Next(tx *gorm.DB, prefix string) (int64, error) {
	// Concurrent first callers both reach this insert; the loser waits for the
	// winner's row and then does nothing instead of failing on the key.
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "prefix"}},
		DoNothing: true,
	}).Create(&models.NumberSequence{Prefix: prefix}).Error
	if err != nil {
		return 0, fmt.Errorf("init sequence %s: %w", prefix, err)
	}

	var row models.NumberSequence
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, "prefix = ?", prefix).Error; err != nil {
		return 0, fmt.Errorf("lock sequence %s: %w", prefix, err)
	}

	res := tx.Model(&models.NumberSequence{}).
		Where("prefix = ?", prefix).
		Update("last_value", gorm.Expr("last_value + 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("bump sequence %s: %w", prefix, res.Error)
	}
	return row.LastValue + 1, nil
}

// Format renders prefix-0001 style numbers.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s-%04d", prefix, n)
}

// NextNumber is Next followed by Format.
func NextNumber(tx *gorm.DB, prefix string) (string, error) {
	n, err := Next(tx, prefix)
	if err != nil {
		return "", err
	}
	return Format(prefix, n), nil
}
