package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/saftrack/ippt-backend/internal/directory"
)

const migrationTrimMemberNames = "2026-04-02_trim_member_names"

// migrationRecord marks a named data migration as applied. Rows are never
// deleted; reapplying a recorded migration is skipped.
type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	if err := applyOnce(db, logger, migrationTrimMemberNames, trimMemberNames); err != nil {
		return err
	}
	return nil
}

func applyOnce(db *gorm.DB, logger *zap.Logger, name string, apply func(*gorm.DB) error) error {
	var record migrationRecord
	lookupErr := db.Where("name = ?", name).Take(&record).Error
	if lookupErr == nil {
		return nil
	}
	if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return fmt.Errorf("migration %s lookup: %w", name, lookupErr)
	}

	if err := apply(db); err != nil {
		return fmt.Errorf("migration %s: %w", name, err)
	}
	record = migrationRecord{Name: name, AppliedAtSeconds: time.Now().UTC().Unix()}
	if err := db.Create(&record).Error; err != nil {
		return fmt.Errorf("migration %s record: %w", name, err)
	}
	if logger != nil {
		logger.Info("database migration applied", zap.String("migration", name))
	}
	return nil
}

// Early nominal roll imports carried the padding from the source spreadsheets,
// which broke exact-name matching against typed names.
func trimMemberNames(db *gorm.DB) error {
	return db.Model(&directory.Member{}).
		Where("full_name <> trim(full_name)").
		Update("full_name", gorm.Expr("trim(full_name)")).Error
}
