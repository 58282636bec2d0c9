package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inkwell-labs/inkwell/internal/notes"
)

const migrationNormalizeSharePermissions = "2026-07-14_normalize_share_permissions"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeSharePermissions, apply: normalizeSharePermissions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeSharePermissions rewrites legacy grant levels stored by early
// builds ("read"/"write") to the current view/edit vocabulary.
func normalizeSharePermissions(db *gorm.DB) error {
	if err := db.Model(&notes.ShareGrant{}).
		Where("permission = ?", "read").
		Update("permission", string(notes.PermissionView)).Error; err != nil {
		return err
	}
	return db.Model(&notes.ShareGrant{}).
		Where("permission = ?", "write").
		Update("permission", string(notes.PermissionEdit)).Error
}
