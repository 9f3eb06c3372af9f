package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/records"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNamespaceImportedAssignmentIDs = "2026-10-18_namespace_imported_assignment_ids"
	migrationBackfillClassDefaults          = "2026-10-18_backfill_class_defaults"
)

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
		{name: migrationNamespaceImportedAssignmentIDs, apply: namespaceImportedAssignmentIDs},
		{name: migrationBackfillClassDefaults, apply: backfillClassDefaults},
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
		if err := db.Transaction(migration.apply); err != nil {
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

// Rows written before assignment ids were namespaced carry the bare provider id.
func namespaceImportedAssignmentIDs(db *gorm.DB) error {
	return db.Exec(
		"UPDATE assignments SET assignment_id = CAST(? AS TEXT) || assignment_id WHERE assignment_id NOT LIKE ? AND assignment_id NOT LIKE ?",
		records.ImportedIDPrefix,
		records.ImportedIDPrefix+"%",
		records.LocalIDPrefix+"%",
	).Error
}

func backfillClassDefaults(db *gorm.DB) error {
	if err := db.Model(&records.Class{}).
		Where("TRIM(section) = ''").
		Update("section", "General").Error; err != nil {
		return err
	}
	return db.Model(&records.Class{}).
		Where("TRIM(subject) = ''").
		Update("subject", "General").Error
}
