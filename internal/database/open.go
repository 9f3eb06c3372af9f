package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/records"
	"github.com/MarcoPoloResearchLab/apollo/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	// DriverSQLite opens an embedded database file.
	DriverSQLite = "sqlite"
	// DriverPostgres opens a PostgreSQL connection from a libpq-style DSN.
	DriverPostgres = "postgres"
)

// Open establishes a connection for the named driver and performs schema migrations.
func Open(driver, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var dialector gorm.Dialector
	normalizedDriver := strings.ToLower(strings.TrimSpace(driver))
	switch normalizedDriver {
	case DriverSQLite, "":
		normalizedDriver = DriverSQLite
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if normalizedDriver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := migrateSchema(db); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", normalizedDriver))
	}

	return db, nil
}

// OpenSQLite is a shorthand for Open with the SQLite driver.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return Open(DriverSQLite, path, logger)
}

func migrateSchema(db *gorm.DB) error {
	models := append(records.Models(), &users.Identity{}, &migrationRecord{})
	return db.AutoMigrate(models...)
}
