package database

import (
	"fmt"

	"blagajna/internal/model"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM. Unique violations come
// back as gorm.ErrDuplicatedKey, which the pipeline relies on to detect a number that
// was taken concurrently.
func NewConnection(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Debug().Msg("database schema migrated")

	return db, nil
}

// Migrate creates or updates the fiscal tables.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.BusinessPremise{},
		&model.Invoice{},
		&model.InvoiceLine{},
		&model.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return nil
}
