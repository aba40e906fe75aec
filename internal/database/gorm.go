package database

import (
	"fmt"

	"waba-gateway/internal/config"
	"waba-gateway/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the PostgreSQL store and runs migrations.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "database: failed to connect to PostgreSQL")
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// ConnectTest opens a fresh in-memory SQLite store, used by the test suites.
// The database is named so that every pooled connection sees the same data.
func ConnectTest() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "database: failed to open SQLite")
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.BusinessAccount{},
		&models.OutboundMessage{},
		&models.WebhookRecord{},
		&models.Task{},
	)
	if err != nil {
		return errors.Wrap(err, "database: auto-migration failed")
	}
	return nil
}
