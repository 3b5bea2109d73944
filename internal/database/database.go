package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fileshare/backend/internal/config"
	"github.com/fileshare/backend/internal/models"
)

// Open connects to the configured database without touching the schema.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "sqlite", "":
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite allows a single writer; one connection avoids SQLITE_BUSY
		// under concurrent requests.
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.SSLMode,
		)
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Connect opens the database and brings the schema up to date.
func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.File{},
		&models.Bundle{},
		&models.BundleFile{},
		&models.Setting{},
	)
}

// Reset drops every application table and recreates the schema from scratch.
func Reset(db *gorm.DB) error {
	if err := db.Migrator().DropTable(
		&models.Setting{},
		&models.BundleFile{},
		&models.Bundle{},
		&models.File{},
		&models.User{},
	); err != nil {
		return err
	}
	return Migrate(db)
}
