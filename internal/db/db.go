package db

import (
	"fmt"

	"blurtbb/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects to driver ("postgres" or "sqlite") and migrates the forum tables.
func Open(driver, dsn string, log *logrus.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.WithField("driver", driver).Info("Database connection established")

	if err := conn.AutoMigrate(
		&models.BlockedAuthor{},
		&models.BlockedPost{},
		&models.NotificationMark{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	log.Info("Database migration completed")
	return conn, nil
}

// Init opens the shared connection and seeds the author block-list.
func Init(driver, dsn string, blockedAuthors []string, log *logrus.Logger) error {
	conn, err := Open(driver, dsn, log)
	if err != nil {
		return err
	}
	DB = conn
	seedBlockedAuthors(conn, blockedAuthors, log)
	return nil
}

func seedBlockedAuthors(conn *gorm.DB, accounts []string, log *logrus.Logger) {
	for _, account := range accounts {
		entry := models.BlockedAuthor{Account: account, Reason: "configured", AddedBy: "config"}
		res := conn.Where(models.BlockedAuthor{Account: account}).FirstOrCreate(&entry)
		if res.Error != nil {
			log.WithError(res.Error).WithField("account", account).Warn("Failed to seed blocked author")
			continue
		}
		if res.RowsAffected > 0 {
			log.WithField("account", account).Info("Seeded blocked author")
		}
	}
}
