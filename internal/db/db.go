package db

import (
	"fmt"
	"time"

	"forumsync/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/golang/glog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Options struct {
	Driver string // "postgres" or "sqlite"
	DSN    string
	Debug  bool
}

// Open connects to the configured store and migrates the schema.
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "postgres", "":
		dialector = postgres.Open(opts.DSN)
	case "sqlite":
		dialector = sqlite.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", opts.Driver)
	}

	logLevel := logger.Silent
	if opts.Debug {
		logLevel = logger.Info
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.Driver == "sqlite" {
		// sqlite 只允许单写连接；内存库每个连接都是独立的库
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	glog.Infof("Database connection established (%s)", dialector.Name())

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.Post{},
		&models.Reply{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := backfillSearchText(conn); err != nil {
		return fmt.Errorf("failed to backfill search text: %w", err)
	}
	glog.Info("Database migration completed")
	return nil
}

// 旧库没有 search_text 列，迁移后补齐
func backfillSearchText(conn *gorm.DB) error {
	var batch []models.Post
	return conn.Select("id", "title", "content").
		Where("search_text IS NULL OR search_text = ''").
		FindInBatches(&batch, 200, func(_ *gorm.DB, _ int) error {
			for _, p := range batch {
				err := conn.Model(&models.Post{}).
					Where("id = ?", p.ID).
					UpdateColumn("search_text", models.SearchKey(p.Title, p.Content)).Error
				if err != nil {
					return err
				}
			}
			glog.Infof("Backfilled search text for %d posts", len(batch))
			return nil
		}).Error
}
