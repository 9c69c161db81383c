package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Setting is one stored preference.
type Setting struct {
	Key       string `gorm:"column:key;primaryKey;size:64"`
	Value     string `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time
}

func (Setting) TableName() string { return "preferences" }

// GormStore keeps preferences in sqlite or postgres.
type GormStore struct {
	prefs
	db *gorm.DB
}

// Open picks the dialect from the DSN: postgres:// and postgresql:// go to
// postgres, anything else is a sqlite path or file: URI.
func Open(dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open prefs: %w", err)
	}
	if err := db.AutoMigrate(&Setting{}); err != nil {
		return nil, fmt.Errorf("migrate prefs: %w", err)
	}
	s := &GormStore{db: db}
	s.prefs = prefs{kv: gormKV{db}}
	return s, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormKV struct{ db *gorm.DB }

func (g gormKV) get(ctx context.Context, key string) (string, error) {
	var row Setting
	err := g.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return row.Value, nil
}

func (g gormKV) put(ctx context.Context, values map[string]string) error {
	rows := make([]Setting, 0, len(values))
	for k, v := range values {
		rows = append(rows, Setting{Key: k, Value: v})
	}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("put prefs: %w", err)
	}
	return nil
}
