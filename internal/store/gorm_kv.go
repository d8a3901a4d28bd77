package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScopeEntry is the relational shape of one scoped record: the scope key
// plus the JSON-encoded payload.
type ScopeEntry struct {
	Key       string         `gorm:"primaryKey;size:512"`
	Value     datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

func (ScopeEntry) TableName() string {
	return "session_scope_entries"
}

type gormKV struct {
	db *gorm.DB
}

// NewGormKV returns a Postgres-backed KV storing one row per scope key.
func NewGormKV(db *gorm.DB) (KV, error) {
	if err := db.AutoMigrate(&ScopeEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate scope entries: %w", err)
	}
	return &gormKV{db: db}, nil
}

func (g *gormKV) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	var entry ScopeEntry
	err := g.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load scope entry %s: %w", key, err)
	}
	if err := json.Unmarshal(entry.Value, dest); err != nil {
		return false, fmt.Errorf("failed to decode stored value for %s: %w", key, err)
	}
	return true, nil
}

func (g *gormKV) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}
	entry := ScopeEntry{Key: key, Value: raw}
	err = g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to store scope entry %s: %w", key, err)
	}
	return nil
}

func (g *gormKV) Delete(ctx context.Context, key string) error {
	if err := g.db.WithContext(ctx).Delete(&ScopeEntry{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("failed to delete scope entry %s: %w", key, err)
	}
	return nil
}
