package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// draftRecord is the single-row sqlite representation of the draft.
type draftRecord struct {
	Name      string `gorm:"primaryKey"`
	Payload   []byte
	UpdatedAt time.Time
}

func (draftRecord) TableName() string {
	return "checkout_drafts"
}

// SQLiteStore persists the draft in a local sqlite file, the default
// durable storage: a reload mid-checkout resumes from the saved draft.
type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite draft store: %w", err)
	}
	if err := db.AutoMigrate(&draftRecord{}); err != nil {
		return nil, fmt.Errorf("migrate draft store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, d Draft) error {
	encoded, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	record := draftRecord{
		Name:      Key,
		Payload:   encoded,
		UpdatedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
}

func (s *SQLiteStore) Load(ctx context.Context) (*Draft, bool, error) {
	var record draftRecord
	err := s.db.WithContext(ctx).First(&record, "name = ?", Key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var d Draft
	if err := json.Unmarshal(record.Payload, &d); err != nil {
		return nil, false, fmt.Errorf("decode draft: %w", err)
	}
	return &d, true, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Delete(&draftRecord{}, "name = ?", Key).Error
}
