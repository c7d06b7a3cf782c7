package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityRecord mirrors the activity_entries table.
type ActivityRecord struct {
	EntryID    string         `gorm:"type:uuid;primaryKey"`
	Account    string         `gorm:"not null;index:idx_activity_account_created,priority:1"`
	Network    string         `gorm:"not null"`
	Operation  string         `gorm:"not null"`
	Status     string         `gorm:"not null"`
	ProposalID string         `gorm:"not null;index"`
	TxHash     string         `gorm:"not null"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `gorm:"not null;index:idx_activity_account_created,priority:2"`
}

func (ActivityRecord) TableName() string { return "activity_entries" }

func (record *ActivityRecord) BeforeCreate(tx *gorm.DB) error {
	if record.EntryID == "" {
		record.EntryID = uuid.NewString()
	}
	return nil
}
