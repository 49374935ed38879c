package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QueueWaitlist struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)"`
	InProgressGameID string    `gorm:"uniqueIndex;type:varchar(36);not null"`
	EndWaitlistAt    time.Time `gorm:"index;not null"`
}

func (w *QueueWaitlist) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

// QueueWaitlistPlayer is a pending re-admission of one player into one queue.
type QueueWaitlistPlayer struct {
	QueueWaitlistID string `gorm:"primaryKey;type:varchar(36)"`
	QueueID         string `gorm:"primaryKey;type:varchar(36)"`
	PlayerID        int64  `gorm:"primaryKey;autoIncrement:false;index"`
}

// VotePassedWaitlist is created when a map vote passes. At most one is live.
type VotePassedWaitlist struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)"`
	EndWaitlistAt time.Time `gorm:"index;not null"`
}

func (w *VotePassedWaitlist) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

type VotePassedWaitlistPlayer struct {
	VotePassedWaitlistID string `gorm:"primaryKey;type:varchar(36)"`
	QueueID              string `gorm:"primaryKey;type:varchar(36)"`
	PlayerID             int64  `gorm:"primaryKey;autoIncrement:false;index"`
}
