package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Queue struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)"`
	Name       string    `gorm:"uniqueIndex;not null"`
	Size       int       `gorm:"not null"`
	IsLocked   bool      `gorm:"not null;default:false"`
	IsIsolated bool      `gorm:"index;not null;default:false"` // Members of one isolated queue may not join another
	CreatedAt  time.Time `gorm:"index;not null"`                // Fixes the order waitlists are replayed in
}

func (q *Queue) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

// QueuePlayer is a membership edge. The composite key keeps one row per queue and player.
type QueuePlayer struct {
	QueueID   string    `gorm:"primaryKey;type:varchar(36)"`
	PlayerID  int64     `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `gorm:"not null"`
}
