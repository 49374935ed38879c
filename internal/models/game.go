package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InProgressGame lives from the queue pop until its waitlist is reconciled.
type InProgressGame struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	QueueID   string    `gorm:"index;type:varchar(36);not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (g *InProgressGame) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// InProgressGamePlayer rows are removed when the game finishes.
type InProgressGamePlayer struct {
	InProgressGameID string `gorm:"primaryKey;type:varchar(36)"`
	PlayerID         int64  `gorm:"primaryKey;autoIncrement:false;index"`
}

// InProgressGameChannel is a transient voice channel created for a game.
type InProgressGameChannel struct {
	InProgressGameID string `gorm:"primaryKey;type:varchar(36)"`
	ChannelID        int64  `gorm:"primaryKey;autoIncrement:false"`
}
