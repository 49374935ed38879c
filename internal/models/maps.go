package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CurrentMapID is the primary key of the only CurrentMap row.
const CurrentMapID = "current"

type Map struct {
	ID             string `gorm:"primaryKey;type:varchar(36)"`
	ShortName      string `gorm:"uniqueIndex;not null"`
	FullName       string `gorm:"not null"`
	RotationIndex  int    `gorm:"index;not null"`
	RotationWeight int    `gorm:"not null"` // 0 keeps the map out of automatic rotation
}

func (m *Map) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

type CurrentMap struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	MapID       string    `gorm:"type:varchar(36);not null"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime:false"`
	AutoRotated bool      `gorm:"not null;default:false"` // false after a vote or admin override
}

type MapVote struct {
	PlayerID  int64     `gorm:"primaryKey;autoIncrement:false"`
	MapID     string    `gorm:"index;type:varchar(36);not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type SkipMapVote struct {
	PlayerID  int64     `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"not null"`
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Player{},
		&Queue{},
		&QueuePlayer{},
		&InProgressGame{},
		&InProgressGamePlayer{},
		&InProgressGameChannel{},
		&QueueWaitlist{},
		&QueueWaitlistPlayer{},
		&VotePassedWaitlist{},
		&VotePassedWaitlistPlayer{},
		&Map{},
		&CurrentMap{},
		&MapVote{},
		&SkipMapVote{},
	}
}
