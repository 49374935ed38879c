package models

import "time"

// Player is a chat user known to the bot. ID is the platform snowflake.
type Player struct {
	ID             int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	Name           string    `gorm:"not null" json:"name"`
	LastActivityAt time.Time `gorm:"index;not null" json:"last_activity_at"`
}
