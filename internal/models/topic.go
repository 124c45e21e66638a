package models

import (
	"time"
)

// TopicList is the single stored row holding the current relevance topics
type TopicList struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Topics    StringSlice `gorm:"type:json" json:"topics"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"last_updated"`
}
