package models

import (
	"time"
)

// DraftStatus represents the approval state of a generated post
type DraftStatus string

const (
	DraftStatusPending   DraftStatus = "pending"
	DraftStatusApproved  DraftStatus = "approved"
	DraftStatusRejected  DraftStatus = "rejected"
	DraftStatusPublished DraftStatus = "published"
	DraftStatusFailed    DraftStatus = "failed"
)

// Draft is a generated LinkedIn post waiting for human approval
type Draft struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	RunID        string      `gorm:"size:36;index" json:"run_id"`
	Title        string      `gorm:"size:500" json:"title"`
	Content      string      `gorm:"type:text;not null" json:"content"`
	Hashtags     StringSlice `gorm:"type:json" json:"hashtags"`
	Insights     JSON        `gorm:"type:json" json:"insights"`
	Status       DraftStatus `gorm:"size:20;default:'pending';index" json:"status"`
	ShareURN     string      `gorm:"size:255" json:"share_urn"`
	BlogURL      string      `json:"blog_url"`
	ErrorMessage string      `json:"error_message"`
	RetryCount   int         `gorm:"default:0" json:"retry_count"`
	PublishedAt  *time.Time  `json:"published_at"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// CanPublish returns true if the draft may still be shared
func (d *Draft) CanPublish() bool {
	switch d.Status {
	case DraftStatusPending, DraftStatusApproved:
		return true
	case DraftStatusFailed:
		return d.RetryCount < 3
	}
	return false
}
