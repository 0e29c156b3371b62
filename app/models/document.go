package models

import "time"

// Document is an uploaded file attached to a property. Only the byte size
// matters here; it feeds the storage usage counter.
type Document struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AccountID  string    `gorm:"type:char(36);not null;index" json:"account_id"`
	PropertyID uint      `gorm:"not null;index" json:"property_id"`
	FileName   string    `gorm:"type:varchar(255);not null" json:"file_name"`
	SizeBytes  int64     `gorm:"not null;default:0" json:"size_bytes"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
