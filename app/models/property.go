package models

import "time"

// Property is a managed property record. The dashboard owns creation and
// editing; this service only counts rows against plan limits.
type Property struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID string    `gorm:"type:char(36);not null;index" json:"account_id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Address   string    `gorm:"type:varchar(255);default:''" json:"address"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
