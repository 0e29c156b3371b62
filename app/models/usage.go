package models

import "time"

// UsageSnapshot is an account's current consumption, recomputed on demand.
// The entitlement engine treats it as read-only input.
type UsageSnapshot struct {
	Properties int64   `json:"properties"`
	Documents  int64   `json:"documents"`
	StorageGb  float64 `json:"storage_gb"`
	APICalls   int64   `json:"api_calls"`
}

// ValueFor returns the counter matching a usage type. The bool result is
// false for unknown types.
func (u *UsageSnapshot) ValueFor(usageType string) (float64, bool) {
	switch usageType {
	case UsageTypeProperties:
		return float64(u.Properties), true
	case UsageTypeDocuments:
		return float64(u.Documents), true
	case UsageTypeStorage:
		return u.StorageGb, true
	case UsageTypeAPICalls:
		return float64(u.APICalls), true
	default:
		return 0, false
	}
}

// UsageMonth stores flushed monthly API-call totals per account. Live
// increments buffer in Redis and land here in batches.
type UsageMonth struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID string    `gorm:"type:char(36);not null;index:ux_usage_months_account_month,unique,priority:1" json:"account_id"`
	Month     string    `gorm:"type:char(7);not null;index:ux_usage_months_account_month,unique,priority:2" json:"month"`
	APICalls  int64     `gorm:"not null;default:0" json:"api_calls"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
