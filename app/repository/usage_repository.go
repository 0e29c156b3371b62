package repository

import (
	"errors"

	"github.com/propertyguard/backend/app/models"
	"gorm.io/gorm"
)

// usageRepository implements the UsageRepository interface
type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a new usage repository instance
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

// CountProperties returns the number of properties owned by the account
func (r *usageRepository) CountProperties(accountID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Property{}).Where("account_id = ?", accountID).Count(&count).Error
	return count, err
}

// CountDocuments returns the number of documents owned by the account
func (r *usageRepository) CountDocuments(accountID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Document{}).Where("account_id = ?", accountID).Count(&count).Error
	return count, err
}

// SumDocumentBytes returns the total stored bytes across all documents
func (r *usageRepository) SumDocumentBytes(accountID string) (int64, error) {
	var total int64
	err := r.db.Model(&models.Document{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&total).Error
	return total, err
}

// GetMonthAPICalls returns the flushed API-call total for a calendar month
// (format 2006-01). Missing rows read as zero.
func (r *usageRepository) GetMonthAPICalls(accountID, month string) (int64, error) {
	var row models.UsageMonth
	err := r.db.Where("account_id = ? AND month = ?", accountID, month).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.APICalls, nil
}
