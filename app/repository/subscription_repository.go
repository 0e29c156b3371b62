package repository

import (
	"errors"

	"github.com/propertyguard/backend/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// GetCurrentByAccount returns the account's live subscription, or
// gorm.ErrRecordNotFound when the account never started one.
func (r *subscriptionRepository) GetCurrentByAccount(accountID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("account_id = ? AND current = ?", accountID, true).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// HasAnyByAccount reports whether the account has any subscription history.
func (r *subscriptionRepository) HasAnyByAccount(accountID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Subscription{}).Where("account_id = ?", accountID).Count(&count).Error
	return count > 0, err
}

// ListByAccount returns the full subscription history, newest first.
func (r *subscriptionRepository) ListByAccount(accountID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("account_id = ?", accountID).Order("id DESC").Find(&subs).Error
	return subs, err
}

// Create inserts a new current subscription. The unique (account_id, current)
// index rejects a second live row; a duplicate-key error maps to
// ErrVersionConflict so racing writers surface a retryable conflict.
func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	if err := r.db.Create(sub).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrVersionConflict
		}
		return err
	}
	return nil
}

// CommitUpgrade applies an upgrade as one atomic unit: the previous current
// subscription (if any) is superseded with a compare-and-swap on its
// version, the new active subscription is inserted, and the coupon
// redemption counter is advanced with its own expected-count guard. Any
// guard failing rolls the whole transaction back with ErrVersionConflict.
func (r *subscriptionRepository) CommitUpgrade(prev *models.Subscription, next *models.Subscription, couponCode string, expectedRedemptions int) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if prev != nil {
			res := tx.Model(&models.Subscription{}).
				Where("id = ? AND version = ?", prev.ID, prev.Version).
				Updates(map[string]interface{}{
					"status":  models.SubscriptionStatusExpired,
					"current": nil,
					"version": prev.Version + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrVersionConflict
			}
		}

		if err := tx.Create(next).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrVersionConflict
			}
			return err
		}

		if couponCode != "" {
			res := tx.Model(&models.Coupon{}).
				Where("code = ? AND current_redemptions = ?", couponCode, expectedRedemptions).
				Update("current_redemptions", expectedRedemptions+1)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrVersionConflict
			}
		}

		return nil
	})
}
