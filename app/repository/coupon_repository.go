package repository

import (
	"github.com/propertyguard/backend/app/models"
	"gorm.io/gorm"
)

// couponRepository implements the CouponRepository interface
type couponRepository struct {
	db *gorm.DB
}

// NewCouponRepository creates a new coupon repository instance
func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &couponRepository{db: db}
}

// GetByCode retrieves a coupon by its canonical (uppercase) code
func (r *couponRepository) GetByCode(code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.Where("code = ?", models.NormalizeCouponCode(code)).First(&coupon).Error
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}
