package repository

import (
	"github.com/propertyguard/backend/app/models"
	"gorm.io/gorm"
)

// planRepository implements the PlanRepository interface
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// ListOrdered returns the full catalog in its canonical order
func (r *planRepository) ListOrdered() ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.Order("sort_order ASC, id ASC").Find(&plans).Error
	return plans, err
}

// GetByCode retrieves a plan by its unique plan code
func (r *planRepository) GetByCode(code string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.Where("plan_code = ?", code).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}
