package repository

import (
	"errors"

	"github.com/propertyguard/backend/app/models"
	"gorm.io/gorm"
)

// ErrVersionConflict is returned when an optimistic-concurrency write loses
// the race: the expected subscription version or coupon redemption count no
// longer matches the stored row.
var ErrVersionConflict = errors.New("version conflict")

// AccountRepository defines account lookups.
type AccountRepository interface {
	Create(account *models.Account) error
	GetByID(id string) (*models.Account, error)
	Exists(id string) (bool, error)
}

// PlanRepository defines read access to the immutable plan catalog.
type PlanRepository interface {
	ListOrdered() ([]models.Plan, error)
	GetByCode(code string) (*models.Plan, error)
}

// SubscriptionRepository defines subscription state access. All writes are
// guarded: Create relies on the (account_id, current) unique index and
// CommitUpgrade runs supersede + insert + coupon redemption as one
// transaction with compare-and-swap version checks.
type SubscriptionRepository interface {
	GetCurrentByAccount(accountID string) (*models.Subscription, error)
	HasAnyByAccount(accountID string) (bool, error)
	ListByAccount(accountID string) ([]models.Subscription, error)
	Create(sub *models.Subscription) error
	CommitUpgrade(prev *models.Subscription, next *models.Subscription, couponCode string, expectedRedemptions int) error
}

// CouponRepository defines coupon lookups. Redemption increments happen only
// inside SubscriptionRepository.CommitUpgrade.
type CouponRepository interface {
	GetByCode(code string) (*models.Coupon, error)
}

// UsageRepository aggregates consumption counters from stored rows. The live
// in-flight API-call delta comes from the metrics counter, not from here.
type UsageRepository interface {
	CountProperties(accountID string) (int64, error)
	CountDocuments(accountID string) (int64, error)
	SumDocumentBytes(accountID string) (int64, error)
	GetMonthAPICalls(accountID, month string) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Account      AccountRepository
	Plan         PlanRepository
	Subscription SubscriptionRepository
	Coupon       CouponRepository
	Usage        UsageRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account:      NewAccountRepository(db),
		Plan:         NewPlanRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Coupon:       NewCouponRepository(db),
		Usage:        NewUsageRepository(db),
	}
}
