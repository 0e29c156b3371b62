package database

import (
	"fmt"
	"log"
	"time"

	"github.com/propertyguard/backend/app/models"
	"github.com/propertyguard/backend/internal/pkg/env"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

const maxRetries = 5
const retryDelay = 5 * time.Second

func SetupDatabase() {
	var err error
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{
			// Duplicate-key errors must surface as gorm.ErrDuplicatedKey so
			// the subscription repository can map them to version conflicts.
			TranslateError: true,
		})
		if err == nil {
			DB.AutoMigrate(
				&models.Account{},
				&models.Plan{},
				&models.Subscription{},
				&models.Property{},
				&models.Document{},
				&models.Coupon{},
				&models.UsageMonth{},
			)

			seedPlanCatalog()
			return
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// GetDB returns the shared GORM handle
func GetDB() *gorm.DB {
	if DB == nil {
		SetupDatabase()
	}
	return DB
}

// seedPlanCatalog inserts the default catalog when the plans table is empty.
// The SQL migrations seed the same rows; this keeps dev setups working when
// only AutoMigrate has run.
func seedPlanCatalog() {
	var count int64
	if err := DB.Model(&models.Plan{}).Count(&count).Error; err != nil || count > 0 {
		return
	}

	if err := DB.Create(DefaultPlanCatalog()).Error; err != nil {
		log.Printf("Failed to seed plan catalog: %v", err)
	}
}

// DefaultPlanCatalog returns the built-in plan tiers in canonical order.
func DefaultPlanCatalog() []models.Plan {
	starterProps := 3
	starterStorage := 1.0
	starterDocs := 25

	proAnnual := 290.0
	proProps := 25
	proStorage := 25.0
	proDocs := 250
	proAPICalls := 1000

	bizAnnual := 990.0

	return []models.Plan{
		{
			PlanCode:       "starter",
			PlanName:       "Starter",
			MonthlyPrice:   9,
			SortOrder:      1,
			PolicyAnalysis: true,

			MaxProperties:           &starterProps,
			MaxStorageGb:            &starterStorage,
			MaxDocumentsPerProperty: &starterDocs,
		},
		{
			PlanCode:       "pro",
			PlanName:       "Professional",
			MonthlyPrice:   29,
			AnnualPrice:    &proAnnual,
			IsFeatured:     true,
			SortOrder:      2,
			PolicyAnalysis: true,
			RiskAssessment: true,
			APIAccess:      true,

			MaxProperties:           &proProps,
			MaxStorageGb:            &proStorage,
			MaxDocumentsPerProperty: &proDocs,
			MaxAPICalls:             &proAPICalls,
		},
		{
			PlanCode:                "business",
			PlanName:                "Business",
			MonthlyPrice:            99,
			AnnualPrice:             &bizAnnual,
			SortOrder:               3,
			PolicyAnalysis:          true,
			RiskAssessment:          true,
			PropertyTransfer:        true,
			APIAccess:               true,
			GapInsuranceMarketplace: true,
			PrioritySupport:         true,
			// All limits absent: unlimited.
		},
	}
}
