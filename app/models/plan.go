package models

import "time"

// Feature keys resolvable through Plan.FeatureEnabled. The set is fixed;
// unknown keys always resolve to false.
const (
	FeaturePolicyAnalysis          = "policy_analysis"
	FeatureRiskAssessment          = "risk_assessment"
	FeaturePropertyTransfer        = "property_transfer"
	FeatureAPIAccess               = "api_access"
	FeatureGapInsuranceMarketplace = "gap_insurance_marketplace"
	FeaturePrioritySupport         = "priority_support"
)

// Usage types metered against plan limits.
const (
	UsageTypeProperties = "properties"
	UsageTypeDocuments  = "documents"
	UsageTypeStorage    = "storage"
	UsageTypeAPICalls   = "api_calls"
)

// IsKnownUsageType reports whether the usage type is part of the metered set.
func IsKnownUsageType(usageType string) bool {
	switch usageType {
	case UsageTypeProperties, UsageTypeDocuments, UsageTypeStorage, UsageTypeAPICalls:
		return true
	default:
		return false
	}
}

// Plan is an immutable catalog row describing a pricing tier and its
// entitlements. Rows are seeded by migration and never mutated at runtime.
type Plan struct {
	ID           uint     `gorm:"primaryKey" json:"id"`
	PlanCode     string   `gorm:"type:varchar(50);not null;uniqueIndex" json:"plan_code"`
	PlanName     string   `gorm:"type:varchar(100);not null" json:"plan_name"`
	MonthlyPrice float64  `gorm:"not null" json:"monthly_price"`
	AnnualPrice  *float64 `json:"annual_price,omitempty"`
	IsFeatured   bool     `gorm:"default:false" json:"is_featured"`
	SortOrder    int      `gorm:"not null;default:0;index" json:"sort_order"`

	PolicyAnalysis          bool `gorm:"default:false" json:"policy_analysis"`
	RiskAssessment          bool `gorm:"default:false" json:"risk_assessment"`
	PropertyTransfer        bool `gorm:"default:false" json:"property_transfer"`
	APIAccess               bool `gorm:"default:false" json:"api_access"`
	GapInsuranceMarketplace bool `gorm:"default:false" json:"gap_insurance_marketplace"`
	PrioritySupport         bool `gorm:"default:false" json:"priority_support"`

	// Nil limit means unlimited.
	MaxProperties           *int     `json:"max_properties,omitempty"`
	MaxStorageGb            *float64 `json:"max_storage_gb,omitempty"`
	MaxDocumentsPerProperty *int     `json:"max_documents_per_property,omitempty"`
	MaxAPICalls             *int     `json:"max_api_calls,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FeatureEnabled resolves a feature key against the plan's flags. Unknown
// keys resolve to false rather than failing.
func (p *Plan) FeatureEnabled(key string) bool {
	switch key {
	case FeaturePolicyAnalysis:
		return p.PolicyAnalysis
	case FeatureRiskAssessment:
		return p.RiskAssessment
	case FeaturePropertyTransfer:
		return p.PropertyTransfer
	case FeatureAPIAccess:
		return p.APIAccess
	case FeatureGapInsuranceMarketplace:
		return p.GapInsuranceMarketplace
	case FeaturePrioritySupport:
		return p.PrioritySupport
	default:
		return false
	}
}

// LimitFor returns the numeric ceiling for a usage type, or nil when the
// plan leaves it unlimited. The bool result is false for unknown types.
func (p *Plan) LimitFor(usageType string) (*float64, bool) {
	switch usageType {
	case UsageTypeProperties:
		return intLimit(p.MaxProperties), true
	case UsageTypeDocuments:
		return intLimit(p.MaxDocumentsPerProperty), true
	case UsageTypeStorage:
		return p.MaxStorageGb, true
	case UsageTypeAPICalls:
		return intLimit(p.MaxAPICalls), true
	default:
		return nil, false
	}
}

func intLimit(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
