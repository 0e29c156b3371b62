package models

import "testing"

func TestPlanFeatureEnabled(t *testing.T) {
	plan := &Plan{
		PolicyAnalysis:  true,
		RiskAssessment:  true,
		APIAccess:       true,
		PrioritySupport: false,
	}

	tests := []struct {
		key  string
		want bool
	}{
		{key: FeaturePolicyAnalysis, want: true},
		{key: FeatureRiskAssessment, want: true},
		{key: FeatureAPIAccess, want: true},
		{key: FeaturePropertyTransfer, want: false},
		{key: FeatureGapInsuranceMarketplace, want: false},
		{key: FeaturePrioritySupport, want: false},
		{key: "does_not_exist", want: false},
		{key: "", want: false},
	}

	for _, tt := range tests {
		if got := plan.FeatureEnabled(tt.key); got != tt.want {
			t.Fatalf("FeatureEnabled(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestPlanLimitFor(t *testing.T) {
	maxProps := 5
	maxStorage := 10.0
	plan := &Plan{MaxProperties: &maxProps, MaxStorageGb: &maxStorage}

	limit, ok := plan.LimitFor(UsageTypeProperties)
	if !ok || limit == nil || *limit != 5 {
		t.Fatalf("LimitFor(properties) = %v, %v", limit, ok)
	}

	limit, ok = plan.LimitFor(UsageTypeStorage)
	if !ok || limit == nil || *limit != 10 {
		t.Fatalf("LimitFor(storage) = %v, %v", limit, ok)
	}

	// Absent limits mean unlimited, not zero.
	limit, ok = plan.LimitFor(UsageTypeAPICalls)
	if !ok || limit != nil {
		t.Fatalf("LimitFor(api_calls) = %v, %v, want nil limit", limit, ok)
	}

	if _, ok := plan.LimitFor("bandwidth"); ok {
		t.Fatal("expected unknown usage type to be rejected")
	}
}
