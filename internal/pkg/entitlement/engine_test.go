package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/propertyguard/backend/app/models"
	"github.com/propertyguard/backend/app/repository"
	"github.com/propertyguard/backend/internal/pkg/database"
)

// fakeStore implements every repository interface in memory so engine tests
// run without MySQL or Redis. The read cache is disabled via readCacheTTL=0.
type fakeStore struct {
	accounts map[string]bool
	plans    []models.Plan
	subs     []*models.Subscription
	coupons  map[string]*models.Coupon

	properties    int64
	documents     int64
	documentBytes int64
	flushedCalls  int64

	nextID     uint
	listErr    error
	createErr  error
	commitErr  error
	commitCall int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: map[string]bool{},
		plans:    database.DefaultPlanCatalog(),
		coupons:  map[string]*models.Coupon{},
		nextID:   1,
	}
}

func (s *fakeStore) Create(account *models.Account) error {
	s.accounts[account.ID] = true
	return nil
}

func (s *fakeStore) GetByID(id string) (*models.Account, error) {
	if !s.accounts[id] {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.Account{ID: id}, nil
}

func (s *fakeStore) Exists(id string) (bool, error) {
	return s.accounts[id], nil
}

func (s *fakeStore) ListOrdered() ([]models.Plan, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.plans, nil
}

func (s *fakeStore) GetByCode(code string) (*models.Plan, error) {
	for i := range s.plans {
		if s.plans[i].PlanCode == code {
			return &s.plans[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) GetCurrentByAccount(accountID string) (*models.Subscription, error) {
	for _, sub := range s.subs {
		if sub.AccountID == accountID && sub.Current != nil && *sub.Current {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) HasAnyByAccount(accountID string) (bool, error) {
	for _, sub := range s.subs {
		if sub.AccountID == accountID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) ListByAccount(accountID string) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range s.subs {
		if sub.AccountID == accountID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

// CreateSubscription-style guard: a second current row for the same account
// trips the unique index, which the real repository maps to a version
// conflict.
func (s *fakeStore) CreateSub(sub *models.Subscription) error {
	if s.createErr != nil {
		return s.createErr
	}
	if sub.Current != nil && *sub.Current {
		for _, existing := range s.subs {
			if existing.AccountID == sub.AccountID && existing.Current != nil && *existing.Current {
				return repository.ErrVersionConflict
			}
		}
	}
	sub.ID = s.nextID
	s.nextID++
	copied := *sub
	s.subs = append(s.subs, &copied)
	return nil
}

func (s *fakeStore) CommitUpgrade(prev, next *models.Subscription, couponCode string, expectedRedemptions int) error {
	s.commitCall++
	if s.commitErr != nil {
		return s.commitErr
	}
	if prev != nil {
		var stored *models.Subscription
		for _, sub := range s.subs {
			if sub.ID == prev.ID {
				stored = sub
				break
			}
		}
		if stored == nil || stored.Version != prev.Version {
			return repository.ErrVersionConflict
		}
		stored.Status = models.SubscriptionStatusExpired
		stored.Current = nil
		stored.Version++
	}
	if err := s.CreateSub(next); err != nil {
		return err
	}
	if couponCode != "" {
		coupon, ok := s.coupons[couponCode]
		if !ok || coupon.CurrentRedemptions != expectedRedemptions {
			return repository.ErrVersionConflict
		}
		coupon.CurrentRedemptions++
	}
	return nil
}

func (s *fakeStore) GetCouponByCode(code string) (*models.Coupon, error) {
	coupon, ok := s.coupons[models.NormalizeCouponCode(code)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return coupon, nil
}

func (s *fakeStore) CountProperties(accountID string) (int64, error) { return s.properties, nil }
func (s *fakeStore) CountDocuments(accountID string) (int64, error) { return s.documents, nil }
func (s *fakeStore) SumDocumentBytes(accountID string) (int64, error) {
	return s.documentBytes, nil
}
func (s *fakeStore) GetMonthAPICalls(accountID, m string) (int64, error) {
	return s.flushedCalls, nil
}

// Thin adapters: the store doubles as every repository.
type fakeSubRepo struct{ s *fakeStore }

func (r fakeSubRepo) GetCurrentByAccount(id string) (*models.Subscription, error) {
	return r.s.GetCurrentByAccount(id)
}
func (r fakeSubRepo) HasAnyByAccount(id string) (bool, error) { return r.s.HasAnyByAccount(id) }
func (r fakeSubRepo) ListByAccount(id string) ([]models.Subscription, error) {
	return r.s.ListByAccount(id)
}
func (r fakeSubRepo) Create(sub *models.Subscription) error { return r.s.CreateSub(sub) }
func (r fakeSubRepo) CommitUpgrade(prev, next *models.Subscription, code string, n int) error {
	return r.s.CommitUpgrade(prev, next, code, n)
}

type fakeCouponRepo struct{ s *fakeStore }

func (r fakeCouponRepo) GetByCode(code string) (*models.Coupon, error) {
	return r.s.GetCouponByCode(code)
}

type chargeCall struct {
	amount   float64
	currency string
}

type fakePayment struct {
	result *ChargeResult
	err    error
	calls  []chargeCall
}

func (p *fakePayment) Charge(ctx context.Context, ref string, amount float64, currency string) (*ChargeResult, error) {
	p.calls = append(p.calls, chargeCall{amount: amount, currency: currency})
	if p.err != nil {
		return nil, p.err
	}
	if p.result != nil {
		return p.result, nil
	}
	return &ChargeResult{Success: true, TransactionID: "txn_test"}, nil
}

type fakeCounter struct {
	pending int64
	err     error
}

func (c fakeCounter) Pending(accountID, month string) (int64, error) {
	return c.pending, c.err
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var testNow = time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(s *fakeStore, p PaymentClient, c UsageCounter) *Engine {
	return &Engine{
		repos: &repository.Repositories{
			Account:      s,
			Plan:         s,
			Subscription: fakeSubRepo{s},
			Coupon:       fakeCouponRepo{s},
			Usage:        s,
		},
		payment:       p,
		counter:       c,
		trialPeriod:   14 * 24 * time.Hour,
		readCacheTTL:  0,
		chargeTimeout: time.Second,
		currency:      "USD",
		now:           func() time.Time { return testNow },
	}
}

const acct = "a1b2c3d4-0000-0000-0000-000000000001"

func storeWithAccount() *fakeStore {
	s := newFakeStore()
	s.accounts[acct] = true
	return s
}

func TestStartTrial(t *testing.T) {
	s := storeWithAccount()
	e := newTestEngine(s, &fakePayment{}, fakeCounter{})

	sub, err := e.StartTrial(context.Background(), acct, "pro")
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusTrial, sub.Status)
	assert.Equal(t, "pro", sub.PlanCode)
	assert.Equal(t, models.BillingCycleMonthly, sub.BillingCycle)
	require.NotNil(t, sub.TrialEndsAt)
	assert.Equal(t, testNow.Add(14*24*time.Hour), *sub.TrialEndsAt)
	require.NotNil(t, sub.Plan)
	assert.Equal(t, "pro", sub.Plan.PlanCode)
	require.NotNil(t, sub.Current)
	assert.True(t, *sub.Current)
}

func TestStartTrialInputErrors(t *testing.T) {
	s := storeWithAccount()
	e := newTestEngine(s, &fakePayment{}, fakeCounter{})

	_, err := e.StartTrial(context.Background(), "missing-account", "pro")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = e.StartTrial(context.Background(), acct, "enterprise")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestStartTrialOncePerAccount(t *testing.T) {
	s := storeWithAccount()
	e := newTestEngine(s, &fakePayment{}, fakeCounter{})

	_, err := e.StartTrial(context.Background(), acct, "pro")
	require.NoError(t, err)

	// A second trial is rejected even on a different plan, and even after
	// the first one would have expired.
	_, err = e.StartTrial(context.Background(), acct, "starter")
	assert.ErrorIs(t, err, ErrTrialAlreadyUsed)
	assert.Len(t, s.subs, 1)
}

func TestStartTrialInsertRace(t *testing.T) {
	s := storeWithAccount()
	s.createErr = repository.ErrVersionConflict
	e := newTestEngine(s, &fakePayment{}, fakeCounter{})

	_, err := e.StartTrial(context.Background(), acct, "pro")
	assert.ErrorIs(t, err, ErrConflictingUpdate)
}

func TestGetSubscription(t *testing.T) {
	s := storeWithAccount()
	e := newTestEngine(s, &fakePayment{}, fakeCounter{})

	sub, err := e.GetSubscription(context.Background(), acct)
	require.NoError(t, err)
	assert.Nil(t, sub, "no history means no subscription, not an error")

	_, err = e.StartTrial(context.Background(), acct, "business")
	require.NoError(t, err)

	sub, err = e.GetSubscription(context.Background(), acct)
	require.NoError(t, err)
	require.NotNil(t, sub)
	require.NotNil(t, sub.Plan)
	assert.Equal(t, "business", sub.Plan.PlanCode)
}

func TestGetCatalogUnavailable(t *testing.T) {
	s := storeWithAccount()
	s.listErr = errors.New("connection refused")
	e := newTestEngine(s, &fakePayment{}, fakeCounter{})

	_, err := e.GetCatalog(context.Background())
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
}

func TestValidateCoupon(t *testing.T) {
	past := testNow.Add(-30 * 24 * time.Hour)
	future := testNow.Add(30 * 24 * time.Hour)
	maxed := 100

	s := storeWithAccount()
	s.coupons["SAVE20"] = &models.Coupon{
		Code: "SAVE20", DiscountType: models.DiscountTypePercent, DiscountValue: 20,
		ValidUntil: &past,
	}
	s.coupons["LAUNCH"] = &models.Coupon{
		Code: "LAUNCH", DiscountType: models.DiscountTypePercent, DiscountValue: 10,
		ValidFrom: &future,
	}
	s.coupons["MAXED"] = &models.Coupon{
		Code: "MAXED", DiscountType: models.DiscountTypeFixed, DiscountValue: 5,
		MaxRedemptions: &maxed, CurrentRedemptions: 100,
	}
	s.coupons["PROONLY"] = &models.Coupon{
		Code: "PROONLY", DiscountType: models.DiscountTypePercent, DiscountValue: 15,
		ApplicablePlans: "pro",
	}

	e := newTestEngine(s, &fakePayment{}, fakeCounter{})
	ctx := context.Background()

	tests := []struct {
		name     string
		code     string
		planCode string
		valid    bool
		reason   string
	}{
		{"unknown code", "NOPE", "pro", false, CouponReasonNotFound},
		{"expired", "SAVE20", "pro", false, CouponReasonExpired},
		{"not yet valid", "LAUNCH", "pro", false, CouponReasonNotYetValid},
		{"redemptions exhausted", "MAXED", "pro", false, CouponReasonRedemptionsReached},
		{"wrong plan", "PROONLY", "starter", false, CouponReasonPlanNotApplicable},
		{"applicable plan", "PROONLY", "pro", true, ""},
		{"case-insensitive lookup", "proonly", "pro", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.ValidateCoupon(ctx, tt.code, acct, tt.planCode)
			require.NoError(t, err, "invalid coupons are a result, never an error")
			assert.Equal(t, tt.valid, result.Valid)
			assert.Equal(t, tt.reason, result.Reason)
			if tt.valid {
				require.NotNil(t, result.Coupon)
			}
		})
	}

	// Validation is read-only.
	assert.Equal(t, 100, s.coupons["MAXED"].CurrentRedemptions)
}

func TestUpgradeFromTrial(t *testing.T) {
	s := storeWithAccount()
	p := &fakePayment{}
	e := newTestEngine(s, p, fakeCounter{})
	ctx := context.Background()

	trial, err := e.StartTrial(ctx, acct, "starter")
	require.NoError(t, err)

	sub, err := e.Upgrade(ctx, acct, "pro", "annual", "pm_123", "")
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, models.BillingCycleAnnual, sub.BillingCycle)
	assert.Equal(t, 290.0, sub.PricePaid)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, testNow.AddDate(1, 0, 0), *sub.CurrentPeriodEnd)
	assert.Equal(t, "txn_test", sub.PaymentRef)

	require.Len(t, p.calls, 1)
	assert.Equal(t, 290.0, p.calls[0].amount)
	assert.Equal(t, "USD", p.calls[0].currency)

	// The trial row became history.
	var old *models.Subscription
	for _, stored := range s.subs {
		if stored.ID == trial.ID {
			old = stored
		}
	}
	require.NotNil(t, old)
	assert.Equal(t, models.SubscriptionStatusExpired, old.Status)
	assert.Nil(t, old.Current)

	current, err := e.GetSubscription(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, "pro", current.PlanCode)
}

func TestUpgradeWithCoupon(t *testing.T) {
	s := storeWithAccount()
	s.coupons["SAVE20"] = &models.Coupon{
		Code: "SAVE20", DiscountType: models.DiscountTypePercent, DiscountValue: 20,
	}
	p := &fakePayment{}
	e := newTestEngine(s, p, fakeCounter{})

	sub, err := e.Upgrade(context.Background(), acct, "pro", "monthly", "pm_123", "save20")
	require.NoError(t, err)

	assert.Equal(t, 29*0.8, sub.PricePaid)
	assert.Equal(t, "SAVE20", sub.CouponCode)
	require.Len(t, p.calls, 1)
	assert.Equal(t, 29*0.8, p.calls[0].amount)
	assert.Equal(t, 1, s.coupons["SAVE20"].CurrentRedemptions)
}

func TestUpgradeRejectsInvalidCoupon(t *testing.T) {
	past := testNow.Add(-time.Hour)
	s := storeWithAccount()
	s.coupons["SAVE20"] = &models.Coupon{
		Code: "SAVE20", DiscountType: models.DiscountTypePercent, DiscountValue: 20,
		ValidUntil: &past,
	}
	p := &fakePayment{}
	e := newTestEngine(s, p, fakeCounter{})
	ctx := context.Background()

	for _, code := range []string{"BADCODE", "SAVE20"} {
		_, err := e.Upgrade(ctx, acct, "pro", "monthly", "pm_123", code)
		assert.ErrorIs(t, err, ErrCouponInvalid)
	}

	// Rejected before charging, nothing written.
	assert.Empty(t, p.calls)
	assert.Empty(t, s.subs)
}

func TestUpgradePaymentDeclined(t *testing.T) {
	s := storeWithAccount()
	p := &fakePayment{result: &ChargeResult{Success: false, Reason: "card_declined"}}
	e := newTestEngine(s, p, fakeCounter{})

	_, err := e.Upgrade(context.Background(), acct, "pro", "monthly", "pm_123", "")
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.Empty(t, s.subs, "a declined charge writes no state")
	assert.Equal(t, 0, s.commitCall)
}

func TestUpgradePaymentTimeout(t *testing.T) {
	s := storeWithAccount()
	p := &fakePayment{err: timeoutErr{}}
	e := newTestEngine(s, p, fakeCounter{})

	_, err := e.Upgrade(context.Background(), acct, "pro", "monthly", "pm_123", "")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, s.subs, "an ambiguous charge outcome writes no state")
}

func TestUpgradeLosesRace(t *testing.T) {
	s := storeWithAccount()
	s.commitErr = repository.ErrVersionConflict
	p := &fakePayment{}
	e := newTestEngine(s, p, fakeCounter{})

	_, err := e.Upgrade(context.Background(), acct, "pro", "monthly", "pm_123", "")
	assert.ErrorIs(t, err, ErrConflictingUpdate)
}

func TestFeatureGating(t *testing.T) {
	s := storeWithAccount()
	e := newTestEngine(s, &fakePayment{}, fakeCounter{})
	ctx := context.Background()

	// No subscription at all: everything is off.
	enabled, err := e.IsFeatureEnabled(ctx, acct, models.FeaturePolicyAnalysis)
	require.NoError(t, err)
	assert.False(t, enabled)

	_, err = e.StartTrial(ctx, acct, "business")
	require.NoError(t, err)

	tests := []struct {
		feature string
		want    bool
	}{
		{models.FeaturePolicyAnalysis, true},
		{models.FeatureGapInsuranceMarketplace, true},
		{models.FeaturePrioritySupport, true},
		{"does_not_exist", false},
	}
	for _, tt := range tests {
		enabled, err := e.IsFeatureEnabled(ctx, acct, tt.feature)
		require.NoError(t, err)
		assert.Equal(t, tt.want, enabled, tt.feature)
	}
}

func TestFeatureGatingExpiredTrial(t *testing.T) {
	s := storeWithAccount()
	e := newTestEngine(s, &fakePayment{}, fakeCounter{})
	ctx := context.Background()

	_, err := e.StartTrial(ctx, acct, "business")
	require.NoError(t, err)

	// Jump past the trial window. Plan flags stop mattering.
	e.now = func() time.Time { return testNow.Add(15 * 24 * time.Hour) }

	enabled, err := e.IsFeatureEnabled(ctx, acct, models.FeaturePolicyAnalysis)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestUsageLimits(t *testing.T) {
	s := storeWithAccount()
	e := newTestEngine(s, &fakePayment{}, fakeCounter{})
	ctx := context.Background()

	_, err := e.IsUsageLimitReached(ctx, acct, "widgets")
	assert.ErrorIs(t, err, ErrUnknownUsageType)

	// No subscription: nothing to meter against.
	reached, err := e.IsUsageLimitReached(ctx, acct, models.UsageTypeProperties)
	require.NoError(t, err)
	assert.False(t, reached)

	_, err = e.StartTrial(ctx, acct, "pro")
	require.NoError(t, err)

	s.properties = 24
	reached, err = e.IsUsageLimitReached(ctx, acct, models.UsageTypeProperties)
	require.NoError(t, err)
	assert.False(t, reached)

	// Reaching the cap exactly counts as reached.
	s.properties = 25
	reached, err = e.IsUsageLimitReached(ctx, acct, models.UsageTypeProperties)
	require.NoError(t, err)
	assert.True(t, reached)

	// Storage caps compare fractional gigabytes.
	s.documentBytes = 25 << 30
	reached, err = e.IsUsageLimitReached(ctx, acct, models.UsageTypeStorage)
	require.NoError(t, err)
	assert.True(t, reached)
}

func TestUsageLimitsUnlimitedPlan(t *testing.T) {
	s := storeWithAccount()
	s.properties = 100000
	e := newTestEngine(s, &fakePayment{}, fakeCounter{})
	ctx := context.Background()

	_, err := e.StartTrial(ctx, acct, "business")
	require.NoError(t, err)

	reached, err := e.IsUsageLimitReached(ctx, acct, models.UsageTypeProperties)
	require.NoError(t, err)
	assert.False(t, reached, "absent limit means unlimited")
}

func TestGetUsage(t *testing.T) {
	s := storeWithAccount()
	s.properties = 7
	s.documents = 42
	s.documentBytes = 3 << 29 // 1.5 GB
	s.flushedCalls = 200

	e := newTestEngine(s, &fakePayment{}, fakeCounter{pending: 50})

	usage, err := e.GetUsage(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, int64(7), usage.Properties)
	assert.Equal(t, int64(42), usage.Documents)
	assert.InDelta(t, 1.5, usage.StorageGb, 1e-9)
	assert.Equal(t, int64(250), usage.APICalls, "flushed plus buffered")
}

func TestGetUsageCounterOutage(t *testing.T) {
	s := storeWithAccount()
	s.flushedCalls = 200

	e := newTestEngine(s, &fakePayment{}, fakeCounter{err: errors.New("redis down")})

	usage, err := e.GetUsage(context.Background(), acct)
	require.NoError(t, err, "a counter outage degrades, it does not fail the snapshot")
	assert.Equal(t, int64(200), usage.APICalls)
}
