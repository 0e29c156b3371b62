package entitlement

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/propertyguard/backend/app/models"
	"github.com/propertyguard/backend/app/repository"
	"github.com/propertyguard/backend/internal/pkg/cache"
	"github.com/propertyguard/backend/internal/pkg/env"
	"gorm.io/gorm"
)

const (
	catalogCacheKey          = "entitlement:catalog"
	subscriptionCacheKeyFmt  = "entitlement:subscription:%s"
	bytesPerGb               = float64(1 << 30)
	defaultTrialDays         = 14
	defaultReadCacheTTLSecs  = 10
	defaultChargeTimeoutSecs = 15
)

// Engine owns subscription state, the plan catalog, usage counters, coupon
// validation and feature-flag resolution for accounts. Reads may be served
// from a seconds-scale cache; startTrial and upgrade always act on freshly
// read state.
type Engine struct {
	repos   *repository.Repositories
	payment PaymentClient
	counter UsageCounter

	trialPeriod   time.Duration
	readCacheTTL  time.Duration
	chargeTimeout time.Duration
	currency      string

	now func() time.Time
}

// NewEngine creates an entitlement engine from injected collaborators.
// Durations come from the environment: TRIAL_PERIOD_DAYS,
// READ_CACHE_TTL_SECONDS (0 disables the read cache), CHARGE_TIMEOUT_SECONDS.
func NewEngine(repos *repository.Repositories, payment PaymentClient, counter UsageCounter) *Engine {
	return &Engine{
		repos:         repos,
		payment:       payment,
		counter:       counter,
		trialPeriod:   time.Duration(env.GetEnvInt("TRIAL_PERIOD_DAYS", defaultTrialDays)) * 24 * time.Hour,
		readCacheTTL:  time.Duration(env.GetEnvInt("READ_CACHE_TTL_SECONDS", defaultReadCacheTTLSecs)) * time.Second,
		chargeTimeout: time.Duration(env.GetEnvInt("CHARGE_TIMEOUT_SECONDS", defaultChargeTimeoutSecs)) * time.Second,
		currency:      env.GetEnv("BILLING_CURRENCY", "USD"),
		now:           time.Now,
	}
}

// NewEngineFromDB creates an engine backed by the shared repositories.
func NewEngineFromDB(db *gorm.DB, payment PaymentClient, counter UsageCounter) *Engine {
	return NewEngine(repository.NewRepositories(db), payment, counter)
}

// GetCatalog returns the full plan catalog in canonical order. The catalog
// is reference data and may be served from a short-lived cache.
func (e *Engine) GetCatalog(ctx context.Context) ([]models.Plan, error) {
	_ = ctx
	if e.readCacheTTL > 0 {
		var cached []models.Plan
		if err := cache.GetJSON(catalogCacheKey, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	plans, err := e.repos.Plan.ListOrdered()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	if e.readCacheTTL > 0 {
		_ = cache.SetJSON(catalogCacheKey, plans, e.readCacheTTL)
	}
	return plans, nil
}

// GetSubscription returns the account's current subscription with its plan
// attached, or (nil, nil) when the account has never started a trial.
func (e *Engine) GetSubscription(ctx context.Context, accountID string) (*models.Subscription, error) {
	if err := e.requireAccount(accountID); err != nil {
		return nil, err
	}

	if e.readCacheTTL > 0 {
		var cached models.Subscription
		if err := cache.GetJSON(e.subscriptionCacheKey(accountID), &cached); err == nil && cached.ID != 0 {
			return e.attachPlan(ctx, &cached)
		}
	}

	sub, err := e.fetchCurrentSubscription(accountID)
	if err != nil || sub == nil {
		return nil, err
	}

	if e.readCacheTTL > 0 {
		_ = cache.SetJSON(e.subscriptionCacheKey(accountID), sub, e.readCacheTTL)
	}
	return e.attachPlan(ctx, sub)
}

// GetUsage returns the account's current consumption counters. The snapshot
// is recomputed on demand and is read-only input for limit checks.
func (e *Engine) GetUsage(ctx context.Context, accountID string) (*models.UsageSnapshot, error) {
	_ = ctx
	if err := e.requireAccount(accountID); err != nil {
		return nil, err
	}

	properties, err := e.repos.Usage.CountProperties(accountID)
	if err != nil {
		return nil, err
	}
	documents, err := e.repos.Usage.CountDocuments(accountID)
	if err != nil {
		return nil, err
	}
	storageBytes, err := e.repos.Usage.SumDocumentBytes(accountID)
	if err != nil {
		return nil, err
	}

	month := e.now().UTC().Format("2006-01")
	apiCalls, err := e.repos.Usage.GetMonthAPICalls(accountID, month)
	if err != nil {
		return nil, err
	}
	if e.counter != nil {
		// A cache outage degrades to flushed totals rather than failing the
		// whole snapshot.
		if pending, err := e.counter.Pending(accountID, month); err == nil {
			apiCalls += pending
		}
	}

	return &models.UsageSnapshot{
		Properties: properties,
		Documents:  documents,
		StorageGb:  float64(storageBytes) / bytesPerGb,
		APICalls:   apiCalls,
	}, nil
}

// StartTrial creates a trial subscription for the account. Trials are a
// one-time affordance: any prior subscription history rejects the call.
// State is always read fresh, never from cache.
func (e *Engine) StartTrial(ctx context.Context, accountID, planCode string) (*models.Subscription, error) {
	if err := e.requireAccount(accountID); err != nil {
		return nil, err
	}

	plan, err := e.lookupPlan(planCode)
	if err != nil {
		return nil, err
	}

	used, err := e.repos.Subscription.HasAnyByAccount(accountID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, ErrTrialAlreadyUsed
	}

	now := e.now()
	ends := now.Add(e.trialPeriod)
	current := true
	sub := &models.Subscription{
		AccountID:      accountID,
		PlanCode:       plan.PlanCode,
		Status:         models.SubscriptionStatusTrial,
		Current:        &current,
		BillingCycle:   models.BillingCycleMonthly,
		TrialStartedAt: &now,
		TrialEndsAt:    &ends,
		Version:        1,
	}

	if err := e.repos.Subscription.Create(sub); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, ErrConflictingUpdate
		}
		return nil, err
	}

	e.invalidateSubscriptionCache(accountID)
	sub.Plan = plan
	return sub, nil
}

// ValidateCoupon normalizes the code and evaluates the validity predicate
// for the given plan at the current time. Invalid coupons are a normal
// result, not an error, and redemption counts are never touched here.
func (e *Engine) ValidateCoupon(ctx context.Context, code, accountID, planCode string) (*CouponValidation, error) {
	_ = ctx
	if err := e.requireAccount(accountID); err != nil {
		return nil, err
	}

	coupon, err := e.repos.Coupon.GetByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalidCoupon(CouponReasonNotFound), nil
		}
		return nil, err
	}

	if reason := e.couponRejection(coupon, planCode); reason != "" {
		return invalidCoupon(reason), nil
	}
	return &CouponValidation{Valid: true, Coupon: coupon}, nil
}

// Upgrade moves the account onto a paid plan. The payment collaborator is
// charged before any state is written; the subscription supersede, insert
// and coupon redemption then commit as one atomic unit. Coupons are
// re-validated here regardless of earlier client-side validation.
func (e *Engine) Upgrade(ctx context.Context, accountID, planCode, billingCycle, paymentMethodRef, couponCode string) (*models.Subscription, error) {
	if err := e.requireAccount(accountID); err != nil {
		return nil, err
	}

	plan, err := e.lookupPlan(planCode)
	if err != nil {
		return nil, err
	}

	cycle := normalizeBillingCycle(billingCycle)

	// Fresh read: upgrade decisions never trust the read cache.
	prev, err := e.fetchCurrentSubscription(accountID)
	if err != nil {
		return nil, err
	}

	var coupon *models.Coupon
	if strings.TrimSpace(couponCode) != "" {
		coupon, err = e.repos.Coupon.GetByCode(couponCode)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrCouponInvalid, CouponReasonNotFound)
			}
			return nil, err
		}
		if reason := e.couponRejection(coupon, plan.PlanCode); reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrCouponInvalid, reason)
		}
	}

	price := EffectivePrice(plan, cycle, coupon)

	chargeCtx, cancel := context.WithTimeout(ctx, e.chargeTimeout)
	defer cancel()
	result, err := e.payment.Charge(chargeCtx, paymentMethodRef, price, e.currency)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, result.Reason)
	}

	now := e.now()
	periodEnd := addBillingPeriod(now, cycle)
	current := true
	next := &models.Subscription{
		AccountID:          accountID,
		PlanCode:           plan.PlanCode,
		Status:             models.SubscriptionStatusActive,
		Current:            &current,
		BillingCycle:       cycle,
		CurrentPeriodStart: &now,
		CurrentPeriodEnd:   &periodEnd,
		PricePaid:          price,
		PaymentRef:         result.TransactionID,
		Version:            1,
	}

	redeemCode := ""
	expectedRedemptions := 0
	if coupon != nil {
		next.CouponCode = coupon.Code
		redeemCode = coupon.Code
		expectedRedemptions = coupon.CurrentRedemptions
	}

	if err := e.repos.Subscription.CommitUpgrade(prev, next, redeemCode, expectedRedemptions); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, ErrConflictingUpdate
		}
		return nil, err
	}

	e.invalidateSubscriptionCache(accountID)
	next.Plan = plan
	return next, nil
}

// IsFeatureEnabled resolves a feature gate for the account. An expired trial
// or lapsed subscription blocks every gated feature regardless of plan;
// unknown feature names resolve to disabled, never to an error.
func (e *Engine) IsFeatureEnabled(ctx context.Context, accountID, featureName string) (bool, error) {
	sub, err := e.GetSubscription(ctx, accountID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}

	now := e.now()
	if !sub.IsTrialActiveAt(now) && !sub.IsActiveAt(now) {
		return false, nil
	}
	if sub.Plan == nil {
		return false, nil
	}
	return sub.Plan.FeatureEnabled(featureName), nil
}

// IsUsageLimitReached compares current consumption against the plan limit
// for a usage type. Absent limits mean unlimited; reaching the limit
// exactly counts as reached.
func (e *Engine) IsUsageLimitReached(ctx context.Context, accountID, usageType string) (bool, error) {
	if !models.IsKnownUsageType(usageType) {
		return false, fmt.Errorf("%w: %q", ErrUnknownUsageType, usageType)
	}

	sub, err := e.GetSubscription(ctx, accountID)
	if err != nil {
		return false, err
	}
	// Without a plan there is no limit to meter against.
	if sub == nil || sub.Plan == nil {
		return false, nil
	}

	limit, ok := sub.Plan.LimitFor(usageType)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownUsageType, usageType)
	}
	if limit == nil {
		return false, nil
	}

	usage, err := e.GetUsage(ctx, accountID)
	if err != nil {
		return false, err
	}
	current, _ := usage.ValueFor(usageType)
	return current >= *limit, nil
}

func (e *Engine) requireAccount(accountID string) error {
	exists, err := e.repos.Account.Exists(accountID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return nil
}

func (e *Engine) lookupPlan(planCode string) (*models.Plan, error) {
	plan, err := e.repos.Plan.GetByCode(strings.TrimSpace(planCode))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planCode)
		}
		return nil, err
	}
	return plan, nil
}

// fetchCurrentSubscription reads the live subscription directly from the
// repository, bypassing the cache. Missing rows return (nil, nil).
func (e *Engine) fetchCurrentSubscription(accountID string) (*models.Subscription, error) {
	sub, err := e.repos.Subscription.GetCurrentByAccount(accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

func (e *Engine) attachPlan(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	_ = ctx
	plan, err := e.lookupPlan(sub.PlanCode)
	if err != nil {
		return nil, err
	}
	sub.Plan = plan
	return sub, nil
}

// couponRejection returns a reason code when the coupon fails the validity
// predicate for the plan at the current time, or "" when it holds.
func (e *Engine) couponRejection(coupon *models.Coupon, planCode string) string {
	now := e.now()
	if coupon.ValidFrom != nil && now.Before(*coupon.ValidFrom) {
		return CouponReasonNotYetValid
	}
	if coupon.ValidUntil != nil && !now.Before(*coupon.ValidUntil) {
		return CouponReasonExpired
	}
	if coupon.MaxRedemptions != nil && coupon.CurrentRedemptions >= *coupon.MaxRedemptions {
		return CouponReasonRedemptionsReached
	}
	if !coupon.AppliesTo(planCode) {
		return CouponReasonPlanNotApplicable
	}
	return ""
}

func (e *Engine) subscriptionCacheKey(accountID string) string {
	return fmt.Sprintf(subscriptionCacheKeyFmt, accountID)
}

func (e *Engine) invalidateSubscriptionCache(accountID string) {
	if e.readCacheTTL > 0 {
		_ = cache.Delete(e.subscriptionCacheKey(accountID))
	}
}

func normalizeBillingCycle(cycle string) string {
	switch strings.ToLower(strings.TrimSpace(cycle)) {
	case models.BillingCycleAnnual:
		return models.BillingCycleAnnual
	default:
		return models.BillingCycleMonthly
	}
}

func addBillingPeriod(from time.Time, cycle string) time.Time {
	if cycle == models.BillingCycleAnnual {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
