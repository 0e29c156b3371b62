package counter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/propertyguard/backend/internal/pkg/cache"
	"github.com/propertyguard/backend/internal/pkg/database"
)

const apiCallsKeyPrefix = "usage:counters:api_calls"

func monthKey(month string) string {
	return fmt.Sprintf("%s:%s", apiCallsKeyPrefix, month)
}

// AddAPICall increments the pending API-call counter for an account in the
// current month's Redis hash.
func AddAPICall(accountID string) error {
	ctx := context.Background()
	month := time.Now().UTC().Format("2006-01")
	return cache.GetClient().HIncrBy(ctx, monthKey(month), accountID, 1).Err()
}

// Pending returns the buffered, not-yet-flushed API-call count for an
// account and month.
func Pending(accountID, month string) (int64, error) {
	ctx := context.Background()
	val, err := cache.GetClient().HGet(ctx, monthKey(month), accountID).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return val, nil
}

// Flush drains the month's Redis hash and applies batched increments to the
// usage_months table.
func Flush(month string) error {
	return flushHashToUsageMonths(monthKey(month), month)
}

// FlushCurrentMonth flushes the counters for the current calendar month and
// the previous one, so increments buffered just before a month rollover
// still land instead of being stranded in the old key.
func FlushCurrentMonth() error {
	for _, month := range flushMonths(time.Now()) {
		if err := Flush(month); err != nil {
			return err
		}
	}
	return nil
}

// flushMonths returns the previous and current calendar month for an
// instant, oldest first.
func flushMonths(now time.Time) []string {
	year, month, _ := now.UTC().Date()
	prev := time.Date(year, month-1, 1, 0, 0, 0, 0, time.UTC)
	return []string{prev.Format("2006-01"), now.UTC().Format("2006-01")}
}

// flushHashToUsageMonths drains a Redis hash atomically and upserts batched
// increments into usage_months. Uses RENAME to a temporary key for atomic
// drain without losing in-flight increments.
func flushHashToUsageMonths(redisKey, month string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	type pair struct {
		accountID string
		inc       int64
	}
	pairs := make([]pair, 0, len(data))
	for accountID, v := range data {
		var inc int64
		if _, err := fmt.Sscanf(v, "%d", &inc); err != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{accountID: accountID, inc: inc})
	}
	if len(pairs) == 0 {
		return nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].accountID < pairs[j].accountID })

	// One upsert row per account; existing rows accumulate.
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	builder.WriteString("INSERT INTO usage_months (account_id, month, api_calls, created_at, updated_at) VALUES ")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("(?, ?, ?, NOW(), NOW())")
		args = append(args, p.accountID, month, p.inc)
	}
	builder.WriteString(" ON DUPLICATE KEY UPDATE api_calls = api_calls + VALUES(api_calls), updated_at = NOW()")

	db := database.GetDB()
	if err := db.Exec(builder.String(), args...).Error; err != nil {
		return err
	}
	return nil
}

// StartFlushLoop periodically drains the current month's counters into the
// database until the context is canceled. Runs in its own goroutine.
func StartFlushLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := FlushCurrentMonth(); err != nil {
					log.Printf("usage counter flush failed: %v", err)
				}
			}
		}
	}()
}

// Reader adapts the package functions to the entitlement engine's
// UsageCounter dependency.
type Reader struct{}

// Pending implements the engine's UsageCounter interface.
func (Reader) Pending(accountID, month string) (int64, error) {
	return Pending(accountID, month)
}
