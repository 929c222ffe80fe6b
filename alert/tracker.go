// Package alert keeps a per-account sliding-window count of critical
// security events in redis and reports when an (event, account) pair
// crosses its alerting threshold.
// It is shared state on purpose: every instance of the service feeds the
// same window, so a distributed brute-force attempt still trips it.
package alert

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultThresholds match the platform's incident runbook: repeated
// lockouts and exhausted code budgets page at three per window, and any
// break-glass admin access pages immediately.
var DefaultThresholds = map[string]int{
	"ACCOUNT_LOCKED":   3,
	"OTP_MAX_ATTEMPTS": 3,
	"ADMIN_ACCESS":     1,
}

// Tracker is safe for concurrent use.
type Tracker struct {
	rdb        redis.UniversalClient
	prefix     string
	window     time.Duration
	thresholds map[string]int

	// Critical receives a notification for every threshold crossing.
	// Nil by default; set it before the tracker sees traffic.
	Critical func(event, accountID string, count int64)
}

func NewTracker(rdb redis.UniversalClient, window time.Duration, thresholds map[string]int) *Tracker {
	if window <= 0 {
		window = time.Hour
	}
	if thresholds == nil {
		thresholds = DefaultThresholds
	}
	return &Tracker{
		rdb:        rdb,
		prefix:     "authcore:alerts:",
		window:     window,
		thresholds: thresholds,
	}
}

// Record adds one occurrence of event for the account and reports whether
// the event's threshold is now met within that account's window. Events
// with no configured threshold are counted but never trip.
func (t *Tracker) Record(ctx context.Context, event, accountID string) (bool, error) {
	if t == nil || t.rdb == nil {
		return false, nil
	}

	now := time.Now()
	// One window per (event, subject): three accounts locked once each is
	// three quiet windows, not an alert.
	key := t.prefix + event + ":" + accountID
	member := strconv.FormatInt(now.UnixNano(), 10)
	cutoff := strconv.FormatInt(now.Add(-t.window).UnixNano(), 10)

	pipe := t.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, t.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	count := card.Val()
	threshold, ok := t.thresholds[event]
	if !ok || count < int64(threshold) {
		return false, nil
	}

	if t.Critical != nil {
		t.Critical(event, accountID, count)
	}
	return true, nil
}

// Count returns the number of occurrences of event for the account inside
// the window.
func (t *Tracker) Count(ctx context.Context, event, accountID string) (int64, error) {
	if t == nil || t.rdb == nil {
		return 0, nil
	}

	now := time.Now()
	key := t.prefix + event + ":" + accountID
	cutoff := strconv.FormatInt(now.Add(-t.window).UnixNano(), 10)

	if err := t.rdb.ZRemRangeByScore(ctx, key, "-inf", cutoff).Err(); err != nil {
		return 0, err
	}
	res := t.rdb.ZCard(ctx, key)
	return res.Val(), res.Err()
}
