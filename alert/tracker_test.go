package alert

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestTrackerThreshold(t *testing.T) {
	tracker := NewTracker(newTestRedis(t), time.Hour, map[string]int{"ACCOUNT_LOCKED": 3})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		tripped, err := tracker.Record(ctx, "ACCOUNT_LOCKED", "acct-1")
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if tripped {
			t.Fatalf("occurrence %d must not trip a threshold of 3", i+1)
		}
	}

	tripped, err := tracker.Record(ctx, "ACCOUNT_LOCKED", "acct-1")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !tripped {
		t.Fatal("third occurrence must trip")
	}

	count, err := tracker.Count(ctx, "ACCOUNT_LOCKED", "acct-1")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 in window, got %d", count)
	}
}

func TestTrackerWindowsArePerAccount(t *testing.T) {
	tracker := NewTracker(newTestRedis(t), time.Hour, map[string]int{"ACCOUNT_LOCKED": 3})
	ctx := context.Background()

	// One lockout each across three accounts stays under every account's
	// threshold.
	for _, id := range []string{"acct-1", "acct-2", "acct-3"} {
		tripped, err := tracker.Record(ctx, "ACCOUNT_LOCKED", id)
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if tripped {
			t.Fatalf("single lockout of %s must not trip", id)
		}
	}

	for _, id := range []string{"acct-1", "acct-2", "acct-3"} {
		count, err := tracker.Count(ctx, "ACCOUNT_LOCKED", id)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1 for %s, got %d", id, count)
		}
	}
}

func TestTrackerAdminAccessTripsImmediately(t *testing.T) {
	tracker := NewTracker(newTestRedis(t), time.Hour, nil)

	tripped, err := tracker.Record(context.Background(), "ADMIN_ACCESS", "break-glass")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !tripped {
		t.Fatal("admin access must trip on the first occurrence")
	}
}

func TestTrackerUnknownEventNeverTrips(t *testing.T) {
	tracker := NewTracker(newTestRedis(t), time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		tripped, err := tracker.Record(ctx, "SOMETHING_ELSE", "acct-1")
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if tripped {
			t.Fatal("events without thresholds must be counted silently")
		}
	}

	count, err := tracker.Count(ctx, "SOMETHING_ELSE", "acct-1")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 10 {
		t.Fatalf("expected 10 in window, got %d", count)
	}
}

func TestTrackerCriticalCallback(t *testing.T) {
	tracker := NewTracker(newTestRedis(t), time.Hour, nil)

	var gotEvent, gotAccount string
	tracker.Critical = func(event, accountID string, _ int64) {
		gotEvent, gotAccount = event, accountID
	}

	if _, err := tracker.Record(context.Background(), "ADMIN_ACCESS", "acct-9"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if gotEvent != "ADMIN_ACCESS" || gotAccount != "acct-9" {
		t.Fatalf("callback saw %q/%q", gotEvent, gotAccount)
	}
}
