package authz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeFetcher struct {
	mu    sync.Mutex
	rules []TransitionRule
	err   error
	calls int32
	delay time.Duration
}

func (f *fakeFetcher) ActiveTransitionRules(ctx context.Context) ([]TransitionRule, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]TransitionRule(nil), f.rules...), nil
}

func (f *fakeFetcher) set(rules []TransitionRule, err error) {
	f.mu.Lock()
	f.rules = rules
	f.err = err
	f.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sampleRules() []TransitionRule {
	return []TransitionRule{
		{FromStatus: StatusDraft, ToStatus: StatusPendingReview, MinLevel: 30, RequiredPermission: PermDocumentsUpdate, IsActive: true, SortOrder: 10},
		{FromStatus: StatusPendingReview, ToStatus: StatusPendingApproval, MinLevel: 50, RequiredPermission: PermDocumentsApprove, IsActive: true, SortOrder: 20},
	}
}

func newTestStore(t *testing.T, fetcher *fakeFetcher, clock *fakeClock) (*RuleStore, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRuleStore(fetcher, client, nil, WithClock(clock.Now))
	return store, client
}

func TestRuleStoreReadThrough(t *testing.T) {
	fetcher := &fakeFetcher{rules: sampleRules()}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store, _ := newTestStore(t, fetcher, clock)

	rule, ok, err := store.Get(context.Background(), StatusDraft, StatusPendingReview)
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if !ok || rule.MinLevel != 30 {
		t.Fatalf("unexpected rule %+v ok=%v", rule, ok)
	}

	// Second read is served from cache.
	if _, _, err := store.Get(context.Background(), StatusDraft, StatusPendingReview); err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if calls := atomic.LoadInt32(&fetcher.calls); calls != 1 {
		t.Fatalf("expected 1 backing fetch, got %d", calls)
	}
}

func TestRuleStoreTTLExpiry(t *testing.T) {
	fetcher := &fakeFetcher{rules: sampleRules()}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store, _ := newTestStore(t, fetcher, clock)

	if _, err := store.All(context.Background()); err != nil {
		t.Fatalf("All error = %v", err)
	}
	clock.Advance(defaultRuleTTL + time.Second)
	if _, err := store.All(context.Background()); err != nil {
		t.Fatalf("All error = %v", err)
	}
	if calls := atomic.LoadInt32(&fetcher.calls); calls != 2 {
		t.Fatalf("expected refetch after TTL, got %d fetches", calls)
	}
}

func TestRuleStoreInvalidateForcesRefetch(t *testing.T) {
	fetcher := &fakeFetcher{rules: sampleRules()}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store, _ := newTestStore(t, fetcher, clock)

	if _, err := store.All(context.Background()); err != nil {
		t.Fatalf("All error = %v", err)
	}

	updated := sampleRules()
	updated[0].MinLevel = 70
	fetcher.set(updated, nil)

	if err := store.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate error = %v", err)
	}
	rule, ok, err := store.Get(context.Background(), StatusDraft, StatusPendingReview)
	if err != nil || !ok {
		t.Fatalf("Get after invalidate: rule=%+v ok=%v err=%v", rule, ok, err)
	}
	if rule.MinLevel != 70 {
		t.Fatalf("stale rule after invalidate: %+v", rule)
	}
}

func TestRuleStoreInvalidateIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{rules: sampleRules()}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store, _ := newTestStore(t, fetcher, clock)

	if err := store.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate error = %v", err)
	}
	if err := store.Invalidate(context.Background()); err != nil {
		t.Fatalf("second Invalidate error = %v", err)
	}
	first, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("All error = %v", err)
	}
	if err := store.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate error = %v", err)
	}
	second, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("All error = %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("double invalidate changed results: %d vs %d", len(first), len(second))
	}
}

func TestRuleStoreInvalidateReachesPeerInstances(t *testing.T) {
	fetcher := &fakeFetcher{rules: sampleRules()}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	admin := NewRuleStore(fetcher, client, nil, WithClock(clock.Now))
	peer := NewRuleStore(fetcher, client, nil, WithClock(clock.Now))

	// Warm both instances.
	if _, err := admin.All(context.Background()); err != nil {
		t.Fatalf("All error = %v", err)
	}
	if _, err := peer.All(context.Background()); err != nil {
		t.Fatalf("All error = %v", err)
	}

	updated := sampleRules()
	updated[0].MinLevel = 70
	fetcher.set(updated, nil)

	// The admin mutation invalidates its own instance only; the peer must
	// pick the change up through the shared version, well before its TTL.
	if err := admin.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate error = %v", err)
	}
	rule, ok, err := peer.Get(context.Background(), StatusDraft, StatusPendingReview)
	if err != nil || !ok {
		t.Fatalf("peer Get: rule=%+v ok=%v err=%v", rule, ok, err)
	}
	if rule.MinLevel != 70 {
		t.Fatalf("peer served stale rule after invalidate: %+v", rule)
	}
}

func TestRuleStoreVersionCheckSurvivesRedisOutage(t *testing.T) {
	fetcher := &fakeFetcher{rules: sampleRules()}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRuleStore(fetcher, client, nil, WithClock(clock.Now))

	if _, err := store.All(context.Background()); err != nil {
		t.Fatalf("All error = %v", err)
	}
	mr.Close()

	// Redis down: the local TTL governs and the cached set keeps serving.
	rule, ok, err := store.Get(context.Background(), StatusDraft, StatusPendingReview)
	if err != nil || !ok {
		t.Fatalf("Get with redis down: rule=%+v ok=%v err=%v", rule, ok, err)
	}
	if calls := atomic.LoadInt32(&fetcher.calls); calls != 1 {
		t.Fatalf("redis outage must not force refetches, got %d fetches", calls)
	}
}

func TestRuleStoreSnapshotFallback(t *testing.T) {
	fetcher := &fakeFetcher{rules: sampleRules()}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store, _ := newTestStore(t, fetcher, clock)

	// Populate cache and the last-known-good snapshot.
	if _, err := store.All(context.Background()); err != nil {
		t.Fatalf("All error = %v", err)
	}

	fetcher.set(nil, errors.New("store unreachable"))
	clock.Advance(defaultRuleTTL + time.Second)

	rules, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("All error = %v", err)
	}
	if len(rules) != len(sampleRules()) {
		t.Fatalf("expected snapshot rules, got %d", len(rules))
	}
}

func TestRuleStoreDefaultFallback(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("store unreachable")}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	// No redis client: snapshot fallback unavailable.
	store := NewRuleStore(fetcher, nil, nil, WithClock(clock.Now))

	rules, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("All error = %v", err)
	}
	if len(rules) == 0 {
		t.Fatal("fallback must return the hardcoded table, never an empty set")
	}
	if len(rules) != len(DefaultTransitionRules()) {
		t.Fatalf("expected default table, got %d rules", len(rules))
	}

	// The fallback result is short-lived so recovery is picked up.
	fetcher.set(sampleRules(), nil)
	clock.Advance(fallbackRetryTTL + time.Second)
	rules, err = store.All(context.Background())
	if err != nil {
		t.Fatalf("All error = %v", err)
	}
	if len(rules) != len(sampleRules()) {
		t.Fatalf("expected recovered rules, got %d", len(rules))
	}
}

func TestRuleStoreFetchTimeoutFallsBack(t *testing.T) {
	fetcher := &fakeFetcher{rules: sampleRules(), delay: time.Second}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store := NewRuleStore(fetcher, nil, nil, WithClock(clock.Now), WithFetchTimeout(10*time.Millisecond))

	rules, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("All error = %v", err)
	}
	if len(rules) != len(DefaultTransitionRules()) {
		t.Fatalf("slow store must fall back to defaults, got %d rules", len(rules))
	}
}

func TestRuleStoreSingleFlight(t *testing.T) {
	fetcher := &fakeFetcher{rules: sampleRules(), delay: 20 * time.Millisecond}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store, _ := newTestStore(t, fetcher, clock)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.All(context.Background()); err != nil {
				t.Errorf("All error = %v", err)
			}
		}()
	}
	wg.Wait()
	if calls := atomic.LoadInt32(&fetcher.calls); calls != 1 {
		t.Fatalf("concurrent misses must collapse to one fetch, got %d", calls)
	}
}

type fakeCacheEvents struct {
	mu     sync.Mutex
	counts map[string]int
}

func (e *fakeCacheEvents) RuleCacheEvent(event string) {
	e.mu.Lock()
	if e.counts == nil {
		e.counts = make(map[string]int)
	}
	e.counts[event]++
	e.mu.Unlock()
}

func (e *fakeCacheEvents) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[event]
}

func TestRuleStoreMissCountsBackingFetches(t *testing.T) {
	fetcher := &fakeFetcher{rules: sampleRules(), delay: 20 * time.Millisecond}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	events := &fakeCacheEvents{}
	store := NewRuleStore(fetcher, nil, nil, WithClock(clock.Now), WithCacheEvents(events))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.All(context.Background()); err != nil {
				t.Errorf("All error = %v", err)
			}
		}()
	}
	wg.Wait()

	// Callers that join an in-flight refill share its miss: one fetch, one
	// miss, one refresh.
	if misses := events.count(RuleCacheMiss); misses != 1 {
		t.Fatalf("expected 1 miss for a collapsed burst, got %d", misses)
	}
	if refreshes := events.count(RuleCacheRefresh); refreshes != 1 {
		t.Fatalf("expected 1 refresh, got %d", refreshes)
	}
	if _, err := store.All(context.Background()); err != nil {
		t.Fatalf("All error = %v", err)
	}
	if hits := events.count(RuleCacheHit); hits == 0 {
		t.Fatal("warm read must record a hit")
	}
}

func TestRuleStoreListByFrom(t *testing.T) {
	fetcher := &fakeFetcher{rules: sampleRules()}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store, _ := newTestStore(t, fetcher, clock)

	rules, err := store.ListByFrom(context.Background(), StatusDraft)
	if err != nil {
		t.Fatalf("ListByFrom error = %v", err)
	}
	if len(rules) != 1 || rules[0].ToStatus != StatusPendingReview {
		t.Fatalf("unexpected rules %+v", rules)
	}
	none, err := store.ListByFrom(context.Background(), StatusArchived)
	if err != nil {
		t.Fatalf("ListByFrom error = %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no rules from ARCHIVED, got %+v", none)
	}
}
