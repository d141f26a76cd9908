package authz

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	ruleSnapshotKey = "authz:rules:snapshot"
	ruleVersionKey  = "authz:rules:version"
	ruleGroupKey    = "authz:rules"

	// defaultRuleTTL bounds staleness of the cached rule set.
	defaultRuleTTL = 10 * time.Minute
	// defaultFetchTimeout bounds a single backing-store fetch before the
	// store falls back.
	defaultFetchTimeout = 300 * time.Millisecond
	// fallbackRetryTTL keeps fallback results short-lived so recovery of the
	// backing store is picked up quickly.
	fallbackRetryTTL = 30 * time.Second
)

// Rule cache events reported to the metrics recorder.
const (
	RuleCacheHit              = "hit"
	RuleCacheMiss             = "miss"
	RuleCacheRefresh          = "refresh"
	RuleCacheSnapshotFallback = "snapshot_fallback"
	RuleCacheDefaultFallback  = "default_fallback"
)

// RuleFetcher loads the active transition rule set from persistent
// configuration.
type RuleFetcher interface {
	ActiveTransitionRules(ctx context.Context) ([]TransitionRule, error)
}

// CacheEvents receives rule cache event notifications. Implemented by the
// observability metrics; optional.
type CacheEvents interface {
	RuleCacheEvent(event string)
}

// RuleStore is a read-through cache over the transition rule configuration.
// The whole rule set is cached as one unit with a fixed TTL; concurrent
// misses collapse into a single backing fetch. When the backing store is
// unreachable the store falls back to the last-known-good redis snapshot and
// finally to a hardcoded default table, so an approval pipeline in flight
// never sees "no transitions ever allowed".
type RuleStore struct {
	fetcher      RuleFetcher
	client       *redis.Client
	logger       *slog.Logger
	events       CacheEvents
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	cached  *ruleSet
	expires time.Time
	version int64
}

// RuleStoreOption customises a RuleStore.
type RuleStoreOption func(*RuleStore)

// WithRuleTTL overrides the cache TTL.
func WithRuleTTL(ttl time.Duration) RuleStoreOption {
	return func(s *RuleStore) { s.ttl = ttl }
}

// WithFetchTimeout overrides the backing-store fetch timeout.
func WithFetchTimeout(timeout time.Duration) RuleStoreOption {
	return func(s *RuleStore) { s.fetchTimeout = timeout }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) RuleStoreOption {
	return func(s *RuleStore) { s.now = now }
}

// WithCacheEvents wires a metrics recorder.
func WithCacheEvents(events CacheEvents) RuleStoreOption {
	return func(s *RuleStore) { s.events = events }
}

// NewRuleStore constructs a RuleStore. The redis client is optional; without
// it the snapshot fallback is skipped and invalidation is process-local.
func NewRuleStore(fetcher RuleFetcher, client *redis.Client, logger *slog.Logger, opts ...RuleStoreOption) *RuleStore {
	store := &RuleStore{
		fetcher:      fetcher,
		client:       client,
		logger:       logger,
		ttl:          defaultRuleTTL,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

type pairKey struct {
	from Status
	to   Status
}

type ruleSet struct {
	byPair map[pairKey]TransitionRule
	byFrom map[Status][]TransitionRule
	rules  []TransitionRule
}

func newRuleSet(rules []TransitionRule) *ruleSet {
	set := &ruleSet{
		byPair: make(map[pairKey]TransitionRule, len(rules)),
		byFrom: make(map[Status][]TransitionRule, len(rules)),
		rules:  rules,
	}
	for _, rule := range rules {
		key := pairKey{from: rule.FromStatus, to: rule.ToStatus}
		set.byPair[key] = rule
		set.byFrom[rule.FromStatus] = append(set.byFrom[rule.FromStatus], rule)
	}
	return set
}

// Get returns the rule for (from, to), or ok=false when none is configured.
func (s *RuleStore) Get(ctx context.Context, from, to Status) (TransitionRule, bool, error) {
	set, err := s.snapshot(ctx)
	if err != nil {
		return TransitionRule{}, false, err
	}
	rule, ok := set.byPair[pairKey{from: from, to: to}]
	return rule, ok, nil
}

// ListByFrom returns all configured rules out of the given status.
func (s *RuleStore) ListByFrom(ctx context.Context, from Status) ([]TransitionRule, error) {
	set, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	rules := set.byFrom[from]
	return append([]TransitionRule(nil), rules...), nil
}

// All returns the full cached rule set.
func (s *RuleStore) All(ctx context.Context) ([]TransitionRule, error) {
	set, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return append([]TransitionRule(nil), set.rules...), nil
}

// Invalidate drops the cached rule set so the next read refetches. Admin rule
// mutations call this synchronously before responding; the redis version bump
// marks every peer's cached set stale, so their next read refetches too.
func (s *RuleStore) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	s.cached = nil
	s.expires = time.Time{}
	s.mu.Unlock()
	if s.client != nil {
		if err := s.client.Incr(ctx, ruleVersionKey).Err(); err != nil {
			if s.logger != nil {
				s.logger.Warn("bump rule version", slog.Any("error", err))
			}
		}
	}
	return nil
}

func (s *RuleStore) snapshot(ctx context.Context) (*ruleSet, error) {
	s.mu.RLock()
	cached, expires, version := s.cached, s.expires, s.version
	s.mu.RUnlock()
	if cached != nil && s.now().Before(expires) && s.versionCurrent(ctx, version) {
		s.recordEvent(RuleCacheHit)
		return cached, nil
	}

	resultChan := s.group.DoChan(ruleGroupKey, func() (interface{}, error) {
		s.recordEvent(RuleCacheMiss)
		return s.refill(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ruleSet), nil
	}
}

func (s *RuleStore) refill(ctx context.Context) (*ruleSet, error) {
	// Version is read before the fetch: a bump racing the fetch leaves the
	// installed set marked stale, which costs one extra refetch, never a
	// stale hit.
	version, _ := s.sharedVersion(ctx)

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	rules, err := s.fetcher.ActiveTransitionRules(fetchCtx)
	cancel()
	if err == nil {
		set := newRuleSet(rules)
		s.storeSnapshot(ctx, rules)
		s.install(set, s.ttl, version)
		s.recordEvent(RuleCacheRefresh)
		return set, nil
	}
	if s.logger != nil {
		s.logger.Warn("transition rule fetch failed", slog.Any("error", err))
	}

	if rules, snapErr := s.loadSnapshot(ctx); snapErr == nil {
		set := newRuleSet(rules)
		s.install(set, fallbackRetryTTL, version)
		s.recordEvent(RuleCacheSnapshotFallback)
		return set, nil
	}

	set := newRuleSet(DefaultTransitionRules())
	s.install(set, fallbackRetryTTL, version)
	s.recordEvent(RuleCacheDefaultFallback)
	return set, nil
}

// versionCurrent reports whether the locally cached set still matches the
// shared version bumped by Invalidate. When redis is unreachable the local
// TTL stays in charge.
func (s *RuleStore) versionCurrent(ctx context.Context, version int64) bool {
	shared, ok := s.sharedVersion(ctx)
	if !ok {
		return true
	}
	return shared == version
}

func (s *RuleStore) sharedVersion(ctx context.Context) (int64, bool) {
	if s.client == nil {
		return 0, false
	}
	version, err := s.client.Get(ctx, ruleVersionKey).Int64()
	if err == redis.Nil {
		return 0, true
	}
	if err != nil {
		return 0, false
	}
	return version, true
}

func (s *RuleStore) install(set *ruleSet, ttl time.Duration, version int64) {
	s.mu.Lock()
	s.cached = set
	s.expires = s.now().Add(ttl)
	s.version = version
	s.mu.Unlock()
}

func (s *RuleStore) storeSnapshot(ctx context.Context, rules []TransitionRule) {
	if s.client == nil {
		return
	}
	payload, err := json.Marshal(rules)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, ruleSnapshotKey, payload, 0).Err(); err != nil {
		if s.logger != nil {
			s.logger.Warn("store rule snapshot", slog.Any("error", err))
		}
	}
}

func (s *RuleStore) loadSnapshot(ctx context.Context) ([]TransitionRule, error) {
	if s.client == nil {
		return nil, errors.New("authz: no snapshot client")
	}
	payload, err := s.client.Get(ctx, ruleSnapshotKey).Bytes()
	if err != nil {
		return nil, err
	}
	var rules []TransitionRule
	if err := json.Unmarshal(payload, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *RuleStore) recordEvent(event string) {
	if s.events != nil {
		s.events.RuleCacheEvent(event)
	}
}

// DefaultTransitionRules is the hardcoded fallback table used when both the
// configuration store and the snapshot are unavailable: the standard
// draft-review-approval-publish spine with conservative minimum levels.
func DefaultTransitionRules() []TransitionRule {
	return []TransitionRule{
		{FromStatus: StatusDraft, ToStatus: StatusPendingReview, MinLevel: 30, RequiredPermission: PermDocumentsUpdate, IsActive: true, SortOrder: 10},
		{FromStatus: StatusPendingReview, ToStatus: StatusDraft, MinLevel: 30, RequiredPermission: PermDocumentsUpdate, IsActive: true, SortOrder: 20},
		{FromStatus: StatusPendingReview, ToStatus: StatusPendingApproval, MinLevel: 50, RequiredPermission: PermDocumentsApprove, IsActive: true, SortOrder: 30},
		{FromStatus: StatusPendingReview, ToStatus: StatusRejected, MinLevel: 50, RequiredPermission: PermDocumentsApprove, IsActive: true, SortOrder: 40},
		{FromStatus: StatusPendingApproval, ToStatus: StatusApproved, MinLevel: 70, RequiredPermission: PermDocumentsApprove, IsActive: true, SortOrder: 50},
		{FromStatus: StatusPendingApproval, ToStatus: StatusRejected, MinLevel: 70, RequiredPermission: PermDocumentsApprove, IsActive: true, SortOrder: 60},
		{FromStatus: StatusRejected, ToStatus: StatusDraft, MinLevel: 30, RequiredPermission: PermDocumentsUpdate, IsActive: true, SortOrder: 70},
		{FromStatus: StatusApproved, ToStatus: StatusPublished, MinLevel: 100, RequiredPermission: PermDocumentsPublish, IsActive: true, SortOrder: 80},
		{FromStatus: StatusPublished, ToStatus: StatusArchived, MinLevel: 70, RequiredPermission: PermDocumentsUpdate, IsActive: true, SortOrder: 90},
		{FromStatus: StatusPublished, ToStatus: StatusExpired, MinLevel: 100, IsActive: true, SortOrder: 100},
	}
}
