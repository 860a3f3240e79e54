// Package querycache is a request-deduplicating result cache for API clients.
//
// Every entry is identified by a query key (operation + serialized arguments) and moves
// through uninitiated -> pending -> fulfilled | rejected. Concurrent loads of the same key
// share one in-flight fetch. Subscribers receive every state transition, mutations
// invalidate entries by tag, and entries nobody subscribes to are evicted after a grace
// period.
package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by loads issued after Close.
var ErrClosed = errors.New("querycache: closed")

// Status is the lifecycle state of a cached query.
type Status int

const (
	Uninitiated Status = iota
	Pending
	Fulfilled
	Rejected
)

func (s Status) String() string {
	switch s {
	case Uninitiated:
		return "uninitiated"
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is a snapshot of one entry. Data keeps the last fulfilled value while a refetch is pending.
type State struct {
	Key       string
	Status    Status
	Data      any
	Err       error
	UpdatedAt time.Time
}

// FetchFunc loads the value for a key. The context is owned by the cache, not by any
// single caller, so one caller giving up does not abort a fetch others are waiting on.
type FetchFunc func(ctx context.Context) (any, error)

const (
	defaultGracePeriod = 60 * time.Second
	subscriberBuffer   = 8
)

// Option configures a Cache.
type Option func(*Cache)

// WithGracePeriod sets how long an entry without subscribers is kept. Negative disables eviction.
func WithGracePeriod(d time.Duration) Option { return func(c *Cache) { c.grace = d } }

// WithTTL marks fulfilled data stale after d; stale entries are refetched on the next load.
// Zero keeps data until it is invalidated or evicted.
func WithTTL(d time.Duration) Option { return func(c *Cache) { c.ttl = d } }

type entry struct {
	id    uint64
	key   string
	state State
	fetch FetchFunc
	tags  map[string]struct{}
	subs  map[*Subscription]struct{}
	evict *time.Timer
	gen   uint64
}

// Cache is safe for concurrent use. The zero value is not usable; call New.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	flights singleflight.Group
	grace   time.Duration
	ttl     time.Duration
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New returns an empty cache. Call Close when done to cancel in-flight fetches.
func New(opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries: make(map[string]*entry),
		grace:   defaultGracePeriod,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key builds a query key from an operation name and its arguments, e.g.
// Key("getAccountByName", "alice") == `getAccountByName("alice")`.
func Key(operation string, args ...any) string {
	if len(args) == 0 {
		return operation + "()"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%s(%v)", operation, args)
	}
	return operation + "(" + string(b[1:len(b)-1]) + ")"
}

// Query returns the cached value for key when fulfilled and fresh, otherwise it joins or
// starts a fetch. If ctx ends first the caller gets ctx.Err(); the fetch keeps running
// and its result is still cached.
func (c *Cache) Query(ctx context.Context, key string, fetch FetchFunc, tags ...string) (any, error) {
	return c.load(ctx, key, fetch, false, tags)
}

// Refetch forces a new fetch for key even if fulfilled data is cached.
func (c *Cache) Refetch(ctx context.Context, key string) (any, error) {
	return c.load(ctx, key, nil, true, nil)
}

// Get is the typed form of Query.
func Get[T any](ctx context.Context, c *Cache, key string, fetch func(ctx context.Context) (T, error), tags ...string) (T, error) {
	var zero T
	v, err := c.Query(ctx, key, func(ctx context.Context) (any, error) { return fetch(ctx) }, tags...)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("querycache: %s holds %T, not %T", key, v, zero)
	}
	return t, nil
}

func (c *Cache) load(ctx context.Context, key string, fetch FetchFunc, force bool, tags []string) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.entries[key]
	if e == nil {
		if fetch == nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("querycache: no fetch registered for %s", key)
		}
		e = c.newEntryLocked(key)
	}
	if fetch != nil {
		e.fetch = fetch
	}
	for _, t := range tags {
		e.tags[t] = struct{}{}
	}
	if len(e.subs) == 0 {
		c.scheduleEvictLocked(e)
	}
	if force {
		e.gen++
	} else if e.state.Status == Fulfilled && !c.staleLocked(e) {
		data := e.state.Data
		c.mu.Unlock()
		return data, nil
	}
	ch := c.startLocked(e)
	c.mu.Unlock()

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// startLocked joins the flight for the entry's current generation or starts it. Flights
// are keyed by entry id too, so an entry recreated after invalidation never joins a
// flight started for its predecessor.
func (c *Cache) startLocked(e *entry) <-chan singleflight.Result {
	gen := e.gen
	flight := fmt.Sprintf("%s#%d.%d", e.key, e.id, gen)
	return c.flights.DoChan(flight, func() (any, error) {
		return c.run(e, gen)
	})
}

func (c *Cache) run(e *entry, gen uint64) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	fetch := e.fetch
	if c.currentLocked(e, gen) {
		c.setLocked(e, Pending, e.state.Data, nil)
	}
	c.mu.Unlock()

	data, err := fetch(c.ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.currentLocked(e, gen) {
		// invalidated or evicted meanwhile; waiters still get this result
		return data, err
	}
	if err != nil {
		c.setLocked(e, Rejected, e.state.Data, err)
	} else {
		c.setLocked(e, Fulfilled, data, nil)
	}
	if len(e.subs) == 0 {
		c.scheduleEvictLocked(e)
	}
	return data, err
}

func (c *Cache) currentLocked(e *entry, gen uint64) bool {
	return c.entries[e.key] == e && e.gen == gen
}

func (c *Cache) staleLocked(e *entry) bool {
	return c.ttl > 0 && time.Since(e.state.UpdatedAt) > c.ttl
}

func (c *Cache) newEntryLocked(key string) *entry {
	c.seq++
	e := &entry{
		id:    c.seq,
		key:   key,
		state: State{Key: key, Status: Uninitiated},
		tags:  make(map[string]struct{}),
		subs:  make(map[*Subscription]struct{}),
	}
	c.entries[key] = e
	return e
}

func (c *Cache) setLocked(e *entry, status Status, data any, err error) {
	e.state = State{Key: e.key, Status: status, Data: data, Err: err, UpdatedAt: time.Now()}
	for s := range e.subs {
		s.push(e.state)
	}
}

func (c *Cache) scheduleEvictLocked(e *entry) {
	if c.grace < 0 {
		return
	}
	if e.evict != nil {
		e.evict.Stop()
	}
	e.evict = time.AfterFunc(c.grace, func() { c.evictIdle(e) })
}

func (c *Cache) evictIdle(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[e.key] != e || len(e.subs) > 0 || e.state.Status == Pending {
		return
	}
	delete(c.entries, e.key)
}

// Peek returns the current state of key without triggering a fetch.
func (c *Cache) Peek(key string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return State{Key: key, Status: Uninitiated}, false
	}
	return e.state, true
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidate marks every entry carrying one of tags as outdated. Subscribed entries refetch
// right away; unsubscribed ones are dropped so the next load fetches fresh data.
// Returns the number of entries affected.
func (c *Cache) Invalidate(tags ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if !hasAny(e.tags, tags) {
			continue
		}
		n++
		c.invalidateLocked(e)
	}
	return n
}

// InvalidateKey invalidates a single entry.
func (c *Cache) InvalidateKey(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok {
		c.invalidateLocked(e)
	}
	return ok
}

func (c *Cache) invalidateLocked(e *entry) {
	e.gen++
	if len(e.subs) == 0 {
		if e.evict != nil {
			e.evict.Stop()
		}
		delete(c.entries, e.key)
		return
	}
	c.startLocked(e)
}

// Mutate runs a mutation with the caller's context and, when it succeeds, invalidates tags.
// Mutations are never deduplicated or cached.
func (c *Cache) Mutate(ctx context.Context, fn func(ctx context.Context) (any, error), invalidates ...string) (any, error) {
	v, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	c.Invalidate(invalidates...)
	return v, nil
}

// Close cancels in-flight fetches, closes all subscriptions and drops every entry.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	for k, e := range c.entries {
		if e.evict != nil {
			e.evict.Stop()
		}
		for s := range e.subs {
			s.closeCh()
		}
		delete(c.entries, k)
	}
}

func hasAny(set map[string]struct{}, tags []string) bool {
	for _, t := range tags {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
