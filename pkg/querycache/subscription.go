package querycache

import "sync"

// Subscription is a declared dependency on one query key. It receives every state
// transition of the entry on Updates until Unsubscribe or Cache.Close.
type Subscription struct {
	c    *Cache
	key  string
	mu   sync.Mutex
	ch   chan State
	done bool
}

// Subscribe registers interest in key and delivers the current state immediately. An
// uninitiated or rejected entry is fetched in the background.
func (c *Cache) Subscribe(key string, fetch FetchFunc, tags ...string) *Subscription {
	s := &Subscription{c: c, key: key, ch: make(chan State, subscriberBuffer)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		s.closeCh()
		return s
	}
	e := c.entries[key]
	if e == nil {
		e = c.newEntryLocked(key)
	}
	if fetch != nil {
		e.fetch = fetch
	}
	for _, t := range tags {
		e.tags[t] = struct{}{}
	}
	if e.evict != nil {
		e.evict.Stop()
		e.evict = nil
	}
	e.subs[s] = struct{}{}
	s.push(e.state)

	if e.fetch != nil && (e.state.Status == Uninitiated || e.state.Status == Rejected || c.staleLocked(e)) {
		c.startLocked(e)
	}
	return s
}

// Key returns the subscribed query key.
func (s *Subscription) Key() string { return s.key }

// Updates delivers state transitions. When the subscriber falls behind, older undelivered
// states are dropped in favour of newer ones; the last state is never lost.
func (s *Subscription) Updates() <-chan State { return s.ch }

// Refetch forces a new fetch of the subscribed key in the background.
func (s *Subscription) Refetch() {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[s.key]
	if !ok || c.closed || e.fetch == nil {
		return
	}
	e.gen++
	c.startLocked(e)
}

// Unsubscribe drops the dependency. When the last subscriber leaves, the entry is evicted
// after the cache's grace period unless someone subscribes again.
func (s *Subscription) Unsubscribe() {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[s.key]; ok {
		if _, mine := e.subs[s]; mine {
			delete(e.subs, s)
			if len(e.subs) == 0 {
				c.scheduleEvictLocked(e)
			}
		}
	}
	s.closeCh()
}

func (s *Subscription) push(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	for {
		select {
		case s.ch <- st:
			return
		default:
		}
		// full: drop the oldest pending update
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *Subscription) closeCh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		close(s.ch)
	}
}
