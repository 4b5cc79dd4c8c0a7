package cluster

import "sync"

// UidCache is a node-local cache of recently resolved actor identities (C2):
// keyed by uid, but also indexed by owning host so that an entry self-evicts
// when its host dies, without any expiration timer. Lookups never perform
// RPC - a miss simply means "ask the leader".
type UidCache struct {
	mon     Monitor
	tracker Tracker

	mu      sync.Mutex
	byUID   map[string]ActorId
	byHost  map[Host]map[string]struct{}
	cancels map[Host]func()
}

func NewUidCache(mon Monitor) *UidCache {
	return &UidCache{
		mon:     mon,
		byUID:   make(map[string]ActorId),
		byHost:  make(map[Host]map[string]struct{}),
		cancels: make(map[Host]func()),
	}
}

func (c *UidCache) Lookup(uid string) (ActorId, bool) {
	c.mu.Lock()
	a, ok := c.byUID[uid]
	c.mu.Unlock()
	if c.tracker != nil {
		if ok {
			c.tracker.Inc(metricUidCacheHits)
		} else {
			c.tracker.Inc(metricUidCacheMisses)
		}
	}
	return a, ok
}

// Insert caches a. It installs at most one liveness watch per owning host,
// no matter how many uids that host contributes to the cache, and evicts all
// of that host's entries together when the watch fires.
func (c *UidCache) Insert(a ActorId) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byUID[a.Uid] = a
	uids, ok := c.byHost[a.Host]
	if !ok {
		uids = make(map[string]struct{})
		c.byHost[a.Host] = uids
		died, cancel := c.mon.Watch(a.Host)
		c.cancels[a.Host] = cancel
		go c.awaitDeath(a.Host, died)
	}
	uids[a.Uid] = struct{}{}
}

func (c *UidCache) awaitDeath(host Host, died <-chan struct{}) {
	<-died
	c.evict(host)
}

func (c *UidCache) evict(host Host) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for uid := range c.byHost[host] {
		delete(c.byUID, uid)
	}
	delete(c.byHost, host)
	delete(c.cancels, host)
}

func (c *UidCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byUID)
}
