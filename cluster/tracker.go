package cluster

// Tracker is the narrow counter-reporting sink ActorIndex and UidCache
// optionally report to (stats.Collector satisfies this structurally). Nil by
// default - neither component requires one to function.
type Tracker interface {
	Inc(name string)
	IncErr(name string)
}

const (
	metricActorRegistrations = "actor_registrations"
	metricUidCacheHits       = "uid_cache_hits"
	metricUidCacheMisses     = "uid_cache_misses"
)

// SetTracker wires t to be notified of every successful Register.
func (idx *ActorIndex) SetTracker(t Tracker) { idx.tracker = t }

// SetTracker wires t to be notified of every Lookup's hit/miss outcome.
func (c *UidCache) SetTracker(t Tracker) { c.tracker = t }
