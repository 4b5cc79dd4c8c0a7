package master

// Tracker is the narrow counter-reporting sink a Loop forwards to its
// LeaderElector, Reconciler, and ActorIndex (stats.Collector satisfies this
// structurally, as do elect.Tracker/placement.Tracker/cluster.Tracker - all
// four are the same two-method shape by design, so one Collector wires into
// every component with no adapter).
type Tracker interface {
	Inc(name string)
	IncErr(name string)
}

// SetTracker wires t into this incarnation's LeaderElector, Reconciler,
// ActorIndex, and UidCache. Call once after New, before Run.
func (l *Loop) SetTracker(t Tracker) {
	l.elector.SetTracker(t)
	l.recon.SetTracker(t)
	l.state.ActorIndex.SetTracker(t)
	l.state.UidCache.SetTracker(t)
}
