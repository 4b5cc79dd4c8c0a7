package placement

// Tracker is the narrow counter-reporting sink Reconciler optionally reports
// to (stats.Collector satisfies this structurally). Nil by default.
type Tracker interface {
	Inc(name string)
	IncErr(name string)
}

const metricReconcileRPCs = "reconcile_rpcs"

// SetTracker wires t to be notified of every RPC this Reconciler dispatches.
func (r *Reconciler) SetTracker(t Tracker) { r.tracker = t }
