package placement

import (
	"context"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn"
	"github.com/NVIDIA/aismaster/cmn/nlog"
	"github.com/NVIDIA/aismaster/iface"
	"golang.org/x/sync/errgroup"
)

// maxInFlightRPCs bounds how many placement RPCs one Reconciler has in
// flight at once, across all of its reconciliation passes - a large ToStart/ToStop/ToUpdate set (e.g. after
// a long leader gap) still fans out gradually instead of opening one
// goroutine and one connection per node simultaneously.
const maxInFlightRPCs = 64

// Reconciler dispatches the RPCs a Decision calls for as detached worker
// goroutines, so the owning loop remains responsive to name lookups and
// never awaits their result. All three RPC kinds are idempotent at
// ServiceRuntime, so a failure here is simply logged and left for the next
// reconciliation trigger to re-derive and re-dispatch - best-effort
// semantics throughout.
type Reconciler struct {
	runtime iface.ServiceRuntime
	tracker Tracker

	grp errgroup.Group // test-only Wait(); also bounds concurrent dispatch
}

func NewReconciler(runtime iface.ServiceRuntime) *Reconciler {
	r := &Reconciler{runtime: runtime}
	r.grp.SetLimit(maxInFlightRPCs)
	return r
}

// Run fires one detached RPC per node named in d, carrying spec. Each RPC
// runs on its own worker goroutine and Run never awaits its completion, but
// once maxInFlightRPCs workers are outstanding, dispatching the next one
// blocks Run's own caller until a slot frees - so Run itself must always be
// invoked off whatever goroutine cannot tolerate that wait (the owning
// MasterLoop dispatches it from a detached goroutine rather than calling it
// inline).
func (r *Reconciler) Run(d Decision, spec cluster.ServiceSpec) {
	for _, node := range d.ToStop {
		r.dispatch("stop", node, func(ctx context.Context) error {
			return r.runtime.Stop(ctx, node, spec.ServiceId)
		})
	}
	for _, node := range d.ToStart {
		r.dispatch("start", node, func(ctx context.Context) error {
			return r.runtime.Start(ctx, node, spec)
		})
	}
	for _, node := range d.ToUpdate {
		r.dispatch("update", node, func(ctx context.Context) error {
			return r.runtime.Update(ctx, node, spec)
		})
	}
}

func (r *Reconciler) dispatch(kind string, node cluster.NodeId, call func(context.Context) error) {
	r.grp.Go(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cmn.Rom.RPCTimeout())
		defer cancel()
		if err := call(ctx); err != nil {
			nlog.Warningf("placement: %s RPC to %s failed (will retry on next reconciliation): %v", kind, node, err)
			if r.tracker != nil {
				r.tracker.IncErr(metricReconcileRPCs)
			}
			return nil // best-effort: never fails the group, next tick re-derives
		}
		if r.tracker != nil {
			r.tracker.Inc(metricReconcileRPCs)
		}
		return nil
	})
}

// Wait blocks until every RPC dispatched by this Reconciler has returned.
// Test-only: production callers never await placement RPCs.
func (r *Reconciler) Wait() { r.grp.Wait() }
