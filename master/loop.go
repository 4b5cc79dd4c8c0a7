package master

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn"
	"github.com/NVIDIA/aismaster/cmn/nlog"
	"github.com/NVIDIA/aismaster/elect"
	"github.com/NVIDIA/aismaster/hk"
	"github.com/NVIDIA/aismaster/iface"
	"github.com/NVIDIA/aismaster/placement"
)

// ErrTerminated is the reason threaded to UserCallbacks.Terminate and
// observed by MasterSupervisor when a Loop exits cleanly - either because it
// lost leadership to another claimant or because it was asked to
// stop.
var ErrTerminated = errors.New("master: terminated")

// hkOnce starts hk's shared housekeeping goroutine the first time any Loop
// runs - a daemon with multiple services' Loops still gets exactly one
// ticker goroutine for all of their election ticks.
var hkOnce sync.Once

func startHK() { hkOnce.Do(func() { go hk.DefaultHK.Run() }) }

// Loop is MasterLoop (C5): single-writer owner of one service's State on
// this node, reachable only through its exported methods below, each of
// which enqueues a request and blocks on a call-scoped reply channel - the
// caller's goroutine never touches State directly.
type Loop struct {
	state   *State
	elector *elect.LeaderElector
	recon   *placement.Reconciler
	cfg     iface.ConfigStore
	nodesvc iface.NodeService
	runtime iface.ServiceRuntime
	peers   iface.PeerTransport
	cb      iface.UserCallbacks

	reqs          chan masterReq
	nodeUpdates   chan map[cluster.NodeId]cluster.NodeInfo
	statusUpdates chan cluster.InstanceStatus

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a Loop for serviceID on this node. self/epoch identify this
// process incarnation to the elector's conflict resolver; registry
// is the cluster-global name registry; peers carries register_follower and
// check_leader-hint RPCs to/from other nodes' masters for the same service
// (may be nil for a single-node deployment, in which case both are no-ops);
// mon backs every liveness watch this Loop's ActorIndex and LeaderElector
// install.
func New(
	serviceID cluster.ServiceId, self cluster.Host, epoch cluster.NodeEpoch,
	registry elect.NameRegistry, peers iface.PeerTransport, mon cluster.Monitor,
	nodesvc iface.NodeService, runtime iface.ServiceRuntime, cfg iface.ConfigStore,
	cb iface.UserCallbacks,
) *Loop {
	idx := cluster.NewActorIndex(serviceID, mon)
	uidCache := cluster.NewUidCache(mon)
	claimant := elect.Claimant{Host: self, Epoch: epoch}

	var hinter elect.PeerHinter
	if peers != nil {
		hinter = peers
	}

	return &Loop{
		state:         newState(serviceID, self, idx, uidCache),
		elector:       elect.NewLeaderElector(serviceID, claimant, registry, hinter, mon),
		recon:         placement.NewReconciler(runtime),
		cfg:           cfg,
		nodesvc:       nodesvc,
		runtime:       runtime,
		peers:         peers,
		cb:            cb,
		reqs:          make(chan masterReq, 64),
		nodeUpdates:   make(chan map[cluster.NodeId]cluster.NodeInfo, 1),
		statusUpdates: make(chan cluster.InstanceStatus, 64),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Done is closed once Run has returned - used by MasterSupervisor to detect
// exit and by tests to synchronize on shutdown.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Stop requests orderly shutdown and blocks until Run has returned.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

// Run is the single-writer run loop: one goroutine, one select over the
// request queue, pushed node/instance updates, ActorIndex/LeaderElector
// liveness notifications, and the election ticker. It blocks until the Loop
// terminates, for whatever reason; callers normally run it via
// MasterSupervisor.Start rather than directly.
func (l *Loop) Run() {
	defer close(l.done)
	startHK()

	userState, err := l.cb.Init(l.state.ServiceID)
	if err != nil {
		nlog.Errorf("master %s: init failed: %v", l.state.ServiceID, err)
		return
	}
	l.state.UserState = userState

	cancelNode := l.nodesvc.Subscribe(func(nodes map[cluster.NodeId]cluster.NodeInfo) {
		select {
		case l.nodeUpdates <- nodes:
		case <-l.stop:
		}
	})
	defer cancelNode()

	cancelStatus := l.runtime.SubscribeStatus(l.state.ServiceID, func(st cluster.InstanceStatus) {
		select {
		case l.statusUpdates <- st:
		case <-l.stop:
		}
	})
	defer cancelStatus()

	// the election tick runs on hk's shared housekeeping goroutine, which
	// only ever nudges tickCh - the tick itself still executes here, on
	// this Loop's single writer goroutine.
	tickCh := make(chan struct{}, 1)
	hkName := fmt.Sprintf("elect-tick-%s-%s", l.state.ServiceID, l.state.Self.PID)
	hk.RegisterCB(hkName, func() time.Duration {
		select {
		case tickCh <- struct{}{}:
		default:
		}
		return cmn.Rom.ElectTick()
	}, cmn.Rom.ElectTick())
	defer hk.Unreg(hkName)

	reason := ErrTerminated
	for {
		select {
		case req := <-l.reqs:
			if shutdownReason, shutdown := l.handleReq(req); shutdown {
				reason = shutdownReason
				l.terminate(reason)
				return
			}

		case nodes := <-l.nodeUpdates:
			l.onNodeUpdate(nodes)

		case st := <-l.statusUpdates:
			l.onInstanceStatus(st)

		case host := <-l.state.ActorIndex.Deaths:
			l.state.ActorIndex.RemoveByHost(host)

		case host := <-l.elector.Deaths:
			l.elector.OnLeaderDied(host)
			if l.state.LeaderHost == host {
				l.state.LeaderHost = cluster.Host{}
			}
			if l.tick() {
				l.terminate(reason)
				return
			}

		case <-tickCh:
			if l.tick() {
				l.terminate(reason)
				return
			}

		case <-l.stop:
			l.terminate(reason)
			return
		}
	}
}

// tick runs one LeaderElector pass and acts on its Event; it reports whether
// this incarnation must now terminate.
func (l *Loop) tick() (terminate bool) {
	ev := l.elector.Tick()
	switch ev.Kind {
	case elect.EventBecameLeader:
		l.becomeLeader()

	case elect.EventOtherIsLeader:
		l.state.IsLeader = false
		l.state.LeaderHost = ev.Leader.Host
		return true

	case elect.EventRegisterFollower:
		l.state.IsLeader = false
		l.state.LeaderHost = ev.Leader.Host
		l.registerWithLeader(ev.Leader)
	}
	return false
}

func (l *Loop) becomeLeader() {
	l.state.IsLeader = true
	l.state.LeaderHost = l.state.Self
	l.state.Followers = make(map[cluster.NodeId]cluster.Host)
	l.state.Instances = make(map[cluster.NodeId]cluster.InstanceStatus)

	spec, err := l.cfg.Get(context.Background(), l.state.ServiceID)
	if err != nil {
		nlog.Errorf("master %s: became leader but failed to load service spec: %v", l.state.ServiceID, err)
		return
	}
	l.state.Spec = spec
	l.reconcile()
}

// registerWithLeader sends register_follower to the newly-observed
// incumbent, off the run loop's critical path.
func (l *Loop) registerWithLeader(leader elect.Claimant) {
	if l.peers == nil {
		return
	}
	serviceID, self := l.state.ServiceID, l.state.Self
	peers := l.peers
	go func() {
		if err := peers.RegisterFollower(leader.Host, serviceID, self); err != nil {
			nlog.Warningf("master %s: register_follower with %s failed: %v", serviceID, leader.Host, err)
		}
	}()
}

func (l *Loop) onNodeUpdate(nodes map[cluster.NodeId]cluster.NodeInfo) {
	l.state.Nodes = nodes
	if l.state.IsLeader {
		l.reconcile()
	}
}

func (l *Loop) onInstanceStatus(st cluster.InstanceStatus) {
	if !l.state.IsLeader {
		nlog.Warningf("master %s: instance_status from %s dropped (not leader)", l.state.ServiceID, st.Node)
		return
	}
	l.state.Instances[st.Node] = st
	l.reconcile()
}

// reconcile decides what placement.Run should dispatch and hands the
// decision to a detached goroutine to run; dropped-instance rows are removed
// from State.Instances immediately - they will re-announce or be re-added on
// the next NodeService update. Run itself is never called inline: its
// internal errgroup blocks the caller once maxInFlightRPCs dispatches are
// outstanding, and that caller must never be this Loop's own run goroutine.
func (l *Loop) reconcile() {
	d := placement.Decide(l.state.Nodes, l.state.Instances, l.state.Spec.VersionHash)
	for _, node := range d.Drop {
		delete(l.state.Instances, node)
	}
	if d.Empty() {
		return
	}
	recon, spec := l.recon, l.state.Spec
	go recon.Run(d, spec)
}

func (l *Loop) broadcastStop() {
	serviceID, runtime := l.state.ServiceID, l.runtime
	for node := range l.state.Nodes {
		node := node
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), cmn.Rom.RPCTimeout())
			defer cancel()
			if err := runtime.Stop(ctx, node, serviceID); err != nil {
				nlog.Warningf("master %s: stop_service RPC to %s failed: %v", serviceID, node, err)
			}
		}()
	}
}

// terminate runs the shutdown teardown: vacate the leader
// name iff we hold it, release the NodeService/ServiceRuntime subscriptions
// (handled by Run's defers), then run the user's terminate callback.
func (l *Loop) terminate(reason error) {
	if l.state.IsLeader {
		l.elector.Release()
		l.state.IsLeader = false
	}
	l.cb.Terminate(l.state.UserState, reason)
}
