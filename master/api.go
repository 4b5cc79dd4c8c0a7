package master

import "github.com/NVIDIA/aismaster/cluster"

// errStopped is returned by a request method when the Loop has already
// exited (Run returned) before the request could be serviced - e.g. a
// straggling call against a supervisor-restarted incarnation's stale
// reference.
func errStopped() error { return cluster.NewError(cluster.LeaderNotFound, "master loop stopped") }

// GetInfo returns a snapshot of nodes, instances, followers, and the
// believed leader host. Satisfies transport.MasterClient.
func (l *Loop) GetInfo() Info {
	reply := make(chan Info, 1)
	select {
	case l.reqs <- reqGetInfo{reply: reply}:
	case <-l.done:
		return Info{}
	}
	select {
	case info := <-reply:
		return info
	case <-l.done:
		return Info{}
	}
}

// StopService broadcasts stop to every known node.
// Leader-only.
func (l *Loop) StopService() error {
	reply := make(chan error, 1)
	select {
	case l.reqs <- reqStopService{reply: reply}:
	case <-l.done:
		return errStopped()
	}
	select {
	case err := <-reply:
		return err
	case <-l.done:
		return errStopped()
	}
}

// FindActorByName looks up an actor by its (service, class, name) identity.
// Leader-only.
func (l *Loop) FindActorByName(service cluster.ServiceId, key cluster.NameKey) (cluster.ActorId, error) {
	reply := make(chan findReply, 1)
	select {
	case l.reqs <- reqFindByName{service: service, key: key, reply: reply}:
	case <-l.done:
		return cluster.ActorId{}, errStopped()
	}
	select {
	case r := <-reply:
		return r.Actor, r.Err
	case <-l.done:
		return cluster.ActorId{}, errStopped()
	}
}

// FindActorByUid looks up an actor by its immutable uid, falling back to
// UserCallbacks.FindUid on a registry miss.
// Leader-only.
func (l *Loop) FindActorByUid(uid string) (cluster.ActorId, error) {
	reply := make(chan findReply, 1)
	select {
	case l.reqs <- reqFindByUid{uid: uid, reply: reply}:
	case <-l.done:
		return cluster.ActorId{}, errStopped()
	}
	select {
	case r := <-reply:
		return r.Actor, r.Err
	case <-l.done:
		return cluster.ActorId{}, errStopped()
	}
}

// RegisterActor registers a (or renames it, per ActorIndex.Register's rules)
// and, on success, replies with the leader host the caller just registered
// against. Leader-only.
func (l *Loop) RegisterActor(actor cluster.ActorId) (cluster.Host, error) {
	reply := make(chan registerReply, 1)
	select {
	case l.reqs <- reqRegisterActor{actor: actor, reply: reply}:
	case <-l.done:
		return cluster.Host{}, errStopped()
	}
	select {
	case r := <-reply:
		return r.LeaderHost, r.Err
	case <-l.done:
		return cluster.Host{}, errStopped()
	}
}

// RegisterFollower records a peer master as a follower of this leader.
// Satisfies transport.MasterPeer. Leader-only.
func (l *Loop) RegisterFollower(node cluster.NodeId, host cluster.Host) error {
	reply := make(chan error, 1)
	select {
	case l.reqs <- reqRegisterFollower{node: node, host: host, reply: reply}:
	case <-l.done:
		return errStopped()
	}
	select {
	case err := <-reply:
		return err
	case <-l.done:
		return errStopped()
	}
}

// HintCheckLeader runs one LeaderElector tick immediately. Satisfies transport.MasterPeer.
// Fire-and-forget: never blocks on the tick's outcome.
func (l *Loop) HintCheckLeader() {
	select {
	case l.reqs <- reqCheckLeader{}:
	case <-l.done:
	}
}

// NotifyOtherIsLeader drives this incarnation's own orderly shutdown.
// Fire-and-forget.
func (l *Loop) NotifyOtherIsLeader() {
	select {
	case l.reqs <- reqOtherIsLeader{}:
	case <-l.done:
	}
}

// Call routes a synchronous request to UserCallbacks.HandleCall, threading
// the service's opaque user state.
func (l *Loop) Call(body any) (any, error) {
	reply := make(chan callReply, 1)
	select {
	case l.reqs <- reqCall{body: body, reply: reply}:
	case <-l.done:
		return nil, errStopped()
	}
	select {
	case r := <-reply:
		return r.Reply, r.Err
	case <-l.done:
		return nil, errStopped()
	}
}

// Cast routes a fire-and-forget request to UserCallbacks.HandleCast.
func (l *Loop) Cast(body any) {
	select {
	case l.reqs <- reqCast{body: body}:
	case <-l.done:
	}
}
