package master

import (
	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn/nlog"
)

// handleReq services one request pulled off l.reqs.
// It reports whether this incarnation must terminate as a result
// (reqOtherIsLeader always; reqCheckLeader when its tick finds another
// leader).
func (l *Loop) handleReq(req masterReq) (reason error, shutdown bool) {
	switch r := req.(type) {
	case reqGetInfo:
		r.reply <- l.state.snapshot()

	case reqStopService:
		if !l.state.IsLeader {
			r.reply <- cluster.NewError(cluster.LeaderNotFound, "")
			return nil, false
		}
		l.broadcastStop()
		r.reply <- nil

	case reqFindByName:
		if !l.state.IsLeader {
			r.reply <- findReply{Err: cluster.NewError(cluster.LeaderNotFound, "")}
			return nil, false
		}
		a, err := l.state.ActorIndex.FindByName(r.service, r.key)
		r.reply <- findReply{Actor: a, Err: err}

	case reqFindByUid:
		if !l.state.IsLeader {
			r.reply <- findReply{Err: cluster.NewError(cluster.LeaderNotFound, "")}
			return nil, false
		}
		if a, ok := l.state.UidCache.Lookup(r.uid); ok {
			r.reply <- findReply{Actor: a}
			return nil, false
		}
		a, err := l.state.ActorIndex.FindByUid(r.uid)
		if err != nil {
			a, err = l.cb.FindUid(r.uid, l.state.UserState)
		}
		if err == nil {
			l.state.UidCache.Insert(a)
		}
		r.reply <- findReply{Actor: a, Err: err}

	case reqRegisterActor:
		if !l.state.IsLeader {
			r.reply <- registerReply{Err: cluster.NewError(cluster.LeaderNotFound, "")}
			return nil, false
		}
		if r.actor.Service != l.state.ServiceID {
			r.reply <- registerReply{Err: cluster.NewError(cluster.InvalidService, string(r.actor.Service))}
			return nil, false
		}
		err := l.state.ActorIndex.Register(r.actor)
		if err == nil {
			l.state.UidCache.Insert(r.actor)
		}
		r.reply <- registerReply{LeaderHost: l.state.Self, Err: err}

	case reqRegisterFollower:
		if !l.state.IsLeader {
			nlog.Warningf("master %s: register_follower from %s dropped (not leader)", l.state.ServiceID, r.node)
			r.reply <- cluster.NewError(cluster.LeaderNotFound, "")
			return nil, false
		}
		l.state.Followers[r.node] = r.host
		r.reply <- nil

	case reqOtherIsLeader:
		return ErrTerminated, true

	case reqCheckLeader:
		if l.tick() {
			return ErrTerminated, true
		}

	case reqCall:
		reply, err := l.cb.HandleCall(l.state.UserState, r.body)
		r.reply <- callReply{Reply: reply, Err: err}

	case reqCast:
		l.cb.HandleCast(l.state.UserState, r.body)
	}
	return nil, false
}
