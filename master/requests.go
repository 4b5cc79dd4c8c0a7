package master

import "github.com/NVIDIA/aismaster/cluster"

// masterReq is the request surface carried over Loop.reqs -
// the single channel the run loop drains, matching a clientReq
// idiom (bench/http2's single-writer request queue) generalized to a typed
// union instead of one fixed struct shape.
type masterReq interface{ isMasterReq() }

type reqGetInfo struct{ reply chan Info }

func (reqGetInfo) isMasterReq() {}

type reqStopService struct{ reply chan error }

func (reqStopService) isMasterReq() {}

type findReply struct {
	Actor cluster.ActorId
	Err   error
}

type reqFindByName struct {
	service cluster.ServiceId
	key     cluster.NameKey
	reply   chan findReply
}

func (reqFindByName) isMasterReq() {}

type reqFindByUid struct {
	uid   string
	reply chan findReply
}

func (reqFindByUid) isMasterReq() {}

type registerReply struct {
	LeaderHost cluster.Host
	Err        error
}

type reqRegisterActor struct {
	actor cluster.ActorId
	reply chan registerReply
}

func (reqRegisterActor) isMasterReq() {}

type reqRegisterFollower struct {
	node  cluster.NodeId
	host  cluster.Host
	reply chan error
}

func (reqRegisterFollower) isMasterReq() {}

// reqOtherIsLeader drives orderly shutdown: the registry
// no longer agrees we're leader. No reply - the caller observes the Loop
// exiting via Done().
type reqOtherIsLeader struct{}

func (reqOtherIsLeader) isMasterReq() {}

// reqCheckLeader runs one LeaderElector tick immediately, in response to a
// peer's check_leader hint so we converge before our own next
// scheduled tick.
type reqCheckLeader struct{}

func (reqCheckLeader) isMasterReq() {}

type callReply struct {
	Reply any
	Err   error
}

type reqCall struct {
	body  any
	reply chan callReply
}

func (reqCall) isMasterReq() {}

type reqCast struct{ body any }

func (reqCast) isMasterReq() {}
