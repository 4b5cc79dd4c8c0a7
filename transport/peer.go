package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn"
	"github.com/NVIDIA/aismaster/cmn/nlog"
	"github.com/gorilla/mux"
)

const (
	pathMasterRegisterFollower = "/v1/master/register_follower"
	pathMasterCheckLeader      = "/v1/master/check_leader"
)

// MasterPeer is the subset of master.Loop's public API a peer master RPC
// needs; *master.Loop satisfies it structurally so transport never imports
// master (avoiding the import cycle master -> transport -> master).
type MasterPeer interface {
	RegisterFollower(node cluster.NodeId, host cluster.Host) error
	HintCheckLeader()
}

// MasterLookup resolves the locally-running Loop for a service, e.g.
// master.Supervisor.Loop.
type MasterLookup func(service cluster.ServiceId) (MasterPeer, bool)

// MasterPeerServer routes inbound register_follower/check_leader RPCs to
// whichever locally-supervised Loop owns the named service.
type MasterPeerServer struct {
	lookup MasterLookup
}

func NewMasterPeerServer(lookup MasterLookup) *MasterPeerServer {
	return &MasterPeerServer{lookup: lookup}
}

func (s *MasterPeerServer) RegisterHandlers(r *mux.Router) {
	r.HandleFunc(pathMasterRegisterFollower, s.handleRegisterFollower).Methods(http.MethodPost)
	r.HandleFunc(pathMasterCheckLeader, s.handleCheckLeader).Methods(http.MethodPost)
}

type registerFollowerReq struct {
	Service cluster.ServiceId `json:"service"`
	Node    cluster.NodeId    `json:"node"`
	Host    wireHost          `json:"host"`
}

type wireHost struct {
	Node cluster.NodeId `json:"node"`
	PID  string         `json:"pid"`
}

func toWireHost(h cluster.Host) wireHost { return wireHost{Node: h.Node, PID: h.PID} }
func fromWireHost(w wireHost) cluster.Host { return cluster.Host{Node: w.Node, PID: w.PID} }

func (s *MasterPeerServer) handleRegisterFollower(w http.ResponseWriter, r *http.Request) {
	var req registerFollowerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	peer, ok := s.lookup(req.Service)
	if !ok {
		http.Error(w, "unknown service "+string(req.Service), http.StatusNotFound)
		return
	}
	if err := peer.RegisterFollower(req.Node, fromWireHost(req.Host)); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
}

type checkLeaderReq struct {
	Service cluster.ServiceId `json:"service"`
}

func (s *MasterPeerServer) handleCheckLeader(w http.ResponseWriter, r *http.Request) {
	var req checkLeaderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if peer, ok := s.lookup(req.Service); ok {
		peer.HintCheckLeader()
	}
}

// PeerLister reports the current set of node ids that may be running a peer
// master for a service, e.g. delegating to NodeService's latest snapshot.
type PeerLister func() []cluster.NodeId

// MasterPeerClient is the production iface.PeerTransport: register_follower
// is a single direct RPC to the believed leader; HintCheckLeader fans out to
// every peer node except self, detached, since the caller (LeaderElector.Tick,
// running inside the owning Loop's single-writer loop) must never block on
// peer RPCs.
type MasterPeerClient struct {
	resolve NodeURLResolver
	peers   PeerLister
	self    cluster.NodeId
}

func NewMasterPeerClient(resolve NodeURLResolver, peers PeerLister, self cluster.NodeId) *MasterPeerClient {
	return &MasterPeerClient{resolve: resolve, peers: peers, self: self}
}

func (c *MasterPeerClient) RegisterFollower(leader cluster.Host, service cluster.ServiceId, self cluster.Host) error {
	url, ok := c.resolve(leader.Node)
	if !ok {
		return cluster.NewError(cluster.RPCError, "no address for node "+string(leader.Node))
	}
	body, err := json.Marshal(registerFollowerReq{Service: service, Node: self.Node, Host: toWireHost(self)})
	if err != nil {
		return err
	}
	rp := AllocRp()
	defer FreeRp(rp)
	rp.BaseParams = NewBaseParams(url)
	rp.BaseParams.Method = http.MethodPost
	rp.Path = pathMasterRegisterFollower
	rp.Body = body
	ctx, cancel := rpcTimeoutCtx()
	defer cancel()
	return rp.DoRequest(ctx)
}

func (c *MasterPeerClient) HintCheckLeader(service cluster.ServiceId) {
	body, err := json.Marshal(checkLeaderReq{Service: service})
	if err != nil {
		return
	}
	for _, node := range c.peers() {
		if node == c.self {
			continue
		}
		url, ok := c.resolve(node)
		if !ok {
			continue
		}
		node, url := node, url
		go func() {
			rp := AllocRp()
			defer FreeRp(rp)
			rp.BaseParams = NewBaseParams(url)
			rp.BaseParams.Method = http.MethodPost
			rp.Path = pathMasterCheckLeader
			rp.Body = body
			ctx, cancel := rpcTimeoutCtx()
			defer cancel()
			if err := rp.DoRequest(ctx); err != nil {
				nlog.Warningf("transport: check_leader hint to %s failed: %v", node, err)
			}
		}()
	}
}

func rpcTimeoutCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cmn.Rom.RPCTimeout())
}
