package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn"
	"github.com/NVIDIA/aismaster/elect"
	"github.com/gorilla/mux"
)

const (
	pathClaim   = "/v1/leader/claim"
	pathCurrent = "/v1/leader/current"
	pathRelease = "/v1/leader/release"
)

// wireClaimant is the JSON-over-the-wire shape of an elect.Claimant; NodeEpoch
// and Host both flatten cleanly, so a single struct carries both directions.
type wireClaimant struct {
	Node      string `json:"node"`
	PID       string `json:"pid"`
	StartTime int64  `json:"start_time"`
	Tie       string `json:"tie"`
}

func toWire(c elect.Claimant) wireClaimant {
	return wireClaimant{
		Node:      string(c.Host.Node),
		PID:       c.Host.PID,
		StartTime: c.Epoch.StartTime,
		Tie:       c.Epoch.Tie,
	}
}

func fromWire(w wireClaimant) elect.Claimant {
	return elect.Claimant{
		Host:  cluster.Host{Node: cluster.NodeId(w.Node), PID: w.PID},
		Epoch: cluster.NodeEpoch{NodeID: cluster.NodeId(w.Node), StartTime: w.StartTime, Tie: w.Tie},
	}
}

// NameRegistryServer exposes an elect.MemRegistry as the cluster-global name
// registry every master incarnation's NameRegistry client talks to: the one
// actual cross-process synchronization point in the whole design. A real
// deployment runs exactly one of these (elected out-of-band, or colocated
// with a strongly consistent store); every LeaderElector remains agnostic to
// that choice behind the elect.NameRegistry interface.
type NameRegistryServer struct {
	reg *elect.MemRegistry
}

func NewNameRegistryServer(reg *elect.MemRegistry) *NameRegistryServer {
	return &NameRegistryServer{reg: reg}
}

func (s *NameRegistryServer) RegisterHandlers(r *mux.Router) {
	r.HandleFunc(pathClaim, s.handleClaim).Methods(http.MethodPost)
	r.HandleFunc(pathCurrent, s.handleCurrent).Methods(http.MethodGet)
	r.HandleFunc(pathRelease, s.handleRelease).Methods(http.MethodPost)
}

type claimReq struct {
	Name string       `json:"name"`
	Self wireClaimant `json:"self"`
}

type claimResp struct {
	Holder wireClaimant `json:"holder"`
	IsSelf bool         `json:"is_self"`
}

func (s *NameRegistryServer) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	holder, isSelf, err := s.reg.Claim(req.Name, fromWire(req.Self), elect.DefaultResolver)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(claimResp{Holder: toWire(holder), IsSelf: isSelf})
}

func (s *NameRegistryServer) handleCurrent(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	holder, ok := s.reg.Current(name)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(toWire(holder))
}

type releaseReq struct {
	Name string       `json:"name"`
	Self wireClaimant `json:"self"`
}

func (s *NameRegistryServer) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reg.Release(req.Name, fromWire(req.Self))
}

// RemoteNameRegistry is the client-side elect.NameRegistry implementation:
// every LeaderElector tick goes out over the wire to the one process running
// NameRegistryServer.
type RemoteNameRegistry struct {
	bp BaseParams
}

func NewRemoteNameRegistry(registryURL string) *RemoteNameRegistry {
	return &RemoteNameRegistry{bp: NewBaseParams(registryURL)}
}

func (c *RemoteNameRegistry) Claim(name string, self elect.Claimant, _ elect.Resolver) (elect.Claimant, bool, error) {
	body, err := json.Marshal(claimReq{Name: name, Self: toWire(self)})
	if err != nil {
		return elect.Claimant{}, false, err
	}
	bp := c.bp
	bp.Method = http.MethodPost
	rp := AllocRp()
	defer FreeRp(rp)
	rp.BaseParams = bp
	rp.Path = pathClaim
	rp.Body = body

	var resp claimResp
	ctx, cancel := timeoutCtx()
	defer cancel()
	if err := rp.DoReqAny(ctx, &resp); err != nil {
		return elect.Claimant{}, false, err
	}
	return fromWire(resp.Holder), resp.IsSelf, nil
}

// Release vacates name iff self currently holds it - called on orderly
// leader shutdown so a follower can claim it without waiting on a liveness
// timeout.
func (c *RemoteNameRegistry) Release(name string, self elect.Claimant) {
	body, err := json.Marshal(releaseReq{Name: name, Self: toWire(self)})
	if err != nil {
		return
	}
	bp := c.bp
	bp.Method = http.MethodPost
	rp := AllocRp()
	defer FreeRp(rp)
	rp.BaseParams = bp
	rp.Path = pathRelease
	rp.Body = body
	ctx, cancel := timeoutCtx()
	defer cancel()
	_ = rp.DoRequest(ctx)
}

func (c *RemoteNameRegistry) Current(name string) (elect.Claimant, bool) {
	bp := c.bp
	bp.Method = http.MethodGet
	rp := AllocRp()
	defer FreeRp(rp)
	rp.BaseParams = bp
	rp.Path = pathCurrent
	rp.Query = map[string][]string{"name": {name}}

	var w wireClaimant
	ctx, cancel := timeoutCtx()
	defer cancel()
	if err := rp.DoReqAny(ctx, &w); err != nil {
		return elect.Claimant{}, false
	}
	return fromWire(w), true
}

func timeoutCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cmn.Rom.ClientTimeout())
}
