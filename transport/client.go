package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/elect"
	"github.com/gorilla/mux"
)

const (
	pathMasterGetInfo       = "/v1/master/get_info"
	pathMasterStopService   = "/v1/master/stop_service"
	pathMasterFindByName    = "/v1/master/find_actor_by_name"
	pathMasterFindByUid     = "/v1/master/find_actor_by_uid"
	pathMasterRegisterActor = "/v1/master/register_actor"
)

// MasterClient is the subset of master.Loop's public API a remote caller -
// an actor hosted on any node other than the current leader's - needs to
// find/register itself and read back cluster state. *master.Loop satisfies
// it structurally, the same way MasterPeer does, so transport never imports
// master.
type MasterClient interface {
	GetInfo() cluster.ServiceSnapshot
	StopService() error
	FindActorByName(service cluster.ServiceId, key cluster.NameKey) (cluster.ActorId, error)
	FindActorByUid(uid string) (cluster.ActorId, error)
	RegisterActor(actor cluster.ActorId) (cluster.Host, error)
}

// MasterClientLookup resolves the locally-running Loop for a service, e.g.
// master.Supervisor.Loop.
type MasterClientLookup func(service cluster.ServiceId) (MasterClient, bool)

// MasterClientServer routes inbound get_info/stop_service/find_actor_by_name/
// find_actor_by_uid/register_actor RPCs to whichever locally-supervised Loop
// owns the named service - the client-facing counterpart of
// MasterPeerServer's master-to-master routing. Every response is 200 OK
// carrying either a result or a wireErr envelope, so a domain error (e.g.
// leader_not_found) survives the round trip as a typed cluster.Error rather
// than a bare HTTP status.
type MasterClientServer struct {
	lookup MasterClientLookup
}

func NewMasterClientServer(lookup MasterClientLookup) *MasterClientServer {
	return &MasterClientServer{lookup: lookup}
}

func (s *MasterClientServer) RegisterHandlers(r *mux.Router) {
	r.HandleFunc(pathMasterGetInfo, s.handleGetInfo).Methods(http.MethodGet)
	r.HandleFunc(pathMasterStopService, s.handleStopService).Methods(http.MethodPost)
	r.HandleFunc(pathMasterFindByName, s.handleFindByName).Methods(http.MethodPost)
	r.HandleFunc(pathMasterFindByUid, s.handleFindByUid).Methods(http.MethodPost)
	r.HandleFunc(pathMasterRegisterActor, s.handleRegisterActor).Methods(http.MethodPost)
}

type wireErr struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func toWireErr(err error) *wireErr {
	if err == nil {
		return nil
	}
	if e, ok := err.(*cluster.Error); ok {
		return &wireErr{Kind: string(e.Kind), Detail: e.Detail}
	}
	return &wireErr{Kind: string(cluster.RPCError), Detail: err.Error()}
}

func fromWireErr(w *wireErr) error {
	if w == nil {
		return nil
	}
	return cluster.NewError(cluster.Kind(w.Kind), w.Detail)
}

func unknownService(service cluster.ServiceId) error {
	return cluster.NewError(cluster.InvalidService, "unknown service "+string(service))
}

type wireActorId struct {
	Service string   `json:"service"`
	Class   string   `json:"class"`
	Name    string   `json:"name"`
	Uid     string   `json:"uid"`
	Host    wireHost `json:"host"`
}

func toWireActorId(a cluster.ActorId) wireActorId {
	return wireActorId{Service: string(a.Service), Class: a.Class, Name: a.Name, Uid: a.Uid, Host: toWireHost(a.Host)}
}

func fromWireActorId(w wireActorId) cluster.ActorId {
	return cluster.ActorId{Service: cluster.ServiceId(w.Service), Class: w.Class, Name: w.Name, Uid: w.Uid, Host: fromWireHost(w.Host)}
}

type wireNodeInfo struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
}

type wireInstanceStatus struct {
	Node        string `json:"node"`
	VersionHash string `json:"version_hash"`
}

type wireInfo struct {
	ServiceID  string                         `json:"service_id"`
	IsLeader   bool                           `json:"is_leader"`
	LeaderHost wireHost                       `json:"leader_host"`
	Nodes      map[string]wireNodeInfo        `json:"nodes"`
	Instances  map[string]wireInstanceStatus  `json:"instances"`
	Followers  map[string]wireHost            `json:"followers"`
}

func toWireInfo(info cluster.ServiceSnapshot) wireInfo {
	nodes := make(map[string]wireNodeInfo, len(info.Nodes))
	for k, v := range info.Nodes {
		nodes[string(k)] = wireNodeInfo{ID: string(v.ID), Status: int(v.Status)}
	}
	instances := make(map[string]wireInstanceStatus, len(info.Instances))
	for k, v := range info.Instances {
		instances[string(k)] = wireInstanceStatus{Node: string(v.Node), VersionHash: v.VersionHash}
	}
	followers := make(map[string]wireHost, len(info.Followers))
	for k, v := range info.Followers {
		followers[string(k)] = toWireHost(v)
	}
	return wireInfo{
		ServiceID:  string(info.ServiceID),
		IsLeader:   info.IsLeader,
		LeaderHost: toWireHost(info.LeaderHost),
		Nodes:      nodes,
		Instances:  instances,
		Followers:  followers,
	}
}

func fromWireInfo(w wireInfo) cluster.ServiceSnapshot {
	nodes := make(map[cluster.NodeId]cluster.NodeInfo, len(w.Nodes))
	for k, v := range w.Nodes {
		nodes[cluster.NodeId(k)] = cluster.NodeInfo{ID: cluster.NodeId(v.ID), Status: cluster.NodeStatus(v.Status)}
	}
	instances := make(map[cluster.NodeId]cluster.InstanceStatus, len(w.Instances))
	for k, v := range w.Instances {
		instances[cluster.NodeId(k)] = cluster.InstanceStatus{Node: cluster.NodeId(v.Node), VersionHash: v.VersionHash}
	}
	followers := make(map[cluster.NodeId]cluster.Host, len(w.Followers))
	for k, v := range w.Followers {
		followers[cluster.NodeId(k)] = fromWireHost(v)
	}
	return cluster.ServiceSnapshot{
		ServiceID:  cluster.ServiceId(w.ServiceID),
		IsLeader:   w.IsLeader,
		LeaderHost: fromWireHost(w.LeaderHost),
		Nodes:      nodes,
		Instances:  instances,
		Followers:  followers,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type getInfoResp struct {
	Info wireInfo `json:"info"`
	Err  *wireErr `json:"err,omitempty"`
}

func (s *MasterClientServer) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	service := cluster.ServiceId(r.URL.Query().Get("service"))
	peer, ok := s.lookup(service)
	if !ok {
		writeJSON(w, getInfoResp{Err: toWireErr(unknownService(service))})
		return
	}
	writeJSON(w, getInfoResp{Info: toWireInfo(peer.GetInfo())})
}

type serviceOnlyReq struct {
	Service cluster.ServiceId `json:"service"`
}

type stopServiceResp struct {
	Err *wireErr `json:"err,omitempty"`
}

func (s *MasterClientServer) handleStopService(w http.ResponseWriter, r *http.Request) {
	var req serviceOnlyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	peer, ok := s.lookup(req.Service)
	if !ok {
		writeJSON(w, stopServiceResp{Err: toWireErr(unknownService(req.Service))})
		return
	}
	writeJSON(w, stopServiceResp{Err: toWireErr(peer.StopService())})
}

type findByNameReq struct {
	Service cluster.ServiceId `json:"service"`
	Class   string            `json:"class"`
	Name    string            `json:"name"`
}

type findActorResp struct {
	Actor wireActorId `json:"actor"`
	Err   *wireErr    `json:"err,omitempty"`
}

func (s *MasterClientServer) handleFindByName(w http.ResponseWriter, r *http.Request) {
	var req findByNameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	peer, ok := s.lookup(req.Service)
	if !ok {
		writeJSON(w, findActorResp{Err: toWireErr(unknownService(req.Service))})
		return
	}
	a, err := peer.FindActorByName(req.Service, cluster.NameKey{Class: req.Class, Name: req.Name})
	writeJSON(w, findActorResp{Actor: toWireActorId(a), Err: toWireErr(err)})
}

type findByUidReq struct {
	Service cluster.ServiceId `json:"service"`
	Uid     string            `json:"uid"`
}

func (s *MasterClientServer) handleFindByUid(w http.ResponseWriter, r *http.Request) {
	var req findByUidReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	peer, ok := s.lookup(req.Service)
	if !ok {
		writeJSON(w, findActorResp{Err: toWireErr(unknownService(req.Service))})
		return
	}
	a, err := peer.FindActorByUid(req.Uid)
	writeJSON(w, findActorResp{Actor: toWireActorId(a), Err: toWireErr(err)})
}

type registerActorReq struct {
	Service cluster.ServiceId `json:"service"`
	Actor   wireActorId       `json:"actor"`
}

type registerActorResp struct {
	Host wireHost `json:"host"`
	Err  *wireErr `json:"err,omitempty"`
}

func (s *MasterClientServer) handleRegisterActor(w http.ResponseWriter, r *http.Request) {
	var req registerActorReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	peer, ok := s.lookup(req.Service)
	if !ok {
		writeJSON(w, registerActorResp{Err: toWireErr(unknownService(req.Service))})
		return
	}
	host, err := peer.RegisterActor(fromWireActorId(req.Actor))
	writeJSON(w, registerActorResp{Host: toWireHost(host), Err: toWireErr(err)})
}

// MasterClientProxy is the client-side MasterClient analogue of
// MasterPeerClient: before every call it resolves the currently claimed
// leader through the same cluster-global name registry LeaderElector claims
// against, then issues one HTTP RPC to that host. It reports
// cluster.LeaderNotFound - the same Kind master.WithLeaderRetry watches for
// - whenever no leader is currently claimed, so a caller on any node can
// wrap every method in WithLeaderRetry and ride out a leadership handoff.
type MasterClientProxy struct {
	resolve  NodeURLResolver
	registry elect.NameRegistry
}

func NewMasterClientProxy(resolve NodeURLResolver, registry elect.NameRegistry) *MasterClientProxy {
	return &MasterClientProxy{resolve: resolve, registry: registry}
}

func (c *MasterClientProxy) leaderBase(service cluster.ServiceId) (BaseParams, error) {
	holder, ok := c.registry.Current(elect.LeaderName(service))
	if !ok {
		return BaseParams{}, cluster.NewError(cluster.LeaderNotFound, string(service))
	}
	url, ok := c.resolve(holder.Host.Node)
	if !ok {
		return BaseParams{}, cluster.NewError(cluster.RPCError, "no address for node "+string(holder.Host.Node))
	}
	return NewBaseParams(url), nil
}

func (c *MasterClientProxy) GetInfo(service cluster.ServiceId) (cluster.ServiceSnapshot, error) {
	bp, err := c.leaderBase(service)
	if err != nil {
		return cluster.ServiceSnapshot{}, err
	}
	bp.Method = http.MethodGet
	rp := AllocRp()
	defer FreeRp(rp)
	rp.BaseParams = bp
	rp.Path = pathMasterGetInfo
	rp.Query = url.Values{"service": {string(service)}}

	var resp getInfoResp
	ctx, cancel := rpcTimeoutCtx()
	defer cancel()
	if err := rp.DoReqAny(ctx, &resp); err != nil {
		return cluster.ServiceSnapshot{}, err
	}
	if resp.Err != nil {
		return cluster.ServiceSnapshot{}, fromWireErr(resp.Err)
	}
	return fromWireInfo(resp.Info), nil
}

func (c *MasterClientProxy) StopService(service cluster.ServiceId) error {
	bp, err := c.leaderBase(service)
	if err != nil {
		return err
	}
	body, err := json.Marshal(serviceOnlyReq{Service: service})
	if err != nil {
		return err
	}
	bp.Method = http.MethodPost
	rp := AllocRp()
	defer FreeRp(rp)
	rp.BaseParams = bp
	rp.Path = pathMasterStopService
	rp.Body = body

	var resp stopServiceResp
	ctx, cancel := rpcTimeoutCtx()
	defer cancel()
	if err := rp.DoReqAny(ctx, &resp); err != nil {
		return err
	}
	return fromWireErr(resp.Err)
}

func (c *MasterClientProxy) FindActorByName(service cluster.ServiceId, key cluster.NameKey) (cluster.ActorId, error) {
	bp, err := c.leaderBase(service)
	if err != nil {
		return cluster.ActorId{}, err
	}
	body, err := json.Marshal(findByNameReq{Service: service, Class: key.Class, Name: key.Name})
	if err != nil {
		return cluster.ActorId{}, err
	}
	bp.Method = http.MethodPost
	rp := AllocRp()
	defer FreeRp(rp)
	rp.BaseParams = bp
	rp.Path = pathMasterFindByName
	rp.Body = body

	var resp findActorResp
	ctx, cancel := rpcTimeoutCtx()
	defer cancel()
	if err := rp.DoReqAny(ctx, &resp); err != nil {
		return cluster.ActorId{}, err
	}
	if resp.Err != nil {
		return cluster.ActorId{}, fromWireErr(resp.Err)
	}
	return fromWireActorId(resp.Actor), nil
}

func (c *MasterClientProxy) FindActorByUid(service cluster.ServiceId, uid string) (cluster.ActorId, error) {
	bp, err := c.leaderBase(service)
	if err != nil {
		return cluster.ActorId{}, err
	}
	body, err := json.Marshal(findByUidReq{Service: service, Uid: uid})
	if err != nil {
		return cluster.ActorId{}, err
	}
	bp.Method = http.MethodPost
	rp := AllocRp()
	defer FreeRp(rp)
	rp.BaseParams = bp
	rp.Path = pathMasterFindByUid
	rp.Body = body

	var resp findActorResp
	ctx, cancel := rpcTimeoutCtx()
	defer cancel()
	if err := rp.DoReqAny(ctx, &resp); err != nil {
		return cluster.ActorId{}, err
	}
	if resp.Err != nil {
		return cluster.ActorId{}, fromWireErr(resp.Err)
	}
	return fromWireActorId(resp.Actor), nil
}

func (c *MasterClientProxy) RegisterActor(actor cluster.ActorId) (cluster.Host, error) {
	bp, err := c.leaderBase(actor.Service)
	if err != nil {
		return cluster.Host{}, err
	}
	body, err := json.Marshal(registerActorReq{Service: actor.Service, Actor: toWireActorId(actor)})
	if err != nil {
		return cluster.Host{}, err
	}
	bp.Method = http.MethodPost
	rp := AllocRp()
	defer FreeRp(rp)
	rp.BaseParams = bp
	rp.Path = pathMasterRegisterActor
	rp.Body = body

	var resp registerActorResp
	ctx, cancel := rpcTimeoutCtx()
	defer cancel()
	if err := rp.DoReqAny(ctx, &resp); err != nil {
		return cluster.Host{}, err
	}
	if resp.Err != nil {
		return cluster.Host{}, fromWireErr(resp.Err)
	}
	return fromWireHost(resp.Host), nil
}
