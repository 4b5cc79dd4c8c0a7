package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn/cos"
	"github.com/gorilla/mux"
)

const (
	pathSvcStart   = "/v1/service/start"
	pathSvcStop    = "/v1/service/stop"
	pathSvcUpdate  = "/v1/service/update"
	pathSvcReplace = "/v1/service/replace"
	pathSvcStatus  = "/v1/service/status"
)

// NodeURLResolver maps a NodeId to the base URL of that node's ServiceRuntime
// endpoint; it is supplied by whoever wires the tree together (neither
// nodesvc implementation provides one).
type NodeURLResolver func(cluster.NodeId) (string, bool)

// RemoteServiceRuntime is the HTTP client-side iface.ServiceRuntime: every
// start/stop/update/replace PlacementReconciler dispatches becomes one
// detached outbound RPC, using the same pooled ReqParams as the name
// registry client.
type RemoteServiceRuntime struct {
	resolve NodeURLResolver
	*StatusHub
}

func NewRemoteServiceRuntime(resolve NodeURLResolver) *RemoteServiceRuntime {
	return &RemoteServiceRuntime{resolve: resolve, StatusHub: NewStatusHub()}
}

func (rt *RemoteServiceRuntime) doSpec(ctx context.Context, path string, node cluster.NodeId, spec cluster.ServiceSpec) error {
	url, ok := rt.resolve(node)
	if !ok {
		return cluster.NewError(cluster.RPCError, "no address for node "+string(node))
	}
	rp := AllocRp()
	defer FreeRp(rp)
	rp.BaseParams = NewBaseParams(url)
	rp.BaseParams.Method = http.MethodPost
	rp.Path = path
	rp.Body = cos.MustMarshal(spec)
	return rp.DoRequest(ctx)
}

func (rt *RemoteServiceRuntime) Start(ctx context.Context, node cluster.NodeId, spec cluster.ServiceSpec) error {
	return rt.doSpec(ctx, pathSvcStart, node, spec)
}

func (rt *RemoteServiceRuntime) Update(ctx context.Context, node cluster.NodeId, spec cluster.ServiceSpec) error {
	return rt.doSpec(ctx, pathSvcUpdate, node, spec)
}

func (rt *RemoteServiceRuntime) Replace(ctx context.Context, node cluster.NodeId, spec cluster.ServiceSpec) error {
	return rt.doSpec(ctx, pathSvcReplace, node, spec)
}

func (rt *RemoteServiceRuntime) Stop(ctx context.Context, node cluster.NodeId, service cluster.ServiceId) error {
	url, ok := rt.resolve(node)
	if !ok {
		return cluster.NewError(cluster.RPCError, "no address for node "+string(node))
	}
	rp := AllocRp()
	defer FreeRp(rp)
	rp.BaseParams = NewBaseParams(url)
	rp.BaseParams.Method = http.MethodPost
	rp.Path = pathSvcStop
	rp.Body = cos.MustMarshal(cluster.ServiceSpec{ServiceId: service})
	return rp.DoRequest(ctx)
}

// StatusHub is the server side of instance-status push: nodes POST
// their running version to the leader instead of being polled, matching a
// keepalive-push idiom (ais/htrun.go sendKeepalive) generalized
// to carry a version hash instead of a heartbeat.
type StatusHub struct {
	mu   sync.RWMutex
	subs map[cluster.ServiceId][]*statusSub
}

type statusSub struct {
	id uint64
	cb func(cluster.InstanceStatus)
}

func NewStatusHub() *StatusHub {
	return &StatusHub{subs: make(map[cluster.ServiceId][]*statusSub)}
}

var statusSubSeq uint64

func (h *StatusHub) SubscribeStatus(service cluster.ServiceId, onStatus func(cluster.InstanceStatus)) func() {
	statusSubSeq++
	sub := &statusSub{id: statusSubSeq, cb: onStatus}
	h.mu.Lock()
	h.subs[service] = append(h.subs[service], sub)
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subs[service]
		for i, s := range subs {
			if s.id == sub.id {
				h.subs[service] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// RegisterHandlers mounts the inbound status-push endpoint; a reverse-proxy
// or each node directly POSTs here.
func (h *StatusHub) RegisterHandlers(r *mux.Router) {
	r.HandleFunc(pathSvcStatus, h.handleStatus).Methods(http.MethodPost)
}

type statusPush struct {
	Service cluster.ServiceId `json:"service"`
	Status  cluster.InstanceStatus `json:"status"`
}

func (h *StatusHub) handleStatus(w http.ResponseWriter, r *http.Request) {
	var push statusPush
	if err := json.NewDecoder(r.Body).Decode(&push); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.RLock()
	subs := append([]*statusSub(nil), h.subs[push.Service]...)
	h.mu.RUnlock()
	for _, s := range subs {
		s.cb(push.Status)
	}
}
