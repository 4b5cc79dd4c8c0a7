package transport

import "github.com/gorilla/mux"

// NewRouter mounts the name-registry, status-push, master-peer,
// master-client, and keepalive handlers onto one gorilla/mux router - the
// single HTTP server a node process runs, regardless of how many services'
// MasterLoop incarnations it hosts. Any of the five servers may be nil (e.g.
// a node that never runs the cluster-global name registry still serves
// status push, peer RPCs, client RPCs, and keepalives).
func NewRouter(reg *NameRegistryServer, status *StatusHub, peers *MasterPeerServer, clients *MasterClientServer, mon *KeepaliveMonitor) *mux.Router {
	r := mux.NewRouter()
	if reg != nil {
		reg.RegisterHandlers(r)
	}
	if status != nil {
		status.RegisterHandlers(r)
	}
	if peers != nil {
		peers.RegisterHandlers(r)
	}
	if clients != nil {
		clients.RegisterHandlers(r)
	}
	if mon != nil {
		mon.RegisterHandlers(r)
	}
	return r
}
