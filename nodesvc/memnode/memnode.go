// Package memnode is an in-memory iface.NodeService, standing in for a real
// node membership source in tests and single-process deployments. Grounded
// on a meta.Smap in-memory map pattern (core/meta/smap.go): the node map is
// updated in place under a mutex, and every change pushes a fresh copy of it
// to listeners.
package memnode

import (
	"sync"

	"github.com/NVIDIA/aismaster/cluster"
)

type sub struct {
	id uint64
	f  func(map[cluster.NodeId]cluster.NodeInfo)
}

type Service struct {
	mu      sync.Mutex
	nodes   map[cluster.NodeId]cluster.NodeInfo
	subs    []*sub
	subSeq  uint64
}

func New() *Service {
	return &Service{nodes: make(map[cluster.NodeId]cluster.NodeInfo)}
}

func (s *Service) Subscribe(onUpdate func(map[cluster.NodeId]cluster.NodeInfo)) func() {
	s.mu.Lock()
	s.subSeq++
	id := s.subSeq
	s.subs = append(s.subs, &sub{id: id, f: onUpdate})
	snap := s.snapshotLocked()
	s.mu.Unlock()
	onUpdate(snap)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sb := range s.subs {
			if sb.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

func (s *Service) snapshotLocked() map[cluster.NodeId]cluster.NodeInfo {
	out := make(map[cluster.NodeId]cluster.NodeInfo, len(s.nodes))
	for k, v := range s.nodes {
		out[k] = v
	}
	return out
}

func (s *Service) publishLocked() {
	snap := s.snapshotLocked()
	for _, sb := range s.subs {
		sb.f(snap)
	}
}

// SetNode upserts a node's status and notifies subscribers, used by tests to
// drive PlacementReconciler scenarios (node joins, goes down, recovers).
func (s *Service) SetNode(id cluster.NodeId, status cluster.NodeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[id] = cluster.NodeInfo{ID: id, Status: status}
	s.publishLocked()
}

func (s *Service) RemoveNode(id cluster.NodeId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
	s.publishLocked()
}
