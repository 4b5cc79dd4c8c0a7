// Package memconfig is an in-memory iface.ConfigStore for tests and
// single-process deployments.
package memconfig

import (
	"context"
	"sync"

	"github.com/NVIDIA/aismaster/cluster"
)

type Store struct {
	mu    sync.RWMutex
	specs map[cluster.ServiceId]cluster.ServiceSpec
}

func New() *Store {
	return &Store{specs: make(map[cluster.ServiceId]cluster.ServiceSpec)}
}

func (s *Store) Get(_ context.Context, service cluster.ServiceId) (cluster.ServiceSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[service]
	if !ok {
		return cluster.ServiceSpec{}, cluster.NewError(cluster.InvalidService, string(service))
	}
	return spec, nil
}

// Put installs or replaces service's spec - used by tests to drive a version
// bump and assert PlacementReconciler issues update RPCs.
func (s *Store) Put(spec cluster.ServiceSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[spec.ServiceId] = spec
}
