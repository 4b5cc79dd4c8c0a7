// Package k8snode implements iface.NodeService over Kubernetes Node and
// Lease informers: cluster membership is "whatever nodes the API server
// reports", and a node's health combines its NodeReady condition with
// whether its kubelet lease is still being renewed - a node whose API
// object looks Ready but whose lease has gone stale (kubelet wedged, or
// partitioned from the apiserver in a way that still lets a cached Node
// object linger) is treated as down rather than normal. Grounded on the
// own in-cluster client-go usage (cmn/k8s bootstrap package, deleted here as
// out of scope) and the shared-informer idiom used throughout client-go
// consumers.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package k8snode

import (
	"sync"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn/cos"
	"github.com/NVIDIA/aismaster/cmn/nlog"
)

const (
	resyncPeriod = 10 * time.Minute

	// leaseNamespace is where kubelet renews its per-node Lease object -
	// a fixed, well-known namespace across every cluster.
	leaseNamespace = "kube-node-lease"

	// leaseStaleAfter is roughly 4x kubelet's default lease renew interval
	// (10s): a Lease not renewed within this window is treated as a down
	// signal even if the Node object's last-observed condition is Ready.
	leaseStaleAfter = 40 * time.Second
)

// Service watches corev1.Node and coordinationv1.Lease objects and
// republishes a combined view as map[cluster.NodeId]cluster.NodeInfo on
// every add/update/delete of either, matching iface.NodeService's push
// contract.
type Service struct {
	clientset     kubernetes.Interface
	nodeInformer  cache.SharedIndexInformer
	leaseInformer cache.SharedIndexInformer

	mu         sync.Mutex
	nodeObjs   map[string]*corev1.Node // by Node.Name
	leaseRenew map[string]time.Time    // by Lease.Name (== node name), zero value: never renewed
	nodes      map[cluster.NodeId]cluster.NodeInfo
	subs       []func(map[cluster.NodeId]cluster.NodeInfo)

	stopCh chan struct{}
}

// New builds a Service against clientset, restricted to nodes matching
// fieldSelector, a Kubernetes field selector (pass
// fields.Everything().String() for no restriction).
// The Lease informer always watches the whole kube-node-lease namespace,
// unfiltered, since Lease objects carry no labels to select the same subset
// by.
func New(clientset kubernetes.Interface, fieldSelector string) *Service {
	nodeFactory := informers.NewSharedInformerFactoryWithOptions(clientset, resyncPeriod,
		informers.WithTweakListOptions(func(opts *metav1.ListOptions) {
			opts.FieldSelector = fieldSelector
		}),
	)
	leaseFactory := informers.NewSharedInformerFactoryWithOptions(clientset, resyncPeriod,
		informers.WithNamespace(leaseNamespace),
	)
	nodeInformer := nodeFactory.Core().V1().Nodes().Informer()
	leaseInformer := leaseFactory.Coordination().V1().Leases().Informer()

	s := &Service{
		clientset:     clientset,
		nodeInformer:  nodeInformer,
		leaseInformer: leaseInformer,
		nodeObjs:      make(map[string]*corev1.Node),
		leaseRenew:    make(map[string]time.Time),
		nodes:         make(map[cluster.NodeId]cluster.NodeInfo),
		stopCh:        make(chan struct{}),
	}
	nodeInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    func(obj any) { s.upsertNode(obj) },
		UpdateFunc: func(_, obj any) { s.upsertNode(obj) },
		DeleteFunc: func(obj any) { s.removeNode(obj) },
	})
	leaseInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    func(obj any) { s.upsertLease(obj) },
		UpdateFunc: func(_, obj any) { s.upsertLease(obj) },
		DeleteFunc: func(obj any) { s.removeLease(obj) },
	})
	return s
}

// Run starts both informers; blocks until stopped or either cache fails to
// sync.
func (s *Service) Run() {
	go s.nodeInformer.Run(s.stopCh)
	go s.leaseInformer.Run(s.stopCh)
	if !cache.WaitForCacheSync(s.stopCh, s.nodeInformer.HasSynced, s.leaseInformer.HasSynced) {
		nlog.Errorf("k8snode: failed to sync node/lease informer caches")
	}
}

func (s *Service) Stop() { close(s.stopCh) }

func (s *Service) Subscribe(onUpdate func(map[cluster.NodeId]cluster.NodeInfo)) func() {
	s.mu.Lock()
	s.subs = append(s.subs, onUpdate)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	onUpdate(snap)
	return func() {} // node-set subscriptions live for the master incarnation's lifetime
}

func (s *Service) snapshotLocked() map[cluster.NodeId]cluster.NodeInfo {
	out := make(map[cluster.NodeId]cluster.NodeInfo, len(s.nodes))
	for k, v := range s.nodes {
		out[k] = v
	}
	return out
}

// recomputeLocked re-derives name's NodeInfo from the last-seen Node object
// and Lease renewal time. Must be called with s.mu held. A no-op if the Node
// object itself has never been seen (e.g. a Lease arrived before its Node).
func (s *Service) recomputeLocked(name string) {
	node, ok := s.nodeObjs[name]
	if !ok {
		return
	}
	id := cluster.NodeId(cos.HashNodeID(node.Name))
	renew, seen := s.leaseRenew[name]
	leaseFresh := !seen || time.Since(renew) < leaseStaleAfter
	s.nodes[id] = cluster.NodeInfo{ID: id, Status: statusOf(node, leaseFresh)}
}

func (s *Service) publishLocked() (map[cluster.NodeId]cluster.NodeInfo, []func(map[cluster.NodeId]cluster.NodeInfo)) {
	snap := s.snapshotLocked()
	subs := append([]func(map[cluster.NodeId]cluster.NodeInfo){}, s.subs...)
	return snap, subs
}

func (s *Service) upsertNode(obj any) {
	node, ok := obj.(*corev1.Node)
	if !ok {
		return
	}
	s.mu.Lock()
	s.nodeObjs[node.Name] = node
	s.recomputeLocked(node.Name)
	snap, subs := s.publishLocked()
	s.mu.Unlock()

	for _, f := range subs {
		f(snap)
	}
}

func (s *Service) removeNode(obj any) {
	node, ok := obj.(*corev1.Node)
	if !ok {
		if tomb, ok := obj.(cache.DeletedFinalStateUnknown); ok {
			node, ok = tomb.Obj.(*corev1.Node)
			if !ok {
				return
			}
		} else {
			return
		}
	}
	id := cluster.NodeId(cos.HashNodeID(node.Name))

	s.mu.Lock()
	delete(s.nodeObjs, node.Name)
	delete(s.nodes, id)
	snap, subs := s.publishLocked()
	s.mu.Unlock()

	for _, f := range subs {
		f(snap)
	}
}

func (s *Service) upsertLease(obj any) {
	lease, ok := obj.(*coordinationv1.Lease)
	if !ok {
		return
	}
	var renew time.Time
	if lease.Spec.RenewTime != nil {
		renew = lease.Spec.RenewTime.Time
	}

	s.mu.Lock()
	s.leaseRenew[lease.Name] = renew
	s.recomputeLocked(lease.Name)
	snap, subs := s.publishLocked()
	s.mu.Unlock()

	for _, f := range subs {
		f(snap)
	}
}

func (s *Service) removeLease(obj any) {
	lease, ok := obj.(*coordinationv1.Lease)
	if !ok {
		if tomb, ok := obj.(cache.DeletedFinalStateUnknown); ok {
			lease, ok = tomb.Obj.(*coordinationv1.Lease)
			if !ok {
				return
			}
		} else {
			return
		}
	}

	s.mu.Lock()
	delete(s.leaseRenew, lease.Name)
	s.recomputeLocked(lease.Name)
	snap, subs := s.publishLocked()
	s.mu.Unlock()

	for _, f := range subs {
		f(snap)
	}
}

func statusOf(node *corev1.Node, leaseFresh bool) cluster.NodeStatus {
	if node.Spec.Unschedulable {
		return cluster.NodeOther
	}
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			if cond.Status == corev1.ConditionTrue && leaseFresh {
				return cluster.NodeNormal
			}
			return cluster.NodeDown
		}
	}
	return cluster.NodeOther
}
