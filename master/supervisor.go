package master

import (
	"sync"
	"time"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn/nlog"
)

// RestartPolicy bounds how many times a child may crash-restart within a
// sliding window before the supervisor gives up on it - a standard
// one-for-one supervisor with restart intensity bounded, e.g. 10 restarts
// in 60s before giving up.
type RestartPolicy struct {
	MaxRestarts int
	Window      time.Duration
}

func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{MaxRestarts: 10, Window: time.Minute}
}

// Factory builds a fresh Loop for one restart attempt of a service - called
// anew every restart, so each incarnation gets its own NodeEpoch-derived
// Claimant and starts as a follower regardless of how its predecessor ended.
type Factory func() *Loop

// RestartTracker observes restart counts per service, e.g. to back a
// prometheus counter distinguishing repeated crash-restart loops from
// ordinary leader handoffs.
type RestartTracker interface {
	OnRestart(service cluster.ServiceId)
	OnGiveUp(service cluster.ServiceId)
}

// Supervisor is MasterSupervisor (C6): one child Loop per configured
// service, restarted one-for-one on exit. Grounded on the
// xaction/xreg registry idiom of re-running a fresh xaction on abort,
// generalized to OTP-style bounded-intensity one-for-one supervision.
type Supervisor struct {
	policy  RestartPolicy
	tracker RestartTracker

	mu       sync.Mutex
	children map[cluster.ServiceId]*child
}

type child struct {
	factory  Factory
	restarts []time.Time
	loop     *Loop
	giveUp   bool
}

func NewSupervisor(policy RestartPolicy, tracker RestartTracker) *Supervisor {
	return &Supervisor{policy: policy, tracker: tracker, children: make(map[cluster.ServiceId]*child)}
}

// Start launches one Loop for serviceID via factory, and keeps restarting it
// on exit (one-for-one) until Stop is called or the restart budget given by
// RestartPolicy is exhausted.
func (s *Supervisor) Start(serviceID cluster.ServiceId, factory Factory) {
	c := &child{factory: factory}
	s.mu.Lock()
	s.children[serviceID] = c
	s.mu.Unlock()
	go s.supervise(serviceID, c)
}

func (s *Supervisor) supervise(serviceID cluster.ServiceId, c *child) {
	for {
		s.mu.Lock()
		if c.giveUp {
			s.mu.Unlock()
			return
		}
		loop := c.factory()
		c.loop = loop
		s.mu.Unlock()

		loop.Run() // blocks until this incarnation terminates

		s.mu.Lock()
		now := time.Now()
		c.restarts = pruneBefore(append(c.restarts, now), now.Add(-s.policy.Window))
		exceeded := len(c.restarts) > s.policy.MaxRestarts
		if exceeded {
			c.giveUp = true
		}
		giveUp := c.giveUp
		s.mu.Unlock()

		if s.tracker != nil {
			if exceeded {
				s.tracker.OnGiveUp(serviceID)
			} else if !giveUp {
				s.tracker.OnRestart(serviceID)
			}
		}

		if exceeded {
			nlog.Errorf("master supervisor: %s exceeded %d restarts in %s, giving up",
				serviceID, s.policy.MaxRestarts, s.policy.Window)
			return
		}
		if giveUp {
			return
		}
	}
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}

// Stop terminates serviceID's currently running Loop, if any, and prevents
// further restarts.
func (s *Supervisor) Stop(serviceID cluster.ServiceId) {
	s.mu.Lock()
	c, ok := s.children[serviceID]
	var loop *Loop
	if ok {
		c.giveUp = true
		loop = c.loop
	}
	s.mu.Unlock()
	if loop != nil {
		loop.Stop()
	}
}

// Loop returns the currently running Loop for serviceID, if any - used by
// callers that go through the supervisor rather than holding a direct
// reference (a reference taken before a restart becomes stale once Done()
// closes; re-fetch through here instead of caching it across restarts).
func (s *Supervisor) Loop(serviceID cluster.ServiceId) (*Loop, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.children[serviceID]
	if !ok || c.loop == nil {
		return nil, false
	}
	return c.loop, true
}
