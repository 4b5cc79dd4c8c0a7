package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn"
	"github.com/NVIDIA/aismaster/cmn/nlog"
	"github.com/gorilla/mux"
)

const (
	pathKeepalive = "/v1/keepalive"

	// defaultKeepaliveInterval is how often KeepaliveReporter announces self.
	defaultKeepaliveInterval = 3 * time.Second

	// defaultStaleAfter is how long a host may go without a keepalive before
	// KeepaliveMonitor declares it dead - long enough to absorb a couple of
	// missed beats at defaultKeepaliveInterval, short enough that ActorIndex/
	// UidCache eviction and leader re-claim (elect/leader.go's Deaths
	// channel) still happen promptly.
	defaultStaleAfter = 15 * time.Second

	defaultPollInterval = 2 * time.Second
)

// KeepaliveMonitor is the production cluster.Monitor backend anticipated by
// cluster/actorindex.go's doc comment: "a Transport
// implementation may back this with keepalives instead of first-class
// monitoring." Every node process periodically POSTs its own Host here
// (KeepaliveReporter does the pushing), matching the keepalive-push idiom
// transport/runtime.go's StatusHub already uses for instance-status reports.
// Watch polls the last-seen map on an interval rather than driving one
// goroutine per beat, since a single process may be watching many hosts at
// once (every ActorIndex entry, every UidCache entry, the believed leader).
type KeepaliveMonitor struct {
	staleAfter   time.Duration
	pollInterval time.Duration

	mu       sync.Mutex
	lastSeen map[cluster.Host]time.Time
}

func NewKeepaliveMonitor() *KeepaliveMonitor {
	return NewKeepaliveMonitorWithTimings(defaultStaleAfter, defaultPollInterval)
}

// NewKeepaliveMonitorWithTimings is NewKeepaliveMonitor with explicit
// staleAfter/pollInterval, for tests that can't afford to wait out the
// production defaults.
func NewKeepaliveMonitorWithTimings(staleAfter, pollInterval time.Duration) *KeepaliveMonitor {
	return &KeepaliveMonitor{
		staleAfter:   staleAfter,
		pollInterval: pollInterval,
		lastSeen:     make(map[cluster.Host]time.Time),
	}
}

func (m *KeepaliveMonitor) RegisterHandlers(r *mux.Router) {
	r.HandleFunc(pathKeepalive, m.handleKeepalive).Methods(http.MethodPost)
}

type keepaliveReq struct {
	Host wireHost `json:"host"`
}

func (m *KeepaliveMonitor) handleKeepalive(w http.ResponseWriter, r *http.Request) {
	var req keepaliveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	m.lastSeen[fromWireHost(req.Host)] = time.Now()
	m.mu.Unlock()
}

// Watch satisfies cluster.Monitor: died fires once host has gone staleAfter
// without a keepalive being recorded for it. A host never seen before is
// watched starting from the moment of the call rather than presumed already
// dead - the caller's own registration RPC and this host's very first
// keepalive race, and declaring it dead immediately would be spurious.
func (m *KeepaliveMonitor) Watch(host cluster.Host) (died <-chan struct{}, cancel func()) {
	d := make(chan struct{})
	stop := make(chan struct{})
	var stopOnce sync.Once

	m.mu.Lock()
	if _, ok := m.lastSeen[host]; !ok {
		m.lastSeen[host] = time.Now()
	}
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.mu.Lock()
				seen, ok := m.lastSeen[host]
				m.mu.Unlock()
				if !ok || time.Since(seen) > m.staleAfter {
					close(d)
					return
				}
			}
		}
	}()

	return d, func() { stopOnce.Do(func() { close(stop) }) }
}

// KeepaliveReporter is the push side of the same idiom: each node process
// runs one, announcing its own Host to whatever process currently runs
// KeepaliveMonitor so every other node's Watch on it stays satisfied.
type KeepaliveReporter struct {
	self     cluster.Host
	resolve  func() (string, bool) // resolves the current monitor URL; may change across a leader handoff
	interval time.Duration
}

func NewKeepaliveReporter(self cluster.Host, resolve func() (string, bool)) *KeepaliveReporter {
	return NewKeepaliveReporterWithInterval(self, resolve, defaultKeepaliveInterval)
}

// NewKeepaliveReporterWithInterval is NewKeepaliveReporter with an explicit
// beat interval, for tests pairing against a KeepaliveMonitor built with
// NewKeepaliveMonitorWithTimings.
func NewKeepaliveReporterWithInterval(self cluster.Host, resolve func() (string, bool), interval time.Duration) *KeepaliveReporter {
	return &KeepaliveReporter{self: self, resolve: resolve, interval: interval}
}

// Run beats on a ticker until ctx is done; callers normally launch it once
// per process in its own goroutine.
func (r *KeepaliveReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.beat(ctx)
		}
	}
}

func (r *KeepaliveReporter) beat(ctx context.Context) {
	url, ok := r.resolve()
	if !ok {
		return
	}
	body, err := json.Marshal(keepaliveReq{Host: toWireHost(r.self)})
	if err != nil {
		return
	}
	rp := AllocRp()
	defer FreeRp(rp)
	rp.BaseParams = NewBaseParams(url)
	rp.BaseParams.Method = http.MethodPost
	rp.Path = pathKeepalive
	rp.Body = body

	cctx, cancel := context.WithTimeout(ctx, cmn.Rom.RPCTimeout())
	defer cancel()
	if err := rp.DoRequest(cctx); err != nil {
		nlog.Warningf("transport: keepalive beat to %s failed: %v", url, err)
	}
}
