package master

import (
	"time"

	"github.com/NVIDIA/aismaster/cluster"
	"github.com/NVIDIA/aismaster/cmn"
)

// WithLeaderRetry retries fn up to cmn.Rom.RetryMax times, backing off
// cmn.Rom.RetryBackoff between attempts, but only when fn fails with
// leader_not_found - a stale client still pointed at a leader that has since
// stepped down. Any other error is returned immediately. Intended to wrap
// FindActorByName/FindActorByUid/
// RegisterActor calls across the brief window a leadership change can leave
// no leader registered.
func WithLeaderRetry[T any](fn func() (T, error)) (T, error) {
	var (
		zero T
		err  error
	)
	maxAttempts := cmn.Rom.RetryMax()
	for attempt := 0; attempt <= maxAttempts; attempt++ {
		var v T
		v, err = fn()
		if err == nil {
			return v, nil
		}
		if !cluster.IsKind(err, cluster.LeaderNotFound) {
			return zero, err
		}
		if attempt < maxAttempts {
			time.Sleep(cmn.Rom.RetryBackoff())
		}
	}
	return zero, err
}
