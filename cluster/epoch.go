package cluster

import (
	"time"

	"github.com/NVIDIA/aismaster/cmn/cos"
)

// NewNodeEpoch computes this process incarnation's immutable identity once
// at startup: start_time and similar process-registry lookups are
// effectively node-level constants. StartTime orders simultaneous claimants
// in the split-brain resolver; Tie is the stable secondary tiebreaker when
// two starts race within clock resolution, generated by cos.GenTie.
func NewNodeEpoch(nodeID NodeId) NodeEpoch {
	return NodeEpoch{
		NodeID:    nodeID,
		StartTime: time.Now().UnixNano(),
		Tie:       cos.GenTie(),
	}
}
