package pipeline

import "github.com/sarchlab/clubheap/cluster"

// HazardUnit detects read-after-write hazards between consecutive operators
// at one level. An operator's fetch reads the block memory in the same cycle
// the previous operator is still comparing, so the read can miss that
// operator's write. Only the immediately preceding operator can conflict.
type HazardUnit struct{}

// NewHazardUnit creates a new hazard detection unit.
func NewHazardUnit() *HazardUnit {
	return &HazardUnit{}
}

// DetectForwarding reports whether the fetched pair must be replaced by
// the pair in the forwarding register.
func (h *HazardUnit) DetectForwarding(fetched *FetchLatch, fwd *ForwardRegister) bool {
	if !fetched.Valid || !fwd.Valid {
		return false
	}
	return fetched.Actual.SameSlot(fwd.Addr)
}

// Resolve returns the pair the compare stage should use.
func (h *HazardUnit) Resolve(fetched *FetchLatch, fwd *ForwardRegister) (cluster.Pair, bool) {
	if h.DetectForwarding(fetched, fwd) {
		return fwd.Pair.Clone(), true
	}
	return fetched.Pair, false
}

// DetectRootForwarding reports whether the root fetch of partition must be
// replaced by the forwarded root entry.
func (h *HazardUnit) DetectRootForwarding(partition int, fwd *RootForwardRegister) bool {
	return fwd.Valid && fwd.Partition == partition
}
