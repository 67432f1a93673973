// Package counter implements the grow-only counter workload: a local
// delta accumulator plus a table of the last gossiped value from each
// peer. The read value is the local total plus the sum of peer totals.
//
// Grounded on the same per-peer contribution table shape as
// internal/gossip, simplified to a pure max-reducible scalar per the
// spec (no ack tracking is needed: a dropped gossip_cntr is
// self-correcting on the next tick).
package counter

// State holds this workload's mutable state.
type State struct {
	local uint64
	peers map[string]uint64
}

// NewState creates an empty counter with a zero entry for each peer.
func NewState(peers []string) *State {
	s := &State{peers: make(map[string]uint64, len(peers))}
	for _, p := range peers {
		s.peers[p] = 0
	}
	return s
}

// Add increments the local contribution by delta.
func (s *State) Add(delta uint64) {
	s.local += delta
}

// ReceiveGossip replaces the gossiped value for sender. Values only
// ever grow on a well-behaved peer, but this node trusts whatever it's
// told rather than enforcing monotonicity itself.
func (s *State) ReceiveGossip(sender string, value uint64) {
	s.peers[sender] = value
}

// Read returns the local total plus every peer's last known total.
func (s *State) Read() uint64 {
	total := s.local
	for _, v := range s.peers {
		total += v
	}
	return total
}

// Local returns this node's own accumulated delta, the value gossiped
// to peers on each counter_gossip tick.
func (s *State) Local() uint64 {
	return s.local
}
