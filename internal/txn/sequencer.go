// Package txn implements the total-order transaction workload: an
// epoch sequencer that alternates receiving/flushing phases, buffers
// each peer's locally-sequenced contributions, and applies them to an
// in-memory key/value store in a deterministic, peer-id-ordered flush.
//
// Grounded on the teacher's internal/storage/vector_clock.go for its
// deterministic merge vocabulary, retargeted from causality tracking
// to the spec's commit-at-flush-only total order (spec.md §9 resolves
// the original's double-apply ambiguity in favor of flush-only).
package txn

import "sort"

// Op is one (kind, key, value?) operation; Value is non-nil for a
// write. For a read it is nil in a request and holds the value read,
// if any, in Preview's result.
type Op struct {
	Kind  string // "r" or "w"
	Key   int
	Value *int
}

// SeqTxn is one peer's locally-sequenced transaction, carried in
// broadcast_txn payloads.
type SeqTxn struct {
	Seq uint64
	Ops []Op
}

// Phase is the sequencer's receiving/flushing alternation.
type Phase int

const (
	PhaseReceiving Phase = iota
	PhaseFlushing
)

// Sequencer owns the authoritative kv store and the epoch buffering
// state. It is not safe for concurrent use; callers run it from the
// single dispatcher goroutine, per the node's shared-nothing design.
type Sequencer struct {
	selfID  string
	peerIDs []string // sorted mesh ∪ {self}, the deterministic flush order

	kv      map[int]int
	nextSeq uint64
	epoch   uint64
	phase   Phase

	pendingSelf []SeqTxn
	buf         map[uint64]map[string][]SeqTxn
}

// NewSequencer builds a Sequencer for selfID with the given mesh peers.
func NewSequencer(selfID string, meshPeers []string) *Sequencer {
	peerIDs := append([]string{selfID}, meshPeers...)
	sort.Strings(peerIDs)

	return &Sequencer{
		selfID:  selfID,
		peerIDs: peerIDs,
		kv:      make(map[int]int),
		buf:     make(map[uint64]map[string][]SeqTxn),
	}
}

// Preview applies ops to a scratch view of kv — the committed store
// overlaid with this node's own not-yet-flushed writes — to produce
// the optimistic txn_ok response, and enqueues the request as this
// node's next pending contribution.
func (s *Sequencer) Preview(ops []Op) []Op {
	scratch := make(map[int]int, len(s.kv))
	for k, v := range s.kv {
		scratch[k] = v
	}
	for _, txn := range s.pendingSelf {
		applyOps(scratch, txn.Ops)
	}

	result := make([]Op, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case "w":
			scratch[op.Key] = *op.Value
			result[i] = op
		case "r":
			out := Op{Kind: "r", Key: op.Key}
			if v, ok := scratch[op.Key]; ok {
				val := v
				out.Value = &val
			}
			result[i] = out
		default:
			result[i] = op
		}
	}

	seq := s.nextSeq
	s.nextSeq++
	s.pendingSelf = append(s.pendingSelf, SeqTxn{Seq: seq, Ops: ops})

	return result
}

// ReceiveBroadcast records a peer's offered contribution for the
// current epoch. Replaying the same payload is idempotent: it simply
// overwrites the same map entry with identical content.
func (s *Sequencer) ReceiveBroadcast(sender string, txns []SeqTxn) {
	s.bucket(s.epoch)[sender] = txns
}

// PhaseSwitch runs one full receiving→flushing cycle per call and
// leaves the phase at receiving when it returns. It offers this node's
// own pending contributions (even if
// empty — presence alone counts toward quorum), and if every mesh peer
// (including self) has an entry for the current epoch, flattens them
// in deterministic sorted-peer order, applies the result to kv exactly
// once, and clears the pending queue. Whether or not quorum was
// reached, the epoch always advances: an unflushed contribution stays
// in pendingSelf and is re-offered on the next flush tick, which is
// how a missing peer's entry "re-arrives in a later epoch" without an
// explicit retry queue.
func (s *Sequencer) PhaseSwitch() (broadcast []SeqTxn, applied []SeqTxn) {
	if s.phase != PhaseReceiving {
		s.phase = PhaseReceiving
		return nil, nil
	}
	s.phase = PhaseFlushing

	own := append([]SeqTxn(nil), s.pendingSelf...)
	s.bucket(s.epoch)[s.selfID] = own
	broadcast = own

	if s.hasQuorum(s.epoch) {
		applied = s.flatten(s.epoch)
		for _, t := range applied {
			applyOps(s.kv, t.Ops)
		}
		s.pendingSelf = nil
	}
	delete(s.buf, s.epoch)
	s.epoch++
	s.phase = PhaseReceiving

	return broadcast, applied
}

// KV returns the current value for key and whether it is present.
func (s *Sequencer) KV(key int) (int, bool) {
	v, ok := s.kv[key]
	return v, ok
}

// Epoch returns the current epoch counter, for diagnostics.
func (s *Sequencer) Epoch() uint64 {
	return s.epoch
}

func (s *Sequencer) bucket(epoch uint64) map[string][]SeqTxn {
	b, ok := s.buf[epoch]
	if !ok {
		b = make(map[string][]SeqTxn)
		s.buf[epoch] = b
	}
	return b
}

func (s *Sequencer) hasQuorum(epoch uint64) bool {
	b := s.buf[epoch]
	for _, id := range s.peerIDs {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

// flatten concatenates each peer's contribution in sorted peer-id
// order; a peer's own list is already in local seq order, so the
// result is the same on every node that observes the same epoch buf.
func (s *Sequencer) flatten(epoch uint64) []SeqTxn {
	b := s.buf[epoch]
	all := make([]SeqTxn, 0)
	for _, id := range s.peerIDs {
		all = append(all, b[id]...)
	}
	return all
}

func applyOps(kv map[int]int, ops []Op) {
	for _, op := range ops {
		if op.Kind == "w" {
			kv[op.Key] = *op.Value
		}
	}
}
