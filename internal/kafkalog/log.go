// Package kafkalog implements the single-leader replicated log
// workload: per-key append-only sequences, leader-only writes fanned
// out to replicas, and a committed-offset watermark per key.
//
// Grounded on the teacher's internal/replication package (the
// WriteResult/fan-out vocabulary of replicator.go), retargeted from
// quorum-of-N replication to single-leader-with-replicas.
package kafkalog

// State holds the replicated log and commit watermarks. Both maps are
// present on every node; only the leader appends and advances commits,
// replicas adopt what the leader fans out and serve reads.
type State struct {
	logs      map[string][]int
	committed map[string]uint64
}

// NewState returns an empty log store.
func NewState() *State {
	return &State{
		logs:      make(map[string][]int),
		committed: make(map[string]uint64),
	}
}

// Append adds msg to key's log, deduplicating by value: a retried send
// of an already-present value returns its existing offset rather than
// appending a duplicate entry. Leader-only.
func (s *State) Append(key string, msg int) (offset uint64) {
	log := s.logs[key]
	for i, existing := range log {
		if existing == msg {
			return uint64(i)
		}
	}
	s.logs[key] = append(log, msg)
	return uint64(len(log))
}

// Log returns the current log for key (nil if absent), for fanning out
// send_many to central neighbors after a leader append.
func (s *State) Log(key string) []int {
	return s.logs[key]
}

// Adopt replaces a replica's log for key with msgs if msgs is at least
// as long as what's already stored; a shorter proposal is ignored since
// the leader's log is the sole authority.
func (s *State) Adopt(key string, msgs []int) {
	if len(msgs) >= len(s.logs[key]) {
		s.logs[key] = append([]int(nil), msgs...)
	}
}

// Poll returns, for each requested key present in the log store, the
// (offset, value) pairs at or after the requested offset. Keys with no
// log are omitted from the result entirely.
func (s *State) Poll(offsets map[string]uint64) map[string][][2]int {
	result := make(map[string][][2]int)
	for key, from := range offsets {
		log, ok := s.logs[key]
		if !ok {
			continue
		}
		pairs := make([][2]int, 0)
		for i := int(from); i < len(log); i++ {
			if i < 0 {
				continue
			}
			pairs = append(pairs, [2]int{i, log[i]})
		}
		result[key] = pairs
	}
	return result
}

// CommitOffsets advances the committed watermark for each key to the
// max of its current value and the requested one. Called on the leader
// for client commits and on replicas for the leader's fan-out.
func (s *State) CommitOffsets(offsets map[string]uint64) {
	for key, off := range offsets {
		if off > s.committed[key] {
			s.committed[key] = off
		}
	}
}

// ListCommittedOffsets returns the committed watermark for each
// requested key that this node has ever recorded one for.
func (s *State) ListCommittedOffsets(keys []string) map[string]uint64 {
	result := make(map[string]uint64)
	for _, key := range keys {
		if off, ok := s.committed[key]; ok {
			result[key] = off
		}
	}
	return result
}
