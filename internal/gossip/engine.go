// Package gossip implements anti-entropy broadcast of a grow-only set
// of integers: per-peer "seen" digests, retry-by-omission, and bounded
// traffic computed lazily at send time.
//
// Grounded on the teacher's internal/gossip package (GossipManager's
// periodic round + per-peer selection), retargeted from HTTP rumor-
// mongering of cluster membership to in-process set-digest gossip of
// a fixed, init-time neighborhood.
package gossip

// Engine owns the broadcast workload's mutable state: the grow-only
// message set, per-peer digests of what each peer has acknowledged,
// and outstanding gossip payloads awaiting ack.
type Engine struct {
	messages map[int]struct{}
	seen     map[string]map[int]struct{}
	pending  map[int][]int
}

// NewEngine creates an Engine with an empty seen-set for each peer.
func NewEngine(peers []string) *Engine {
	e := &Engine{
		messages: make(map[int]struct{}),
		seen:     make(map[string]map[int]struct{}),
		pending:  make(map[int][]int),
	}
	for _, p := range peers {
		e.seen[p] = make(map[int]struct{})
	}
	return e
}

// Insert adds a value to the grow-only set. Returns true if it was new.
func (e *Engine) Insert(v int) bool {
	if _, ok := e.messages[v]; ok {
		return false
	}
	e.messages[v] = struct{}{}
	return true
}

// Messages returns a snapshot slice of the current set, for read_ok.
func (e *Engine) Messages() []int {
	out := make([]int, 0, len(e.messages))
	for v := range e.messages {
		out = append(out, v)
	}
	return out
}

// ReceiveGossip merges an inbound digest into the set and into the
// sender's seen entry (the sender obviously already has what it sent).
func (e *Engine) ReceiveGossip(sender string, digest []int) {
	for _, v := range digest {
		e.messages[v] = struct{}{}
	}
	e.unionSeen(sender, digest)
}

// Digest computes the subset of messages peer has not yet acknowledged,
// computed lazily so non-peer digests are never materialized.
func (e *Engine) Digest(peer string) []int {
	seen := e.seen[peer]
	digest := make([]int, 0)
	for v := range e.messages {
		if _, ok := seen[v]; !ok {
			digest = append(digest, v)
		}
	}
	return digest
}

// RecordPending remembers the digest sent under msgID so Ack can later
// fold it into the acker's seen set.
func (e *Engine) RecordPending(msgID int, digest []int) {
	e.pending[msgID] = digest
}

// Ack resolves the pending entry for msgID (the request's in_reply_to)
// and unions it into acker's seen set. Unknown or already-resolved
// msgIDs are a no-op: a duplicate or stale ack changes nothing.
func (e *Engine) Ack(acker string, msgID int) {
	digest, ok := e.pending[msgID]
	if !ok {
		return
	}
	delete(e.pending, msgID)
	e.unionSeen(acker, digest)
}

func (e *Engine) unionSeen(peer string, digest []int) {
	set, ok := e.seen[peer]
	if !ok {
		set = make(map[int]struct{})
		e.seen[peer] = set
	}
	for _, v := range digest {
		set[v] = struct{}{}
	}
}
