package server

import (
	"maelnode/internal/protocol"
	"maelnode/internal/txn"
)

const errNotSupported = 10

func (n *Node) unsupported(msg protocol.Message) []protocol.Message {
	return []protocol.Message{protocol.Reply(msg, n.alloc, protocol.Err{Code: errNotSupported, Text: "not supported"})}
}

// --- broadcast / gossip workload -------------------------------------------

func (n *Node) handleBroadcast(msg protocol.Message, p protocol.Broadcast) []protocol.Message {
	if !n.features.Broadcast {
		return n.unsupported(msg)
	}
	n.gossipEngine.Insert(p.Message)
	return []protocol.Message{protocol.Reply(msg, n.alloc, protocol.BroadcastOk{})}
}

func (n *Node) handleRead(msg protocol.Message) []protocol.Message {
	var reply protocol.ReadOk
	if n.features.Broadcast {
		reply.Messages = n.gossipEngine.Messages()
	}
	if n.features.GCounter {
		v := int(n.counterState.Read())
		reply.Value = &v
	}
	return []protocol.Message{protocol.Reply(msg, n.alloc, reply)}
}

func (n *Node) handleGossip(msg protocol.Message, p protocol.Gossip) []protocol.Message {
	if !n.features.Broadcast {
		return n.unsupported(msg)
	}
	n.gossipEngine.ReceiveGossip(msg.Src, p.Messages)
	return []protocol.Message{protocol.Reply(msg, n.alloc, protocol.GossipOk{ID: *msg.Body.MsgID})}
}

func (n *Node) runGossipRound(peers []string) []protocol.Message {
	if !n.features.Broadcast {
		return nil
	}
	var out []protocol.Message
	for _, peer := range peers {
		digest := n.gossipEngine.Digest(peer)
		if len(digest) == 0 {
			continue
		}
		id := n.alloc.Next()
		n.gossipEngine.RecordPending(id, digest)
		msgID := id
		out = append(out, protocol.Message{
			Src:  n.identity.ID,
			Dest: peer,
			Body: protocol.Body{Payload: protocol.Gossip{Messages: digest}, MsgID: &msgID},
		})
	}
	return out
}

// --- g-counter workload -----------------------------------------------------

func (n *Node) handleAdd(msg protocol.Message, p protocol.Add) []protocol.Message {
	if !n.features.GCounter {
		return n.unsupported(msg)
	}
	n.counterState.Add(p.Delta)
	return []protocol.Message{protocol.Reply(msg, n.alloc, protocol.AddOk{})}
}

func (n *Node) runCounterGossip() []protocol.Message {
	if !n.features.GCounter {
		return nil
	}
	var out []protocol.Message
	for _, peer := range n.neigh.Mesh {
		out = append(out, protocol.FireAndForget(n.identity.ID, peer, protocol.GossipCntr{Cntr: n.counterState.Local()}))
	}
	return out
}

// --- replicated log (kafka) workload -----------------------------------------

func (n *Node) handleSend(msg protocol.Message, p protocol.Send) []protocol.Message {
	if !n.features.Kafka {
		return n.unsupported(msg)
	}

	if n.identity.IsLeader() {
		offset := n.logState.Append(p.Key, p.Msg)
		out := []protocol.Message{protocol.Reply(msg, n.alloc, protocol.SendOk{Offset: offset})}
		out = append(out, n.fanOutSendMany(p.Key)...)
		return out
	}

	return n.forwardToLeader(msg, p)
}

func (n *Node) fanOutSendMany(key string) []protocol.Message {
	log := n.logState.Log(key)
	var out []protocol.Message
	for _, peer := range n.neigh.Central {
		out = append(out, protocol.FireAndForget(n.identity.ID, peer, protocol.SendMany{Key: key, Msgs: append([]int(nil), log...)}))
	}
	return out
}

func (n *Node) handlePoll(msg protocol.Message, p protocol.Poll) []protocol.Message {
	if !n.features.Kafka {
		return n.unsupported(msg)
	}
	return []protocol.Message{protocol.Reply(msg, n.alloc, protocol.PollOk{Msgs: n.logState.Poll(p.Offsets)})}
}

func (n *Node) handleCommitOffsets(msg protocol.Message, p protocol.CommitOffsets) []protocol.Message {
	if !n.features.Kafka {
		return n.unsupported(msg)
	}

	// A leader-originated propagation carries no reply obligation and
	// must not be re-forwarded; it is distinguished from a client
	// request by its source being the leader itself (client ids never
	// collide with node ids in this protocol).
	if !n.identity.IsLeader() && msg.Src == n.identity.Leader {
		n.logState.CommitOffsets(p.Offsets)
		return nil
	}

	if !n.identity.IsLeader() {
		return n.forwardToLeader(msg, p)
	}

	n.logState.CommitOffsets(p.Offsets)
	out := []protocol.Message{protocol.Reply(msg, n.alloc, protocol.CommitOffsetsOk{})}
	for _, peer := range n.neigh.Central {
		out = append(out, protocol.FireAndForget(n.identity.ID, peer, protocol.CommitOffsets{Offsets: p.Offsets}))
	}
	return out
}

func (n *Node) handleListCommittedOffsets(msg protocol.Message, p protocol.ListCommittedOffsets) []protocol.Message {
	if !n.features.Kafka {
		return n.unsupported(msg)
	}
	return []protocol.Message{protocol.Reply(msg, n.alloc, protocol.ListCommittedOffsetsOk{Offsets: n.logState.ListCommittedOffsets(p.Keys)})}
}

// forwardToLeader sends req on to the leader under a freshly allocated
// msg_id and remembers the original request so the leader's eventual
// reply can be re-addressed back to the original sender.
func (n *Node) forwardToLeader(req protocol.Message, payload protocol.Payload) []protocol.Message {
	id := n.alloc.Next()
	n.pendingForwards[id] = req
	return []protocol.Message{{
		Src:  n.identity.ID,
		Dest: n.identity.Leader,
		Body: protocol.Body{Payload: payload, MsgID: &id},
	}}
}

func (n *Node) resolveForward(msg protocol.Message, offset uint64, build func(uint64) protocol.Payload) []protocol.Message {
	if msg.Body.InReplyTo == nil {
		return nil
	}
	orig, ok := n.pendingForwards[*msg.Body.InReplyTo]
	if !ok {
		n.logger.Warnw("unrecognized response-shaped payload", "type", "send_ok", "src", msg.Src)
		return nil
	}
	delete(n.pendingForwards, *msg.Body.InReplyTo)
	return []protocol.Message{protocol.Reply(orig, n.alloc, build(offset))}
}

func (n *Node) resolveCommitForward(msg protocol.Message) []protocol.Message {
	if msg.Body.InReplyTo == nil {
		return nil
	}
	orig, ok := n.pendingForwards[*msg.Body.InReplyTo]
	if !ok {
		n.logger.Warnw("unrecognized response-shaped payload", "type", "commit_offsets_ok", "src", msg.Src)
		return nil
	}
	delete(n.pendingForwards, *msg.Body.InReplyTo)
	return []protocol.Message{protocol.Reply(orig, n.alloc, protocol.CommitOffsetsOk{})}
}

// --- total-order transaction workload -----------------------------------------

func (n *Node) handleTxn(msg protocol.Message, p protocol.Txn) []protocol.Message {
	if !n.features.Txn {
		return n.unsupported(msg)
	}
	result := n.sequencer.Preview(opsFromWire(p.Txn))
	return []protocol.Message{protocol.Reply(msg, n.alloc, protocol.TxnOk{Txn: opsToWire(result)})}
}

func (n *Node) runPhaseSwitch() []protocol.Message {
	if !n.features.Txn {
		return nil
	}
	broadcast, _ := n.sequencer.PhaseSwitch()

	// Sent every phase switch even when broadcast is empty: a peer's
	// bare presence in the epoch's buffer counts toward quorum, so an
	// idle node still has to announce "nothing to contribute this
	// epoch" or the others can never reach quorum around it.
	wire := make([]protocol.SeqTxnWire, len(broadcast))
	for i, t := range broadcast {
		wire[i] = protocol.SeqTxnWire{Seq: t.Seq, Txn: opsToWire(t.Ops)}
	}

	var out []protocol.Message
	for _, peer := range n.neigh.Mesh {
		out = append(out, protocol.FireAndForget(n.identity.ID, peer, protocol.BroadcastTxn{Txns: wire}))
	}
	return out
}

func opsFromWire(wire []protocol.TxnOp) []txn.Op {
	ops := make([]txn.Op, len(wire))
	for i, w := range wire {
		ops[i] = txn.Op{Kind: w.Op, Key: w.Key, Value: w.Value}
	}
	return ops
}

func opsToWire(ops []txn.Op) []protocol.TxnOp {
	wire := make([]protocol.TxnOp, len(ops))
	for i, op := range ops {
		wire[i] = protocol.TxnOp{Op: op.Kind, Key: op.Key, Value: op.Value}
	}
	return wire
}

func wireToSeqTxns(wire []protocol.SeqTxnWire) []txn.SeqTxn {
	out := make([]txn.SeqTxn, len(wire))
	for i, w := range wire {
		out[i] = txn.SeqTxn{Seq: w.Seq, Ops: opsFromWire(w.Txn)}
	}
	return out
}
