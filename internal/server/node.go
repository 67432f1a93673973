// Package server wires the protocol envelope, node identity, and the
// four workload engines into a single dispatcher: the one piece of
// state every external message and internal tick passes through.
//
// Grounded on the teacher's cmd/server/main.go + internal/api/handler.go
// (which wired node, ring, gossip, replication together behind gin
// routes); here the wiring is the same shape, minus gin, dispatching
// on a parsed Payload type switch instead of an HTTP method+path.
package server

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"maelnode/internal/counter"
	"maelnode/internal/eventloop"
	"maelnode/internal/gossip"
	"maelnode/internal/kafkalog"
	"maelnode/internal/node"
	"maelnode/internal/protocol"
	"maelnode/internal/txn"
)

// Features selects which workloads are enabled. The selection is made
// at run time: cmd/maelnode enables all four unless one of its -no-*
// flags turns a workload off. No build tags select workloads at
// compile time.
type Features struct {
	Broadcast bool
	GCounter  bool
	Kafka     bool
	Txn       bool
}

// AllFeatures enables every workload.
func AllFeatures() Features {
	return Features{Broadcast: true, GCounter: true, Kafka: true, Txn: true}
}

// Cadences are the timer intervals for each internal task, per spec.md §4.2.
type Cadences struct {
	MeshGossip    time.Duration
	CentralGossip time.Duration
	CounterGossip time.Duration
	PhaseSwitch   time.Duration
}

// DefaultCadences returns the spec's documented defaults.
func DefaultCadences() Cadences {
	return Cadences{
		MeshGossip:    300 * time.Millisecond,
		CentralGossip: 1000 * time.Millisecond,
		CounterGossip: 10 * time.Millisecond,
		PhaseSwitch:   500 * time.Millisecond,
	}
}

// Node is the dispatcher: the sole owner of every workload's mutable
// state, invoked once per event by the event loop.
type Node struct {
	logger   *zap.SugaredLogger
	features Features
	cadences Cadences
	alloc    *protocol.IDAllocator
	stop     func()

	initialized bool
	identity    *node.Identity
	neigh       *node.Neighborhoods
	topology    map[string][]string

	gossipEngine *gossip.Engine
	counterState *counter.State
	logState     *kafkalog.State
	sequencer    *txn.Sequencer

	// pendingForwards correlates a msg_id used to forward a write to
	// the leader with the original client request, so the eventual
	// leader reply can be re-addressed back to the original client.
	pendingForwards map[int]protocol.Message

	fatal error
}

// New builds a Node. stop is called once if an invariant violation is
// observed, so the caller can cancel the event loop's context.
func New(logger *zap.SugaredLogger, features Features, cadences Cadences, stop func()) *Node {
	return &Node{
		logger:          logger,
		features:        features,
		cadences:        cadences,
		alloc:           protocol.NewIDAllocator(),
		stop:            stop,
		pendingForwards: make(map[int]protocol.Message),
	}
}

// Tickers returns the timer configuration for the enabled workloads.
func (n *Node) Tickers() map[eventloop.Task]time.Duration {
	t := make(map[eventloop.Task]time.Duration)
	if n.features.Broadcast {
		t[eventloop.TaskMeshGossip] = n.cadences.MeshGossip
		t[eventloop.TaskCentralGossip] = n.cadences.CentralGossip
	}
	if n.features.GCounter {
		t[eventloop.TaskCounterGossip] = n.cadences.CounterGossip
	}
	if n.features.Txn {
		t[eventloop.TaskPhaseSwitch] = n.cadences.PhaseSwitch
	}
	return t
}

// Fatal returns the invariant-violation error observed, if any.
func (n *Node) Fatal() error {
	return n.fatal
}

// Handle is the event loop's Handler: it mutates state for one event
// and returns the outbound messages produced.
func (n *Node) Handle(ev eventloop.Event) []protocol.Message {
	if ev.External != nil {
		return n.handleExternal(*ev.External)
	}
	return n.handleInternal(ev.Internal)
}

func (n *Node) handleExternal(msg protocol.Message) []protocol.Message {
	if _, ok := msg.Body.Payload.(protocol.Init); !ok && !n.initialized {
		n.raiseFatal(fmt.Errorf("received %T before init", msg.Body.Payload))
		return nil
	}

	switch p := msg.Body.Payload.(type) {
	case protocol.Init:
		return n.handleInit(msg, p)
	case protocol.Echo:
		return []protocol.Message{protocol.Reply(msg, n.alloc, protocol.EchoOk{Echo: p.Echo})}
	case protocol.Generate:
		return []protocol.Message{protocol.Reply(msg, n.alloc, protocol.GenerateOk{ID: uuid.NewString()})}
	case protocol.Topology:
		n.topology = p.Topology
		return []protocol.Message{protocol.Reply(msg, n.alloc, protocol.TopologyOk{})}

	case protocol.Broadcast:
		return n.handleBroadcast(msg, p)
	case protocol.Read:
		return n.handleRead(msg)
	case protocol.Gossip:
		return n.handleGossip(msg, p)
	case protocol.GossipOk:
		n.gossipEngine.Ack(msg.Src, *msg.Body.InReplyTo)
		return nil

	case protocol.Add:
		return n.handleAdd(msg, p)
	case protocol.GossipCntr:
		if n.counterState != nil {
			n.counterState.ReceiveGossip(msg.Src, p.Cntr)
		}
		return nil

	case protocol.Send:
		return n.handleSend(msg, p)
	case protocol.SendMany:
		if n.logState != nil {
			n.logState.Adopt(p.Key, p.Msgs)
		}
		return nil
	case protocol.Poll:
		return n.handlePoll(msg, p)
	case protocol.CommitOffsets:
		return n.handleCommitOffsets(msg, p)
	case protocol.ListCommittedOffsets:
		return n.handleListCommittedOffsets(msg, p)
	case protocol.SendOk:
		return n.resolveForward(msg, p.Offset, func(off uint64) protocol.Payload {
			return protocol.SendOk{Offset: off}
		})
	case protocol.CommitOffsetsOk:
		return n.resolveCommitForward(msg)

	case protocol.Txn:
		return n.handleTxn(msg, p)
	case protocol.BroadcastTxn:
		if n.sequencer != nil {
			n.sequencer.ReceiveBroadcast(msg.Src, wireToSeqTxns(p.Txns))
		}
		return nil

	case protocol.Err:
		n.logger.Warnw("remote error", "code", p.Code, "text", p.Text, "src", msg.Src)
		return nil

	default:
		n.logger.Warnw("unrecognized response-shaped payload", "type", fmt.Sprintf("%T", p), "src", msg.Src)
		return nil
	}
}

func (n *Node) handleInternal(task eventloop.Task) []protocol.Message {
	if !n.initialized {
		return nil
	}
	switch task {
	case eventloop.TaskCentralGossip:
		return n.runGossipRound(n.neigh.Central)
	case eventloop.TaskMeshGossip:
		return n.runGossipRound(n.neigh.Mesh)
	case eventloop.TaskCounterGossip:
		return n.runCounterGossip()
	case eventloop.TaskPhaseSwitch:
		return n.runPhaseSwitch()
	default:
		return nil
	}
}

func (n *Node) handleInit(msg protocol.Message, p protocol.Init) []protocol.Message {
	if n.initialized {
		n.raiseFatal(node.ErrAlreadyInitialized)
		return nil
	}

	identity, neigh := node.FromInit(p.NodeID, p.NodeIDs)
	n.identity = identity
	n.neigh = neigh
	n.gossipEngine = gossip.NewEngine(neigh.Mesh)
	n.counterState = counter.NewState(neigh.Mesh)
	n.logState = kafkalog.NewState()
	n.sequencer = txn.NewSequencer(identity.ID, neigh.Mesh)
	n.initialized = true

	n.logger.Infow("initialized", "node_id", identity.ID, "leader", identity.Leader, "mesh", neigh.Mesh)

	return []protocol.Message{protocol.Reply(msg, n.alloc, protocol.InitOk{})}
}

func (n *Node) raiseFatal(err error) {
	n.fatal = err
	n.logger.Errorw("invariant violation", "error", err)
	if n.stop != nil {
		n.stop()
	}
}
