// Package node models cluster identity and the two neighborhoods
// (central and mesh) derived from it at init time.
package node

import "fmt"

// Identity is this node's view of itself and the cluster, fixed once
// by the first init message it receives.
type Identity struct {
	ID     string
	IDs    []string
	Leader string
}

// Neighborhoods are the two fan-out topologies derived from Identity:
// Central is a star (every other node if we are leader, else just the
// leader); Mesh is everyone else, used for high-throughput gossip and
// transaction broadcast.
type Neighborhoods struct {
	Central []string
	Mesh    []string
}

// FromInit computes Identity and Neighborhoods from an init message's
// node_id/node_ids fields. The leader is always node_ids[0].
func FromInit(nodeID string, nodeIDs []string) (*Identity, *Neighborhoods) {
	id := &Identity{
		ID:     nodeID,
		IDs:    append([]string(nil), nodeIDs...),
		Leader: nodeIDs[0],
	}

	mesh := make([]string, 0, len(nodeIDs)-1)
	for _, peer := range nodeIDs {
		if peer != nodeID {
			mesh = append(mesh, peer)
		}
	}

	central := mesh
	if nodeID != id.Leader {
		central = []string{id.Leader}
	}

	return id, &Neighborhoods{Central: central, Mesh: mesh}
}

// IsLeader reports whether this node is the single-writer leader.
func (id *Identity) IsLeader() bool {
	return id.ID == id.Leader
}

// ErrAlreadyInitialized is the error the server package's Node records
// as fatal when an init message arrives a second time, an invariant
// violation per the spec.
var ErrAlreadyInitialized = fmt.Errorf("node already initialized")
