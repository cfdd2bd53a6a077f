// internal/models/dialog.go
package models

import (
	"encoding/json"
	"time"
)

// Position is a purely cosmetic layout coordinate for one node.
// Positions never affect graph shape or traversal.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DialogGraph is the canonical in-memory dialog structure: a single
// owned node arena keyed by stable IDs, edges stored as ID lists.
// Invariant: every child_node_ids entry on a node appears as a
// parent_node_ids entry on the referenced node and vice versa.
type DialogGraph struct {
	RootNodeID string           `json:"root_node_id"`
	Nodes      map[string]*Node `json:"nodes"`
}

// NewDialogGraph creates an empty graph
func NewDialogGraph() *DialogGraph {
	return &DialogGraph{
		Nodes: make(map[string]*Node),
	}
}

// Node returns a node by ID, nil when absent
func (g *DialogGraph) Node(id string) *Node {
	if g == nil || g.Nodes == nil {
		return nil
	}
	return g.Nodes[id]
}

// Clone produces a deep, independent copy of the graph. History
// snapshots rely on this: no aliasing exists between the copy and
// the original, so later mutation cannot corrupt a snapshot.
func (g *DialogGraph) Clone() *DialogGraph {
	clone := NewDialogGraph()
	if g == nil {
		return clone
	}

	// Round-trip through the wire codec; our own types always marshal
	data, err := json.Marshal(g)
	if err != nil {
		return clone
	}
	if err := json.Unmarshal(data, clone); err != nil {
		return NewDialogGraph()
	}
	if clone.Nodes == nil {
		clone.Nodes = make(map[string]*Node)
	}
	return clone
}

// Dialog is the persistence document exchanged with the storage
// collaborator: the graph plus cosmetic positions and record metadata.
type Dialog struct {
	ID            string              `json:"id"`
	CharacterID   string              `json:"character_id,omitempty"`
	SceneID       string              `json:"scene_id,omitempty"`
	RootNodeID    string              `json:"root_node_id"`
	Nodes         map[string]*Node    `json:"nodes"`
	NodePositions map[string]Position `json:"node_positions,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// DialogMetadata is the listing projection for dialog selection
type DialogMetadata struct {
	ID          string    `json:"id"`
	CharacterID string    `json:"character_id,omitempty"`
	SceneID     string    `json:"scene_id,omitempty"`
	NodeCount   int       `json:"node_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
