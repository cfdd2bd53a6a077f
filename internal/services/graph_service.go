// internal/services/graph_service.go
package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/Corphon/DialogWeaverMCP/internal/models"
	"github.com/google/uuid"
)

// MaxHistorySnapshots bounds the undo/redo ring
const MaxHistorySnapshots = 50

// GraphService owns one dialog graph and its mutation operations,
// plus a bounded deep-copy history for undo/redo. It has no storage
// or service dependencies; DialogService feeds documents in and out.
//
// All operations are synchronous and non-blocking. The service does
// no internal locking: callers serialize mutations (the API layer
// holds one editing session per dialog behind a mutex).
type GraphService struct {
	graph     *models.DialogGraph
	positions map[string]models.Position

	history      []*models.DialogGraph
	historyIndex int  // index of the snapshot matching the last saved state
	dirty        bool // live graph has diverged from history[historyIndex]
}

// NewGraphService creates an empty graph store
func NewGraphService() *GraphService {
	return &GraphService{
		graph:        models.NewDialogGraph(),
		positions:    make(map[string]models.Position),
		historyIndex: -1,
	}
}

// Graph exposes the live graph for read-only traversal.
// Callers must not mutate it directly.
func (s *GraphService) Graph() *models.DialogGraph {
	return s.graph
}

// Snapshot returns a deep copy of the live graph
func (s *GraphService) Snapshot() *models.DialogGraph {
	return s.graph.Clone()
}

// Positions returns the cosmetic layout side-table
func (s *GraphService) Positions() map[string]models.Position {
	return s.positions
}

// AddNode creates a node from a body, generating a process-unique ID
// and timestamps, and inserts it. The first node added to an empty
// graph becomes the root.
func (s *GraphService) AddNode(body models.NodeBody) (*models.Node, error) {
	if body == nil {
		return nil, fmt.Errorf("node body is required")
	}

	now := time.Now()
	node := &models.Node{
		ID:        uuid.NewString(),
		ChildIDs:  []string{},
		ParentIDs: []string{},
		CreatedAt: now,
		UpdatedAt: now,
		Body:      body,
	}

	s.graph.Nodes[node.ID] = node
	if s.graph.RootNodeID == "" {
		s.graph.RootNodeID = node.ID
	}
	s.dirty = true

	return node, nil
}

// UpdateNode replaces a node's body and bumps its update timestamp.
// Silently no-ops (returns false) when the ID is absent, favoring
// editor robustness over strict validation.
func (s *GraphService) UpdateNode(id string, body models.NodeBody) bool {
	node := s.graph.Node(id)
	if node == nil || body == nil {
		return false
	}

	node.Body = body
	node.UpdatedAt = time.Now()
	s.dirty = true
	return true
}

// DeleteNode removes a node, rewiring every neighbor's edge lists
// before dropping it. No-ops when the ID is absent. A deleted root
// leaves the graph rootless until repaired or re-authored.
func (s *GraphService) DeleteNode(id string) bool {
	node := s.graph.Node(id)
	if node == nil {
		return false
	}

	for _, parentID := range node.ParentIDs {
		if parent := s.graph.Node(parentID); parent != nil {
			parent.ChildIDs = removeID(parent.ChildIDs, id)
		}
	}
	for _, childID := range node.ChildIDs {
		if child := s.graph.Node(childID); child != nil {
			child.ParentIDs = removeID(child.ParentIDs, id)
		}
	}

	delete(s.graph.Nodes, id)
	if s.graph.RootNodeID == id {
		s.graph.RootNodeID = ""
	}
	s.dirty = true
	return true
}

// LinkNodes inserts a parent->child edge in both directions.
// Idempotent; errors when either endpoint is missing so API callers
// can surface real authoring mistakes.
func (s *GraphService) LinkNodes(parentID, childID string) error {
	parent := s.graph.Node(parentID)
	child := s.graph.Node(childID)
	if parent == nil || child == nil {
		return fmt.Errorf("link endpoints missing: parent=%s child=%s", parentID, childID)
	}
	if parentID == childID {
		return fmt.Errorf("cannot link node %s to itself", parentID)
	}

	if !containsID(parent.ChildIDs, childID) {
		parent.ChildIDs = append(parent.ChildIDs, childID)
		parent.UpdatedAt = time.Now()
	}
	if !containsID(child.ParentIDs, parentID) {
		child.ParentIDs = append(child.ParentIDs, parentID)
		child.UpdatedAt = time.Now()
	}
	s.dirty = true
	return nil
}

// UnlinkNodes removes the parent->child edge from both sides.
// Idempotent; no-ops on missing endpoints.
func (s *GraphService) UnlinkNodes(parentID, childID string) {
	if parent := s.graph.Node(parentID); parent != nil {
		parent.ChildIDs = removeID(parent.ChildIDs, childID)
	}
	if child := s.graph.Node(childID); child != nil {
		child.ParentIDs = removeID(child.ParentIDs, parentID)
	}
	s.dirty = true
}

// UpdateNodePositions merges cosmetic coordinates. Never touches
// graph shape, and is not tracked by history.
func (s *GraphService) UpdateNodePositions(positions map[string]models.Position) {
	for id, pos := range positions {
		s.positions[id] = pos
	}
}

// SaveToHistory pushes a deep copy of the current graph. Any "future"
// entries beyond the current index are truncated (linear history);
// once the ring exceeds MaxHistorySnapshots the oldest entry is
// evicted and the index shifts down.
func (s *GraphService) SaveToHistory() {
	s.history = s.history[:s.historyIndex+1]
	s.history = append(s.history, s.graph.Clone())
	s.historyIndex = len(s.history) - 1
	s.dirty = false

	if len(s.history) > MaxHistorySnapshots {
		s.history = s.history[1:]
		s.historyIndex--
	}
}

// HistoryLen reports the number of stored snapshots
func (s *GraphService) HistoryLen() int {
	return len(s.history)
}

// HistoryIndex reports the current history cursor
func (s *GraphService) HistoryIndex() int {
	return s.historyIndex
}

// Undo steps the history index back and replaces the live graph with
// a deep copy of that snapshot. Unsaved edits are first stashed as a
// redo target so Undo followed by Redo round-trips them. No-op at
// the boundary.
func (s *GraphService) Undo() bool {
	if len(s.history) == 0 || s.historyIndex < 0 {
		return false
	}

	if s.dirty {
		// Stash unsaved edits so a later Redo can restore them
		s.SaveToHistory()
	}

	if s.historyIndex <= 0 {
		return false
	}

	s.historyIndex--
	s.graph = s.history[s.historyIndex].Clone()
	return true
}

// Redo steps the history index forward. No-op at the boundary.
func (s *GraphService) Redo() bool {
	if s.historyIndex >= len(s.history)-1 {
		return false
	}

	s.historyIndex++
	s.graph = s.history[s.historyIndex].Clone()
	s.dirty = false
	return true
}

// LoadDialog replaces the live graph and positions wholesale from a
// persistence document, applying the root-repair policy and clearing
// history.
func (s *GraphService) LoadDialog(dialog *models.Dialog) {
	graph := models.NewDialogGraph()
	if dialog != nil {
		graph.RootNodeID = dialog.RootNodeID
		for id, node := range dialog.Nodes {
			graph.Nodes[id] = node
		}
	}
	RepairRoot(graph)

	s.graph = graph
	s.positions = make(map[string]models.Position)
	if dialog != nil {
		for id, pos := range dialog.NodePositions {
			s.positions[id] = pos
		}
	}
	s.history = nil
	s.historyIndex = -1
	s.dirty = false
}

// ExportDialog assembles a persistence document from the live state
func (s *GraphService) ExportDialog(base *models.Dialog) *models.Dialog {
	doc := &models.Dialog{
		RootNodeID:    s.graph.RootNodeID,
		Nodes:         s.graph.Clone().Nodes,
		NodePositions: make(map[string]models.Position, len(s.positions)),
		UpdatedAt:     time.Now(),
	}
	for id, pos := range s.positions {
		doc.NodePositions[id] = pos
	}
	if base != nil {
		doc.ID = base.ID
		doc.CharacterID = base.CharacterID
		doc.SceneID = base.SceneID
		doc.CreatedAt = base.CreatedAt
	}
	return doc
}

// RepairRoot enforces the root invariant on a wholesale-loaded graph:
// a root pointing at a missing node is cleared; a missing root with
// nodes present is repaired by selecting the parentless node with the
// lowest ID. Lowest-ID keeps the selection deterministic where map
// iteration order is not.
func RepairRoot(graph *models.DialogGraph) {
	if graph == nil {
		return
	}

	if graph.RootNodeID != "" && graph.Node(graph.RootNodeID) == nil {
		graph.RootNodeID = ""
	}

	if graph.RootNodeID == "" && len(graph.Nodes) > 0 {
		candidates := make([]string, 0, len(graph.Nodes))
		for id, node := range graph.Nodes {
			if len(node.ParentIDs) == 0 {
				candidates = append(candidates, id)
			}
		}
		if len(candidates) > 0 {
			sort.Strings(candidates)
			graph.RootNodeID = candidates[0]
		}
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	result := ids[:0]
	for _, v := range ids {
		if v != id {
			result = append(result, v)
		}
	}
	return result
}
