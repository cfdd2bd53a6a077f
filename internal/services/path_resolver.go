// internal/services/path_resolver.go
package services

import (
	"sort"
	"strconv"

	"github.com/Corphon/DialogWeaverMCP/internal/models"
)

// Path resolution works on an immutable graph snapshot and never
// mutates it. Unreachable targets yield empty collections; dangling
// edges are skipped, never raised.

// ResolveRoot locates the effective root for read-only traversal,
// applying the same repair policy as GraphService.RepairRoot without
// touching the graph: an invalid stored root is ignored, and the
// parentless node with the lowest ID stands in.
func ResolveRoot(graph *models.DialogGraph) string {
	if graph == nil {
		return ""
	}
	if graph.RootNodeID != "" && graph.Node(graph.RootNodeID) != nil {
		return graph.RootNodeID
	}

	candidates := make([]string, 0)
	for id, node := range graph.Nodes {
		if len(node.ParentIDs) == 0 {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return candidates[0]
}

// GetNodePath returns the sequence of nodes from the root to the
// target following real edges. A backward walk over the reverse
// adjacency runs first (it handles merge points cheaply); a forward
// depth-first search is the fallback for graphs whose parent lists
// have gone inconsistent. Returns an empty slice when the target is
// unreachable.
func GetNodePath(graph *models.DialogGraph, targetID string) []*models.Node {
	rootID := ResolveRoot(graph)
	if rootID == "" || graph.Node(targetID) == nil {
		return []*models.Node{}
	}
	if rootID == targetID {
		return []*models.Node{graph.Node(rootID)}
	}

	if path := backwardWalk(graph, rootID, targetID); path != nil {
		return path
	}
	if path := forwardWalk(graph, rootID, targetID); path != nil {
		return path
	}
	return []*models.Node{}
}

// backwardWalk builds a child->parents reverse adjacency from the
// child lists (the authoritative edge direction) and walks depth
// first from the target toward the root, guarding against cycles
// with a visited set. The first path found wins.
func backwardWalk(graph *models.DialogGraph, rootID, targetID string) []*models.Node {
	parents := make(map[string][]string, len(graph.Nodes))
	order := make([]string, 0, len(graph.Nodes))
	for id := range graph.Nodes {
		order = append(order, id)
	}
	sort.Strings(order)
	for _, id := range order {
		for _, childID := range graph.Nodes[id].ChildIDs {
			if graph.Node(childID) != nil {
				parents[childID] = append(parents[childID], id)
			}
		}
	}

	visited := make(map[string]bool)
	var walk func(id string) []string
	walk = func(id string) []string {
		if id == rootID {
			return []string{id}
		}
		if visited[id] {
			return nil
		}
		visited[id] = true
		for _, parentID := range parents[id] {
			if chain := walk(parentID); chain != nil {
				return append(chain, id)
			}
		}
		return nil
	}

	chain := walk(targetID)
	if chain == nil {
		return nil
	}
	return idsToNodes(graph, chain)
}

// forwardWalk is a depth-first search from root toward target
func forwardWalk(graph *models.DialogGraph, rootID, targetID string) []*models.Node {
	visited := make(map[string]bool)
	var walk func(id string) []string
	walk = func(id string) []string {
		if visited[id] || graph.Node(id) == nil {
			return nil
		}
		visited[id] = true
		if id == targetID {
			return []string{id}
		}
		for _, childID := range graph.Node(id).ChildIDs {
			if chain := walk(childID); chain != nil {
				return append([]string{id}, chain...)
			}
		}
		return nil
	}

	chain := walk(rootID)
	if chain == nil {
		return nil
	}
	return idsToNodes(graph, chain)
}

// GetConversationHistory is the node path restricted to spoken lines.
// Side-effect nodes are invisible to the conversation sequence.
func GetConversationHistory(graph *models.DialogGraph, targetID string) []*models.Node {
	path := GetNodePath(graph, targetID)
	history := make([]*models.Node, 0, len(path))
	for _, node := range path {
		if node.IsDialogue() {
			history = append(history, node)
		}
	}
	return history
}

// GetAllReachableNodes returns the conversation path plus every
// side-effect node attached as a direct child or parent of a path
// node, plus side-effect nodes one further hop out (effect-of-effect
// chains). Path nodes come first in path order, then each path node's
// associated effects in visit order.
func GetAllReachableNodes(graph *models.DialogGraph, targetID string) []*models.Node {
	path := GetNodePath(graph, targetID)
	if len(path) == 0 {
		return []*models.Node{}
	}

	seen := make(map[string]bool, len(path))
	result := make([]*models.Node, 0, len(path))
	for _, node := range path {
		seen[node.ID] = true
	}

	collectEffects := func(node *models.Node) []*models.Node {
		var effects []*models.Node
		for _, id := range append(append([]string{}, node.ChildIDs...), node.ParentIDs...) {
			neighbor := graph.Node(id)
			if neighbor == nil || seen[neighbor.ID] || !neighbor.IsSideEffect() {
				continue
			}
			seen[neighbor.ID] = true
			effects = append(effects, neighbor)
		}
		return effects
	}

	for _, node := range path {
		result = append(result, node)

		direct := collectEffects(node)
		result = append(result, direct...)

		// One further hop for chained effects
		for _, effect := range direct {
			result = append(result, collectEffects(effect)...)
		}
	}

	return result
}

// CalculateVariables folds variable mutations over the reachable set
// in order. set_variable overwrites unconditionally; change_variable
// treats an unset variable as 0 and no-ops when the current value or
// the delta is not numeric.
func CalculateVariables(graph *models.DialogGraph, targetID string) map[string]interface{} {
	variables := make(map[string]interface{})

	for _, node := range GetAllReachableNodes(graph, targetID) {
		switch body := node.Body.(type) {
		case models.SetVariableBody:
			if body.Name == "" {
				continue
			}
			variables[body.Name] = parseScalar(body.Value)

		case models.ChangeVariableBody:
			if body.Name == "" {
				continue
			}
			delta, err := strconv.ParseFloat(body.Value, 64)
			if err != nil {
				continue
			}
			current, ok := variables[body.Name]
			if !ok {
				current = float64(0)
			}
			num, ok := current.(float64)
			if !ok {
				continue
			}
			if body.Op == models.ChangeOpSubtract {
				variables[body.Name] = num - delta
			} else {
				variables[body.Name] = num + delta
			}
		}
	}

	return variables
}

// CollectSceneDescriptions gathers the text of every scene
// description node in the reachable set, in order.
func CollectSceneDescriptions(graph *models.DialogGraph, targetID string) []string {
	descriptions := make([]string, 0)
	for _, node := range GetAllReachableNodes(graph, targetID) {
		if body, ok := node.Body.(models.SceneDescriptionBody); ok {
			descriptions = append(descriptions, body.Text)
		}
	}
	return descriptions
}

// parseScalar interprets an authored value: numbers become float64,
// anything that fails numeric parsing stays a string literal.
func parseScalar(value string) interface{} {
	if num, err := strconv.ParseFloat(value, 64); err == nil {
		return num
	}
	return value
}

func idsToNodes(graph *models.DialogGraph, ids []string) []*models.Node {
	nodes := make([]*models.Node, 0, len(ids))
	for _, id := range ids {
		if node := graph.Node(id); node != nil {
			nodes = append(nodes, node)
		}
	}
	return nodes
}
