// internal/services/path_resolver_test.go
package services

import (
	"testing"

	"github.com/Corphon/DialogWeaverMCP/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeTexts(nodes []*models.Node) []string {
	texts := make([]string, 0, len(nodes))
	for _, node := range nodes {
		switch body := node.Body.(type) {
		case models.DialogueBody:
			texts = append(texts, body.Text)
		case models.SceneDescriptionBody:
			texts = append(texts, body.Text)
		case models.SetVariableBody:
			texts = append(texts, "set:"+body.Name)
		case models.ChangeVariableBody:
			texts = append(texts, "change:"+body.Name)
		default:
			texts = append(texts, string(node.Kind()))
		}
	}
	return texts
}

// buildLinear wires a root -> ... -> leaf chain and returns the store
// plus the created nodes in order
func buildLinear(t *testing.T, bodies ...models.NodeBody) (*GraphService, []*models.Node) {
	t.Helper()
	s := NewGraphService()
	nodes := make([]*models.Node, 0, len(bodies))
	for i, body := range bodies {
		node, err := s.AddNode(body)
		require.NoError(t, err)
		if i > 0 {
			require.NoError(t, s.LinkNodes(nodes[i-1].ID, node.ID))
		}
		nodes = append(nodes, node)
	}
	return s, nodes
}

func TestGetNodePathRootToRoot(t *testing.T) {
	s, nodes := buildLinear(t, npc("root"))
	path := GetNodePath(s.Graph(), nodes[0].ID)
	require.Len(t, path, 1)
	assert.Equal(t, nodes[0].ID, path[0].ID)
}

func TestGetNodePathLinearChain(t *testing.T) {
	s, nodes := buildLinear(t, npc("a"), player("b"), npc("c"))
	path := GetNodePath(s.Graph(), nodes[2].ID)
	assert.Equal(t, []string{"a", "b", "c"}, nodeTexts(path))
}

func TestGetNodePathThroughMergePoint(t *testing.T) {
	s := NewGraphService()
	root, _ := s.AddNode(npc("root"))
	left, _ := s.AddNode(player("left"))
	right, _ := s.AddNode(player("right"))
	merge, _ := s.AddNode(npc("merge"))
	require.NoError(t, s.LinkNodes(root.ID, left.ID))
	require.NoError(t, s.LinkNodes(root.ID, right.ID))
	require.NoError(t, s.LinkNodes(left.ID, merge.ID))
	require.NoError(t, s.LinkNodes(right.ID, merge.ID))

	path := GetNodePath(s.Graph(), merge.ID)
	require.Len(t, path, 3)
	assert.Equal(t, root.ID, path[0].ID)
	assert.Equal(t, merge.ID, path[2].ID)
}

func TestGetNodePathSurvivesCycle(t *testing.T) {
	s, nodes := buildLinear(t, npc("hub"), player("ask"), npc("answer"))
	// Authored loop back to the hub
	require.NoError(t, s.LinkNodes(nodes[2].ID, nodes[0].ID))

	path := GetNodePath(s.Graph(), nodes[2].ID)
	assert.Equal(t, []string{"hub", "ask", "answer"}, nodeTexts(path))
}

func TestGetNodePathUnreachable(t *testing.T) {
	s, _ := buildLinear(t, npc("root"))
	orphan, _ := s.AddNode(npc("orphan"))

	// orphan has no edges to the root component; a backward walk
	// fails and the forward fallback fails too
	assert.Empty(t, GetNodePath(s.Graph(), orphan.ID))
	assert.Empty(t, GetNodePath(s.Graph(), "missing"))
}

func TestConversationHistoryFiltersSideEffects(t *testing.T) {
	s, nodes := buildLinear(t,
		npc("hello"),
		models.SetVariableBody{Name: "mood", Value: "5"},
		player("hi"),
		models.SetBackgroundBody{Image: "forest"},
		npc("bye"),
	)

	history := GetConversationHistory(s.Graph(), nodes[4].ID)
	assert.Equal(t, []string{"hello", "hi", "bye"}, nodeTexts(history))
	for _, node := range history {
		assert.Equal(t, models.KindDialogue, node.Kind())
	}
}

func TestReachableSetIncludesEffectChains(t *testing.T) {
	s := NewGraphService()
	a, _ := s.AddNode(npc("a"))
	b, _ := s.AddNode(npc("b"))
	effect, _ := s.AddNode(models.SetVariableBody{Name: "gold", Value: "10"})
	chained, _ := s.AddNode(models.ChangeVariableBody{Name: "gold", Op: models.ChangeOpAdd, Value: "5"})
	require.NoError(t, s.LinkNodes(a.ID, b.ID))
	require.NoError(t, s.LinkNodes(a.ID, effect.ID))
	require.NoError(t, s.LinkNodes(effect.ID, chained.ID))

	reachable := GetAllReachableNodes(s.Graph(), b.ID)
	assert.Equal(t, []string{"a", "set:gold", "change:gold", "b"}, nodeTexts(reachable),
		"path nodes in path order, then attached effects in visit order")
}

func TestCalculateVariablesEmptyWithoutMutations(t *testing.T) {
	s, nodes := buildLinear(t, npc("a"), player("b"))
	assert.Empty(t, CalculateVariables(s.Graph(), nodes[1].ID))
}

func TestCalculateVariablesFolding(t *testing.T) {
	s, nodes := buildLinear(t,
		npc("start"),
		models.SetVariableBody{Name: "gold", Value: "10"},
		models.ChangeVariableBody{Name: "gold", Op: models.ChangeOpSubtract, Value: "3"},
		models.SetVariableBody{Name: "name", Value: "Ava"},
		models.ChangeVariableBody{Name: "name", Op: models.ChangeOpAdd, Value: "1"},
		npc("end"),
	)

	vars := CalculateVariables(s.Graph(), nodes[5].ID)
	assert.Equal(t, float64(7), vars["gold"])
	assert.Equal(t, "Ava", vars["name"],
		"change on a non-numeric current value is a no-op")
}

func TestChangeVariableTreatsUnsetAsZero(t *testing.T) {
	s, nodes := buildLinear(t,
		npc("start"),
		models.ChangeVariableBody{Name: "score", Op: models.ChangeOpAdd, Value: "5"},
		npc("end"),
	)

	vars := CalculateVariables(s.Graph(), nodes[2].ID)
	assert.Equal(t, float64(5), vars["score"])
}

func TestCollectSceneDescriptions(t *testing.T) {
	s, nodes := buildLinear(t,
		npc("a"),
		models.SceneDescriptionBody{Text: "A dark forest."},
		npc("b"),
		models.SceneDescriptionBody{Text: "Rain begins to fall."},
		npc("c"),
	)

	descriptions := CollectSceneDescriptions(s.Graph(), nodes[4].ID)
	assert.Equal(t, []string{"A dark forest.", "Rain begins to fall."}, descriptions)
}

func TestResolveRootPrefersStoredRoot(t *testing.T) {
	s, nodes := buildLinear(t, npc("root"), npc("child"))
	assert.Equal(t, nodes[0].ID, ResolveRoot(s.Graph()))

	// Invalid stored root falls back to the lowest parentless ID
	graph := s.Snapshot()
	graph.RootNodeID = "missing"
	assert.Equal(t, nodes[0].ID, ResolveRoot(graph))
}
