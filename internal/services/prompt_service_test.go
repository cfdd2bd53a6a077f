// internal/services/prompt_service_test.go
package services

import (
	"testing"

	"github.com/Corphon/DialogWeaverMCP/internal/models"
	"github.com/Corphon/DialogWeaverMCP/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPromptService(t *testing.T) (*PromptService, *CharacterService, *SceneService) {
	t.Helper()
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	characters := NewCharacterService(fs)
	scenes := NewSceneService(fs)
	return NewPromptService(characters, scenes), characters, scenes
}

func TestBuildContinuationRequest(t *testing.T) {
	svc, characters, scenes := newTestPromptService(t)

	elder, err := characters.CreateCharacter(&models.Character{Name: "Elder", Personality: "wise"})
	require.NoError(t, err)
	square, err := scenes.CreateScene(&models.Scene{Name: "Village Square", Atmosphere: "calm"})
	require.NoError(t, err)

	graphSvc, nodes := buildLinear(t,
		npc("Welcome, traveler."),
		models.SetVariableBody{Name: "gold", Value: "10"},
		player("Thank you."),
	)
	dialog := &models.Dialog{ID: "d1", CharacterID: elder.ID, SceneID: square.ID}

	req, err := svc.BuildContinuationRequest(dialog, graphSvc.Graph(), nodes[2].ID)
	require.NoError(t, err)

	assert.Contains(t, req.Prompt, "Elder: Welcome, traveler.")
	assert.Contains(t, req.Prompt, "Player: Thank you.")
	assert.Contains(t, req.Prompt, "gold = 10")
	assert.Contains(t, req.SystemPrompt, "You speak as Elder.")
	assert.Contains(t, req.SystemPrompt, "Personality: wise.")
	assert.Contains(t, req.SystemPrompt, "Setting: Village Square.")
	assert.Greater(t, req.MaxTokens, 0)
}

func TestBuildEmotionRequest(t *testing.T) {
	svc, _, _ := newTestPromptService(t)

	graphSvc, nodes := buildLinear(t,
		npc("Get out of my shop!"),
	)

	req, err := svc.BuildEmotionRequest(nil, graphSvc.Graph(), nodes[0].ID)
	require.NoError(t, err)
	assert.Contains(t, req.Prompt, `"Get out of my shop!"`)
	assert.Contains(t, req.SystemPrompt, "emotion")
	assert.Zero(t, req.Temperature)
}

func TestBuildEmotionRequestRejectsNonDialogue(t *testing.T) {
	svc, _, _ := newTestPromptService(t)

	graphSvc, nodes := buildLinear(t,
		models.SetVariableBody{Name: "gold", Value: "1"},
	)

	_, err := svc.BuildEmotionRequest(nil, graphSvc.Graph(), nodes[0].ID)
	assert.Error(t, err)
}

func TestBuildContinuationRequestWithoutCharacter(t *testing.T) {
	svc, _, _ := newTestPromptService(t)

	graphSvc, nodes := buildLinear(t, npc("Hello"))
	req, err := svc.BuildContinuationRequest(nil, graphSvc.Graph(), nodes[0].ID)
	require.NoError(t, err)

	assert.Contains(t, req.Prompt, "NPC: Hello")
	assert.Contains(t, req.SystemPrompt, "branching game dialogue")
	assert.NotContains(t, req.SystemPrompt, "You speak as")
}
