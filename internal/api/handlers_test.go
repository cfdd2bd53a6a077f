// internal/api/handlers_test.go
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Corphon/DialogWeaverMCP/internal/config"
	"github.com/Corphon/DialogWeaverMCP/internal/di"
	"github.com/Corphon/DialogWeaverMCP/internal/services"
	"github.com/Corphon/DialogWeaverMCP/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envelope mirrors APIResponse for decoding test responses
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Message string          `json:"message"`
}

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	container := di.GetContainer()
	container.Clear()

	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	dialogService := services.NewDialogService(fs)
	characterService := services.NewCharacterService(fs)
	sceneService := services.NewSceneService(fs)

	container.Register("storage", fs)
	container.Register("dialog", dialogService)
	container.Register("character", characterService)
	container.Register("scene", sceneService)
	container.Register("export", services.NewExportService(fs, dialogService, characterService))
	container.Register("prompt", services.NewPromptService(characterService, sceneService))

	router, err := SetupRouter(&config.Config{DebugMode: true})
	require.NoError(t, err)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	}
	return w, env
}

func createTestDialog(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w, env := doJSON(t, router, http.MethodPost, "/api/dialogs", gin.H{})
	require.Equal(t, http.StatusCreated, w.Code)

	var dialog struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &dialog))
	require.NotEmpty(t, dialog.ID)
	return dialog.ID
}

func addTestNode(t *testing.T, router *gin.Engine, dialogID string, payload gin.H) string {
	t.Helper()
	w, env := doJSON(t, router, http.MethodPost, "/api/dialogs/"+dialogID+"/nodes", payload)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	var node struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &node))
	return node.ID
}

func TestCreateAndListDialogs(t *testing.T) {
	router := setupTestRouter(t)

	createTestDialog(t, router)
	createTestDialog(t, router)

	w, env := doJSON(t, router, http.MethodGet, "/api/dialogs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 2)
}

func TestGetDialogNotFound(t *testing.T) {
	router := setupTestRouter(t)

	w, env := doJSON(t, router, http.MethodGet, "/api/dialogs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorNotFound, env.Error.Code)
}

func TestAddNodeWithParentLink(t *testing.T) {
	router := setupTestRouter(t)
	dialogID := createTestDialog(t, router)

	rootID := addTestNode(t, router, dialogID, gin.H{
		"kind": "dialogue", "speaker": "npc", "text": "Halt!",
	})
	childID := addTestNode(t, router, dialogID, gin.H{
		"kind": "dialogue", "speaker": "player", "text": "Hello.",
		"parent_id": rootID,
	})

	w, env := doJSON(t, router, http.MethodGet, "/api/dialogs/"+dialogID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var state struct {
		Graph struct {
			RootNodeID string                     `json:"root_node_id"`
			Nodes      map[string]json.RawMessage `json:"nodes"`
		} `json:"graph"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Equal(t, rootID, state.Graph.RootNodeID)
	assert.Len(t, state.Graph.Nodes, 2)

	var child struct {
		ParentIDs []string `json:"parent_node_ids"`
	}
	require.NoError(t, json.Unmarshal(state.Graph.Nodes[childID], &child))
	assert.Equal(t, []string{rootID}, child.ParentIDs)
}

func TestAddNodeRejectsUnknownKind(t *testing.T) {
	router := setupTestRouter(t)
	dialogID := createTestDialog(t, router)

	w, env := doJSON(t, router, http.MethodPost, "/api/dialogs/"+dialogID+"/nodes", gin.H{
		"kind": "teleport", "text": "nope",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorNodeInvalid, env.Error.Code)
}

func TestUpdateMissingNode(t *testing.T) {
	router := setupTestRouter(t)
	dialogID := createTestDialog(t, router)

	w, env := doJSON(t, router, http.MethodPut, "/api/dialogs/"+dialogID+"/nodes/ghost", gin.H{
		"kind": "dialogue", "speaker": "npc", "text": "hi",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorNodeNotFound, env.Error.Code)
}

func TestLinkRejectsMissingEndpoint(t *testing.T) {
	router := setupTestRouter(t)
	dialogID := createTestDialog(t, router)
	rootID := addTestNode(t, router, dialogID, gin.H{
		"kind": "dialogue", "speaker": "npc", "text": "Hello",
	})

	w, env := doJSON(t, router, http.MethodPost, "/api/dialogs/"+dialogID+"/links", gin.H{
		"parent_id": rootID, "child_id": "ghost",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorLinkInvalid, env.Error.Code)
}

func TestUndoRedoEndpoints(t *testing.T) {
	router := setupTestRouter(t)
	dialogID := createTestDialog(t, router)

	addTestNode(t, router, dialogID, gin.H{
		"kind": "dialogue", "speaker": "npc", "text": "First",
	})

	w, _ := doJSON(t, router, http.MethodPost, "/api/dialogs/"+dialogID+"/checkpoint", nil)
	require.Equal(t, http.StatusOK, w.Code)

	addTestNode(t, router, dialogID, gin.H{
		"kind": "dialogue", "speaker": "npc", "text": "Second",
	})

	w, env := doJSON(t, router, http.MethodPost, "/api/dialogs/"+dialogID+"/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Applied bool `json:"applied"`
		Graph   struct {
			Nodes map[string]json.RawMessage `json:"nodes"`
		} `json:"graph"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Applied)
	assert.Len(t, result.Graph.Nodes, 1)

	w, env = doJSON(t, router, http.MethodPost, "/api/dialogs/"+dialogID+"/redo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Applied)
	assert.Len(t, result.Graph.Nodes, 2)
}

func TestCompileEndpoint(t *testing.T) {
	router := setupTestRouter(t)
	dialogID := createTestDialog(t, router)

	rootID := addTestNode(t, router, dialogID, gin.H{
		"kind": "dialogue", "speaker": "npc", "text": "Welcome",
	})
	addTestNode(t, router, dialogID, gin.H{
		"kind": "dialogue", "speaker": "player", "text": "Thanks",
		"parent_id": rootID,
	})

	w, env := doJSON(t, router, http.MethodGet, "/api/dialogs/"+dialogID+"/compile", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Contains(t, result.Content, "label start:")
	assert.Contains(t, result.Content, `"Welcome"`)
}

func TestCharacterEndpoints(t *testing.T) {
	router := setupTestRouter(t)

	w, env := doJSON(t, router, http.MethodPost, "/api/characters", gin.H{
		"name": "Elder", "personality": "wise",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var character struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &character))

	w, _ = doJSON(t, router, http.MethodGet, "/api/characters/"+character.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = doJSON(t, router, http.MethodPost, "/api/characters", gin.H{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)

	w, _ = doJSON(t, router, http.MethodDelete, "/api/characters/"+character.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/api/characters/"+character.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveDialogPersists(t *testing.T) {
	router := setupTestRouter(t)
	dialogID := createTestDialog(t, router)

	addTestNode(t, router, dialogID, gin.H{
		"kind": "set_variable", "variable_name": "gold", "value": "10",
	})

	w, env := doJSON(t, router, http.MethodPost, "/api/dialogs/"+dialogID+"/save", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var dialog struct {
		RootNodeID string `json:"root_node_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &dialog))
	assert.NotEmpty(t, dialog.RootNodeID)
}
