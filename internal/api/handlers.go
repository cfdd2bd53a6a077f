// internal/api/handlers.go
package api

import (
	"encoding/json"
	"io"
	"time"

	"github.com/Corphon/DialogWeaverMCP/internal/models"
	"github.com/Corphon/DialogWeaverMCP/internal/services"
	"github.com/Corphon/DialogWeaverMCP/internal/utils"
	"github.com/gin-gonic/gin"
)

// Handler processes API requests
type Handler struct {
	DialogService    *services.DialogService
	CharacterService *services.CharacterService
	SceneService     *services.SceneService
	ExportService    *services.ExportService
	PromptService    *services.PromptService
	Events           *EventHub
	Response         *ResponseHelper
	Logger           *utils.Logger
}

// APIResponse is the standard response envelope
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError is the standard error format
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NewHandler creates the API handler
func NewHandler(
	dialogService *services.DialogService,
	characterService *services.CharacterService,
	sceneService *services.SceneService,
	exportService *services.ExportService,
	promptService *services.PromptService,
	events *EventHub,
) *Handler {
	return &Handler{
		DialogService:    dialogService,
		CharacterService: characterService,
		SceneService:     sceneService,
		ExportService:    exportService,
		PromptService:    promptService,
		Events:           events,
		Response:         NewResponseHelper(),
		Logger:           utils.GetLogger(),
	}
}

// bindRaw decodes an already-read request body; an empty body is fine
func bindRaw(data []byte, target interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

// session resolves the editing session for a dialog, writing the error
// response itself when the dialog is missing
func (h *Handler) session(c *gin.Context) *services.DialogSession {
	session, err := h.DialogService.Session(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err)
		return nil
	}
	return session
}

// ========================================
// Dialog document handlers
// ========================================

// CreateDialogRequest carries the optional references of a new dialog
type CreateDialogRequest struct {
	CharacterID string `json:"character_id"`
	SceneID     string `json:"scene_id"`
}

// CreateDialog creates an empty dialog document
func (h *Handler) CreateDialog(c *gin.Context) {
	var req CreateDialogRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	dialog, err := h.DialogService.CreateDialog(req.CharacterID, req.SceneID)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Logger.Info("dialog created", "dialog_id", dialog.ID)
	h.Response.Created(c, dialog, "dialog created")
}

// GetDialogs lists dialog metadata
func (h *Handler) GetDialogs(c *gin.Context) {
	list, err := h.DialogService.ListDialogs()
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, list)
}

// GetDialog returns the live graph state of a dialog session
func (h *Handler) GetDialog(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		return
	}

	session.Lock()
	graph := session.Graph.Snapshot()
	dialog := session.Dialog // SaveSession swaps this pointer under the lock
	positions := make(map[string]models.Position)
	for id, pos := range session.Graph.Positions() {
		positions[id] = pos
	}
	session.Unlock()

	h.Response.Success(c, gin.H{
		"dialog":    dialog,
		"graph":     graph,
		"positions": positions,
	})
}

// SaveDialog persists a session's live graph
func (h *Handler) SaveDialog(c *gin.Context) {
	dialogID := c.Param("id")

	dialog, err := h.DialogService.SaveSession(dialogID)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Events.Broadcast(GraphEvent{Type: EventDialogSaved, DialogID: dialogID})
	h.Response.Success(c, dialog, "dialog saved")
}

// DeleteDialog removes a dialog document
func (h *Handler) DeleteDialog(c *gin.Context) {
	if err := h.DialogService.DeleteDialog(c.Param("id")); err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, nil, "dialog deleted")
}

// ========================================
// Graph mutation handlers
// ========================================

// AddNode creates a node from a flattened body object. An optional
// "parent_id" field links the new node under an existing one in the
// same call.
func (h *Handler) AddNode(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.Response.BadRequest(c, "reading request body failed", err.Error())
		return
	}

	var link struct {
		ParentID string `json:"parent_id"`
	}
	if err := bindRaw(raw, &link); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	body, err := models.ParseNodeBody(raw)
	if err != nil {
		h.Response.Error(c, 400, ErrorNodeInvalid, "invalid node body", err.Error())
		return
	}

	session := h.session(c)
	if session == nil {
		return
	}

	session.Lock()
	node, err := session.Graph.AddNode(body)
	if err == nil && link.ParentID != "" {
		err = session.Graph.LinkNodes(link.ParentID, node.ID)
	}
	session.Unlock()

	if err != nil {
		h.Response.Error(c, 400, ErrorLinkInvalid, "adding node failed", err.Error())
		return
	}

	h.Events.Broadcast(GraphEvent{Type: EventNodeAdded, DialogID: c.Param("id"), NodeID: node.ID})
	h.Response.Created(c, node, "node added")
}

// UpdateNode replaces a node's body
func (h *Handler) UpdateNode(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.Response.BadRequest(c, "reading request body failed", err.Error())
		return
	}

	body, err := models.ParseNodeBody(raw)
	if err != nil {
		h.Response.Error(c, 400, ErrorNodeInvalid, "invalid node body", err.Error())
		return
	}

	session := h.session(c)
	if session == nil {
		return
	}

	nodeID := c.Param("node_id")
	session.Lock()
	updated := session.Graph.UpdateNode(nodeID, body)
	session.Unlock()

	if !updated {
		h.Response.NotFound(c, "node", nodeID)
		return
	}

	h.Events.Broadcast(GraphEvent{Type: EventNodeUpdated, DialogID: c.Param("id"), NodeID: nodeID})
	h.Response.Success(c, nil, "node updated")
}

// DeleteNode removes a node and rewires its neighbors
func (h *Handler) DeleteNode(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		return
	}

	nodeID := c.Param("node_id")
	session.Lock()
	deleted := session.Graph.DeleteNode(nodeID)
	session.Unlock()

	if !deleted {
		h.Response.NotFound(c, "node", nodeID)
		return
	}

	h.Events.Broadcast(GraphEvent{Type: EventNodeDeleted, DialogID: c.Param("id"), NodeID: nodeID})
	h.Response.Success(c, nil, "node deleted")
}

// LinkRequest names the edge endpoints for link and unlink calls
type LinkRequest struct {
	ParentID string `json:"parent_id" binding:"required"`
	ChildID  string `json:"child_id" binding:"required"`
}

// LinkNodes inserts a parent-child edge
func (h *Handler) LinkNodes(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	session := h.session(c)
	if session == nil {
		return
	}

	session.Lock()
	err := session.Graph.LinkNodes(req.ParentID, req.ChildID)
	session.Unlock()

	if err != nil {
		h.Response.Error(c, 400, ErrorLinkInvalid, "linking nodes failed", err.Error())
		return
	}

	h.Events.Broadcast(GraphEvent{Type: EventNodesLinked, DialogID: c.Param("id"),
		Payload: gin.H{"parent_id": req.ParentID, "child_id": req.ChildID}})
	h.Response.Success(c, nil, "nodes linked")
}

// UnlinkNodes removes a parent-child edge. Removing an absent edge
// succeeds quietly.
func (h *Handler) UnlinkNodes(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	session := h.session(c)
	if session == nil {
		return
	}

	session.Lock()
	session.Graph.UnlinkNodes(req.ParentID, req.ChildID)
	session.Unlock()

	h.Events.Broadcast(GraphEvent{Type: EventNodesUnlinked, DialogID: c.Param("id"),
		Payload: gin.H{"parent_id": req.ParentID, "child_id": req.ChildID}})
	h.Response.Success(c, nil, "nodes unlinked")
}

// UpdatePositions merges cosmetic node coordinates
func (h *Handler) UpdatePositions(c *gin.Context) {
	var positions map[string]models.Position
	if err := c.ShouldBindJSON(&positions); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	session := h.session(c)
	if session == nil {
		return
	}

	session.Lock()
	session.Graph.UpdateNodePositions(positions)
	session.Unlock()

	h.Events.Broadcast(GraphEvent{Type: EventPositionsMoved, DialogID: c.Param("id")})
	h.Response.Success(c, nil, "positions updated")
}

// ========================================
// History handlers
// ========================================

// Checkpoint records the current graph as an undo snapshot
func (h *Handler) Checkpoint(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		return
	}

	session.Lock()
	session.Graph.SaveToHistory()
	index := session.Graph.HistoryIndex()
	session.Unlock()

	h.Response.Success(c, gin.H{"history_index": index}, "checkpoint saved")
}

// Undo steps the graph back one snapshot
func (h *Handler) Undo(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		return
	}

	session.Lock()
	applied := session.Graph.Undo()
	graph := session.Graph.Snapshot()
	session.Unlock()

	if applied {
		h.Events.Broadcast(GraphEvent{Type: EventHistoryMoved, DialogID: c.Param("id")})
	}
	h.Response.Success(c, gin.H{"applied": applied, "graph": graph})
}

// Redo steps the graph forward one snapshot
func (h *Handler) Redo(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		return
	}

	session.Lock()
	applied := session.Graph.Redo()
	graph := session.Graph.Snapshot()
	session.Unlock()

	if applied {
		h.Events.Broadcast(GraphEvent{Type: EventHistoryMoved, DialogID: c.Param("id")})
	}
	h.Response.Success(c, gin.H{"applied": applied, "graph": graph})
}

// ========================================
// Traversal handlers
// ========================================

// GetNodePath returns the root-to-node path
func (h *Handler) GetNodePath(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		return
	}

	session.Lock()
	path := services.GetNodePath(session.Graph.Graph(), c.Param("node_id"))
	session.Unlock()

	h.Response.Success(c, path)
}

// GetConversation returns the dialogue-only history leading to a node
func (h *Handler) GetConversation(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		return
	}

	session.Lock()
	history := services.GetConversationHistory(session.Graph.Graph(), c.Param("node_id"))
	session.Unlock()

	h.Response.Success(c, history)
}

// GetNodeVariables returns the folded variable state at a node
func (h *Handler) GetNodeVariables(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		return
	}

	session.Lock()
	variables := services.CalculateVariables(session.Graph.Graph(), c.Param("node_id"))
	session.Unlock()

	h.Response.Success(c, variables)
}

// GetReachableNodes returns the path plus nearby side-effect nodes
func (h *Handler) GetReachableNodes(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		return
	}

	session.Lock()
	nodes := services.GetAllReachableNodes(session.Graph.Graph(), c.Param("node_id"))
	session.Unlock()

	h.Response.Success(c, nodes)
}

// BuildPrompt assembles an AI completion request from a node.
// ?type=continuation (default) asks for the next line; ?type=emotion
// asks for the emotion of the node's own line.
func (h *Handler) BuildPrompt(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		return
	}

	promptType := c.DefaultQuery("type", "continuation")

	session.Lock()
	var (
		req interface{}
		err error
	)
	switch promptType {
	case "continuation":
		req, err = h.PromptService.BuildContinuationRequest(session.Dialog, session.Graph.Graph(), c.Param("node_id"))
	case "emotion":
		req, err = h.PromptService.BuildEmotionRequest(session.Dialog, session.Graph.Graph(), c.Param("node_id"))
	default:
		session.Unlock()
		h.Response.BadRequest(c, "unknown prompt type: "+promptType)
		return
	}
	session.Unlock()

	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, req)
}

// ========================================
// Compile and export handlers
// ========================================

// CompileDialog compiles the live graph and returns the script inline
func (h *Handler) CompileDialog(c *gin.Context) {
	result, err := h.ExportService.CompileDialog(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, result)
}

// ExportDialog compiles the live graph and writes a script file.
// ?download=true streams the script instead of the JSON envelope.
func (h *Handler) ExportDialog(c *gin.Context) {
	format := c.DefaultQuery("format", "rpy")

	result, err := h.ExportService.ExportDialog(c.Param("id"), format)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	h.Logger.Info("dialog exported", "dialog_id", result.DialogID, "file", result.FilePath)
	h.Response.ExportResponse(c, result, c.Query("download") == "true")
}

// GetExports lists previously exported script files
func (h *Handler) GetExports(c *gin.Context) {
	exports, err := h.ExportService.ListExports()
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, exports)
}

// ========================================
// Character handlers
// ========================================

// GetCharacters lists all characters
func (h *Handler) GetCharacters(c *gin.Context) {
	characters, err := h.CharacterService.ListCharacters()
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, characters)
}

// CreateCharacter creates a character record
func (h *Handler) CreateCharacter(c *gin.Context) {
	var character models.Character
	if err := c.ShouldBindJSON(&character); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	created, err := h.CharacterService.CreateCharacter(&character)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Created(c, created, "character created")
}

// GetCharacter returns one character
func (h *Handler) GetCharacter(c *gin.Context) {
	character, err := h.CharacterService.GetCharacter(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, character)
}

// UpdateCharacter updates a character record
func (h *Handler) UpdateCharacter(c *gin.Context) {
	var character models.Character
	if err := c.ShouldBindJSON(&character); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	updated, err := h.CharacterService.UpdateCharacter(c.Param("id"), &character)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, updated, "character updated")
}

// DeleteCharacter removes a character record
func (h *Handler) DeleteCharacter(c *gin.Context) {
	if err := h.CharacterService.DeleteCharacter(c.Param("id")); err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, nil, "character deleted")
}

// ========================================
// Scene handlers
// ========================================

// GetScenes lists all scenes
func (h *Handler) GetScenes(c *gin.Context) {
	scenes, err := h.SceneService.ListScenes()
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, scenes)
}

// CreateScene creates a scene record
func (h *Handler) CreateScene(c *gin.Context) {
	var scene models.Scene
	if err := c.ShouldBindJSON(&scene); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	created, err := h.SceneService.CreateScene(&scene)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Created(c, created, "scene created")
}

// GetScene returns one scene
func (h *Handler) GetScene(c *gin.Context) {
	scene, err := h.SceneService.GetScene(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, scene)
}

// UpdateScene updates a scene record
func (h *Handler) UpdateScene(c *gin.Context) {
	var scene models.Scene
	if err := c.ShouldBindJSON(&scene); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	updated, err := h.SceneService.UpdateScene(c.Param("id"), &scene)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, updated, "scene updated")
}

// DeleteScene removes a scene record
func (h *Handler) DeleteScene(c *gin.Context) {
	if err := h.SceneService.DeleteScene(c.Param("id")); err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, nil, "scene deleted")
}

// ========================================
// WebSocket handlers
// ========================================

// DialogWebSocket subscribes the caller to a dialog's graph event feed
func (h *Handler) DialogWebSocket(c *gin.Context) {
	dialogID := c.Param("id")
	if _, err := h.DialogService.GetDialog(dialogID); err != nil {
		h.Response.ServiceError(c, err)
		return
	}

	if err := h.Events.Subscribe(c, dialogID); err != nil {
		h.Logger.Error("websocket upgrade failed", "dialog_id", dialogID, "error", err)
	}
}

// GetWebSocketStatus reports subscriber counts (debugging aid)
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"dialog_subscribers": h.Events.SubscriberCount(c.Query("dialog_id")),
	})
}
