// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/Corphon/DialogWeaverMCP/internal/config"
	"github.com/Corphon/DialogWeaverMCP/internal/di"
	"github.com/Corphon/DialogWeaverMCP/internal/services"
	"github.com/Corphon/DialogWeaverMCP/internal/utils"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures the HTTP routes. Services come from the
// container; the router never creates its own instances.
func SetupRouter(cfg *config.Config) (*gin.Engine, error) {
	container := di.GetContainer()

	dialogService, ok := container.Get("dialog").(*services.DialogService)
	if !ok {
		return nil, fmt.Errorf("dialog service not initialized")
	}

	characterService, ok := container.Get("character").(*services.CharacterService)
	if !ok {
		return nil, fmt.Errorf("character service not initialized")
	}

	sceneService, ok := container.Get("scene").(*services.SceneService)
	if !ok {
		return nil, fmt.Errorf("scene service not initialized")
	}

	exportService, ok := container.Get("export").(*services.ExportService)
	if !ok {
		return nil, fmt.Errorf("export service not initialized")
	}

	promptService, ok := container.Get("prompt").(*services.PromptService)
	if !ok {
		return nil, fmt.Errorf("prompt service not initialized")
	}

	events := NewEventHub(utils.GetLogger())
	handler := NewHandler(
		dialogService,
		characterService,
		sceneService,
		exportService,
		promptService,
		events,
	)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(corsMiddleware())
	r.Use(RequestIDMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// WebSocket event feed
	r.GET("/ws/dialogs/:id", handler.DialogWebSocket)

	// ===============================
	// API routes
	// ===============================
	api := r.Group("/api")
	api.Use(DefaultRateLimit())
	{
		// ===============================
		// Dialog documents and sessions
		// ===============================
		dialogsGroup := api.Group("/dialogs")
		{
			dialogsGroup.GET("", handler.GetDialogs)
			dialogsGroup.POST("", handler.CreateDialog)
			dialogsGroup.GET("/:id", handler.GetDialog)
			dialogsGroup.DELETE("/:id", handler.DeleteDialog)
			dialogsGroup.POST("/:id/save", handler.SaveDialog)

			// Graph mutations
			dialogsGroup.POST("/:id/nodes", handler.AddNode)
			dialogsGroup.PUT("/:id/nodes/:node_id", handler.UpdateNode)
			dialogsGroup.DELETE("/:id/nodes/:node_id", handler.DeleteNode)
			dialogsGroup.POST("/:id/links", handler.LinkNodes)
			dialogsGroup.POST("/:id/unlink", handler.UnlinkNodes)
			dialogsGroup.PUT("/:id/positions", handler.UpdatePositions)

			// Undo/redo
			dialogsGroup.POST("/:id/checkpoint", handler.Checkpoint)
			dialogsGroup.POST("/:id/undo", handler.Undo)
			dialogsGroup.POST("/:id/redo", handler.Redo)

			// Traversal queries
			dialogsGroup.GET("/:id/nodes/:node_id/path", handler.GetNodePath)
			dialogsGroup.GET("/:id/nodes/:node_id/conversation", handler.GetConversation)
			dialogsGroup.GET("/:id/nodes/:node_id/variables", handler.GetNodeVariables)
			dialogsGroup.GET("/:id/nodes/:node_id/reachable", handler.GetReachableNodes)
			dialogsGroup.GET("/:id/nodes/:node_id/prompt", handler.BuildPrompt)

			// Compilation
			dialogsGroup.GET("/:id/compile", handler.CompileDialog)
			dialogsGroup.POST("/:id/export", ExportRateLimit(), handler.ExportDialog)
		}

		// ===============================
		// Characters
		// ===============================
		charactersGroup := api.Group("/characters")
		{
			charactersGroup.GET("", handler.GetCharacters)
			charactersGroup.POST("", handler.CreateCharacter)
			charactersGroup.GET("/:id", handler.GetCharacter)
			charactersGroup.PUT("/:id", handler.UpdateCharacter)
			charactersGroup.DELETE("/:id", handler.DeleteCharacter)
		}

		// ===============================
		// Scenes
		// ===============================
		scenesGroup := api.Group("/scenes")
		{
			scenesGroup.GET("", handler.GetScenes)
			scenesGroup.POST("", handler.CreateScene)
			scenesGroup.GET("/:id", handler.GetScene)
			scenesGroup.PUT("/:id", handler.UpdateScene)
			scenesGroup.DELETE("/:id", handler.DeleteScene)
		}

		// Exports listing and debug
		api.GET("/exports", handler.GetExports)
		api.GET("/ws/status", handler.GetWebSocketStatus)
	}

	return r, nil
}

// corsMiddleware implements cross-origin resource sharing
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
