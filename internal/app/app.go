// internal/app/app.go
package app

import (
	"fmt"

	"github.com/Corphon/DialogWeaverMCP/internal/config"
	"github.com/Corphon/DialogWeaverMCP/internal/di"
	"github.com/Corphon/DialogWeaverMCP/internal/services"
	"github.com/Corphon/DialogWeaverMCP/internal/storage"
)

// InitServices builds every service in dependency order and registers
// each one in the global container. Idempotent: re-running replaces
// the registrations.
func InitServices(cfg *config.Config) error {
	container := di.GetContainer()

	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	container.Register("storage", fileStorage)

	dialogService := services.NewDialogService(fileStorage)
	container.Register("dialog", dialogService)

	characterService := services.NewCharacterService(fileStorage)
	container.Register("character", characterService)

	sceneService := services.NewSceneService(fileStorage)
	container.Register("scene", sceneService)

	exportService := services.NewExportService(fileStorage, dialogService, characterService)
	container.Register("export", exportService)

	promptService := services.NewPromptService(characterService, sceneService)
	container.Register("prompt", promptService)

	return nil
}

// HealthCheck verifies that the critical services are registered
func HealthCheck() error {
	container := di.GetContainer()

	critical := []string{"storage", "dialog", "character", "scene", "export", "prompt"}
	for _, name := range critical {
		if container.Get(name) == nil {
			return fmt.Errorf("critical service not registered: %s", name)
		}
	}
	return nil
}
