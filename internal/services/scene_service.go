// internal/services/scene_service.go
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/Corphon/DialogWeaverMCP/internal/errors"
	"github.com/Corphon/DialogWeaverMCP/internal/models"
	"github.com/Corphon/DialogWeaverMCP/internal/storage"
	"github.com/google/uuid"
)

const scenesDir = "scenes"

// SceneService manages scene records on storage
type SceneService struct {
	storage *storage.FileStorage
}

// NewSceneService creates the scene service
func NewSceneService(fs *storage.FileStorage) *SceneService {
	return &SceneService{storage: fs}
}

// CreateScene validates and persists a new scene record
func (s *SceneService) CreateScene(scene *models.Scene) (*models.Scene, error) {
	if scene == nil || strings.TrimSpace(scene.Name) == "" {
		return nil, errors.NewValidationError("scene name is required", nil)
	}

	now := time.Now()
	scene.ID = uuid.NewString()
	scene.CreatedAt = now
	scene.UpdatedAt = now

	if err := s.storage.SaveJSON(scenesDir, scene.ID+".json", scene); err != nil {
		return nil, errors.NewProcessingError("saving scene failed", err)
	}
	return scene, nil
}

// GetScene loads a scene record
func (s *SceneService) GetScene(id string) (*models.Scene, error) {
	if !s.storage.Exists(scenesDir, id+".json") {
		return nil, errors.NewNotFoundError(fmt.Sprintf("scene not found: %s", id), nil)
	}

	var scene models.Scene
	if err := s.storage.LoadJSON(scenesDir, id+".json", &scene); err != nil {
		return nil, errors.NewProcessingError("loading scene failed", err)
	}
	return &scene, nil
}

// ListScenes returns all stored scenes, sorted by filename
func (s *SceneService) ListScenes() ([]*models.Scene, error) {
	names, err := s.storage.ListFiles(scenesDir, ".json")
	if err != nil {
		return nil, errors.NewProcessingError("listing scenes failed", err)
	}

	scenes := make([]*models.Scene, 0, len(names))
	for _, name := range names {
		var scene models.Scene
		if err := s.storage.LoadJSON(scenesDir, name, &scene); err != nil {
			continue
		}
		scenes = append(scenes, &scene)
	}
	return scenes, nil
}

// UpdateScene replaces a scene's mutable fields
func (s *SceneService) UpdateScene(id string, update *models.Scene) (*models.Scene, error) {
	scene, err := s.GetScene(id)
	if err != nil {
		return nil, err
	}
	if update == nil || strings.TrimSpace(update.Name) == "" {
		return nil, errors.NewValidationError("scene name is required", nil)
	}

	scene.Name = update.Name
	scene.Description = update.Description
	scene.Atmosphere = update.Atmosphere
	scene.ImageURL = update.ImageURL
	scene.UpdatedAt = time.Now()

	if err := s.storage.SaveJSON(scenesDir, id+".json", scene); err != nil {
		return nil, errors.NewProcessingError("saving scene failed", err)
	}
	return scene, nil
}

// DeleteScene removes a scene record
func (s *SceneService) DeleteScene(id string) error {
	if err := s.storage.DeleteFile(scenesDir, id+".json"); err != nil {
		return errors.NewProcessingError("deleting scene failed", err)
	}
	return nil
}
