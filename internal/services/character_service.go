// internal/services/character_service.go
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

const charactersDir = "characters"

// CharacterService manages character records on storage. It satisfies
// the compiler's CharacterLookup so compiled scripts can resolve
// speaker names without the compiler knowing about persistence.
type CharacterService struct {
	storage *storage.FileStorage
}

// NewCharacterService creates the character service
func NewCharacterService(fs *storage.FileStorage) *CharacterService {
	return &CharacterService{storage: fs}
}

// CreateCharacter validates and persists a new character record
func (s *CharacterService) CreateCharacter(character *models.Character) (*models.Character, error) {
	if character == nil || strings.TrimSpace(character.Name) == "" {
		return nil, errors.NewValidationError("character name is required", nil)
	}

	now := time.Now()
	character.ID = uuid.NewString()
	character.CreatedAt = now
	character.UpdatedAt = now

	if err := s.storage.SaveJSON(charactersDir, character.ID+".json", character); err != nil {
		return nil, errors.NewProcessingError("saving character failed", err)
	}
	return character, nil
}

// GetCharacter loads a character record
func (s *CharacterService) GetCharacter(id string) (*models.Character, error) {
	if !s.storage.Exists(charactersDir, id+".json") {
		return nil, errors.NewNotFoundError(fmt.Sprintf("character not found: %s", id), nil)
	}

	var character models.Character
	if err := s.storage.LoadJSON(charactersDir, id+".json", &character); err != nil {
		return nil, errors.NewProcessingError("loading character failed", err)
	}
	return &character, nil
}

// ListCharacters returns all stored characters, sorted by filename
func (s *CharacterService) ListCharacters() ([]*models.Character, error) {
	names, err := s.storage.ListFiles(charactersDir, ".json")
	if err != nil {
		return nil, errors.NewProcessingError("listing characters failed", err)
	}

	characters := make([]*models.Character, 0, len(names))
	for _, name := range names {
		var character models.Character
		if err := s.storage.LoadJSON(charactersDir, name, &character); err != nil {
			continue
		}
		characters = append(characters, &character)
	}
	return characters, nil
}

// UpdateCharacter replaces a character's mutable fields
func (s *CharacterService) UpdateCharacter(id string, update *models.Character) (*models.Character, error) {
	character, err := s.GetCharacter(id)
	if err != nil {
		return nil, err
	}
	if update == nil || strings.TrimSpace(update.Name) == "" {
		return nil, errors.NewValidationError("character name is required", nil)
	}

	character.Name = update.Name
	character.Description = update.Description
	character.Personality = update.Personality
	character.SpeechStyle = update.SpeechStyle
	character.ImageURL = update.ImageURL
	character.UpdatedAt = time.Now()

	if err := s.storage.SaveJSON(charactersDir, id+".json", character); err != nil {
		return nil, errors.NewProcessingError("saving character failed", err)
	}
	return character, nil
}

// DeleteCharacter removes a character record
func (s *CharacterService) DeleteCharacter(id string) error {
	if err := s.storage.DeleteFile(charactersDir, id+".json"); err != nil {
		return errors.NewProcessingError("deleting character failed", err)
	}
	return nil
}
