// internal/services/dialog_service.go
package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/DialogWeaverMCP/internal/errors"
	"github.com/Corphon/DialogWeaverMCP/internal/models"
	"github.com/Corphon/DialogWeaverMCP/internal/storage"
	"github.com/google/uuid"
)

const dialogsDir = "dialogs"

// DialogService manages dialog documents on storage and the live
// editing sessions opened on them
type DialogService struct {
	storage *storage.FileStorage

	sessionMutex sync.Mutex
	sessions     map[string]*DialogSession
}

// DialogSession is one dialog opened for editing: its metadata plus
// the graph store holding the live state. The session mutex is the
// single-writer serialization point the core requires; GraphService
// itself does no locking.
type DialogSession struct {
	mu     sync.Mutex
	Dialog *models.Dialog
	Graph  *GraphService
}

// Lock acquires the session for a batch of mutations
func (s *DialogSession) Lock() { s.mu.Lock() }

// Unlock releases the session
func (s *DialogSession) Unlock() { s.mu.Unlock() }

// NewDialogService creates the dialog service
func NewDialogService(fs *storage.FileStorage) *DialogService {
	return &DialogService{
		storage:  fs,
		sessions: make(map[string]*DialogSession),
	}
}

// CreateDialog creates and persists an empty dialog document
func (s *DialogService) CreateDialog(characterID, sceneID string) (*models.Dialog, error) {
	now := time.Now()
	dialog := &models.Dialog{
		ID:          uuid.NewString(),
		CharacterID: characterID,
		SceneID:     sceneID,
		Nodes:       make(map[string]*models.Node),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.storage.SaveJSON(dialogsDir, dialog.ID+".json", dialog); err != nil {
		return nil, errors.NewProcessingError("saving dialog failed", err)
	}
	return dialog, nil
}

// GetDialog loads a dialog document from storage
func (s *DialogService) GetDialog(id string) (*models.Dialog, error) {
	if !s.storage.Exists(dialogsDir, id+".json") {
		return nil, errors.NewNotFoundError(fmt.Sprintf("dialog not found: %s", id), nil)
	}

	var dialog models.Dialog
	if err := s.storage.LoadJSON(dialogsDir, id+".json", &dialog); err != nil {
		return nil, errors.NewProcessingError("loading dialog failed", err)
	}
	if dialog.Nodes == nil {
		dialog.Nodes = make(map[string]*models.Node)
	}
	return &dialog, nil
}

// ListDialogs returns metadata for every stored dialog
func (s *DialogService) ListDialogs() ([]models.DialogMetadata, error) {
	names, err := s.storage.ListFiles(dialogsDir, ".json")
	if err != nil {
		return nil, errors.NewProcessingError("listing dialogs failed", err)
	}

	list := make([]models.DialogMetadata, 0, len(names))
	for _, name := range names {
		var dialog models.Dialog
		if err := s.storage.LoadJSON(dialogsDir, name, &dialog); err != nil {
			continue // unreadable entries are skipped, not fatal
		}
		list = append(list, models.DialogMetadata{
			ID:          dialog.ID,
			CharacterID: dialog.CharacterID,
			SceneID:     dialog.SceneID,
			NodeCount:   len(dialog.Nodes),
			CreatedAt:   dialog.CreatedAt,
			UpdatedAt:   dialog.UpdatedAt,
		})
	}
	return list, nil
}

// DeleteDialog removes a dialog document and drops any open session
func (s *DialogService) DeleteDialog(id string) error {
	s.sessionMutex.Lock()
	delete(s.sessions, id)
	s.sessionMutex.Unlock()

	if err := s.storage.DeleteFile(dialogsDir, id+".json"); err != nil {
		return errors.NewProcessingError("deleting dialog failed", err)
	}
	return nil
}

// Session returns the editing session for a dialog, loading the
// document into a graph store on first access. Root repair applies
// on load.
func (s *DialogService) Session(id string) (*DialogSession, error) {
	s.sessionMutex.Lock()
	defer s.sessionMutex.Unlock()

	if session, ok := s.sessions[id]; ok {
		return session, nil
	}

	dialog, err := s.GetDialog(id)
	if err != nil {
		return nil, err
	}

	graph := NewGraphService()
	graph.LoadDialog(dialog)

	session := &DialogSession{Dialog: dialog, Graph: graph}
	s.sessions[id] = session
	return session, nil
}

// SaveSession persists a session's live graph back to its document
func (s *DialogService) SaveSession(id string) (*models.Dialog, error) {
	session, err := s.Session(id)
	if err != nil {
		return nil, err
	}

	session.Lock()
	doc := session.Graph.ExportDialog(session.Dialog)
	session.Dialog = doc
	session.Unlock()

	if err := s.storage.SaveJSON(dialogsDir, doc.ID+".json", doc); err != nil {
		return nil, errors.NewProcessingError("saving dialog failed", err)
	}
	return doc, nil
}

// sanitizeFilename keeps export filenames shell-safe
func sanitizeFilename(name string) string {
	cleaned := sanitizeIdentifier(name, "dialog")
	return strings.Trim(cleaned, "_")
}
