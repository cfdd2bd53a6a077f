// internal/services/export_service.go
package services

import (
	"fmt"
	"time"

	"github.com/Corphon/DialogWeaverMCP/internal/errors"
	"github.com/Corphon/DialogWeaverMCP/internal/models"
	"github.com/Corphon/DialogWeaverMCP/internal/storage"
)

const exportsDir = "exports"

// ExportService compiles dialog graphs to scripts and writes the
// results under the exports directory
type ExportService struct {
	storage    *storage.FileStorage
	dialogs    *DialogService
	characters *CharacterService
	compiler   *ScriptCompiler
}

// NewExportService creates the export service
func NewExportService(fs *storage.FileStorage, dialogs *DialogService, characters *CharacterService) *ExportService {
	return &ExportService{
		storage:    fs,
		dialogs:    dialogs,
		characters: characters,
		compiler:   NewScriptCompiler(),
	}
}

// CompileDialog compiles a dialog's live graph without writing anything.
// Compilation never fails: structural problems degrade to comments in
// the output, so the result is always a loadable script.
func (s *ExportService) CompileDialog(dialogID string) (*models.ExportResult, error) {
	session, err := s.dialogs.Session(dialogID)
	if err != nil {
		return nil, err
	}

	session.Lock()
	graph := session.Graph.Snapshot()
	dialog := session.Dialog // SaveSession swaps this pointer under the lock
	session.Unlock()

	content, stats := s.compiler.Compile(graph, s.characters)

	return &models.ExportResult{
		DialogID:    dialogID,
		Title:       s.exportTitle(dialog),
		Format:      "rpy",
		Content:     content,
		GeneratedAt: time.Now(),
		Stats:       stats,
	}, nil
}

// ExportDialog compiles a dialog and saves the script to disk.
// Supported formats are "rpy" and "txt"; both carry the same script
// text, the extension only drives the filename.
func (s *ExportService) ExportDialog(dialogID, format string) (*models.ExportResult, error) {
	switch format {
	case "", "rpy":
		format = "rpy"
	case "txt":
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported export format: %s", format), nil)
	}

	result, err := s.CompileDialog(dialogID)
	if err != nil {
		return nil, err
	}
	result.Format = format

	filename := fmt.Sprintf("%s_%s.%s", sanitizeFilename(result.Title), time.Now().Format("20060102_150405"), format)
	if err := s.storage.SaveFile(exportsDir, filename, []byte(result.Content)); err != nil {
		return nil, errors.NewProcessingError("writing export file failed", err)
	}

	result.FilePath = filename
	if size, err := s.storage.FileSize(exportsDir, filename); err == nil {
		result.FileSize = size
	}
	return result, nil
}

// ListExports returns the filenames of previously exported scripts
func (s *ExportService) ListExports() ([]string, error) {
	rpy, err := s.storage.ListFiles(exportsDir, ".rpy")
	if err != nil {
		return nil, errors.NewProcessingError("listing exports failed", err)
	}
	txt, err := s.storage.ListFiles(exportsDir, ".txt")
	if err != nil {
		return nil, errors.NewProcessingError("listing exports failed", err)
	}
	return append(rpy, txt...), nil
}

func (s *ExportService) exportTitle(dialog *models.Dialog) string {
	if dialog == nil {
		return "dialog"
	}
	if dialog.CharacterID != "" {
		if character, err := s.characters.GetCharacter(dialog.CharacterID); err == nil {
			return character.Name
		}
	}
	return dialog.ID
}
