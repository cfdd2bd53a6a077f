// internal/services/export_service_test.go
package services

import (
	"strings"
	"sync"
	"testing"

	"github.com/Corphon/DialogWeaverMCP/internal/errors"
	"github.com/Corphon/DialogWeaverMCP/internal/models"
	"github.com/Corphon/DialogWeaverMCP/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExportService(t *testing.T) (*ExportService, *DialogService, *CharacterService, *storage.FileStorage) {
	t.Helper()
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	dialogs := NewDialogService(fs)
	characters := NewCharacterService(fs)
	return NewExportService(fs, dialogs, characters), dialogs, characters, fs
}

func seedDialog(t *testing.T, dialogs *DialogService, characterID string) string {
	t.Helper()
	created, err := dialogs.CreateDialog(characterID, "")
	require.NoError(t, err)

	session, err := dialogs.Session(created.ID)
	require.NoError(t, err)
	session.Lock()
	defer session.Unlock()

	greeting, err := session.Graph.AddNode(models.DialogueBody{Speaker: models.SpeakerNPC, Text: "Halt!", CharacterID: characterID})
	require.NoError(t, err)
	reply, err := session.Graph.AddNode(player("Just passing through."))
	require.NoError(t, err)
	require.NoError(t, session.Graph.LinkNodes(greeting.ID, reply.ID))

	return created.ID
}

func TestCompileDialog(t *testing.T) {
	svc, dialogs, characters, _ := newTestExportService(t)

	guard, err := characters.CreateCharacter(&models.Character{Name: "Guard"})
	require.NoError(t, err)
	dialogID := seedDialog(t, dialogs, guard.ID)

	result, err := svc.CompileDialog(dialogID)
	require.NoError(t, err)

	assert.Contains(t, result.Content, "label start:")
	assert.Contains(t, result.Content, `guard "Halt!"`)
	assert.Contains(t, result.Content, `player "Just passing through."`)
	require.NotNil(t, result.Stats)
	assert.Equal(t, 2, result.Stats.TotalNodes)
	assert.Empty(t, result.FilePath, "compile alone must not write files")
}

func TestExportDialogWritesFile(t *testing.T) {
	svc, dialogs, characters, fs := newTestExportService(t)

	guard, err := characters.CreateCharacter(&models.Character{Name: "Guard"})
	require.NoError(t, err)
	dialogID := seedDialog(t, dialogs, guard.ID)

	result, err := svc.ExportDialog(dialogID, "rpy")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(result.FilePath, ".rpy"))
	assert.True(t, fs.Exists("exports", result.FilePath))
	assert.Greater(t, result.FileSize, int64(0))

	exports, err := svc.ListExports()
	require.NoError(t, err)
	assert.Contains(t, exports, result.FilePath)
}

// Compiles and saves share a session; SaveSession replaces the dialog
// document while compiles read it, so both sides must go through the
// session lock. Run with -race.
func TestCompileDialogConcurrentWithSave(t *testing.T) {
	svc, dialogs, characters, _ := newTestExportService(t)

	guard, err := characters.CreateCharacter(&models.Character{Name: "Guard"})
	require.NoError(t, err)
	dialogID := seedDialog(t, dialogs, guard.ID)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := svc.CompileDialog(dialogID)
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := dialogs.SaveSession(dialogID)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()
}

func TestExportDialogRejectsUnknownFormat(t *testing.T) {
	svc, dialogs, _, _ := newTestExportService(t)
	dialogID := seedDialog(t, dialogs, "")

	_, err := svc.ExportDialog(dialogID, "pdf")
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestExportMissingDialog(t *testing.T) {
	svc, _, _, _ := newTestExportService(t)

	_, err := svc.ExportDialog("missing", "rpy")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}
