// internal/storage/file_storage_test.go
package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func newTestStorage(t *testing.T) *FileStorage {
	t.Helper()
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestSaveAndLoadJSON(t *testing.T) {
	fs := newTestStorage(t)

	require.NoError(t, fs.SaveJSON("dialogs", "d1.json", testDoc{ID: "d1", Value: 42}))

	var loaded testDoc
	require.NoError(t, fs.LoadJSON("dialogs", "d1.json", &loaded))
	assert.Equal(t, testDoc{ID: "d1", Value: 42}, loaded)
}

func TestLoadMissingFile(t *testing.T) {
	fs := newTestStorage(t)
	var doc testDoc
	assert.Error(t, fs.LoadJSON("dialogs", "missing.json", &doc))
}

func TestSaveIsAtomic(t *testing.T) {
	fs := newTestStorage(t)
	require.NoError(t, fs.SaveJSON("dialogs", "d1.json", testDoc{ID: "d1"}))

	// No temp file left behind after a successful write
	_, err := os.Stat(filepath.Join(fs.BaseDir, "dialogs", "d1.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestOverwriteInvalidatesCache(t *testing.T) {
	fs := newTestStorage(t)
	require.NoError(t, fs.SaveJSON("dialogs", "d1.json", testDoc{ID: "d1", Value: 1}))

	var first testDoc
	require.NoError(t, fs.LoadJSON("dialogs", "d1.json", &first))

	require.NoError(t, fs.SaveJSON("dialogs", "d1.json", testDoc{ID: "d1", Value: 2}))

	var second testDoc
	require.NoError(t, fs.LoadJSON("dialogs", "d1.json", &second))
	assert.Equal(t, 2, second.Value, "stale cache served after overwrite")
}

func TestDeleteFile(t *testing.T) {
	fs := newTestStorage(t)
	require.NoError(t, fs.SaveJSON("dialogs", "d1.json", testDoc{ID: "d1"}))

	require.NoError(t, fs.DeleteFile("dialogs", "d1.json"))
	assert.False(t, fs.Exists("dialogs", "d1.json"))

	// Deleting a missing file is not an error
	require.NoError(t, fs.DeleteFile("dialogs", "d1.json"))
}

func TestListFilesSorted(t *testing.T) {
	fs := newTestStorage(t)
	require.NoError(t, fs.SaveJSON("dialogs", "b.json", testDoc{}))
	require.NoError(t, fs.SaveJSON("dialogs", "a.json", testDoc{}))
	require.NoError(t, fs.SaveFile("dialogs", "notes.txt", []byte("x")))

	names, err := fs.ListFiles("dialogs", ".json")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, names)

	empty, err := fs.ListFiles("nothing-here", ".json")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
