// internal/services/dialog_service_test.go
package services

import (
	"testing"

	"github.com/Corphon/DialogWeaverMCP/internal/errors"
	"github.com/Corphon/DialogWeaverMCP/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDialogService(t *testing.T) (*DialogService, *storage.FileStorage) {
	t.Helper()
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return NewDialogService(fs), fs
}

func TestCreateAndGetDialog(t *testing.T) {
	svc, _ := newTestDialogService(t)

	created, err := svc.CreateDialog("guard", "gate")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	loaded, err := svc.GetDialog(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "guard", loaded.CharacterID)
	assert.Equal(t, "gate", loaded.SceneID)
	assert.NotNil(t, loaded.Nodes)
}

func TestGetDialogNotFound(t *testing.T) {
	svc, _ := newTestDialogService(t)

	_, err := svc.GetDialog("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestListDialogs(t *testing.T) {
	svc, _ := newTestDialogService(t)

	_, err := svc.CreateDialog("a", "")
	require.NoError(t, err)
	_, err = svc.CreateDialog("b", "")
	require.NoError(t, err)

	list, err := svc.ListDialogs()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSessionRoundTrip(t *testing.T) {
	svc, fs := newTestDialogService(t)

	created, err := svc.CreateDialog("", "")
	require.NoError(t, err)

	session, err := svc.Session(created.ID)
	require.NoError(t, err)

	session.Lock()
	root, err := session.Graph.AddNode(npc("Hello"))
	require.NoError(t, err)
	reply, err := session.Graph.AddNode(player("Hi"))
	require.NoError(t, err)
	require.NoError(t, session.Graph.LinkNodes(root.ID, reply.ID))
	session.Unlock()

	saved, err := svc.SaveSession(created.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, saved.RootNodeID)
	assert.Len(t, saved.Nodes, 2)

	// A fresh service over the same storage sees the persisted graph
	reopened := NewDialogService(fs)
	session2, err := reopened.Session(created.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, session2.Graph.Graph().RootNodeID)
	assert.Len(t, session2.Graph.Graph().Nodes, 2)
}

func TestSessionIsCached(t *testing.T) {
	svc, _ := newTestDialogService(t)

	created, err := svc.CreateDialog("", "")
	require.NoError(t, err)

	first, err := svc.Session(created.ID)
	require.NoError(t, err)
	second, err := svc.Session(created.ID)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestDeleteDialogDropsSession(t *testing.T) {
	svc, _ := newTestDialogService(t)

	created, err := svc.CreateDialog("", "")
	require.NoError(t, err)
	_, err = svc.Session(created.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDialog(created.ID))

	_, err = svc.GetDialog(created.ID)
	assert.True(t, errors.IsNotFoundError(err))
	_, err = svc.Session(created.ID)
	assert.Error(t, err)
}
