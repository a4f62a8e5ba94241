package task

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/homelink/pkg/session"
)

func newStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	history, err := session.OpenSQLStore(ctx, session.DialectSQLite, filepath.Join(t.TempDir(), "tasks.db"), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	store, err := FromHistory(ctx, history)
	require.NoError(t, err)
	return store
}

func TestSQLStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	task := &a2a.Task{
		ID:        "task-1",
		ContextID: "ctx-1",
		Status:    a2a.TaskStatus{State: a2a.TaskStateWorking},
		History:   []*a2a.Message{a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "lock the door"})},
	}
	require.NoError(t, store.Save(ctx, task))

	task.Status = a2a.TaskStatus{State: a2a.TaskStateCompleted}
	task.Artifacts = []*a2a.Artifact{{ID: "a1", Parts: a2a.ContentParts{a2a.TextPart{Text: "Front door is now locked"}}}}
	require.NoError(t, store.Save(ctx, task))

	got, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "ctx-1", got.ContextID)
	assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)
	require.Len(t, got.History, 1)
	require.Len(t, got.Artifacts, 1)
	require.Len(t, got.Artifacts[0].Parts, 1)
	assert.Equal(t, "Front door is now locked", got.Artifacts[0].Parts[0].(a2a.TextPart).Text)
}

func TestSQLStore_NotFound(t *testing.T) {
	_, err := newStore(t).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, a2a.ErrTaskNotFound)
}

func TestFromHistory_RequiresSQL(t *testing.T) {
	_, err := FromHistory(context.Background(), session.NewMemoryStore())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an SQL history store")
}

func TestNewSQLStore_Validation(t *testing.T) {
	_, err := NewSQLStore(context.Background(), nil, session.DialectSQLite)
	assert.Error(t, err)
}
