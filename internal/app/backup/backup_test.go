package backup

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arca-org/arca-bot/internal/app/economy"
	"github.com/arca-org/arca-bot/internal/infra/jsonstore"
)

func newTestManager(t *testing.T) (*Manager, *jsonstore.Store) {
	t.Helper()
	js, err := jsonstore.New(t.TempDir())
	require.NoError(t, err)

	m, err := NewManager(js)
	require.NoError(t, err)

	// Distinct timestamps per call so backup names never collide.
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	calls := 0
	m.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
	return m, js
}

func TestManager_CreateAndList(t *testing.T) {
	m, js := newTestManager(t)
	require.NoError(t, js.Save(economy.FileName, map[string]int{"u1": 100}))

	meta, err := m.Create(TypeEconomy, "nightly")
	require.NoError(t, err)
	assert.Equal(t, TypeEconomy, meta.Type)
	assert.Equal(t, "nightly", meta.Description)

	_, err = m.Create(TypeFull, "")
	require.NoError(t, err)

	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, TypeFull, list[0].Type, "list is newest first")
	assert.Equal(t, TypeEconomy, list[1].Type)
}

func TestManager_Create_UnknownType(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Create("everything", "")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestManager_RestoreRevertsData(t *testing.T) {
	m, js := newTestManager(t)
	require.NoError(t, js.Save(economy.FileName, map[string]int{"u1": 100}))

	meta, err := m.Create(TypeEconomy, "before change")
	require.NoError(t, err)

	// Live data changes after the backup.
	require.NoError(t, js.Save(economy.FileName, map[string]int{"u1": 999}))

	require.NoError(t, m.Restore(meta.Name))

	var restored map[string]int
	require.NoError(t, js.Load(economy.FileName, &restored))
	assert.Equal(t, 100, restored["u1"])

	// The restore itself produced a safety backup of the overwritten state.
	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, TypeFull, list[0].Type)
	assert.Contains(t, list[0].Description, "before restoring")
}

func TestManager_RestoreMissing(t *testing.T) {
	m, _ := newTestManager(t)
	assert.ErrorIs(t, m.Restore("nope.json"), ErrNotFound)
}

func TestManager_Cleanup(t *testing.T) {
	m, js := newTestManager(t)
	require.NoError(t, js.Save(economy.FileName, map[string]int{"u1": 1}))

	var names []string
	for i := 0; i < 5; i++ {
		meta, err := m.Create(TypeEconomy, "")
		require.NoError(t, err)
		names = append(names, meta.Name)
	}

	removed, err := m.Cleanup(2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, names[4], list[0].Name, "newest backups survive")
	assert.Equal(t, names[3], list[1].Name)

	// Nothing more to remove.
	removed, err = m.Cleanup(2)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestManager_Delete(t *testing.T) {
	m, js := newTestManager(t)
	require.NoError(t, js.Save(economy.FileName, map[string]int{"u1": 1}))

	meta, err := m.Create(TypeEconomy, "")
	require.NoError(t, err)

	require.NoError(t, m.Delete(meta.Name))
	assert.ErrorIs(t, m.Delete(meta.Name), ErrNotFound)

	_, err = os.Stat(js.Path(economy.FileName))
	assert.NoError(t, err, "deleting a backup never touches live data")
}
