package voice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arca-org/arca-bot/internal/infra/jsonstore"
)

func newStoreAt(t *testing.T, dir string, now *time.Time) *Store {
	t.Helper()
	js, err := jsonstore.New(dir)
	require.NoError(t, err)

	s, err := NewStore(js)
	require.NoError(t, err)
	s.now = func() time.Time { return *now }
	return s
}

func TestStore_SessionLifecycle(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := newStoreAt(t, t.TempDir(), &now)

	sess, err := s.StartSession("u1", "alice", "g1", "c1", "Sala 1")
	require.NoError(t, err)
	assert.Equal(t, now, sess.StartTime)
	assert.True(t, sess.IsActive)

	// A user holds at most one active session.
	_, err = s.StartSession("u1", "alice", "g1", "c2", "Sala 2")
	assert.ErrorIs(t, err, ErrSessionExists)

	got, ok := s.ActiveSession("u1")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ChannelID)

	now = now.Add(42 * time.Minute)
	ended, total, ok := s.EndSession("u1")
	require.True(t, ok)
	assert.Equal(t, 42*time.Minute, total)
	assert.Equal(t, "u1", ended.UserID)
	assert.Equal(t, 42, ended.TotalMinutes)
	assert.False(t, ended.IsActive)

	_, _, ok = s.EndSession("u1")
	assert.False(t, ok, "ending twice must report no session")
	_, ok = s.ActiveSession("u1")
	assert.False(t, ok)
}

func TestStore_MoveAndReward(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := newStoreAt(t, t.TempDir(), &now)

	_, err := s.StartSession("u1", "alice", "g1", "c1", "Sala 1")
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	moved, ok := s.MoveSession("u1", "c2", "Sala 2")
	require.True(t, ok)
	assert.Equal(t, "c2", moved.ChannelID)
	assert.Equal(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), moved.StartTime)

	sess, ok := s.SetSessionReward("u1", 3)
	require.True(t, ok)
	assert.Equal(t, 3, sess.ACEarned)

	assert.Empty(t, s.SessionsInChannel("c1"))
	assert.Len(t, s.SessionsInChannel("c2"), 1)

	_, ok = s.MoveSession("ghost", "c2", "Sala 2")
	assert.False(t, ok)
}

func TestStore_ChannelStatuses(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := newStoreAt(t, t.TempDir(), &now)

	_, ok := s.ChannelStatus("c1")
	assert.False(t, ok)

	s.SetChannelStatus("c1", "m1", []string{"u1", "u2"})
	st, ok := s.ChannelStatus("c1")
	require.True(t, ok)
	assert.Equal(t, "m1", st.MessageID)
	assert.Equal(t, now, st.LastUpdate)
	assert.Equal(t, []string{"u1", "u2"}, st.ActiveUsers)

	s.RemoveChannelStatus("c1")
	_, ok = s.ChannelStatus("c1")
	assert.False(t, ok)
}

func TestStore_Cleanup(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := newStoreAt(t, t.TempDir(), &now)

	_, err := s.StartSession("old", "old", "g1", "c1", "Sala 1")
	require.NoError(t, err)

	now = now.Add(25 * time.Hour)
	_, err = s.StartSession("fresh", "fresh", "g1", "c1", "Sala 1")
	require.NoError(t, err)

	removed := s.Cleanup()
	assert.Equal(t, 1, removed)

	_, ok := s.ActiveSession("old")
	assert.False(t, ok, "sessions past 24h are dropped")
	_, ok = s.ActiveSession("fresh")
	assert.True(t, ok)
}

func TestStore_IsRecentRestart(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	s := newStoreAt(t, dir, &now)

	assert.False(t, s.IsRecentRestart(), "never-saved snapshot is not a recent restart")

	require.NoError(t, s.Save())
	assert.True(t, s.IsRecentRestart())

	now = now.Add(14 * time.Minute)
	assert.True(t, s.IsRecentRestart())

	now = now.Add(2 * time.Minute)
	assert.False(t, s.IsRecentRestart(), "snapshots older than 15 minutes are stale")
}

func TestStore_PersistsAcrossReload(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	s := newStoreAt(t, dir, &now)
	_, err := s.StartSession("u1", "alice", "g1", "c1", "Sala 1")
	require.NoError(t, err)
	s.SetChannelStatus("c1", "m1", []string{"u1"})

	s2 := newStoreAt(t, dir, &now)
	sess, ok := s2.ActiveSession("u1")
	require.True(t, ok)
	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, now, sess.StartTime)

	st, ok := s2.ChannelStatus("c1")
	require.True(t, ok)
	assert.Equal(t, "m1", st.MessageID)
	assert.Equal(t, []string{"u1"}, st.ActiveUsers)
	assert.Equal(t, now, s2.LastSave())
}
