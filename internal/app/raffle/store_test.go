package raffle

import (
	"fmt"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arca-org/arca-bot/internal/domain/raffle"
	"github.com/arca-org/arca-bot/internal/infra/config"
	"github.com/arca-org/arca-bot/internal/infra/jsonstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	js, err := jsonstore.New(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{}
	require.NoError(t, defaults.Set(cfg))

	s, err := NewStore(js, cfg)
	require.NoError(t, err)

	id := 0
	s.newID = func() string { id++; return fmt.Sprintf("raffle-%d", id) }
	s.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestStore_Create(t *testing.T) {
	s := newTestStore(t)

	r, err := s.Create("Nitro", "creator", "chan-1", 100)
	require.NoError(t, err)
	assert.Equal(t, raffle.StatusActive, r.Status)
	assert.Equal(t, 100, r.FirstTicketPrice)

	// Second active raffle in the same channel is rejected.
	_, err = s.Create("Another", "creator", "chan-1", 100)
	assert.ErrorIs(t, err, ErrActiveExists)

	// A different channel is fine.
	_, err = s.Create("Other", "creator", "chan-2", 100)
	assert.NoError(t, err)
}

func TestStore_Create_PriceBounds(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create("Cheap", "creator", "chan-1", 0)
	assert.ErrorIs(t, err, ErrPriceOutOfBounds)

	_, err = s.Create("Expensive", "creator", "chan-1", 10001)
	assert.ErrorIs(t, err, ErrPriceOutOfBounds)

	_, err = s.Create("Edge", "creator", "chan-1", 10000)
	assert.NoError(t, err)
}

func TestStore_QuoteTicket_ProgressivePricing(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create("Nitro", "creator", "chan-1", 100)
	require.NoError(t, err)

	_, price, err := s.QuoteTicket("chan-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 100, price)

	_, err = s.RecordPurchase(r.ID, "u1", "alice", price)
	require.NoError(t, err)

	_, price, err = s.QuoteTicket("chan-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 110, price, "second ticket costs first*1.1")

	// Another user starts back at face value.
	_, price, err = s.QuoteTicket("chan-1", "u2")
	require.NoError(t, err)
	assert.Equal(t, 100, price)
}

func TestStore_QuoteTicket_Limits(t *testing.T) {
	s := newTestStore(t)
	s.cfg.Raffle.MaxTicketsPerUser = 2
	s.cfg.Raffle.MaxParticipants = 2

	r, err := s.Create("Nitro", "creator", "chan-1", 100)
	require.NoError(t, err)

	_, _ = s.RecordPurchase(r.ID, "u1", "alice", 100)
	_, _ = s.RecordPurchase(r.ID, "u1", "alice", 110)

	_, _, err = s.QuoteTicket("chan-1", "u1")
	assert.ErrorIs(t, err, ErrMaxTicketsReached)

	_, _ = s.RecordPurchase(r.ID, "u2", "bob", 100)

	// Third distinct participant is rejected.
	_, _, err = s.QuoteTicket("chan-1", "u3")
	assert.ErrorIs(t, err, ErrFull)
}

func TestStore_Draw(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create("Nitro", "creator", "chan-1", 100)
	require.NoError(t, err)

	_, _ = s.RecordPurchase(r.ID, "u1", "alice", 100)
	_, _ = s.RecordPurchase(r.ID, "u1", "alice", 110)
	_, _ = s.RecordPurchase(r.ID, "u2", "bob", 100)

	// Force the drawn ticket to land on bob's single ticket (number 3).
	s.randInt = func(min, max int) int {
		assert.Equal(t, 1, min)
		assert.Equal(t, 3, max)
		return 3
	}

	ended, winner, err := s.Draw(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "u2", winner.UserID)
	assert.Equal(t, raffle.StatusEnded, ended.Status)
	assert.Equal(t, "u2", ended.WinnerID)
	assert.Equal(t, 310, ended.TotalPrize, "prize is the whole pot")
	require.NotNil(t, ended.EndedAt)

	// Drawing again fails, and the channel is free for a new raffle.
	_, _, err = s.Draw(r.ID)
	assert.ErrorIs(t, err, ErrNotActive)
	_, err = s.Create("Next", "creator", "chan-1", 100)
	assert.NoError(t, err)
}

func TestStore_Draw_NoParticipants(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create("Nitro", "creator", "chan-1", 100)
	require.NoError(t, err)

	_, _, err = s.Draw(r.ID)
	assert.ErrorIs(t, err, ErrNoParticipants)

	_, _, err = s.Draw("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Cancel_RefundsEverything(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create("Nitro", "creator", "chan-1", 100)
	require.NoError(t, err)

	_, _ = s.RecordPurchase(r.ID, "u1", "alice", 100)
	_, _ = s.RecordPurchase(r.ID, "u1", "alice", 110)
	_, _ = s.RecordPurchase(r.ID, "u2", "bob", 100)

	cancelled, refunds, err := s.Cancel(r.ID)
	require.NoError(t, err)
	assert.Equal(t, raffle.StatusCancelled, cancelled.Status)

	require.Len(t, refunds, 2)
	assert.Equal(t, Refund{UserID: "u1", Username: "alice", Amount: 210}, refunds[0])
	assert.Equal(t, Refund{UserID: "u2", Username: "bob", Amount: 100}, refunds[1])

	_, _, err = s.Cancel(r.ID)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestStore_CleanOld(t *testing.T) {
	s := newTestStore(t)

	old, err := s.Create("Old", "creator", "chan-1", 100)
	require.NoError(t, err)
	_, _ = s.RecordPurchase(old.ID, "u1", "alice", 100)
	_, _, err = s.Draw(old.ID)
	require.NoError(t, err)

	fresh, err := s.Create("Fresh", "creator", "chan-2", 100)
	require.NoError(t, err)

	// 40 days later only the ended raffle is past the 30-day retention.
	s.now = func() time.Time { return time.Date(2025, 4, 19, 12, 0, 0, 0, time.UTC) }
	removed, err := s.CleanOld()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, fresh.ID, list[0].ID, "active raffles survive cleanup")
}

func TestStore_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	js, err := jsonstore.New(dir)
	require.NoError(t, err)
	cfg := &config.Config{}
	require.NoError(t, defaults.Set(cfg))

	s, err := NewStore(js, cfg)
	require.NoError(t, err)
	r, err := s.Create("Nitro", "creator", "chan-1", 100)
	require.NoError(t, err)
	_, err = s.RecordPurchase(r.ID, "u1", "alice", 100)
	require.NoError(t, err)

	s2, err := NewStore(js, cfg)
	require.NoError(t, err)
	got, err := s2.ActiveInChannel("chan-1")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	require.Len(t, got.Participants, 1)
	assert.Equal(t, "u1", got.Participants[0].UserID)
}
