package voice

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/arca-org/arca-bot/internal/domain/voice"
	"github.com/arca-org/arca-bot/internal/infra/config"
)

// statusScanLimit is how far back the stale-status-message sweep looks.
const statusScanLimit = 30

// Ledger credits earned currency to a user's account.
type Ledger interface {
	CreditBalance(userID string, amount int) error
}

// Occupant is a non-bot member currently connected to a voice channel.
type Occupant struct {
	UserID   string
	Username string
}

// StatusEntry is one roster line in a channel's status embed.
type StatusEntry struct {
	Username string
	Duration time.Duration
	Earned   int
}

// Channels abstracts the guild's voice channel surface.
type Channels interface {
	// IsTrackable reports whether the channel is a voice channel under the
	// configured category.
	IsTrackable(channelID string) bool
	ChannelName(channelID string) string
	Occupants(channelID string) []Occupant
	SendStatus(channelID string, entries []StatusEntry) (messageID string, err error)
	EditStatus(channelID, messageID string, entries []StatusEntry) error
	DeleteMessage(channelID, messageID string) error
	// ListRecentMessages returns the IDs of this bot's own status messages
	// among the channel's most recent messages, newest first.
	ListRecentMessages(channelID string, limit int) []string
	GuildAvailable(guildID string) bool
	// UserVoiceChannel returns the channel the user is currently connected
	// to, if any.
	UserVoiceChannel(guildID, userID string) (string, bool)
}

// Notifier delivers best-effort session summaries to users.
type Notifier interface {
	SendSessionSummary(userID, username string, duration time.Duration, earned int)
}

// StateUpdate is a normalized voice state transition for one user.
// Empty channel IDs mean "not connected".
type StateUpdate struct {
	UserID       string
	Username     string
	GuildID      string
	OldChannelID string
	NewChannelID string
}

// Engine drives presence tracking: it reacts to gateway voice state updates,
// runs one reward timer per active session, and keeps per-channel roster
// embeds fresh.
type Engine struct {
	cfg      *config.Config
	store    *Store
	ledger   Ledger
	channels Channels
	notifier Notifier

	now func() time.Time

	timersMu sync.Mutex
	timers   map[string]chan struct{}

	// Per-channel refresh guard. A refresh that finds the channel busy is
	// skipped, not queued; the next tick repaints anyway.
	refreshMu  sync.Mutex
	refreshing map[string]bool
}

// NewEngine creates the presence engine.
func NewEngine(cfg *config.Config, store *Store, ledger Ledger, channels Channels, notifier Notifier) *Engine {
	return &Engine{
		cfg:        cfg,
		store:      store,
		ledger:     ledger,
		channels:   channels,
		notifier:   notifier,
		now:        time.Now,
		timers:     make(map[string]chan struct{}),
		refreshing: make(map[string]bool),
	}
}

// HandleVoiceState processes one gateway voice state transition.
func (e *Engine) HandleVoiceState(u StateUpdate) {
	if !e.cfg.Voice.Enabled || u.UserID == "" {
		return
	}

	switch {
	case u.OldChannelID == u.NewChannelID:
		// Mute, deafen or stream change inside the same channel.
		if u.NewChannelID != "" {
			e.store.TouchSession(u.UserID)
		}
	case u.NewChannelID == "":
		e.handleLeave(u)
	case u.OldChannelID == "":
		e.handleJoin(u)
	default:
		e.handleMove(u)
	}
}

func (e *Engine) handleJoin(u StateUpdate) {
	if !e.channels.IsTrackable(u.NewChannelID) {
		return
	}

	if sess, ok := e.store.ActiveSession(u.UserID); ok {
		// Duplicate join event. Repoint the session if the channel moved,
		// never restart the accrual.
		if sess.ChannelID != u.NewChannelID {
			e.store.MoveSession(u.UserID, u.NewChannelID, e.channels.ChannelName(u.NewChannelID))
			e.RefreshChannelStatus(sess.ChannelID)
		}
		e.startTimer(u.UserID)
		e.RefreshChannelStatus(u.NewChannelID)
		return
	}

	sess, err := e.store.StartSession(u.UserID, u.Username, u.GuildID, u.NewChannelID, e.channels.ChannelName(u.NewChannelID))
	if err != nil {
		zlog.Error().Msgf("failed to start session: user=%s err=%v", u.UserID, err)
		return
	}
	zlog.Info().Msgf("voice session started: user=%s channel=%s", u.UserID, sess.ChannelName)

	e.startTimer(u.UserID)
	e.RefreshChannelStatus(u.NewChannelID)
}

func (e *Engine) handleLeave(u StateUpdate) {
	e.finalizeSession(u.UserID, u.Username)
	if u.OldChannelID != "" && e.channels.IsTrackable(u.OldChannelID) {
		e.RefreshChannelStatus(u.OldChannelID)
	}
}

func (e *Engine) handleMove(u StateUpdate) {
	newTracked := e.channels.IsTrackable(u.NewChannelID)
	sess, hasSession := e.store.ActiveSession(u.UserID)

	if !hasSession {
		if newTracked {
			e.handleJoin(StateUpdate{
				UserID:       u.UserID,
				Username:     u.Username,
				GuildID:      u.GuildID,
				NewChannelID: u.NewChannelID,
			})
		}
		return
	}

	if newTracked {
		e.store.MoveSession(u.UserID, u.NewChannelID, e.channels.ChannelName(u.NewChannelID))
		e.startTimer(u.UserID)
		zlog.Info().Msgf("voice session moved: user=%s from=%s to=%s", u.UserID, sess.ChannelID, u.NewChannelID)
		e.RefreshChannelStatus(sess.ChannelID)
		e.RefreshChannelStatus(u.NewChannelID)
		return
	}

	// Moved outside the tracked category: accrual stops but the session is
	// kept as-is until the user leaves voice entirely.
	e.stopTimer(u.UserID)
	zlog.Info().Msgf("voice session suspended: user=%s channel=%s", u.UserID, u.NewChannelID)
	e.RefreshChannelStatus(sess.ChannelID)
}

// finalizeSession ends the session, paying out whatever the ticks have not
// credited yet, and sends the optional summary.
func (e *Engine) finalizeSession(userID, username string) {
	e.stopTimer(userID)

	sess, total, ok := e.store.EndSession(userID)
	if !ok {
		return
	}
	if username == "" {
		username = sess.Username
	}

	earned := sess.ACEarned
	if total >= e.cfg.MinTimeForReward() {
		final := voice.CalculateReward(total, e.cfg.Voice.ACPerHour)
		if delta := final - sess.ACEarned; delta > 0 {
			if err := e.ledger.CreditBalance(userID, delta); err != nil {
				zlog.Error().Msgf("failed to credit final reward: user=%s amount=%d err=%v", userID, delta, err)
			} else {
				earned = final
			}
		} else {
			earned = final
		}
	}

	zlog.Info().Msgf("voice session ended: user=%s duration=%s earned=%d",
		userID, voice.FormatDuration(total), earned)

	if e.cfg.Voice.SendExitSummary && e.notifier != nil {
		e.notifier.SendSessionSummary(userID, username, total, earned)
	}
}

// startTimer ensures a reward timer is running for the user.
func (e *Engine) startTimer(userID string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	if _, ok := e.timers[userID]; ok {
		return
	}
	stop := make(chan struct{})
	e.timers[userID] = stop
	go e.timerLoop(userID, stop)
}

func (e *Engine) timerLoop(userID string, stop chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("reward timer panicked: user=%s err=%v", userID, r)
		}
	}()

	ticker := time.NewTicker(e.cfg.RewardInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.tick(userID)
		}
	}
}

func (e *Engine) stopTimer(userID string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	if stop, ok := e.timers[userID]; ok {
		close(stop)
		delete(e.timers, userID)
	}
}

func (e *Engine) stopAllTimers() {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	for id, stop := range e.timers {
		close(stop)
		delete(e.timers, id)
	}
}

// tick recomputes the session's total reward from its full elapsed time and
// credits only the difference, so the payout is identical no matter how often
// ticks fire.
func (e *Engine) tick(userID string) {
	sess, ok := e.store.ActiveSession(userID)
	if !ok {
		e.stopTimer(userID)
		return
	}

	elapsed := sess.Duration(e.now())
	if elapsed < e.cfg.MinTimeForReward() {
		return
	}

	total := voice.CalculateReward(elapsed, e.cfg.Voice.ACPerHour)
	if delta := total - sess.ACEarned; delta > 0 {
		if err := e.ledger.CreditBalance(userID, delta); err != nil {
			zlog.Error().Msgf("failed to credit reward: user=%s amount=%d err=%v", userID, delta, err)
			return
		}
		e.store.SetSessionReward(userID, total)
		zlog.Debug().Msgf("voice reward credited: user=%s delta=%d total=%d", userID, delta, total)
	}

	e.RefreshChannelStatus(sess.ChannelID)
}

// RefreshChannelStatus repaints the channel's roster embed. Concurrent calls
// for the same channel are collapsed: the late arrival is skipped.
func (e *Engine) RefreshChannelStatus(channelID string) {
	if !e.cfg.Voice.StatusMessages.Enabled || channelID == "" {
		return
	}

	e.refreshMu.Lock()
	if e.refreshing[channelID] {
		e.refreshMu.Unlock()
		zlog.Debug().Msgf("status refresh already running, skipping: channel=%s", channelID)
		return
	}
	e.refreshing[channelID] = true
	e.refreshMu.Unlock()
	defer func() {
		e.refreshMu.Lock()
		delete(e.refreshing, channelID)
		e.refreshMu.Unlock()
	}()

	occupants := e.channels.Occupants(channelID)
	status, hasStatus := e.store.ChannelStatus(channelID)

	if len(occupants) == 0 {
		if hasStatus {
			if err := e.channels.DeleteMessage(channelID, status.MessageID); err != nil {
				zlog.Debug().Msgf("failed to delete status message: channel=%s err=%v", channelID, err)
			}
			e.store.RemoveChannelStatus(channelID)
		}
		e.purgeStatusMessages(channelID)
		return
	}

	entries := e.buildRoster(occupants)

	// Edit in place while the embed is fresh; recreate it once it has aged
	// out so it stays near the bottom of the chat.
	if hasStatus && e.now().Sub(status.LastUpdate) < e.cfg.MaxStatusMessageAge() {
		if err := e.channels.EditStatus(channelID, status.MessageID, entries); err == nil {
			return
		}
		zlog.Debug().Msgf("status edit failed, recreating: channel=%s", channelID)
	}

	if hasStatus {
		if err := e.channels.DeleteMessage(channelID, status.MessageID); err != nil {
			zlog.Debug().Msgf("failed to delete stale status message: channel=%s err=%v", channelID, err)
		}
	}
	// Embeds from a prior run may survive without a ChannelStatus record;
	// sweep them out before posting so the channel never shows duplicates.
	e.purgeStatusMessages(channelID)

	messageID, err := e.channels.SendStatus(channelID, entries)
	if err != nil {
		zlog.Error().Msgf("failed to send status message: channel=%s err=%v", channelID, err)
		return
	}
	userIDs := make([]string, 0, len(occupants))
	for _, o := range occupants {
		userIDs = append(userIDs, o.UserID)
	}
	e.store.SetChannelStatus(channelID, messageID, userIDs)
}

// purgeStatusMessages deletes every status embed of ours still visible in the
// channel's recent history. Best effort.
func (e *Engine) purgeStatusMessages(channelID string) {
	for _, messageID := range e.channels.ListRecentMessages(channelID, statusScanLimit) {
		if err := e.channels.DeleteMessage(channelID, messageID); err != nil {
			zlog.Debug().Msgf("failed to purge status message: channel=%s message=%s err=%v",
				channelID, messageID, err)
		}
	}
}

func (e *Engine) buildRoster(occupants []Occupant) []StatusEntry {
	now := e.now()
	entries := make([]StatusEntry, 0, len(occupants))
	for _, o := range occupants {
		entry := StatusEntry{Username: o.Username}
		if sess, ok := e.store.ActiveSession(o.UserID); ok {
			entry.Duration = sess.Duration(now)
			entry.Earned = sess.ACEarned
		}
		entries = append(entries, entry)
	}
	return entries
}

// Recover reconciles persisted sessions with live voice state after a
// restart. Sessions from an old snapshot or for users no longer in a tracked
// channel are dropped; the rest are credited for the downtime and resume
// ticking.
func (e *Engine) Recover() {
	sessions := e.store.AllActiveSessions()
	if len(sessions) == 0 {
		return
	}

	if !e.store.IsRecentRestart() {
		for _, sess := range sessions {
			e.store.EndSession(sess.UserID)
		}
		zlog.Warn().Msgf("snapshot too old, dropped persisted sessions: count=%d", len(sessions))
		return
	}

	recovered := 0
	channels := make(map[string]struct{})
	for _, sess := range sessions {
		if !e.recoverSession(sess) {
			e.store.EndSession(sess.UserID)
			zlog.Info().Msgf("pruned stale session on recovery: user=%s channel=%s", sess.UserID, sess.ChannelID)
			continue
		}
		recovered++
		channels[sess.ChannelID] = struct{}{}
	}

	for channelID := range channels {
		e.RefreshChannelStatus(channelID)
	}
	zlog.Info().Msgf("voice recovery finished: recovered=%d pruned=%d", recovered, len(sessions)-recovered)
}

// recoverSession validates one persisted session against live state and, if
// valid, credits the unpaid accrual and restarts its timer.
func (e *Engine) recoverSession(sess voice.Session) bool {
	if !e.channels.GuildAvailable(sess.GuildID) {
		return false
	}

	channelID, inVoice := e.channels.UserVoiceChannel(sess.GuildID, sess.UserID)
	if !inVoice || !e.channels.IsTrackable(channelID) {
		return false
	}

	// The snapshot must match the live location exactly; a user found in a
	// different channel is treated as stale, not followed.
	if channelID != sess.ChannelID {
		return false
	}

	elapsed := sess.Duration(e.now())
	if elapsed >= e.cfg.MinTimeForReward() {
		total := voice.CalculateReward(elapsed, e.cfg.Voice.ACPerHour)
		if delta := total - sess.ACEarned; delta > 0 {
			if err := e.ledger.CreditBalance(sess.UserID, delta); err != nil {
				zlog.Error().Msgf("failed to credit recovery reward: user=%s amount=%d err=%v", sess.UserID, delta, err)
			} else {
				e.store.SetSessionReward(sess.UserID, total)
				zlog.Info().Msgf("recovered session credited: user=%s delta=%d", sess.UserID, delta)
			}
		}
	}

	e.startTimer(sess.UserID)
	return true
}

// Shutdown stops all timers and finalizes every active session, paying the
// remaining accrual. The caller backs up data beforehand.
func (e *Engine) Shutdown() {
	e.stopAllTimers()

	sessions := e.store.AllActiveSessions()
	for _, sess := range sessions {
		e.finalizeSession(sess.UserID, sess.Username)
	}
	if err := e.store.Save(); err != nil {
		zlog.Error().Msgf("failed to save voice snapshot on shutdown: %v", err)
	}
	zlog.Info().Msgf("voice engine shut down: finalized=%d", len(sessions))
}

// ActiveTimerCount reports how many reward timers are running.
func (e *Engine) ActiveTimerCount() int {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	return len(e.timers)
}
